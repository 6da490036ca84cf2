package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/repository"
)

var (
	ErrFileTooLarge = errors.New("file too large")
	ErrEmptyFile    = errors.New("empty file")
)

// ArchiveService guarda archivos subidos y su metadata en una colección.
type ArchiveService struct {
	logger     *zap.Logger
	docs       repository.DocumentRepository
	files      repository.FileRepository
	collection string
	maxSize    int64
}

func NewArchiveService(logger *zap.Logger, docs repository.DocumentRepository, files repository.FileRepository, collection string, maxSize int64) *ArchiveService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ArchiveService{
		logger:     logger,
		docs:       docs,
		files:      files,
		collection: collection,
		maxSize:    maxSize,
	}
}

// Upload detecta el tipo real del contenido, lo guarda con un nombre único y registra la metadata.
func (s *ArchiveService) Upload(ctx context.Context, filename string, size int64, src io.Reader) (string, error) {
	if src == nil || size == 0 {
		return "", ErrEmptyFile
	}
	if s.maxSize > 0 && size > s.maxSize {
		return "", ErrFileTooLarge
	}

	mtype, body, err := detectType(src)
	if err != nil {
		return "", fmt.Errorf("detect file type: %w", err)
	}

	name := sanitizeFilename(filename)
	path, err := s.files.Save(ctx, repository.NewDocumentID()+"_"+name, body)
	if err != nil {
		return "", fmt.Errorf("save file: %w", err)
	}

	meta := domain.FileMeta{
		Filename: name,
		Filepath: path,
		Filesize: size,
		Filetype: mtype,
	}
	ids, err := s.docs.Insert(ctx, s.collection, []domain.Document{meta.Document()})
	if err != nil {
		if rmErr := s.files.Remove(ctx, path); rmErr != nil {
			s.logger.Error("remove orphan upload", zap.String("path", path), zap.Error(rmErr))
		}
		return "", fmt.Errorf("store file metadata: %w", err)
	}
	return ids[0], nil
}

// List devuelve la metadata que cumple query; sin resultados es ErrNotFound.
func (s *ArchiveService) List(ctx context.Context, query domain.Filter) ([]domain.FileMeta, error) {
	docs, err := s.docs.Find(ctx, s.collection, query, nil)
	if err != nil {
		return nil, fmt.Errorf("list files: %w", err)
	}
	if len(docs) == 0 {
		return nil, ErrNotFound
	}
	out := make([]domain.FileMeta, 0, len(docs))
	for _, d := range docs {
		out = append(out, domain.FileMetaFromDocument(d))
	}
	return out, nil
}

// Open devuelve la metadata y el contenido del archivo. El caller cierra el reader.
func (s *ArchiveService) Open(ctx context.Context, id string) (domain.FileMeta, io.ReadCloser, error) {
	meta, err := s.find(ctx, id)
	if err != nil {
		return domain.FileMeta{}, nil, err
	}
	rc, err := s.files.Open(ctx, meta.Filepath)
	if err != nil {
		if errors.Is(err, repository.ErrFileNotFound) {
			return domain.FileMeta{}, nil, ErrNotFound
		}
		return domain.FileMeta{}, nil, fmt.Errorf("open file: %w", err)
	}
	return meta, rc, nil
}

// Delete elimina contenido y metadata.
func (s *ArchiveService) Delete(ctx context.Context, id string) error {
	meta, err := s.find(ctx, id)
	if err != nil {
		return err
	}
	if err := s.files.Remove(ctx, meta.Filepath); err != nil {
		return fmt.Errorf("remove file: %w", err)
	}
	if _, err := s.docs.Delete(ctx, s.collection, domain.Filter{domain.FieldID: id}); err != nil {
		return fmt.Errorf("delete file metadata: %w", err)
	}
	return nil
}

func (s *ArchiveService) find(ctx context.Context, id string) (domain.FileMeta, error) {
	if strings.TrimSpace(id) == "" {
		return domain.FileMeta{}, ErrNotFound
	}
	docs, err := s.docs.Find(ctx, s.collection, domain.Filter{domain.FieldID: id}, nil)
	if err != nil {
		return domain.FileMeta{}, fmt.Errorf("find file: %w", err)
	}
	if len(docs) == 0 {
		return domain.FileMeta{}, ErrNotFound
	}
	return domain.FileMetaFromDocument(docs[0]), nil
}

// detectType lee la cabecera del contenido sin perderla para la escritura posterior.
func detectType(src io.Reader) (string, io.Reader, error) {
	if rs, ok := src.(io.ReadSeeker); ok {
		mtype, err := mimetype.DetectReader(rs)
		if err != nil {
			return "", nil, err
		}
		if _, err := rs.Seek(0, io.SeekStart); err != nil {
			return "", nil, err
		}
		return mtype.String(), rs, nil
	}
	header := make([]byte, 3072)
	n, err := io.ReadFull(src, header)
	if err != nil && !errors.Is(err, io.ErrUnexpectedEOF) && !errors.Is(err, io.EOF) {
		return "", nil, err
	}
	header = header[:n]
	return mimetype.Detect(header).String(), io.MultiReader(bytes.NewReader(header), src), nil
}

func sanitizeFilename(name string) string {
	name = filepath.Base(strings.ReplaceAll(name, "\\", "/"))
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-', r == '_':
			b.WriteRune(r)
		case r == ' ':
			b.WriteByte('_')
		}
	}
	out := strings.TrimLeft(b.String(), "._")
	if out == "" {
		return "file"
	}
	return out
}
