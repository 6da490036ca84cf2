package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"coglex/internal/domain"
	"coglex/internal/repository"
)

var ErrEmptyInput = errors.New("empty input")

// StorageService ofrece CRUD genérico sobre colecciones nombradas.
type StorageService struct {
	logger *zap.Logger
	docs   repository.DocumentRepository
}

func NewStorageService(logger *zap.Logger, docs repository.DocumentRepository) *StorageService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &StorageService{logger: logger, docs: docs}
}

func (s *StorageService) Aggregate(ctx context.Context, collection string, pipeline []domain.Document) ([]domain.Document, error) {
	if len(pipeline) == 0 {
		return nil, ErrEmptyInput
	}
	out, err := s.docs.Aggregate(ctx, collection, pipeline)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *StorageService) Find(ctx context.Context, collection string, query domain.Filter, keys domain.Document) ([]domain.Document, error) {
	out, err := s.docs.Find(ctx, collection, query, keys)
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, ErrNotFound
	}
	return out, nil
}

func (s *StorageService) FindByID(ctx context.Context, collection, id string, keys domain.Document) (domain.Document, error) {
	out, err := s.Find(ctx, collection, domain.Filter{domain.FieldID: id}, keys)
	if err != nil {
		return nil, err
	}
	return out[0], nil
}

// Insert asigna _id a cada documento; un _id enviado por el cliente se reemplaza.
func (s *StorageService) Insert(ctx context.Context, collection string, docs []domain.Document) ([]string, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyInput
	}
	ids, err := s.docs.Insert(ctx, collection, docs)
	if err != nil {
		if errors.Is(err, repository.ErrDuplicateKey) {
			return nil, ErrConflict
		}
		return nil, err
	}
	return ids, nil
}

// Patch aplica update a todos los documentos que cumplen query y devuelve los modificados.
func (s *StorageService) Patch(ctx context.Context, collection string, update domain.Update, query domain.Filter) (int64, error) {
	if len(update) == 0 {
		return 0, ErrEmptyInput
	}
	for op := range update {
		if !strings.HasPrefix(op, "$") {
			return 0, ErrInvalidUpdate
		}
	}
	matched, modified, err := s.docs.Update(ctx, collection, update, query)
	if err != nil {
		return 0, err
	}
	if matched == 0 {
		return 0, ErrNotFound
	}
	return modified, nil
}

func (s *StorageService) PatchByID(ctx context.Context, collection, id string, update domain.Update) (int64, error) {
	return s.Patch(ctx, collection, update, domain.Filter{domain.FieldID: id})
}

func (s *StorageService) Delete(ctx context.Context, collection string, query domain.Filter) (int64, error) {
	n, err := s.docs.Delete(ctx, collection, query)
	if err != nil {
		return 0, fmt.Errorf("delete: %w", err)
	}
	if n == 0 {
		return 0, ErrNotFound
	}
	return n, nil
}

func (s *StorageService) DeleteByID(ctx context.Context, collection, id string) (int64, error) {
	return s.Delete(ctx, collection, domain.Filter{domain.FieldID: id})
}
