package repository

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
)

func TestLocalFileRepository_RoundTrip(t *testing.T) {
	repo, err := NewLocalFileRepository(t.TempDir())
	if err != nil {
		t.Fatalf("new repo: %v", err)
	}
	ctx := context.Background()

	path, err := repo.Save(ctx, "../escape.txt", strings.NewReader("hello"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if strings.Contains(path, "..") {
		t.Fatalf("expected path to stay inside upload dir, got %s", path)
	}

	rc, err := repo.Open(ctx, path)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	_ = rc.Close()
	if string(body) != "hello" {
		t.Fatalf("unexpected content %q", body)
	}

	if err := repo.Remove(ctx, path); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if err := repo.Remove(ctx, path); err != nil {
		t.Fatalf("second remove should be a no-op, got %v", err)
	}
	if _, err := repo.Open(ctx, path); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

type mockS3 struct {
	objects map[string][]byte
	putErr  error
}

func (m *mockS3) PutObject(_ context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	if m.putErr != nil {
		return nil, m.putErr
	}
	body, _ := io.ReadAll(in.Body)
	m.objects[*in.Bucket+"/"+*in.Key] = body
	return &s3.PutObjectOutput{}, nil
}

func (m *mockS3) GetObject(_ context.Context, in *s3.GetObjectInput, _ ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	body, ok := m.objects[*in.Bucket+"/"+*in.Key]
	if !ok {
		return nil, &types.NoSuchKey{}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader(body))}, nil
}

func (m *mockS3) DeleteObject(_ context.Context, in *s3.DeleteObjectInput, _ ...func(*s3.Options)) (*s3.DeleteObjectOutput, error) {
	delete(m.objects, *in.Bucket+"/"+*in.Key)
	return &s3.DeleteObjectOutput{}, nil
}

func TestS3FileRepository_RoundTrip(t *testing.T) {
	mock := &mockS3{objects: make(map[string][]byte)}
	repo := &S3FileRepository{client: mock, bucket: "bucket", prefix: "uploads"}
	ctx := context.Background()

	key, err := repo.Save(ctx, "a/b/report.pdf", strings.NewReader("pdf"))
	if err != nil {
		t.Fatalf("save: %v", err)
	}
	if key != "uploads/report.pdf" {
		t.Fatalf("unexpected key %q", key)
	}

	rc, err := repo.Open(ctx, key)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	body, _ := io.ReadAll(rc)
	if string(body) != "pdf" {
		t.Fatalf("unexpected body %q", body)
	}

	if err := repo.Remove(ctx, key); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if _, err := repo.Open(ctx, key); !errors.Is(err, ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestS3FileRepository_SaveError(t *testing.T) {
	repo := &S3FileRepository{client: &mockS3{putErr: errors.New("denied")}, bucket: "b", prefix: "uploads"}
	if _, err := repo.Save(context.Background(), "x", strings.NewReader("")); err == nil {
		t.Fatalf("expected save error")
	}
}
