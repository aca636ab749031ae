package storage

import (
	"bytes"
	"context"
	"errors"
	"io"
	"strings"
	"testing"
)

type memBackend struct {
	objects      map[string][]byte
	bucketReady  bool
	contentTypes map[string]string
}

func newMemBackend() *memBackend {
	return &memBackend{
		objects:      make(map[string][]byte),
		contentTypes: make(map[string]string),
	}
}

func (m *memBackend) EnsureBucket(ctx context.Context) error {
	m.bucketReady = true
	return nil
}

func (m *memBackend) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return err
	}
	m.objects[key] = data
	m.contentTypes[key] = contentType
	return nil
}

func (m *memBackend) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	data, ok := m.objects[key]
	if !ok {
		return nil, errors.New("no such object")
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (m *memBackend) Delete(ctx context.Context, key string) error {
	if _, ok := m.objects[key]; !ok {
		return errors.New("no such object")
	}
	delete(m.objects, key)
	return nil
}

func (m *memBackend) ObjectURL(key string) string {
	return "http://blobs.test/uploads/" + key
}

func (m *memBackend) Bucket() string { return "uploads" }

func TestStorageDelegatesToBackend(t *testing.T) {
	backend := newMemBackend()
	blobs := NewStorage(backend)
	ctx := context.Background()

	if err := blobs.EnsureBucket(ctx); err != nil {
		t.Fatalf("ensure bucket: %v", err)
	}
	if !backend.bucketReady {
		t.Fatalf("bucket was not ensured on the backend")
	}

	content := "png-bytes"
	if err := blobs.Put(ctx, "questions/abc.png", strings.NewReader(content), int64(len(content)), "image/png"); err != nil {
		t.Fatalf("put: %v", err)
	}
	if backend.contentTypes["questions/abc.png"] != "image/png" {
		t.Fatalf("content type not forwarded")
	}

	reader, err := blobs.Get(ctx, "questions/abc.png")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	data, err := io.ReadAll(reader)
	_ = reader.Close()
	if err != nil {
		t.Fatalf("read object: %v", err)
	}
	if string(data) != content {
		t.Fatalf("object round-trip mismatch: %q", data)
	}

	if got := blobs.ObjectURL("questions/abc.png"); got != "http://blobs.test/uploads/questions/abc.png" {
		t.Fatalf("object url = %q", got)
	}
	if blobs.Bucket() != "uploads" {
		t.Fatalf("bucket = %q, want uploads", blobs.Bucket())
	}

	if err := blobs.Delete(ctx, "questions/abc.png"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := blobs.Get(ctx, "questions/abc.png"); err == nil {
		t.Fatalf("expected get after delete to fail")
	}
}
