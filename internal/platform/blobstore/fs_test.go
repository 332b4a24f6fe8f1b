package blobstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func TestFileSystemSaveFetchDelete(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewFileSystemStore: %v", err)
	}

	content := []byte("scan bytes")
	meta, err := store.Save(context.Background(), validMeta(), bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !strings.HasPrefix(meta.URL, "file://") {
		t.Errorf("URL = %q, want file:// scheme", meta.URL)
	}

	data, got, err := store.Fetch(context.Background(), meta.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("fetched content differs from saved content")
	}
	if got.ContentType != "image/jpeg" {
		t.Errorf("ContentType = %q, want image/jpeg", got.ContentType)
	}

	if err := store.Delete(context.Background(), meta.URL); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Fetch(context.Background(), meta.URL); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err after delete = %v, want ErrBlobNotFound", err)
	}
}

func TestFileSystemURLSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileSystemStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewFileSystemStore: %v", err)
	}

	meta, err := store.Save(context.Background(), validMeta(), strings.NewReader("scan"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}

	// A fresh store over the same directory serves the old URL.
	reopened, err := NewFileSystemStore(dir, 1<<20)
	if err != nil {
		t.Fatalf("NewFileSystemStore: %v", err)
	}
	data, got, err := reopened.Fetch(context.Background(), meta.URL)
	if err != nil {
		t.Fatalf("Fetch after reopen: %v", err)
	}
	if string(data) != "scan" {
		t.Errorf("content = %q, want scan", data)
	}
	if got.Hash != meta.Hash {
		t.Errorf("Hash = %q, want %q", got.Hash, meta.Hash)
	}
}

func TestFileSystemRejectsEscapingURL(t *testing.T) {
	store, err := NewFileSystemStore(t.TempDir(), 1<<20)
	if err != nil {
		t.Fatalf("NewFileSystemStore: %v", err)
	}
	_, _, err = store.Fetch(context.Background(), "file://../../etc/passwd")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err = %v, want ErrBlobNotFound", err)
	}
}
