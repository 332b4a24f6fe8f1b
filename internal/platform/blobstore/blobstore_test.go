package blobstore

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

func validMeta() Metadata {
	return Metadata{
		FileName:    "case-paper.jpg",
		ContentType: "image/jpeg",
		ClinicID:    "default",
		UploadedBy:  "dev-user",
	}
}

func TestInMemorySaveAndFetch(t *testing.T) {
	store := NewInMemoryStore(1 << 20)
	content := []byte("fake jpeg bytes")

	meta, err := store.Save(context.Background(), validMeta(), bytes.NewReader(content))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if meta.URL == "" || !strings.HasPrefix(meta.URL, "mem://") {
		t.Errorf("URL = %q, want mem:// scheme", meta.URL)
	}
	if meta.Size != int64(len(content)) {
		t.Errorf("Size = %d, want %d", meta.Size, len(content))
	}
	if meta.Hash == "" {
		t.Error("expected content hash")
	}

	data, got, err := store.Fetch(context.Background(), meta.URL)
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if !bytes.Equal(data, content) {
		t.Error("fetched content differs from saved content")
	}
	if got.FileName != "case-paper.jpg" {
		t.Errorf("FileName = %q", got.FileName)
	}
}

func TestInMemoryDistinctURLsForSameFileName(t *testing.T) {
	store := NewInMemoryStore(1 << 20)

	first, err := store.Save(context.Background(), validMeta(), strings.NewReader("scan one"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	second, err := store.Save(context.Background(), validMeta(), strings.NewReader("scan two"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if first.URL == second.URL {
		t.Errorf("expected distinct URLs, both = %q", first.URL)
	}
}

func TestSaveRejectsOversize(t *testing.T) {
	store := NewInMemoryStore(8)
	_, err := store.Save(context.Background(), validMeta(), strings.NewReader("definitely more than eight bytes"))
	if !errors.Is(err, ErrFileTooLarge) {
		t.Fatalf("err = %v, want ErrFileTooLarge", err)
	}
}

func TestSaveRejectsContentType(t *testing.T) {
	store := NewInMemoryStore(1 << 20)
	meta := validMeta()
	meta.ContentType = "application/x-msdownload"
	_, err := store.Save(context.Background(), meta, strings.NewReader("x"))
	if !errors.Is(err, ErrInvalidContentType) {
		t.Fatalf("err = %v, want ErrInvalidContentType", err)
	}
}

func TestSaveRejectsMissingFileName(t *testing.T) {
	store := NewInMemoryStore(1 << 20)
	meta := validMeta()
	meta.FileName = ""
	_, err := store.Save(context.Background(), meta, strings.NewReader("x"))
	if !errors.Is(err, ErrMissingFileName) {
		t.Fatalf("err = %v, want ErrMissingFileName", err)
	}
}

func TestFetchUnknownURL(t *testing.T) {
	store := NewInMemoryStore(1 << 20)
	_, _, err := store.Fetch(context.Background(), "mem://default/nope.jpg")
	if !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err = %v, want ErrBlobNotFound", err)
	}
}

func TestDelete(t *testing.T) {
	store := NewInMemoryStore(1 << 20)
	meta, err := store.Save(context.Background(), validMeta(), strings.NewReader("scan"))
	if err != nil {
		t.Fatalf("Save: %v", err)
	}
	if err := store.Delete(context.Background(), meta.URL); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if _, _, err := store.Fetch(context.Background(), meta.URL); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("err after delete = %v, want ErrBlobNotFound", err)
	}
	if err := store.Delete(context.Background(), meta.URL); !errors.Is(err, ErrBlobNotFound) {
		t.Fatalf("second delete = %v, want ErrBlobNotFound", err)
	}
}

func TestSanitizeFileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"scan.jpg", "scan.jpg"},
		{"../../etc/passwd", "passwd"},
		{"visit notes (1).png", "visit_notes__1_.png"},
		{"", "scan"},
	}
	for _, tc := range cases {
		if got := sanitizeFileName(tc.in); got != tc.want {
			t.Errorf("sanitizeFileName(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}
