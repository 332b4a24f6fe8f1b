// Package blobstore stores uploaded case-paper scans and hands back durable
// URLs. The URL is what gets persisted on the upload record, so any backend
// must be able to re-serve a file from its URL alone (re-processing fetches
// the original scan rather than asking the client to upload it again).
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"path"
	"strings"
	"sync"
	"time"
)

var (
	ErrBlobNotFound       = errors.New("blob not found")
	ErrFileTooLarge       = errors.New("file exceeds maximum allowed size")
	ErrInvalidContentType = errors.New("content type is not allowed")
	ErrMissingFileName    = errors.New("file name is required")
)

// AllowedContentTypes lists the scan formats the pipeline accepts. Everything
// else is rejected before any storage or model call happens.
var AllowedContentTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/webp":      true,
	"application/pdf": true,
}

// Metadata describes a stored scan.
type Metadata struct {
	Key         string    `json:"key"`
	URL         string    `json:"url"`
	FileName    string    `json:"file_name"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	Hash        string    `json:"hash"`
	ClinicID    string    `json:"clinic_id,omitempty"`
	UploadedBy  string    `json:"uploaded_by,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store is the contract for scan storage backends.
type Store interface {
	// Save validates and persists the content, returning metadata whose URL
	// field is durable.
	Save(ctx context.Context, meta Metadata, content io.Reader) (*Metadata, error)
	// Fetch returns the content and metadata for a previously saved URL.
	Fetch(ctx context.Context, url string) ([]byte, *Metadata, error)
	// Delete removes the content behind a URL.
	Delete(ctx context.Context, url string) error
}

// readValidated drains content up to maxBytes and checks the shared
// constraints every backend enforces.
func readValidated(meta *Metadata, content io.Reader, maxBytes int64) ([]byte, error) {
	if meta.FileName == "" {
		return nil, ErrMissingFileName
	}
	if !AllowedContentTypes[meta.ContentType] {
		return nil, fmt.Errorf("%w: %s", ErrInvalidContentType, meta.ContentType)
	}

	data, err := io.ReadAll(io.LimitReader(content, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > maxBytes {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)
	meta.Size = int64(len(data))
	meta.Hash = fmt.Sprintf("%x", h)
	meta.CreatedAt = time.Now().UTC()
	return data, nil
}

// makeKey builds a storage key from the clinic, an upload timestamp and the
// sanitized file name. Timestamps keep keys unique across repeated uploads of
// the same file.
func makeKey(meta Metadata, now time.Time) string {
	clinic := meta.ClinicID
	if clinic == "" {
		clinic = "default"
	}
	name := sanitizeFileName(meta.FileName)
	return fmt.Sprintf("%s/%d_%s", clinic, now.UnixNano(), name)
}

func sanitizeFileName(name string) string {
	name = path.Base(name)
	var b strings.Builder
	for _, r := range name {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == '.', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "scan"
	}
	return b.String()
}

// InMemoryStore is a thread-safe in-memory Store for testing and development.
// URLs use the mem:// scheme.
type InMemoryStore struct {
	mu       sync.RWMutex
	blobs    map[string]*storedBlob
	maxBytes int64
}

type storedBlob struct {
	metadata Metadata
	content  []byte
}

// NewInMemoryStore returns a ready-to-use InMemoryStore capped at maxBytes
// per file.
func NewInMemoryStore(maxBytes int64) *InMemoryStore {
	return &InMemoryStore{
		blobs:    make(map[string]*storedBlob),
		maxBytes: maxBytes,
	}
}

func (s *InMemoryStore) Save(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	data, err := readValidated(&meta, content, s.maxBytes)
	if err != nil {
		return nil, err
	}

	meta.Key = makeKey(meta, meta.CreatedAt)
	meta.URL = "mem://" + meta.Key

	s.mu.Lock()
	s.blobs[meta.URL] = &storedBlob{metadata: meta, content: data}
	s.mu.Unlock()

	out := meta // copy
	return &out, nil
}

func (s *InMemoryStore) Fetch(_ context.Context, url string) ([]byte, *Metadata, error) {
	s.mu.RLock()
	blob, ok := s.blobs[url]
	s.mu.RUnlock()

	if !ok {
		return nil, nil, ErrBlobNotFound
	}

	meta := blob.metadata // copy
	return bytes.Clone(blob.content), &meta, nil
}

func (s *InMemoryStore) Delete(_ context.Context, url string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[url]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, url)
	return nil
}
