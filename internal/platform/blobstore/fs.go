package blobstore

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// FileSystemStore persists scans under a root directory. URLs use the file://
// scheme and embed the path relative to the root, so a store pointed at the
// same directory later can still serve previously issued URLs. Metadata lives
// in a .meta.json sidecar next to each file.
type FileSystemStore struct {
	root     string
	maxBytes int64
}

// NewFileSystemStore creates the root directory if needed.
func NewFileSystemStore(root string, maxBytes int64) (*FileSystemStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root %s: %w", root, err)
	}
	return &FileSystemStore{root: root, maxBytes: maxBytes}, nil
}

func (s *FileSystemStore) Save(_ context.Context, meta Metadata, content io.Reader) (*Metadata, error) {
	data, err := readValidated(&meta, content, s.maxBytes)
	if err != nil {
		return nil, err
	}

	meta.Key = makeKey(meta, meta.CreatedAt)
	meta.URL = "file://" + meta.Key

	full := filepath.Join(s.root, filepath.FromSlash(meta.Key))
	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return nil, fmt.Errorf("create clinic directory: %w", err)
	}
	if err := os.WriteFile(full, data, 0o644); err != nil {
		return nil, fmt.Errorf("write blob %s: %w", meta.Key, err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return nil, fmt.Errorf("marshal metadata: %w", err)
	}
	if err := os.WriteFile(full+".meta.json", sidecar, 0o644); err != nil {
		return nil, fmt.Errorf("write metadata %s: %w", meta.Key, err)
	}

	out := meta // copy
	return &out, nil
}

func (s *FileSystemStore) Fetch(_ context.Context, url string) ([]byte, *Metadata, error) {
	full, err := s.resolve(url)
	if err != nil {
		return nil, nil, err
	}

	data, err := os.ReadFile(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil, ErrBlobNotFound
		}
		return nil, nil, fmt.Errorf("read blob: %w", err)
	}

	var meta Metadata
	sidecar, err := os.ReadFile(full + ".meta.json")
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, nil, fmt.Errorf("read metadata: %w", err)
		}
		// Sidecar missing: return what can be recovered from the path.
		meta = Metadata{URL: url, FileName: filepath.Base(full), Size: int64(len(data))}
	} else if err := json.Unmarshal(sidecar, &meta); err != nil {
		return nil, nil, fmt.Errorf("unmarshal metadata: %w", err)
	}

	return data, &meta, nil
}

func (s *FileSystemStore) Delete(_ context.Context, url string) error {
	full, err := s.resolve(url)
	if err != nil {
		return err
	}

	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return fmt.Errorf("remove blob: %w", err)
	}
	_ = os.Remove(full + ".meta.json")
	return nil
}

// resolve maps a file:// URL back to a path under the root, rejecting keys
// that escape it.
func (s *FileSystemStore) resolve(url string) (string, error) {
	key, ok := strings.CutPrefix(url, "file://")
	if !ok || key == "" {
		return "", ErrBlobNotFound
	}

	full := filepath.Join(s.root, filepath.FromSlash(key))
	rel, err := filepath.Rel(s.root, full)
	if err != nil || strings.HasPrefix(rel, "..") {
		return "", ErrBlobNotFound
	}
	return full, nil
}
