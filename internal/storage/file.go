package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// FileBackend stores each document as one JSON file under a base directory.
type FileBackend struct {
	baseDir string
	mu      sync.Mutex
}

// NewFileBackend creates a file-based storage backend rooted at baseDir.
func NewFileBackend(baseDir string) *FileBackend {
	return &FileBackend{baseDir: baseDir}
}

func (f *FileBackend) Initialize(ctx context.Context) error {
	if err := os.MkdirAll(f.baseDir, 0o755); err != nil {
		return fmt.Errorf("create storage directory %s: %w", f.baseDir, err)
	}
	return nil
}

func (f *FileBackend) Close() error { return nil }

func (f *FileBackend) Health(ctx context.Context) error {
	if _, err := os.Stat(f.baseDir); err != nil {
		return fmt.Errorf("storage directory unavailable: %w", err)
	}
	return nil
}

func (f *FileBackend) Name() string { return "file" }

func (f *FileBackend) docPath(docKey string) string {
	return filepath.Join(f.baseDir, docKey+".json")
}

func (f *FileBackend) LoadDocument(ctx context.Context, docKey string) (map[string]interface{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := os.ReadFile(f.docPath(docKey))
	if os.IsNotExist(err) {
		return map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", docKey, err)
	}

	doc := make(map[string]interface{})
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode document %s: %w", docKey, err)
	}
	return doc, nil
}

// WriteDocument writes the document atomically via a temp file and rename so
// a crash mid-write never leaves a truncated document behind.
func (f *FileBackend) WriteDocument(ctx context.Context, docKey string, doc map[string]interface{}) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return fmt.Errorf("encode document %s: %w", docKey, err)
	}

	path := f.docPath(docKey)
	tmp, err := os.CreateTemp(f.baseDir, docKey+".*.tmp")
	if err != nil {
		return fmt.Errorf("create temp file for %s: %w", docKey, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("write temp file for %s: %w", docKey, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("close temp file for %s: %w", docKey, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("rename temp file for %s: %w", docKey, err)
	}
	return nil
}
