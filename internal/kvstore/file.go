package kvstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"maps"
	"os"
	"path/filepath"
	"sync"
)

// FileStore keeps all values in a single JSON document with secure permissions.
// Writes use temp file + rename for crash safety, so a batch is all-or-nothing.
type FileStore struct {
	filePath string

	// Serializes read-modify-write cycles within this process
	mu sync.Mutex
}

// Compile-time checks to ensure FileStore implements Store and BatchSetter
var (
	_ Store       = (*FileStore)(nil)
	_ BatchSetter = (*FileStore)(nil)
)

// NewFileStore creates a FileStore for the given path, creating parent directories
// with 0700 permissions if they don't exist. The file itself is created on first write.
func NewFileStore(filePath string) (*FileStore, error) {
	if filePath == "" {
		return nil, fmt.Errorf("file path cannot be empty")
	}

	dir := filepath.Dir(filePath)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, err
	}

	return &FileStore{
		filePath: filePath,
	}, nil
}

// Get returns the value for key. Returns ErrNotFound if the file or key doesn't exist,
// and an error if the file has insecure permissions or is not valid JSON.
func (f *FileStore) Get(ctx context.Context, key string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	values, err := f.load()
	if err != nil {
		return "", err
	}

	value, ok := values[key]
	if !ok {
		return "", ErrNotFound
	}
	return value, nil
}

// Set writes a single value.
func (f *FileStore) Set(ctx context.Context, key, value string) error {
	return f.SetMany(ctx, map[string]string{key: value})
}

// SetMany merges values into the document and rewrites it atomically.
func (f *FileStore) SetMany(ctx context.Context, values map[string]string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	current, err := f.load()
	if err != nil {
		return err
	}
	maps.Copy(current, values)

	return f.save(ctx, current)
}

// load reads the document. A missing file is an empty document.
func (f *FileStore) load() (map[string]string, error) {
	// Check file permissions before reading
	info, err := os.Stat(f.filePath)
	if errors.Is(err, fs.ErrNotExist) {
		return make(map[string]string), nil
	}
	if err != nil {
		return nil, err
	}
	if info.Mode().Perm() != 0600 {
		return nil, fmt.Errorf("insecure permissions on %s: %04o (expected 0600)", f.filePath, info.Mode().Perm())
	}

	data, err := os.ReadFile(f.filePath)
	if err != nil {
		return nil, err
	}

	values := make(map[string]string)
	if len(data) == 0 {
		return values, nil
	}
	if err := json.Unmarshal(data, &values); err != nil {
		return nil, fmt.Errorf("parsing %s: %w", f.filePath, err)
	}
	return values, nil
}

// save atomically replaces the document using temp file + rename.
// Sets file permissions to 0600 (owner read/write only).
func (f *FileStore) save(ctx context.Context, values map[string]string) error {
	data, err := json.MarshalIndent(values, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding values: %w", err)
	}

	// Create secure temp file in same directory for atomic rename
	dir := filepath.Dir(f.filePath)
	tempFile, err := os.CreateTemp(dir, "*.tmp")
	if err != nil {
		return err
	}
	tempName := tempFile.Name()
	// Cleanup deferred for all exit paths
	defer func() { _ = os.Remove(tempName) }()
	defer func() { _ = tempFile.Close() }()

	if _, err := tempFile.Write(append(data, '\n')); err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}
	if err := tempFile.Close(); err != nil {
		return err
	}

	// CreateTemp uses 0600 already; set explicitly before the rename makes it visible
	if err := os.Chmod(tempName, 0600); err != nil {
		return err
	}

	return os.Rename(tempName, f.filePath)
}
