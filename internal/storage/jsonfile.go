package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// JSONFile is a Provider persisted as a single JSON object on disk.
// Every mutation rewrites the file atomically.
type JSONFile struct {
	mu   sync.Mutex
	path string
}

var _ Provider = (*JSONFile)(nil)

// NewJSONFile returns a store backed by path. The file is created on first write.
func NewJSONFile(path string) (*JSONFile, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("storage: resolve %s: %w", path, err)
	}
	return &JSONFile{path: abs}, nil
}

// Path returns the absolute file path.
func (j *JSONFile) Path() string {
	return j.path
}

func (j *JSONFile) load() (map[string]string, error) {
	data, err := os.ReadFile(j.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return map[string]string{}, nil
		}
		return nil, fmt.Errorf("storage: read %s: %w", j.path, err)
	}
	out := map[string]string{}
	if len(data) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("storage: decode %s: %w", j.path, err)
	}
	return out, nil
}

func (j *JSONFile) save(m map[string]string) error {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("storage: encode: %w", err)
	}
	return writeFileAtomic(j.path, data, 0o600)
}

// Get implements Provider.
func (j *JSONFile) Get(_ context.Context, key string) (string, bool, error) {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, err := j.load()
	if err != nil {
		return "", false, err
	}
	v, ok := m[key]
	return v, ok, nil
}

// Set implements Provider.
func (j *JSONFile) Set(_ context.Context, key, value string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, err := j.load()
	if err != nil {
		return err
	}
	m[key] = value
	return j.save(m)
}

// Remove implements Provider.
func (j *JSONFile) Remove(_ context.Context, keys ...string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	m, err := j.load()
	if err != nil {
		return err
	}
	changed := false
	for _, k := range keys {
		if _, ok := m[k]; ok {
			delete(m, k)
			changed = true
		}
	}
	if !changed {
		return nil
	}
	return j.save(m)
}
