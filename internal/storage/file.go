package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// FileStore keeps the graph as three JSON files in a directory:
// models.json, categories.json and vendors.json. Files are validated
// against their schemas on load.
type FileStore struct {
	dir string
	mu  sync.RWMutex
}

// NewFileStore creates a store rooted at dir, creating the directory if
// needed.
func NewFileStore(dir string) (*FileStore, error) {
	if strings.TrimSpace(dir) == "" {
		return nil, fmt.Errorf("storage dir is required")
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create storage dir: %w", err)
	}
	return &FileStore{dir: dir}, nil
}

// Dir returns the store directory.
func (s *FileStore) Dir() string {
	return s.dir
}

// Paths returns the full paths of the store files.
func (s *FileStore) Paths() []string {
	return []string{
		filepath.Join(s.dir, ModelsFile),
		filepath.Join(s.dir, CategoriesFile),
		filepath.Join(s.dir, VendorsFile),
	}
}

func (s *FileStore) Load(ctx context.Context) (*models.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g := &models.Graph{}
	targets := []struct {
		name string
		into any
	}{
		{ModelsFile, &g.Models},
		{CategoriesFile, &g.Categories},
		{VendorsFile, &g.Vendors},
	}
	var absent []string
	for _, target := range targets {
		data, err := os.ReadFile(filepath.Join(s.dir, target.name))
		if errors.Is(err, fs.ErrNotExist) {
			absent = append(absent, target.name)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", target.name, err)
		}
		if err := ValidateFile(target.name, data); err != nil {
			return nil, err
		}
		if err := json.Unmarshal(data, target.into); err != nil {
			return nil, fmt.Errorf("decode %s: %w", target.name, err)
		}
	}
	if len(absent) == len(targets) {
		return nil, ErrNotFound
	}
	if len(absent) > 0 {
		return nil, fmt.Errorf("incomplete store in %s: missing %s", s.dir, strings.Join(absent, ", "))
	}
	g.Link()
	return g, nil
}

func (s *FileStore) Save(ctx context.Context, g *models.Graph) error {
	if err := checkSave(g); err != nil {
		return err
	}
	files := []struct {
		name  string
		value any
	}{
		{ModelsFile, orEmpty(g.Models)},
		{CategoriesFile, orEmpty(g.Categories)},
		{VendorsFile, orEmpty(g.Vendors)},
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, f := range files {
		data, err := json.MarshalIndent(f.value, "", "  ")
		if err != nil {
			return fmt.Errorf("encode %s: %w", f.name, err)
		}
		if err := writeFileAtomic(filepath.Join(s.dir, f.name), append(data, '\n'), 0o644); err != nil {
			return fmt.Errorf("write %s: %w", f.name, err)
		}
	}
	return nil
}

func (s *FileStore) Close() error {
	return nil
}

func orEmpty[T any](items []*T) []*T {
	if items == nil {
		return []*T{}
	}
	return items
}

func writeFileAtomic(path string, data []byte, perm os.FileMode) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer func() {
		_ = os.Remove(tmpName)
	}()

	if err := tmp.Chmod(perm); err != nil {
		_ = tmp.Close()
		return err
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
