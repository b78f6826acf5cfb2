package storage

import (
	"context"
	"sync"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// MemoryStore keeps the graph in process memory.
type MemoryStore struct {
	mu    sync.RWMutex
	graph *models.Graph
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Load(ctx context.Context) (*models.Graph, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.graph == nil {
		return nil, ErrNotFound
	}
	return s.graph.Clone(), nil
}

func (s *MemoryStore) Save(ctx context.Context, g *models.Graph) error {
	if err := checkSave(g); err != nil {
		return err
	}
	cp := g.Clone()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.graph = cp
	return nil
}

func (s *MemoryStore) Close() error {
	return nil
}
