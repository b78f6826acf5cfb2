// Package storage persists the canonical pricing graph and its backups.
package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/haasonsaas/inferprice/pkg/models"
)

var (
	// ErrNotFound is returned by Load when nothing has been saved yet.
	ErrNotFound = errors.New("not found")
	// ErrEmpty is returned by Save for a graph without any entities.
	ErrEmpty = errors.New("graph is empty")
)

// Driver names accepted by Open.
const (
	DriverMemory   = "memory"
	DriverFile     = "file"
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

// Store persists whole graphs. Save replaces the stored graph; Load returns
// a linked copy that callers may modify freely.
type Store interface {
	Load(ctx context.Context) (*models.Graph, error)
	Save(ctx context.Context, g *models.Graph) error
	Close() error
}

// HistoryStore is implemented by stores that keep past prices.
type HistoryStore interface {
	PriceHistory(ctx context.Context, modelID, limit int) ([]PricePoint, error)
}

// PricePoint is one recorded price of a model.
type PricePoint struct {
	ModelID    int       `json:"modelId"`
	SnapshotID string    `json:"snapshotId"`
	InputText  float64   `json:"inputText"`
	OutputText float64   `json:"outputText"`
	RecordedAt time.Time `json:"recordedAt"`
}

// Config selects and configures a store.
type Config struct {
	Driver string
	// Dir is the directory of the file driver.
	Dir string
	// DSN is the data source of the sqlite and postgres drivers. For sqlite
	// it is a file path or ":memory:".
	DSN  string
	Pool *PoolConfig
}

// Open creates the store selected by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverMemory:
		return NewMemoryStore(), nil
	case DriverFile:
		s, err := NewFileStore(cfg.Dir)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverSQLite:
		s, err := OpenSQLite(ctx, cfg.DSN)
		if err != nil {
			return nil, err
		}
		return s, nil
	case DriverPostgres:
		s, err := OpenPostgres(ctx, cfg.DSN, cfg.Pool)
		if err != nil {
			return nil, err
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Driver)
	}
}

func checkSave(g *models.Graph) error {
	if g.Empty() {
		return ErrEmpty
	}
	return nil
}
