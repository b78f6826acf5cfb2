package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/haasonsaas/inferprice/pkg/models"
)

const (
	backupPrefix     = "pricing-backup-"
	latestBackupName = backupPrefix + "latest.json"
	// backupTimeLayout is filename-safe and sorts chronologically.
	backupTimeLayout = "2006-01-02T15-04-05"
)

// DefaultBackupKeep is the number of timestamped backups retained.
const DefaultBackupKeep = 20

// Backup is a point-in-time copy of every model price.
type Backup struct {
	ID             string         `json:"id"`
	CreatedAt      time.Time      `json:"createdAt"`
	Pricing        []BackupEntry  `json:"pricing"`
	PricingHistory []HistoryEntry `json:"pricingHistory,omitempty"`
}

// BackupEntry is the price of one model, keyed by names so it survives id
// reassignment.
type BackupEntry struct {
	ModelSystemName  string   `json:"modelSystemName"`
	ModelDisplayName string   `json:"modelDisplayName"`
	VendorName       string   `json:"vendorName"`
	VendorID         int      `json:"vendorId"`
	InputText        float64  `json:"inputText"`
	OutputText       float64  `json:"outputText"`
	FinetuningInput  *float64 `json:"finetuningInput,omitempty"`
	FinetuningOutput *float64 `json:"finetuningOutput,omitempty"`
	TrainingCost     *float64 `json:"trainingCost,omitempty"`
}

// HistoryEntry is one recorded past price.
type HistoryEntry struct {
	ModelSystemName string    `json:"modelSystemName"`
	SnapshotID      string    `json:"snapshotId"`
	InputText       float64   `json:"inputText"`
	OutputText      float64   `json:"outputText"`
	Timestamp       time.Time `json:"timestamp"`
}

// NewBackup collects the prices of every priced model in g. It returns
// ErrEmpty when no model has pricing.
func NewBackup(g *models.Graph, now time.Time) (*Backup, error) {
	if g == nil {
		return nil, ErrEmpty
	}
	b := &Backup{ID: uuid.NewString(), CreatedAt: now.UTC()}
	for _, m := range g.Models {
		if m.Pricing == nil {
			continue
		}
		e := BackupEntry{
			ModelSystemName:  m.SystemName,
			ModelDisplayName: m.DisplayName,
			VendorID:         m.VendorID,
			InputText:        m.Pricing.InputText,
			OutputText:       m.Pricing.OutputText,
			FinetuningInput:  m.Pricing.FinetuningInput,
			FinetuningOutput: m.Pricing.FinetuningOutput,
			TrainingCost:     m.Pricing.TrainingCost,
		}
		if m.Vendor != nil {
			e.VendorName = m.Vendor.Name
		}
		b.Pricing = append(b.Pricing, e)
	}
	if len(b.Pricing) == 0 {
		return nil, ErrEmpty
	}
	return b, nil
}

// AddHistory appends the recorded prices of the model named systemName.
func (b *Backup) AddHistory(systemName string, points []PricePoint) {
	for _, p := range points {
		b.PricingHistory = append(b.PricingHistory, HistoryEntry{
			ModelSystemName: systemName,
			SnapshotID:      p.SnapshotID,
			InputText:       p.InputText,
			OutputText:      p.OutputText,
			Timestamp:       p.RecordedAt.UTC(),
		})
	}
}

// Filename is the timestamped file name of the backup.
func (b *Backup) Filename() string {
	return backupPrefix + b.CreatedAt.UTC().Format(backupTimeLayout) + ".json"
}

// Uploader copies a finished backup to remote storage.
type Uploader interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Backupper writes backups to a directory, keeps a pricing-backup-latest.json
// copy, rotates old files and optionally uploads each backup.
type Backupper struct {
	Dir  string
	Keep int
	// Uploader is optional.
	Uploader Uploader
}

// BackupResult describes one written backup.
type BackupResult struct {
	ID      string `json:"id"`
	Path    string `json:"path"`
	Entries int    `json:"entries"`
	History int    `json:"history"`
	Removed int    `json:"removed"`
	// URI is set when the backup was uploaded.
	URI string `json:"uri,omitempty"`
}

// Write stores b and rotates older backups.
func (w *Backupper) Write(ctx context.Context, b *Backup) (*BackupResult, error) {
	if strings.TrimSpace(w.Dir) == "" {
		return nil, fmt.Errorf("backup dir is required")
	}
	if err := os.MkdirAll(w.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	data, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode backup: %w", err)
	}
	data = append(data, '\n')

	path := filepath.Join(w.Dir, b.Filename())
	if err := writeFileAtomic(path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write backup: %w", err)
	}
	if err := writeFileAtomic(filepath.Join(w.Dir, latestBackupName), data, 0o644); err != nil {
		return nil, fmt.Errorf("write latest backup: %w", err)
	}

	result := &BackupResult{
		ID:      b.ID,
		Path:    path,
		Entries: len(b.Pricing),
		History: len(b.PricingHistory),
	}
	removed, err := w.rotate()
	if err != nil {
		return nil, err
	}
	result.Removed = removed

	if w.Uploader != nil {
		uri, err := w.Uploader.Upload(ctx, b.Filename(), data, "application/json")
		if err != nil {
			return result, fmt.Errorf("upload backup: %w", err)
		}
		result.URI = uri
	}
	return result, nil
}

// List returns the timestamped backup files in Dir, newest first.
func (w *Backupper) List() ([]string, error) {
	entries, err := os.ReadDir(w.Dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || name == latestBackupName {
			continue
		}
		if strings.HasPrefix(name, backupPrefix) && strings.HasSuffix(name, ".json") {
			names = append(names, name)
		}
	}
	slices.Sort(names)
	slices.Reverse(names)
	return names, nil
}

func (w *Backupper) rotate() (int, error) {
	keep := w.Keep
	if keep <= 0 {
		keep = DefaultBackupKeep
	}
	names, err := w.List()
	if err != nil {
		return 0, err
	}
	if len(names) <= keep {
		return 0, nil
	}
	removed := 0
	for _, name := range names[keep:] {
		if err := os.Remove(filepath.Join(w.Dir, name)); err != nil {
			return removed, fmt.Errorf("remove old backup: %w", err)
		}
		removed++
	}
	return removed, nil
}

// ReadBackup decodes a backup file.
func ReadBackup(path string) (*Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read backup: %w", err)
	}
	var b Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("decode backup: %w", err)
	}
	return &b, nil
}
