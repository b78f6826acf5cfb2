package storage

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/haasonsaas/inferprice/pkg/models"
)

// SQLStore keeps the graph in relational tables. Every Save replaces the
// current rows and appends the saved prices to pricing_history.
type SQLStore struct {
	db     *sql.DB
	driver string
	now    func() time.Time
}

// NewSQLStore wraps an open database. driver selects the SQL dialect and
// is DriverPostgres or DriverSQLite.
func NewSQLStore(db *sql.DB, driver string) *SQLStore {
	return &SQLStore{db: db, driver: driver, now: time.Now}
}

// OpenPostgres connects to Postgres, applies pool settings and creates the
// schema.
func OpenPostgres(ctx context.Context, dsn string, pool *PoolConfig) (*SQLStore, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, fmt.Errorf("dsn is required")
	}
	pool = pool.withDefaults()

	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(pool.MaxOpenConns)
	db.SetMaxIdleConns(pool.MaxIdleConns)
	db.SetConnMaxLifetime(pool.ConnMaxLifetime)
	db.SetConnMaxIdleTime(pool.ConnMaxIdleTime)

	pingCtx, cancel := context.WithTimeout(ctx, pool.ConnectTimeout)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	store := NewSQLStore(db, DriverPostgres)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// OpenSQLite opens (or creates) a SQLite database at path and creates the
// schema. A single connection is used so ":memory:" databases persist for
// the life of the store.
func OpenSQLite(ctx context.Context, path string) (*SQLStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := NewSQLStore(db, DriverSQLite)
	if err := store.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

// Migrate creates missing tables and indexes.
func (s *SQLStore) Migrate(ctx context.Context) error {
	for _, stmt := range schemaStatements(s.driver) {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("create schema: %w", err)
		}
	}
	return nil
}

// Driver returns the SQL dialect of the store.
func (s *SQLStore) Driver() string {
	return s.driver
}

func (s *SQLStore) Close() error {
	return s.db.Close()
}

// rebind rewrites ? placeholders into the $n form Postgres expects.
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func (s *SQLStore) Save(ctx context.Context, g *models.Graph) (err error) {
	if err := checkSave(g); err != nil {
		return err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin save: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	exec := func(what, query string, args ...any) error {
		if _, err := tx.ExecContext(ctx, s.rebind(query), args...); err != nil {
			return fmt.Errorf("%s: %w", what, err)
		}
		return nil
	}

	for _, table := range []string{"pricing", "models", "categories", "vendors"} {
		if err = exec("clear "+table, "DELETE FROM "+table); err != nil {
			return err
		}
	}

	for i, v := range g.Vendors {
		if err = exec("insert vendor",
			`INSERT INTO vendors (id, position, name, pricing_url, models_list_url) VALUES (?,?,?,?,?)`,
			v.ID, i, v.Name, v.PricingURL, v.ModelsListURL,
		); err != nil {
			return err
		}
	}

	for i, c := range g.Categories {
		if err = exec("insert category",
			`INSERT INTO categories (id, position, name, description, use_case) VALUES (?,?,?,?,?)`,
			c.ID, i, c.Name, c.Description, c.UseCase,
		); err != nil {
			return err
		}
	}

	for i, m := range g.Models {
		if err = exec("insert model",
			`INSERT INTO models (id, position, system_name, display_name, category_id, vendor_id, host,
			 capability_tier, modality, parameters_b, context_window, token_limit, precision_format,
			 description, release_date, is_open_source, is_hidden)
			 VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
			m.ID, i, m.SystemName, m.DisplayName, m.CategoryID, m.VendorID, m.Host,
			string(m.CapabilityTier), m.Modality, nullable(m.ParametersB), nullable(m.ContextWindow),
			nullable(m.TokenLimit), m.Precision, m.Description, m.ReleaseDate, m.IsOpenSource, m.IsHidden,
		); err != nil {
			return err
		}
	}

	for _, m := range g.Models {
		p := m.Pricing
		if p == nil {
			continue
		}
		if err = exec("insert pricing",
			`INSERT INTO pricing (id, model_id, input_text, output_text, finetuning_input,
			 finetuning_output, training_cost, flags) VALUES (?,?,?,?,?,?,?,?)`,
			p.ID, m.ID, p.InputText, p.OutputText, nullable(p.FinetuningInput),
			nullable(p.FinetuningOutput), nullable(p.TrainingCost), strings.Join(p.Flags, ","),
		); err != nil {
			return err
		}
	}

	snapshot := uuid.NewString()
	recordedAt := s.now().UTC()
	for _, m := range g.Models {
		if m.Pricing == nil {
			continue
		}
		if err = exec("insert pricing history",
			`INSERT INTO pricing_history (snapshot_id, model_id, input_text, output_text, recorded_at)
			 VALUES (?,?,?,?,?)`,
			snapshot, m.ID, m.Pricing.InputText, m.Pricing.OutputText, recordedAt,
		); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return fmt.Errorf("commit save: %w", err)
	}
	return nil
}

func (s *SQLStore) Load(ctx context.Context) (*models.Graph, error) {
	g := &models.Graph{}

	vendors, err := s.db.QueryContext(ctx,
		`SELECT id, name, pricing_url, models_list_url FROM vendors ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load vendors: %w", err)
	}
	defer vendors.Close()
	for vendors.Next() {
		var v models.Vendor
		if err := vendors.Scan(&v.ID, &v.Name, &v.PricingURL, &v.ModelsListURL); err != nil {
			return nil, fmt.Errorf("scan vendor: %w", err)
		}
		g.Vendors = append(g.Vendors, &v)
	}
	if err := vendors.Err(); err != nil {
		return nil, fmt.Errorf("load vendors: %w", err)
	}

	categories, err := s.db.QueryContext(ctx,
		`SELECT id, name, description, use_case FROM categories ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}
	defer categories.Close()
	for categories.Next() {
		var c models.Category
		if err := categories.Scan(&c.ID, &c.Name, &c.Description, &c.UseCase); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		g.Categories = append(g.Categories, &c)
	}
	if err := categories.Err(); err != nil {
		return nil, fmt.Errorf("load categories: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, system_name, display_name, category_id, vendor_id, host, capability_tier, modality,
		 parameters_b, context_window, token_limit, precision_format, description, release_date,
		 is_open_source, is_hidden
		 FROM models ORDER BY position, id`)
	if err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}
	defer rows.Close()
	byID := make(map[int]*models.Model)
	for rows.Next() {
		var m models.Model
		var tier string
		var params sql.NullFloat64
		var contextWindow, tokenLimit sql.NullInt64
		if err := rows.Scan(
			&m.ID,
			&m.SystemName,
			&m.DisplayName,
			&m.CategoryID,
			&m.VendorID,
			&m.Host,
			&tier,
			&m.Modality,
			&params,
			&contextWindow,
			&tokenLimit,
			&m.Precision,
			&m.Description,
			&m.ReleaseDate,
			&m.IsOpenSource,
			&m.IsHidden,
		); err != nil {
			return nil, fmt.Errorf("scan model: %w", err)
		}
		m.CapabilityTier = models.CapabilityTier(tier)
		m.ParametersB = floatPtr(params)
		m.ContextWindow = intPtr(contextWindow)
		m.TokenLimit = intPtr(tokenLimit)
		g.Models = append(g.Models, &m)
		byID[m.ID] = &m
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load models: %w", err)
	}

	pricing, err := s.db.QueryContext(ctx,
		`SELECT id, model_id, input_text, output_text, finetuning_input, finetuning_output,
		 training_cost, flags FROM pricing ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}
	defer pricing.Close()
	for pricing.Next() {
		var p models.Pricing
		var ftIn, ftOut, training sql.NullFloat64
		var flags string
		if err := pricing.Scan(&p.ID, &p.ModelID, &p.InputText, &p.OutputText, &ftIn, &ftOut, &training, &flags); err != nil {
			return nil, fmt.Errorf("scan pricing: %w", err)
		}
		p.FinetuningInput = floatPtr(ftIn)
		p.FinetuningOutput = floatPtr(ftOut)
		p.TrainingCost = floatPtr(training)
		if flags != "" {
			p.Flags = strings.Split(flags, ",")
		}
		if m, ok := byID[p.ModelID]; ok {
			m.Pricing = &p
		}
	}
	if err := pricing.Err(); err != nil {
		return nil, fmt.Errorf("load pricing: %w", err)
	}

	if g.Empty() {
		return nil, ErrNotFound
	}
	g.Link()
	return g, nil
}

// PriceHistory returns up to limit recorded prices of a model, newest
// first. A non-positive limit returns every point.
func (s *SQLStore) PriceHistory(ctx context.Context, modelID, limit int) ([]PricePoint, error) {
	query := `SELECT model_id, snapshot_id, input_text, output_text, recorded_at
		FROM pricing_history WHERE model_id = ? ORDER BY recorded_at DESC, id DESC`
	args := []any{modelID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var p PricePoint
		if err := rows.Scan(&p.ModelID, &p.SnapshotID, &p.InputText, &p.OutputText, &p.RecordedAt); err != nil {
			return nil, fmt.Errorf("scan price history: %w", err)
		}
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("query price history: %w", err)
	}
	return points, nil
}

// nullable turns a nil pointer into a SQL NULL argument.
func nullable[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatPtr(v sql.NullFloat64) *float64 {
	if !v.Valid {
		return nil
	}
	f := v.Float64
	return &f
}

func intPtr(v sql.NullInt64) *int {
	if !v.Valid {
		return nil
	}
	n := int(v.Int64)
	return &n
}
