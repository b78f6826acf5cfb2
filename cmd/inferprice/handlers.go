package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"
	"unicode/utf8"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/haasonsaas/inferprice/internal/config"
	"github.com/haasonsaas/inferprice/internal/export"
	"github.com/haasonsaas/inferprice/internal/format"
	"github.com/haasonsaas/inferprice/internal/listing"
	"github.com/haasonsaas/inferprice/internal/markdown"
	"github.com/haasonsaas/inferprice/internal/normalize"
	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/ratelimit"
	"github.com/haasonsaas/inferprice/internal/storage"
	"github.com/haasonsaas/inferprice/internal/usage"
	"github.com/haasonsaas/inferprice/internal/web"
	"github.com/haasonsaas/inferprice/pkg/models"
)

// minModelColumn is the narrowest the model column shrinks to on a terminal.
const minModelColumn = 16

func commandContext(cmd *cobra.Command) context.Context {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return observability.AddCommand(ctx, cmd.Name())
}

// =============================================================================
// Serve Command Handler
// =============================================================================

// runServe starts the HTTP API and blocks until SIGINT/SIGTERM.
func runServe(cmd *cobra.Command, addr string) error {
	ctx, stop := signal.NotifyContext(commandContext(cmd), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	a, err := newApp(ctx, appOptions{registry: registry})
	if err != nil {
		return err
	}
	defer a.Close(context.Background())

	if addr == "" {
		addr = a.cfg.Server.Addr()
	}
	a.logger.InfoContext(ctx, "starting inferprice",
		"version", version,
		"commit", commit,
		"addr", addr,
		"storage", a.cfg.Storage.Driver,
	)

	if _, err := a.loader.Graph(ctx); err != nil {
		a.logger.WarnContext(ctx, "initial pricing load failed", "error", err)
	}

	if expr := a.cfg.Source.Refresh; expr != "" {
		stopSchedule, err := a.loader.Schedule(ctx, expr)
		if err != nil {
			return err
		}
		defer stopSchedule()
	}
	if a.cfg.Storage.Watch && a.files != nil {
		if err := a.loader.Watch(ctx, a.files.Dir(), a.files.Paths(), 0); err != nil {
			return fmt.Errorf("watch %s: %w", a.files.Dir(), err)
		}
	}

	sample := usage.DefaultSample()
	if s := a.cfg.Server.SampleInput; s != "" {
		sample.Input = s
	}
	if s := a.cfg.Server.SampleOutput; s != "" {
		sample.Output = s
	}

	handler := web.NewHandler(&web.Config{
		Graphs:         a.loader,
		Sample:         &sample,
		AllowedOrigins: a.cfg.Server.AllowedOrigins,
		RateLimit:      ratelimit.New(a.cfg.Server.RateLimit),
		Gatherer:       registry,
		Metrics:        a.metrics,
		Tracer:         a.tracer,
		Logger:         a.logger,
	})
	server := &http.Server{
		Addr:              addr,
		Handler:           handler.Mount(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()
	a.logger.InfoContext(ctx, "http server listening", "addr", addr)

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}

	a.logger.Info("shutdown signal received, initiating graceful shutdown")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown failed: %w", err)
	}
	a.logger.Info("shutdown complete")
	return nil
}

// =============================================================================
// Fetch Command Handler
// =============================================================================

func runFetch(cmd *cobra.Command, opts fetchOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, appOptions{input: opts.input, persist: true})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	res, err := a.loader.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("fetch failed: %w", err)
	}

	if opts.json {
		return writeJSON(out, map[string]any{
			"source":   res.Source,
			"models":   len(res.Graph.Models),
			"duration": res.Duration.String(),
			"fallback": res.Fallback,
			"report":   res.Report,
		})
	}

	fmt.Fprintf(out, "Fetched %d models from %s in %s\n", len(res.Graph.Models), res.Source, format.Elapsed(res.Duration))
	if res.Fallback {
		fmt.Fprintln(out, "Upstream unavailable: serving the built-in fallback listing.")
		return nil
	}
	if res.Report == nil {
		return nil
	}

	r := res.Report
	fmt.Fprintf(out, "Payload shape: %s", r.Shape)
	if r.Path != "" {
		fmt.Fprintf(out, " (%s)", r.Path)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out)

	t := &markdown.Table{
		Headers: []string{"Outcome", "Records"},
		Align:   []markdown.Align{markdown.AlignLeft, markdown.AlignRight},
	}
	for _, row := range []struct {
		name string
		n    int
	}{
		{"records", r.Records},
		{"accepted", r.Accepted},
		{"filtered", r.Filtered},
		{"superseded", r.Superseded},
		{"hidden", r.Hidden},
		{"orphaned", r.Orphaned},
		{"failed", r.Failed},
	} {
		t.AddRow(row.name, strconv.Itoa(row.n))
	}
	if err := markdown.Render(out, t, markdown.TableModeText); err != nil {
		return err
	}

	if len(r.Anomalies) > 0 {
		fmt.Fprintf(out, "\nPrice anomalies (%d):\n", len(r.Anomalies))
		for _, an := range r.Anomalies {
			fmt.Fprintf(out, "  - %s\n", an)
		}
	}
	return nil
}

// =============================================================================
// List Command Handler
// =============================================================================

func (o filterOptions) query() (listing.Query, error) {
	bucket, ok := listing.ParseBucket(o.context)
	if !ok {
		return listing.Query{}, fmt.Errorf("unknown context bucket %q", o.context)
	}
	q := listing.Query{
		Categories: o.categories,
		Vendors:    o.vendors,
		Context:    bucket,
		Direction:  listing.Asc,
	}
	if o.desc {
		q.Direction = listing.Desc
	}
	if o.sort != "" {
		q.Sort = listing.SortKey(o.sort)
		if !q.Sort.Valid() {
			return listing.Query{}, fmt.Errorf("unknown sort key %q", o.sort)
		}
	}
	return q, nil
}

func checkMultiplier(n int) error {
	if n < 1 || n > usage.MaxMultiplier {
		return fmt.Errorf("multiplier must be between 1 and %d, got %d", usage.MaxMultiplier, n)
	}
	return nil
}

func runList(cmd *cobra.Command, opts listOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if !markdown.IsValidTableMode(opts.format) {
		return fmt.Errorf("unknown table format %q", opts.format)
	}
	if err := checkMultiplier(opts.multiplier); err != nil {
		return err
	}
	q, err := opts.query()
	if err != nil {
		return err
	}

	sample := usage.DefaultSample()
	if opts.inputText != "" || opts.outputText != "" {
		sample = usage.Sample{Input: opts.inputText, Output: opts.outputText}
	}
	sample = sample.Scaled(opts.multiplier)
	q.Sample = &sample

	a, err := newApp(ctx, appOptions{input: opts.input})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	g, err := a.graph(ctx)
	if err != nil {
		return err
	}

	rows := listing.Rows(q.Apply(g.Models), sample)
	t := &markdown.Table{
		Headers: []string{"Model", "Vendor", "Category", "Params", "Context", "Input $/M", "Output $/M", "Sample cost"},
		Align: []markdown.Align{
			markdown.AlignLeft, markdown.AlignLeft, markdown.AlignLeft,
			markdown.AlignRight, markdown.AlignRight, markdown.AlignRight, markdown.AlignRight, markdown.AlignRight,
		},
	}
	for _, r := range rows {
		t.AddRow(r.DisplayName, r.Vendor, r.Category, r.Parameters, r.ContextWindow, r.InputPrice, r.OutputPrice, r.TotalCost)
	}

	mode := markdown.ParseTableMode(opts.format, markdown.TableModeText)
	if mode == markdown.TableModeText {
		fitToTerminal(out, t)
	}
	if err := markdown.Render(out, t, mode); err != nil {
		return err
	}
	if mode == markdown.TableModeText {
		fmt.Fprintf(out, "\n%d of %d models\n", len(rows), len(g.Models))
	}
	return nil
}

// fitToTerminal truncates the first column so text tables fit the width of
// an interactive terminal. Other writers are left alone.
func fitToTerminal(w io.Writer, t *markdown.Table) {
	f, ok := w.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil || width <= 0 {
		return
	}
	over := t.Width() - width
	if over <= 0 {
		return
	}
	col := utf8.RuneCountInString(t.Headers[0])
	for _, row := range t.Rows {
		col = max(col, utf8.RuneCountInString(row[0]))
	}
	t.Truncate(0, max(col-over, minModelColumn))
}

// =============================================================================
// Estimate Command Handler
// =============================================================================

type modelEstimate struct {
	ID          int      `json:"id"`
	SystemName  string   `json:"systemName"`
	DisplayName string   `json:"displayName"`
	Vendor      string   `json:"vendor,omitempty"`
	InputCost   *float64 `json:"inputCost"`
	OutputCost  *float64 `json:"outputCost"`
	TotalCost   *float64 `json:"totalCost"`
}

type estimateResult struct {
	Input  usage.Estimate  `json:"input"`
	Output usage.Estimate  `json:"output"`
	Models []modelEstimate `json:"models"`
}

func runEstimate(cmd *cobra.Command, opts estimateOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if err := checkMultiplier(opts.multiplier); err != nil {
		return err
	}
	input, err := readText(cmd, opts.text, opts.file, true)
	if err != nil {
		return err
	}
	output, err := readText(cmd, opts.outputText, opts.outputFile, false)
	if err != nil {
		return err
	}

	sample := usage.Sample{Input: input, Output: output}
	if input == "" && output == "" {
		sample = usage.DefaultSample()
	}
	sample = sample.Scaled(opts.multiplier)

	a, err := newApp(ctx, appOptions{input: opts.input})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	g, err := a.graph(ctx)
	if err != nil {
		return err
	}

	targets := listing.FilterModels(g.Models, nil, nil)
	if opts.model != "" {
		m, err := findModel(g, opts.model)
		if err != nil {
			return err
		}
		targets = []*models.Model{m}
	}

	res := estimateResult{
		Input:  usage.EstimateTokens(sample.Input),
		Output: usage.EstimateTokens(sample.Output),
		Models: make([]modelEstimate, 0, len(targets)),
	}
	for _, m := range targets {
		cost := sample.Cost(m.Pricing.InputPrice(), m.Pricing.OutputPrice())
		e := modelEstimate{
			ID:          m.ID,
			SystemName:  m.SystemName,
			DisplayName: m.DisplayName,
			InputCost:   cost.Input,
			OutputCost:  cost.Output,
			TotalCost:   cost.Total,
		}
		if m.Vendor != nil {
			e.Vendor = m.Vendor.Name
		}
		res.Models = append(res.Models, e)
	}

	if opts.json {
		return writeJSON(out, res)
	}

	printEstimate(out, "Input", res.Input)
	printEstimate(out, "Output", res.Output)
	fmt.Fprintln(out)

	t := &markdown.Table{
		Headers: []string{"Model", "Vendor", "Input cost", "Output cost", "Total"},
		Align:   []markdown.Align{markdown.AlignLeft, markdown.AlignLeft, markdown.AlignRight, markdown.AlignRight, markdown.AlignRight},
	}
	for _, e := range res.Models {
		t.AddRow(e.DisplayName, e.Vendor, usage.FormatCost(e.InputCost), usage.FormatCost(e.OutputCost), usage.FormatCost(e.TotalCost))
	}
	fitToTerminal(out, t)
	return markdown.Render(out, t, markdown.TableModeText)
}

func printEstimate(w io.Writer, label string, e usage.Estimate) {
	fmt.Fprintf(w, "%-7s %d tokens (%d words, %d special, %d digits, %d chars",
		label+":", e.Tokens, e.Words, e.SpecialChars, e.Digits, e.Characters)
	if e.Multiplier > 1 {
		fmt.Fprintf(w, ", x%d", e.Multiplier)
	}
	fmt.Fprintln(w, ")")
}

// readText returns text, the contents of file, or piped stdin when allowed.
func readText(cmd *cobra.Command, text, file string, stdin bool) (string, error) {
	if text != "" && file != "" {
		return "", errors.New("use either a text flag or a file flag, not both")
	}
	if text != "" {
		return text, nil
	}
	if file != "" {
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read %s: %w", file, err)
		}
		return string(data), nil
	}
	if !stdin {
		return "", nil
	}
	in := cmd.InOrStdin()
	if f, ok := in.(*os.File); ok {
		info, err := f.Stat()
		if err != nil || term.IsTerminal(int(f.Fd())) || info.Mode()&os.ModeCharDevice != 0 {
			return "", nil
		}
	}
	data, err := io.ReadAll(in)
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}
	return strings.TrimRight(string(data), "\r\n"), nil
}

// findModel resolves a numeric id, system name or display name.
func findModel(g *models.Graph, ref string) (*models.Model, error) {
	ref = strings.TrimSpace(ref)
	if id, err := strconv.Atoi(ref); err == nil {
		if m, ok := g.ModelByID(id); ok {
			return m, nil
		}
		return nil, fmt.Errorf("model %d not found", id)
	}
	for _, m := range g.Models {
		if strings.EqualFold(m.SystemName, ref) {
			return m, nil
		}
	}
	for _, m := range g.Models {
		if strings.EqualFold(m.DisplayName, ref) {
			return m, nil
		}
	}
	return nil, fmt.Errorf("model %q not found", ref)
}

// =============================================================================
// Export Command Handler
// =============================================================================

func runExport(cmd *cobra.Command, opts exportOptions) error {
	ctx := commandContext(cmd)

	f, err := export.ParseFormat(opts.format)
	if err != nil {
		return err
	}
	q, err := opts.query()
	if err != nil {
		return err
	}

	a, err := newApp(ctx, appOptions{input: opts.input})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	g, err := a.graph(ctx)
	if err != nil {
		return err
	}
	rows := export.PrepareRows(q.Apply(g.Models))

	if opts.output == "" || opts.output == "-" {
		return export.Write(cmd.OutOrStdout(), f, rows)
	}

	file, err := os.Create(opts.output)
	if err != nil {
		return fmt.Errorf("create %s: %w", opts.output, err)
	}
	if err := export.Write(file, f, rows); err != nil {
		_ = file.Close()
		return fmt.Errorf("write %s: %w", opts.output, err)
	}
	if err := file.Close(); err != nil {
		return fmt.Errorf("close %s: %w", opts.output, err)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Exported %d models to %s\n", len(rows), opts.output)
	return nil
}

// =============================================================================
// Validate Command Handler
// =============================================================================

func runValidate(cmd *cobra.Command, opts validateOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if opts.dir != "" && opts.input != "" {
		return errors.New("use either --dir or --input, not both")
	}

	a, err := newApp(ctx, appOptions{input: opts.input, memory: opts.dir != ""})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	var g *models.Graph
	if opts.dir != "" {
		g, err = loadDir(ctx, out, opts.dir)
	} else {
		g, err = a.graph(ctx)
	}
	if err != nil {
		return err
	}

	issues := normalize.ValidateGraph(g, a.rules)
	errorCount := 0
	for _, i := range issues {
		if i.Severity == normalize.SeverityError {
			errorCount++
		}
	}

	if opts.json {
		if issues == nil {
			issues = []normalize.Issue{}
		}
		if err := writeJSON(out, issues); err != nil {
			return err
		}
	} else {
		for _, i := range issues {
			fmt.Fprintln(out, i)
		}
		fmt.Fprintf(out, "%d models, %d categories, %d vendors: %d errors, %d warnings\n",
			len(g.Models), len(g.Categories), len(g.Vendors), errorCount, len(issues)-errorCount)
	}

	if normalize.HasErrors(issues) {
		return fmt.Errorf("graph has %d integrity error(s)", errorCount)
	}
	return nil
}

// loadDir schema-checks the canonical files in dir and loads them.
func loadDir(ctx context.Context, out io.Writer, dir string) (*models.Graph, error) {
	failed := 0
	for _, name := range []string{storage.ModelsFile, storage.CategoriesFile, storage.VendorsFile} {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", name, err)
		}
		if err := storage.ValidateFile(name, data); err != nil {
			fmt.Fprintf(out, "error: %s: %v\n", name, err)
			failed++
		}
	}
	if failed > 0 {
		return nil, fmt.Errorf("%d file(s) failed schema validation", failed)
	}

	fs, err := storage.NewFileStore(dir)
	if err != nil {
		return nil, err
	}
	defer fs.Close()
	return fs.Load(ctx)
}

// =============================================================================
// Backup Command Handler
// =============================================================================

func runBackup(cmd *cobra.Command, opts backupOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	b := &storage.Backupper{Dir: a.cfg.Backup.Dir, Keep: a.cfg.Backup.Keep}
	if opts.dir != "" {
		b.Dir = opts.dir
	}

	if opts.list {
		files, err := b.List()
		if err != nil {
			return err
		}
		if len(files) == 0 {
			fmt.Fprintf(out, "No backups in %s\n", b.Dir)
			return nil
		}
		for _, f := range files {
			fmt.Fprintln(out, f)
		}
		return nil
	}

	g, err := a.graph(ctx)
	if err != nil {
		return err
	}
	backup, err := storage.NewBackup(g, time.Now())
	if err != nil {
		return fmt.Errorf("build backup: %w", err)
	}

	if h, ok := storage.AsHistory(a.store); ok && opts.historyLimit > 0 {
		for _, m := range g.Models {
			if m.Pricing == nil {
				continue
			}
			points, err := h.PriceHistory(ctx, m.ID, opts.historyLimit)
			if err != nil {
				return fmt.Errorf("price history of %s: %w", m.SystemName, err)
			}
			backup.AddHistory(m.SystemName, points)
		}
	}

	if s3 := a.cfg.Backup.S3; s3.Enabled() {
		up, err := storage.NewS3Uploader(ctx, storage.S3Config{
			Bucket:          s3.Bucket,
			Prefix:          s3.Prefix,
			Region:          s3.Region,
			Endpoint:        s3.Endpoint,
			UsePathStyle:    s3.UsePathStyle,
			AccessKeyID:     s3.AccessKeyID,
			SecretAccessKey: s3.SecretAccessKey,
		})
		if err != nil {
			return fmt.Errorf("configure s3 upload: %w", err)
		}
		b.Uploader = up
	}

	res, err := b.Write(ctx, backup)
	if err != nil {
		if res != nil && res.Path != "" {
			fmt.Fprintf(out, "Backup written to %s but not uploaded\n", res.Path)
		}
		return err
	}

	fmt.Fprintf(out, "Backup %s written to %s (%d prices, %d history points)\n", res.ID, res.Path, res.Entries, res.History)
	if res.URI != "" {
		fmt.Fprintf(out, "Uploaded to %s\n", res.URI)
	}
	if res.Removed > 0 {
		fmt.Fprintf(out, "Removed %d old backup(s)\n", res.Removed)
	}
	return nil
}

// =============================================================================
// History Command Handler
// =============================================================================

func runHistory(cmd *cobra.Command, ref string, opts historyOptions) error {
	ctx := commandContext(cmd)
	out := cmd.OutOrStdout()

	if !markdown.IsValidTableMode(opts.format) {
		return fmt.Errorf("unknown table format %q", opts.format)
	}

	a, err := newApp(ctx, appOptions{})
	if err != nil {
		return err
	}
	defer a.Close(ctx)

	h, ok := storage.AsHistory(a.store)
	if !ok {
		return fmt.Errorf("storage driver %q does not record price history", a.cfg.Storage.Driver)
	}

	g, err := a.graph(ctx)
	if err != nil {
		return err
	}
	m, err := findModel(g, ref)
	if err != nil {
		return err
	}

	points, err := h.PriceHistory(ctx, m.ID, opts.limit)
	if err != nil {
		return err
	}
	if len(points) == 0 {
		fmt.Fprintf(out, "No price history for %s\n", m.SystemName)
		return nil
	}

	t := &markdown.Table{
		Headers: []string{"Recorded", "Input $/M", "Output $/M", "Snapshot"},
		Align:   []markdown.Align{markdown.AlignLeft, markdown.AlignRight, markdown.AlignRight, markdown.AlignLeft},
	}
	for _, p := range points {
		t.AddRow(
			p.RecordedAt.UTC().Format(time.RFC3339),
			usage.FormatPrice(&p.InputText),
			usage.FormatPrice(&p.OutputText),
			p.SnapshotID,
		)
	}
	fmt.Fprintf(out, "%s (%s)\n\n", m.DisplayName, m.SystemName)
	return markdown.Render(out, t, markdown.ParseTableMode(opts.format, markdown.TableModeText))
}

// =============================================================================
// Config Command Handlers
// =============================================================================

func runConfigSchema(cmd *cobra.Command, file string) error {
	var (
		schema []byte
		err    error
	)
	if file != "" {
		schema, err = storage.FileSchema(file)
	} else {
		schema, err = config.JSONSchema()
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if _, err := out.Write(schema); err != nil {
		return err
	}
	_, err = fmt.Fprintln(out)
	return err
}

func runConfigValidate(cmd *cobra.Command) error {
	path, _ := resolveConfigPath()
	cfg, err := config.Load(path)
	if err != nil {
		var verr *config.ConfigValidationError
		if errors.As(err, &verr) {
			for _, issue := range verr.Issues {
				fmt.Fprintf(cmd.ErrOrStderr(), "  - %s\n", issue)
			}
		}
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s: OK (storage=%s, port=%d)\n", path, cfg.Storage.Driver, cfg.Server.Port)
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
