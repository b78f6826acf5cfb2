package loader

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"github.com/haasonsaas/inferprice/internal/normalize"
	"github.com/haasonsaas/inferprice/internal/observability"
	"github.com/haasonsaas/inferprice/internal/storage"
	"github.com/haasonsaas/inferprice/pkg/models"
)

const (
	onePayload = `[{"id":"anthropic/claude-3-opus","name":"Claude 3 Opus","pricing":{"prompt":0.000015,"completion":0.000075}}]`
	twoPayload = `[
		{"id":"anthropic/claude-3-opus","name":"Claude 3 Opus","pricing":{"prompt":0.000015,"completion":0.000075}},
		{"id":"anthropic/claude-3-haiku","name":"Claude 3 Haiku","pricing":{"prompt":0.00000025,"completion":0.00000125}}
	]`
)

type fakeSource struct {
	mu      sync.Mutex
	payload string
	err     error
	delay   time.Duration
	calls   atomic.Int32
}

func (s *fakeSource) Name() string { return "fake" }

func (s *fakeSource) Fetch(ctx context.Context) ([]byte, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return nil, s.err
	}
	return []byte(s.payload), nil
}

func (s *fakeSource) set(payload string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.payload, s.err = payload, err
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestLoader(opts Options) (*Loader, *fakeClock) {
	if opts.Logger == nil {
		opts.Logger = quietLogger()
	}
	l := New(opts)
	clock := &fakeClock{now: time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)}
	l.now = clock.Now
	return l, clock
}

func normalizedGraph(t *testing.T, payload string) *models.Graph {
	t.Helper()
	g, _, err := normalize.New(normalize.Options{Logger: quietLogger()}).NormalizeJSON(context.Background(), []byte(payload))
	if err != nil {
		t.Fatalf("NormalizeJSON() error = %v", err)
	}
	return g
}

func TestLoader_GraphCachesUntilTTL(t *testing.T) {
	src := &fakeSource{payload: onePayload}
	l, clock := newTestLoader(Options{Source: src, CacheTTL: time.Hour})
	ctx := context.Background()

	g, err := l.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if len(g.Models) != 1 {
		t.Fatalf("models = %d, want 1", len(g.Models))
	}

	clock.Advance(30 * time.Minute)
	if _, err := l.Graph(ctx); err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetches within ttl = %d, want 1", got)
	}

	src.set(twoPayload, nil)
	clock.Advance(31 * time.Minute)
	g, err = l.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("fetches after ttl = %d, want 2", got)
	}
	if len(g.Models) != 2 {
		t.Errorf("models after refresh = %d, want 2", len(g.Models))
	}

	status := l.Status()
	if !status.Loaded || status.Source != "fake" || status.Models != 2 || status.Report == nil {
		t.Errorf("unexpected status: %+v", status)
	}
}

func TestLoader_ServesStaleGraphOnRefreshError(t *testing.T) {
	src := &fakeSource{payload: onePayload}
	l, clock := newTestLoader(Options{Source: src, CacheTTL: time.Minute})
	ctx := context.Background()

	first, err := l.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}

	src.set("", errors.New("upstream down"))
	clock.Advance(2 * time.Minute)

	got, err := l.Graph(ctx)
	if err != nil {
		t.Fatalf("Graph() with stale cache error = %v", err)
	}
	if got != first {
		t.Error("expected the stale snapshot to be served")
	}
	if _, err := l.Refresh(ctx); err == nil {
		t.Error("Refresh() should report the fetch error")
	}
}

func TestLoader_Fallback(t *testing.T) {
	fetchErr := errors.New("connection refused")

	t.Run("enabled", func(t *testing.T) {
		src := &fakeSource{err: fetchErr}
		l, _ := newTestLoader(Options{Source: src, Fallback: true})

		g, err := l.Graph(context.Background())
		if err != nil {
			t.Fatalf("Graph() error = %v", err)
		}
		if len(g.Models) != 0 || len(g.Vendors) != 1 || g.Vendors[0].Name != "Anthropic" {
			t.Errorf("unexpected fallback graph: %d models, vendors %+v", len(g.Models), g.Vendors)
		}
		if len(g.Categories) != 1 || g.Categories[0].Name != "General" {
			t.Errorf("unexpected fallback categories: %+v", g.Categories)
		}
		if !l.Status().Fallback {
			t.Error("status should report the fallback")
		}
	})

	t.Run("disabled", func(t *testing.T) {
		src := &fakeSource{err: fetchErr}
		l, _ := newTestLoader(Options{Source: src})

		if _, err := l.Graph(context.Background()); !errors.Is(err, fetchErr) {
			t.Errorf("Graph() error = %v, want %v", err, fetchErr)
		}
	})
}

func TestLoader_PrefersStoredGraph(t *testing.T) {
	store := storage.NewMemoryStore()
	if err := store.Save(context.Background(), normalizedGraph(t, twoPayload)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	src := &fakeSource{payload: onePayload}
	l, _ := newTestLoader(Options{Source: src, Store: store, CacheTTL: time.Hour})

	g, err := l.Graph(context.Background())
	if err != nil {
		t.Fatalf("Graph() error = %v", err)
	}
	if len(g.Models) != 2 {
		t.Errorf("models = %d, want the 2 stored models", len(g.Models))
	}
	if got := src.calls.Load(); got != 0 {
		t.Errorf("fetches = %d, want 0", got)
	}
	if got := l.Status().Source; got != SourceStore {
		t.Errorf("source = %q, want %q", got, SourceStore)
	}
}

func TestLoader_NoSource(t *testing.T) {
	l, _ := newTestLoader(Options{})

	if _, err := l.Graph(context.Background()); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Graph() error = %v, want ErrNotFound", err)
	}
	if _, err := l.Refresh(context.Background()); err == nil {
		t.Error("Refresh() without a source should fail")
	}
}

func TestLoader_RefreshSavesAndRecordsMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	store := storage.NewMemoryStore()
	src := &fakeSource{payload: twoPayload}
	l, _ := newTestLoader(Options{Source: src, Store: store, Metrics: metrics})

	res, err := l.Refresh(context.Background())
	if err != nil {
		t.Fatalf("Refresh() error = %v", err)
	}
	if res.Report == nil || res.Report.Accepted != 2 {
		t.Fatalf("unexpected report: %+v", res.Report)
	}

	stored, err := store.Load(context.Background())
	if err != nil {
		t.Fatalf("store Load() error = %v", err)
	}
	if len(stored.Models) != 2 {
		t.Errorf("stored models = %d, want 2", len(stored.Models))
	}

	if got := testutil.ToFloat64(metrics.Models); got != 2 {
		t.Errorf("models gauge = %v, want 2", got)
	}
	if got := testutil.ToFloat64(metrics.RecordsCounter.WithLabelValues("accepted")); got != 2 {
		t.Errorf("accepted records = %v, want 2", got)
	}
}

func TestLoader_RefreshRejectsBadPayload(t *testing.T) {
	src := &fakeSource{payload: `{"nothing":"here"}`}
	l, _ := newTestLoader(Options{Source: src})

	_, err := l.Refresh(context.Background())
	if !errors.Is(err, normalize.ErrNoModelArray) {
		t.Errorf("Refresh() error = %v, want ErrNoModelArray", err)
	}
	if l.Status().Loaded {
		t.Error("a failed refresh should not publish a snapshot")
	}
}

func TestLoader_RefreshCoalescesConcurrentCalls(t *testing.T) {
	src := &fakeSource{payload: onePayload, delay: 50 * time.Millisecond}
	l, _ := newTestLoader(Options{Source: src})

	var wg sync.WaitGroup
	results := make([]*Result, 8)
	for i := range results {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			res, err := l.Refresh(context.Background())
			if err != nil {
				t.Errorf("Refresh() error = %v", err)
				return
			}
			results[idx] = res
		}(i)
	}
	wg.Wait()

	if got := src.calls.Load(); got != 1 {
		t.Errorf("fetches = %d, want 1", got)
	}
	for i, res := range results {
		if res != results[0] {
			t.Errorf("results[%d] differs from results[0]", i)
		}
	}
}

func TestFlight_SequentialCallsRunAgain(t *testing.T) {
	var f flight[int]
	var calls int
	for i := 0; i < 3; i++ {
		val, err, shared := f.do(func() (int, error) {
			calls++
			return calls, nil
		})
		if err != nil || shared || val != i+1 {
			t.Errorf("call %d = (%d, %v, %v)", i, val, err, shared)
		}
	}
}

func TestLoader_Schedule(t *testing.T) {
	l, _ := newTestLoader(Options{Source: &fakeSource{payload: onePayload}})

	if _, err := l.Schedule(context.Background(), ""); err == nil {
		t.Error("empty schedule should fail")
	}
	if _, err := l.Schedule(context.Background(), "every tuesday"); err == nil {
		t.Error("invalid schedule should fail")
	}

	stop, err := l.Schedule(context.Background(), "@every 1h")
	if err != nil {
		t.Fatalf("Schedule() error = %v", err)
	}
	stop()
}

func TestLoader_WatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	fs, err := storage.NewFileStore(dir)
	if err != nil {
		t.Fatalf("NewFileStore() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := fs.Save(ctx, normalizedGraph(t, onePayload)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	l := New(Options{Store: fs, Logger: quietLogger()})
	if _, err := l.Load(ctx); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if err := l.Watch(ctx, dir, fs.Paths(), 20*time.Millisecond); err != nil {
		t.Fatalf("Watch() error = %v", err)
	}

	if err := fs.Save(ctx, normalizedGraph(t, twoPayload)); err != nil {
		t.Fatalf("Save() error = %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if l.Status().Models == 2 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("graph not reloaded, status = %+v", l.Status())
}

func TestLoader_WatchMissingDir(t *testing.T) {
	l := New(Options{Logger: quietLogger()})
	if err := l.Watch(context.Background(), "/does/not/exist", nil, 0); err == nil {
		t.Error("watching a missing directory should fail")
	}
}
