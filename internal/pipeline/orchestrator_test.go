package pipeline

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"

	"github.com/ajitpratap0/shopsync/pkg/config"
	"github.com/ajitpratap0/shopsync/pkg/connector/core"
	"github.com/ajitpratap0/shopsync/pkg/connector/destinations/memory"
	"github.com/ajitpratap0/shopsync/pkg/connector/sources/shopify"
	"github.com/ajitpratap0/shopsync/pkg/errors"
	"github.com/ajitpratap0/shopsync/pkg/json"
)

type call struct {
	name   string
	window shopify.Window
}

// fakeExtractor returns one row per resource unless a failure is scripted
type fakeExtractor struct {
	mu    sync.Mutex
	calls []call
	// fail returns the error for a call, or nil
	fail func(name string, w shopify.Window) error
}

func (f *fakeExtractor) Extract(_ context.Context, name string, w shopify.Window) (*shopify.Extraction, error) {
	f.mu.Lock()
	f.calls = append(f.calls, call{name: name, window: w})
	f.mu.Unlock()
	if f.fail != nil {
		if err := f.fail(name, w); err != nil {
			return nil, err
		}
	}
	return extraction(name, 1), nil
}

func (f *fakeExtractor) names() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, len(f.calls))
	for i, c := range f.calls {
		out[i] = c.name
	}
	return out
}

var (
	coreNames         = []string{"orders", "products", "customers"}
	supplementalNames = shopify.SupplementalSequence(false, false)
)

func TestRunFullIsolatesFailures(t *testing.T) {
	src := &fakeExtractor{fail: func(name string, _ shopify.Window) error {
		if name == "pages" {
			return errors.New(errors.ErrorTypeGraphQL, "pages: Access denied for pages field")
		}
		return nil
	}}
	dest := memory.New()
	orch := NewOrchestrator(src, NewLoader(dest, zaptest.NewLogger(t)), Options{}, zaptest.NewLogger(t))

	start := time.Date(2025, 10, 10, 0, 0, 0, 0, time.UTC)
	report := orch.RunFull(context.Background(), nil, start)

	assert.Equal(t, append(append([]string{}, coreNames...), supplementalNames...), src.names())
	for _, c := range src.calls[:3] {
		assert.Equal(t, start, c.window.UpdatedAtMin)
		assert.True(t, c.window.UpdatedAtMax.IsZero())
	}

	ok, failed, skipped := report.Counts()
	assert.Equal(t, len(src.calls)-1, ok)
	assert.Equal(t, 1, failed)
	assert.Zero(t, skipped)
	assert.True(t, report.Failed())
	assert.NotEmpty(t, report.RunID)
	assert.Equal(t, "memory", report.Destination)

	assert.False(t, dest.Has("pages"))
	for _, s := range dest.Submissions() {
		assert.Equal(t, core.WriteReplace, s.Mode, s.Table.Name)
	}
}

func TestRunFullCoreFailureDoesNotStopSupplemental(t *testing.T) {
	src := &fakeExtractor{fail: func(name string, _ shopify.Window) error {
		if name == "orders" {
			return errors.New(errors.ErrorTypeHTTPStatus, "orders: HTTP 500")
		}
		return nil
	}}
	orch := NewOrchestrator(src, NewLoader(memory.New(), zap.NewNop()), Options{}, zap.NewNop())

	report := orch.RunFull(context.Background(), []string{"orders"}, time.Now())

	assert.Equal(t, append([]string{"orders"}, supplementalNames...), src.names())
	assert.Equal(t, OutcomeFailed, report.Results[0].Outcome)
	assert.Equal(t, errors.ErrorTypeHTTPStatus, report.Results[0].ErrorKind)
}

func TestRunFullReplaceIsIdempotent(t *testing.T) {
	dest := memory.New()
	orch := NewOrchestrator(&fakeExtractor{}, NewLoader(dest, zap.NewNop()), Options{}, zap.NewNop())

	orch.RunFull(context.Background(), nil, time.Now())
	first := map[string][]core.Row{}
	for _, name := range dest.Tables() {
		first[name] = dest.Rows(name)
	}

	orch.RunFull(context.Background(), nil, time.Now())
	for _, name := range dest.Tables() {
		assert.Equal(t, first[name], dest.Rows(name), name)
	}
}

func TestRunFullSkipsWithoutCredentials(t *testing.T) {
	src := &fakeExtractor{fail: func(string, shopify.Window) error { return config.ErrMissingCredentials }}
	dest := memory.New()
	report := NewOrchestrator(src, NewLoader(dest, zap.NewNop()), Options{}, zap.NewNop()).
		RunFull(context.Background(), nil, time.Now())

	_, failed, skipped := report.Counts()
	assert.Zero(t, failed)
	assert.Equal(t, len(report.Results), skipped)
	assert.False(t, report.Failed())
	assert.Empty(t, dest.Submissions())
}

func TestRunFullStopsOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	src := &fakeExtractor{fail: func(name string, _ shopify.Window) error {
		if name == "products" {
			cancel()
			return context.Canceled
		}
		return nil
	}}
	report := NewOrchestrator(src, NewLoader(memory.New(), zap.NewNop()), Options{}, zap.NewNop()).
		RunFull(ctx, nil, time.Now())

	assert.Equal(t, []string{"orders", "products"}, src.names())
	require.Len(t, report.Results, 2)
	assert.Equal(t, errors.ErrorTypeCanceled, report.Results[1].ErrorKind)
}

func TestRunBackfillAbortsAndRunsFinalSync(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(5 * 7 * 24 * time.Hour)
	windows := Windows(start, now, DefaultBackfillWindow)
	require.Len(t, windows, 5)

	src := &fakeExtractor{fail: func(name string, w shopify.Window) error {
		if name == "orders" && w.UpdatedAtMin.Equal(windows[2].Start) {
			return errors.New(errors.ErrorTypeTransport, "orders: connection reset")
		}
		return nil
	}}
	dest := memory.New()
	orch := NewOrchestrator(src, NewLoader(dest, zap.NewNop()), Options{BackfillStart: start}, zap.NewNop())

	report := orch.RunBackfill(context.Background(), now)

	perWindow := append(append([]string{}, coreNames...), supplementalNames...)
	var want []string
	want = append(want, perWindow...)
	want = append(want, perWindow...)
	want = append(want, "orders")
	want = append(want, coreNames...)
	assert.Equal(t, want, src.names())

	for _, c := range src.calls {
		if c.name == "orders" && c.window.UpdatedAtMin.After(windows[2].Start) {
			assert.Equal(t, now, c.window.UpdatedAtMin, "only the final sync runs after the failed window")
			assert.True(t, c.window.UpdatedAtMax.IsZero())
		}
	}

	bf := report.Backfill
	require.NotNil(t, bf)
	assert.True(t, bf.Aborted())
	assert.Equal(t, 2, bf.AbortedAt)
	assert.Equal(t, 2, bf.Completed)
	assert.Equal(t, StateFinalSync, bf.State)
	assert.Equal(t, []BackfillState{StatePending, StateRunning, StateAborted, StateFinalSync}, bf.History)
	assert.Equal(t, []WindowResult{WindowDone, WindowDone, WindowFailed, WindowNotStarted, WindowNotStarted},
		[]WindowResult{bf.Windows[0].Result, bf.Windows[1].Result, bf.Windows[2].Result, bf.Windows[3].Result, bf.Windows[4].Result})
	assert.True(t, report.Failed())

	final := report.Results[len(report.Results)-3:]
	for _, r := range final {
		assert.Equal(t, PhaseFinal, r.Phase)
		assert.Equal(t, core.WriteAppend, r.Mode)
	}
}

func TestRunBackfillWindowBoundsAndModes(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	now := start.Add(10 * 24 * time.Hour)
	src := &fakeExtractor{}
	dest := memory.New()
	log := zaptest.NewLogger(t, zaptest.Level(zapcore.InfoLevel))
	orch := NewOrchestrator(src, NewLoader(dest, log), Options{BackfillStart: start}, log)

	report := orch.RunBackfill(context.Background(), now)

	bf := report.Backfill
	assert.False(t, bf.Aborted())
	assert.Equal(t, []BackfillState{StatePending, StateRunning, StateAllWindowsDone, StateFinalSync}, bf.History)
	require.Len(t, bf.Windows, 2)

	var orders []call
	for _, c := range src.calls {
		if c.name == "orders" {
			orders = append(orders, c)
		}
	}
	require.Len(t, orders, 3)
	assert.Equal(t, shopify.Window{UpdatedAtMin: start, UpdatedAtMax: start.Add(DefaultBackfillWindow), CreatedAtMin: start}, orders[0].window)
	assert.Equal(t, shopify.Window{UpdatedAtMin: start.Add(DefaultBackfillWindow), UpdatedAtMax: now, CreatedAtMin: start}, orders[1].window)
	assert.Equal(t, shopify.Window{UpdatedAtMin: now, CreatedAtMin: start}, orders[2].window)

	var modes []core.WriteMode
	for _, s := range dest.Submissions() {
		if s.Table.Name == "orders" {
			modes = append(modes, s.Mode)
		}
		if s.Table.Name == "pages" {
			assert.Equal(t, core.WriteReplace, s.Mode)
		}
	}
	assert.Equal(t, []core.WriteMode{core.WriteReplace, core.WriteAppend, core.WriteAppend}, modes)
	assert.Len(t, dest.Rows("orders"), 3)
	assert.Len(t, dest.Rows("pages"), 1)
}

func TestRunBackfillSupplementalFailureDoesNotAbort(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	src := &fakeExtractor{fail: func(name string, _ shopify.Window) error {
		if name == "inventory_levels" {
			return errors.New(errors.ErrorTypeValidation, "no locations found, check the read_locations scope")
		}
		return nil
	}}
	orch := NewOrchestrator(src, NewLoader(memory.New(), zap.NewNop()), Options{BackfillStart: start}, zap.NewNop())

	report := orch.RunBackfill(context.Background(), start.Add(14*24*time.Hour))

	assert.False(t, report.Backfill.Aborted())
	assert.Equal(t, 2, report.Backfill.Completed)
	_, failed, _ := report.Counts()
	assert.Equal(t, 2, failed)
}

func TestRunPartner(t *testing.T) {
	src := &fakeExtractor{}
	dest := memory.New()
	report := NewOrchestrator(src, NewLoader(dest, zap.NewNop()), Options{}, zap.NewNop()).RunPartner(context.Background())

	assert.Equal(t, []string{"partner_transactions"}, src.names())
	require.Len(t, report.Results, 1)
	assert.Equal(t, ModePartner, report.Mode)
	assert.Len(t, dest.Rows("partner_transactions"), 1)
}

func TestWindows(t *testing.T) {
	start := time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC)
	week := 7 * 24 * time.Hour

	tests := []struct {
		name  string
		now   time.Time
		count int
	}{
		{name: "exact multiple", now: start.Add(3 * week), count: 3},
		{name: "partial last window", now: start.Add(3*week + time.Hour), count: 4},
		{name: "shorter than one window", now: start.Add(time.Minute), count: 1},
		{name: "start equals now", now: start, count: 0},
		{name: "start after now", now: start.Add(-time.Hour), count: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ws := Windows(start, tt.now, week)
			require.Len(t, ws, tt.count)
			if tt.count == 0 {
				return
			}
			assert.Equal(t, start, ws[0].Start)
			assert.Equal(t, tt.now, ws[len(ws)-1].End)
			for i := 1; i < len(ws); i++ {
				assert.Equal(t, ws[i-1].End, ws[i].Start)
				assert.True(t, ws[i].End.After(ws[i].Start))
			}
		})
	}
}

func TestRunReportWriteFile(t *testing.T) {
	orch := NewOrchestrator(&fakeExtractor{}, NewLoader(memory.New(), zap.NewNop()), Options{}, zap.NewNop())
	report := orch.RunPartner(context.Background())

	path := filepath.Join(t.TempDir(), "report.json")
	require.NoError(t, report.WriteFile(path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, report.RunID, decoded["run_id"])
	assert.Equal(t, "partner", decoded["mode"])
}

func TestOptionsFromConfig(t *testing.T) {
	cfg := config.NewConfig()
	cfg.Backfill.StartDate = "2025-09-01"
	opts, err := OptionsFromConfig(cfg)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2025, 9, 1, 0, 0, 0, 0, time.UTC), opts.BackfillStart)
	assert.Equal(t, DefaultBackfillWindow, opts.BackfillWindow)

	cfg.Backfill.StartDate = "yesterday"
	_, err = OptionsFromConfig(cfg)
	assert.True(t, errors.IsType(err, errors.ErrorTypeConfig))
}
