package controller

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"promptsmith/internal/config"
	"promptsmith/internal/corpus"
	"promptsmith/internal/judge"
	"promptsmith/internal/ledger"
	"promptsmith/internal/optimizer"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeRefresher struct {
	mu      sync.Mutex
	calls   int
	records []corpus.ReferenceRecord
	err     error
}

func (f *fakeRefresher) Refresh(ctx context.Context) ([]corpus.ReferenceRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.records, f.err
}

func (f *fakeRefresher) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func testConfig() config.ControllerConfig {
	return config.ControllerConfig{
		Enabled:                 true,
		CrawlIntervalMinutes:    60,
		OptimizeIntervalMinutes: 60,
		MinUsage:                1,
		MaxPerCycle:             10,
		JudgeCallsPerMinute:     6000, // effectively unthrottled in tests
	}
}

func newTestLedger(t *testing.T, ids map[string]string) *ledger.Ledger {
	t.Helper()
	led, err := ledger.NewLedger(filepath.Join(t.TempDir(), "ledger.json"))
	require.NoError(t, err)
	for id, content := range ids {
		_, err := led.Init(id, content)
		require.NoError(t, err)
	}
	return led
}

func newTestOptimizer() *optimizer.Optimizer {
	return optimizer.NewOptimizer(optimizer.DefaultConfig(), nil, judge.NewJudge(nil, ""))
}

func collectEvents(c *Controller) (*sync.Mutex, *[]Event) {
	var mu sync.Mutex
	var events []Event
	c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, ev)
	})
	return &mu, &events
}

func eventTypes(mu *sync.Mutex, events *[]Event) []EventType {
	mu.Lock()
	defer mu.Unlock()
	types := make([]EventType, len(*events))
	for i, ev := range *events {
		types[i] = ev.Type
	}
	return types
}

func TestStartStopLifecycle(t *testing.T) {
	c := NewController(testConfig(), &fakeRefresher{}, newTestOptimizer(),
		newTestLedger(t, nil), func(ctx context.Context) ([]PromptCandidate, error) {
			return nil, nil
		})

	assert.Equal(t, StateIdle, c.CurrentState())

	c.Start()
	assert.Equal(t, StateRunning, c.CurrentState())

	// Second Start is a no-op.
	c.Start()
	assert.Equal(t, StateRunning, c.CurrentState())

	c.Stop()
	assert.Equal(t, StateIdle, c.CurrentState())

	// Second Stop is a no-op.
	c.Stop()
	assert.Equal(t, StateIdle, c.CurrentState())
}

func TestStartDisabledIsNoOp(t *testing.T) {
	cfg := testConfig()
	cfg.Enabled = false
	c := NewController(cfg, &fakeRefresher{}, newTestOptimizer(), newTestLedger(t, nil), nil)

	c.Start()
	assert.Equal(t, StateIdle, c.CurrentState())
}

func TestCrawlCycleEmitsEventsAndCounts(t *testing.T) {
	ref := &fakeRefresher{records: []corpus.ReferenceRecord{{Origin: "a"}, {Origin: "b"}}}
	c := NewController(testConfig(), ref, newTestOptimizer(), newTestLedger(t, nil), nil)
	mu, events := collectEvents(c)

	c.RunCrawlCycle(context.Background())

	require.Equal(t, 1, ref.callCount())
	assert.Equal(t, []EventType{EventCrawlStart, EventCrawlDone}, eventTypes(mu, events))

	stats := c.GetStats()
	assert.Equal(t, 1, stats.CrawlCycles)
	assert.False(t, stats.LastCrawl.IsZero())
}

func TestCrawlCycleFailureEmitsError(t *testing.T) {
	ref := &fakeRefresher{err: errors.New("upstream unavailable")}
	c := NewController(testConfig(), ref, newTestOptimizer(), newTestLedger(t, nil), nil)
	mu, events := collectEvents(c)

	c.RunCrawlCycle(context.Background())

	assert.Equal(t, []EventType{EventCrawlStart, EventError}, eventTypes(mu, events))

	// The cycle is still counted; the success timestamp is not advanced.
	stats := c.GetStats()
	assert.Equal(t, 1, stats.CrawlCycles)
	assert.True(t, stats.LastCrawl.IsZero())
}

func TestOptimizeCycleRespectsUsageAndCap(t *testing.T) {
	cfg := testConfig()
	cfg.MinUsage = 2
	cfg.MaxPerCycle = 2

	led := newTestLedger(t, map[string]string{
		"a": "Fix the bug",
		"b": "Fix the bug",
		"c": "Fix the bug",
	})
	provider := func(ctx context.Context) ([]PromptCandidate, error) {
		return []PromptCandidate{
			{ID: "a", Content: "Fix the bug", UsageWeight: 5},
			{ID: "skip", Content: "Fix the bug", UsageWeight: 1}, // below MinUsage
			{ID: "b", Content: "Fix the bug", UsageWeight: 3},
			{ID: "c", Content: "Fix the bug", UsageWeight: 3}, // beyond MaxPerCycle
		}, nil
	}
	c := NewController(cfg, nil, newTestOptimizer(), led, provider)

	result := c.RunOptimizeCycle(context.Background())

	assert.Equal(t, 4, result.Considered)
	assert.Equal(t, 2, result.Attempted)
	assert.Equal(t, 2, result.Improved)
	assert.Empty(t, result.Errors)

	// Only the two attempted prompts gained a version.
	for id, want := range map[string]int{"a": 2, "b": 2, "c": 1} {
		h, ok := led.Get(id)
		require.True(t, ok, id)
		assert.Len(t, h.Versions, want, id)
	}
}

func TestOptimizeCycleNilProviderIsNoOp(t *testing.T) {
	c := NewController(testConfig(), nil, newTestOptimizer(), newTestLedger(t, nil), nil)
	mu, events := collectEvents(c)

	result := c.RunOptimizeCycle(context.Background())

	assert.Equal(t, CycleResult{}, result)
	assert.Empty(t, eventTypes(mu, events))
}

func TestOptimizeCycleProviderFailure(t *testing.T) {
	provider := func(ctx context.Context) ([]PromptCandidate, error) {
		return nil, errors.New("registry offline")
	}
	c := NewController(testConfig(), nil, newTestOptimizer(), newTestLedger(t, nil), provider)
	mu, events := collectEvents(c)

	result := c.RunOptimizeCycle(context.Background())

	assert.Len(t, result.Errors, 1)
	assert.Equal(t, []EventType{EventOptimizeStart, EventError}, eventTypes(mu, events))
}

func TestPanickingListenerDoesNotDisturbOthers(t *testing.T) {
	c := NewController(testConfig(), &fakeRefresher{}, newTestOptimizer(), newTestLedger(t, nil), nil)

	c.Subscribe(func(ev Event) { panic("bad listener") })
	var mu sync.Mutex
	var got []Event
	c.Subscribe(func(ev Event) {
		mu.Lock()
		defer mu.Unlock()
		got = append(got, ev)
	})

	c.RunCrawlCycle(context.Background())

	mu.Lock()
	defer mu.Unlock()
	assert.Len(t, got, 2)
	for _, ev := range got {
		assert.NotEmpty(t, ev.ID)
		assert.False(t, ev.Time.IsZero())
	}
}

func TestStopDrainsWorker(t *testing.T) {
	cfg := testConfig()
	cfg.CrawlIntervalMinutes = 1
	cfg.OptimizeIntervalMinutes = 1

	c := NewController(cfg, &fakeRefresher{}, newTestOptimizer(), newTestLedger(t, nil), nil)
	c.Start()
	time.Sleep(20 * time.Millisecond)
	c.Stop()
	// goleak's TestMain verification fails if the worker leaked.
}
