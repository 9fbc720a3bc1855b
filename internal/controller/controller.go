// Package controller schedules the background update cycles: periodic
// corpus crawls and periodic batch optimization of tracked prompts.
package controller

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"promptsmith/internal/config"
	"promptsmith/internal/corpus"
	"promptsmith/internal/ledger"
	"promptsmith/internal/logging"
	"promptsmith/internal/optimizer"
)

// ===== TYPES =====

// State is the controller lifecycle state.
type State string

const (
	StateIdle    State = "idle"
	StateRunning State = "running"
)

// EventType identifies what a controller event reports.
type EventType string

const (
	EventCrawlStart    EventType = "crawl-start"
	EventCrawlDone     EventType = "crawl-done"
	EventOptimizeStart EventType = "optimize-start"
	EventOptimizeDone  EventType = "optimize-done"
	EventError         EventType = "error"
)

// Event is emitted at cycle boundaries and on failures.
type Event struct {
	Type   EventType `json:"type"`
	ID     string    `json:"id"`
	Time   time.Time `json:"time"`
	Detail string    `json:"detail,omitempty"`
}

// Listener receives controller events. Listeners run synchronously on the
// cycle goroutine; a panicking listener is recovered and does not disturb
// the cycle or other listeners.
type Listener func(Event)

// PromptCandidate is one tracked prompt eligible for optimization.
type PromptCandidate struct {
	ID          string
	Content     string
	UsageWeight int
}

// CandidateProvider supplies the prompts a cycle may optimize, in
// priority order.
type CandidateProvider func(ctx context.Context) ([]PromptCandidate, error)

// Refresher re-fetches the reference corpus. Satisfied by corpus.Loader.
type Refresher interface {
	Refresh(ctx context.Context) ([]corpus.ReferenceRecord, error)
}

// CycleResult summarizes one optimization cycle.
type CycleResult struct {
	Considered int      `json:"considered"`
	Attempted  int      `json:"attempted"`
	Improved   int      `json:"improved"`
	Errors     []string `json:"errors,omitempty"`
}

// Stats is a point-in-time snapshot of controller activity.
type Stats struct {
	State          State     `json:"state"`
	CrawlCycles    int       `json:"crawl_cycles"`
	OptimizeCycles int       `json:"optimize_cycles"`
	LastCrawl      time.Time `json:"last_crawl,omitempty"`
	LastOptimize   time.Time `json:"last_optimize,omitempty"`
}

// ===== CONTROLLER =====

// Controller owns the two background tickers. Crawl and optimize cycles
// run independently and may overlap; both are also runnable on demand.
type Controller struct {
	mu sync.Mutex

	cfg       config.ControllerConfig
	refresher Refresher
	optimizer *optimizer.Optimizer
	ledger    *ledger.Ledger
	provider  CandidateProvider
	limiter   *rate.Limiter
	listeners []Listener

	state          State
	stopCh         chan struct{}
	doneCh         chan struct{}
	crawlCycles    int
	optimizeCycles int
	lastCrawl      time.Time
	lastOptimize   time.Time
}

// NewController creates a controller. refresher and provider may be nil;
// the corresponding cycles then do nothing.
func NewController(cfg config.ControllerConfig, refresher Refresher, opt *optimizer.Optimizer, led *ledger.Ledger, provider CandidateProvider) *Controller {
	perMinute := cfg.JudgeCallsPerMinute
	if perMinute <= 0 {
		perMinute = 20
	}
	return &Controller{
		cfg:       cfg,
		refresher: refresher,
		optimizer: opt,
		ledger:    led,
		provider:  provider,
		limiter:   rate.NewLimiter(rate.Limit(float64(perMinute)/60.0), 1),
		state:     StateIdle,
	}
}

// Subscribe registers a listener for controller events.
func (c *Controller) Subscribe(fn Listener) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Start arms the background tickers. A disabled or already running
// controller is a no-op.
func (c *Controller) Start() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.state != StateIdle || !c.cfg.Enabled {
		return
	}

	c.stopCh = make(chan struct{})
	c.doneCh = make(chan struct{})
	c.state = StateRunning

	go c.run(c.stopCh, c.doneCh)
	logging.Controller("Controller started: crawl=%s, optimize=%s",
		c.crawlInterval(), c.optimizeInterval())
}

// Stop disarms the tickers. In-flight cycles finish on their own; Stop
// waits briefly for the worker goroutine to drain.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state != StateRunning {
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	close(c.stopCh)
	done := c.doneCh
	c.mu.Unlock()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		logging.Controller("Controller worker did not drain in time")
	}
	logging.Controller("Controller stopped")
}

// Dispose stops the controller unconditionally. Alias kept for parity
// with lifecycle-managed callers.
func (c *Controller) Dispose() {
	c.Stop()
}

// CurrentState returns the lifecycle state.
func (c *Controller) CurrentState() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// GetStats returns a snapshot of controller activity counters.
func (c *Controller) GetStats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		State:          c.state,
		CrawlCycles:    c.crawlCycles,
		OptimizeCycles: c.optimizeCycles,
		LastCrawl:      c.lastCrawl,
		LastOptimize:   c.lastOptimize,
	}
}

func (c *Controller) run(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)

	crawlTicker := time.NewTicker(c.crawlInterval())
	optimizeTicker := time.NewTicker(c.optimizeInterval())
	defer crawlTicker.Stop()
	defer optimizeTicker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-crawlTicker.C:
			c.RunCrawlCycle(context.Background())
		case <-optimizeTicker.C:
			c.RunOptimizeCycle(context.Background())
		}
	}
}

func (c *Controller) crawlInterval() time.Duration {
	if c.cfg.CrawlIntervalMinutes <= 0 {
		return 6 * time.Hour
	}
	return time.Duration(c.cfg.CrawlIntervalMinutes) * time.Minute
}

func (c *Controller) optimizeInterval() time.Duration {
	if c.cfg.OptimizeIntervalMinutes <= 0 {
		return time.Hour
	}
	return time.Duration(c.cfg.OptimizeIntervalMinutes) * time.Minute
}

// ===== CYCLES =====

// RunCrawlCycle refreshes the reference corpus once. Callable on demand
// as well as from the ticker.
func (c *Controller) RunCrawlCycle(ctx context.Context) {
	if c.refresher == nil {
		return
	}

	c.emit(EventCrawlStart, "")
	records, err := c.refresher.Refresh(ctx)

	c.mu.Lock()
	c.crawlCycles++
	if err == nil {
		c.lastCrawl = time.Now()
	}
	c.mu.Unlock()

	if err != nil {
		logging.Controller("Crawl cycle failed: %v", err)
		c.emit(EventError, fmt.Sprintf("crawl: %v", err))
		return
	}
	logging.Controller("Crawl cycle complete: %d records", len(records))
	c.emit(EventCrawlDone, fmt.Sprintf("%d records", len(records)))
}

// RunOptimizeCycle judges and rewrites a bounded batch of tracked
// prompts. Per-prompt failures are collected, never fatal.
func (c *Controller) RunOptimizeCycle(ctx context.Context) CycleResult {
	if c.provider == nil || c.optimizer == nil {
		return CycleResult{}
	}

	c.emit(EventOptimizeStart, "")

	candidates, err := c.provider(ctx)
	if err != nil {
		logging.Controller("Optimize cycle: candidate provider failed: %v", err)
		c.emit(EventError, fmt.Sprintf("optimize: %v", err))
		return CycleResult{Errors: []string{err.Error()}}
	}

	result := CycleResult{Considered: len(candidates)}

	// Filter by usage, cap the batch, keep provider order.
	var batch []PromptCandidate
	for _, cand := range candidates {
		if cand.UsageWeight < c.cfg.MinUsage {
			continue
		}
		batch = append(batch, cand)
		if c.cfg.MaxPerCycle > 0 && len(batch) >= c.cfg.MaxPerCycle {
			break
		}
	}

	for _, cand := range batch {
		if err := c.limiter.Wait(ctx); err != nil {
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", cand.ID, err))
			break
		}

		result.Attempted++
		var res *optimizer.Result
		var err error
		if c.ledger != nil {
			res, err = c.optimizer.OptimizeAndVersion(ctx, cand.ID, cand.Content, c.ledger)
		} else {
			res, err = c.optimizer.Optimize(ctx, cand.Content)
		}
		if err != nil {
			logging.Controller("Optimize failed for %s: %v", cand.ID, err)
			result.Errors = append(result.Errors, fmt.Sprintf("%s: %v", cand.ID, err))
			continue
		}
		if res.Improved {
			result.Improved++
		}
	}

	c.mu.Lock()
	c.optimizeCycles++
	c.lastOptimize = time.Now()
	c.mu.Unlock()

	logging.Controller("Optimize cycle complete: considered=%d, attempted=%d, improved=%d, errors=%d",
		result.Considered, result.Attempted, result.Improved, len(result.Errors))
	c.emit(EventOptimizeDone, fmt.Sprintf("attempted=%d improved=%d", result.Attempted, result.Improved))
	return result
}

// emit dispatches an event to every listener, recovering individually so
// one bad listener cannot starve the rest.
func (c *Controller) emit(typ EventType, detail string) {
	c.mu.Lock()
	listeners := make([]Listener, len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()

	ev := Event{
		Type:   typ,
		ID:     uuid.New().String(),
		Time:   time.Now(),
		Detail: detail,
	}
	for _, fn := range listeners {
		func() {
			defer func() {
				if r := recover(); r != nil {
					logging.Controller("Event listener panicked: %v", r)
				}
			}()
			fn(ev)
		}()
	}
}
