package gateway

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/user/tiredmanhattan/internal/types"
)

// Processor handles one run. Returned errors are logged and the run dropped.
type Processor func(ctx context.Context, run *Run) error

// Gateway hands every inbound mention to its own goroutine. A semaphore
// bounds how many runs execute at once; callers never wait for a slot.
type Gateway struct {
	semaphore *semaphore.Weighted
	processor Processor
	onFinish  func(*Run)
	logger    *slog.Logger
	active    atomic.Int64

	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
	mu      sync.RWMutex
	stopped bool
}

// New creates a Gateway with the given concurrency limit for simultaneous
// run processing.
func New(processor Processor, maxConcurrent ...int64) *Gateway {
	var concurrency int64 = 4
	if len(maxConcurrent) > 0 && maxConcurrent[0] > 0 {
		concurrency = maxConcurrent[0]
	}
	return &Gateway{
		semaphore: semaphore.NewWeighted(concurrency),
		processor: processor,
		logger:    slog.Default().With("component", "gateway"),
	}
}

// SetOnFinish registers fn to observe every run once it reaches a final
// status. It runs on the run's goroutine. Must be called before Start.
func (g *Gateway) SetOnFinish(fn func(*Run)) {
	g.onFinish = fn
}

// Start initialises the gateway's context. Must be called before HandleInbound.
func (g *Gateway) Start(ctx context.Context) {
	g.ctx, g.cancel = context.WithCancel(ctx)
}

// Stop refuses new mentions, waits for spawned runs to finish, then cancels
// the gateway context. Cancel the parent context first to abort runs that
// are still in flight.
func (g *Gateway) Stop() {
	g.mu.Lock()
	g.stopped = true
	g.mu.Unlock()

	g.wg.Wait()
	if g.cancel != nil {
		g.cancel()
	}
}

// HandleInbound wraps the mention in a Run and processes it on a new
// goroutine. It never blocks on processing.
func (g *Gateway) HandleInbound(_ context.Context, mention *types.Mention) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.stopped || g.ctx == nil {
		g.logger.Warn("gateway not running, dropping mention", "tweet_id", mention.ID)
		return
	}

	run := NewRun(mention)
	g.wg.Add(1)
	go g.process(run)
}

func (g *Gateway) process(run *Run) {
	defer g.wg.Done()
	logger := g.logger.With("run_id", string(run.ID), "tweet_id", string(run.Mention.ID))

	if err := g.semaphore.Acquire(g.ctx, 1); err != nil {
		logger.Warn("run abandoned before start", "error", err)
		run.finish(err)
		g.record(run)
		return
	}
	defer g.semaphore.Release(1)

	g.active.Add(1)
	defer g.active.Add(-1)

	run.start()
	err := g.safeProcess(run)
	run.finish(err)
	g.record(run)

	if err != nil {
		logger.Error("unable to reply to mention", "author", run.Mention.AuthorHandle, "text", run.Mention.Text, "error", err)
		return
	}
	logger.Debug("run finished", "status", run.Status, "duration", run.EndedAt.Sub(*run.StartedAt))
}

func (g *Gateway) record(run *Run) {
	runsTotal.WithLabelValues(string(run.Status)).Inc()
	if g.onFinish != nil {
		g.onFinish(run)
	}
}

// safeProcess turns a panic in the processor into an error for this run only.
func (g *Gateway) safeProcess(run *Run) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("run panicked: %v\n%s", r, debug.Stack())
		}
	}()
	if g.processor == nil {
		return nil
	}
	return g.processor(g.ctx, run)
}

// WaitIdle blocks until no runs are actively being processed, or the timeout
// expires. Returns true if idle, false if timed out.
func (g *Gateway) WaitIdle(timeout time.Duration) bool {
	deadline := time.After(timeout)
	for {
		if g.active.Load() == 0 {
			return true
		}
		select {
		case <-deadline:
			return false
		case <-time.After(10 * time.Millisecond):
		}
	}
}

// Active returns the number of runs currently executing.
func (g *Gateway) Active() int64 {
	return g.active.Load()
}
