// Package stream keeps the filtered mention stream connected for the life of
// the process.
package stream

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/user/tiredmanhattan/internal/types"
)

// State is a step of the supervisor's connection lifecycle.
type State int32

const (
	StateIdle State = iota
	StateConnecting
	StateStreaming
	StateBackoff
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateBackoff:
		return "backoff"
	case StateStopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Dispatcher receives every mention read from the stream. HandleInbound must
// return without waiting for the mention to be processed.
type Dispatcher interface {
	HandleInbound(ctx context.Context, mention *types.Mention)
}

// Option configures a Supervisor.
type Option func(*Supervisor)

// WithBackoff replaces the rate-limit backoff policy.
func WithBackoff(b *Backoff) Option {
	return func(s *Supervisor) { s.backoff = b }
}

// WithTransientDelay sets the fixed wait after a non rate-limit failure.
func WithTransientDelay(d time.Duration) Option {
	return func(s *Supervisor) { s.transientDelay = d }
}

// WithLogger sets the logger used for lifecycle messages.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Supervisor) { s.logger = logger }
}

// WithOnTransition registers a callback invoked on every state change. It
// runs on the supervisor goroutine and must not block.
func WithOnTransition(fn func(from, to State)) Option {
	return func(s *Supervisor) { s.onTransition = fn }
}

// Supervisor owns the subscription: it registers the mention rule, opens
// the stream, dispatches mentions and reconnects after failures until its
// context is cancelled.
type Supervisor struct {
	feed           types.Feed
	handle         string
	dispatcher     Dispatcher
	backoff        *Backoff
	transientDelay time.Duration
	logger         *slog.Logger
	onTransition   func(from, to State)
	sleep          func(ctx context.Context, d time.Duration) error

	state atomic.Int32
}

// NewSupervisor creates a Supervisor for the bot account handle.
func NewSupervisor(feed types.Feed, handle string, dispatcher Dispatcher, opts ...Option) *Supervisor {
	s := &Supervisor{
		feed:           feed,
		handle:         handle,
		dispatcher:     dispatcher,
		backoff:        DefaultBackoff(),
		transientDelay: DefaultTransientDelay,
		logger:         slog.Default(),
		sleep:          sleepContext,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "stream", "handle", handle)
	return s
}

// State returns the current lifecycle state. Safe to call from any goroutine.
func (s *Supervisor) State() State {
	return State(s.state.Load())
}

// cycle carries what one state hands to the next.
type cycle struct {
	sub types.Subscription
	err error
}

// Run drives the state machine until ctx is cancelled, then returns ctx.Err().
func (s *Supervisor) Run(ctx context.Context) error {
	c := &cycle{}
	state := s.State()
	for state != StateStopped {
		var next State
		switch state {
		case StateIdle:
			next = StateConnecting
		case StateConnecting:
			next = s.connecting(ctx, c)
		case StateStreaming:
			next = s.streaming(ctx, c)
		case StateBackoff:
			next = s.backingOff(ctx, c)
		default:
			next = StateStopped
		}
		s.transition(state, next)
		state = next
	}
	return ctx.Err()
}

func (s *Supervisor) transition(from, to State) {
	if from == to {
		return
	}
	s.state.Store(int32(to))
	streamState.Set(float64(to))
	s.logger.Debug("stream state change", "from", from, "to", to)
	if s.onTransition != nil {
		s.onTransition(from, to)
	}
}

func (s *Supervisor) connecting(ctx context.Context, c *cycle) State {
	if ctx.Err() != nil {
		return StateStopped
	}
	connectAttempts.Inc()

	sub, err := s.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return StateStopped
		}
		c.err = err
		return StateBackoff
	}
	c.sub = sub
	return StateStreaming
}

func (s *Supervisor) connect(ctx context.Context) (types.Subscription, error) {
	if err := s.EnsureRule(ctx); err != nil {
		return nil, err
	}

	sub, err := s.feed.Open(ctx)
	if err != nil {
		return nil, fmt.Errorf("open stream: %w", err)
	}
	return sub, nil
}

// EnsureRule registers the mention rule when the feed has no rules at all.
// It runs before every connection attempt and is safe to call from other
// goroutines, for example a periodic check while streaming.
func (s *Supervisor) EnsureRule(ctx context.Context) error {
	rules, err := s.feed.ListRules(ctx)
	if err != nil {
		return fmt.Errorf("list rules: %w", err)
	}
	if len(rules) > 0 {
		return nil
	}
	rule := types.MentionRule(s.handle)
	if err := s.feed.AddRule(ctx, rule); err != nil {
		return fmt.Errorf("add rule %q: %w", rule.Value, err)
	}
	s.logger.Info("registered stream rule", "rule", rule.Value, "tag", rule.Tag)
	return nil
}

func (s *Supervisor) streaming(ctx context.Context, c *cycle) State {
	sub := c.sub
	c.sub = nil

	// a successful open counts as healthy, even if it fails moments later
	s.backoff.Reset()
	s.logger.Info("starting filtered stream")

	// unblock a Next that does not watch ctx itself
	stop := context.AfterFunc(ctx, func() { closeQuietly(sub) })
	err := s.consume(ctx, sub)
	stop()
	closeQuietly(sub)

	if ctx.Err() != nil {
		s.logger.Info("stream stopped")
		return StateStopped
	}
	c.err = err
	return StateBackoff
}

func (s *Supervisor) consume(ctx context.Context, sub types.Subscription) error {
	for {
		mention, err := sub.Next(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return ErrStreamClosed
			}
			return err
		}
		if mention == nil {
			continue
		}
		mentionsReceived.Inc()
		s.dispatcher.HandleInbound(ctx, mention)
	}
}

func (s *Supervisor) backingOff(ctx context.Context, c *cycle) State {
	err := c.err
	c.err = nil

	failure := Classify(err)
	var delay time.Duration
	switch failure {
	case FailureRateLimit:
		delay = s.backoff.Next()
	default:
		delay = s.transientDelay
	}
	streamFailures.WithLabelValues(failure.String()).Inc()
	s.logger.Error("stream stopped due to error", "failure", failure, "retry_in", delay, "error", err)

	if err := s.sleep(ctx, delay); err != nil {
		return StateStopped
	}
	return StateConnecting
}

func closeQuietly(sub types.Subscription) {
	if sub == nil {
		return
	}
	defer func() { _ = recover() }()
	_ = sub.Close()
}

func sleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
