package data

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/sirupsen/logrus"
)

// AllChannels asks for a refresh of the whole channel list.
const AllChannels = ""

// ErrInvalidInterval is returned when a refresh interval is not positive.
var ErrInvalidInterval = errors.New("refresh interval must be positive")

// Refresher runs one refresh cycle.
type Refresher interface {
	Refresh(ctx context.Context, channelID string, referenceDate time.Time) error
}

// Scheduler runs refresh cycles on a single worker goroutine: once at start,
// on every interval tick and on demand. Cycles never overlap. A trigger that
// arrives while a cycle is running is queued and runs right after it; several
// queued triggers collapse into one and the most recent channel id wins.
type Scheduler struct {
	refresher Refresher
	logger    *logrus.Logger
	now       func() time.Time

	mu       sync.Mutex
	interval time.Duration
	pending  *string

	wake    chan struct{}
	reset   chan struct{}
	running atomic.Bool
	cycles  atomic.Uint64
}

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithReferenceClock sets the clock whose date is passed to each cycle.
func WithReferenceClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		s.now = now
	}
}

// NewScheduler creates a scheduler refreshing every interval.
func NewScheduler(refresher Refresher, interval time.Duration, logger *logrus.Logger, opts ...SchedulerOption) *Scheduler {
	s := &Scheduler{
		refresher: refresher,
		logger:    logger,
		now:       time.Now,
		interval:  interval,
		wake:      make(chan struct{}, 1),
		reset:     make(chan struct{}, 1),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start runs the worker loop until ctx is cancelled. The in-flight cycle, if
// any, is cancelled with ctx.
func (s *Scheduler) Start(ctx context.Context) error {
	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	s.Trigger(AllChannels)

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Refresh scheduler shutting down")
			return nil
		case <-s.reset:
			interval := s.Interval()
			ticker.Reset(interval)
			s.logger.WithField("interval", interval).Info("Refresh interval changed")
		case <-ticker.C:
			s.Trigger(AllChannels)
		case <-s.wake:
			channelID, ok := s.takePending()
			if !ok || ctx.Err() != nil {
				continue
			}
			s.runCycle(ctx, channelID)
		}
	}
}

// Trigger requests a refresh of channelID, or of all channels when it is
// AllChannels. It never blocks.
func (s *Scheduler) Trigger(channelID string) {
	s.mu.Lock()
	s.pending = &channelID
	s.mu.Unlock()

	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// TriggerPeriodicRefresh changes the refresh period to intervalSeconds.
func (s *Scheduler) TriggerPeriodicRefresh(intervalSeconds int) error {
	return s.SetInterval(time.Duration(intervalSeconds) * time.Second)
}

// SetInterval changes the refresh period. The next tick is one full interval
// from now.
func (s *Scheduler) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return ErrInvalidInterval
	}

	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()

	select {
	case s.reset <- struct{}{}:
	default:
	}
	return nil
}

// Interval returns the current refresh period.
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.interval
}

// Running reports whether a cycle is in progress.
func (s *Scheduler) Running() bool {
	return s.running.Load()
}

// Cycles returns the number of cycles run so far.
func (s *Scheduler) Cycles() uint64 {
	return s.cycles.Load()
}

func (s *Scheduler) takePending() (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil {
		return "", false
	}
	channelID := *s.pending
	s.pending = nil
	return channelID, true
}

func (s *Scheduler) runCycle(ctx context.Context, channelID string) {
	s.running.Store(true)
	defer s.running.Store(false)

	start := time.Now()
	err := s.refresher.Refresh(ctx, channelID, s.now())
	s.cycles.Add(1)

	logger := s.logger.WithFields(logrus.Fields{
		"channel":  channelID,
		"duration": time.Since(start).String(),
	})
	switch {
	case ctx.Err() != nil:
		logger.Info("Refresh cycle cancelled")
	case err != nil:
		logger.WithError(err).Warn("Refresh cycle finished with errors")
	default:
		logger.Debug("Refresh cycle finished")
	}
}
