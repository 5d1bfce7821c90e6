package data

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/savid/radio-schedule/pkg/schedule"
	"github.com/sirupsen/logrus"
)

// Repository fetches channels and schedules, filters them and publishes the
// result as an immutable Snapshot. Writes are serialised; reads never block.
type Repository struct {
	baseURL string
	fetcher DocumentFetcher
	parser  *schedule.Parser
	store   *Store
	logger  *logrus.Logger
	now     func() time.Time

	mu sync.Mutex
}

// Option configures a Repository.
type Option func(*Repository)

// WithClock sets the source of the reference instant used by the episode
// time window.
func WithClock(now func() time.Time) Option {
	return func(r *Repository) {
		r.now = now
	}
}

// NewRepository creates a repository reading the channel list from baseURL.
func NewRepository(baseURL string, fetcher DocumentFetcher, parser *schedule.Parser, logger *logrus.Logger, opts ...Option) *Repository {
	r := &Repository{
		baseURL: baseURL,
		fetcher: fetcher,
		parser:  parser,
		store:   NewStore(),
		logger:  logger,
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// cycle collects the output of one refresh before it is published.
type cycle struct {
	id       string
	channels []schedule.Channel
	episodes []schedule.Episode
	errs     []error
	logger   *logrus.Entry
}

func (c *cycle) fail(err error) {
	c.errs = append(c.errs, err)
	c.logger.WithError(err).Warn("Refresh step failed")
}

func (r *Repository) newCycle(channelID string) *cycle {
	id := uuid.NewString()
	return &cycle{
		id: id,
		logger: r.logger.WithFields(logrus.Fields{
			"cycle":   id,
			"channel": channelID,
		}),
	}
}

// Refresh runs a full refresh cycle: the channel list (or the single channel
// channelID) and then the schedules of referenceDate and its neighbouring
// days. The result is published with one swap and error state starts empty.
// If the channel list cannot be loaded the previous channels and episodes are
// kept next to the new errors. A cancelled cycle publishes nothing.
func (r *Repository) Refresh(ctx context.Context, channelID string, referenceDate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := r.newCycle(channelID)
	c.logger.Info("Starting refresh cycle")

	channels, ok, err := r.loadChannels(ctx, c, channelID)
	if err != nil {
		return err
	}

	prev := r.store.Load()
	if ok {
		c.channels = channels
		if err := r.loadEpisodes(ctx, c, referenceDate); err != nil {
			return err
		}
	} else {
		c.channels = prev.Channels
		c.episodes = prev.Episodes
	}

	r.publish(c, nil, channelID, referenceDate)

	c.logger.WithFields(logrus.Fields{
		"channels": len(c.channels),
		"episodes": len(c.episodes),
		"errors":   len(c.errs),
	}).Info("Refresh cycle completed")

	return errors.Join(c.errs...)
}

// RefreshChannels replaces the channel list with the full list, or with the
// single channel channelID when it is not empty. Episodes are left untouched
// and errors are appended to the current error state.
func (r *Repository) RefreshChannels(ctx context.Context, channelID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.store.Load()
	c := r.newCycle(channelID)

	channels, ok, err := r.loadChannels(ctx, c, channelID)
	if err != nil {
		return err
	}
	c.channels = prev.Channels
	if ok {
		c.channels = channels
	}
	c.episodes = prev.Episodes

	r.publish(c, prev.Errors, channelID, prev.ReferenceDate)
	return errors.Join(c.errs...)
}

// RefreshEpisodes replaces the episode list with the schedules of the current
// channels for referenceDate-1, referenceDate and referenceDate+1. Errors are
// appended to the current error state.
func (r *Repository) RefreshEpisodes(ctx context.Context, referenceDate time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.store.Load()
	c := r.newCycle(prev.ChannelID)
	c.channels = prev.Channels

	if err := r.loadEpisodes(ctx, c, referenceDate); err != nil {
		return err
	}

	r.publish(c, prev.Errors, prev.ChannelID, referenceDate)
	return errors.Join(c.errs...)
}

// Reset publishes a snapshot without channels or episodes. Error state is kept.
func (r *Repository) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()

	prev := r.store.Load()
	r.store.Publish(&Snapshot{
		Errors:      prev.Errors,
		RefreshedAt: r.now(),
	})
}

// Snapshot returns the current snapshot. Callers must not modify it.
func (r *Repository) Snapshot() *Snapshot {
	return r.store.Load()
}

// Channels returns the current channel list.
func (r *Repository) Channels() []schedule.Channel {
	return r.store.Channels()
}

// Episodes returns the current episode list.
func (r *Repository) Episodes() []schedule.Episode {
	return r.store.Episodes()
}

// HasError reports whether the current snapshot carries refresh errors.
func (r *Repository) HasError() bool {
	return r.store.Load().HasError()
}

// ErrorMessage returns the refresh errors of the current snapshot.
func (r *Repository) ErrorMessage() string {
	return r.store.Load().ErrorMessage()
}

// loadChannels reports ok=false when the document could not be fetched or
// parsed; the failure is recorded on c. A non-nil error means ctx is done.
func (r *Repository) loadChannels(ctx context.Context, c *cycle, channelID string) ([]schedule.Channel, bool, error) {
	target := ChannelsURL(r.baseURL, channelID)

	raw, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		if ctx.Err() != nil {
			return nil, false, ctx.Err()
		}
		c.fail(fmt.Errorf("channel list %s: %w", target, err))
		return nil, false, nil
	}

	channels, err := r.parser.ParseChannels(raw)
	if err != nil {
		c.fail(fmt.Errorf("channel list %s: %w", target, err))
		return nil, false, nil
	}

	c.logger.WithField("channels", len(channels)).Debug("Loaded channel list")
	return channels, true, nil
}

// loadEpisodes appends the episodes of every schedulable channel in c for the
// three days around date. A non-nil error means ctx is done.
func (r *Repository) loadEpisodes(ctx context.Context, c *cycle, date time.Time) error {
	ref := r.now()

	for _, channel := range c.channels {
		if !channel.HasSchedule() {
			continue
		}

		for _, day := range ThreeDays(date) {
			if err := ctx.Err(); err != nil {
				return err
			}

			episodes, err := r.loadSchedule(ctx, channel, day, ref)
			if err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				c.fail(fmt.Errorf("schedule for channel %s (%s) on %s: %w",
					channel.Name, channel.ID, day.Format(dateLayout), err))
				continue
			}
			c.episodes = append(c.episodes, episodes...)
		}
	}

	return nil
}

func (r *Repository) loadSchedule(ctx context.Context, channel schedule.Channel, day, ref time.Time) ([]schedule.Episode, error) {
	target, err := ScheduleURL(channel.ScheduleURL, day)
	if err != nil {
		return nil, err
	}

	raw, err := r.fetcher.Fetch(ctx, target)
	if err != nil {
		return nil, err
	}

	return r.parser.ParseEpisodes(raw, ref)
}

func (r *Repository) publish(c *cycle, carried []string, channelID string, referenceDate time.Time) {
	errs := make([]string, 0, len(carried)+len(c.errs))
	errs = append(errs, carried...)
	for _, err := range c.errs {
		errs = append(errs, err.Error())
	}

	r.store.Publish(&Snapshot{
		Channels:      c.channels,
		Episodes:      c.episodes,
		Errors:        errs,
		ChannelID:     channelID,
		ReferenceDate: referenceDate,
		RefreshedAt:   r.now(),
		CycleID:       c.id,
	})
}

// ThreeDays returns the day before date, date and the day after, in order.
func ThreeDays(date time.Time) []time.Time {
	return []time.Time{
		date.AddDate(0, 0, -1),
		date,
		date.AddDate(0, 0, 1),
	}
}
