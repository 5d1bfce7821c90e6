package data

import (
	"slices"
	"strings"
	"sync/atomic"
	"time"

	"github.com/savid/radio-schedule/pkg/schedule"
)

// Snapshot is the complete result of one refresh. It is never modified after
// it has been published to a Store.
type Snapshot struct {
	Channels      []schedule.Channel
	Episodes      []schedule.Episode
	Errors        []string
	ChannelID     string
	ReferenceDate time.Time
	RefreshedAt   time.Time
	CycleID       string
}

// HasError reports whether any document failed during the refresh.
func (s *Snapshot) HasError() bool {
	return len(s.Errors) > 0
}

// ErrorMessage returns the refresh errors, one per line.
func (s *Snapshot) ErrorMessage() string {
	return strings.Join(s.Errors, "\n")
}

// Store publishes snapshots with a single atomic pointer swap, so readers
// never lock against the writer and never see a half-built snapshot.
type Store struct {
	current atomic.Pointer[Snapshot]
}

// NewStore creates a store holding an empty snapshot.
func NewStore() *Store {
	s := &Store{}
	s.current.Store(&Snapshot{})
	return s
}

// Load returns the current snapshot.
func (s *Store) Load() *Snapshot {
	return s.current.Load()
}

// Publish replaces the current snapshot.
func (s *Store) Publish(snap *Snapshot) {
	s.current.Store(snap)
}

// Channels returns a copy of the current channel list.
func (s *Store) Channels() []schedule.Channel {
	return slices.Clone(s.Load().Channels)
}

// Episodes returns a copy of the current episode list.
func (s *Store) Episodes() []schedule.Episode {
	return slices.Clone(s.Load().Episodes)
}
