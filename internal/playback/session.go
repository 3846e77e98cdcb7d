// Package playback holds the listening session: current track, transport state and queue.
package playback

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"mintflip/internal/track"
)

// DefaultHistorySize bounds how many tracks PreviousTrack can rewind through.
const DefaultHistorySize = 50

// Status is the transport state of a session.
type Status int

const (
	Idle Status = iota
	Paused
	Playing
)

// String returns the status name.
func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case Paused:
		return "paused"
	case Playing:
		return "playing"
	default:
		return "unknown"
	}
}

// State is an immutable snapshot of a session.
type State struct {
	Current  *track.Track
	Playing  bool
	Queue    []track.Track
	History  []track.Track
	Position time.Duration
	Duration time.Duration
}

// Status derives the transport state from the snapshot.
func (s State) Status() Status {
	switch {
	case s.Current == nil:
		return Idle
	case s.Playing:
		return Playing
	default:
		return Paused
	}
}

// PlayReporter is told whenever a track becomes current.
type PlayReporter interface {
	RecordPlay(ctx context.Context, trackID int64) error
}

// Session is a mutex-guarded playback state machine.
type Session struct {
	mu         sync.Mutex
	current    *track.Track
	playing    bool
	queue      []track.Track
	history    []track.Track
	historyCap int
	position   time.Duration
	duration   time.Duration

	reporter  PlayReporter
	listeners []func(State)
}

// Option customises a Session.
type Option func(*Session)

// WithHistorySize bounds the history stack; zero disables rewinding.
func WithHistorySize(n int) Option {
	return func(s *Session) {
		if n >= 0 {
			s.historyCap = n
		}
	}
}

// WithReporter registers a PlayReporter.
func WithReporter(r PlayReporter) Option {
	return func(s *Session) { s.reporter = r }
}

// NewSession returns an idle session.
func NewSession(opts ...Option) *Session {
	s := &Session{historyCap: DefaultHistorySize}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// OnChange registers fn to receive a snapshot after every transition.
// Listeners run outside the session lock.
func (s *Session) OnChange(fn func(State)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = append(s.listeners, fn)
}

// Snapshot returns the current state.
func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshot()
}

// PlayTrack makes t current and starts playing, whatever the prior state.
func (s *Session) PlayTrack(ctx context.Context, t track.Track) {
	s.mu.Lock()
	if s.current != nil && s.current.ID != t.ID {
		s.pushHistory(*s.current)
	}
	s.setCurrent(t)
	s.playing = true
	s.mu.Unlock()

	s.report(ctx, t.ID)
	s.notify()
}

// PauseTrack stops playback without changing the current track.
func (s *Session) PauseTrack() {
	s.mu.Lock()
	if s.current == nil || !s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = false
	s.mu.Unlock()
	s.notify()
}

// ResumeTrack restarts playback of the current track.
func (s *Session) ResumeTrack() {
	s.mu.Lock()
	if s.current == nil || s.playing {
		s.mu.Unlock()
		return
	}
	s.playing = true
	s.mu.Unlock()
	s.notify()
}

// NextTrack advances to the queue head and plays it, starting playback
// from Idle too. With an empty queue it does nothing.
func (s *Session) NextTrack(ctx context.Context) bool {
	s.mu.Lock()
	if len(s.queue) == 0 {
		s.mu.Unlock()
		return false
	}
	next := s.queue[0]
	s.queue = s.queue[1:]
	if s.current != nil {
		s.pushHistory(*s.current)
	}
	s.setCurrent(next)
	s.playing = true
	s.mu.Unlock()

	s.report(ctx, next.ID)
	s.notify()
	return true
}

// PreviousTrack rewinds to the most recent history entry, returning the
// current track to the front of the queue. With no history it only
// resumes the current track.
func (s *Session) PreviousTrack(ctx context.Context) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}

	if len(s.history) == 0 {
		s.playing = true
		s.position = 0
		s.mu.Unlock()
		s.notify()
		return
	}

	prev := s.history[len(s.history)-1]
	s.history = s.history[:len(s.history)-1]
	s.queue = append([]track.Track{*s.current}, s.queue...)
	s.setCurrent(prev)
	s.playing = true
	s.mu.Unlock()

	s.report(ctx, prev.ID)
	s.notify()
}

// AddToQueue appends t to the pending queue.
func (s *Session) AddToQueue(t track.Track) {
	s.mu.Lock()
	s.queue = append(s.queue, t)
	s.mu.Unlock()
	s.notify()
}

// ClearQueue drops all pending tracks; the current track keeps playing.
func (s *Session) ClearQueue() {
	s.mu.Lock()
	s.queue = nil
	s.mu.Unlock()
	s.notify()
}

// Progress records the media position. Reaching the end of the media
// advances to the next queued track, or pauses when the queue is empty.
func (s *Session) Progress(ctx context.Context, elapsed, duration time.Duration) {
	s.mu.Lock()
	if s.current == nil {
		s.mu.Unlock()
		return
	}
	s.position = elapsed
	s.duration = duration
	ended := duration > 0 && elapsed >= duration
	s.mu.Unlock()

	if !ended {
		return
	}
	if s.NextTrack(ctx) {
		return
	}

	s.mu.Lock()
	s.playing = false
	s.position = s.duration
	s.mu.Unlock()
	s.notify()
}

func (s *Session) setCurrent(t track.Track) {
	cur := t
	s.current = &cur
	s.position = 0
	s.duration = 0
}

func (s *Session) pushHistory(t track.Track) {
	if s.historyCap == 0 {
		return
	}
	s.history = append(s.history, t)
	if over := len(s.history) - s.historyCap; over > 0 {
		s.history = append([]track.Track(nil), s.history[over:]...)
	}
}

func (s *Session) snapshot() State {
	st := State{
		Playing:  s.playing,
		Queue:    append([]track.Track(nil), s.queue...),
		History:  append([]track.Track(nil), s.history...),
		Position: s.position,
		Duration: s.duration,
	}
	if s.current != nil {
		cur := *s.current
		st.Current = &cur
	}
	return st
}

func (s *Session) notify() {
	s.mu.Lock()
	st := s.snapshot()
	listeners := append([](func(State))(nil), s.listeners...)
	s.mu.Unlock()

	for _, fn := range listeners {
		fn(st)
	}
}

func (s *Session) report(ctx context.Context, trackID int64) {
	if s.reporter == nil {
		return
	}
	if err := s.reporter.RecordPlay(ctx, trackID); err != nil {
		log.Warn().Err(err).Int64("track_id", trackID).Msg("record play failed")
	}
}
