package conference

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/meshcall/meshcall/internal/domain"
)

// Sequencer gates conference events on the monotonic conference
// version so multi-party state changes apply in order regardless of
// delivery order. Versionless events bypass the gate. Events arriving
// before the join snapshot is known are cached and replayed once the
// conference becomes active.
type Sequencer struct {
	wait         time.Duration
	maxAttempts  int
	selfEndpoint func() string
	dispatch     func(domain.ConferenceEvent)
	onError      func(error)
	log          zerolog.Logger

	// after schedules a deferred recheck; replaced in tests.
	after func(time.Duration, func())

	mu         sync.Mutex
	active     bool
	version    int
	prejoin    []domain.ConferenceEvent
	queue      []domain.ConferenceEvent
	deferred   []*deferredEvent
	processing bool
}

type deferredEvent struct {
	ev       domain.ConferenceEvent
	attempts int
}

// SequencerConfig tunes the out-of-order tolerance.
type SequencerConfig struct {
	Wait        time.Duration
	MaxAttempts int
}

// NewSequencer builds a sequencer delivering in-order events to dispatch.
func NewSequencer(cfg SequencerConfig, selfEndpoint func() string, dispatch func(domain.ConferenceEvent), onError func(error), log zerolog.Logger) *Sequencer {
	if cfg.Wait == 0 {
		cfg.Wait = 700 * time.Millisecond
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 3
	}
	return &Sequencer{
		wait:         cfg.Wait,
		maxAttempts:  cfg.MaxAttempts,
		selfEndpoint: selfEndpoint,
		dispatch:     dispatch,
		onError:      onError,
		log:          log.With().Str("module", "sequencer").Logger(),
		after:        func(d time.Duration, fn func()) { time.AfterFunc(d, fn) },
	}
}

// Begin activates the sequencer at the version reported by the join
// snapshot and replays events cached before the join completed.
func (s *Sequencer) Begin(version int) {
	s.mu.Lock()
	s.active = true
	s.version = version
	cached := s.prejoin
	s.prejoin = nil
	for _, ev := range cached {
		s.gateLocked(ev)
	}
	s.drainLocked()
	s.mu.Unlock()
}

// Reset deactivates the sequencer and drops all pending state.
func (s *Sequencer) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = false
	s.version = 0
	s.prejoin = nil
	s.queue = nil
	s.deferred = nil
}

// Version returns the next version the sequencer will accept.
func (s *Sequencer) Version() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.version
}

// Enqueue feeds one received event through the version gate.
func (s *Sequencer) Enqueue(ev domain.ConferenceEvent) {
	s.mu.Lock()
	if !s.active {
		s.prejoin = append(s.prejoin, ev)
		s.mu.Unlock()
		return
	}
	s.gateLocked(ev)
	s.drainLocked()
	s.mu.Unlock()
}

// gateLocked routes an event to the ready queue, the deferred set, or
// the floor depending on its version.
func (s *Sequencer) gateLocked(ev domain.ConferenceEvent) {
	base := ev.Base()
	if base.Version == nil {
		s.queue = append(s.queue, ev)
		return
	}
	switch v := *base.Version; {
	case v < s.version:
		s.log.Debug().Int("version", v).Int("local", s.version).Str("type", base.Type).Msg("discarding stale event")
	case v > s.version:
		d := &deferredEvent{ev: ev}
		s.deferred = append(s.deferred, d)
		s.log.Debug().Int("version", v).Int("local", s.version).Str("type", base.Type).Msg("deferring future event")
		s.after(s.wait, func() { s.recheck(d) })
	default:
		s.queue = append(s.queue, ev)
	}
}

// drainLocked processes the ready queue as a single in-order pass. The
// processing flag makes reentrant calls harmless: events enqueued by a
// dispatch callback are picked up by the pass already running.
func (s *Sequencer) drainLocked() {
	if s.processing {
		return
	}
	s.processing = true
	defer func() { s.processing = false }()

	for len(s.queue) > 0 {
		ev := s.queue[0]
		s.queue = s.queue[1:]
		base := ev.Base()

		if base.Version != nil && *base.Version < s.version {
			// A duplicate delivery promoted alongside the copy that
			// already advanced the version; it is stale by now.
			s.log.Debug().Int("version", *base.Version).Int("local", s.version).Str("type", base.Type).Msg("discarding stale queued event")
			continue
		}

		deliver := true
		if base.Version != nil && base.UserEndpointID != "" && base.UserEndpointID == s.selfEndpoint() {
			// Own events still advance the version but are not replayed
			// back to the local consumer.
			deliver = false
		}

		if deliver {
			s.mu.Unlock()
			s.dispatch(ev)
			s.mu.Lock()
		}
		if base.Version != nil {
			s.version = *base.Version + 1
			s.promoteLocked()
		}
	}
}

// promoteLocked moves deferred events whose version has come due into
// the ready queue and discards ones the version has passed.
func (s *Sequencer) promoteLocked() {
	kept := s.deferred[:0]
	for _, d := range s.deferred {
		switch v := *d.ev.Base().Version; {
		case v == s.version:
			s.queue = append(s.queue, d.ev)
		case v < s.version:
			s.log.Debug().Int("version", v).Msg("discarding overtaken deferred event")
		default:
			kept = append(kept, d)
		}
	}
	s.deferred = kept
}

// recheck is the timer-driven retry for one deferred event.
func (s *Sequencer) recheck(d *deferredEvent) {
	s.mu.Lock()
	idx := -1
	for i, cur := range s.deferred {
		if cur == d {
			idx = i
			break
		}
	}
	if idx < 0 {
		// Promoted or dropped in the meantime.
		s.mu.Unlock()
		return
	}

	v := *d.ev.Base().Version
	switch {
	case v == s.version:
		s.deferred = append(s.deferred[:idx], s.deferred[idx+1:]...)
		s.queue = append(s.queue, d.ev)
		s.drainLocked()
		s.mu.Unlock()
		return
	case v < s.version:
		s.deferred = append(s.deferred[:idx], s.deferred[idx+1:]...)
		s.mu.Unlock()
		return
	}

	d.attempts++
	if d.attempts >= s.maxAttempts {
		s.deferred = append(s.deferred[:idx], s.deferred[idx+1:]...)
		base := d.ev.Base()
		s.mu.Unlock()
		s.log.Warn().Int("version", v).Str("type", base.Type).Msg("dropping event after retry budget")
		if s.onError != nil {
			s.onError(fmt.Errorf("event %s version %d never became applicable: %w", base.Type, v, domain.ErrInternal))
		}
		return
	}
	s.mu.Unlock()
	s.after(s.wait, func() { s.recheck(d) })
}
