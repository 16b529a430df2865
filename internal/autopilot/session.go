// Package autopilot decides when and how to move playback from the active
// deck to the other one: a periodic remaining-time monitor, beat-matched rate
// computation, and a stepped equal-power crossfade.
package autopilot

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/deckhand-audio/deckhand/internal/deck"
	"github.com/deckhand-audio/deckhand/internal/mix"
	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// Config holds autopilot parameters.
type Config struct {
	MonitorInterval   time.Duration // cadence of the remaining-time check
	Lookahead         time.Duration // transition when less than this remains
	CrossfadeDuration time.Duration
	CrossfadeSteps    int
}

// Status is the autopilot state exposed to the control surface.
type Status struct {
	Engaged       bool    `json:"engaged"`
	Transitioning bool    `json:"transitioning"`
	ActiveDeck    deck.ID `json:"active_deck"`
	Remaining     float64 `json:"remaining"` // seconds on the active deck
}

// Session owns the two decks, the selection pool, and the transition state.
// The transitioning token is the sole mutual exclusion for transitions: a
// compare-and-swap claims it, so at most one transition is in flight no
// matter how the monitor cadence changes.
type Session struct {
	deckA *deck.Deck
	deckB *deck.Deck
	list  *playlist.Playlist
	cfg   Config

	clock    Clock
	selectFn SelectFunc

	mu      sync.RWMutex
	engaged bool
	active  deck.ID
	target  deck.ID // deck an in-flight transition is fading in, "" otherwise

	transitioning atomic.Bool
	endCh         chan deck.ID
}

// NewSession wires the autopilot to its decks and playlist.
func NewSession(a, b *deck.Deck, list *playlist.Playlist, cfg Config) *Session {
	if cfg.MonitorInterval <= 0 {
		cfg.MonitorInterval = time.Second
	}
	if cfg.Lookahead <= 0 {
		cfg.Lookahead = 10 * time.Second
	}
	if cfg.CrossfadeDuration <= 0 {
		cfg.CrossfadeDuration = 8 * time.Second
	}
	if cfg.CrossfadeSteps <= 0 {
		cfg.CrossfadeSteps = 100
	}
	s := &Session{
		deckA:    a,
		deckB:    b,
		list:     list,
		cfg:      cfg,
		clock:    realClock{},
		selectFn: SelectRandom,
		active:   deck.A,
		endCh:    make(chan deck.ID, 2),
	}
	a.SetOnEnded(func() { s.notifyEnded(deck.A) })
	b.SetOnEnded(func() { s.notifyEnded(deck.B) })
	return s
}

// SetSelectFunc replaces the next-track selection policy.
func (s *Session) SetSelectFunc(fn SelectFunc) {
	s.mu.Lock()
	s.selectFn = fn
	s.mu.Unlock()
}

// Engage enters monitoring. When nothing is playing and the playlist has
// entries, the first entry starts immediately on deck A.
func (s *Session) Engage() {
	s.mu.Lock()
	s.engaged = true
	s.mu.Unlock()

	if s.deckA.State() == deck.Playing || s.deckB.State() == deck.Playing {
		return
	}
	first := s.list.At(0)
	if first == nil {
		return
	}
	if err := s.deckA.Load(first); err != nil {
		log.Printf("autopilot: cold start load failed: %v", err)
		return
	}
	s.deckA.SetVolume(1)
	if err := s.deckA.Play(0); err != nil {
		log.Printf("autopilot: cold start play failed: %v", err)
		return
	}
	s.mu.Lock()
	s.active = deck.A
	s.mu.Unlock()
	log.Printf("autopilot: engaged, started %q on deck A", first.Title)
}

// Disengage halts the monitor. Playing audio is not stopped, and an in-flight
// crossfade runs to completion; only process shutdown cancels it.
func (s *Session) Disengage() {
	s.mu.Lock()
	s.engaged = false
	s.mu.Unlock()
	log.Println("autopilot: disengaged")
}

// Engaged reports whether the monitor is acting on its checks.
func (s *Session) Engaged() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engaged
}

// ActiveDeck returns the id of the deck currently considered audible.
func (s *Session) ActiveDeck() deck.ID {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.active
}

// TransitionTarget reports the deck an in-flight transition is loading and
// fading in. Manual transport on that deck should be refused while the
// autopilot owns it; the second return is false when no transition is
// running.
func (s *Session) TransitionTarget() (deck.ID, bool) {
	if !s.transitioning.Load() {
		return "", false
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.target, s.target != ""
}

// Status returns the current autopilot state.
func (s *Session) Status() Status {
	s.mu.RLock()
	engaged := s.engaged
	active := s.active
	s.mu.RUnlock()
	return Status{
		Engaged:       engaged,
		Transitioning: s.transitioning.Load(),
		ActiveDeck:    active,
		Remaining:     s.deckFor(active).Remaining(),
	}
}

// Run drives the monitor until ctx is cancelled.
func (s *Session) Run(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.MonitorInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case id := <-s.endCh:
			s.handleEnded(id)
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick checks the active deck's remaining time and claims a transition when
// the lookahead window is entered. A tick that observes an in-flight
// transition skips; that is the normal case, not an error.
func (s *Session) tick(ctx context.Context) {
	if !s.Engaged() {
		return
	}
	d := s.deckFor(s.ActiveDeck())
	if d.State() != deck.Playing || d.Track() == nil {
		return
	}
	if d.Remaining() >= s.cfg.Lookahead.Seconds() {
		return
	}
	if !s.transitioning.CompareAndSwap(false, true) {
		return
	}
	go s.transition(ctx)
}

// transition moves playback to the other deck: select, load, beat-match,
// play, crossfade, flip. Runs with the transition token held; any failure
// aborts, releases the token, and monitoring resumes.
func (s *Session) transition(ctx context.Context) {
	defer func() {
		s.mu.Lock()
		s.target = ""
		s.mu.Unlock()
		s.transitioning.Store(false)
	}()

	outgoing := s.deckFor(s.ActiveDeck())
	incoming := s.deckFor(other(outgoing.ID()))
	current := outgoing.Track()
	if current == nil {
		return
	}
	s.mu.Lock()
	s.target = incoming.ID()
	s.mu.Unlock()

	next := s.selectNext(current)
	if next == nil {
		log.Println("autopilot: no playable next track, transition aborted")
		return
	}
	if next.Tempo <= 0 {
		// Validate-on-append makes this unreachable, but a zero tempo here
		// would divide the beat-match below.
		log.Printf("autopilot: track %q has invalid tempo, transition aborted", next.Title)
		return
	}

	if err := incoming.Load(next); err != nil {
		log.Printf("autopilot: load %q failed: %v, transition aborted", next.Title, err)
		return
	}

	rate := current.Tempo / next.Tempo
	incoming.SetRate(rate)
	incoming.SetVolume(0)
	if err := incoming.Play(0); err != nil {
		log.Printf("autopilot: play %q failed: %v, transition aborted", next.Title, err)
		return
	}
	log.Printf("autopilot: transition %s -> %s, %q at rate %.4f", outgoing.ID(), incoming.ID(), next.Title, rate)

	if err := s.crossfade(ctx, outgoing); err != nil {
		log.Printf("autopilot: crossfade cancelled: %v", err)
		return
	}

	// Manual transport may have reached the incoming deck despite the
	// control-surface guard. Flipping to a deck that is no longer playing
	// would leave the monitor staring at a silent active deck, so keep the
	// outgoing one audible instead.
	if incoming.State() != deck.Playing {
		log.Printf("autopilot: deck %s stopped during the transition, keeping %s active", incoming.ID(), outgoing.ID())
		outgoing.SetVolume(1)
		outgoing.ResetFilter()
		return
	}

	outgoing.Stop()
	outgoing.ResetFilter()
	s.mu.Lock()
	s.active = incoming.ID()
	s.mu.Unlock()
	log.Printf("autopilot: deck %s is now active", incoming.ID())
}

// crossfade executes the stepped fader ramp. During the final 30% of steps
// the outgoing deck's filter is swept toward the muffled floor.
func (s *Session) crossfade(ctx context.Context, outgoing *deck.Deck) error {
	steps := s.cfg.CrossfadeSteps
	outgoingIsA := outgoing.ID() == deck.A
	filterStep := steps * 7 / 10
	filterRamp := s.cfg.CrossfadeDuration * 3 / 10

	f := fade{
		duration: s.cfg.CrossfadeDuration,
		steps:    steps,
		stepFn: func(step int) {
			fadeValue := float64(step) / float64(steps)
			pos := fadeValue
			if !outgoingIsA {
				pos = 1 - fadeValue
			}
			levelA, levelB := mix.Levels(pos)
			s.deckA.SetVolume(levelA)
			s.deckB.SetVolume(levelB)

			if step == filterStep {
				outgoing.MuffleFilter(filterRamp)
			}
		},
	}
	return f.run(ctx, s.clock)
}

// handleEnded covers the degenerate case the lookahead is meant to preempt:
// the active deck ran out naturally. The next selection starts with a hard
// cut on the deck that just went idle.
func (s *Session) handleEnded(id deck.ID) {
	if !s.Engaged() {
		return
	}
	if !s.transitioning.CompareAndSwap(false, true) {
		return
	}
	defer s.transitioning.Store(false)

	d := s.deckFor(id)
	next := s.selectNext(d.Track())
	if next == nil {
		log.Println("autopilot: track ended with no playable successor")
		return
	}
	if err := d.Load(next); err != nil {
		log.Printf("autopilot: reload after end failed: %v", err)
		return
	}
	d.SetRate(1)
	d.SetVolume(1)
	if err := d.Play(0); err != nil {
		log.Printf("autopilot: restart after end failed: %v", err)
		return
	}
	s.mu.Lock()
	s.active = id
	s.mu.Unlock()
	log.Printf("autopilot: hard cut to %q on deck %s after natural end", next.Title, id)
}

// selectNext filters the pool to valid tracks and applies the policy.
func (s *Session) selectNext(current *playlist.Track) *playlist.Track {
	pool := s.list.Tracks()
	valid := pool[:0:0]
	for _, t := range pool {
		if t.Validate() == nil {
			valid = append(valid, t)
		}
	}
	s.mu.RLock()
	fn := s.selectFn
	s.mu.RUnlock()
	return fn(valid, current)
}

func (s *Session) deckFor(id deck.ID) *deck.Deck {
	if id == deck.B {
		return s.deckB
	}
	return s.deckA
}

func other(id deck.ID) deck.ID {
	if id == deck.A {
		return deck.B
	}
	return deck.A
}

func (s *Session) notifyEnded(id deck.ID) {
	select {
	case s.endCh <- id:
	default:
	}
}
