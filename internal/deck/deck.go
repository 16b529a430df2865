// Package deck implements the per-deck playback state machine. A deck owns no
// audio samples; it drives one engine channel and tracks transport state.
package deck

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// ID names one of the two playback slots.
type ID string

const (
	A ID = "A"
	B ID = "B"
)

// State is the deck's transport state.
type State int

const (
	Idle State = iota
	Loaded
	Playing
	Paused
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Loaded:
		return "loaded"
	case Playing:
		return "playing"
	case Paused:
		return "paused"
	}
	return "unknown"
}

// FX names a triggerable effect.
type FX string

const (
	FXFilter FX = "filter"
	FXLoop   FX = "loop"
)

const (
	// Musically usable rate bounds; out-of-range requests are clamped.
	MinRate = 0.5
	MaxRate = 2.0

	// Filter sweep shape: open cutoff, muffled floor, round trip time.
	FilterOpenHz        = 20000.0
	FilterFloorHz       = 200.0
	FilterSweepDuration = time.Second

	// Short ramps on rate and gain changes avoid audible steps.
	DefaultRateRamp = 100 * time.Millisecond
	DefaultGainRamp = 100 * time.Millisecond

	loopBeats = 4
)

var ErrNoTrackLoaded = errors.New("deck: no track loaded")

// Deck is a single playback slot. All methods are safe for concurrent use;
// manual transport and the autopilot share it.
type Deck struct {
	id ID
	ch Channel

	mu           sync.Mutex
	state        State
	track        *playlist.Track
	rate         float64
	startTime    time.Time
	pausedOffset float64 // seconds
	looping      bool

	rateRamp time.Duration
	gainRamp time.Duration

	now     func() time.Time
	onLoad  func(*playlist.Track)
	onEnded func()
}

// New wires a deck to its engine channel and registers for end-of-playback.
func New(id ID, ch Channel) *Deck {
	d := &Deck{
		id:       id,
		ch:       ch,
		rate:     1.0,
		rateRamp: DefaultRateRamp,
		gainRamp: DefaultGainRamp,
		now:      time.Now,
	}
	ch.OnEnded(d.handleEnded)
	return d
}

// SetRampDurations overrides the ramp lengths applied on rate and gain
// changes. Non-positive values keep the defaults.
func (d *Deck) SetRampDurations(rate, gain time.Duration) {
	d.mu.Lock()
	if rate > 0 {
		d.rateRamp = rate
	}
	if gain > 0 {
		d.gainRamp = gain
	}
	d.mu.Unlock()
}

func (d *Deck) ID() ID { return d.id }

// SetOnLoad registers the metadata display hook, fired after every Load.
func (d *Deck) SetOnLoad(fn func(*playlist.Track)) {
	d.mu.Lock()
	d.onLoad = fn
	d.mu.Unlock()
}

// SetOnEnded registers the natural end-of-track hook. It fires only when the
// deck was still Playing when the engine ran out of samples.
func (d *Deck) SetOnEnded(fn func()) {
	d.mu.Lock()
	d.onEnded = fn
	d.mu.Unlock()
}

// Load forces the deck to Idle, binds the track's audio to the engine
// channel, and leaves the deck Loaded. The previous track reference is
// dropped even if it was playing.
func (d *Deck) Load(t *playlist.Track) error {
	d.mu.Lock()
	if d.state == Playing || d.state == Paused {
		d.ch.Halt()
	}
	d.state = Idle

	if err := d.ch.Load(t.Source); err != nil {
		d.mu.Unlock()
		return err
	}
	d.track = t
	d.looping = false
	d.pausedOffset = 0
	d.state = Loaded
	hook := d.onLoad
	d.mu.Unlock()

	if hook != nil {
		hook(t)
	}
	return nil
}

// Play starts output at the given offset into the track at the current rate.
// Fails without mutating state when no track is loaded.
func (d *Deck) Play(offsetSeconds float64) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return ErrNoTrackLoaded
	}
	d.ch.Start(offsetSeconds, d.rate)
	d.state = Playing
	d.startTime = d.now().Add(-time.Duration(offsetSeconds * float64(time.Second)))
	return nil
}

// TogglePlay pauses a playing deck, recording the elapsed offset, or resumes
// a paused or stopped deck from the recorded offset. No-op without a track.
func (d *Deck) TogglePlay() {
	d.mu.Lock()
	defer d.mu.Unlock()
	switch d.state {
	case Playing:
		d.pausedOffset = d.elapsedLocked()
		d.ch.Halt()
		d.state = Paused
	default:
		if d.track == nil {
			return
		}
		d.ch.Start(d.pausedOffset, d.rate)
		d.state = Playing
		d.startTime = d.now().Add(-time.Duration(d.pausedOffset * float64(time.Second)))
	}
}

// Stop halts output and returns to Idle. Idempotent; clears no other state.
func (d *Deck) Stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ch.Halt()
	d.state = Idle
}

// SetRate sets the playback rate, clamped to the musically usable range, and
// ramps the engine there over a short interval.
func (d *Deck) SetRate(rate float64) {
	if rate < MinRate {
		rate = MinRate
	}
	if rate > MaxRate {
		rate = MaxRate
	}
	d.mu.Lock()
	d.rate = rate
	d.ch.SetRate(rate, d.rateRamp)
	d.mu.Unlock()
}

// Rate returns the current playback rate.
func (d *Deck) Rate() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.rate
}

// EffectiveTempo is the displayed tempo under the current rate, rounded to a
// whole BPM. The track's stored tempo is never modified.
func (d *Deck) EffectiveTempo() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return 0
	}
	return math.Round(d.track.Tempo * d.rate)
}

// SetVolume ramps the channel gain to level in [0,1].
func (d *Deck) SetVolume(level float64) {
	if level < 0 {
		level = 0
	}
	if level > 1 {
		level = 1
	}
	d.mu.Lock()
	d.ch.SetGain(level, d.gainRamp)
	d.mu.Unlock()
}

// TriggerFX fires a one-shot effect. The loop effect silently no-ops without
// a loaded track; unknown kinds are ignored.
func (d *Deck) TriggerFX(kind FX) {
	switch kind {
	case FXFilter:
		d.ch.FilterSweep(FilterFloorHz, FilterSweepDuration)
	case FXLoop:
		d.mu.Lock()
		defer d.mu.Unlock()
		if d.track == nil {
			return
		}
		if d.looping {
			d.ch.ClearLoop()
			d.looping = false
			return
		}
		length := 60.0 / d.track.Tempo * loopBeats
		d.ch.SetLoop(d.elapsedLocked(), length)
		d.looping = true
	}
}

// ResetFilter reopens the channel filter to its neutral cutoff.
func (d *Deck) ResetFilter() {
	d.ch.SetCutoff(FilterOpenHz)
}

// MuffleFilter ramps the filter cutoff down to the muffled floor over the
// given interval. Used to mask residual energy at the tail of a crossfade.
func (d *Deck) MuffleFilter(over time.Duration) {
	d.ch.RampCutoff(FilterFloorHz, over)
}

// State returns the current transport state.
func (d *Deck) State() State {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.state
}

// Track returns the loaded track, or nil.
func (d *Deck) Track() *playlist.Track {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.track
}

// Elapsed returns seconds of playback position: wall time since start while
// playing, the recorded offset while paused, zero otherwise.
func (d *Deck) Elapsed() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.elapsedLocked()
}

func (d *Deck) elapsedLocked() float64 {
	switch d.state {
	case Playing:
		return d.now().Sub(d.startTime).Seconds()
	case Paused:
		return d.pausedOffset
	}
	return 0
}

// Remaining returns seconds until the natural end of the loaded track, or 0
// when nothing is loaded.
func (d *Deck) Remaining() float64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.track == nil {
		return 0
	}
	r := d.track.Duration - d.elapsedLocked()
	if r < 0 {
		r = 0
	}
	return r
}

// handleEnded runs on the engine's notification of natural end-of-playback.
func (d *Deck) handleEnded() {
	d.mu.Lock()
	if d.state != Playing {
		d.mu.Unlock()
		return
	}
	d.state = Idle
	hook := d.onEnded
	d.mu.Unlock()

	if hook != nil {
		hook()
	}
}

// Snapshot is the read-only view exposed to the control surface.
type Snapshot struct {
	ID             ID      `json:"id"`
	State          string  `json:"state"`
	Title          string  `json:"track,omitempty"`
	Tempo          float64 `json:"tempo,omitempty"`
	EffectiveTempo float64 `json:"effective_tempo,omitempty"`
	Rate           float64 `json:"rate"`
	Position       float64 `json:"position"`
	Duration       float64 `json:"duration,omitempty"`
}

// Snapshot returns the deck's current display state.
func (d *Deck) Snapshot() Snapshot {
	d.mu.Lock()
	defer d.mu.Unlock()
	s := Snapshot{
		ID:       d.id,
		State:    d.state.String(),
		Rate:     d.rate,
		Position: d.elapsedLocked(),
	}
	if d.track != nil {
		s.Title = d.track.Title
		s.Tempo = d.track.Tempo
		s.EffectiveTempo = math.Round(d.track.Tempo * d.rate)
		s.Duration = d.track.Duration
	}
	return s
}
