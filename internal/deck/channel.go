package deck

import (
	"time"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// Channel is the slice of the audio engine one deck controls: a buffered
// playback source with adjustable rate, a smoothed gain, a sweepable low-pass
// filter, an optional loop region, and an end-of-playback notification.
type Channel interface {
	// Load binds a decoded source to the channel, replacing any previous one.
	Load(src *playlist.Source) error
	// Start begins output at the given offset (seconds) and playback rate.
	Start(offsetSeconds, rate float64)
	// Halt stops output immediately. Safe to call when already stopped.
	Halt()
	// SetRate ramps the playback rate to the target over the given interval.
	SetRate(rate float64, ramp time.Duration)
	// SetGain ramps the output gain to level in [0,1] over the given interval.
	SetGain(level float64, ramp time.Duration)
	// SetCutoff sets the low-pass cutoff instantaneously.
	SetCutoff(hz float64)
	// FilterSweep runs a down-and-back exponential cutoff sweep to the floor
	// frequency and returns to the neutral cutoff over the given duration.
	FilterSweep(floorHz float64, over time.Duration)
	// RampCutoff moves the cutoff toward hz exponentially over the interval.
	RampCutoff(hz float64, over time.Duration)
	// SetLoop enables a loop region starting at startSeconds.
	SetLoop(startSeconds, lengthSeconds float64)
	// ClearLoop disables any active loop region.
	ClearLoop()
	// OnEnded registers the natural end-of-playback callback.
	OnEnded(fn func())
}
