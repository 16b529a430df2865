package engine

import (
	"errors"
	"math"
	"sync"
	"time"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// neutralCutoff is the fully open filter position; at or above it the
// low-pass stage is bypassed.
const neutralCutoff = 20000.0

var ErrNoSource = errors.New("engine: no source bound")

// Channel renders one deck's source: linear-interpolation resampling for the
// playback rate, a smoothed gain, and a one-pole low-pass filter with
// exponential cutoff ramps. All controls are safe for concurrent use with the
// render loop.
type Channel struct {
	mu sync.Mutex

	src     *playlist.Source
	pos     float64 // source frame position
	playing bool

	rate            float64
	rateTarget      float64
	rateStep        float64
	rateSamplesLeft int

	gain            float64
	gainTarget      float64
	gainStep        float64
	gainSamplesLeft int

	cutoff            float64
	cutoffTarget      float64
	cutoffRatio       float64
	cutoffSamplesLeft int
	returnCutoff      float64 // second leg of a sweep, 0 when none
	returnRamp        time.Duration

	lpL, lpR float64 // filter state per side

	loopOn    bool
	loopStart float64 // source frames
	loopEnd   float64

	onEnded func()
}

func newChannel() *Channel {
	return &Channel{
		rate:       1,
		rateTarget: 1,
		gain:       1,
		gainTarget: 1,
		cutoff:     neutralCutoff,
	}
}

// Load binds a decoded source. Any current playback stops.
func (c *Channel) Load(src *playlist.Source) error {
	if src == nil || len(src.Samples) == 0 || src.SampleRate <= 0 {
		return ErrNoSource
	}
	c.mu.Lock()
	c.src = src
	c.pos = 0
	c.playing = false
	c.loopOn = false
	c.mu.Unlock()
	return nil
}

// Start begins output at offset seconds into the source at the given rate.
func (c *Channel) Start(offsetSeconds, rate float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.src == nil {
		return
	}
	c.pos = offsetSeconds * float64(c.src.SampleRate)
	c.rate = rate
	c.rateTarget = rate
	c.rateSamplesLeft = 0
	c.playing = true
}

// Halt stops output immediately. Safe when already stopped.
func (c *Channel) Halt() {
	c.mu.Lock()
	c.playing = false
	c.mu.Unlock()
}

// SetRate ramps the playback rate to the target over the given interval.
func (c *Channel) SetRate(rate float64, ramp time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rateTarget = rate
	n := int(ramp.Seconds() * SampleRate)
	if n < 1 {
		c.rate = rate
		c.rateSamplesLeft = 0
		return
	}
	c.rateStep = (rate - c.rate) / float64(n)
	c.rateSamplesLeft = n
}

// SetGain ramps the output gain to level over the given interval.
func (c *Channel) SetGain(level float64, ramp time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gainTarget = level
	n := int(ramp.Seconds() * SampleRate)
	if n < 1 {
		c.gain = level
		c.gainSamplesLeft = 0
		return
	}
	c.gainStep = (level - c.gain) / float64(n)
	c.gainSamplesLeft = n
}

// SetCutoff sets the low-pass cutoff instantaneously, cancelling any ramp.
func (c *Channel) SetCutoff(hz float64) {
	c.mu.Lock()
	c.cutoff = clampCutoff(hz)
	c.cutoffSamplesLeft = 0
	c.returnCutoff = 0
	c.mu.Unlock()
}

// RampCutoff moves the cutoff exponentially toward hz over the interval.
func (c *Channel) RampCutoff(hz float64, over time.Duration) {
	c.mu.Lock()
	c.rampCutoffLocked(hz, over)
	c.returnCutoff = 0
	c.mu.Unlock()
}

// FilterSweep sweeps the cutoff down to floorHz and back to neutral, half the
// duration each way.
func (c *Channel) FilterSweep(floorHz float64, over time.Duration) {
	c.mu.Lock()
	c.rampCutoffLocked(floorHz, over/2)
	c.returnCutoff = neutralCutoff
	c.returnRamp = over / 2
	c.mu.Unlock()
}

func (c *Channel) rampCutoffLocked(hz float64, over time.Duration) {
	hz = clampCutoff(hz)
	n := int(over.Seconds() * SampleRate)
	if n < 1 || c.cutoff <= 0 {
		c.cutoff = hz
		c.cutoffSamplesLeft = 0
		return
	}
	c.cutoffTarget = hz
	c.cutoffRatio = math.Pow(hz/c.cutoff, 1/float64(n))
	c.cutoffSamplesLeft = n
}

// SetLoop enables a loop region starting at startSeconds.
func (c *Channel) SetLoop(startSeconds, lengthSeconds float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.src == nil || lengthSeconds <= 0 {
		return
	}
	sr := float64(c.src.SampleRate)
	c.loopStart = startSeconds * sr
	c.loopEnd = (startSeconds + lengthSeconds) * sr
	c.loopOn = true
}

// ClearLoop disables any active loop region.
func (c *Channel) ClearLoop() {
	c.mu.Lock()
	c.loopOn = false
	c.mu.Unlock()
}

// OnEnded registers the natural end-of-playback callback. It fires on its own
// goroutine so callers may re-enter the channel.
func (c *Channel) OnEnded(fn func()) {
	c.mu.Lock()
	c.onEnded = fn
	c.mu.Unlock()
}

// Playing reports whether the channel is producing output.
func (c *Channel) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.playing
}

// render fills out (interleaved stereo, FrameSamples long) with the channel's
// next frame. Silent channels zero the buffer but still advance ramps.
func (c *Channel) render(out []float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	srcFrames := 0.0
	var srcRatio float64
	if c.src != nil {
		srcFrames = float64(len(c.src.Samples) / Channels)
		srcRatio = float64(c.src.SampleRate) / SampleRate
	}

	ended := false
	for i := 0; i < FrameSize; i++ {
		c.stepRamps()

		var l, r float64
		if c.playing && c.src != nil && c.pos < srcFrames-1 {
			idx := int(c.pos)
			frac := c.pos - float64(idx)
			l = lerp(c.src.Samples[idx*2], c.src.Samples[(idx+1)*2], frac)
			r = lerp(c.src.Samples[idx*2+1], c.src.Samples[(idx+1)*2+1], frac)

			c.pos += c.rate * srcRatio
			if c.loopOn && c.pos >= c.loopEnd {
				c.pos = c.loopStart + (c.pos - c.loopEnd)
			}
			if c.pos >= srcFrames-1 {
				c.playing = false
				ended = true
			}
		}

		l *= c.gain
		r *= c.gain

		if c.cutoff < neutralCutoff {
			alpha := 1 - math.Exp(-2*math.Pi*c.cutoff/SampleRate)
			c.lpL += alpha * (l - c.lpL)
			c.lpR += alpha * (r - c.lpR)
			l, r = c.lpL, c.lpR
		} else {
			// Track the dry signal so engaging the filter has no step.
			c.lpL, c.lpR = l, r
		}

		out[i*2] = l
		out[i*2+1] = r
	}

	if ended && c.onEnded != nil {
		go c.onEnded()
	}
}

func (c *Channel) stepRamps() {
	if c.rateSamplesLeft > 0 {
		c.rate += c.rateStep
		c.rateSamplesLeft--
		if c.rateSamplesLeft == 0 {
			c.rate = c.rateTarget
		}
	}
	if c.gainSamplesLeft > 0 {
		c.gain += c.gainStep
		c.gainSamplesLeft--
		if c.gainSamplesLeft == 0 {
			c.gain = c.gainTarget
		}
	}
	if c.cutoffSamplesLeft > 0 {
		c.cutoff *= c.cutoffRatio
		c.cutoffSamplesLeft--
		if c.cutoffSamplesLeft == 0 {
			c.cutoff = c.cutoffTarget
			if c.returnCutoff > 0 {
				c.rampCutoffLocked(c.returnCutoff, c.returnRamp)
				c.returnCutoff = 0
			}
		}
	}
}

func lerp(a, b, frac float64) float64 {
	return a + (b-a)*frac
}

func clampCutoff(hz float64) float64 {
	if hz < 20 {
		return 20
	}
	if hz > neutralCutoff {
		return neutralCutoff
	}
	return hz
}
