// Package engine is the PCM audio engine behind the two decks: it renders
// both channels at a real-time frame rate, sums them into the master mix, and
// hands 20ms frames to the streaming layer.
package engine

import (
	"context"
	"encoding/binary"
	"time"
)

const (
	SampleRate    = 48000
	Channels      = 2
	FrameDuration = 20 * time.Millisecond
	FrameSize     = 960                  // samples per channel per 20ms frame
	FrameSamples  = FrameSize * Channels // total interleaved samples per frame
	FrameBytes    = FrameSamples * 2     // bytes per frame (int16 = 2 bytes)
)

// Engine owns the two playback channels and the master frame loop.
type Engine struct {
	chanA   *Channel
	chanB   *Channel
	frameCh chan []int16
}

// New creates an engine with silent channels A and B.
func New() *Engine {
	return &Engine{
		chanA:   newChannel(),
		chanB:   newChannel(),
		frameCh: make(chan []int16, 100),
	}
}

// ChannelA returns the channel deck A drives.
func (e *Engine) ChannelA() *Channel { return e.chanA }

// ChannelB returns the channel deck B drives.
func (e *Engine) ChannelB() *Channel { return e.chanB }

// Frames returns the channel of outgoing master-mix PCM frames (20ms each).
func (e *Engine) Frames() <-chan []int16 {
	return e.frameCh
}

// Run renders frames at real-time rate until ctx is cancelled.
func (e *Engine) Run(ctx context.Context) {
	defer close(e.frameCh)

	ticker := time.NewTicker(FrameDuration)
	defer ticker.Stop()

	bufA := make([]float64, FrameSamples)
	bufB := make([]float64, FrameSamples)

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		frame := e.RenderFrame(bufA, bufB)
		select {
		case e.frameCh <- frame:
		case <-ctx.Done():
			return
		}
	}
}

// RenderFrame renders one 20ms frame from both channels into a fresh int16
// buffer, summing and clipping. Scratch buffers are caller-provided so the
// run loop can reuse them.
func (e *Engine) RenderFrame(bufA, bufB []float64) []int16 {
	e.chanA.render(bufA)
	e.chanB.render(bufB)

	frame := make([]int16, FrameSamples)
	for i := range frame {
		mixed := (bufA[i] + bufB[i]) * 32767
		if mixed > 32767 {
			mixed = 32767
		} else if mixed < -32768 {
			mixed = -32768
		}
		frame[i] = int16(mixed)
	}
	return frame
}

// SamplesToBytes converts int16 samples to little-endian bytes.
func SamplesToBytes(samples []int16) []byte {
	buf := make([]byte, len(samples)*2)
	for i, s := range samples {
		binary.LittleEndian.PutUint16(buf[i*2:], uint16(s))
	}
	return buf
}
