// Package playlist holds the analyzed track records and the append-only
// sequence the autopilot selects from.
package playlist

import (
	"errors"
	"fmt"
	"sync"
)

var (
	ErrInvalidTempo    = errors.New("playlist: track tempo must be positive")
	ErrInvalidDuration = errors.New("playlist: track duration must be positive")
)

// Source is the opaque handle to a track's decoded audio. The playback engine
// is the only component that looks inside it.
type Source struct {
	Samples    []float64 // interleaved stereo
	SampleRate int
}

// Track is immutable once analyzed. Tempo and Duration are guaranteed
// positive for any track that passes Validate; beat-matching relies on that.
type Track struct {
	ID            string
	Title         string
	Source        *Source
	Tempo         float64   // beats per minute
	Energy        float64   // mean windowed RMS
	EnergyProfile []float64 // time-ordered windowed RMS
	Duration      float64   // seconds
}

// Validate rejects tracks that would break beat-matching downstream.
func (t *Track) Validate() error {
	if t.Tempo <= 0 {
		return fmt.Errorf("%w: %q has tempo %v", ErrInvalidTempo, t.Title, t.Tempo)
	}
	if t.Duration <= 0 {
		return fmt.Errorf("%w: %q has duration %v", ErrInvalidDuration, t.Title, t.Duration)
	}
	return nil
}

// Playlist is an insertion-ordered, append-only track sequence. Ingestion is
// the single writer; the UI and the autopilot read concurrently.
type Playlist struct {
	mu     sync.RWMutex
	tracks []*Track
}

func New() *Playlist {
	return &Playlist{}
}

// Append adds a validated track. Invalid tracks never enter the pool.
func (p *Playlist) Append(t *Track) error {
	if err := t.Validate(); err != nil {
		return err
	}
	p.mu.Lock()
	p.tracks = append(p.tracks, t)
	p.mu.Unlock()
	return nil
}

// Len returns the number of tracks.
func (p *Playlist) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.tracks)
}

// At returns the track at index i, or nil when out of range.
func (p *Playlist) At(i int) *Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	if i < 0 || i >= len(p.tracks) {
		return nil
	}
	return p.tracks[i]
}

// Tracks returns a snapshot of the sequence in insertion order.
func (p *Playlist) Tracks() []*Track {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Track, len(p.tracks))
	copy(out, p.tracks)
	return out
}
