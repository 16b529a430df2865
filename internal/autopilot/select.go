package autopilot

import (
	"math"
	"math/rand/v2"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// SelectFunc picks the next track from the pool, or nil when nothing is
// playable. current may be nil during a cold start.
type SelectFunc func(pool []*playlist.Track, current *playlist.Track) *playlist.Track

// SelectRandom picks uniformly from the whole pool, the currently playing
// track included. Reselecting the same track is an accepted quality gap of
// this policy; swap in a different SelectFunc to change it.
func SelectRandom(pool []*playlist.Track, _ *playlist.Track) *playlist.Track {
	if len(pool) == 0 {
		return nil
	}
	return pool[rand.IntN(len(pool))]
}

// SelectByEnergy picks the track whose overall energy sits closest to the
// current one, excluding the current track itself. Falls back to random when
// there is no meaningful alternative.
func SelectByEnergy(pool []*playlist.Track, current *playlist.Track) *playlist.Track {
	if current == nil {
		return SelectRandom(pool, nil)
	}
	var best *playlist.Track
	bestDist := math.Inf(1)
	for _, t := range pool {
		if t == current || t.ID == current.ID {
			continue
		}
		if d := math.Abs(t.Energy - current.Energy); d < bestDist {
			bestDist = d
			best = t
		}
	}
	if best == nil {
		return SelectRandom(pool, current)
	}
	return best
}
