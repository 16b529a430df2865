// Package ingest is the path from uploaded audio bytes to a playable,
// analyzed track in the playlist.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"log"

	"github.com/google/uuid"

	"github.com/deckhand-audio/deckhand/internal/analysis"
	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// Ingestor decodes, analyzes, and appends tracks. The analysis cache is
// optional; pass nil to analyze every file.
type Ingestor struct {
	list         *playlist.Playlist
	cache        *Cache
	defaultTempo float64
}

func New(list *playlist.Playlist, cache *Cache) *Ingestor {
	return &Ingestor{list: list, cache: cache}
}

// SetDefaultTempo overrides the tempo assigned to tracks whose periodicity
// detection produced no confident estimate. Zero keeps the analyzer's own
// fallback.
func (in *Ingestor) SetDefaultTempo(bpm float64) {
	in.defaultTempo = bpm
}

// Ingest turns raw file bytes into an analyzed Track and appends it to the
// playlist. On any failure the playlist is untouched and the error is
// surfaced to the caller.
func (in *Ingestor) Ingest(ctx context.Context, title, filename string, data []byte) (*playlist.Track, error) {
	src, err := decode(filename, data)
	if err != nil {
		return nil, err
	}

	sum := sha256.Sum256(data)
	hash := hex.EncodeToString(sum[:])

	res, err := in.cachedAnalysis(ctx, hash, src)
	if err != nil {
		return nil, err
	}
	if res.Confidence == 0 && in.defaultTempo > 0 {
		res.Tempo = in.defaultTempo
	}

	track := &playlist.Track{
		ID:            uuid.NewString(),
		Title:         title,
		Source:        src,
		Tempo:         res.Tempo,
		Energy:        res.Energy,
		EnergyProfile: res.EnergyProfile,
		Duration:      res.Duration,
	}
	if err := in.list.Append(track); err != nil {
		return nil, err
	}
	log.Printf("ingested %q: %.1f BPM (confidence %.2f), %.1fs, energy %.3f",
		title, track.Tempo, res.Confidence, track.Duration, track.Energy)
	return track, nil
}

func (in *Ingestor) cachedAnalysis(ctx context.Context, hash string, src *playlist.Source) (analysis.Result, error) {
	if in.cache != nil {
		res, err := in.cache.Get(ctx, hash)
		if err == nil {
			return res, nil
		}
		if !errors.Is(err, ErrCacheMiss) {
			log.Printf("analysis cache read failed: %v", err)
		}
	}

	res, err := analysis.Analyze(downmix(src), src.SampleRate)
	if err != nil {
		return analysis.Result{}, err
	}
	if in.cache != nil {
		if err := in.cache.Put(ctx, hash, res); err != nil {
			log.Printf("analysis cache write failed: %v", err)
		}
	}
	return res, nil
}
