// Package analysis extracts playback features from decoded audio: a windowed
// loudness profile, an overall energy figure, and a tempo estimate produced by
// onset-strength periodicity detection.
package analysis

import (
	"errors"
	"math"
)

// WindowSeconds is the length of one energy-profile window.
const WindowSeconds = 2

// FallbackTempo is reported when periodicity detection finds nothing reliable.
const FallbackTempo = 128.0

var ErrNoSamples = errors.New("analysis: no samples")

// Result holds the features extracted from one track. Fields are final once
// returned; callers treat the profile as time-ordered and immutable.
type Result struct {
	Tempo         float64   // beats per minute
	Confidence    float64   // 0..1, quality of the tempo estimate
	Energy        float64   // mean of the profile values
	EnergyProfile []float64 // windowed RMS, insertion order = time order
	Duration      float64   // seconds
}

// Analyze computes features for mono samples at the given rate. It is pure and
// deterministic: the same samples always yield the same result.
func Analyze(samples []float64, sampleRate int) (Result, error) {
	if len(samples) == 0 || sampleRate <= 0 {
		return Result{}, ErrNoSamples
	}

	profile := energyProfile(samples, sampleRate)

	var sum float64
	for _, v := range profile {
		sum += v
	}
	energy := sum / float64(len(profile))

	tempo, confidence := estimateTempo(samples, sampleRate)

	return Result{
		Tempo:         tempo,
		Confidence:    confidence,
		Energy:        energy,
		EnergyProfile: profile,
		Duration:      float64(len(samples)) / float64(sampleRate),
	}, nil
}

// energyProfile partitions samples into fixed 2-second windows and computes
// RMS per window. A trailing partial window is still divided by the nominal
// window size, which slightly deflates the final reading; downstream code has
// always seen that shape, so it stays.
func energyProfile(samples []float64, sampleRate int) []float64 {
	window := WindowSeconds * sampleRate
	n := (len(samples) + window - 1) / window
	profile := make([]float64, 0, n)

	for start := 0; start < len(samples); start += window {
		end := start + window
		if end > len(samples) {
			end = len(samples)
		}
		var sum float64
		for _, s := range samples[start:end] {
			sum += s * s
		}
		profile = append(profile, math.Sqrt(sum/float64(window)))
	}
	return profile
}
