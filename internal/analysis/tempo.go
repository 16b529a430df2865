package analysis

import (
	"math"

	"github.com/mjibson/go-dsp/fft"
	"github.com/mjibson/go-dsp/window"
)

const (
	frameSize = 2048
	hopSize   = 512

	minBPM = 60.0
	maxBPM = 200.0

	// Below this confidence the estimate is considered noise and the
	// fallback tempo is reported instead.
	confidenceThreshold = 0.1
)

// estimateTempo runs onset-strength autocorrelation over the sample buffer.
// Returns the estimated BPM (folded into 60-200) and a confidence in [0,1].
func estimateTempo(samples []float64, sampleRate int) (float64, float64) {
	onset := onsetEnvelope(samples, sampleRate)
	if len(onset) < 100 {
		return FallbackTempo, 0
	}

	minLag := int(60.0 / maxBPM * float64(sampleRate) / hopSize)
	maxLag := int(60.0 / minBPM * float64(sampleRate) / hopSize)
	if maxLag >= len(onset) {
		maxLag = len(onset) - 1
	}
	if minLag < 1 {
		minLag = 1
	}

	bestLag := 0
	bestCorr := 0.0
	var corrSum float64
	var corrCount int
	for lag := minLag; lag <= maxLag; lag++ {
		var corr float64
		for i := 0; i+lag < len(onset); i++ {
			corr += onset[i] * onset[i+lag]
		}
		corr /= float64(len(onset) - lag)
		corrSum += corr
		corrCount++

		// Mild bias toward club tempi to avoid octave errors (70 vs 140).
		bpm := 60.0 * float64(sampleRate) / (float64(lag) * hopSize)
		weight := math.Exp(-0.5 * math.Pow((bpm-120.0)/40.0, 2))
		weighted := corr * (0.8 + 0.2*weight)

		if weighted > bestCorr {
			bestCorr = weighted
			bestLag = lag
		}
	}

	if bestLag == 0 || corrCount == 0 {
		return FallbackTempo, 0
	}

	mean := corrSum / float64(corrCount)
	confidence := 0.0
	if bestCorr > mean && bestCorr > 0 {
		confidence = (bestCorr - mean) / bestCorr
	}

	bpm := foldBPM(60.0 * float64(sampleRate) / (float64(bestLag) * hopSize))
	return resolveTempo(bpm, confidence)
}

// resolveTempo accepts or discards an estimate. A discarded estimate's
// confidence goes with it: reporting the fallback with a nonzero confidence
// would make it look measured.
func resolveTempo(bpm, confidence float64) (float64, float64) {
	if confidence < confidenceThreshold {
		return FallbackTempo, 0
	}
	return math.Round(bpm*10) / 10, confidence
}

// foldBPM halves or doubles into the 60-200 range.
func foldBPM(bpm float64) float64 {
	for bpm > maxBPM {
		bpm /= 2
	}
	for bpm < minBPM {
		bpm *= 2
	}
	return bpm
}

// onsetEnvelope computes a spectral-flux onset strength signal: Hann-windowed
// frames, magnitude spectra, and the positive difference between consecutive
// spectra summed per frame.
func onsetEnvelope(samples []float64, sampleRate int) []float64 {
	numFrames := (len(samples) - frameSize) / hopSize
	if numFrames <= 0 {
		return nil
	}

	onset := make([]float64, numFrames)
	prevMag := make([]float64, frameSize/2+1)
	mag := make([]float64, frameSize/2+1)
	frame := make([]float64, frameSize)

	for i := 0; i < numFrames; i++ {
		start := i * hopSize
		copy(frame, samples[start:start+frameSize])
		window.Apply(frame, window.Hann)

		spec := fft.FFTReal(frame)
		for j := 0; j <= frameSize/2; j++ {
			re := real(spec[j])
			im := imag(spec[j])
			mag[j] = math.Sqrt(re*re + im*im)
		}

		var flux float64
		for j := range mag {
			if d := mag[j] - prevMag[j]; d > 0 {
				flux += d
			}
		}
		onset[i] = flux
		copy(prevMag, mag)
	}
	return onset
}
