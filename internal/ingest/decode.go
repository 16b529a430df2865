package ingest

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/cwbudde/wav"
	"github.com/hajimehoshi/go-mp3"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// ErrDecode wraps every malformed/unsupported-audio failure so callers can
// match the whole class.
var ErrDecode = errors.New("ingest: decode failed")

// decode turns raw file bytes into an interleaved stereo source. WAV and MP3
// decode natively; anything else goes through FFmpeg.
func decode(filename string, data []byte) (*playlist.Source, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".wav":
		return decodeWAV(data)
	case ".mp3":
		return decodeMP3(data)
	default:
		return decodeFFmpeg(filename, data)
	}
}

func decodeWAV(data []byte) (*playlist.Source, error) {
	dec := wav.NewDecoder(bytes.NewReader(data))
	if !dec.IsValidFile() {
		return nil, fmt.Errorf("%w: not a valid wav file", ErrDecode)
	}
	buf, err := dec.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels < 1 || len(buf.Data) == 0 {
		return nil, fmt.Errorf("%w: empty wav buffer", ErrDecode)
	}

	bitDepth := buf.SourceBitDepth
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))

	ch := buf.Format.NumChannels
	frames := len(buf.Data) / ch
	samples := make([]float64, frames*2)
	for i := 0; i < frames; i++ {
		l := float64(buf.Data[i*ch]) / scale
		r := l
		if ch > 1 {
			r = float64(buf.Data[i*ch+1]) / scale
		}
		samples[i*2] = l
		samples[i*2+1] = r
	}
	return &playlist.Source{Samples: samples, SampleRate: buf.Format.SampleRate}, nil
}

func decodeMP3(data []byte) (*playlist.Source, error) {
	dec, err := mp3.NewDecoder(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}

	// go-mp3 always emits 16-bit stereo at the decoder's sample rate.
	raw, err := io.ReadAll(dec)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	if len(raw) < 4 {
		return nil, fmt.Errorf("%w: mp3 contains no samples", ErrDecode)
	}
	return pcm16ToSource(raw, dec.SampleRate()), nil
}

// decodeFFmpeg shells out to FFmpeg for containers without a native decoder.
// The bytes go through a temp file because FFmpeg seeks in its input.
func decodeFFmpeg(filename string, data []byte) (*playlist.Source, error) {
	tmp, err := os.CreateTemp("", "deckhand-*"+filepath.Ext(filename))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return nil, fmt.Errorf("%w: %v", ErrDecode, err)
	}
	tmp.Close()

	const rate = 48000
	cmd := exec.Command("ffmpeg",
		"-i", tmp.Name(),
		"-f", "s16le",
		"-acodec", "pcm_s16le",
		"-ar", "48000",
		"-ac", "2",
		"-loglevel", "error",
		"pipe:1",
	)
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("%w: ffmpeg: %v", ErrDecode, err)
	}
	if len(out) < 4 {
		return nil, fmt.Errorf("%w: ffmpeg produced no samples", ErrDecode)
	}
	return pcm16ToSource(out, rate), nil
}

// pcm16ToSource converts little-endian interleaved stereo s16 bytes.
func pcm16ToSource(raw []byte, sampleRate int) *playlist.Source {
	if len(raw)%2 != 0 {
		raw = raw[:len(raw)-1]
	}
	samples := make([]float64, len(raw)/2)
	for i := range samples {
		samples[i] = float64(int16(binary.LittleEndian.Uint16(raw[i*2:]))) / 32768.0
	}
	return &playlist.Source{Samples: samples, SampleRate: sampleRate}
}

// downmix averages the stereo pair per frame for analysis.
func downmix(src *playlist.Source) []float64 {
	frames := len(src.Samples) / 2
	mono := make([]float64, frames)
	for i := 0; i < frames; i++ {
		mono[i] = 0.5 * (src.Samples[i*2] + src.Samples[i*2+1])
	}
	return mono
}
