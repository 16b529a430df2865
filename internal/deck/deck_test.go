package deck

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

// fakeChannel records engine calls for assertions.
type fakeChannel struct {
	loaded     *playlist.Source
	loadErr    error
	started    int
	startOff   float64
	startRate  float64
	halted     int
	rate       float64
	rateRamp   time.Duration
	gain       float64
	gainRamp   time.Duration
	cutoff     float64
	sweeps     int
	loopStart  float64
	loopLength float64
	loopOn     bool
	ended      func()
}

func (f *fakeChannel) Load(src *playlist.Source) error {
	if f.loadErr != nil {
		return f.loadErr
	}
	f.loaded = src
	return nil
}
func (f *fakeChannel) Start(offset, rate float64) {
	f.started++
	f.startOff = offset
	f.startRate = rate
}
func (f *fakeChannel) Halt()                                { f.halted++ }
func (f *fakeChannel) SetRate(r float64, ramp time.Duration) { f.rate = r; f.rateRamp = ramp }
func (f *fakeChannel) SetGain(l float64, ramp time.Duration) { f.gain = l; f.gainRamp = ramp }
func (f *fakeChannel) SetCutoff(hz float64)                 { f.cutoff = hz }
func (f *fakeChannel) FilterSweep(_ float64, _ time.Duration) { f.sweeps++ }
func (f *fakeChannel) RampCutoff(hz float64, _ time.Duration) { f.cutoff = hz }
func (f *fakeChannel) SetLoop(start, length float64) {
	f.loopOn = true
	f.loopStart = start
	f.loopLength = length
}
func (f *fakeChannel) ClearLoop()         { f.loopOn = false }
func (f *fakeChannel) OnEnded(fn func())  { f.ended = fn }

func testTrack(tempo, duration float64) *playlist.Track {
	return &playlist.Track{
		ID:       "t1",
		Title:    "test",
		Source:   &playlist.Source{Samples: make([]float64, 96000), SampleRate: 48000},
		Tempo:    tempo,
		Duration: duration,
	}
}

func newTestDeck() (*Deck, *fakeChannel) {
	ch := &fakeChannel{}
	return New(A, ch), ch
}

func TestPlayWithoutTrack(t *testing.T) {
	d, ch := newTestDeck()
	err := d.Play(0)
	if !errors.Is(err, ErrNoTrackLoaded) {
		t.Fatalf("Play on empty deck err = %v, want ErrNoTrackLoaded", err)
	}
	if d.State() != Idle {
		t.Errorf("state mutated on failed Play: %v", d.State())
	}
	if ch.started != 0 {
		t.Error("engine started despite missing track")
	}
}

func TestLoadMovesToLoaded(t *testing.T) {
	d, ch := newTestDeck()
	var hookTrack *playlist.Track
	d.SetOnLoad(func(tr *playlist.Track) { hookTrack = tr })

	tr := testTrack(128, 180)
	if err := d.Load(tr); err != nil {
		t.Fatal(err)
	}
	if d.State() != Loaded {
		t.Errorf("state = %v, want Loaded", d.State())
	}
	if ch.loaded != tr.Source {
		t.Error("source not bound to channel")
	}
	if hookTrack != tr {
		t.Error("metadata hook not fired with the loaded track")
	}
}

func TestLoadWhilePlayingHaltsFirst(t *testing.T) {
	d, ch := newTestDeck()
	d.Load(testTrack(128, 180))
	d.Play(0)

	if err := d.Load(testTrack(120, 200)); err != nil {
		t.Fatal(err)
	}
	if ch.halted != 1 {
		t.Errorf("halted %d times, want 1 (forced Idle before swap)", ch.halted)
	}
	if d.State() != Loaded {
		t.Errorf("state = %v, want Loaded", d.State())
	}
}

func TestLoadErrorLeavesDeckIdle(t *testing.T) {
	d, ch := newTestDeck()
	ch.loadErr = errors.New("decode failed")
	if err := d.Load(testTrack(128, 180)); err == nil {
		t.Fatal("Load should propagate channel error")
	}
	if d.State() != Idle {
		t.Errorf("state = %v, want Idle after failed load", d.State())
	}
	if d.Track() != nil {
		t.Error("track reference set despite failed load")
	}
}

func TestPlayStartsAtOffsetAndRate(t *testing.T) {
	d, ch := newTestDeck()
	d.Load(testTrack(128, 180))
	d.SetRate(1.25)
	if err := d.Play(30); err != nil {
		t.Fatal(err)
	}
	if d.State() != Playing {
		t.Errorf("state = %v, want Playing", d.State())
	}
	if ch.startOff != 30 || ch.startRate != 1.25 {
		t.Errorf("Start(%v, %v), want Start(30, 1.25)", ch.startOff, ch.startRate)
	}
}

func TestTogglePlayPauseResume(t *testing.T) {
	d, ch := newTestDeck()
	now := time.Now()
	d.now = func() time.Time { return now }

	d.Load(testTrack(128, 180))
	d.Play(0)

	now = now.Add(42 * time.Second)
	d.TogglePlay()
	if d.State() != Paused {
		t.Fatalf("state = %v, want Paused", d.State())
	}
	if math.Abs(d.Elapsed()-42) > 1e-9 {
		t.Errorf("paused offset = %v, want 42", d.Elapsed())
	}

	d.TogglePlay()
	if d.State() != Playing {
		t.Fatalf("state = %v, want Playing after resume", d.State())
	}
	if math.Abs(ch.startOff-42) > 1e-9 {
		t.Errorf("resumed at offset %v, want 42", ch.startOff)
	}
}

func TestTogglePlayIdleNoTrack(t *testing.T) {
	d, ch := newTestDeck()
	d.TogglePlay()
	if d.State() != Idle || ch.started != 0 {
		t.Error("TogglePlay on empty idle deck should no-op")
	}
}

func TestStopIdempotent(t *testing.T) {
	d, _ := newTestDeck()
	d.Load(testTrack(128, 180))
	d.Play(0)
	d.Stop()
	d.Stop()
	if d.State() != Idle {
		t.Errorf("state = %v, want Idle", d.State())
	}
	// Track reference survives a stop.
	if d.Track() == nil {
		t.Error("Stop cleared the track reference")
	}
}

func TestSetRateClampsToMusicalRange(t *testing.T) {
	d, ch := newTestDeck()
	tests := []struct{ in, want float64 }{
		{0.1, MinRate},
		{0.5, 0.5},
		{1.0, 1.0},
		{2.0, 2.0},
		{3.5, MaxRate},
	}
	for _, tt := range tests {
		d.SetRate(tt.in)
		if d.Rate() != tt.want {
			t.Errorf("SetRate(%v): rate = %v, want %v", tt.in, d.Rate(), tt.want)
		}
		if ch.rate != tt.want {
			t.Errorf("SetRate(%v): channel rate = %v, want %v", tt.in, ch.rate, tt.want)
		}
	}
}

func TestEffectiveTempoBeatMatch(t *testing.T) {
	// Beat-matching a 120 BPM track to 128 BPM: rate 128/120.
	d, _ := newTestDeck()
	tr := testTrack(120, 180)
	d.Load(tr)
	d.SetRate(128.0 / 120.0)
	if got := d.EffectiveTempo(); got != 128 {
		t.Errorf("EffectiveTempo = %v, want 128", got)
	}
	if tr.Tempo != 120 {
		t.Errorf("stored tempo mutated: %v", tr.Tempo)
	}
}

func TestSetVolumeClamps(t *testing.T) {
	d, ch := newTestDeck()
	d.SetVolume(1.5)
	if ch.gain != 1 {
		t.Errorf("gain = %v, want clamp to 1", ch.gain)
	}
	d.SetVolume(-0.2)
	if ch.gain != 0 {
		t.Errorf("gain = %v, want clamp to 0", ch.gain)
	}
}

func TestFilterFX(t *testing.T) {
	d, ch := newTestDeck()
	d.TriggerFX(FXFilter)
	if ch.sweeps != 1 {
		t.Errorf("sweeps = %d, want 1", ch.sweeps)
	}
}

func TestLoopFX(t *testing.T) {
	d, ch := newTestDeck()

	// Silent no-op without a track.
	d.TriggerFX(FXLoop)
	if ch.loopOn {
		t.Fatal("loop engaged without a track")
	}

	d.Load(testTrack(120, 180))
	d.TriggerFX(FXLoop)
	if !ch.loopOn {
		t.Fatal("loop not engaged")
	}
	// 4 beats at 120 BPM = 2 seconds.
	if math.Abs(ch.loopLength-2) > 1e-9 {
		t.Errorf("loop length = %v, want 2", ch.loopLength)
	}

	d.TriggerFX(FXLoop)
	if ch.loopOn {
		t.Error("second trigger should clear the loop")
	}
}

func TestNaturalEndOfTrack(t *testing.T) {
	d, ch := newTestDeck()
	ended := 0
	d.SetOnEnded(func() { ended++ })

	d.Load(testTrack(128, 180))
	d.Play(0)
	ch.ended()
	if d.State() != Idle {
		t.Errorf("state = %v, want Idle after natural end", d.State())
	}
	if ended != 1 {
		t.Errorf("onEnded fired %d times, want 1", ended)
	}

	// Not playing: notification is stale, ignore it.
	ch.ended()
	if ended != 1 {
		t.Errorf("stale end notification fired hook: %d", ended)
	}
}

func TestSnapshot(t *testing.T) {
	d, _ := newTestDeck()
	d.Load(testTrack(124, 200))
	s := d.Snapshot()
	if s.ID != A || s.State != "loaded" || s.Title != "test" {
		t.Errorf("snapshot = %+v", s)
	}
	if s.Tempo != 124 || s.Duration != 200 || s.Rate != 1 {
		t.Errorf("snapshot fields = %+v", s)
	}
}

func TestSetRampDurations(t *testing.T) {
	d, ch := newTestDeck()
	d.Load(testTrack(128, 180))

	d.SetRate(1.2)
	if ch.rateRamp != DefaultRateRamp {
		t.Errorf("default rate ramp = %v, want %v", ch.rateRamp, DefaultRateRamp)
	}

	d.SetRampDurations(250*time.Millisecond, 50*time.Millisecond)
	d.SetRate(1.1)
	d.SetVolume(0.5)
	if ch.rateRamp != 250*time.Millisecond {
		t.Errorf("rate ramp = %v, want 250ms", ch.rateRamp)
	}
	if ch.gainRamp != 50*time.Millisecond {
		t.Errorf("gain ramp = %v, want 50ms", ch.gainRamp)
	}

	// Non-positive values keep the current ramps.
	d.SetRampDurations(0, -time.Second)
	d.SetRate(1.0)
	d.SetVolume(1)
	if ch.rateRamp != 250*time.Millisecond || ch.gainRamp != 50*time.Millisecond {
		t.Errorf("ramps after zero/negative override = %v/%v", ch.rateRamp, ch.gainRamp)
	}
}
