package playlist

import (
	"errors"
	"sync"
	"testing"
)

func validTrack(title string) *Track {
	return &Track{
		ID:       title,
		Title:    title,
		Tempo:    128,
		Duration: 180,
	}
}

func TestAppendPreservesInsertionOrder(t *testing.T) {
	p := New()
	for _, title := range []string{"one", "two", "three"} {
		if err := p.Append(validTrack(title)); err != nil {
			t.Fatalf("Append(%s): %v", title, err)
		}
	}
	if p.Len() != 3 {
		t.Fatalf("Len = %d, want 3", p.Len())
	}
	got := p.Tracks()
	for i, want := range []string{"one", "two", "three"} {
		if got[i].Title != want {
			t.Errorf("Tracks()[%d] = %q, want %q", i, got[i].Title, want)
		}
	}
}

func TestAppendRejectsInvalidTracks(t *testing.T) {
	tests := []struct {
		name   string
		track  *Track
		wantEr error
	}{
		{"zero tempo", &Track{Title: "bad", Tempo: 0, Duration: 60}, ErrInvalidTempo},
		{"negative tempo", &Track{Title: "bad", Tempo: -10, Duration: 60}, ErrInvalidTempo},
		{"zero duration", &Track{Title: "bad", Tempo: 120, Duration: 0}, ErrInvalidDuration},
	}
	p := New()
	for _, tt := range tests {
		err := p.Append(tt.track)
		if !errors.Is(err, tt.wantEr) {
			t.Errorf("%s: Append err = %v, want %v", tt.name, err, tt.wantEr)
		}
	}
	if p.Len() != 0 {
		t.Errorf("invalid tracks entered the pool: Len = %d", p.Len())
	}
}

func TestAtOutOfRange(t *testing.T) {
	p := New()
	p.Append(validTrack("only"))
	if p.At(-1) != nil || p.At(1) != nil {
		t.Error("At out of range should return nil")
	}
	if got := p.At(0); got == nil || got.Title != "only" {
		t.Errorf("At(0) = %v", got)
	}
}

func TestTracksReturnsSnapshot(t *testing.T) {
	p := New()
	p.Append(validTrack("a"))
	snap := p.Tracks()
	p.Append(validTrack("b"))
	if len(snap) != 1 {
		t.Errorf("snapshot grew with the playlist: len = %d", len(snap))
	}
}

func TestConcurrentReadersSingleWriter(t *testing.T) {
	p := New()
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < 100; i++ {
			p.Append(validTrack("t"))
		}
	}()
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < 100; i++ {
				_ = p.Len()
				_ = p.Tracks()
				_ = p.At(i % 10)
			}
		}()
	}
	wg.Wait()
	if p.Len() != 100 {
		t.Errorf("Len = %d, want 100", p.Len())
	}
}
