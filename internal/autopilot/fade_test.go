package autopilot

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/deckhand-audio/deckhand/internal/playlist"
)

func TestFadeRunsAllStepsInOrder(t *testing.T) {
	var got []int
	f := fade{
		duration: 8 * time.Second,
		steps:    100,
		stepFn:   func(step int) { got = append(got, step) },
	}
	if err := f.run(context.Background(), fakeClock{}); err != nil {
		t.Fatal(err)
	}
	if len(got) != 100 {
		t.Fatalf("ran %d steps, want 100", len(got))
	}
	for i, step := range got {
		if step != i+1 {
			t.Fatalf("step %d fired out of order: %d", i, step)
		}
	}
}

func TestFadeCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	var ran int
	f := fade{
		duration: time.Second,
		steps:    10,
		stepFn: func(step int) {
			ran++
			if step == 3 {
				cancel()
			}
		},
	}
	err := f.run(ctx, fakeClock{})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
	if ran != 3 {
		t.Errorf("ran %d steps before cancel, want 3", ran)
	}
}

func TestSelectRandomEmptyPool(t *testing.T) {
	if got := SelectRandom(nil, nil); got != nil {
		t.Errorf("SelectRandom(nil) = %v, want nil", got)
	}
}

func TestSelectRandomCoversPool(t *testing.T) {
	a := track("a", 120, 60)
	b := track("b", 125, 60)
	c := track("c", 130, 60)
	pool := []*playlist.Track{a, b, c}

	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		seen[SelectRandom(pool, a).ID] = true
	}
	if len(seen) != 3 {
		t.Errorf("uniform selection over 200 draws hit %d of 3 tracks", len(seen))
	}
}

func TestSelectByEnergy(t *testing.T) {
	cur := track("cur", 128, 60)
	cur.Energy = 0.5
	closest := track("close", 120, 60)
	closest.Energy = 0.48
	far := track("far", 120, 60)
	far.Energy = 0.9

	got := SelectByEnergy([]*playlist.Track{cur, closest, far}, cur)
	if got == nil || got.ID != "close" {
		t.Errorf("SelectByEnergy picked %v, want close", got)
	}

	// Only the current track in the pool: falls back to random (may return it).
	if got := SelectByEnergy([]*playlist.Track{cur}, cur); got == nil {
		t.Error("SelectByEnergy returned nil with a non-empty pool")
	}
}
