package ai

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chessroom/internal/engine"
	"chessroom/internal/models"
)

const afterE4FEN = "rnbqkbnr/pppppppp/8/8/4P3/8/PPPP1PPP/RNBQKBNR b KQkq - 0 1"

type fakeEngine struct {
	mu      sync.Mutex
	calls   int
	results []engine.MoveResult
	err     error
	// hook runs before answering; a non-nil error is returned as is.
	hook func(ctx context.Context) error
}

func (f *fakeEngine) BestMove(ctx context.Context, fen string, depth int, maxThinkingTime time.Duration) (engine.MoveResult, error) {
	f.mu.Lock()
	idx := f.calls
	f.calls++
	hook := f.hook
	f.mu.Unlock()

	if hook != nil {
		if err := hook(ctx); err != nil {
			return engine.MoveResult{}, err
		}
	}
	if f.err != nil {
		return engine.MoveResult{}, f.err
	}
	if idx >= len(f.results) {
		idx = len(f.results) - 1
	}
	return f.results[idx], nil
}

func (f *fakeEngine) Available(context.Context) bool { return true }

func (f *fakeEngine) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func aiGame() models.Game {
	return models.Game{
		ID:         "g1",
		White:      models.NewHuman("conn-1", "Alice"),
		Black:      models.NewAI(DefaultName),
		FEN:        afterE4FEN,
		Moves:      []string{"e2e4"},
		Status:     models.StatusActive,
		Difficulty: models.DifficultyMedium,
	}
}

func TestGetMoveInfersAIColor(t *testing.T) {
	fe := &fakeEngine{results: []engine.MoveResult{{Move: "e7e5", SAN: "e5", Centipawns: 20, Explanation: "A classical reply."}}}
	b := NewBridge(fe, Config{})

	d, err := b.GetMove(context.Background(), aiGame(), nil)
	if err != nil {
		t.Fatalf("GetMove: %v", err)
	}
	if d.Move != "e7e5" || d.SAN != "e5" || d.Color != models.Black {
		t.Fatalf("unexpected decision %+v", d)
	}
	if d.Explanation != "I'll play **e5**. A classical reply." {
		t.Fatalf("unexpected explanation %q", d.Explanation)
	}
	if b.Thinking() {
		t.Fatalf("bridge still thinking after returning")
	}
}

func TestGetMoveRequiresAISeatOrOverride(t *testing.T) {
	fe := &fakeEngine{results: []engine.MoveResult{{Move: "e7e5", SAN: "e5"}}}
	b := NewBridge(fe, Config{})

	g := aiGame()
	g.Black = models.NewHuman("conn-2", "Bob")
	if _, err := b.GetMove(context.Background(), g, nil); !errors.Is(err, ErrNotAIGame) {
		t.Fatalf("expected ErrNotAIGame, got %v", err)
	}
	if fe.callCount() != 0 {
		t.Fatalf("engine should not be consulted without a color")
	}

	black := models.Black
	d, err := b.GetMove(context.Background(), g, &black)
	if err != nil {
		t.Fatalf("GetMove with override: %v", err)
	}
	if d.Color != models.Black || d.Move != "e7e5" {
		t.Fatalf("unexpected decision %+v", d)
	}
}

func TestGetMoveRejectsConcurrentRequest(t *testing.T) {
	release := make(chan struct{})
	fe := &fakeEngine{
		results: []engine.MoveResult{{Move: "e7e5", SAN: "e5"}},
		hook: func(ctx context.Context) error {
			select {
			case <-release:
				return nil
			case <-ctx.Done():
				return ctx.Err()
			}
		},
	}
	b := NewBridge(fe, Config{})

	type outcome struct {
		d   Decision
		err error
	}
	first := make(chan outcome, 1)
	go func() {
		d, err := b.GetMove(context.Background(), aiGame(), nil)
		first <- outcome{d, err}
	}()

	deadline := time.Now().Add(2 * time.Second)
	for !b.Thinking() {
		if time.Now().After(deadline) {
			t.Fatalf("first request never started")
		}
		time.Sleep(time.Millisecond)
	}

	if _, err := b.GetMove(context.Background(), aiGame(), nil); !errors.Is(err, ErrAlreadyThinking) {
		t.Fatalf("expected ErrAlreadyThinking, got %v", err)
	}

	close(release)
	got := <-first
	if got.err != nil || got.d.Move != "e7e5" {
		t.Fatalf("first request: %+v, %v", got.d, got.err)
	}

	if _, err := b.GetMove(context.Background(), aiGame(), nil); err != nil {
		t.Fatalf("bridge should accept a new request once idle: %v", err)
	}
}

func TestGetMoveRunsDelayAlongsideEngine(t *testing.T) {
	sleeping := make(chan struct{})
	fe := &fakeEngine{
		results: []engine.MoveResult{{Move: "e7e5", SAN: "e5"}},
		hook: func(ctx context.Context) error {
			// Answers only once the thinking delay has begun.
			select {
			case <-sleeping:
				return nil
			case <-time.After(2 * time.Second):
				return errors.New("engine request did not overlap the delay")
			}
		},
	}
	b := NewBridge(fe, Config{DelayScale: 1})
	var requested time.Duration
	b.rand = func() float64 { return 0.5 }
	b.sleep = func(ctx context.Context, d time.Duration) error {
		requested = d
		close(sleeping)
		return nil
	}

	if _, err := b.GetMove(context.Background(), aiGame(), nil); err != nil {
		t.Fatalf("GetMove: %v", err)
	}
	if requested != 7500*time.Millisecond {
		t.Fatalf("expected medium midpoint delay, got %v", requested)
	}
}

func TestGetMoveCancelledDuringDelay(t *testing.T) {
	fe := &fakeEngine{results: []engine.MoveResult{{Move: "e7e5", SAN: "e5"}}}
	b := NewBridge(fe, Config{DelayScale: 1})

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	start := time.Now()
	if _, err := b.GetMove(ctx, aiGame(), nil); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("expected deadline exceeded, got %v", err)
	}
	if time.Since(start) > 2*time.Second {
		t.Fatalf("cancellation did not interrupt the thinking delay")
	}
}

func TestGetMoveFallsBackToNativeMove(t *testing.T) {
	fe := &fakeEngine{results: []engine.MoveResult{
		{Move: "e7e5", SAN: "Zz9"},
		{Move: "g8f6", SAN: ""},
	}}
	b := NewBridge(fe, Config{})

	d, err := b.GetMove(context.Background(), aiGame(), nil)
	if err != nil {
		t.Fatalf("GetMove: %v", err)
	}
	if fe.callCount() != 2 {
		t.Fatalf("expected a secondary engine request, got %d calls", fe.callCount())
	}
	if d.Move != "g8f6" || d.SAN != "Nf6" {
		t.Fatalf("unexpected decision %+v", d)
	}
	if !strings.HasPrefix(d.Explanation, "I'll play **Nf6**.") {
		t.Fatalf("unexpected explanation %q", d.Explanation)
	}
}

func TestGetMoveFallbackRejectsIllegalMove(t *testing.T) {
	fe := &fakeEngine{results: []engine.MoveResult{{Move: "e2e4", SAN: "e4"}}}
	b := NewBridge(fe, Config{})

	if _, err := b.GetMove(context.Background(), aiGame(), nil); !errors.Is(err, ErrNoLegalMove) {
		t.Fatalf("expected ErrNoLegalMove, got %v", err)
	}
}

func TestGetMoveEngineFailure(t *testing.T) {
	fe := &fakeEngine{err: &engine.Error{Kind: engine.ErrUnavailable, Backend: "remote", Status: 503}}
	b := NewBridge(fe, Config{})

	if _, err := b.GetMove(context.Background(), aiGame(), nil); !errors.Is(err, engine.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if b.Thinking() {
		t.Fatalf("permit not released after failure")
	}
}

func TestComposeMateRemark(t *testing.T) {
	mate := func(n int) *int { return &n }
	cases := []struct {
		name string
		mate *int
		side models.Color
		want string
	}{
		{"no mate", nil, models.White, "I'll play **Qh5**. Sharp."},
		{"white mates as white", mate(2), models.White, "I'll play **Qh5**. Sharp. Checkmate in 2!"},
		{"black mates as black", mate(-3), models.Black, "I'll play **Qh5**. Sharp. Checkmate in 3!"},
		{"mated as black", mate(1), models.Black, "I'll play **Qh5**. Sharp. I see mate in 1 against me... but I'll fight on!"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := compose("Qh5", "Sharp.", tc.mate, tc.side); got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}

func TestProfiles(t *testing.T) {
	if p := ProfileFor("grandmaster"); p != ProfileFor(models.DifficultyMedium) {
		t.Fatalf("unknown difficulty should play at medium, got %+v", p)
	}
	if ProfileFor(models.DifficultyEasy).Depth != 4 || ProfileFor(models.DifficultyHard).Depth != 12 {
		t.Fatalf("unexpected depths")
	}
	hard := ProfileFor(models.DifficultyHard)
	if d := hard.Delay(0, 1); d != 10*time.Second {
		t.Fatalf("expected minimum delay, got %v", d)
	}
	if d := hard.Delay(0.5, 0.1); d != 1250*time.Millisecond {
		t.Fatalf("expected scaled delay, got %v", d)
	}
	if d := hard.Delay(0.9, 0); d != 0 {
		t.Fatalf("zero scale should disable the delay, got %v", d)
	}
}
