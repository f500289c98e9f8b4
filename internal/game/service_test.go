package game

import (
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"chessroom/internal/models"

	"github.com/notnil/chess"
)

func newHumanGame(t *testing.T, s *Service) models.Game {
	t.Helper()
	g := s.CreateGame(models.NewHuman("w", "Alice"), models.NewHuman("b", "Bob"), models.DifficultyMedium)
	if g.Status != models.StatusActive {
		t.Fatalf("expected active game, got %s", g.Status)
	}
	return g
}

func playAll(t *testing.T, s *Service, id string, moves ...string) models.MoveOutcome {
	t.Helper()
	var last models.MoveOutcome
	for _, m := range moves {
		out, err := s.MakeMove(id, m)
		if err != nil {
			t.Fatalf("move %s: %v", m, err)
		}
		last = out
	}
	return last
}

func checkTerminalInvariant(t *testing.T, g models.Game) {
	t.Helper()
	switch g.Status {
	case models.StatusActive:
		if g.Winner != nil {
			t.Fatalf("active game has winner %v", *g.Winner)
		}
	case models.StatusFinished:
		if g.Winner == nil {
			t.Fatalf("finished game without winner")
		}
	default:
		t.Fatalf("unexpected status after move: %s", g.Status)
	}
}

func TestCreateGameStartsFromInitialPosition(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	if g.FEN != models.StartFEN {
		t.Fatalf("expected start FEN, got %q", g.FEN)
	}
	if len(g.Moves) != 0 || g.Winner != nil {
		t.Fatalf("fresh game has history or winner: %+v", g)
	}
	if g.Turn() != models.White {
		t.Fatalf("expected white to move")
	}

	other := s.CreateGame(models.NewHuman("x", "X"), models.NewHuman("y", "Y"), "")
	if other.ID == g.ID {
		t.Fatalf("game ids collide: %s", g.ID)
	}
	if other.Difficulty != models.DifficultyMedium {
		t.Fatalf("expected default difficulty medium, got %s", other.Difficulty)
	}
}

func TestCreateGameWithOpenSeatWaits(t *testing.T) {
	s := NewService()
	g := s.CreateGame(models.OpenSeat(), models.NewHuman("b", "Bob"), models.DifficultyEasy)
	if g.Status != models.StatusWaiting {
		t.Fatalf("expected waiting, got %s", g.Status)
	}
	if _, err := s.MakeMove(g.ID, "e2e4"); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("expected ErrGameNotActive, got %v", err)
	}
}

func TestReplayMatchesRulesEngine(t *testing.T) {
	sequences := [][]string{
		{"e2e4", "e7e5", "g1f3", "b8c6", "f1b5", "a7a6", "b5a4", "g8f6", "e1g1"},
		{"d2d4", "d7d5", "c2c4", "d5c4", "e2e3", "b7b5", "a2a4", "c7c6", "a4b5", "c6b5"},
		{"e2e4", "d7d5", "e4d5", "d8d5", "b1c3", "d5a5", "d2d4", "c7c6", "g1f3", "c8g4"},
		{"a2a4", "h7h5", "a4a5", "b7b5", "a5b6", "h5h4", "g2g4", "h4g3", "b6a7", "g3h2", "a7b8q", "h2g1n"},
	}
	for _, seq := range sequences {
		s := NewService()
		g := newHumanGame(t, s)
		playAll(t, s, g.ID, seq...)

		ref := chess.NewGame(chess.UseNotation(chess.UCINotation{}))
		for _, m := range seq {
			if err := ref.MoveStr(m); err != nil {
				t.Fatalf("reference rejected %s: %v", m, err)
			}
		}

		got, _ := s.GetGame(g.ID)
		if got.FEN != ref.Position().String() {
			t.Fatalf("FEN mismatch after %v:\n got  %s\n want %s", seq, got.FEN, ref.Position().String())
		}
		if strings.Join(got.Moves, " ") != strings.Join(seq, " ") {
			t.Fatalf("history mismatch: %v", got.Moves)
		}
		checkTerminalInvariant(t, got)
	}
}

func TestRejectedMovesLeaveStateUnchanged(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	playAll(t, s, g.ID, "e2e4", "e7e5")
	before, _ := s.GetGame(g.ID)

	cases := []struct {
		move string
		want error
	}{
		{"", ErrInvalidMoveFormat},
		{"e2", ErrInvalidMoveFormat},
		{"z9z9", ErrInvalidMoveFormat},
		{"e7e8x", ErrInvalidMoveFormat},
		{"Nf3", ErrInvalidMoveFormat},
		{"e2e4e5", ErrInvalidMoveFormat},
		{"e4e6", ErrIllegalMove},
		{"e1e3", ErrIllegalMove},
		{"d7d5", ErrIllegalMove},
		{"a1a8", ErrIllegalMove},
	}
	for _, tc := range cases {
		out, err := s.MakeMove(g.ID, tc.move)
		if !errors.Is(err, tc.want) {
			t.Fatalf("move %q: expected %v, got %v", tc.move, tc.want, err)
		}
		if out.Success || out.Error == "" {
			t.Fatalf("move %q: expected failed outcome with error, got %+v", tc.move, out)
		}
		after, _ := s.GetGame(g.ID)
		if after.FEN != before.FEN || len(after.Moves) != len(before.Moves) {
			t.Fatalf("move %q mutated the game", tc.move)
		}
	}
}

func TestFirstMoveE2E5IsIllegal(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	if _, err := s.MakeMove(g.ID, "e2e5"); !errors.Is(err, ErrIllegalMove) {
		t.Fatalf("expected ErrIllegalMove, got %v", err)
	}
	got, _ := s.GetGame(g.ID)
	if len(got.Moves) != 0 {
		t.Fatalf("expected empty history, got %v", got.Moves)
	}
}

func TestMakeMoveUnknownGame(t *testing.T) {
	s := NewService()
	if _, err := s.MakeMove("missing", "e2e4"); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestFoolsMateFinishesWithBlackWinner(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	out := playAll(t, s, g.ID, "f2f3", "e7e5", "g2g4", "d8h4")

	if !out.GameOver {
		t.Fatalf("expected game over, got %+v", out)
	}
	if !strings.Contains(out.Result, "Checkmate") {
		t.Fatalf("expected checkmate result, got %q", out.Result)
	}
	if out.SAN != "Qh4#" {
		t.Fatalf("expected SAN Qh4#, got %q", out.SAN)
	}
	got, _ := s.GetGame(g.ID)
	if got.Status != models.StatusFinished || got.Winner == nil || *got.Winner != models.WinnerBlack {
		t.Fatalf("expected finished with black winner, got %s %v", got.Status, got.Winner)
	}
	if _, err := s.MakeMove(g.ID, "e1f2"); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("expected ErrGameNotActive after mate, got %v", err)
	}
}

func TestCheckFlagSetWhenSideToMoveInCheck(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	out := playAll(t, s, g.ID, "e2e4", "d7d5", "f1b5")
	if !out.Check || out.GameOver {
		t.Fatalf("expected check flag on Bb5+, got %+v", out)
	}
	if out.SAN != "Bb5+" {
		t.Fatalf("expected SAN Bb5+, got %q", out.SAN)
	}
	got, _ := s.GetGame(g.ID)
	if got.Status != models.StatusActive {
		t.Fatalf("check must not end the game")
	}

	out = playAll(t, s, g.ID, "c7c6")
	if out.Check {
		t.Fatalf("blocking move should not be check")
	}
}

func TestStalemateIsDraw(t *testing.T) {
	// Shortest known stalemate (Sam Loyd, 10 moves).
	s := NewService()
	g := newHumanGame(t, s)
	out := playAll(t, s, g.ID,
		"e2e3", "a7a5", "d1h5", "a8a6", "h5a5", "h7h5", "h2h4", "a6h6",
		"a5c7", "f7f6", "c7d7", "e8f7", "d7b7", "d8d3", "b7b8", "d3h7",
		"b8c8", "f7g6", "c8e6",
	)
	if !out.GameOver || !strings.Contains(out.Result, "Stalemate") {
		t.Fatalf("expected stalemate, got %+v", out)
	}
	got, _ := s.GetGame(g.ID)
	if got.Winner == nil || *got.Winner != models.WinnerDraw {
		t.Fatalf("expected draw winner, got %v", got.Winner)
	}
}

func TestMakeMoveAtRejectsStalePly(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	playAll(t, s, g.ID, "e2e4")
	if _, err := s.MakeMoveAt(g.ID, "e7e5", 0); !errors.Is(err, ErrStalePosition) {
		t.Fatalf("expected ErrStalePosition, got %v", err)
	}
	if _, err := s.MakeMoveAt(g.ID, "e7e5", 1); err != nil {
		t.Fatalf("expected move at ply 1 to apply, got %v", err)
	}
}

func TestResignSetsOpponentWinnerAndKeepsPosition(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	playAll(t, s, g.ID, "e2e4", "c7c5")
	before, _ := s.GetGame(g.ID)

	out, err := s.Resign(g.ID, "w")
	if err != nil {
		t.Fatalf("resign: %v", err)
	}
	if !out.Success || out.Result != "Black wins by resignation!" {
		t.Fatalf("unexpected outcome %+v", out)
	}
	after, _ := s.GetGame(g.ID)
	if after.Status != models.StatusFinished || after.Winner == nil || *after.Winner != models.WinnerBlack {
		t.Fatalf("expected black winner, got %s %v", after.Status, after.Winner)
	}
	if after.FEN != before.FEN || len(after.Moves) != len(before.Moves) {
		t.Fatalf("resign changed position or history")
	}

	if _, err := s.Resign(g.ID, "b"); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("expected second resign to fail with ErrGameNotActive, got %v", err)
	}
}

func TestResignByBlackAndByStranger(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	if _, err := s.Resign(g.ID, "nobody"); !errors.Is(err, ErrPlayerNotInGame) {
		t.Fatalf("expected ErrPlayerNotInGame, got %v", err)
	}
	if _, err := s.Resign(g.ID, ""); !errors.Is(err, ErrPlayerNotInGame) {
		t.Fatalf("empty id must not match an open seat, got %v", err)
	}
	out, err := s.Resign(g.ID, "b")
	if err != nil || out.Result != "White wins by resignation!" {
		t.Fatalf("unexpected resign result %+v %v", out, err)
	}
}

func TestAbandonIsIdempotentAndFinal(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	_, changed, err := s.Abandon(g.ID)
	if err != nil || !changed {
		t.Fatalf("expected first abandon to change state: %v %v", changed, err)
	}
	got, changed, err := s.Abandon(g.ID)
	if err != nil || changed {
		t.Fatalf("expected second abandon to be a no-op: %v %v", changed, err)
	}
	if got.Status != models.StatusAbandoned || got.Winner != nil {
		t.Fatalf("unexpected abandoned game %+v", got)
	}
	if _, err := s.MakeMove(g.ID, "e2e4"); !errors.Is(err, ErrGameNotActive) {
		t.Fatalf("expected moves to be rejected, got %v", err)
	}

	finished := newHumanGame(t, s)
	s.Resign(finished.ID, "w")
	got, changed, _ = s.Abandon(finished.ID)
	if changed || got.Status != models.StatusFinished {
		t.Fatalf("abandon must not move a finished game backward, got %s", got.Status)
	}
}

func TestJoinFillsOpenSeat(t *testing.T) {
	s := NewService()
	g := s.CreateGame(models.NewHuman("w", "Alice"), models.OpenSeat(), models.DifficultyMedium)

	joined, color, err := s.Join(g.ID, models.NewHuman("b", "Bob"))
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if color != models.Black || joined.Black.ID != "b" || joined.Status != models.StatusActive {
		t.Fatalf("unexpected join result %s %+v", color, joined)
	}
	if _, _, err := s.Join(g.ID, models.NewHuman("c", "Carol")); !errors.Is(err, ErrGameNotWaiting) {
		t.Fatalf("expected ErrGameNotWaiting, got %v", err)
	}
	if _, _, err := s.Join("missing", models.NewHuman("c", "Carol")); !errors.Is(err, ErrGameNotFound) {
		t.Fatalf("expected ErrGameNotFound, got %v", err)
	}
}

func TestAddChatAppendsToLog(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	if _, err := s.AddChat(g.ID, "w", "Alice", "good luck"); err != nil {
		t.Fatalf("chat: %v", err)
	}
	s.AddChat(g.ID, "b", "Bob", "you too")
	got, _ := s.GetGame(g.ID)
	if len(got.Chat) != 2 || got.Chat[1].SenderName != "Bob" {
		t.Fatalf("unexpected chat log %+v", got.Chat)
	}
}

func TestSnapshotsAreIndependent(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	g.Moves = append(g.Moves, "e2e4")
	g.Status = models.StatusFinished
	got, _ := s.GetGame(g.ID)
	if len(got.Moves) != 0 || got.Status != models.StatusActive {
		t.Fatalf("mutating a snapshot leaked into the service")
	}
}

func TestCleanupHonorsMaxAge(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	s := NewService(WithClock(func() time.Time { return now }))

	live := newHumanGame(t, s)
	old := newHumanGame(t, s)
	fresh := newHumanGame(t, s)

	s.Abandon(old.ID)
	now = now.Add(30 * time.Minute)
	s.Resign(fresh.ID, "w")
	now = now.Add(31 * time.Minute)

	removed := s.Cleanup(time.Hour)
	if len(removed) != 1 || removed[0] != old.ID {
		t.Fatalf("expected only the old game evicted, got %v", removed)
	}
	if _, ok := s.GetGame(fresh.ID); !ok {
		t.Fatalf("recently finished game was evicted")
	}

	removed = s.Cleanup(0)
	if len(removed) != 1 || removed[0] != fresh.ID {
		t.Fatalf("expected immediate eviction with zero age, got %v", removed)
	}
	if _, ok := s.GetGame(live.ID); !ok {
		t.Fatalf("active game must never be evicted")
	}
}

func TestJanitorSweepReportsEvictions(t *testing.T) {
	s := NewService()
	g := newHumanGame(t, s)
	s.Abandon(g.ID)

	var got []string
	j := NewJanitor(s, time.Minute, 0, func(ids []string) { got = ids }, nil)
	j.Sweep()
	if len(got) != 1 || got[0] != g.ID {
		t.Fatalf("expected eviction callback for %s, got %v", g.ID, got)
	}
}

func TestConcurrentMovesOnDifferentGames(t *testing.T) {
	s := NewService()
	ids := make([]string, 8)
	for i := range ids {
		ids[i] = newHumanGame(t, s).ID
	}
	var wg sync.WaitGroup
	for _, id := range ids {
		wg.Add(1)
		go func(id string) {
			defer wg.Done()
			for _, m := range []string{"e2e4", "e7e5", "g1f3", "b8c6"} {
				if _, err := s.MakeMove(id, m); err != nil {
					t.Errorf("game %s move %s: %v", id, m, err)
				}
			}
		}(id)
	}
	wg.Wait()
	for _, id := range ids {
		got, _ := s.GetGame(id)
		if len(got.Moves) != 4 {
			t.Fatalf("game %s has %d moves", id, len(got.Moves))
		}
	}
	if len(s.ListGames()) != len(ids) {
		t.Fatalf("expected %d games listed", len(ids))
	}
}
