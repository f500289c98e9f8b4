package notation

import (
	"errors"
	"testing"
)

const (
	startFEN    = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"
	castlingFEN = "r3k2r/8/8/8/8/8/8/R3K2R w KQkq - 0 1"
	promoteFEN  = "8/4P3/3k4/8/8/8/8/4K3 w - - 0 1"
)

func TestValidUCI(t *testing.T) {
	cases := map[string]bool{
		"e2e4":   true,
		"e7e8q":  true,
		"a1h8":   true,
		"e7e8k":  false,
		"e2e9":   false,
		"i2e4":   false,
		"e2":     false,
		"e2e4q1": false,
		"Nf3":    false,
		"":       false,
	}
	for move, want := range cases {
		if got := ValidUCI(move); got != want {
			t.Errorf("ValidUCI(%q) = %v, want %v", move, got, want)
		}
	}
}

func TestSANToUCI(t *testing.T) {
	cases := []struct {
		name string
		fen  string
		san  string
		want string
	}{
		{"pawn push", startFEN, "e4", "e2e4"},
		{"knight", startFEN, "Nf3", "g1f3"},
		{"annotations ignored", startFEN, "Nf3!?", "g1f3"},
		{"surrounding space", startFEN, " d4 ", "d2d4"},
		{"short castle", castlingFEN, "O-O", "e1g1"},
		{"short castle with zeros", castlingFEN, "0-0", "e1g1"},
		{"long castle with zeros", castlingFEN, "0-0-0", "e1c1"},
		{"queen promotion", promoteFEN, "e8=Q", "e7e8q"},
		{"knight promotion with check", promoteFEN, "e8=N+", "e7e8n"},
		{"knight promotion without check mark", promoteFEN, "e8=N", "e7e8n"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := SANToUCI(tc.fen, tc.san)
			if err != nil {
				t.Fatalf("SANToUCI(%q): %v", tc.san, err)
			}
			if got != tc.want {
				t.Fatalf("SANToUCI(%q) = %q, want %q", tc.san, got, tc.want)
			}
		})
	}
}

func TestSANToUCIRejects(t *testing.T) {
	cases := []struct {
		name string
		fen  string
		san  string
		want error
	}{
		// Engines that only speak UCI hand back moves like this; callers
		// fall back to the native move instead.
		{"uci text", startFEN, "e2e4", ErrUnknownMove},
		{"illegal", startFEN, "e5", ErrUnknownMove},
		{"castle through pieces", startFEN, "O-O", ErrUnknownMove},
		{"empty", startFEN, "", ErrUnknownMove},
		{"bad fen", "not a position", "e4", ErrBadFEN},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := SANToUCI(tc.fen, tc.san); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
		})
	}
}

func TestUCIToSAN(t *testing.T) {
	cases := []struct {
		fen  string
		uci  string
		want string
	}{
		{startFEN, "g1f3", "Nf3"},
		{castlingFEN, "e1g1", "O-O"},
		{castlingFEN, "e1c1", "O-O-O"},
		{promoteFEN, "e7e8q", "e8=Q"},
		{promoteFEN, "e7e8n", "e8=N+"},
	}
	for _, tc := range cases {
		got, err := UCIToSAN(tc.fen, tc.uci)
		if err != nil {
			t.Fatalf("UCIToSAN(%q): %v", tc.uci, err)
		}
		if got != tc.want {
			t.Errorf("UCIToSAN(%q) = %q, want %q", tc.uci, got, tc.want)
		}
	}

	if _, err := UCIToSAN(startFEN, "e2e5"); !errors.Is(err, ErrUnknownMove) {
		t.Fatalf("expected ErrUnknownMove, got %v", err)
	}
}

func TestLegalUCI(t *testing.T) {
	if !LegalUCI(startFEN, "b1c3") {
		t.Errorf("b1c3 should be legal from the start")
	}
	if LegalUCI(startFEN, "b1b3") {
		t.Errorf("b1b3 is not a knight move")
	}
	if LegalUCI(startFEN, "Nc3") {
		t.Errorf("SAN is not UCI")
	}
	if LegalUCI("garbage", "e2e4") {
		t.Errorf("bad FEN cannot have legal moves")
	}
}
