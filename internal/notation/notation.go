// Package notation converts between the move notations used by clients,
// analysis backends and the rules engine.
package notation

import (
	"errors"
	"fmt"
	"strings"

	"github.com/notnil/chess"
)

var (
	ErrBadFEN      = errors.New("invalid FEN")
	ErrUnknownMove = errors.New("move not legal in position")
)

// ValidUCI reports whether s is syntactically a UCI move:
// [a-h][1-8][a-h][1-8] with an optional promotion piece [qrbn].
func ValidUCI(s string) bool {
	if len(s) < 4 || len(s) > 5 {
		return false
	}
	if s[0] < 'a' || s[0] > 'h' || s[2] < 'a' || s[2] > 'h' {
		return false
	}
	if s[1] < '1' || s[1] > '8' || s[3] < '1' || s[3] > '8' {
		return false
	}
	if len(s) == 5 {
		switch s[4] {
		case 'q', 'r', 'b', 'n':
		default:
			return false
		}
	}
	return true
}

// Position parses a FEN string.
func Position(fen string) (*chess.Position, error) {
	opt, err := chess.FEN(fen)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrBadFEN, err)
	}
	return chess.NewGame(opt).Position(), nil
}

// FindUCI returns the legal move of pos written as uci, or nil.
func FindUCI(pos *chess.Position, uci string) *chess.Move {
	for _, m := range pos.ValidMoves() {
		if (chess.UCINotation{}).Encode(pos, m) == uci {
			return m
		}
	}
	return nil
}

// FindSAN returns the legal move of pos written as san, or nil. Check,
// mate and annotation suffixes are ignored on both sides of the comparison.
func FindSAN(pos *chess.Position, san string) *chess.Move {
	want := trimSAN(san)
	if want == "" {
		return nil
	}
	for _, m := range pos.ValidMoves() {
		if trimSAN((chess.AlgebraicNotation{}).Encode(pos, m)) == want {
			return m
		}
	}
	return nil
}

// SANToUCI converts a display move to UCI for the position in fen.
func SANToUCI(fen, san string) (string, error) {
	pos, err := Position(fen)
	if err != nil {
		return "", err
	}
	m := FindSAN(pos, san)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownMove, san)
	}
	return (chess.UCINotation{}).Encode(pos, m), nil
}

// UCIToSAN converts a UCI move to display notation for the position in fen.
func UCIToSAN(fen, uci string) (string, error) {
	pos, err := Position(fen)
	if err != nil {
		return "", err
	}
	m := FindUCI(pos, uci)
	if m == nil {
		return "", fmt.Errorf("%w: %q", ErrUnknownMove, uci)
	}
	return (chess.AlgebraicNotation{}).Encode(pos, m), nil
}

// LegalUCI reports whether uci is a legal move in the position.
func LegalUCI(fen, uci string) bool {
	if !ValidUCI(uci) {
		return false
	}
	pos, err := Position(fen)
	if err != nil {
		return false
	}
	return FindUCI(pos, uci) != nil
}

func trimSAN(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimRight(s, "+#!?")
	// 0-0 style castling is common in free text.
	s = strings.ReplaceAll(s, "0", "O")
	return s
}
