// Package engine defines the contract for chess analysis backends and the
// adapters that implement it.
//
// An Adapter answers one question: given a position, a search depth and a
// time budget, what is the best move and how good is the position? Failures
// are reported as *Error values wrapping one of the Err* sentinels so callers
// can branch with errors.Is without knowing which backend produced them.
package engine

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"
)

var (
	ErrUnavailable       = errors.New("engine unavailable")
	ErrTimeout           = errors.New("engine timeout")
	ErrMalformedResponse = errors.New("malformed engine response")
)

// Adapter is implemented by every analysis backend.
type Adapter interface {
	// BestMove analyzes fen and returns the strongest move found within
	// the depth and time budgets. Budgets above the backend's limits are
	// clamped, not rejected.
	BestMove(ctx context.Context, fen string, depth int, maxThinkingTime time.Duration) (MoveResult, error)

	// Available reports whether the backend is currently answering.
	Available(ctx context.Context) bool
}

// MoveResult is one analysis answer.
type MoveResult struct {
	// Move is in UCI notation, e.g. "e2e4".
	Move string `json:"move"`
	// SAN is the display notation, e.g. "e4".
	SAN string `json:"san"`
	// Centipawns is the evaluation from white's point of view.
	Centipawns int `json:"centipawns"`
	// Depth is the search depth actually reached.
	Depth int `json:"depth"`
	// MateIn is the forced-mate distance in moves, positive when white
	// mates. Nil when no forced mate was found.
	MateIn       *int     `json:"mate_in,omitempty"`
	Continuation []string `json:"continuation,omitempty"`
	// WinChance is white's estimated winning probability in percent.
	WinChance   float64 `json:"win_chance"`
	Explanation string  `json:"explanation"`
}

// Error carries the failure class plus backend detail.
type Error struct {
	Kind    error
	Backend string
	Status  int
	Err     error
}

func (e *Error) Error() string {
	msg := e.Kind.Error()
	if e.Backend != "" {
		msg = e.Backend + ": " + msg
	}
	if e.Status != 0 {
		msg = fmt.Sprintf("%s (status %d)", msg, e.Status)
	}
	if e.Err != nil {
		msg = msg + ": " + e.Err.Error()
	}
	return msg
}

// Is matches the failure class so errors.Is(err, ErrTimeout) works.
func (e *Error) Is(target error) bool {
	return target == e.Kind
}

func (e *Error) Unwrap() error {
	return e.Err
}

// classify maps transport failures onto the engine taxonomy.
func classify(backend string, err error) error {
	var engErr *Error
	if errors.As(err, &engErr) {
		return err
	}
	kind := ErrUnavailable
	var timeout interface{ Timeout() bool }
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &timeout) && timeout.Timeout()) {
		kind = ErrTimeout
	}
	return &Error{Kind: kind, Backend: backend, Err: err}
}

// WinChance estimates white's winning percentage from a centipawn score,
// using the logistic curve published by Lichess.
func WinChance(cp int) float64 {
	return 50 + 50*(2/(1+math.Exp(-0.00368208*float64(cp)))-1)
}
