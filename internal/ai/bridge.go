// Package ai plays the computer opponent. A Bridge turns a game snapshot
// into a move by asking an engine.Adapter, while pretending to think for a
// while the way a human would.
package ai

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"chessroom/internal/engine"
	"chessroom/internal/models"
	"chessroom/internal/notation"

	"go.uber.org/zap"
)

var (
	ErrAlreadyThinking = errors.New("already thinking about a move")
	ErrNotAIGame       = errors.New("the AI is not a player in this game")
	ErrNoLegalMove     = errors.New("engine suggested no legal move")
)

// DefaultName is the persona name used in chat.
const DefaultName = "ANA"

// Decision is the move chosen for one turn.
type Decision struct {
	// Move is in UCI notation and legal in the analyzed position.
	Move        string
	SAN         string
	Color       models.Color
	Explanation string
	Result      engine.MoveResult
}

// Config configures a Bridge.
type Config struct {
	Name string
	// DelayScale multiplies the simulated thinking time. Zero disables it.
	DelayScale      float64
	MaxThinkingTime time.Duration
	Logger          *zap.Logger
}

// Bridge computes AI moves. At most one request is in flight per Bridge.
type Bridge struct {
	engine      engine.Adapter
	name        string
	delayScale  float64
	maxThinking time.Duration
	sem         chan struct{}
	rand        func() float64
	sleep       func(context.Context, time.Duration) error
	logger      *zap.Logger
}

// NewBridge creates a bridge backed by adapter.
func NewBridge(adapter engine.Adapter, cfg Config) *Bridge {
	if cfg.Name == "" {
		cfg.Name = DefaultName
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Bridge{
		engine:      adapter,
		name:        cfg.Name,
		delayScale:  cfg.DelayScale,
		maxThinking: cfg.MaxThinkingTime,
		sem:         make(chan struct{}, 1),
		rand:        rand.Float64,
		sleep:       sleepContext,
		logger:      cfg.Logger,
	}
}

// Name returns the persona name.
func (b *Bridge) Name() string {
	return b.name
}

// Thinking reports whether a request is in flight.
func (b *Bridge) Thinking() bool {
	return len(b.sem) > 0
}

// GetMove chooses a move for the side given by color, or for the AI seat
// of g when color is nil. A concurrent call on the same bridge fails
// immediately with ErrAlreadyThinking.
func (b *Bridge) GetMove(ctx context.Context, g models.Game, color *models.Color) (Decision, error) {
	select {
	case b.sem <- struct{}{}:
	default:
		return Decision{}, ErrAlreadyThinking
	}
	defer func() { <-b.sem }()

	var side models.Color
	if color != nil {
		side = *color
	} else {
		c, ok := g.AIColor()
		if !ok {
			return Decision{}, ErrNotAIGame
		}
		side = c
	}

	profile := ProfileFor(g.Difficulty)
	delay := profile.Delay(b.rand(), b.delayScale)
	b.logger.Info("thinking",
		zap.String("game_id", g.ID),
		zap.String("color", string(side)),
		zap.String("difficulty", string(g.Difficulty)),
		zap.Int("depth", profile.Depth),
		zap.Duration("delay", delay),
	)

	type answer struct {
		result engine.MoveResult
		err    error
	}
	answers := make(chan answer, 1)
	go func() {
		r, err := b.engine.BestMove(ctx, g.FEN, profile.Depth, b.maxThinking)
		answers <- answer{result: r, err: err}
	}()

	if err := b.sleep(ctx, delay); err != nil {
		return Decision{}, err
	}
	var ans answer
	select {
	case ans = <-answers:
	case <-ctx.Done():
		return Decision{}, ctx.Err()
	}
	if ans.err != nil {
		return Decision{}, fmt.Errorf("analyze position: %w", ans.err)
	}

	result := ans.result
	move, err := notation.SANToUCI(g.FEN, result.SAN)
	san := result.SAN
	if err != nil {
		b.logger.Warn("could not read display move, asking for native move",
			zap.String("game_id", g.ID), zap.String("san", result.SAN), zap.Error(err))
		move, err = b.nativeMove(ctx, g.FEN, profile.Depth)
		if err != nil {
			return Decision{}, err
		}
		if s, err := notation.UCIToSAN(g.FEN, move); err == nil {
			san = s
		} else {
			san = move
		}
	}

	decision := Decision{
		Move:        move,
		SAN:         san,
		Color:       side,
		Explanation: compose(san, engine.Explain(result), result.MateIn, side),
		Result:      result,
	}
	b.logger.Info("move chosen", zap.String("game_id", g.ID), zap.String("move", move), zap.String("san", san))
	return decision, nil
}

// nativeMove asks the engine again and uses its UCI answer directly.
func (b *Bridge) nativeMove(ctx context.Context, fen string, depth int) (string, error) {
	r, err := b.engine.BestMove(ctx, fen, depth, b.maxThinking)
	if err != nil {
		return "", fmt.Errorf("analyze position: %w", err)
	}
	if !notation.LegalUCI(fen, r.Move) {
		return "", fmt.Errorf("%w: %q", ErrNoLegalMove, r.Move)
	}
	return r.Move, nil
}

// compose builds the chat line announcing the move. Mate scores are from
// white's point of view; the remark is phrased for side.
func compose(san, explanation string, mateIn *int, side models.Color) string {
	parts := []string{fmt.Sprintf("I'll play **%s**.", san)}
	if explanation = strings.TrimSpace(explanation); explanation != "" {
		parts = append(parts, explanation)
	}
	if mateIn != nil && *mateIn != 0 {
		n := *mateIn
		winning := (n > 0) == (side == models.White)
		if n < 0 {
			n = -n
		}
		if winning {
			parts = append(parts, fmt.Sprintf("Checkmate in %d!", n))
		} else {
			parts = append(parts, fmt.Sprintf("I see mate in %d against me... but I'll fight on!", n))
		}
	}
	return strings.Join(parts, " ")
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
