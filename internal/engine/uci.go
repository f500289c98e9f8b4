package engine

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"

	"chessroom/internal/notation"

	"go.uber.org/zap"
)

const (
	uciBackend       = "uci"
	defaultUCIDepth  = 20
	stopGracePeriod  = 500 * time.Millisecond
	uciHandshakeWait = 10 * time.Second
)

// UCIConfig configures a UCIAdapter.
type UCIConfig struct {
	// Path is the engine binary, e.g. "stockfish".
	Path     string
	MaxDepth int
	Logger   *zap.Logger
}

// UCIAdapter drives a local UCI engine over its stdin and stdout. Requests
// are serialized; the engine process handles one search at a time. An
// engine that stops answering is replaced on the next request.
type UCIAdapter struct {
	cmd       *exec.Cmd
	in        *bufio.Writer
	out       *bufio.Scanner
	mu        sync.Mutex
	ready     bool
	maxDepth  int
	stopGrace time.Duration
	logger    *zap.Logger
	// relaunch replaces the engine process. Nil disables restarts.
	relaunch func(ctx context.Context) error
}

// NewUCIAdapter starts the engine binary and completes the UCI handshake.
func NewUCIAdapter(ctx context.Context, cfg UCIConfig) (*UCIAdapter, error) {
	a := newUCIAdapter(cfg)
	a.relaunch = func(ctx context.Context) error {
		return a.launch(ctx, cfg.Path)
	}
	if err := a.launch(ctx, cfg.Path); err != nil {
		return nil, err
	}
	return a, nil
}

func newUCIAdapter(cfg UCIConfig) *UCIAdapter {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = defaultUCIDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &UCIAdapter{
		maxDepth:  cfg.MaxDepth,
		stopGrace: stopGracePeriod,
		logger:    cfg.Logger,
	}
}

// attach points the adapter at a new engine's pipes.
func (a *UCIAdapter) attach(in io.Writer, out io.Reader) {
	a.in = bufio.NewWriter(in)
	a.out = bufio.NewScanner(out)
}

// launch starts the engine binary, killing any previous process. Caller
// holds a.mu or owns a.
func (a *UCIAdapter) launch(ctx context.Context, path string) error {
	if old := a.cmd; old != nil {
		a.cmd = nil
		_ = old.Process.Kill()
		go old.Wait()
	}

	cmd := exec.Command(path)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return err
	}
	if err := cmd.Start(); err != nil {
		return &Error{Kind: ErrUnavailable, Backend: uciBackend, Err: err}
	}
	a.attach(stdin, stdout)
	a.cmd = cmd

	ctx, cancel := context.WithTimeout(ctx, uciHandshakeWait)
	defer cancel()
	if err := a.handshake(ctx); err != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		a.cmd = nil
		return err
	}
	return nil
}

// handshake runs uci/isready on the attached engine. Caller holds a.mu or
// owns a.
func (a *UCIAdapter) handshake(ctx context.Context) error {
	if err := a.send("uci"); err != nil {
		return err
	}
	if err := a.waitFor(ctx, "uciok"); err != nil {
		return err
	}
	if err := a.send("isready"); err != nil {
		return err
	}
	if err := a.waitFor(ctx, "readyok"); err != nil {
		return err
	}
	a.ready = true
	return nil
}

// waitFor reads lines until want appears. Caller holds a.mu.
func (a *UCIAdapter) waitFor(ctx context.Context, want string) error {
	out := a.out
	done := make(chan error, 1)
	go func() {
		for out.Scan() {
			if strings.TrimSpace(out.Text()) == want {
				done <- nil
				return
			}
		}
		err := out.Err()
		if err == nil {
			err = io.EOF
		}
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			return &Error{Kind: ErrUnavailable, Backend: uciBackend, Err: fmt.Errorf("waiting for %s: %w", want, err)}
		}
		return nil
	case <-ctx.Done():
		a.ready = false
		return classify(uciBackend, ctx.Err())
	}
}

// BestMove implements Adapter.
func (a *UCIAdapter) BestMove(ctx context.Context, fen string, depth int, maxThinkingTime time.Duration) (MoveResult, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if !a.ready {
		if err := a.restart(ctx); err != nil {
			return MoveResult{}, err
		}
	}

	depth = clampInt(depth, 1, a.maxDepth)
	goCmd := fmt.Sprintf("go depth %d", depth)
	if maxThinkingTime > 0 {
		goCmd = fmt.Sprintf("%s movetime %d", goCmd, maxThinkingTime.Milliseconds())
	}
	if err := a.send("position fen " + fen); err != nil {
		return MoveResult{}, err
	}
	if err := a.send(goCmd); err != nil {
		return MoveResult{}, err
	}

	var search uciSearch
	out := a.out
	readDone := make(chan error, 1)
	go func() {
		for out.Scan() {
			if search.consume(out.Text()) {
				readDone <- nil
				return
			}
		}
		err := out.Err()
		if err == nil {
			err = io.EOF
		}
		readDone <- err
	}()

	select {
	case err := <-readDone:
		if err != nil {
			a.ready = false
			return MoveResult{}, &Error{Kind: ErrUnavailable, Backend: uciBackend, Err: err}
		}
	case <-ctx.Done():
		_ = a.send("stop")
		select {
		case <-readDone:
		case <-time.After(a.stopGrace):
			// The reader goroutine still owns the scanner.
			a.ready = false
			a.logger.Error("engine ignored stop, it will be restarted on the next request",
				zap.Duration("grace", a.stopGrace))
		}
		return MoveResult{}, classify(uciBackend, ctx.Err())
	}

	return search.result(fen)
}

// restart replaces an engine that stopped answering. Caller holds a.mu.
func (a *UCIAdapter) restart(ctx context.Context) error {
	if a.relaunch == nil {
		return &Error{Kind: ErrUnavailable, Backend: uciBackend, Err: errors.New("engine not ready")}
	}
	a.logger.Warn("restarting engine")
	if err := a.relaunch(ctx); err != nil {
		a.logger.Error("engine restart failed", zap.Error(err))
		return err
	}
	return nil
}

// Available implements Adapter.
func (a *UCIAdapter) Available(context.Context) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.ready
}

// Close asks the engine to quit and waits for the process to exit.
func (a *UCIAdapter) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ready = false
	a.relaunch = nil
	_ = a.send("quit")
	if a.cmd == nil {
		return nil
	}
	return a.cmd.Wait()
}

func (a *UCIAdapter) send(cmd string) error {
	if _, err := fmt.Fprintln(a.in, cmd); err != nil {
		return &Error{Kind: ErrUnavailable, Backend: uciBackend, Err: err}
	}
	if err := a.in.Flush(); err != nil {
		return &Error{Kind: ErrUnavailable, Backend: uciBackend, Err: err}
	}
	return nil
}

// uciSearch accumulates the last reported score and principal variation.
type uciSearch struct {
	depth int
	cp    *int
	mate  *int
	pv    []string
	best  string
}

// consume parses one engine output line and reports whether the search
// finished. Examples:
//
//	info depth 18 seldepth 24 score cp 23 nodes 1234 pv e2e4 e7e5
//	info depth 20 score mate 3 pv d8h4
//	bestmove e2e4 ponder e7e5
func (s *uciSearch) consume(line string) bool {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}
	switch fields[0] {
	case "info":
		for i := 1; i < len(fields); i++ {
			switch fields[i] {
			case "depth":
				if i+1 < len(fields) {
					if d, err := strconv.Atoi(fields[i+1]); err == nil {
						s.depth = d
					}
					i++
				}
			case "score":
				if i+2 < len(fields) {
					n, err := strconv.Atoi(fields[i+2])
					if err == nil {
						switch fields[i+1] {
						case "cp":
							s.cp, s.mate = &n, nil
						case "mate":
							s.mate, s.cp = &n, nil
						}
					}
					i += 2
				}
			case "pv":
				s.pv = append([]string(nil), fields[i+1:]...)
				i = len(fields)
			case "string":
				i = len(fields)
			}
		}
	case "bestmove":
		if len(fields) >= 2 {
			s.best = fields[1]
		}
		return true
	}
	return false
}

// result converts engine-relative scores into white's point of view.
func (s *uciSearch) result(fen string) (MoveResult, error) {
	if !notation.ValidUCI(s.best) {
		return MoveResult{}, &Error{Kind: ErrMalformedResponse, Backend: uciBackend, Err: fmt.Errorf("bestmove %q", s.best)}
	}
	sign := 1
	if parts := strings.Fields(fen); len(parts) >= 2 && parts[1] == "b" {
		sign = -1
	}

	out := MoveResult{
		Move:         s.best,
		SAN:          s.best,
		Depth:        s.depth,
		Continuation: s.pv,
		WinChance:    50,
	}
	if san, err := notation.UCIToSAN(fen, s.best); err == nil {
		out.SAN = san
	}
	switch {
	case s.mate != nil:
		mate := *s.mate * sign
		out.MateIn = &mate
		if mate > 0 {
			out.WinChance = 100
		} else {
			out.WinChance = 0
		}
	case s.cp != nil:
		out.Centipawns = *s.cp * sign
		out.WinChance = WinChance(out.Centipawns)
	}
	out.Explanation = Explain(out)
	return out, nil
}
