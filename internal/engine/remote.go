package engine

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	"chessroom/internal/notation"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const (
	// DefaultRemoteURL is the public chess-api.com Stockfish endpoint.
	DefaultRemoteURL = "https://chess-api.com/v1"

	remoteBackend        = "remote"
	freeTierMaxDepth     = 12
	supporterMaxDepth    = 18
	maxRemoteThinking    = 100 * time.Millisecond
	defaultRemoteTimeout = 10 * time.Second
	availabilityTimeout  = 5 * time.Second
	maxResponseBytes     = 1 << 20
)

const startFEN = "rnbqkbnr/pppppppp/8/8/8/8/PPPPPPPP/RNBQKBNR w KQkq - 0 1"

// RemoteConfig configures a RemoteAdapter. Zero values select the free
// tier defaults.
type RemoteConfig struct {
	URL               string
	MaxDepth          int
	MaxThinkingTime   time.Duration
	Timeout           time.Duration
	RequestsPerSecond float64
	HTTPClient        *http.Client
	Logger            *zap.Logger
}

// RemoteAdapter posts positions to an HTTP analysis service.
type RemoteAdapter struct {
	url         string
	maxDepth    int
	maxThinking time.Duration
	client      *http.Client
	limiter     *rate.Limiter
	logger      *zap.Logger
}

// NewRemoteAdapter creates an adapter for a chess-api.com compatible backend.
func NewRemoteAdapter(cfg RemoteConfig) *RemoteAdapter {
	if cfg.URL == "" {
		cfg.URL = DefaultRemoteURL
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = freeTierMaxDepth
	}
	if cfg.MaxDepth > supporterMaxDepth {
		cfg.MaxDepth = supporterMaxDepth
	}
	if cfg.MaxThinkingTime <= 0 || cfg.MaxThinkingTime > maxRemoteThinking {
		cfg.MaxThinkingTime = maxRemoteThinking
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultRemoteTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	limit := rate.Inf
	if cfg.RequestsPerSecond > 0 {
		limit = rate.Limit(cfg.RequestsPerSecond)
	}
	return &RemoteAdapter{
		url:         cfg.URL,
		maxDepth:    cfg.MaxDepth,
		maxThinking: cfg.MaxThinkingTime,
		client:      cfg.HTTPClient,
		limiter:     rate.NewLimiter(limit, 1),
		logger:      cfg.Logger,
	}
}

type remoteRequest struct {
	FEN             string `json:"fen"`
	Depth           int    `json:"depth"`
	MaxThinkingTime int    `json:"maxThinkingTime"`
	Variants        int    `json:"variants"`
}

// BestMove implements Adapter.
func (a *RemoteAdapter) BestMove(ctx context.Context, fen string, depth int, maxThinkingTime time.Duration) (MoveResult, error) {
	req := remoteRequest{
		FEN:             fen,
		Depth:           clampInt(depth, 1, a.maxDepth),
		MaxThinkingTime: int(clampDuration(maxThinkingTime, time.Millisecond, a.maxThinking) / time.Millisecond),
		Variants:        1,
	}
	body, status, err := a.post(ctx, req)
	if err != nil {
		return MoveResult{}, err
	}
	if status < 200 || status > 299 {
		a.logger.Error("analysis backend error", zap.Int("status", status))
		return MoveResult{}, &Error{Kind: ErrUnavailable, Backend: remoteBackend, Status: status}
	}
	result, err := parseRemoteResponse(body)
	if err != nil {
		return MoveResult{}, err
	}
	if result.SAN == "" {
		if san, err := notation.UCIToSAN(fen, result.Move); err == nil {
			result.SAN = san
		} else {
			result.SAN = result.Move
		}
	}
	result.Explanation = Explain(result)
	return result, nil
}

// Available implements Adapter with a shallow search of the start position.
func (a *RemoteAdapter) Available(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, availabilityTimeout)
	defer cancel()
	_, status, err := a.post(ctx, remoteRequest{FEN: startFEN, Depth: 1, MaxThinkingTime: 10, Variants: 1})
	if err != nil {
		a.logger.Warn("analysis backend availability check failed", zap.Error(err))
		return false
	}
	return status == http.StatusOK
}

func (a *RemoteAdapter) post(ctx context.Context, payload remoteRequest) ([]byte, int, error) {
	if err := a.limiter.Wait(ctx); err != nil {
		return nil, 0, classify(remoteBackend, err)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, 0, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.url, bytes.NewReader(data))
	if err != nil {
		return nil, 0, &Error{Kind: ErrUnavailable, Backend: remoteBackend, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := a.client.Do(req)
	if err != nil {
		return nil, 0, classify(remoteBackend, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, resp.StatusCode, classify(remoteBackend, err)
	}
	return body, resp.StatusCode, nil
}

// parseRemoteResponse decodes a chess-api.com answer. The service returns
// either one object or a list of variants; numeric fields are sometimes
// strings, so every field is read leniently.
func parseRemoteResponse(body []byte) (MoveResult, error) {
	dec := json.NewDecoder(bytes.NewReader(body))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return MoveResult{}, &Error{Kind: ErrMalformedResponse, Backend: remoteBackend, Err: err}
	}
	if list, ok := raw.([]any); ok {
		if len(list) == 0 {
			return MoveResult{}, &Error{Kind: ErrMalformedResponse, Backend: remoteBackend, Err: errors.New("empty variant list")}
		}
		raw = list[0]
	}
	fields, ok := raw.(map[string]any)
	if !ok {
		return MoveResult{}, &Error{Kind: ErrMalformedResponse, Backend: remoteBackend, Err: fmt.Errorf("unexpected payload %T", raw)}
	}
	if kind := stringField(fields, "type"); kind == "error" {
		return MoveResult{}, &Error{Kind: ErrUnavailable, Backend: remoteBackend, Err: errors.New(stringField(fields, "text"))}
	}

	move := stringField(fields, "move")
	if move == "" {
		move = stringField(fields, "lan")
	}
	if !notation.ValidUCI(move) {
		return MoveResult{}, &Error{Kind: ErrMalformedResponse, Backend: remoteBackend, Err: fmt.Errorf("missing or invalid move %q", move)}
	}

	result := MoveResult{
		Move:        move,
		SAN:         stringField(fields, "san"),
		WinChance:   50,
		Explanation: stringField(fields, "text"),
	}
	if cp, ok := numberField(fields, "centipawns"); ok {
		result.Centipawns = int(math.Round(cp))
	} else if pawns, ok := numberField(fields, "eval"); ok {
		result.Centipawns = int(math.Round(pawns * 100))
	}
	if d, ok := numberField(fields, "depth"); ok {
		result.Depth = int(d)
	}
	if m, ok := numberField(fields, "mate"); ok && m == math.Trunc(m) {
		mate := int(m)
		result.MateIn = &mate
	}
	if w, ok := numberField(fields, "winChance"); ok {
		result.WinChance = w
	}
	if list, ok := fields["continuationArr"].([]any); ok {
		for _, item := range list {
			if s, ok := item.(string); ok {
				result.Continuation = append(result.Continuation, s)
			}
		}
	}
	return result, nil
}

func stringField(fields map[string]any, key string) string {
	s, _ := fields[key].(string)
	return strings.TrimSpace(s)
}

func numberField(fields map[string]any, key string) (float64, bool) {
	switch v := fields[key].(type) {
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case float64:
		return v, true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return f, err == nil
	}
	return 0, false
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func clampDuration(v, lo, hi time.Duration) time.Duration {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
