package ai

import (
	"context"
	"sync"

	"chessroom/internal/engine"
)

// Pool hands out bridges. By default every game gets its own bridge so AI
// games progress in parallel; a shared pool returns one bridge for all games.
type Pool struct {
	adapter engine.Adapter
	cfg     Config
	shared  *Bridge
	mu      sync.Mutex
	bridges map[string]*Bridge
}

// NewPool creates a bridge pool.
func NewPool(adapter engine.Adapter, cfg Config, shared bool) *Pool {
	p := &Pool{
		adapter: adapter,
		cfg:     cfg,
		bridges: make(map[string]*Bridge),
	}
	if shared {
		p.shared = NewBridge(adapter, cfg)
	}
	return p
}

// For retrieves the bridge serving gameID, creating it on first use.
func (p *Pool) For(gameID string) *Bridge {
	if p.shared != nil {
		return p.shared
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	b, ok := p.bridges[gameID]
	if !ok {
		b = NewBridge(p.adapter, p.cfg)
		p.bridges[gameID] = b
	}
	return b
}

// Release drops the bridges of evicted games.
func (p *Pool) Release(gameIDs ...string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, id := range gameIDs {
		delete(p.bridges, id)
	}
}

// Len returns the number of per-game bridges held.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.bridges)
}

// Thinking counts the bridges with a move in flight.
func (p *Pool) Thinking() int {
	if p.shared != nil {
		if p.shared.Thinking() {
			return 1
		}
		return 0
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, b := range p.bridges {
		if b.Thinking() {
			n++
		}
	}
	return n
}

// EngineAvailable reports whether the engine behind the bridges answers.
func (p *Pool) EngineAvailable(ctx context.Context) bool {
	return p.adapter.Available(ctx)
}

// Name returns the persona name shared by all bridges.
func (p *Pool) Name() string {
	if p.cfg.Name == "" {
		return DefaultName
	}
	return p.cfg.Name
}
