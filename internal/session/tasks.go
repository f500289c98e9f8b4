package session

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// taskRegistry runs at most one background task per game. Starting a task
// for a game cancels the one already running for it.
type taskRegistry struct {
	parent context.Context
	mu     sync.Mutex
	tasks  map[string]*task
	wg     sync.WaitGroup
	logger *zap.Logger
}

type task struct {
	cancel context.CancelFunc
}

func newTaskRegistry(parent context.Context, logger *zap.Logger) *taskRegistry {
	return &taskRegistry{
		parent: parent,
		tasks:  make(map[string]*task),
		logger: logger,
	}
}

func (r *taskRegistry) start(gameID string, fn func(ctx context.Context)) {
	ctx, cancel := context.WithCancel(r.parent)
	t := &task{cancel: cancel}

	r.mu.Lock()
	if old, ok := r.tasks[gameID]; ok {
		old.cancel()
	}
	r.tasks[gameID] = t
	r.mu.Unlock()

	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			if r.tasks[gameID] == t {
				delete(r.tasks, gameID)
			}
			r.mu.Unlock()
			cancel()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				r.logger.Error("background task panicked", zap.String("game_id", gameID), zap.Any("panic", rec))
			}
		}()
		fn(ctx)
	}()
}

func (r *taskRegistry) running(gameID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.tasks[gameID]
	return ok
}

func (r *taskRegistry) cancel(gameIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, id := range gameIDs {
		if t, ok := r.tasks[id]; ok {
			t.cancel()
			delete(r.tasks, id)
		}
	}
}

func (r *taskRegistry) cancelAll() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for id, t := range r.tasks {
		t.cancel()
		delete(r.tasks, id)
	}
}

func (r *taskRegistry) wait() {
	r.wg.Wait()
}
