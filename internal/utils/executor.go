package utils

import (
	"sync"

	"github.com/hashicorp/go-hclog"
)

// Executor runs I/O-bound tasks (catalog ingestion, plugin calls, resolution)
// off the caller's goroutine. It is unbounded: Submit never blocks and never
// drops work while the executor is running.
type Executor struct {
	logger  hclog.Logger
	wg      sync.WaitGroup
	running bool
	mu      sync.RWMutex
}

// NewExecutor creates a running executor.
func NewExecutor(logger hclog.Logger) *Executor {
	if logger == nil {
		logger = hclog.NewNullLogger()
	}
	return &Executor{logger: logger, running: true}
}

// Submit schedules work on its own goroutine.
// Returns false if the executor has been stopped. Non-blocking operation.
func (e *Executor) Submit(work func()) bool {
	if work == nil {
		return false
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	if !e.running {
		return false
	}

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				e.logger.Error("task panicked", "panic", r)
			}
		}()
		work()
	}()
	return true
}

// Stop rejects new work and waits for in-flight tasks to finish.
func (e *Executor) Stop() {
	e.mu.Lock()
	if !e.running {
		e.mu.Unlock()
		return
	}
	e.running = false
	e.mu.Unlock()

	e.wg.Wait()
}

// Running reports whether the executor still accepts work.
func (e *Executor) Running() bool {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return e.running
}
