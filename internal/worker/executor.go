// Package worker holds the claim-loop executor that wraps a worker
// process's task handlers with panic recovery and timeout classification.
// The claim/heartbeat/registry business logic itself lives in
// internal/ptc/claim, internal/ptc/heartbeat, and internal/ptc/store; this
// package is purely the handler-dispatch layer cmd/worker drives.
package worker

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"time"

	"github.com/maumercado/ptc/internal/logger"
)

// TaskHandler processes a claimed task, identified only by its id — the
// PTC domain has no rich task payload the way the teacher's task.Task did;
// a handler that needs more detail fetches it from whatever ready-task
// source produced the id.
type TaskHandler func(ctx context.Context, taskID string) error

// Executor dispatches claimed task ids to registered handlers, recovering
// from handler panics and classifying timeout/cancellation the way the
// teacher's task executor did for *task.Task.
type Executor struct {
	handlers map[string]TaskHandler
}

// NewExecutor creates an executor over the given handler map (copied, so
// later registrations on the caller's map don't leak in).
func NewExecutor(handlers map[string]TaskHandler) *Executor {
	e := &Executor{handlers: make(map[string]TaskHandler, len(handlers))}
	for k, v := range handlers {
		e.handlers[k] = v
	}
	return e
}

// RegisterHandler adds or replaces the handler for a task namespace.
func (e *Executor) RegisterHandler(name string, handler TaskHandler) {
	e.handlers[name] = handler
}

// Execute dispatches taskID to the handler whose name matches its
// "<name>-..." prefix. When no prefix matches it falls back to the "echo"
// handler if one is registered, and otherwise returns ErrHandlerNotFound.
func (e *Executor) Execute(ctx context.Context, taskID string) (err error) {
	handler, name, ok := e.resolve(taskID)
	if !ok {
		return ErrHandlerNotFound
	}

	defer func() {
		if r := recover(); r != nil {
			stack := debug.Stack()
			logger.Error().
				Str("task_id", taskID).
				Str("handler", name).
				Interface("panic", r).
				Str("stack", string(stack)).
				Msg("task handler panicked")
			err = fmt.Errorf("handler panicked: %v", r)
		}
	}()

	log := logger.WithTask(taskID)
	log.Debug().Str("handler", name).Msg("executing task")

	start := time.Now()
	err = handler(ctx, taskID)
	duration := time.Since(start)

	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.Warn().Dur("duration", duration).Msg("task timed out")
			return ErrTaskTimeout
		}
		if errors.Is(err, context.Canceled) {
			log.Warn().Dur("duration", duration).Msg("task canceled")
			return ErrTaskCanceled
		}
		log.Error().Err(err).Dur("duration", duration).Msg("task failed")
		return err
	}

	log.Debug().Dur("duration", duration).Msg("task executed successfully")
	return nil
}

// resolve picks a handler by matching taskID's "<name>-" prefix against
// registered names.
func (e *Executor) resolve(taskID string) (TaskHandler, string, bool) {
	for name, h := range e.handlers {
		if len(taskID) > len(name)+1 && taskID[:len(name)+1] == name+"-" {
			return h, name, true
		}
	}
	if h, ok := e.handlers["echo"]; ok {
		return h, "echo", true
	}
	return nil, "", false
}

// HasHandler reports whether a handler is registered under name.
func (e *Executor) HasHandler(name string) bool {
	_, ok := e.handlers[name]
	return ok
}

// HandlerTypes returns every registered handler name, used to populate a
// worker's advertised Capabilities at registration time.
func (e *Executor) HandlerTypes() []string {
	types := make([]string, 0, len(e.handlers))
	for t := range e.handlers {
		types = append(types, t)
	}
	return types
}

var (
	ErrHandlerNotFound = errors.New("handler not found for task type")
	ErrTaskTimeout     = errors.New("task execution timed out")
	ErrTaskCanceled    = errors.New("task execution canceled")
)
