package engine

import (
	"context"
	"sync"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/applog"
	"github.com/re-cinq/aidp-loop/internal/instructions"
	"github.com/re-cinq/aidp-loop/internal/workloop"
)

// AsyncRunner (C14) runs one Engine.ExecuteStep call on a worker
// goroutine, leaving the REPL goroutine free to inspect and steer it
// through the shared WorkLoopState mailbox.
type AsyncRunner struct {
	engine *Engine
	state  *workloop.State
	queue  *instructions.Queue
	log    applog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan StepResult
}

// NewAsyncRunner builds an AsyncRunner driving engine's steps.
func NewAsyncRunner(eng *Engine, state *workloop.State, queue *instructions.Queue, log applog.Logger) *AsyncRunner {
	if log == nil {
		log = applog.Discard{}
	}
	return &AsyncRunner{engine: eng, state: state, queue: queue, log: log}
}

// Running reports whether a step is currently executing.
func (r *AsyncRunner) Running() bool {
	phase := r.state.Phase()
	return phase == workloop.PhaseRunning || phase == workloop.PhasePaused
}

// EnginePhase returns the fix-forward engine's current phase, for
// status displays sharing the process with the worker goroutine.
func (r *AsyncRunner) EnginePhase() Phase {
	return r.engine.CurrentPhase()
}

// ExecuteStepAsync starts stepName on a worker goroutine. It rejects
// the call if a step is already running.
func (r *AsyncRunner) ExecuteStepAsync(stepName, workingDir string) error {
	if r.Running() {
		return &aidperr.StateError{Message: "a work-loop step is already running"}
	}
	if err := r.state.Transition(workloop.PhaseRunning); err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	r.mu.Lock()
	r.cancel = cancel
	r.done = make(chan StepResult, 1)
	done := r.done
	r.mu.Unlock()

	go func() {
		defer func() {
			if rec := recover(); rec != nil {
				r.state.SetError(&aidperr.StateError{Message: "worker panic recovered"})
				r.transitionQuiet(workloop.PhaseError)
				done <- StepResult{Status: "error", Message: "worker panic recovered"}
				return
			}
		}()
		result := r.engine.ExecuteStep(ctx, stepName, workingDir)
		switch result.Status {
		case "completed":
			r.transitionQuiet(workloop.PhaseCompleted)
		case "cancelled":
			r.transitionQuiet(workloop.PhaseCancelled)
		default:
			if result.Error != nil {
				r.state.SetError(result.Error)
			}
			r.transitionQuiet(workloop.PhaseError)
		}
		done <- result
	}()
	return nil
}

func (r *AsyncRunner) transitionQuiet(to workloop.Phase) {
	if err := r.state.Transition(to); err != nil {
		r.log.Warn("state transition failed", "to", to, "err", err)
	}
}

// Pause requests the worker pause at the next iteration boundary.
// Pausing is cooperative: the worker checks phase between iterations,
// never mid-iteration.
func (r *AsyncRunner) Pause() error {
	return r.state.Transition(workloop.PhasePaused)
}

// Resume un-pauses a paused worker.
func (r *AsyncRunner) Resume() error {
	return r.state.Transition(workloop.PhaseRunning)
}

// Cancel requests cooperative cancellation. The worker observes this
// at the next iteration boundary; no goroutine is forcibly killed.
func (r *AsyncRunner) Cancel() error {
	r.mu.Lock()
	cancel := r.cancel
	r.mu.Unlock()
	if cancel == nil {
		return &aidperr.StateError{Message: "no step is running"}
	}
	if err := r.state.Transition(workloop.PhaseCancelled); err != nil {
		return err
	}
	cancel()
	return nil
}

// EnqueueInstruction adds a REPL-submitted instruction to the shared
// queue, to be drained by the engine at the next iteration boundary.
func (r *AsyncRunner) EnqueueInstruction(content string, t instructions.Type, p instructions.Priority) (instructions.Instruction, error) {
	return r.queue.Enqueue(content, t, p)
}

// DrainOutput returns and clears buffered output lines for the REPL to
// render.
func (r *AsyncRunner) DrainOutput() []workloop.OutputEntry {
	return r.state.DrainOutput()
}

// RequestGuardUpdate stages a guard-policy change for the engine to
// apply at the next iteration boundary.
func (r *AsyncRunner) RequestGuardUpdate(key, value string) {
	r.state.RequestGuardUpdate(key, value)
}

// RequestConfigReload flags that configuration should be reloaded at
// the next iteration boundary.
func (r *AsyncRunner) RequestConfigReload() {
	r.state.RequestConfigReload()
}

// Wait blocks until the running step finishes and returns its result.
// It is a programmer error to call Wait without a prior successful
// ExecuteStepAsync; callers that raced against Cancel still observe
// the worker's own terminal result here.
func (r *AsyncRunner) Wait() StepResult {
	r.mu.Lock()
	done := r.done
	r.mu.Unlock()
	if done == nil {
		return StepResult{Status: "unknown"}
	}
	return <-done
}
