package aidperr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestInvalidState_Error(t *testing.T) {
	err := &InvalidState{From: "ready", To: "done"}
	assert.Equal(t, "invalid state transition: ready -> done", err.Error())
}

func TestTaskNotFound_Error(t *testing.T) {
	err := &TaskNotFound{ID: "task-1"}
	assert.Equal(t, "task not found: task-1", err.Error())
}

func TestWorktreeError_UnwrapReachesUnderlyingErr(t *testing.T) {
	underlying := errors.New("lock held")
	err := &WorktreeError{Op: "create worktree", Err: underlying}

	assert.ErrorIs(t, err, underlying)
	assert.Contains(t, err.Error(), "lock held")
}

func TestPersistenceFailure_UnwrapReachesUnderlyingErr(t *testing.T) {
	underlying := errors.New("disk full")
	err := &PersistenceFailure{Path: "/tmp/x", Err: underlying}

	assert.ErrorIs(t, err, underlying)
}

func TestExitError_ErrorFallsBackToCodeWhenErrIsNil(t *testing.T) {
	err := &ExitError{Code: 2}
	assert.Equal(t, "exit 2", err.Error())
}

func TestExitError_ErrorUsesWrappedMessageWhenPresent(t *testing.T) {
	err := &ExitError{Code: 1, Err: errors.New("boom")}
	assert.Equal(t, "boom", err.Error())
}

func TestExitError_UnwrapReachesUnderlyingErr(t *testing.T) {
	underlying := errors.New("cancelled")
	err := &ExitError{Code: 2, Err: underlying}

	assert.ErrorIs(t, err, underlying)
}
