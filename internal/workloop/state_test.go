package workloop

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/clock"
)

func TestState_StartsIdle(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestState_Transition_LegalGraph(t *testing.T) {
	s := New(clock.NewFake(time.Now()))

	require.NoError(t, s.Transition(PhaseRunning))
	require.NoError(t, s.Transition(PhasePaused))
	require.NoError(t, s.Transition(PhaseRunning))
	require.NoError(t, s.Transition(PhaseCompleted))
}

func TestState_Transition_IllegalReturnsInvalidState(t *testing.T) {
	s := New(clock.NewFake(time.Now()))

	err := s.Transition(PhasePaused)

	var invalid *aidperr.InvalidState
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, string(PhaseIdle), invalid.From)
	assert.Equal(t, string(PhasePaused), invalid.To)
	assert.Equal(t, PhaseIdle, s.Phase(), "phase must not change on an illegal transition")
}

func TestState_Transition_SamePhaseIsNoop(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	require.NoError(t, s.Transition(PhaseIdle))
	assert.Equal(t, PhaseIdle, s.Phase())
}

func TestState_Transition_TerminalPhasesAreSticky(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	require.NoError(t, s.Transition(PhaseRunning))
	require.NoError(t, s.Transition(PhaseCancelled))

	err := s.Transition(PhaseRunning)
	assert.Error(t, err)
}

func TestState_IncrementIteration(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	assert.Equal(t, 0, s.Iteration())
	assert.Equal(t, 1, s.IncrementIteration())
	assert.Equal(t, 2, s.IncrementIteration())
	assert.Equal(t, 2, s.Iteration())
}

func TestState_AppendAndDrainOutput(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	s.AppendOutput("hello", "agent")
	s.AppendOutput("world", "system")

	drained := s.DrainOutput()
	require.Len(t, drained, 2)
	assert.Equal(t, "hello", drained[0].Message)
	assert.Equal(t, "agent", drained[0].Type)

	assert.Empty(t, s.DrainOutput(), "drain must clear the buffer")
}

func TestState_GuardUpdates_StagedAndDrained(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	s.RequestGuardUpdate("max_lines_per_commit", "200")
	s.RequestGuardUpdate("enabled", "false")

	updates := s.DrainGuardUpdates()
	assert.Equal(t, map[string]string{"max_lines_per_commit": "200", "enabled": "false"}, updates)
	assert.Empty(t, s.DrainGuardUpdates())
}

func TestState_ConfigReload_FlaggedAndCleared(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	assert.False(t, s.DrainConfigReload())

	s.RequestConfigReload()
	assert.True(t, s.DrainConfigReload())
	assert.False(t, s.DrainConfigReload(), "flag must reset after drain")
}

func TestState_SetError_VisibleInSnapshot(t *testing.T) {
	s := New(clock.NewFake(time.Now()))
	boom := assert.AnError
	s.SetError(boom)

	snap := s.Snapshot()
	assert.Equal(t, boom, snap.LastError)
}
