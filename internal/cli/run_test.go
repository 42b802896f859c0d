package cli

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
)

func TestExitFromStatus_Completed(t *testing.T) {
	err := exitFromStatus("completed", false)
	assert.NoError(t, err)
}

func TestExitFromStatus_CancelledByInterrupt(t *testing.T) {
	err := exitFromStatus("cancelled", true)

	var exitErr *aidperr.ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 130, exitErr.Code)
}

func TestExitFromStatus_CancelledWithoutInterrupt(t *testing.T) {
	err := exitFromStatus("cancelled", false)

	var exitErr *aidperr.ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 2, exitErr.Code)
}

func TestExitFromStatus_OtherStatusIsError(t *testing.T) {
	err := exitFromStatus("error", false)

	var exitErr *aidperr.ExitError
	assert.ErrorAs(t, err, &exitErr)
	assert.Equal(t, 1, exitErr.Code)
}
