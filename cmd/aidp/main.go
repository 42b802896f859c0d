package main

import (
	"errors"
	"os"

	"github.com/re-cinq/aidp-loop/internal/aidperr"
	"github.com/re-cinq/aidp-loop/internal/cli"
)

func main() {
	err := cli.Execute()
	if err == nil {
		return
	}

	var exitErr *aidperr.ExitError
	if errors.As(err, &exitErr) {
		os.Exit(exitErr.Code)
	}
	os.Exit(1)
}
