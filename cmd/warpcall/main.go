package main

import (
	"os"

	"github.com/rs/zerolog"

	"github.com/techie-mohit/videoCalling/internal/cmd"
	"github.com/techie-mohit/videoCalling/internal/logging"
)

func main() {
	// The call screen owns the terminal, so only errors are logged by default.
	logging.Init(os.Stderr, zerolog.ErrorLevel)
	cmd.Execute()
}
