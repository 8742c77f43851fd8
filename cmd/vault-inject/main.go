package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/awnumar/memguard"

	"github.com/systmms/vault-inject/cmd/vault-inject/commands"
	"github.com/systmms/vault-inject/internal/config"
	vierrors "github.com/systmms/vault-inject/internal/errors"
	"github.com/systmms/vault-inject/internal/logging"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	err := run()
	// Wipe enclave keys before exiting; os.Exit skips deferred calls.
	memguard.Purge()

	if err != nil {
		var exitErr vierrors.ExitError
		if !errors.As(err, &exitErr) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(vierrors.ExitCode(err))
	}
}

func run() error {
	cfg := &config.Config{
		Path:   config.DefaultPath,
		Logger: logging.New(false, false),
	}

	rootCmd := commands.NewRootCommand(cfg, commands.VersionString(version, commit, date))
	return rootCmd.Execute()
}
