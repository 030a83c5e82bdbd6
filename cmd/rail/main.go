package main

import (
	"errors"
	"os"

	"github.com/railsplit/rail/internal/cli"
	"github.com/railsplit/rail/internal/railerr"
)

// version is overridden at build time via -ldflags.
var version = "dev"

func main() {
	rootCmd := cli.NewRootCmd(version)
	if err := rootCmd.Execute(); err != nil {
		var railErr *railerr.Error
		if errors.As(err, &railErr) {
			os.Exit(railErr.Kind.ExitCode())
		}
		os.Exit(1)
	}
}
