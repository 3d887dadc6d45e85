package main

import (
	"os"

	"github.com/yanyan-huang/pmpal/internal/cli"
	"github.com/yanyan-huang/pmpal/internal/observability"
)

func main() {
	if err := cli.NewRoot().Execute(); err != nil {
		observability.Logger().Error("command failed", "error", err)
		os.Exit(1)
	}
}
