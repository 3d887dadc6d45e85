package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yanyan-huang/pmpal/internal/app"
	"github.com/yanyan-huang/pmpal/internal/config"
	"github.com/yanyan-huang/pmpal/internal/observability"
	"github.com/yanyan-huang/pmpal/internal/prompts"
)

// version is overridden at build time with -ldflags "-X".
var version = "0.1.0"

func NewRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "pmpal",
		Short:         "PM Pal is an AI mentor, coach and mock interviewer for product managers",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.AddCommand(newServeCommand())
	root.AddCommand(newChatCommand())
	root.AddCommand(newModesCommand())
	root.AddCommand(newHistoryCommand())
	root.AddCommand(newVersionCommand())

	return root
}

// loadConfig reads the environment and installs the process logger.
func loadConfig(logOut io.Writer, levelOverride string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, fmt.Errorf("config error: %w", err)
	}
	level := cfg.LogLevel
	if levelOverride != "" {
		level = levelOverride
	}
	observability.SetLogger(observability.NewLogger(logOut, cfg.LogFormat, level))
	return cfg, nil
}

func newServeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP and websocket API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(os.Stdout, "")
			if err != nil {
				return err
			}

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			res, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer func() {
				if err := res.Cleanup(); err != nil {
					observability.Logger().Warn("cleanup failed", "error", err)
				}
			}()
			return res.Run(ctx)
		},
	}
}

func newModesCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "modes",
		Short: "List the available conversation modes",
		RunE: func(cmd *cobra.Command, args []string) error {
			registry, err := prompts.Load(os.Getenv("PROMPTS_FILE"))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range registry.All() {
				if m.Description == "" {
					fmt.Fprintln(out, m.Name)
					continue
				}
				fmt.Fprintf(out, "%-12s %s\n", m.Name, m.Description)
			}
			return nil
		},
	}
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print CLI version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), version)
		},
	}
}
