package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/yanyan-huang/pmpal/internal/app"
	"github.com/yanyan-huang/pmpal/internal/policy"
)

func newHistoryCommand() *cobra.Command {
	var (
		userID string
		limit  int
		full   bool
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Print a user's audit history from the configured store",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd.ErrOrStderr(), "warn")
			if err != nil {
				return err
			}
			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			res, err := app.Build(ctx, cfg)
			if err != nil {
				return err
			}
			defer res.Cleanup()

			records, err := res.Manager.History(ctx, userID, limit)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, r := range records {
				content := r.Content
				if !full {
					content = policy.Preview(content, 120)
				}
				source := string(r.Source)
				if source == "" {
					source = "-"
				}
				fmt.Fprintf(out, "%s  %-11s %-5s %-9s %s\n", r.Timestamp.Format(time.RFC3339), r.Mode, source, r.Role, content)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "user id")
	cmd.Flags().IntVar(&limit, "limit", 20, "number of newest records to print (0 = all)")
	cmd.Flags().BoolVar(&full, "full", false, "print full content instead of a redacted preview")
	return cmd
}
