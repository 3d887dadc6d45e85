package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/yanyan-huang/pmpal/internal/app"
	"github.com/yanyan-huang/pmpal/internal/conversation"
	"github.com/yanyan-huang/pmpal/internal/protocol"
)

func newChatCommand() *cobra.Command {
	var (
		userID string
		mode   string
	)

	cmd := &cobra.Command{
		Use:   "chat [message]",
		Short: "Talk to PM Pal in the terminal",
		Long:  "Interactive REPL against the configured provider and store. Use /mode <name>, /start, /model <id>, /status, /help and quit.",
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

			out := cmd.OutOrStdout()
			if strings.TrimSpace(mode) != "" {
				if err := runChatLine(ctx, res.Manager, userID, "/mode "+mode, out); err != nil {
					return err
				}
			}
			if len(args) > 0 {
				return runChatLine(ctx, res.Manager, userID, strings.Join(args, " "), out)
			}
			return runChat(ctx, res.Manager, userID, cmd.InOrStdin(), out)
		},
	}
	cmd.Flags().StringVar(&userID, "user", "cli", "user id to chat as")
	cmd.Flags().StringVar(&mode, "mode", "", "switch to this mode before chatting")
	return cmd
}

var errQuit = errors.New("quit")

// runChat reads one line per exchange until EOF or quit.
func runChat(ctx context.Context, m *conversation.Manager, userID string, in io.Reader, out io.Writer) error {
	fmt.Fprintln(out, "PM Pal chat. Type /help for commands, quit to exit.")
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64<<10), 1<<20)
	for {
		fmt.Fprint(out, "> ")
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		err := runChatLine(ctx, m, userID, scanner.Text(), out)
		if errors.Is(err, errQuit) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			fmt.Fprintln(out, conversation.ApologyText)
		}
	}
}

func runChatLine(ctx context.Context, m *conversation.Manager, userID, line string, out io.Writer) error {
	line = strings.TrimSpace(line)
	if line == "" {
		return nil
	}
	cmd, arg, _ := strings.Cut(line, " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(cmd) {
	case "quit", "exit", "/quit":
		return errQuit
	case "/help":
		fmt.Fprintln(out, conversation.HelpText(m.Registry()))
		return nil
	case "/mode":
		r, err := m.SwitchMode(ctx, userID, arg)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, r.Text)
		return nil
	case "/start":
		r, err := m.Reset(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Fprintln(out, r.Text)
		return nil
	case "/model":
		if err := m.SetModel(ctx, userID, arg); err != nil {
			return err
		}
		st, err := m.Status(ctx, userID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "Model set to %s.\n", st.Model)
		return nil
	case "/status":
		st, err := m.Status(ctx, userID)
		if err != nil {
			return err
		}
		printStatus(out, st)
		return nil
	}

	r, err := m.ProcessInput(ctx, userID, line, protocol.SourceText)
	if err != nil {
		return err
	}
	fmt.Fprintln(out, r.Text)
	return nil
}

func printStatus(out io.Writer, st conversation.Status) {
	mode := st.Mode
	if mode == "" {
		mode = "(none)"
	}
	fmt.Fprintf(out, "user:      %s\n", st.UserID)
	fmt.Fprintf(out, "mode:      %s\n", mode)
	fmt.Fprintf(out, "provider:  %s (%s)\n", st.Provider, st.Model)
	if st.Unlimited {
		fmt.Fprintf(out, "usage:     %d (unlimited)\n", st.UsageCount)
		return
	}
	fmt.Fprintf(out, "usage:     %d of %d free responses (%d left)\n", st.UsageCount, st.Limit, st.Remaining)
}
