package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vitrine/vitrine/config"
	"github.com/vitrine/vitrine/pkg/conversation"
	"github.com/vitrine/vitrine/pkg/llm"
	"github.com/vitrine/vitrine/pkg/logger"
	"github.com/vitrine/vitrine/pkg/memory"
)

const chatPrompt = "> "

func newChatCmd() *cobra.Command {
	var (
		sessionID string
		locale    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the engine from the terminal",
		Long: `Starts an interactive session against the static catalog and the
scripted generator. Type /help for commands.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(map[string]interface{}{
				"catalog.mode":        "static",
				"generation.provider": "scripted",
			})
			if err != nil {
				return err
			}
			if sessionID == "" {
				sessionID = uuid.NewString()
			}
			return chat(cmd.Context(), cfg, cmd.InOrStdin(), cmd.OutOrStdout(), sessionID, locale)
		},
	}

	cmd.Flags().StringVarP(&sessionID, "session", "s", "", "session id to resume (default: new session)")
	cmd.Flags().StringVar(&locale, "locale", "", "reply locale (pt or en); detected when empty")
	return cmd
}

// chat reads one utterance per line from in until EOF or /quit.
func chat(ctx context.Context, cfg *config.Config, in io.Reader, out io.Writer, sessionID, locale string) error {
	// Keep the terminal readable: only warnings and above reach stderr.
	level := logger.WarnLevel
	if cfg.App.Debug {
		level = logger.DebugLevel
	}
	log := logger.New(&logger.Config{Level: level, Format: "text", Output: "stderr"})
	logger.SetGlobal(log)

	a, err := buildApp(ctx, cfg, log, nil, withGenerator(llm.NewScripted()))
	if err != nil {
		return err
	}
	defer func() {
		if err := a.shutdown(context.Background()); err != nil {
			log.Error("Error during shutdown", "error", err)
		}
	}()

	fmt.Fprintf(out, "vitrine chat, session %s (/help for commands)\n", sessionID)

	scanner := bufio.NewScanner(in)
	for {
		fmt.Fprint(out, chatPrompt)
		if !scanner.Scan() {
			fmt.Fprintln(out)
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			switch strings.ToLower(line) {
			case "/quit", "/exit":
				return nil
			case "/new":
				sessionID = uuid.NewString()
				fmt.Fprintf(out, "new session %s\n", sessionID)
			case "/memory":
				mem, err := a.engine.Session(ctx, sessionID)
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
					continue
				}
				printMemory(out, mem)
			case "/help":
				fmt.Fprintln(out, "/new     start a new session")
				fmt.Fprintln(out, "/memory  show what the session remembers")
				fmt.Fprintln(out, "/quit    leave")
			default:
				fmt.Fprintf(out, "unknown command %s\n", line)
			}
			continue
		}

		resp, err := a.engine.HandleTurn(ctx, conversation.TurnRequest{
			SessionID: sessionID,
			Utterance: line,
			Locale:    locale,
		})
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			continue
		}
		printTurn(out, resp)
	}
}

func printTurn(out io.Writer, resp *conversation.TurnResponse) {
	fmt.Fprintln(out, resp.Message)
	for i, item := range resp.Items {
		fmt.Fprintf(out, "  %d. %s | %s | %.2f\n", i+1, item.Title, item.Store, item.Price)
		if item.Reason != "" {
			fmt.Fprintf(out, "     %s\n", item.Reason)
		}
	}
	if resp.Tier != "" {
		fmt.Fprintf(out, "  [%s via %s tier, query %q]\n", resp.Outcome, resp.Tier, resp.Query)
	}
}

func printMemory(out io.Writer, mem *memory.ConversationMemory) {
	fmt.Fprintf(out, "messages: %d\n", len(mem.Messages))
	if mem.CurrentFocusID != "" {
		fmt.Fprintf(out, "focus:    %s\n", mem.CurrentFocusID)
	}
	if mem.LastQuery != "" {
		fmt.Fprintf(out, "query:    %s (%s)\n", mem.LastQuery, mem.LastCategory)
	}
	fmt.Fprintf(out, "shown:    %d\n", len(mem.LastShown))
}
