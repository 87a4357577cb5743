package cli

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satriahrh/sparkchat/adapters/spark"
	"github.com/satriahrh/sparkchat/domain/repositories"
)

const prompt = "> "

// sessionFactory creates the client backing a REPL
type sessionFactory func(listener spark.Listener) repositories.StreamingChat

func newChatCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive multi-turn conversation",
		Long: `Start an interactive conversation. Every line is sent as a user message and
the conversation is kept between turns. Commands:
  /clear    start a new conversation
  /history  print the conversation so far
  /exit     quit`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			newSession := func(listener spark.Listener) repositories.StreamingChat {
				return spark.NewClient(a.creds, listener, a.logger)
			}
			return runChat(cmd.Context(), cmd.InOrStdin(), cmd.OutOrStdout(), newSession)
		},
	}
}

// runChat reads lines from in until EOF or /exit
func runChat(ctx context.Context, in io.Reader, out io.Writer, newSession sessionFactory) error {
	session := newSession(streamTo(out))
	defer session.Close()

	scanner := bufio.NewScanner(in)
	fmt.Fprint(out, prompt)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		switch line {
		case "":
		case "/exit", "/quit":
			return nil
		case "/clear":
			session.ClearConversation()
			fmt.Fprintln(out, "conversation cleared")
		case "/history":
			for _, turn := range session.Conversation() {
				fmt.Fprintf(out, "[%s] %s\n", turn.Role, turn.Content)
			}
		default:
			err := session.SendUserMessage(ctx, line)
			fmt.Fprintln(out)
			if err != nil {
				if errors.Is(err, spark.ErrCanceled) && ctx.Err() != nil {
					return nil
				}
				// keep the REPL alive on upstream failures
				fmt.Fprintf(out, "error: %v\n", err)
			}
		}

		fmt.Fprint(out, prompt)
	}
	return scanner.Err()
}
