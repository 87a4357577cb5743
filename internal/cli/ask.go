package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/satriahrh/sparkchat/adapters/spark"
)

func newAskCommand(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <message...>",
		Short: "Ask a single question and stream the answer",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			message := strings.Join(args, " ")

			_, err := spark.ChatOnce(cmd.Context(), a.creds, message, streamTo(out), a.logger)
			if err != nil {
				return err
			}
			fmt.Fprintln(out)
			return nil
		},
	}
}

// streamTo prints every fragment as it arrives
func streamTo(out io.Writer) spark.Listener {
	return spark.ListenerFuncs{
		Message: func(fragment string, _ *spark.Response) {
			fmt.Fprint(out, fragment)
		},
	}
}
