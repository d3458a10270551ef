package cmds

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

// NewChatCommand builds the interactive chat command. With --query it runs a
// single turn and exits; without it, it reads questions from stdin until EOF
// or an exit keyword.
func NewChatCommand() *cobra.Command {
	var userID string
	var query string

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Chat with the memory-backed assistant",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			ctx := cmd.Context()
			bot, cleanup, err := buildBot(ctx, cfg, userID)
			if err != nil {
				return err
			}
			defer cleanup()

			if query != "" {
				answer, err := bot.Converse(ctx, userID, query)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
				return nil
			}

			scanner := bufio.NewScanner(os.Stdin)
			scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
			for {
				fmt.Fprint(cmd.OutOrStdout(), "> ")
				if !scanner.Scan() {
					break
				}
				line := strings.TrimSpace(scanner.Text())
				if line == "" {
					continue
				}
				if line == "exit" || line == "quit" {
					break
				}
				answer, err := bot.Converse(ctx, userID, line)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "error: %v\n", err)
					continue
				}
				fmt.Fprintln(cmd.OutOrStdout(), answer)
			}
			return scanner.Err()
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id owning the conversation")
	cmd.Flags().StringVar(&query, "query", "", "run a single turn instead of the interactive loop")
	return cmd
}
