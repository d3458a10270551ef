package cmds

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/recall/pkg/tokens"
)

// NewTokensCommand groups token inspection helpers, useful for sizing prompts
// against a model's window.
func NewTokensCommand() *cobra.Command {
	var encoding string

	cmd := &cobra.Command{
		Use:   "tokens",
		Short: "Count, encode and decode tokens",
	}
	cmd.PersistentFlags().StringVar(&encoding, "encoding", tokens.DefaultEncoding, "tokenizer encoding")

	count := &cobra.Command{
		Use:   "count [text]",
		Short: "Count tokens in text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := tokens.NewCounter(encoding)
			if err != nil {
				return err
			}
			n, err := counter.Count(args[0])
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}

	encode := &cobra.Command{
		Use:   "encode [text]",
		Short: "Encode text into token ids",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := tokens.NewCounter(encoding)
			if err != nil {
				return err
			}
			ids, err := counter.Encode(args[0])
			if err != nil {
				return err
			}
			parts := make([]string, 0, len(ids))
			for _, id := range ids {
				parts = append(parts, strconv.FormatUint(uint64(id), 10))
			}
			fmt.Fprintln(cmd.OutOrStdout(), strings.Join(parts, " "))
			return nil
		},
	}

	decode := &cobra.Command{
		Use:   "decode [id...]",
		Short: "Decode token ids back into text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			counter, err := tokens.NewCounter(encoding)
			if err != nil {
				return err
			}
			ids := make([]uint, 0, len(args))
			for _, arg := range args {
				id, err := strconv.ParseUint(arg, 10, 64)
				if err != nil {
					return errors.Wrapf(err, "invalid token id %q", arg)
				}
				ids = append(ids, uint(id))
			}
			text, err := counter.Decode(ids)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.AddCommand(count, encode, decode)
	return cmd
}
