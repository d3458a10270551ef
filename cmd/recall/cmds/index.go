package cmds

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/go-go-golems/recall/pkg/knowledge"
)

// NewIndexCommand groups maintenance operations on a user's knowledge index.
func NewIndexCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "index",
		Short: "Inspect and maintain per-user knowledge indexes",
	}
	cmd.AddCommand(newIndexUpsertCommand())
	cmd.AddCommand(newIndexQueryCommand())
	return cmd
}

func newIndexUpsertCommand() *cobra.Command {
	var userID string
	var text string
	var dir string

	cmd := &cobra.Command{
		Use:   "upsert",
		Short: "Add a document or a directory of .txt/.md files to a user's index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if text == "" && dir == "" {
				return errors.New("one of --text or --dir is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			idx, err := knowledge.Open(knowledge.UserIndexPath(cfg.Knowledge.RootPath, userID))
			if err != nil {
				return err
			}
			defer func() { _ = idx.Close() }()

			ctx := cmd.Context()
			if text != "" {
				if err := idx.Upsert(ctx, knowledge.Document{Text: text}); err != nil {
					return err
				}
			}
			if dir != "" {
				indexed, err := idx.IndexDirectory(ctx, dir)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "indexed %d documents from %s\n", indexed, dir)
			}
			count, err := idx.DocCount()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "index now holds %d documents\n", count)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id owning the index")
	cmd.Flags().StringVar(&text, "text", "", "document text to index")
	cmd.Flags().StringVar(&dir, "dir", "", "directory of .txt/.md files to index")
	return cmd
}

func newIndexQueryCommand() *cobra.Command {
	var userID string
	var query string
	var topK int
	var cutoff float64

	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run a relevance query against a user's index",
		RunE: func(cmd *cobra.Command, args []string) error {
			if userID == "" {
				return errors.New("--user is required")
			}
			if query == "" {
				return errors.New("--query is required")
			}
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("top-k") {
				topK = cfg.TopK
			}
			if !cmd.Flags().Changed("cutoff") {
				cutoff = cfg.SimilarityCutoff
			}

			idx, err := knowledge.Open(knowledge.UserIndexPath(cfg.Knowledge.RootPath, userID))
			if err != nil {
				return err
			}
			defer func() { _ = idx.Close() }()

			snippets, err := idx.Retrieve(cmd.Context(), query, topK, cutoff)
			if err != nil {
				return err
			}
			if len(snippets) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches above cutoff")
				return nil
			}
			for _, s := range snippets {
				fmt.Fprintf(cmd.OutOrStdout(), "%.4f  %s  %s\n", s.Score, s.ID, s.Text)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "user id owning the index")
	cmd.Flags().StringVar(&query, "query", "", "query text")
	cmd.Flags().IntVar(&topK, "top-k", 0, "maximum number of results (defaults to config)")
	cmd.Flags().Float64Var(&cutoff, "cutoff", 0, "minimum relevance score (defaults to config)")
	return cmd
}
