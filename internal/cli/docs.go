package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"whatsapp-agent/backend/internal/docstore"
	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/logger"
)

func newDocsCommand(cfg *config.Config, log *logger.Logger) *cobra.Command {
	var storePath string
	docs := &cobra.Command{
		Use:   "docs",
		Short: "Manage the knowledge base used for reply drafting",
	}
	docs.PersistentFlags().StringVar(&storePath, "store", cfg.Docs.StorePath, "document store path")

	open := func() (*docstore.Store, error) {
		return docstore.Open(storePath, nil, log)
	}

	docs.AddCommand(&cobra.Command{
		Use:   "load <path>...",
		Short: "Chunk and index files or directories (.txt, .md, .docx)",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			total := 0
			for _, path := range args {
				loaded, err := loadPath(path)
				if err != nil {
					return err
				}
				n, err := store.Add(cmd.Context(), loaded)
				if err != nil {
					return fmt.Errorf("index %s: %w", path, err)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %d chunks\n", path, n)
				total += n
			}
			count, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "added %d chunks, %d indexed\n", total, count)
			return nil
		},
	})

	docs.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove every indexed chunk",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			if err := store.Clear(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "document store cleared")
			return nil
		},
	})

	var k int
	search := &cobra.Command{
		Use:   "search <query>",
		Short: "Show the chunks most relevant to a query",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := open()
			if err != nil {
				return err
			}
			defer store.Close()

			results, err := store.Search(cmd.Context(), args[0], k)
			if err != nil {
				return err
			}
			if len(results) == 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "no matches")
				return nil
			}
			for i, r := range results {
				fmt.Fprintf(cmd.OutOrStdout(), "%d. [%.3f] %s#%d\n   %s\n", i+1, r.Score, r.Source, r.ChunkIndex, r.Text)
			}
			return nil
		},
	}
	search.Flags().IntVarP(&k, "k", "k", docstore.DefaultK, "number of results")
	docs.AddCommand(search)

	return docs
}

func loadPath(path string) ([]docstore.Document, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if info.IsDir() {
		return docstore.LoadDir(path)
	}
	return docstore.LoadFile(path)
}
