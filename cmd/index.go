package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/progress"
	"github.com/ziadkadry99/clove/internal/registry"
)

var indexCmd = &cobra.Command{
	Use:   "index <path-or-url>",
	Short: "Index a local directory or clone and index a git repository",
	Long: `Walks, chunks and embeds every eligible source file and stores the vectors.
A local directory is indexed in place; anything else is treated as a git URL
and shallow-cloned first. Re-indexing a repository replaces its previous points.`,
	Args: cobra.ExactArgs(1),
	RunE: runIndex,
}

func init() {
	indexCmd.Flags().String("branch", "", "branch to clone (default main)")
	indexCmd.Flags().String("id", "", "repository id (default: derived from the directory name, or generated for URLs)")
	indexCmd.Flags().String("url", "", "source URL to record for a local directory")
	indexCmd.Flags().String("description", "", "repository description used by documentation chat")
	rootCmd.AddCommand(indexCmd)
}

func runIndex(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	target := args[0]
	branch, _ := cmd.Flags().GetString("branch")
	id, _ := cmd.Flags().GetString("id")
	url, _ := cmd.Flags().GetString("url")
	description, _ := cmd.Flags().GetString("description")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	reporter := progress.NewReporter(os.Stderr)
	a.svc.SetProgressFunc(progress.Func(reporter))

	var repo *registry.Repository
	if info, statErr := os.Stat(target); statErr == nil && info.IsDir() {
		if id == "" {
			id = repoIDFromPath(target)
		}
		repo, err = a.ix.Register(ctx, registry.RegisterRequest{ID: id, URL: url, Branch: branch, Description: description})
		if err != nil {
			return err
		}
		repo, err = a.ix.IndexPath(ctx, repo.ID, target)
	} else {
		repo, err = a.ix.Register(ctx, registry.RegisterRequest{ID: id, URL: target, Branch: branch, Description: description})
		if err != nil {
			return err
		}
		repo, err = a.ix.Index(ctx, repo.ID)
	}
	reporter.Finish()
	if err != nil {
		return fmt.Errorf("indexing %s failed: %w", target, err)
	}

	fmt.Printf("Indexed %s: %d files, %d chunks\n", repo.ID, repo.FilesIndexed, repo.ChunksIndexed)
	if repo.ChunksIndexed == 0 {
		fmt.Println("No indexable content found.")
	}
	return nil
}
