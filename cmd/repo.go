package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var repoCmd = &cobra.Command{
	Use:   "repo",
	Short: "Manage indexed repositories",
}

var repoListCmd = &cobra.Command{
	Use:   "list",
	Short: "List all registered repositories",
	RunE:  runRepoList,
}

var repoDeleteCmd = &cobra.Command{
	Use:     "delete <id>",
	Aliases: []string{"remove"},
	Short:   "Delete a repository and its indexed points",
	Args:    cobra.ExactArgs(1),
	RunE:    runRepoDelete,
}

func init() {
	repoListCmd.Flags().Bool("json", false, "output as JSON")
	repoCmd.AddCommand(repoListCmd)
	repoCmd.AddCommand(repoDeleteCmd)
	rootCmd.AddCommand(repoCmd)
}

func runRepoList(cmd *cobra.Command, args []string) error {
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	repos, err := a.ix.Store().List(context.Background())
	if err != nil {
		return fmt.Errorf("listing repositories: %w", err)
	}
	if jsonOutput {
		return writeJSON(repos)
	}

	if len(repos) == 0 {
		fmt.Println("No repositories registered. Use `clove index <path-or-url>` to add one.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tSTATUS\tFILES\tCHUNKS\tLAST INDEXED\tSOURCE")
	for _, r := range repos {
		lastIndexed := "-"
		if r.IndexedAt != nil {
			lastIndexed = r.IndexedAt.Local().Format("2006-01-02 15:04")
		}
		name := r.Name
		if r.Owner != "" {
			name = r.Owner + "/" + r.Name
		}
		source := r.URL
		if source == "" {
			source = "-"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%d\t%s\t%s\n",
			r.ID, name, r.Status, r.FilesIndexed, r.ChunksIndexed, lastIndexed, source)
		if r.Error != "" {
			fmt.Fprintf(w, "\t  error: %s\t\t\t\t\t\n", truncate(r.Error, 100))
		}
	}
	return w.Flush()
}

func runRepoDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	if err := a.ix.Delete(context.Background(), args[0]); err != nil {
		return err
	}
	fmt.Printf("Deleted repository %s\n", args[0])
	return nil
}
