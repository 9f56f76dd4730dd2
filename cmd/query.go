package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/contextbuilder"
	"github.com/ziadkadry99/clove/internal/rag"
	"github.com/ziadkadry99/clove/internal/vectorstore"
)

var queryCmd = &cobra.Command{
	Use:   "query <repo-id> <question>",
	Short: "Semantically search an indexed repository",
	Long:  `Embeds the question, searches the repository's chunks and prints the best matching sources.`,
	Args:  cobra.ExactArgs(2),
	RunE:  runQuery,
}

func init() {
	queryCmd.Flags().Int("limit", vectorstore.DefaultLimit, "maximum number of results (clamped to 3..15)")
	queryCmd.Flags().Float64("threshold", 0, "minimum similarity score (0 keeps everything)")
	queryCmd.Flags().Int("max-tokens", 0, "keep only the leading sources that fit in this many tokens")
	queryCmd.Flags().String("file", "", "only search chunks of this file")
	queryCmd.Flags().String("type", "", "only search chunks of this type (code or module)")
	queryCmd.Flags().Bool("context", false, "print the packed prompt context instead of the sources")
	queryCmd.Flags().String("model", "", "model whose budget sizes --context (default llm.model)")
	queryCmd.Flags().Bool("json", false, "output results as JSON")
	rootCmd.AddCommand(queryCmd)
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	limit, _ := cmd.Flags().GetInt("limit")
	maxTokens, _ := cmd.Flags().GetInt("max-tokens")
	filePath, _ := cmd.Flags().GetString("file")
	fileType, _ := cmd.Flags().GetString("type")
	asContext, _ := cmd.Flags().GetBool("context")
	model, _ := cmd.Flags().GetString("model")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	req := rag.QueryRequest{
		Query:        args[1],
		RepositoryID: args[0],
		Limit:        limit,
		MaxTokens:    maxTokens,
		FilePath:     filePath,
		Type:         fileType,
	}
	if cmd.Flags().Changed("threshold") {
		threshold, _ := cmd.Flags().GetFloat64("threshold")
		req.ScoreThreshold = vectorstore.Threshold(threshold)
	}

	sources, err := a.ix.Query(ctx, req)
	if err != nil {
		return err
	}

	if asContext {
		if model == "" {
			model = a.cfg.LLM.Model
		}
		res := a.svc.BuildContext(sources, contextbuilder.Options{
			Model:                 model,
			PromptTemplate:        "{{.context}}",
			ReservedForCompletion: a.cfg.LLM.ReservedForCompletion,
		})
		if jsonOutput {
			return writeJSON(res)
		}
		fmt.Fprintf(os.Stderr, "Included %d of %d sources, ~%d tokens (truncated=%t)\n",
			res.IncludedSources, len(sources), res.TotalTokens, res.Truncated)
		fmt.Println(res.Context)
		return nil
	}

	if jsonOutput {
		return writeJSON(sources)
	}
	if len(sources) == 0 {
		fmt.Println("No results found.")
		return nil
	}
	printSources(sources)
	return nil
}

func printSources(sources []rag.Source) {
	fmt.Printf("Found %d results:\n\n", len(sources))
	for i, s := range sources {
		r := vectorstore.SearchResult{Score: s.Score, Text: s.Content, Metadata: s.Metadata}
		fmt.Printf("  %d. [%.1f%%] %s\n", i+1, s.Score*100, r.Location())
		if lang := vectorstore.MetaString(s.Metadata, vectorstore.KeyLanguage); lang != "" {
			fmt.Printf("     Language: %s\n", lang)
		}
		fmt.Printf("     %s\n\n", truncate(s.Content, 120))
	}
}

func writeJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
