package cmd

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/assistant"
)

var askCmd = &cobra.Command{
	Use:   "ask <task> <repo-id>",
	Short: "Ask the LLM about a repository using retrieved code as context",
	Long: `Tasks:
  analyze-issue       summarize an issue and point at the files to change (--title, --body)
  suggest-solution    step-by-step fix for an issue (--title, --body)
  documentation-chat  answer a question about the repository (--question)`,
	Args: cobra.ExactArgs(2),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().String("title", "", "issue title")
	askCmd.Flags().String("body", "", "issue description")
	askCmd.Flags().StringP("question", "q", "", "question for documentation-chat")
	askCmd.Flags().Bool("sources", false, "list the sources that were retrieved")
	askCmd.Flags().Bool("json", false, "output the full answer as JSON")
	rootCmd.AddCommand(askCmd)
}

func runAsk(cmd *cobra.Command, args []string) error {
	task, err := assistant.ParseTask(args[0])
	if err != nil {
		return err
	}
	title, _ := cmd.Flags().GetString("title")
	body, _ := cmd.Flags().GetString("body")
	question, _ := cmd.Flags().GetString("question")
	showSources, _ := cmd.Flags().GetBool("sources")
	jsonOutput, _ := cmd.Flags().GetBool("json")

	a, err := openApp()
	if err != nil {
		return err
	}
	defer a.Close()

	asst, err := a.createAssistant()
	if err != nil {
		return err
	}

	answer, err := asst.Ask(context.Background(), assistant.Request{
		Task:         task,
		RepositoryID: args[1],
		Title:        title,
		Body:         body,
		Question:     question,
	})
	if err != nil {
		return err
	}

	if jsonOutput {
		return writeJSON(answer)
	}

	fmt.Println(strings.TrimSpace(answer.Content))
	if showSources {
		fmt.Println()
		printSources(answer.Sources)
	}
	fmt.Fprintf(os.Stderr, "\n%s: %d sources in context, %d in / %d out tokens, ~$%.4f\n",
		answer.Model, answer.Context.IncludedSources, answer.InputTokens, answer.OutputTokens, answer.Cost)
	return nil
}
