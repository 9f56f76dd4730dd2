package cmd

import (
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/config"
	"github.com/ziadkadry99/clove/internal/ragerr"
)

var (
	cfgFile string
	envFile string
	verbose bool

	// logger writes to stderr; stdout carries results and MCP traffic.
	logger = zerolog.Nop()
)

var rootCmd = &cobra.Command{
	Use:   "clove",
	Short: "Retrieval-augmented answers about source repositories",
	Long: `Clove indexes a repository's source files into a vector store and
retrieves the most relevant code for a question, packed into a prompt
context that fits a model's token budget. It can answer questions and
analyze issues itself, or serve retrieval to other tools over HTTP and MCP.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		level := zerolog.InfoLevel
		if verbose {
			level = zerolog.DebugLevel
		}
		logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).
			Level(level).
			With().Timestamp().Logger()
		return config.LoadDotEnv(envFile)
	},
}

func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		printError(err)
	}
	return err
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", config.ConfigFile, "config file path")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the config")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
}

// printError reports err on one line, naming the pipeline stage when known.
func printError(err error) {
	if stage := ragerr.StageOf(err); stage != "" {
		fmt.Fprintf(os.Stderr, "Error (%s): %v\n", stage, err)
		return
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
}
