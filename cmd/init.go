package cmd

import (
	"github.com/spf13/cobra"

	"github.com/ziadkadry99/clove/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize clove configuration with an interactive wizard",
	Long:  `Runs an interactive wizard to choose embedding, LLM and vector store settings and writes them to .clove.yml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		_, err := config.RunWizard(cfgFile)
		return err
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}
