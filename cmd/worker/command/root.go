package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windmill-labs/windmill-worker/pkg/config"
	"github.com/windmill-labs/windmill-worker/pkg/logger"
)

var (
	cfg     *config.Config
	log     logger.Logger
	output  string
)

var rootCmd = &cobra.Command{
	Use:     "windmill-worker",
	Short:   "windmill-worker runs durable queue jobs and flows for a Windmill-compatible job-execution platform.",
	Version: "0.1.0",
}

// Execute runs the CLI with an already-loaded config and logger.
func Execute(c *config.Config, l logger.Logger) error {
	cfg = c
	log = l
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&output, "output", "o", "text", "Output format (text, json, yaml)")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(statusCmd)
	rootCmd.AddCommand(jobsCmd)
	rootCmd.AddCommand(versionCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("windmill-worker v%s\n", rootCmd.Version)
		fmt.Printf("Worker name: %s\n", cfg.Worker.Name)
	},
}
