package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windmill-labs/windmill-worker/pkg/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect or scaffold worker configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration path and worker name",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("config path: %s\n", config.GetConfigPath())
		fmt.Printf("worker name: %s\n", cfg.Worker.Name)
	},
}

var configInitCmd = &cobra.Command{
	Use:   "init [path]",
	Short: "Write an example configuration file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := config.WriteExample(args[0]); err != nil {
			return fmt.Errorf("writing example config: %w", err)
		}
		fmt.Printf("wrote example configuration to %s\n", args[0])
		return nil
	},
}

func init() {
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configInitCmd)
	rootCmd.AddCommand(configCmd)
}
