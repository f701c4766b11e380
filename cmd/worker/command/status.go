package command

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/terminal/ui"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the worker's configured connections and poll settings",
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queue.NewPostgresClient(cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to queue database: %w", err)
		}
		defer q.Close()

		table := ui.NewTable().
			SetTitle("Worker Status").
			AddColumn("Field", "field").
			AddColumn("Value", "value")

		table.AddRows([]map[string]interface{}{
			{"field": "name", "value": cfg.Worker.Name},
			{"field": "base_url", "value": cfg.Worker.BaseURL},
			{"field": "job_dir_root", "value": cfg.Worker.JobDirRoot},
			{"field": "poll_interval", "value": cfg.Worker.PollInterval.String()},
			{"field": "ping_interval", "value": cfg.Worker.PingInterval.String()},
			{"field": "zombie_check_interval", "value": cfg.Worker.ZombieCheckInterval.String()},
			{"field": "database", "value": fmt.Sprintf("%s:%d/%s", cfg.Database.Host, cfg.Database.Port, cfg.Database.Database)},
		})
		table.Render()
		return nil
	},
}
