package command

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/windmill-labs/windmill-worker/internal/queue"
	"github.com/windmill-labs/windmill-worker/terminal/input"
	"github.com/windmill-labs/windmill-worker/terminal/ui"
)

var jobsCmd = &cobra.Command{
	Use:   "jobs",
	Short: "Inspect and manage queued jobs",
}

var jobsGetCmd = &cobra.Command{
	Use:   "get [job-id]",
	Short: "Show one queue row",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		q, err := queue.NewPostgresClient(cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to queue database: %w", err)
		}
		defer q.Close()

		job, err := q.Get(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("fetching job: %w", err)
		}

		table := ui.NewTable().
			SetTitle("Job " + job.ID).
			AddColumn("Field", "field").
			AddColumn("Value", "value")
		table.AddRows([]map[string]interface{}{
			{"field": "job_kind", "value": string(job.JobKind)},
			{"field": "running", "value": job.Running},
			{"field": "worker", "value": derefStr(job.Worker)},
			{"field": "canceled", "value": job.Canceled},
			{"field": "tag", "value": job.Tag},
		})
		table.Render()
		return nil
	},
}

var jobsCancelCmd = &cobra.Command{
	Use:   "cancel [job-id]",
	Short: "Mark a running job canceled (the supervisor observes this on its next poll)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		force, _ := cmd.Flags().GetBool("force")
		if !force {
			confirmed, err := input.ConfirmCancelJob(args[0])
			if err != nil {
				return err
			}
			if !confirmed {
				fmt.Println("aborted")
				return nil
			}
		}

		q, err := queue.NewPostgresClient(cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to queue database: %w", err)
		}
		defer q.Close()

		reason, _ := cmd.Flags().GetString("reason")
		if err := q.Cancel(cmd.Context(), args[0], reason, "cli"); err != nil {
			return fmt.Errorf("canceling job: %w", err)
		}
		fmt.Printf("job %s marked canceled\n", args[0])
		return nil
	},
}

var jobsZombiesCmd = &cobra.Command{
	Use:   "zombies [max-age]",
	Short: "List running jobs whose last ping predates max-age (default 1m)",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		maxAge := time.Minute
		if len(args) == 1 {
			parsed, err := time.ParseDuration(args[0])
			if err != nil {
				return fmt.Errorf("parsing max-age: %w", err)
			}
			maxAge = parsed
		}

		q, err := queue.NewPostgresClient(cfg.Database)
		if err != nil {
			return fmt.Errorf("connecting to queue database: %w", err)
		}
		defer q.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()

		zombies, err := q.ListZombies(ctx, time.Now().Add(-maxAge))
		if err != nil {
			return fmt.Errorf("listing zombies: %w", err)
		}

		table := ui.NewTable().
			SetTitle("Stale Running Jobs").
			AddColumn("ID", "id").
			AddColumn("Worker", "worker").
			AddColumn("Same Worker", "same_worker").
			AddColumn("Job Kind", "job_kind")
		for _, job := range zombies {
			table.AddRow(map[string]interface{}{
				"id":          job.ID,
				"worker":      derefStr(job.Worker),
				"same_worker": job.SameWorker,
				"job_kind":    string(job.JobKind),
			})
		}
		table.Render()
		return nil
	},
}

func init() {
	jobsCancelCmd.Flags().Bool("force", false, "Skip the interactive confirmation")
	jobsCancelCmd.Flags().String("reason", "canceled via CLI", "Reason recorded on the queue row")

	jobsCmd.AddCommand(jobsGetCmd)
	jobsCmd.AddCommand(jobsCancelCmd)
	jobsCmd.AddCommand(jobsZombiesCmd)
}

func derefStr(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
