package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status <job_id>",
		Short: "Check the status of a schedule job",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/schedules/" + id)
			if err != nil {
				return fmt.Errorf("get schedule: %w", err)
			}

			if flagJSON {
				return printJSON(resp.Data)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			state, _ := data["state"].(string)
			group, _ := data["group_id"].(string)

			fmt.Printf("Job: %s\n", id)
			fmt.Printf("  Group:   %s\n", group)
			if period, ok := data["period_start"].(string); ok && len(period) >= 10 {
				fmt.Printf("  Period:  %s (28 days)\n", period[:10])
			}
			fmt.Printf("  State:   %s\n", state)
			if reason, ok := data["reason"].(string); ok && reason != "" {
				fmt.Printf("  Reason:  %s\n", reason)
			}
			if createdAt, ok := data["created_at"].(string); ok {
				fmt.Printf("  Created: %s\n", createdAt)
			}
			if finishedAt, ok := data["finished_at"].(string); ok && finishedAt != "" {
				fmt.Printf("  Finished: %s\n", finishedAt)
			}
			return nil
		},
	}
}
