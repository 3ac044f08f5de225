package cli

import (
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
)

func newListCmd() *cobra.Command {
	var (
		state  string
		limit  int
		offset int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List schedule jobs",
		RunE: func(cmd *cobra.Command, args []string) error {
			path := "/api/schedules?limit=" + strconv.Itoa(limit) + "&offset=" + strconv.Itoa(offset)
			if state != "" {
				path += "&state=" + state
			}

			resp, err := client.Get(path)
			if err != nil {
				return fmt.Errorf("list schedules: %w", err)
			}

			if flagJSON {
				return printJSON(resp.Data)
			}

			var data []map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			if len(data) == 0 {
				fmt.Println("No schedule jobs found.")
				return nil
			}

			fmt.Printf("%-42s  %-12s  %-12s  %-12s  %s\n", "ID", "STATE", "GROUP", "PERIOD", "CREATED")
			fmt.Printf("%-42s  %-12s  %-12s  %-12s  %s\n", "----", "-----", "-----", "------", "-------")
			for _, job := range data {
				id, _ := job["id"].(string)
				jobState, _ := job["state"].(string)
				group, _ := job["group_id"].(string)
				period, _ := job["period_start"].(string)
				if len(period) >= 10 {
					period = period[:10]
				}
				createdAt, _ := job["created_at"].(string)
				fmt.Printf("%-42s  %-12s  %-12s  %-12s  %s\n", id, jobState, group, period, createdAt)
			}

			if resp.Pagination != nil && resp.Pagination.HasMore {
				fmt.Printf("\n(%d of %d shown)\n", len(data), resp.Pagination.Total)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&state, "state", "", "Filter by state (PENDING, PROCESSING, COMPLETED, FAILED)")
	cmd.Flags().IntVar(&limit, "limit", 20, "Maximum jobs to return")
	cmd.Flags().IntVar(&offset, "offset", 0, "Offset into the result set")
	return cmd
}
