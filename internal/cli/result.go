package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/me/goshift/pkg/model"
	"github.com/spf13/cobra"
)

func newResultCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "result <job_id>",
		Short: "Fetch the generated schedule for a completed job",
		Long:  "Fetch the shift assignments of a COMPLETED job. Exits non-zero while the job is still queued or running, so the command can be polled.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id := args[0]

			resp, err := client.Get("/api/schedules/" + id + "/assignments")
			if err != nil {
				var apiErr *model.APIError
				if errors.As(err, &apiErr) {
					switch apiErr.Code {
					case model.ErrNotReady:
						return fmt.Errorf("not ready: %s", apiErr.Message)
					case model.ErrJobFailed:
						return fmt.Errorf("job failed: %s", apiErr.Message)
					}
				}
				return fmt.Errorf("get schedule result: %w", err)
			}

			if flagJSON {
				return printJSON(resp.Data)
			}

			var assignments []model.ShiftAssignment
			if err := json.Unmarshal(resp.Data, &assignments); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			fmt.Printf("%-12s  %-20s  %s\n", "DATE", "STAFF", "SHIFT")
			fmt.Printf("%-12s  %-20s  %s\n", "----", "-----", "-----")
			for _, a := range assignments {
				fmt.Printf("%-12s  %-20s  %s\n", a.Date.Format(model.DateOnly), a.StaffID, a.Shift)
			}
			fmt.Printf("\n%d assignments\n", len(assignments))
			return nil
		},
	}
}
