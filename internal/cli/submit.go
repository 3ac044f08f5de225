package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newSubmitCmd() *cobra.Command {
	var (
		group       string
		periodStart string
		minDayOff   int
		maxDayOff   int
		allowMAE    bool
		maxDiff     int
	)

	cmd := &cobra.Command{
		Use:   "submit",
		Short: "Submit a schedule generation job",
		Long:  "Submit a 28-day shift schedule job for a staff group. The period must start on a Monday that is not in the past.",
		RunE: func(cmd *cobra.Command, args []string) error {
			req := map[string]any{
				"group_id":     group,
				"period_start": periodStart,
			}

			// Only explicitly set flags become overrides; everything else
			// keeps the server-side defaults.
			constraints := map[string]any{}
			if cmd.Flags().Changed("min-day-off") {
				constraints["min_day_off_per_week"] = minDayOff
			}
			if cmd.Flags().Changed("max-day-off") {
				constraints["max_day_off_per_week"] = maxDayOff
			}
			if cmd.Flags().Changed("allow-morning-after-evening") {
				constraints["no_morning_after_evening"] = !allowMAE
			}
			if cmd.Flags().Changed("max-shift-diff") {
				constraints["max_daily_shift_diff"] = maxDiff
			}
			if len(constraints) > 0 {
				req["constraints"] = constraints
			}

			resp, err := client.Post("/api/schedules", req)
			if err != nil {
				return fmt.Errorf("submit schedule: %w", err)
			}

			if flagJSON {
				return printJSON(resp.Data)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}
			id, ok := data["id"].(string)
			if !ok {
				return fmt.Errorf("response missing 'id' field")
			}
			state, _ := data["state"].(string)
			fmt.Printf("Schedule job created: %s (state: %s)\n", id, state)
			fmt.Printf("Check progress with: goshift status %s\n", id)
			return nil
		},
	}

	cmd.Flags().StringVarP(&group, "group", "g", "", "Staff group ID (required)")
	cmd.Flags().StringVarP(&periodStart, "period-start", "p", "", "Period start date, YYYY-MM-DD, a Monday (required)")
	cmd.Flags().IntVar(&minDayOff, "min-day-off", 1, "Minimum days off per staff per week")
	cmd.Flags().IntVar(&maxDayOff, "max-day-off", 2, "Maximum days off per staff per week")
	cmd.Flags().BoolVar(&allowMAE, "allow-morning-after-evening", false, "Allow a morning shift right after an evening shift")
	cmd.Flags().IntVar(&maxDiff, "max-shift-diff", 1, "Maximum daily |morning - evening| headcount difference")
	cmd.MarkFlagRequired("group")
	cmd.MarkFlagRequired("period-start")
	return cmd
}
