package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"
)

func newHealthCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Check server health",
		RunE: func(cmd *cobra.Command, args []string) error {
			resp, err := client.Get("/api/health")
			if err != nil {
				return fmt.Errorf("health check: %w", err)
			}

			if flagJSON {
				return printJSON(resp.Data)
			}

			var data map[string]any
			if err := json.Unmarshal(resp.Data, &data); err != nil {
				return fmt.Errorf("parse response: %w", err)
			}

			status, _ := data["status"].(string)
			fmt.Printf("Server:     %s\n", flagServer)
			fmt.Printf("Status:     %s\n", status)
			if version, ok := data["version"].(string); ok {
				fmt.Printf("Version:    %s\n", version)
			}
			if uptime, ok := data["uptime"].(string); ok {
				fmt.Printf("Uptime:     %s\n", uptime)
			}
			if st, ok := data["store"].(string); ok {
				fmt.Printf("Store:      %s\n", st)
			}
			if disp, ok := data["dispatcher"].(string); ok {
				fmt.Printf("Dispatcher: %s\n", disp)
			}
			if ros, ok := data["roster"].(string); ok && ros != "" {
				fmt.Printf("Roster:     %s\n", ros)
			}
			return nil
		},
	}
}
