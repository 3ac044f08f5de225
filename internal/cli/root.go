package cli

import (
	"log/slog"
	"os"

	"github.com/me/goshift/internal/logging"
	"github.com/spf13/cobra"
)

var (
	flagServer    string
	flagDebug     bool
	flagJSON      bool
	flagLogLevel  string
	flagLogFormat string

	logger *slog.Logger
	client *Client
)

// defaultServer returns the default server URL, checking GOSHIFT_SERVER env var first.
func defaultServer() string {
	if s := os.Getenv("GOSHIFT_SERVER"); s != "" {
		return s
	}
	return "http://localhost:8080"
}

// NewRootCmd creates the root cobra command for the goshift CLI.
func NewRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   "goshift",
		Short: "goshift — staff shift schedule generation",
		Long:  "goshift submits and monitors asynchronous 28-day shift schedule jobs.",
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if flagDebug {
				flagLogLevel = "debug"
			}
			logger = logging.NewLogger(logging.ParseLevel(flagLogLevel), flagLogFormat)
			client = NewClient(flagServer, logger)
		},
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&flagServer, "server", defaultServer(), "goshift server URL (or GOSHIFT_SERVER env)")
	root.PersistentFlags().BoolVar(&flagDebug, "debug", false, "Enable debug logging")
	root.PersistentFlags().BoolVar(&flagJSON, "json", false, "Print raw JSON responses")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "info", "Log level (debug, info, warn, error)")
	root.PersistentFlags().StringVar(&flagLogFormat, "log-format", "text", "Log format (text, json, console)")

	root.AddCommand(
		newSubmitCmd(),
		newStatusCmd(),
		newResultCmd(),
		newListCmd(),
		newHealthCmd(),
	)

	return root
}
