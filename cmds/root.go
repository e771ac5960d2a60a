package cmds

import (
	"github.com/spf13/cobra"

	"homelab-epg/logging"
)

var (
	logLevel    string
	logFile     string
	logJSON     bool
	metricsFile string
)

func NewRootCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "homelab-epg",
		Short:         "Generate XMLTV guides for the San Diego over-the-air lineup.",
		SilenceUsage:  true,
		SilenceErrors: true,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return logging.Init(logging.Config{
				Level:    logLevel,
				FileName: logFile,
				JSON:     logJSON,
			})
		},
	}

	rootCmd.AddCommand(NewEPGShareCLI())
	rootCmd.AddCommand(NewGracenoteCLI())
	rootCmd.AddCommand(NewZap2itCLI())
	rootCmd.AddCommand(NewTVMazeCLI())
	rootCmd.AddCommand(NewOnTVTonightCLI())
	rootCmd.AddCommand(NewOTACLI())

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	flags.StringVar(&logFile, "log-file", "", "Also write logs to this file, rotated by size.")
	flags.BoolVar(&logJSON, "log-json", false, "Write logs as JSON.")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write run metrics to this node_exporter textfile after each run.")

	return rootCmd
}
