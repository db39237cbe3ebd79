package main

import (
	"log"

	"github.com/spf13/cobra"

	"ports/internal/config"
	"ports/internal/logging"
)

var (
	configPath  string
	logLevel    string
	logFormat   string
	metricsFile string
)

var rootCmd = &cobra.Command{
	Use:   "ports [query]",
	Short: "ports: what is listening, and why",
	Long: `ports lists listening sockets with the process that owns them, and explains
where each process came from: systemd, launchd, a container, cron, a shell.`,
	Args:              cobra.MaximumNArgs(1),
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: setup,
	RunE:              runList,
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "Path to YAML config file")
	flags.StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	flags.StringVar(&logFormat, "log-format", "", "Log format: text or json")
	flags.StringVar(&metricsFile, "metrics-file", "", "Write prometheus metrics to this file on exit")
	registerListFlags(rootCmd)
}

// setup loads configuration once for whichever command runs.
func setup(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if logLevel != "" {
		cfg.Logging.Level = logLevel
	}
	if logFormat != "" {
		cfg.Logging.Format = logFormat
	}
	if err := logging.Setup(cfg.Logging); err != nil {
		return err
	}
	loadedConfig = cfg
	return nil
}

func main() {
	err := rootCmd.Execute()
	if mErr := writeMetrics(); mErr != nil {
		log.Printf("write metrics: %v", mErr)
	}
	logging.Close()
	if err != nil {
		log.Fatal(err)
	}
}
