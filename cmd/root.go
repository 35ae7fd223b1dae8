// Package cmd implements CLI commands using cobra framework.
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapmerge/internal/config"
	"firestige.xyz/pcapmerge/internal/log"
	"firestige.xyz/pcapmerge/internal/metrics"
)

var (
	// Global flags
	configFile      string
	logLevel        string
	metricsTextfile string

	// cfg is loaded once per invocation before any subcommand runs.
	cfg *config.GlobalConfig
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "pcapmerge",
	Short: "Merge pcap capture files in timestamp order",
	Long: `pcapmerge reads classic pcap capture files, optionally gzip or xz
compressed, and merges their packets into one stream ordered by timestamp.

Corrupt or truncated inputs are reported and dropped from the merge without
stopping the others.`,
	Version:            "0.1.0",
	SilenceUsage:       true,
	SilenceErrors:      true,
	PersistentPreRunE:  setup,
	PersistentPostRunE: flushMetrics,
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "",
		"config file path (defaults and PCAPMERGE_* environment when empty)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "",
		"override log level (trace/debug/info/warn/error)")
	rootCmd.PersistentFlags().StringVar(&metricsTextfile, "metrics-textfile", "",
		"write Prometheus counters to this file when the command finishes")

	rootCmd.AddCommand(mergeCmd)
	rootCmd.AddCommand(countCmd)
	rootCmd.AddCommand(inspectCmd)
	rootCmd.AddCommand(configCmd)
}

func setup(cmd *cobra.Command, args []string) error {
	c, err := config.Load(configFile)
	if err != nil {
		return err
	}
	if logLevel != "" {
		c.Log.Level = logLevel
		if err := c.ValidateAndApplyDefaults(); err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
	}
	if metricsTextfile != "" {
		c.Metrics.Textfile = metricsTextfile
	}

	if err := log.Init(c.Log); err != nil {
		return fmt.Errorf("failed to init logger: %w", err)
	}
	cfg = c
	return nil
}

func flushMetrics(cmd *cobra.Command, args []string) error {
	if cfg == nil || cfg.Metrics.Textfile == "" {
		return nil
	}
	return metrics.WriteTextfile(cfg.Metrics.Textfile)
}
