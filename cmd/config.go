package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapmerge/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Print the effective configuration as YAML",
	Long: `Print the configuration after defaults, the config file and PCAPMERGE_*
environment overrides have been applied.

Examples:
  pcapmerge config
  pcapmerge -c pcapmerge.yml config
  PCAPMERGE_LOG_LEVEL=debug pcapmerge config`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runConfig(cfg, cmd.OutOrStdout())
	},
}

func runConfig(c *config.GlobalConfig, w io.Writer) error {
	out, err := yaml.Marshal(map[string]*config.GlobalConfig{"pcapmerge": c})
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	_, err = w.Write(out)
	return err
}
