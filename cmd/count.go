package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapmerge/internal/config"
	"firestige.xyz/pcapmerge/pkg/pcap"
)

var countFilter filterOptions

var countCmd = &cobra.Command{
	Use:   "count INPUT...",
	Short: "Count the packets of the merged inputs",
	Long: `Read every input through the merge and print how many packets were delivered.

Examples:
  pcapmerge count a.pcap b.pcap.gz
  pcapmerge count --udp-port 53 *.pcap.xz`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return runCount(cfg, countFilter, args, cmd.OutOrStdout())
	},
}

func init() {
	countFilter.register(countCmd)
}

func runCount(c *config.GlobalConfig, fo filterOptions, inputs []string, w io.Writer) error {
	s, err := openSource(c, fo, inputs)
	if err != nil {
		return err
	}
	defer s.Close()

	n := 0
	for s.Process(func(pcap.Packet) { n++ }) {
	}
	fmt.Fprintf(w, "Read %d packets\n", n)
	return nil
}
