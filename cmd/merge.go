package cmd

import (
	"fmt"
	"io"

	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/spf13/cobra"

	"firestige.xyz/pcapmerge/internal/config"
	"firestige.xyz/pcapmerge/internal/log"
	"firestige.xyz/pcapmerge/pkg/pcap"
)

type mergeOptions struct {
	output  string
	snapLen int
	nanos   bool
	filter  filterOptions
}

var mergeOpts mergeOptions

var mergeCmd = &cobra.Command{
	Use:   "merge -o OUTPUT INPUT...",
	Short: "Merge capture files into one capture ordered by timestamp",
	Long: `Merge capture files into a single pcap file ordered by packet timestamp.

Inputs ending in .gz or .xz are decompressed on the fly. The output is
compressed the same way when its name ends in .gz or .xz.

Examples:
  pcapmerge merge -o all.pcap a.pcap b.pcap.gz c.pcap.xz
  pcapmerge merge -o sip.pcap.gz --udp-port 5060 *.pcap
  pcapmerge merge -o small.pcap --snaplen 128 --nanos big.pcap`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := mergeOpts
		if !cmd.Flags().Changed("snaplen") {
			opts.snapLen = cfg.Output.SnapLen
		}
		if !cmd.Flags().Changed("nanos") {
			opts.nanos = cfg.Output.Nanosecond
		}
		return runMerge(cfg, opts, args, cmd.OutOrStdout())
	},
}

func init() {
	mergeCmd.Flags().StringVarP(&mergeOpts.output, "output", "o", "", "output capture file (required)")
	mergeCmd.Flags().IntVar(&mergeOpts.snapLen, "snaplen", config.MaxSnapLen, "truncate written packets to this many bytes")
	mergeCmd.Flags().BoolVar(&mergeOpts.nanos, "nanos", false, "write nanosecond timestamps")
	mergeOpts.filter.register(mergeCmd)
	mergeCmd.MarkFlagRequired("output")
}

func runMerge(c *config.GlobalConfig, opts mergeOptions, inputs []string, w io.Writer) error {
	if opts.snapLen <= 0 || opts.snapLen > config.MaxSnapLen {
		return fmt.Errorf("snaplen must be in 1..%d, got %d", config.MaxSnapLen, opts.snapLen)
	}

	s, err := openSource(c, opts.filter, inputs)
	if err != nil {
		return err
	}
	defer s.Close()
	if s.Readers() == 0 {
		return fmt.Errorf("none of the %d inputs is a readable capture file", len(inputs))
	}

	out, err := createOutput(opts.output, c.Input.ChunkSize)
	if err != nil {
		return err
	}

	n, err := writeMerged(out, s.Next, opts)
	if cerr := out.Close(); err == nil && cerr != nil {
		err = fmt.Errorf("failed to close output: %w", cerr)
	}
	if err != nil {
		return err
	}

	log.GetLogger().WithFields(map[string]interface{}{
		"output":  opts.output,
		"packets": n,
	}).Info("merge finished")
	fmt.Fprintf(w, "Wrote %d packets from %d files to %s\n", n, s.Readers(), opts.output)
	return nil
}

// writeMerged drains next into a pcap stream on w and returns the number of
// packets written.
func writeMerged(w io.Writer, next func() pcap.Packet, opts mergeOptions) (int, error) {
	var pw *pcapgo.Writer
	if opts.nanos {
		pw = pcapgo.NewWriterNanos(w)
	} else {
		pw = pcapgo.NewWriter(w)
	}
	if err := pw.WriteFileHeader(uint32(opts.snapLen), layers.LinkTypeEthernet); err != nil {
		return 0, fmt.Errorf("failed to write file header: %w", err)
	}

	n := 0
	for p := next(); p.Valid(); p = next() {
		ci := p.CaptureInfo()
		data := p.Data
		if len(data) > opts.snapLen {
			data = data[:opts.snapLen]
			ci.CaptureLength = opts.snapLen
		}
		if ci.Length < ci.CaptureLength {
			ci.Length = ci.CaptureLength
		}
		if err := pw.WritePacket(ci, data); err != nil {
			return n, fmt.Errorf("failed to write packet %d: %w", n+1, err)
		}
		n++
	}
	return n, nil
}
