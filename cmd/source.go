package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"firestige.xyz/pcapmerge/internal/config"
	"firestige.xyz/pcapmerge/internal/filter"
	"firestige.xyz/pcapmerge/internal/log"
	"firestige.xyz/pcapmerge/pkg/bytesource"
	"firestige.xyz/pcapmerge/pkg/pcap"
	"firestige.xyz/pcapmerge/pkg/source"
)

// filterOptions are the packet selection flags shared by every command that
// reads captures.
type filterOptions struct {
	udpPort uint16
	bpfFile string
}

func (o *filterOptions) register(cmd *cobra.Command) {
	cmd.Flags().Uint16Var(&o.udpPort, "udp-port", 0,
		"only keep IPv4 UDP packets with this source or destination port")
	cmd.Flags().StringVar(&o.bpfFile, "bpf-file", "",
		"only keep packets accepted by a BPF program in tcpdump -ddd format")
}

func (o filterOptions) build() (filter.Filter, error) {
	chain := filter.NewChain()

	if o.udpPort != 0 {
		f, err := filter.UDPPort(o.udpPort)
		if err != nil {
			return nil, err
		}
		chain.Add(f)
	}

	if o.bpfFile != "" {
		fh, err := os.Open(o.bpfFile)
		if err != nil {
			return nil, fmt.Errorf("failed to open bpf file: %w", err)
		}
		defer fh.Close()

		raw, err := filter.ParseRaw(fh)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.bpfFile, err)
		}
		f, err := filter.NewBPFRaw(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", o.bpfFile, err)
		}
		chain.Add(f)
	}

	if chain.Len() == 0 {
		return nil, nil
	}
	return chain, nil
}

// openSource adds every input to a new packet source. Unreadable inputs are
// logged by the source and skipped.
func openSource(c *config.GlobalConfig, fo filterOptions, inputs []string) (*source.PacketSource, error) {
	flt, err := fo.build()
	if err != nil {
		return nil, err
	}

	opts := []source.Option{
		source.WithLogger(log.GetLogger()),
		source.WithReaderOptions(pcap.WithSourceOptions(bytesource.WithChunkSize(c.Input.ChunkSize))),
	}
	if flt != nil {
		opts = append(opts, source.WithFilter(flt))
	}

	s := source.New(opts...)
	for _, in := range inputs {
		s.AddFile(in)
	}
	log.GetLogger().WithFields(map[string]interface{}{
		"inputs":  len(inputs),
		"readers": s.Readers(),
	}).Debug("packet source ready")
	return s, nil
}
