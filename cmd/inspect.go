package cmd

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"firestige.xyz/pcapmerge/internal/config"
	"firestige.xyz/pcapmerge/pkg/pcap"
	"firestige.xyz/pcapmerge/pkg/pdu"
)

type inspectOptions struct {
	format string
	limit  int
	filter filterOptions
}

var inspectOpts inspectOptions

var inspectCmd = &cobra.Command{
	Use:   "inspect INPUT...",
	Short: "Print a per-packet Ethernet/IPv4/UDP summary of the merged inputs",
	Long: `Decode the Ethernet, 802.1Q, IPv4 and UDP headers of every merged packet
and print one summary per packet. A packet whose headers are cut short is
reported with its error and the listing continues.

Examples:
  pcapmerge inspect a.pcap b.pcap
  pcapmerge inspect --format yaml -n 10 capture.pcap.gz`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		opts := inspectOpts
		if !cmd.Flags().Changed("format") {
			opts.format = cfg.Output.Format
		}
		return runInspect(cfg, opts, args, cmd.OutOrStdout())
	},
}

func init() {
	inspectCmd.Flags().StringVar(&inspectOpts.format, "format", "text", "output format (text/yaml)")
	inspectCmd.Flags().IntVarP(&inspectOpts.limit, "limit", "n", 0, "stop after this many packets (0 = all)")
	inspectOpts.filter.register(inspectCmd)
}

type packetSummary struct {
	Index     int              `yaml:"index"`
	Timestamp string           `yaml:"timestamp"`
	CapLen    uint32           `yaml:"caplen"`
	Len       uint32           `yaml:"len"`
	Ethernet  *ethernetSummary `yaml:"ethernet,omitempty"`
	VLAN      *vlanSummary     `yaml:"vlan,omitempty"`
	IPv4      *ipv4Summary     `yaml:"ipv4,omitempty"`
	UDP       *udpSummary      `yaml:"udp,omitempty"`
	Error     string           `yaml:"error,omitempty"`
}

type ethernetSummary struct {
	Source      string `yaml:"src"`
	Destination string `yaml:"dst"`
	EtherType   string `yaml:"ethertype"`
}

type vlanSummary struct {
	ID       uint16 `yaml:"id"`
	Priority uint8  `yaml:"priority"`
}

type ipv4Summary struct {
	Source      string `yaml:"src"`
	Destination string `yaml:"dst"`
	TTL         uint8  `yaml:"ttl"`
	Protocol    uint8  `yaml:"protocol"`
}

type udpSummary struct {
	SourcePort      uint16 `yaml:"sport"`
	DestinationPort uint16 `yaml:"dport"`
	Length          uint16 `yaml:"length"`
	PayloadSize     int    `yaml:"payload"`
}

func summarize(index int, p pcap.Packet) packetSummary {
	s := packetSummary{
		Index:     index,
		Timestamp: p.Timestamp.Format(time.RFC3339Nano),
		CapLen:    p.CaptureLength,
		Len:       p.Length,
	}

	f, err := pdu.Decode(p.Data)
	if err != nil {
		s.Error = err.Error()
	}
	if f.Ethernet.Valid() {
		s.Ethernet = &ethernetSummary{
			Source:      f.Ethernet.Source().String(),
			Destination: f.Ethernet.Destination().String(),
			EtherType:   fmt.Sprintf("0x%04x", f.Ethernet.Protocol()),
		}
	}
	if f.VLAN.Valid() {
		s.VLAN = &vlanSummary{ID: f.VLAN.ID(), Priority: f.VLAN.Priority()}
	}
	if f.IPv4.Valid() {
		s.IPv4 = &ipv4Summary{
			Source:      f.IPv4.Source().String(),
			Destination: f.IPv4.Destination().String(),
			TTL:         f.IPv4.TTL(),
			Protocol:    f.IPv4.Protocol(),
		}
	}
	if f.UDP.Valid() {
		s.UDP = &udpSummary{
			SourcePort:      f.UDP.Source(),
			DestinationPort: f.UDP.Destination(),
			Length:          f.UDP.Length(),
			PayloadSize:     f.UDP.PayloadSize(),
		}
	}
	return s
}

func (s packetSummary) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "#%d %s %d/%d", s.Index, s.Timestamp, s.CapLen, s.Len)
	if s.Ethernet != nil {
		fmt.Fprintf(&b, " %s > %s %s", s.Ethernet.Source, s.Ethernet.Destination, s.Ethernet.EtherType)
	}
	if s.VLAN != nil {
		fmt.Fprintf(&b, " vlan %d", s.VLAN.ID)
	}
	if s.IPv4 != nil {
		fmt.Fprintf(&b, " %s > %s ttl %d proto %d", s.IPv4.Source, s.IPv4.Destination, s.IPv4.TTL, s.IPv4.Protocol)
	}
	if s.UDP != nil {
		fmt.Fprintf(&b, " udp %d > %d length %d payload %d",
			s.UDP.SourcePort, s.UDP.DestinationPort, s.UDP.Length, s.UDP.PayloadSize)
	}
	if s.Error != "" {
		fmt.Fprintf(&b, " error: %s", s.Error)
	}
	return b.String()
}

func runInspect(c *config.GlobalConfig, opts inspectOptions, inputs []string, w io.Writer) error {
	format := strings.ToLower(opts.format)
	if format != "text" && format != "yaml" {
		return fmt.Errorf("invalid format %q (must be text/yaml)", opts.format)
	}

	s, err := openSource(c, opts.filter, inputs)
	if err != nil {
		return err
	}
	defer s.Close()

	var summaries []packetSummary
	for i := 1; opts.limit <= 0 || i <= opts.limit; i++ {
		p := s.Next()
		if !p.Valid() {
			break
		}
		sum := summarize(i, p)
		if format == "text" {
			fmt.Fprintln(w, sum)
			continue
		}
		summaries = append(summaries, sum)
	}

	if format == "yaml" {
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(summaries); err != nil {
			return fmt.Errorf("failed to encode yaml: %w", err)
		}
		return enc.Close()
	}
	return nil
}
