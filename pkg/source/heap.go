package source

import "firestige.xyz/pcapmerge/pkg/pcap"

// entry is the next undelivered packet of one reader.
type entry struct {
	packet pcap.Packet
	reader *pcap.Reader
	seq    int
}

// pending is a min-heap of entries ordered by packet timestamp. Equal
// timestamps fall back to the order readers were added.
type pending []*entry

func (h pending) Len() int { return len(h) }

func (h pending) Less(i, j int) bool {
	ti, tj := h[i].packet.UnixNano(), h[j].packet.UnixNano()
	if ti != tj {
		return ti < tj
	}
	return h[i].seq < h[j].seq
}

func (h pending) Swap(i, j int) { h[i], h[j] = h[j], h[i] }

func (h *pending) Push(x any) { *h = append(*h, x.(*entry)) }

func (h *pending) Pop() any {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	*h = old[:n-1]
	return e
}
