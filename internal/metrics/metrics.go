// Package metrics implements Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registry holds every pcapmerge collector. It is kept apart from the default
// registry so a textfile dump carries only merge counters.
var Registry = prometheus.NewRegistry()

var factory = promauto.With(Registry)

var (
	// ReadersOpenedTotal counts capture files accepted by a packet source
	ReadersOpenedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapmerge_readers_opened_total",
			Help: "Total number of capture files opened for merging",
		},
	)

	// ReadersRejectedTotal counts capture files that could not be opened or had a bad header
	ReadersRejectedTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapmerge_readers_rejected_total",
			Help: "Total number of capture files rejected at open",
		},
	)

	// ReadersFinishedTotal counts readers leaving the merge, by final state
	ReadersFinishedTotal = factory.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pcapmerge_readers_finished_total",
			Help: "Total number of readers that stopped producing packets",
		},
		[]string{"reason"},
	)

	// PacketsDeliveredTotal counts packets handed to the consumer
	PacketsDeliveredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapmerge_packets_delivered_total",
			Help: "Total number of packets delivered in timestamp order",
		},
	)

	// PacketsFilteredTotal counts packets dropped by the packet filter
	PacketsFilteredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapmerge_packets_filtered_total",
			Help: "Total number of packets skipped by the filter",
		},
	)

	// BytesDeliveredTotal counts captured bytes of delivered packets
	BytesDeliveredTotal = factory.NewCounter(
		prometheus.CounterOpts{
			Name: "pcapmerge_bytes_delivered_total",
			Help: "Total number of captured bytes delivered",
		},
	)
)
