// Package metrics exports the state of an [rstream.Peer] as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/soypat/rstream"
)

const namespace = "rstream"

// StatsProvider is implemented by [rstream.Peer]. Prometheus calls Collect from
// the scraping goroutine so implementations must synchronize with whatever
// goroutine drives the Peer.
type StatsProvider interface {
	Stats() rstream.Stats
}

var senderStates = []rstream.SenderState{
	rstream.SenderAwaitingSYN,
	rstream.SenderEstablished,
	rstream.SenderFINSent,
	rstream.SenderClosed,
	rstream.SenderErrored,
}

// Collector is a prometheus.Collector over a single Peer.
type Collector struct {
	provider StatsProvider

	senderStateDesc     *prometheus.Desc
	inFlightDesc        *prometheus.Desc
	consecutiveRetxDesc *prometheus.Desc
	rtoDesc             *prometheus.Desc
	remoteWindowDesc    *prometheus.Desc
	localWindowDesc     *prometheus.Desc
	pendingDesc         *prometheus.Desc
	assembledDesc       *prometheus.Desc
	sentDesc            *prometheus.Desc
	receivedDesc        *prometheus.Desc
	retransmissionsDesc *prometheus.Desc
	abortedDesc         *prometheus.Desc
}

// NewCollector returns a Collector for provider. constLabels are attached to
// every metric, typically to tell connections apart.
func NewCollector(provider StatsProvider, constLabels prometheus.Labels) *Collector {
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, constLabels)
	}
	return &Collector{
		provider:            provider,
		senderStateDesc:     desc("sender", "state", "Current sender state (1 = active)", "state"),
		inFlightDesc:        desc("sender", "sequence_numbers_in_flight", "Sequence numbers sent but not acknowledged"),
		consecutiveRetxDesc: desc("sender", "consecutive_retransmissions", "Retransmissions since the last acknowledgment of new data"),
		rtoDesc:             desc("sender", "rto_seconds", "Current retransmission timeout"),
		remoteWindowDesc:    desc("sender", "remote_window_bytes", "Window last advertised by the remote"),
		localWindowDesc:     desc("receiver", "window_bytes", "Window advertised to the remote"),
		pendingDesc:         desc("receiver", "pending_bytes", "Bytes held by the reassembler waiting for a gap to fill"),
		assembledDesc:       desc("receiver", "assembled_bytes_total", "Bytes written in order to the inbound stream"),
		sentDesc:            desc("peer", "segments_sent_total", "Segments transmitted"),
		receivedDesc:        desc("peer", "segments_received_total", "Segments received"),
		retransmissionsDesc: desc("peer", "retransmissions_total", "Segments retransmitted on timeout"),
		abortedDesc:         desc("peer", "aborted", "Whether the connection was aborted (1 = yes)"),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.senderStateDesc
	ch <- c.inFlightDesc
	ch <- c.consecutiveRetxDesc
	ch <- c.rtoDesc
	ch <- c.remoteWindowDesc
	ch <- c.localWindowDesc
	ch <- c.pendingDesc
	ch <- c.assembledDesc
	ch <- c.sentDesc
	ch <- c.receivedDesc
	ch <- c.retransmissionsDesc
	ch <- c.abortedDesc
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	st := c.provider.Stats()
	for _, state := range senderStates {
		ch <- prometheus.MustNewConstMetric(c.senderStateDesc, prometheus.GaugeValue, b2f(st.SenderState == state), state.String())
	}
	gauge := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v)
	}
	counter := func(d *prometheus.Desc, v uint64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v))
	}
	gauge(c.inFlightDesc, float64(st.SequenceNumbersInFlight))
	gauge(c.consecutiveRetxDesc, float64(st.ConsecutiveRetransmissions))
	gauge(c.rtoDesc, float64(st.RTO)/1000)
	gauge(c.remoteWindowDesc, float64(st.RemoteWindow))
	gauge(c.localWindowDesc, float64(st.LocalWindow))
	gauge(c.pendingDesc, float64(st.BytesPending))
	gauge(c.abortedDesc, b2f(st.Aborted))
	counter(c.assembledDesc, st.BytesAssembled)
	counter(c.sentDesc, st.SegmentsSent)
	counter(c.receivedDesc, st.SegmentsReceived)
	counter(c.retransmissionsDesc, st.Retransmissions)
}

func b2f(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
