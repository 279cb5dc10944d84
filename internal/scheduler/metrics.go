package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes loop counters. A nil *Metrics records nothing.
type Metrics struct {
	packets   prometheus.Counter
	words     prometheus.Counter
	sequence  prometheus.Gauge
	sendBlock prometheus.Histogram
}

// NewMetrics creates the loop metrics and registers them on reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		packets: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backscatter",
			Name:      "packets_sent_total",
			Help:      "Packets handed to the serializer.",
		}),
		words: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "backscatter",
			Name:      "words_sent_total",
			Help:      "32-bit words handed to the serializer.",
		}),
		sequence: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "backscatter",
			Name:      "sequence",
			Help:      "Sequence number of the next packet.",
		}),
		sendBlock: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "backscatter",
			Name:      "send_block_seconds",
			Help:      "Time spent blocked handing a packet to the serializer.",
			Buckets:   prometheus.ExponentialBuckets(0.0001, 2, 12),
		}),
	}

	if reg != nil {
		reg.MustRegister(m.packets, m.words, m.sequence, m.sendBlock)
	}
	return m
}

func (m *Metrics) observe(words int, nextSeq uint8, blocked float64) {
	if m == nil {
		return
	}
	m.packets.Inc()
	m.words.Add(float64(words))
	m.sequence.Set(float64(nextSeq))
	m.sendBlock.Observe(blocked)
}
