package node

import (
	"github.com/prometheus/client_golang/prometheus"
)

type Metrics struct {
	txVerified       prometheus.Counter
	txRejected       *prometheus.CounterVec
	blocksConnected  prometheus.Counter
	blocksRolledBack prometheus.Counter
	anonOutputs      prometheus.Gauge
	keyImages        prometheus.Gauge
	mempoolKeyImages prometheus.Gauge
}

// NewMetrics creates the anon index collectors and registers them on reg
// when it is non-nil.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		txVerified: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anon_tx_verified_total",
			Help: "Anonymous transactions whose ring signatures verified",
		}),
		txRejected: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "anon_tx_rejected_total",
			Help: "Anonymous transactions rejected, by reason",
		}, []string{"reason"}),
		blocksConnected: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anon_blocks_connected_total",
			Help: "Blocks applied to the anon index",
		}),
		blocksRolledBack: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "anon_blocks_disconnected_total",
			Help: "Blocks removed from the anon index",
		}),
		anonOutputs: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anon_outputs",
			Help: "Last assigned anon output position",
		}),
		keyImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anon_key_images",
			Help: "Key images recorded in the index",
		}),
		mempoolKeyImages: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "anon_mempool_key_images",
			Help: "Key images tracked by the mempool",
		}),
	}
	if reg != nil {
		reg.MustRegister(m.txVerified, m.txRejected, m.blocksConnected, m.blocksRolledBack,
			m.anonOutputs, m.keyImages, m.mempoolKeyImages)
	}
	return m
}

func (m *Metrics) rejected(reason string) {
	if m != nil {
		m.txRejected.WithLabelValues(reason).Inc()
	}
}

func (m *Metrics) verified() {
	if m != nil {
		m.txVerified.Inc()
	}
}
