package gallery

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds the Prometheus collectors for generation and consistency.
type Metrics struct {
	Generations        *prometheus.CounterVec
	GenerationDuration *prometheus.HistogramVec
	ConsistencyFaults  prometheus.Counter
	OrphansDeleted     prometheus.Counter
}

// NewMetrics creates the collectors and registers them on reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		Generations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "reimagine_generations_total",
				Help: "Generation requests by provider and outcome",
			},
			[]string{"provider", "outcome"},
		),
		GenerationDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "reimagine_generation_duration_seconds",
				Help:    "Time spent in the provider call and result normalization",
				Buckets: []float64{0.5, 1, 2.5, 5, 10, 20, 30, 60, 120},
			},
			[]string{"provider"},
		),
		ConsistencyFaults: factory.NewCounter(prometheus.CounterOpts{
			Name: "reimagine_consistency_faults_total",
			Help: "Generated blobs written whose record update failed",
		}),
		OrphansDeleted: factory.NewCounter(prometheus.CounterOpts{
			Name: "reimagine_orphan_blobs_deleted_total",
			Help: "Blobs removed by the orphan sweep",
		}),
	}
}

func (m *Metrics) recordGeneration(providerName, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.Generations.WithLabelValues(providerName, outcome).Inc()
	m.GenerationDuration.WithLabelValues(providerName).Observe(elapsed.Seconds())
}

func (m *Metrics) recordConsistencyFault() {
	if m == nil {
		return
	}
	m.ConsistencyFaults.Inc()
}

func (m *Metrics) recordOrphansDeleted(n int) {
	if m == nil || n <= 0 {
		return
	}
	m.OrphansDeleted.Add(float64(n))
}
