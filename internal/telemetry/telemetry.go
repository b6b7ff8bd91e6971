// Package telemetry builds the shared zap logger and prometheus collectors
// used across the shard and seal packages, so neither has to reinvent
// bootstrap code for its own copy.
package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

// NewLogger returns a production zap logger. Callers that need test-friendly
// output should construct their own via zap.NewDevelopment() or zaptest.
func NewLogger() (*zap.Logger, error) {
	return zap.NewProduction()
}

// Metrics bundles the prometheus collectors spec.md §4.1/§4.2 call for:
// per-shard stash-size telemetry and per-shard access counts (the latter
// supports the chi-squared shard-balance property in spec.md §8.4).
type Metrics struct {
	StashSize *prometheus.GaugeVec
	Accesses  *prometheus.CounterVec
}

// NewMetrics constructs and registers the collectors against reg. Passing a
// fresh prometheus.NewRegistry() per test keeps concurrent tests isolated.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	m := &Metrics{
		StashSize: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: "seal",
			Subsystem: "pathoram",
			Name:      "stash_size",
			Help:      "Current stash size after the most recent access, per shard.",
		}, []string{"shard"}),
		Accesses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "seal",
			Subsystem: "pathoram",
			Name:      "accesses_total",
			Help:      "Total ORAM accesses, per shard.",
		}, []string{"shard"}),
	}
	if err := reg.Register(m.StashSize); err != nil {
		return nil, err
	}
	if err := reg.Register(m.Accesses); err != nil {
		return nil, err
	}
	return m, nil
}

// StashObserver adapts a Metrics' StashSize gauge to the
// pathoram.Metrics interface for one fixed shard.
type StashObserver struct {
	gauge   *prometheus.GaugeVec
	shardID int
}

// NewStashObserver returns a pathoram.Metrics implementation that reports
// into m's gauge under the label for shardID.
func NewStashObserver(m *Metrics, shardID int) *StashObserver {
	return &StashObserver{gauge: m.StashSize, shardID: shardID}
}

// ObserveStashSize implements pathoram.Metrics.
func (s *StashObserver) ObserveStashSize(n int) {
	s.gauge.WithLabelValues(strconv.Itoa(s.shardID)).Set(float64(n))
}
