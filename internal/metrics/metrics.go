// Package metrics exposes Prometheus metrics for the service. All
// values are gathered at scrape time from providers, so the rest of the
// codebase never touches prometheus types directly.
package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// BridgeStatsProvider exposes live bridge counters.
type BridgeStatsProvider interface {
	ActiveBridges() int64
	FrameTotals() (inbound, outbound, dropped int64)
	TerminationCounts() map[string]int64
}

// SessionCounter exposes the number of active call sessions.
type SessionCounter interface {
	Len() int
}

// OutcomeCounter returns call counts grouped by outcome.
type OutcomeCounter interface {
	CountByOutcome(ctx context.Context) (map[string]int64, error)
}

// VerificationStatsProvider exposes identity verification attempt totals.
type VerificationStatsProvider interface {
	VerificationStats() (succeeded, failed int64)
}

// Collector is a prometheus.Collector that gathers service metrics at
// scrape time.
type Collector struct {
	bridges      BridgeStatsProvider
	sessions     SessionCounter
	outcomes     OutcomeCounter
	verification VerificationStatsProvider
	startTime    time.Time

	// Metric descriptors.
	activeBridgesDesc  *prometheus.Desc
	activeSessionsDesc *prometheus.Desc
	framesDesc         *prometheus.Desc
	framesDroppedDesc  *prometheus.Desc
	terminationsDesc   *prometheus.Desc
	callsTotalDesc     *prometheus.Desc
	verificationsDesc  *prometheus.Desc
	uptimeDesc         *prometheus.Desc
}

// NewCollector creates a new metrics collector. Any provider may be nil
// if unavailable.
func NewCollector(bridges BridgeStatsProvider, sessions SessionCounter, outcomes OutcomeCounter, startTime time.Time) *Collector {
	return &Collector{
		bridges:   bridges,
		sessions:  sessions,
		outcomes:  outcomes,
		startTime: startTime,

		activeBridgesDesc: prometheus.NewDesc(
			"duevoice_active_bridges",
			"Number of media bridges currently streaming",
			nil, nil,
		),
		activeSessionsDesc: prometheus.NewDesc(
			"duevoice_active_sessions",
			"Number of open call sessions",
			nil, nil,
		),
		framesDesc: prometheus.NewDesc(
			"duevoice_frames_relayed_total",
			"Total media frames relayed across all bridges",
			[]string{"direction"}, nil,
		),
		framesDroppedDesc: prometheus.NewDesc(
			"duevoice_frames_dropped_total",
			"Total engine frames dropped before a stream id was known",
			nil, nil,
		),
		terminationsDesc: prometheus.NewDesc(
			"duevoice_bridge_terminations_total",
			"Total bridge terminations by cause",
			[]string{"cause"}, nil,
		),
		callsTotalDesc: prometheus.NewDesc(
			"duevoice_calls_total",
			"Total calls recorded, by outcome",
			[]string{"outcome"}, nil,
		),
		verificationsDesc: prometheus.NewDesc(
			"duevoice_verification_attempts_total",
			"Total identity verification factor checks, by result",
			[]string{"result"}, nil,
		),
		uptimeDesc: prometheus.NewDesc(
			"duevoice_uptime_seconds",
			"Seconds since the process started",
			nil, nil,
		),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.activeBridgesDesc
	ch <- c.activeSessionsDesc
	ch <- c.framesDesc
	ch <- c.framesDroppedDesc
	ch <- c.terminationsDesc
	ch <- c.callsTotalDesc
	ch <- c.verificationsDesc
	ch <- c.uptimeDesc
}

// SetVerificationStats wires the verifier's counters into the collector.
// Must be called before the first scrape.
func (c *Collector) SetVerificationStats(p VerificationStatsProvider) {
	c.verification = p
}

// Collect implements prometheus.Collector. It queries all providers at
// scrape time.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if c.bridges != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeBridgesDesc, prometheus.GaugeValue,
			float64(c.bridges.ActiveBridges()),
		)

		inbound, outbound, dropped := c.bridges.FrameTotals()
		ch <- prometheus.MustNewConstMetric(
			c.framesDesc, prometheus.CounterValue, float64(inbound), "inbound",
		)
		ch <- prometheus.MustNewConstMetric(
			c.framesDesc, prometheus.CounterValue, float64(outbound), "outbound",
		)
		ch <- prometheus.MustNewConstMetric(
			c.framesDroppedDesc, prometheus.CounterValue, float64(dropped),
		)

		for cause, count := range c.bridges.TerminationCounts() {
			ch <- prometheus.MustNewConstMetric(
				c.terminationsDesc, prometheus.CounterValue, float64(count), cause,
			)
		}
	}

	if c.sessions != nil {
		ch <- prometheus.MustNewConstMetric(
			c.activeSessionsDesc, prometheus.GaugeValue,
			float64(c.sessions.Len()),
		)
	}

	if c.outcomes != nil {
		counts, err := c.outcomes.CountByOutcome(ctx)
		if err != nil {
			slog.Error("metrics: failed to count calls by outcome", "error", err)
		} else {
			for outcome, count := range counts {
				ch <- prometheus.MustNewConstMetric(
					c.callsTotalDesc, prometheus.CounterValue, float64(count), outcome,
				)
			}
		}
	}

	if c.verification != nil {
		succeeded, failed := c.verification.VerificationStats()
		ch <- prometheus.MustNewConstMetric(
			c.verificationsDesc, prometheus.CounterValue, float64(succeeded), "success",
		)
		ch <- prometheus.MustNewConstMetric(
			c.verificationsDesc, prometheus.CounterValue, float64(failed), "failure",
		)
	}

	ch <- prometheus.MustNewConstMetric(
		c.uptimeDesc, prometheus.GaugeValue,
		time.Since(c.startTime).Seconds(),
	)
}

// Handler registers the collector on a fresh registry and returns the
// scrape endpoint handler.
func Handler(c *Collector) http.Handler {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{})
}
