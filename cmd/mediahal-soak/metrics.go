package main

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

// Gatherer reads the driver's Prometheus registry in process.
type Gatherer struct {
	g prometheus.Gatherer
}

// NewGatherer wraps g. A nil g reads the default registry.
func NewGatherer(g prometheus.Gatherer) *Gatherer {
	if g == nil {
		g = prometheus.DefaultGatherer
	}
	return &Gatherer{g: g}
}

// Value sums every series of the named family whose labels include match.
// Counters and gauges contribute their value, histograms their sample
// count. A family that was never written reads as zero.
func (g *Gatherer) Value(name string, match map[string]string) (float64, error) {
	families, err := g.g.Gather()
	if err != nil {
		return 0, fmt.Errorf("gather: %w", err)
	}
	var sum float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			if !labelsMatch(m, match) {
				continue
			}
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				sum += m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				sum += m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				sum += float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return sum, nil
}

// Delta records the current value and returns a func reporting the
// increase since. Read errors count as zero.
func (g *Gatherer) Delta(name string, match map[string]string) func() float64 {
	before, _ := g.Value(name, match)
	return func() float64 {
		now, _ := g.Value(name, match)
		return now - before
	}
}

func labelsMatch(m *dto.Metric, match map[string]string) bool {
	if len(match) == 0 {
		return true
	}
	found := 0
	for _, lp := range m.GetLabel() {
		if want, ok := match[lp.GetName()]; ok {
			if lp.GetValue() != want {
				return false
			}
			found++
		}
	}
	return found == len(match)
}
