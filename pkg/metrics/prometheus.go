// Copyright 2025 The Netipam Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//   http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// NewPromGauge wraps a prometheus gauge vector as a gauge.
// Returns nil, if gv is nil.
func NewPromGauge(gv *prometheus.GaugeVec) Gauge {
	if gv == nil {
		return nil
	}
	return &gauge{gv: gv}
}

// NewPromCounter wraps a prometheus counter vector as a counter.
// Returns nil if cv is nil.
func NewPromCounter(cv *prometheus.CounterVec) Counter {
	if cv == nil {
		return nil
	}
	return &counter{cv: cv}
}

// NewPromHistogram wraps a prometheus histogram vector as a histogram.
// Returns nil if hv is nil.
func NewPromHistogram(hv *prometheus.HistogramVec) Histogram {
	if hv == nil {
		return nil
	}
	return &histogram{hv: hv}
}

// NewPromCounterFrom creates and registers a wrapped prometheus counter.
func NewPromCounterFrom(opts prometheus.CounterOpts, labelNames []string) Counter {
	cv := prometheus.NewCounterVec(opts, labelNames)
	prometheus.MustRegister(cv)
	return &counter{cv: cv}
}

// NewPromHistogramFrom creates and registers a wrapped prometheus histogram.
func NewPromHistogramFrom(opts prometheus.HistogramOpts, labelNames []string) Histogram {
	hv := prometheus.NewHistogramVec(opts, labelNames)
	prometheus.MustRegister(hv)
	return &histogram{hv: hv}
}

// labelValuesSlice provides validation on its With method. Metrics include it
// to satisfy With semantics without code duplication.
type labelValuesSlice []string

// With validates the input, and returns a new aggregate labelValues.
func (lvs labelValuesSlice) With(labelValues ...string) labelValuesSlice {
	if len(labelValues)%2 != 0 {
		labelValues = append(labelValues, "unknown")
	}
	result := make(labelValuesSlice, len(lvs))
	copy(result, lvs)
	return append(result, labelValues...)
}

// gauge implements Gauge, via a Prometheus GaugeVec.
type gauge struct {
	gv  *prometheus.GaugeVec
	lvs labelValuesSlice
}

// With implements Gauge.
func (g *gauge) With(labelValues ...string) Gauge {
	return &gauge{
		gv:  g.gv,
		lvs: g.lvs.With(labelValues...),
	}
}

// Set implements Gauge.
func (g *gauge) Set(value float64) {
	g.gv.With(makeLabels(g.lvs...)).Set(value)
}

// Add is supported by Prometheus GaugeVecs.
func (g *gauge) Add(delta float64) {
	g.gv.With(makeLabels(g.lvs...)).Add(delta)
}

// counter implements Counter, via a Prometheus CounterVec.
type counter struct {
	cv  *prometheus.CounterVec
	lvs labelValuesSlice
}

// With implements Counter.
func (c *counter) With(labelValues ...string) Counter {
	return &counter{
		cv:  c.cv,
		lvs: c.lvs.With(labelValues...),
	}
}

// Add implements Counter.
func (c *counter) Add(delta float64) {
	c.cv.With(makeLabels(c.lvs...)).Add(delta)
}

// histogram implements Histogram via a Prometheus HistogramVec.
type histogram struct {
	hv  *prometheus.HistogramVec
	lvs labelValuesSlice
}

// With implements Histogram.
func (h *histogram) With(labelValues ...string) Histogram {
	return &histogram{
		hv:  h.hv,
		lvs: h.lvs.With(labelValues...),
	}
}

// Observe implements Histogram.
func (h *histogram) Observe(value float64) {
	h.hv.With(makeLabels(h.lvs...)).Observe(value)
}

func makeLabels(labelValues ...string) prometheus.Labels {
	labels := prometheus.Labels{}
	for i := 0; i+1 < len(labelValues); i += 2 {
		labels[labelValues[i]] = labelValues[i+1]
	}
	return labels
}
