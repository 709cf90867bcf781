// Copyright The Notary Project Authors.
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metrics instruments signature augmentation with Prometheus.
// A nil *Collector records nothing.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels.
const (
	OutcomeSuccess = "success"
	OutcomeNoop    = "noop"
	OutcomeError   = "error"
)

// Collector holds the augmentation metrics.
type Collector struct {
	augmentations     *prometheus.CounterVec
	timestampDuration *prometheus.HistogramVec
	counterSignatures prometheus.Counter
	entriesAppended   *prometheus.CounterVec
}

// New registers the metrics with reg. A nil reg uses
// prometheus.DefaultRegisterer.
func New(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Collector{
		augmentations: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jades_augmentations_total",
				Help: "Total number of signature augmentations by target level and outcome",
			},
			[]string{"level", "outcome"},
		),
		timestampDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "jades_timestamp_request_duration_seconds",
				Help:    "Duration of timestamp requests in seconds",
				Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
			},
			[]string{"kind", "outcome"},
		),
		counterSignatures: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "jades_counter_signatures_attached_total",
				Help: "Total number of counter signatures attached",
			},
		),
		entriesAppended: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "jades_etsiu_entries_appended_total",
				Help: "Total number of etsiU entries appended by component",
			},
			[]string{"component"},
		),
	}
}

// Augmentation records one augmentation towards level.
func (c *Collector) Augmentation(level, outcome string) {
	if c == nil {
		return
	}
	c.augmentations.WithLabelValues(level, outcome).Inc()
}

// Timestamp records a timestamp request of the given kind started at start.
func (c *Collector) Timestamp(kind string, start time.Time, err error) {
	if c == nil {
		return
	}
	outcome := OutcomeSuccess
	if err != nil {
		outcome = OutcomeError
	}
	c.timestampDuration.WithLabelValues(kind, outcome).Observe(time.Since(start).Seconds())
}

// CounterSignature records an attached counter signature.
func (c *Collector) CounterSignature() {
	if c == nil {
		return
	}
	c.counterSignatures.Inc()
}

// EntryAppended records an etsiU entry appended under component.
func (c *Collector) EntryAppended(component string) {
	if c == nil {
		return
	}
	c.entriesAppended.WithLabelValues(component).Inc()
}
