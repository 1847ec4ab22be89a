// Copyright (C) 2026 Verdant AI (eng@verdantai.com.br)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

// Package observability provides Prometheus metrics for the relay.
package observability

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "verdant"
	metricsSubsystem = "relay"
)

// Endpoint label values.
const (
	EndpointChat    = "chat"
	EndpointStream  = "stream"
	EndpointContact = "contact"
)

// Error code label values (machine codes shared with the API bodies).
const (
	CodeValidation    = "validation_error"
	CodeFetchFailed   = "fetch_failed"
	CodeUpstreamError = "openrouter_error"
	CodeBufferLimit   = "buffer_overflow"
	CodeStreamRead    = "stream_read_failed"
	CodeInternal      = "internal_error"
)

// Metrics holds all Prometheus instruments for the relay service.
type Metrics struct {
	RequestsTotal      *prometheus.CounterVec
	ErrorsTotal        *prometheus.CounterVec
	RateLimitedTotal   *prometheus.CounterVec
	UpstreamAttempts   prometheus.Histogram
	ActiveStreams      prometheus.Gauge
	StreamDuration     prometheus.Histogram
	TimeToFirstToken   prometheus.Histogram
	DeltasTotal        prometheus.Counter
	ClientDisconnects  prometheus.Counter
	SessionWritesTotal *prometheus.CounterVec
	ContactEmailsTotal *prometheus.CounterVec
}

var (
	defaultMetrics *Metrics
	metricsOnce    sync.Once
)

// InitMetrics registers all instruments on the default registry exactly
// once and returns the shared Metrics instance.
func InitMetrics() *Metrics {
	metricsOnce.Do(func() {
		defaultMetrics = newMetrics(prometheus.DefaultRegisterer)
	})
	return defaultMetrics
}

func newMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)

	return &Metrics{
		RequestsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "requests_total",
			Help:      "API requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),

		ErrorsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "errors_total",
			Help:      "Failed requests by endpoint and error code.",
		}, []string{"endpoint", "code"}),

		RateLimitedTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "rate_limited_total",
			Help:      "Requests rejected by the rate limiter.",
		}, []string{"endpoint"}),

		UpstreamAttempts: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "upstream_attempts",
			Help:      "HTTP attempts needed per upstream call.",
			Buckets:   []float64{1, 2, 3},
		}),

		ActiveStreams: factory.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "active_streams",
			Help:      "SSE streams currently open.",
		}),

		StreamDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "stream_duration_seconds",
			Help:      "Total lifetime of SSE streams.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
		}),

		TimeToFirstToken: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "time_to_first_token_seconds",
			Help:      "Latency from stream start to the first delta.",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
		}),

		DeltasTotal: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "deltas_total",
			Help:      "Delta events relayed to clients.",
		}),

		ClientDisconnects: factory.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "client_disconnects_total",
			Help:      "Streams aborted because the client went away.",
		}),

		SessionWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "session_writes_total",
			Help:      "Fire-and-forget session writes by outcome.",
		}, []string{"outcome"}),

		ContactEmailsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Subsystem: metricsSubsystem,
			Name:      "contact_emails_total",
			Help:      "Contact form emails by outcome.",
		}, []string{"outcome"}),
	}
}

// =============================================================================
// Recording Helpers
// =============================================================================

// RecordRequest counts one finished request.
func (m *Metrics) RecordRequest(endpoint string, status int) {
	m.RequestsTotal.WithLabelValues(endpoint, strconv.Itoa(status)).Inc()
}

// RecordError counts one failed request by machine code.
func (m *Metrics) RecordError(endpoint, code string) {
	m.ErrorsTotal.WithLabelValues(endpoint, code).Inc()
}

// RecordRateLimited counts one rejected request.
func (m *Metrics) RecordRateLimited(endpoint string) {
	m.RateLimitedTotal.WithLabelValues(endpoint).Inc()
}

// StreamStarted marks a stream as open and returns a closer that
// records its duration. Usage: defer m.StreamStarted()().
func (m *Metrics) StreamStarted() func() {
	m.ActiveStreams.Inc()
	start := time.Now()
	return func() {
		m.ActiveStreams.Dec()
		m.StreamDuration.Observe(time.Since(start).Seconds())
	}
}

// RecordFirstToken records stream-start-to-first-delta latency.
func (m *Metrics) RecordFirstToken(sinceStart time.Duration) {
	m.TimeToFirstToken.Observe(sinceStart.Seconds())
}

// RecordSessionWrite counts a persistence attempt outcome ("ok"/"error").
func (m *Metrics) RecordSessionWrite(outcome string) {
	m.SessionWritesTotal.WithLabelValues(outcome).Inc()
}

// RecordContactEmail counts a contact email outcome ("sent"/"dev"/"error").
func (m *Metrics) RecordContactEmail(outcome string) {
	m.ContactEmailsTotal.WithLabelValues(outcome).Inc()
}
