// Copyright (C) 2025 Logical Mechanism LLC
// SPDX-License-Identifier: GPL-3.0-only

package harness

import (
	"fmt"
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

const metricsNamespace = "zkharness"

// Metrics records scenario outcomes in a private registry.
type Metrics struct {
	registry      *prometheus.Registry
	scenarios     *prometheus.CounterVec
	verifications *prometheus.CounterVec
	stages        *prometheus.HistogramVec
}

// NewMetrics registers the harness collectors on a private registry.
func NewMetrics() *Metrics {
	m := &Metrics{registry: prometheus.NewRegistry()}

	m.scenarios = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "scenarios_total",
		Help: "Scenarios run, by circuit, protocol and result",
	}, []string{"circuit", "protocol", "result"})

	m.verifications = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace, Name: "verifications_total",
		Help: "verifyProof calls, by protocol, proof kind and answer",
	}, []string{"protocol", "proof", "answer"})

	m.stages = prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace, Name: "stage_duration_seconds",
		Help:    "Time spent per scenario stage",
		Buckets: prometheus.ExponentialBuckets(0.001, 4, 10),
	}, []string{"protocol", "stage"})

	m.registry.MustRegister(m.scenarios, m.verifications, m.stages)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) observeStage(protocol, stage string, d time.Duration) {
	m.stages.With(prometheus.Labels{"protocol": protocol, "stage": stage}).Observe(d.Seconds())
}

func (m *Metrics) incVerification(protocol, proof string, accepted bool) {
	answer := "rejected"
	if accepted {
		answer = "accepted"
	}
	m.verifications.With(prometheus.Labels{"protocol": protocol, "proof": proof, "answer": answer}).Inc()
}

func (m *Metrics) incScenario(circuit, protocol string, passed bool) {
	result := "fail"
	if passed {
		result = "pass"
	}
	m.scenarios.With(prometheus.Labels{"circuit": circuit, "protocol": protocol, "result": result}).Inc()
}

// WriteText writes every metric in the Prometheus text exposition format.
func (m *Metrics) WriteText(w io.Writer) error {
	families, err := m.registry.Gather()
	if err != nil {
		return fmt.Errorf("gather metrics: %w", err)
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return fmt.Errorf("write metrics: %w", err)
		}
	}
	return nil
}
