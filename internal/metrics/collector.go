// Package metrics provides internal Prometheus metrics collection.
// This package is internal and should not be imported by external projects.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Collector gathers orchestration metrics. A nil *Collector is a valid
// no-op receiver so callers never need to guard instrumentation sites.
type Collector struct {
	// Task metrics
	tasksTotal   *prometheus.CounterVec
	taskDuration *prometheus.HistogramVec

	// Step metrics
	stepsTotal     *prometheus.CounterVec
	stepDuration   *prometheus.HistogramVec
	retriesTotal   *prometheus.CounterVec
	fallbacksTotal *prometheus.CounterVec

	// Agent communication metrics
	messagesTotal *prometheus.CounterVec

	// Pipeline metrics
	intentsTotal  *prometheus.CounterVec
	routingsTotal *prometheus.CounterVec
}

// NewCollector registers the orchestration metrics on reg. A nil reg uses
// the default registerer.
func NewCollector(namespace string, reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Collector{
		tasksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "tasks_total",
				Help:      "Total number of executed tasks by final status",
			},
			[]string{"status"},
		),
		taskDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "task_duration_seconds",
				Help:      "Wall-clock task duration in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
			},
			[]string{"status"},
		),
		stepsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "steps_total",
				Help:      "Total number of executed steps by agent and terminal state",
			},
			[]string{"agent", "state"},
		),
		stepDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "step_duration_seconds",
				Help:      "Step duration in seconds by agent",
				Buckets:   prometheus.ExponentialBuckets(0.05, 2, 12),
			},
			[]string{"agent"},
		),
		retriesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_retries_total",
				Help:      "Total number of step retry attempts by agent",
			},
			[]string{"agent"},
		),
		fallbacksTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "step_fallbacks_total",
				Help:      "Total number of fallback-agent substitutions",
			},
			[]string{"agent", "fallback"},
		),
		messagesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "agent_messages_total",
				Help:      "Total number of agent-to-agent exchanges by outcome",
			},
			[]string{"outcome"},
		),
		intentsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "intent_classifications_total",
				Help:      "Total number of intent classifications by primary intent",
			},
			[]string{"intent"},
		),
		routingsTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "routing_decisions_total",
				Help:      "Total number of routing decisions by workflow type",
			},
			[]string{"workflow"},
		),
	}
}

// TaskFinished records one finished task.
func (c *Collector) TaskFinished(status string, duration time.Duration) {
	if c == nil {
		return
	}
	c.tasksTotal.WithLabelValues(status).Inc()
	c.taskDuration.WithLabelValues(status).Observe(duration.Seconds())
}

// StepFinished records one finished step.
func (c *Collector) StepFinished(agent, state string, duration time.Duration) {
	if c == nil {
		return
	}
	c.stepsTotal.WithLabelValues(agent, state).Inc()
	c.stepDuration.WithLabelValues(agent).Observe(duration.Seconds())
}

// Retry records one retry attempt.
func (c *Collector) Retry(agent string) {
	if c == nil {
		return
	}
	c.retriesTotal.WithLabelValues(agent).Inc()
}

// Fallback records one fallback substitution.
func (c *Collector) Fallback(agent, fallback string) {
	if c == nil {
		return
	}
	c.fallbacksTotal.WithLabelValues(agent, fallback).Inc()
}

// Message records one agent-to-agent exchange outcome.
func (c *Collector) Message(outcome string) {
	if c == nil {
		return
	}
	c.messagesTotal.WithLabelValues(outcome).Inc()
}

// Intent records one intent classification.
func (c *Collector) Intent(intent string) {
	if c == nil {
		return
	}
	c.intentsTotal.WithLabelValues(intent).Inc()
}

// Routing records one routing decision.
func (c *Collector) Routing(workflow string) {
	if c == nil {
		return
	}
	c.routingsTotal.WithLabelValues(workflow).Inc()
}
