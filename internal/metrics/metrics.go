// Package metrics registers the Prometheus gauges/counters/histograms the write pipeline,
// webhook dispatcher, and workflow engine report through — the one ambient observability
// surface carried forward from the teacher corpus now that PostHog/OTEL tracing are out of
// scope (see DESIGN.md).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// WriteDuration observes §4.6 pipeline execution latency by entity and outcome.
	WriteDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name: "rocketcore_write_duration_seconds",
		Help: "Duration of write pipeline executions.",
	}, []string{"entity", "outcome"})

	// WebhookDeliveries counts webhook dispatch outcomes by entity and status.
	WebhookDeliveries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rocketcore_webhook_deliveries_total",
		Help: "Count of webhook delivery attempts by outcome.",
	}, []string{"entity", "status"})

	// WorkflowInstancesStarted counts workflow instances created by trigger entity.
	WorkflowInstancesStarted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rocketcore_workflow_instances_started_total",
		Help: "Count of workflow instances started by trigger entity.",
	}, []string{"entity", "workflow"})

	// WorkflowInstancesResolved counts workflow instances that reached a terminal status.
	WorkflowInstancesResolved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rocketcore_workflow_instances_resolved_total",
		Help: "Count of workflow instances resolved by terminal status.",
	}, []string{"workflow", "status"})

	// SchedulerTicks counts background scheduler ticks by scheduler name.
	SchedulerTicks = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "rocketcore_scheduler_ticks_total",
		Help: "Count of background scheduler ticks.",
	}, []string{"scheduler"})
)
