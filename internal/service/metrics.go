package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesProcessedCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wa_agent",
			Name:      "messages_processed_total",
			Help:      "Inbound messages handled by the pipeline.",
		},
		[]string{"category", "outcome"},
	)

	pipelineErrorsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wa_agent",
			Name:      "pipeline_errors_total",
			Help:      "Pipeline steps that failed.",
		},
		[]string{"stage", "retryable"},
	)

	stageDurationHist = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "wa_agent",
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual pipeline stages.",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"stage"},
	)

	approvalTransitionsCounter = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "wa_agent",
			Name:      "approval_transitions_total",
			Help:      "Action status transitions applied by the approval workflow.",
		},
		[]string{"to"},
	)

	pendingApprovalsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wa_agent",
			Name:      "approvals_pending",
			Help:      "Open approval requests at the last sweep.",
		},
	)

	expiredApprovalsGauge = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "wa_agent",
			Name:      "approvals_expired_unresolved",
			Help:      "Expired approval requests that were never resolved, at the last sweep.",
		},
	)
)
