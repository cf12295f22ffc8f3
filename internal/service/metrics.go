package service

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	togglesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_toggles_total",
		Help: "Follow and like toggles by action and resulting state",
	}, []string{"action", "result"})

	partialFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_partial_failures_total",
		Help: "Multi-document operations that committed only some writes",
	}, []string{"op"})

	notificationsCreated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_notifications_created_total",
		Help: "Notifications written by type",
	}, []string{"type"})

	notificationsFailed = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_notifications_failed_total",
		Help: "Notification fan-out failures by type and stage",
	}, []string{"type", "stage"})

	malformedSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_malformed_documents_skipped_total",
		Help: "Documents skipped on read because they failed to decode",
	}, []string{"collection"})

	graphRepairs = promauto.NewCounter(prometheus.CounterOpts{
		Name: "social_graph_repairs_total",
		Help: "Follower lists rewritten by the graph reconciler",
	})
)
