// Package metrics exports Prometheus counters for the event engine and the
// chat bridge.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var registry = prometheus.NewRegistry()

var factory = promauto.With(registry)

var (
	// Registrations counts admission outcomes: confirmed, waitlisted,
	// waitlisted_group_too_large, rejected.
	Registrations = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offkai",
			Subsystem: "events",
			Name:      "registrations_total",
			Help:      "Total number of registration attempts by outcome",
		},
		[]string{"outcome"},
	)

	// Promotions counts waitlist promotions by trigger: withdrawal,
	// capacity_increase, reopen, manual.
	Promotions = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offkai",
			Subsystem: "events",
			Name:      "promotions_total",
			Help:      "Total number of waitlist promotions by trigger",
		},
		[]string{"trigger"},
	)

	// SchedulerTasks counts executed alert tasks by status: ok, skipped, error.
	SchedulerTasks = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offkai",
			Subsystem: "alerts",
			Name:      "tasks_total",
			Help:      "Total number of scheduler tasks executed by status",
		},
		[]string{"status"},
	)

	// NotificationsSent counts successfully delivered plan actions by kind.
	NotificationsSent = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offkai",
			Subsystem: "bridge",
			Name:      "notifications_sent_total",
			Help:      "Total number of chat notifications delivered by action kind",
		},
		[]string{"action"},
	)

	// NotificationErrors counts failed plan actions by kind.
	NotificationErrors = factory.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "offkai",
			Subsystem: "bridge",
			Name:      "notification_errors_total",
			Help:      "Total number of failed chat notifications by action kind",
		},
		[]string{"action"},
	)
)

// Handler serves the registry in Prometheus exposition format.
func Handler() http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
