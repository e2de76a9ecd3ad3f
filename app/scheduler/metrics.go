package scheduler

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	messagesSentTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "susanoo_messages_sent_total",
		Help: "Messages handed to a provider successfully",
	})
	messagesFailedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "susanoo_messages_failed_total",
		Help: "Messages that exhausted dispatch, by reason",
	}, []string{"reason"})
	messagesRequeuedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "susanoo_messages_requeued_total",
		Help: "Messages returned to pending without consuming an attempt, by reason",
	}, []string{"reason"})
	messagesScheduledTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "susanoo_messages_scheduled_total",
		Help: "Queue rows created by the campaign scheduler",
	})
	dispatchDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "susanoo_dispatch_duration_seconds",
		Help:    "Time spent sending one message through a provider",
		Buckets: prometheus.DefBuckets,
	})
)
