package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Webhook delivery outcomes.
const (
	OutcomeProcessed    = "processed"
	OutcomeDuplicate    = "duplicate"
	OutcomeIgnored      = "ignored"
	OutcomeFailed       = "failed"
	OutcomeUnauthorized = "unauthorized"
)

// EventTypeOther labels every delivery kind that is not routed to a handler.
const EventTypeOther = "other"

// routedEventTypes bounds the event_type label; delivery types come from the
// request body.
var routedEventTypes = map[string]struct{}{
	"order.paid":            {},
	"subscription.canceled": {},
	"subscription.updated":  {},
	"payment.failed":        {},
	"unknown":               {},
}

func eventTypeLabel(eventType string) string {
	if _, ok := routedEventTypes[eventType]; ok {
		return eventType
	}
	return EventTypeOther
}

// Expiration sources.
const (
	SourceSession = "session"
	SourceSweep   = "sweep"
)

// WebhookMetrics records billing webhook deliveries.
type WebhookMetrics struct {
	events   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

// NewWebhookMetrics registers the webhook metrics on the provided registerer.
func NewWebhookMetrics(reg prometheus.Registerer) *WebhookMetrics {
	if reg == nil {
		return &WebhookMetrics{}
	}
	events := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "webhook_events_total",
		Help: "Billing webhook deliveries by event type and outcome.",
	}, []string{"event_type", "outcome"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "webhook_handler_duration_seconds",
		Help:    "Duration of billing webhook handlers in seconds.",
		Buckets: prometheus.DefBuckets,
	}, []string{"event_type"})
	reg.MustRegister(events, duration)
	return &WebhookMetrics{events: events, duration: duration}
}

// IncEvent counts a delivery with the given outcome.
func (w *WebhookMetrics) IncEvent(eventType, outcome string) {
	if w == nil || w.events == nil {
		return
	}
	w.events.WithLabelValues(eventTypeLabel(eventType), normalizeLabel(outcome)).Inc()
}

// ObserveDuration records how long a handler ran.
func (w *WebhookMetrics) ObserveDuration(eventType string, d time.Duration) {
	if w == nil || w.duration == nil {
		return
	}
	w.duration.WithLabelValues(eventTypeLabel(eventType)).Observe(d.Seconds())
}

// MembershipMetrics counts lifecycle transitions applied outside the webhook.
type MembershipMetrics struct {
	expirations *prometheus.CounterVec
}

// NewMembershipMetrics registers the membership metrics on the provided registerer.
func NewMembershipMetrics(reg prometheus.Registerer) *MembershipMetrics {
	if reg == nil {
		return &MembershipMetrics{}
	}
	expirations := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "membership_expirations_total",
		Help: "Memberships moved to expired, by source.",
	}, []string{"source"})
	reg.MustRegister(expirations)
	return &MembershipMetrics{expirations: expirations}
}

// IncExpiration counts one expired membership.
func (m *MembershipMetrics) IncExpiration(source string) {
	if m == nil || m.expirations == nil {
		return
	}
	m.expirations.WithLabelValues(normalizeLabel(source)).Inc()
}
