package enums

// SubscriptionEventType labels a row in the subscription audit log.
type SubscriptionEventType string

const (
	SubscriptionEventCreated              SubscriptionEventType = "created"
	SubscriptionEventCanceled             SubscriptionEventType = "canceled"
	SubscriptionEventUpdated              SubscriptionEventType = "updated"
	SubscriptionEventPaymentFailed        SubscriptionEventType = "payment_failed"
	SubscriptionEventAccessExpiredOnLogin SubscriptionEventType = "access_expired_on_login"
)

// String implements fmt.Stringer.
func (t SubscriptionEventType) String() string {
	return string(t)
}

// IsValid reports whether the value is known.
func (t SubscriptionEventType) IsValid() bool {
	switch t {
	case SubscriptionEventCreated,
		SubscriptionEventCanceled,
		SubscriptionEventUpdated,
		SubscriptionEventPaymentFailed,
		SubscriptionEventAccessExpiredOnLogin:
		return true
	}
	return false
}

// EventSource records which path produced an audit row.
type EventSource string

const (
	EventSourceWebhook EventSource = "webhook"
	EventSourceSession EventSource = "session"
	EventSourceSweep   EventSource = "sweep"
)
