package subscriptionevents

import (
	"encoding/json"

	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// Collection is the append-only subscription audit log.
const Collection = "subscription_events"

// Event is one audit row. Rows are never updated or deleted.
type Event struct {
	ID                string                      `json:"-"`
	UserID            string                      `json:"userId"`
	SubscriptionID    string                      `json:"subscriptionId,omitempty"`
	EventType         enums.SubscriptionEventType `json:"eventType"`
	NewStatus         string                      `json:"newStatus,omitempty"`
	CancelAtPeriodEnd *bool                       `json:"cancelAtPeriodEnd,omitempty"`
	AccessEndsAt      *instant.Time               `json:"accessEndsAt,omitempty"`
	ExpiredAt         *instant.Time               `json:"expiredAt,omitempty"`
	OriginalEndDate   *instant.Time               `json:"originalEndDate,omitempty"`
	Source            enums.EventSource           `json:"source,omitempty"`
	ProcessedAt       instant.Time                `json:"processedAt"`
	Payload           json.RawMessage             `json:"payload,omitempty"`
}
