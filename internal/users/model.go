package users

import (
	"github.com/angelmondragon/yogaflow-backend/pkg/enums"
	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// Collection holds one document per account, keyed by the identity provider's user id.
const Collection = "users"

// Document field names written by the reconciliation handlers.
const (
	FieldEmail               = "email"
	FieldPolarCustomerID     = "polarCustomerId"
	FieldSubscriptionID      = "subscriptionId"
	FieldLastOrderID         = "lastOrderId"
	FieldActiveMember        = "activeMember"
	FieldSubscriptionStatus  = "subscriptionStatus"
	FieldWillRenew           = "willRenew"
	FieldSubscriptionEndsAt  = "subscriptionEndsAt"
	FieldCanceledAt          = "canceledAt"
	FieldExpiredAt           = "expiredAt"
	FieldUpdatedAt           = "updatedAt"
	FieldWebhookProcessedAt  = "webhookProcessedAt"
	FieldLastPaymentFailed   = "lastPaymentFailed"
	FieldLastPaymentFailedAt = "lastPaymentFailedAt"
	FieldAnalytics           = "analytics"
	FieldMonthsPaid          = "analytics.monthsPaid"
	FieldLastSession         = "analytics.lastSession"
)

// User is the root aggregate for a member's access state.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`

	PolarCustomerID string `json:"polarCustomerId,omitempty"`
	SubscriptionID  string `json:"subscriptionId,omitempty"`
	LastOrderID     string `json:"lastOrderId,omitempty"`

	ActiveMember       bool                     `json:"activeMember"`
	SubscriptionStatus enums.SubscriptionStatus `json:"subscriptionStatus,omitempty"`
	WillRenew          bool                     `json:"willRenew"`

	SubscriptionEndsAt  *instant.Time `json:"subscriptionEndsAt,omitempty"`
	CanceledAt          *instant.Time `json:"canceledAt,omitempty"`
	ExpiredAt           *instant.Time `json:"expiredAt,omitempty"`
	UpdatedAt           *instant.Time `json:"updatedAt,omitempty"`
	WebhookProcessedAt  *instant.Time `json:"webhookProcessedAt,omitempty"`
	LastPaymentFailed   bool          `json:"lastPaymentFailed"`
	LastPaymentFailedAt *instant.Time `json:"lastPaymentFailedAt,omitempty"`

	Analytics *Analytics `json:"analytics,omitempty"`
}

// Analytics is the optional usage sub-document.
type Analytics struct {
	MonthsPaid     float64       `json:"monthsPaid"`
	MinutesWatched float64       `json:"minutesWatched"`
	LastSession    *instant.Time `json:"lastSession,omitempty"`
}

// InGracePeriod reports whether the member still has access after cancelling.
func (u *User) InGracePeriod() bool {
	return u != nil && u.ActiveMember && u.SubscriptionStatus == enums.SubscriptionStatusCanceled
}
