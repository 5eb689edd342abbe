package orders

import "github.com/angelmondragon/yogaflow-backend/pkg/instant"

// Collection holds one document per provider order, keyed by the provider order id.
const Collection = "orders"

// Order records a paid billing-provider order.
type Order struct {
	ID              string        `json:"-"`
	UserID          string        `json:"userId"`
	PolarOrderID    string        `json:"polarOrderId"`
	PolarCustomerID string        `json:"polarCustomerId,omitempty"`
	Status          string        `json:"status,omitempty"`
	Amount          int64         `json:"amount"`
	Currency        string        `json:"currency,omitempty"`
	SubscriptionID  string        `json:"subscriptionId,omitempty"`
	CreatedAt       *instant.Time `json:"createdAt,omitempty"`
	PaidAt          *instant.Time `json:"paidAt,omitempty"`
	UpdatedAt       *instant.Time `json:"updatedAt,omitempty"`
	Processed       bool          `json:"processed"`
}
