package polar

import "errors"

var (
	// ErrMissingCustomerEmail is returned when an order.paid event has no customer email.
	ErrMissingCustomerEmail = errors.New("customer email missing")
	// ErrMissingOrderID is returned when an order.paid event has no provider order id.
	ErrMissingOrderID = errors.New("provider order id missing")
	// ErrMissingSubscriptionID is returned when a subscription.canceled event has no id.
	ErrMissingSubscriptionID = errors.New("subscription id missing")
	// ErrUserNotFound is returned when no user matches a paying or canceling customer.
	ErrUserNotFound = errors.New("user not found")
	// ErrInvalidPayload is returned when the webhook body cannot be decoded.
	ErrInvalidPayload = errors.New("invalid webhook payload")
)
