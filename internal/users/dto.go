package users

import (
	"time"

	"github.com/angelmondragon/yogaflow-backend/pkg/instant"
)

// UserDTO is the session payload returned to the member.
type UserDTO struct {
	ID                 string     `json:"id"`
	Email              string     `json:"email"`
	ActiveMember       bool       `json:"active_member"`
	SubscriptionStatus string     `json:"subscription_status"`
	WillRenew          bool       `json:"will_renew"`
	SubscriptionEndsAt *time.Time `json:"subscription_ends_at,omitempty"`
	CanceledAt         *time.Time `json:"canceled_at,omitempty"`
	ExpiredAt          *time.Time `json:"expired_at,omitempty"`
	LastPaymentFailed  bool       `json:"last_payment_failed"`
	MonthsPaid         int        `json:"months_paid"`
	MinutesWatched     float64    `json:"minutes_watched"`
}

// FromModel maps the stored user onto the session payload.
func FromModel(u *User) *UserDTO {
	if u == nil {
		return nil
	}
	status := string(u.SubscriptionStatus)
	if status == "" {
		status = "none"
	}
	dto := &UserDTO{
		ID:                 u.ID,
		Email:              u.Email,
		ActiveMember:       u.ActiveMember,
		SubscriptionStatus: status,
		WillRenew:          u.WillRenew,
		SubscriptionEndsAt: timePtr(u.SubscriptionEndsAt),
		CanceledAt:         timePtr(u.CanceledAt),
		ExpiredAt:          timePtr(u.ExpiredAt),
		LastPaymentFailed:  u.LastPaymentFailed,
	}
	if u.Analytics != nil {
		dto.MonthsPaid = int(u.Analytics.MonthsPaid)
		dto.MinutesWatched = u.Analytics.MinutesWatched
	}
	return dto
}

func timePtr(t *instant.Time) *time.Time {
	if !t.Valid() {
		return nil
	}
	v := t.Time.UTC()
	return &v
}
