package domain

import "time"

// PaymentMethod is the payment option chosen during checkout.
type PaymentMethod string

const (
	PaymentUnselected PaymentMethod = "unselected"
	PaymentUPI        PaymentMethod = "upi"
	PaymentCard       PaymentMethod = "card"
	PaymentCash       PaymentMethod = "cash"
)

func (m PaymentMethod) Valid() bool {
	switch m {
	case PaymentUnselected, PaymentUPI, PaymentCard, PaymentCash:
		return true
	}
	return false
}

// Selected reports whether a concrete method has been chosen.
func (m PaymentMethod) Selected() bool {
	return m.Valid() && m != PaymentUnselected
}

// LeaseState is the checkout state machine position for one account.
type LeaseState string

const (
	LeaseIdle   LeaseState = "idle"
	LeaseActive LeaseState = "active"
)

// Lease is the time-bounded exclusive ownership token for the checkout step
// of one account. At most one lease exists per account at any instant; only
// the owning device may mutate it or complete the order.
type Lease struct {
	AccountID           string        `json:"account_id"`
	OwnerDeviceID       string        `json:"owner_device_id"`
	PaymentMethod       PaymentMethod `json:"payment_method"`
	SpecialInstructions string        `json:"special_instructions"`
	State               LeaseState    `json:"state"`
	LeaseExpiry         time.Time     `json:"lease_expiry"`
}

// Expired reports whether the lease has outlived its TTL at the given time.
func (l *Lease) Expired(now time.Time) bool {
	return now.After(l.LeaseExpiry)
}

func (l *Lease) Clone() *Lease {
	if l == nil {
		return nil
	}
	out := *l
	return &out
}

// IdleLease is the canonical "no checkout in progress" view for an account.
func IdleLease(accountID string) *Lease {
	return &Lease{
		AccountID:     accountID,
		PaymentMethod: PaymentUnselected,
		State:         LeaseIdle,
	}
}
