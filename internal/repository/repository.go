package repository

import (
	"context"
	"errors"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
)

var (
	ErrCartNotFound  = errors.New("cart not found")
	ErrLeaseNotFound = errors.New("lease not found")
)

// CartRepository persists the canonical cart per account.
// Consumers define this interface, not the MongoDB implementation.
type CartRepository interface {
	GetCart(ctx context.Context, accountID string) (*domain.Cart, error)
	UpsertCart(ctx context.Context, cart *domain.Cart) error
}

// LeaseRepository persists the checkout lease per account. A missing row
// means no checkout is in progress.
type LeaseRepository interface {
	GetLease(ctx context.Context, accountID string) (*domain.Lease, error)
	UpsertLease(ctx context.Context, lease *domain.Lease) error
	DeleteLease(ctx context.Context, accountID string) error
}
