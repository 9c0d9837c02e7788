package cache

import (
	"context"
	"errors"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
)

type CartCache interface {
	Get(ctx context.Context, accountID string) (*domain.Cart, error)
	Set(ctx context.Context, accountID string, cart *domain.Cart) error
	Delete(ctx context.Context, accountID string) error
}

var ErrCacheMiss = errors.New("cache miss")
