package engine

import (
	"context"
	"errors"
	"log"
	"sync"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/cache"
	"github.com/ar363/restaurant-live-ordering/internal/catalog"
	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/ar363/restaurant-live-ordering/internal/orders"
	"github.com/ar363/restaurant-live-ordering/internal/repository"
	"golang.org/x/sync/singleflight"
)

// DefaultLeaseTTL is how long a checkout lease survives without a heartbeat.
// Owning devices heartbeat roughly every 15s, so three missed intervals
// exceed the TTL and the lease is treated as abandoned.
const DefaultLeaseTTL = 60 * time.Second

// Broadcaster fans an event out to every live device of an account.
type Broadcaster interface {
	Broadcast(accountID string, event any)
}

// Engine owns the authoritative cart and checkout lease for every account.
// All mutating operations for one account run under that account's lock, so
// concurrent submissions from different devices serialize while unrelated
// accounts proceed in parallel.
type Engine struct {
	carts     repository.CartRepository
	leases    repository.LeaseRepository
	cache     cache.CartCache
	broadcast Broadcaster
	creator   orders.Creator
	resolver  catalog.Resolver
	publisher orders.EventPublisher // optional

	leaseTTL time.Duration
	now      func() time.Time

	mu       sync.Mutex
	accounts map[string]*accountState
	sfg      singleflight.Group
}

// accountState is the serialized domain for one account: its cart, its
// lease, and the lock every mutation must hold.
type accountState struct {
	mu          sync.Mutex
	cart        *domain.Cart
	lease       *domain.Lease // nil when no checkout is in progress
	leaseLoaded bool
}

type Option func(*Engine)

func WithLeaseTTL(ttl time.Duration) Option {
	return func(e *Engine) { e.leaseTTL = ttl }
}

// WithEventPublisher wires the optional order-placed broker feed.
func WithEventPublisher(p orders.EventPublisher) Option {
	return func(e *Engine) { e.publisher = p }
}

func New(
	carts repository.CartRepository,
	leases repository.LeaseRepository,
	cartCache cache.CartCache,
	broadcast Broadcaster,
	creator orders.Creator,
	resolver catalog.Resolver,
	opts ...Option,
) *Engine {
	e := &Engine{
		carts:     carts,
		leases:    leases,
		cache:     cartCache,
		broadcast: broadcast,
		creator:   creator,
		resolver:  resolver,
		leaseTTL:  DefaultLeaseTTL,
		now:       time.Now,
		accounts:  make(map[string]*accountState),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

func (e *Engine) account(accountID string) *accountState {
	e.mu.Lock()
	defer e.mu.Unlock()
	st, ok := e.accounts[accountID]
	if !ok {
		st = &accountState{}
		e.accounts[accountID] = st
	}
	return st
}

// loadCartLocked fetches the cart from the repository on first access.
// A missing cart is a fresh empty cart at version 0; carts are created
// lazily and never destroyed. Caller must hold st.mu.
func (e *Engine) loadCartLocked(ctx context.Context, st *accountState, accountID string) error {
	if st.cart != nil {
		return nil
	}
	cart, err := e.carts.GetCart(ctx, accountID)
	if err != nil {
		if errors.Is(err, repository.ErrCartNotFound) {
			st.cart = &domain.Cart{AccountID: accountID}
			return nil
		}
		return err
	}
	st.cart = cart
	return nil
}

// nextVersion returns a server-stamped version strictly greater than the
// current one. Client clocks are never trusted for the stored version.
func (e *Engine) nextVersion(current int64) int64 {
	v := e.now().UnixMilli()
	if v <= current {
		v = current + 1
	}
	return v
}

// CartStatus returns the canonical cart, serving repeated reads from the
// cache. Concurrent misses for the same account collapse via singleflight.
func (e *Engine) CartStatus(ctx context.Context, accountID string) (*domain.Cart, error) {
	v, err, _ := e.sfg.Do(accountID, func() (interface{}, error) {
		cart, err := e.cache.Get(ctx, accountID)
		if err == nil {
			return cart, nil
		}
		if !errors.Is(err, cache.ErrCacheMiss) {
			log.Printf("cache get error: %v", err) // log cache error but continue
		}

		st := e.account(accountID)
		st.mu.Lock()
		defer st.mu.Unlock()
		if err := e.loadCartLocked(ctx, st, accountID); err != nil {
			return nil, err
		}
		snapshot := st.cart.Clone()

		// Fill the cache while still holding the account lock, so a
		// concurrent submission cannot slip its invalidation between the
		// snapshot and the fill and leave a stale entry behind.
		setCtx, cancel := context.WithTimeout(ctx, time.Second)
		defer cancel()
		if errSet := e.cache.Set(setCtx, accountID, snapshot); errSet != nil {
			log.Printf("cache set error: %v", errSet)
		}

		return snapshot, nil
	})
	if err != nil {
		return nil, err
	}
	return v.(*domain.Cart), nil
}

// SubmitCart reconciles a device's cart submission against the stored cart
// with a last-write-wins rule and reports whether it was applied:
//
//	version >  stored: submission wins; lines replaced, version restamped
//	version == stored: idempotent echo, stored state returned unchanged
//	version <  stored: stale, stored state returned so the device corrects
//
// Accepted submissions are broadcast to every device of the account,
// including the submitter.
func (e *Engine) SubmitCart(ctx context.Context, accountID, deviceID string, lines []domain.CartLine, version int64) (*domain.Cart, bool, error) {
	st := e.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if err := e.loadCartLocked(ctx, st, accountID); err != nil {
		return nil, false, err
	}

	if version <= st.cart.Version {
		// Idempotent resubmission or stale write; either way the stored
		// state is canonical and the caller self-corrects from it.
		return st.cart.Clone(), false, nil
	}

	updated := &domain.Cart{
		AccountID: accountID,
		Lines:     domain.NormalizeLines(lines),
		Version:   e.nextVersion(st.cart.Version),
	}
	if err := e.carts.UpsertCart(ctx, updated); err != nil {
		return nil, false, err
	}
	st.cart = updated

	e.invalidateCache(accountID)
	e.broadcast.Broadcast(accountID, domain.NewCartUpdateEvent(updated))

	return updated.Clone(), true, nil
}

// clearCartLocked empties the cart after a completed checkout. Caller must
// hold st.mu and have the cart loaded.
func (e *Engine) clearCartLocked(ctx context.Context, st *accountState, accountID string) {
	cleared := &domain.Cart{
		AccountID: accountID,
		Lines:     []domain.CartLine{},
		Version:   e.nextVersion(st.cart.Version),
	}
	if err := e.carts.UpsertCart(ctx, cleared); err != nil {
		// The order is already committed; the next submission will converge.
		log.Printf("failed to clear cart for account %s: %v", accountID, err)
		return
	}
	st.cart = cleared
	e.invalidateCache(accountID)
	e.broadcast.Broadcast(accountID, domain.NewCartUpdateEvent(cleared))
}

func (e *Engine) invalidateCache(accountID string) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := e.cache.Delete(ctx, accountID); err != nil {
		log.Printf("cache invalidate error: %v", err)
	}
}
