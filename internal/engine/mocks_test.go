package engine

import (
	"context"
	"sync"

	"github.com/ar363/restaurant-live-ordering/internal/cache"
	"github.com/ar363/restaurant-live-ordering/internal/catalog"
	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/ar363/restaurant-live-ordering/internal/orders"
	"github.com/ar363/restaurant-live-ordering/internal/repository"
)

type mockCartRepo struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
	err   error
}

func newMockCartRepo() *mockCartRepo {
	return &mockCartRepo{carts: make(map[string]*domain.Cart)}
}

func (m *mockCartRepo) GetCart(_ context.Context, accountID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	cart, ok := m.carts[accountID]
	if !ok {
		return nil, repository.ErrCartNotFound
	}
	return cart.Clone(), nil
}

func (m *mockCartRepo) UpsertCart(_ context.Context, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.carts[cart.AccountID] = cart.Clone()
	return nil
}

func (m *mockCartRepo) stored(accountID string) *domain.Cart {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.carts[accountID].Clone()
}

type mockLeaseRepo struct {
	m      sync.RWMutex
	leases map[string]*domain.Lease
	err    error
}

func newMockLeaseRepo() *mockLeaseRepo {
	return &mockLeaseRepo{leases: make(map[string]*domain.Lease)}
}

func (m *mockLeaseRepo) GetLease(_ context.Context, accountID string) (*domain.Lease, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	if m.err != nil {
		return nil, m.err
	}
	lease, ok := m.leases[accountID]
	if !ok {
		return nil, repository.ErrLeaseNotFound
	}
	return lease.Clone(), nil
}

func (m *mockLeaseRepo) UpsertLease(_ context.Context, lease *domain.Lease) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.leases[lease.AccountID] = lease.Clone()
	return nil
}

func (m *mockLeaseRepo) DeleteLease(_ context.Context, accountID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	delete(m.leases, accountID)
	return nil
}

func (m *mockLeaseRepo) stored(accountID string) *domain.Lease {
	m.m.RLock()
	defer m.m.RUnlock()
	return m.leases[accountID].Clone()
}

type mockCache struct {
	m     sync.RWMutex
	carts map[string]*domain.Cart
}

func newMockCache() *mockCache {
	return &mockCache{carts: make(map[string]*domain.Cart)}
}

func (m *mockCache) Get(_ context.Context, accountID string) (*domain.Cart, error) {
	m.m.RLock()
	defer m.m.RUnlock()
	cart, ok := m.carts[accountID]
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return cart.Clone(), nil
}

func (m *mockCache) Set(_ context.Context, accountID string, cart *domain.Cart) error {
	m.m.Lock()
	defer m.m.Unlock()
	m.carts[accountID] = cart.Clone()
	return nil
}

func (m *mockCache) Delete(_ context.Context, accountID string) error {
	m.m.Lock()
	defer m.m.Unlock()
	delete(m.carts, accountID)
	return nil
}

// recordingBroadcaster captures every event fanned out per account.
type recordingBroadcaster struct {
	m      sync.Mutex
	events map[string][]any
}

func newRecordingBroadcaster() *recordingBroadcaster {
	return &recordingBroadcaster{events: make(map[string][]any)}
}

func (b *recordingBroadcaster) Broadcast(accountID string, event any) {
	b.m.Lock()
	defer b.m.Unlock()
	b.events[accountID] = append(b.events[accountID], event)
}

func (b *recordingBroadcaster) all(accountID string) []any {
	b.m.Lock()
	defer b.m.Unlock()
	out := make([]any, len(b.events[accountID]))
	copy(out, b.events[accountID])
	return out
}

func (b *recordingBroadcaster) cartUpdates(accountID string) []domain.CartUpdateEvent {
	var out []domain.CartUpdateEvent
	for _, e := range b.all(accountID) {
		if ev, ok := e.(domain.CartUpdateEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (b *recordingBroadcaster) checkoutStatuses(accountID string) []domain.CheckoutStatusEvent {
	var out []domain.CheckoutStatusEvent
	for _, e := range b.all(accountID) {
		if ev, ok := e.(domain.CheckoutStatusEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

func (b *recordingBroadcaster) completions(accountID string) []domain.CheckoutCompleteEvent {
	var out []domain.CheckoutCompleteEvent
	for _, e := range b.all(accountID) {
		if ev, ok := e.(domain.CheckoutCompleteEvent); ok {
			out = append(out, ev)
		}
	}
	return out
}

type mockCreator struct {
	m       sync.Mutex
	orderID string
	err     error
	calls   int
	last    *orders.Order
}

func (m *mockCreator) Create(_ context.Context, order *orders.Order) (string, error) {
	m.m.Lock()
	defer m.m.Unlock()
	m.calls++
	m.last = order
	if m.err != nil {
		return "", m.err
	}
	return m.orderID, nil
}

type mockResolver struct {
	items map[string]catalog.Item
	err   error
}

func (m *mockResolver) Resolve(_ context.Context, refs []string) (map[string]catalog.Item, error) {
	if m.err != nil {
		return nil, m.err
	}
	out := make(map[string]catalog.Item, len(refs))
	for _, ref := range refs {
		if item, ok := m.items[ref]; ok {
			out[ref] = item
		} else {
			out[ref] = catalog.Item{ItemRef: ref, Name: ref, Price: 1, Available: true}
		}
	}
	return out, nil
}

type mockPublisher struct {
	m      sync.Mutex
	events []*orders.PlacedEvent
	err    error
}

func (m *mockPublisher) PublishOrderPlaced(_ context.Context, event *orders.PlacedEvent) error {
	m.m.Lock()
	defer m.m.Unlock()
	if m.err != nil {
		return m.err
	}
	m.events = append(m.events, event)
	return nil
}
