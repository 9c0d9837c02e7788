package orders

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ar363/restaurant-live-ordering/internal/domain"
	"github.com/sony/gobreaker/v2"
)

// Line is a cart line priced at completion time.
type Line struct {
	ItemRef      string  `json:"item_ref"`
	Name         string  `json:"name"`
	Quantity     int     `json:"quantity"`
	PriceAtOrder float64 `json:"price_at_order"`
	Subtotal     float64 `json:"subtotal"`
}

// Order is the finalized checkout handed to the order persistence service.
type Order struct {
	AccountID           string               `json:"account_id"`
	TableNumber         int                  `json:"table_number"`
	Lines               []Line               `json:"lines"`
	PaymentMethod       domain.PaymentMethod `json:"payment_method"`
	SpecialInstructions string               `json:"special_instructions"`
	TotalAmount         float64              `json:"total_amount"`
}

// Creator hands a finalized order to the external order service and returns
// the created order's identifier.
type Creator interface {
	Create(ctx context.Context, order *Order) (string, error)
}

// HTTPCreator posts orders to the order service. Calls run through a
// circuit breaker so a struggling order service fails fast instead of
// holding checkout requests open.
type HTTPCreator struct {
	baseURL string
	client  *http.Client
	cb      *gobreaker.CircuitBreaker[string]
}

func NewHTTPCreator(baseURL string, timeout time.Duration) *HTTPCreator {
	cb := gobreaker.NewCircuitBreaker[string](gobreaker.Settings{
		Name:        "order-creator",
		MaxRequests: 3,
		Timeout:     30 * time.Second,
	})
	return &HTTPCreator{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		cb:      cb,
	}
}

type createOrderResponse struct {
	OrderID string `json:"order_id"`
}

func (c *HTTPCreator) Create(ctx context.Context, order *Order) (string, error) {
	return c.cb.Execute(func() (string, error) {
		body, err := json.Marshal(order)
		if err != nil {
			return "", fmt.Errorf("marshal order: %w", err)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/orders", bytes.NewReader(body))
		if err != nil {
			return "", fmt.Errorf("build order request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")

		resp, err := c.client.Do(req)
		if err != nil {
			return "", fmt.Errorf("order request failed: %w", err)
		}
		defer resp.Body.Close()

		if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
			return "", fmt.Errorf("order service responded with status %d", resp.StatusCode)
		}

		var created createOrderResponse
		if err := json.NewDecoder(resp.Body).Decode(&created); err != nil {
			return "", fmt.Errorf("decode order response: %w", err)
		}
		if created.OrderID == "" {
			return "", fmt.Errorf("order service returned an empty order id")
		}
		return created.OrderID, nil
	})
}
