package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

var ErrItemNotFound = errors.New("catalog item not found")

// Item is the slice of menu metadata the engine needs when it snapshots a
// cart at completion time. The catalog service owns everything else.
type Item struct {
	ItemRef   string  `json:"item_ref"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Available bool    `json:"is_available"`
}

// Resolver looks up pricing and names for opaque item refs.
type Resolver interface {
	Resolve(ctx context.Context, refs []string) (map[string]Item, error)
}

// HTTPResolver resolves items against the menu catalog service.
type HTTPResolver struct {
	baseURL string
	client  *http.Client
}

func NewHTTPResolver(baseURL string, timeout time.Duration) *HTTPResolver {
	return &HTTPResolver{
		baseURL: strings.TrimRight(baseURL, "/"),
		client:  &http.Client{Timeout: timeout},
	}
}

func (r *HTTPResolver) Resolve(ctx context.Context, refs []string) (map[string]Item, error) {
	if len(refs) == 0 {
		return map[string]Item{}, nil
	}

	endpoint := fmt.Sprintf("%s/api/menu-items?refs=%s", r.baseURL, url.QueryEscape(strings.Join(refs, ",")))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build catalog request: %w", err)
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("catalog request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("catalog responded with status %d", resp.StatusCode)
	}

	var items []Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decode catalog response: %w", err)
	}

	out := make(map[string]Item, len(items))
	for _, item := range items {
		out[item.ItemRef] = item
	}
	for _, ref := range refs {
		if _, ok := out[ref]; !ok {
			return nil, fmt.Errorf("%w: %s", ErrItemNotFound, ref)
		}
	}
	return out, nil
}
