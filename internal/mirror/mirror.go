package mirror

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/asaskevich/EventBus"
	"go.uber.org/zap"

	"motormods/backend/internal/domain"
	"motormods/backend/internal/metrics"
)

// Event topics. Publishers fire and forget; a push that fails is logged and
// counted but never bubbles back into the sale path.
const (
	TopicProductSync   = "mirror:product:sync"
	TopicProductDelete = "mirror:product:delete"
)

type Client interface {
	SyncProduct(ctx context.Context, product domain.Product) error
	DeleteProduct(ctx context.Context, productID string) error
}

type HTTPClient struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

func NewHTTPClient(baseURL string, apiKey string) *HTTPClient {
	return &HTTPClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

func (c *HTTPClient) SyncProduct(ctx context.Context, product domain.Product) error {
	payload, err := json.Marshal(product)
	if err != nil {
		return err
	}
	return c.do(ctx, http.MethodPut, "/v1/products/"+product.ID, payload)
}

func (c *HTTPClient) DeleteProduct(ctx context.Context, productID string) error {
	return c.do(ctx, http.MethodDelete, "/v1/products/"+productID, nil)
}

func (c *HTTPClient) do(ctx context.Context, method string, path string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		return fmt.Errorf("mirror: %s %s: status %d", method, path, resp.StatusCode)
	}
	return nil
}

// Pusher subscribes to the mirror topics and forwards changes to the cloud
// copy in the background.
type Pusher struct {
	bus     EventBus.Bus
	client  Client
	timeout time.Duration
}

func NewPusher(bus EventBus.Bus, client Client) (*Pusher, error) {
	p := &Pusher{bus: bus, client: client, timeout: 15 * time.Second}
	if err := bus.SubscribeAsync(TopicProductSync, p.onProductSync, false); err != nil {
		return nil, err
	}
	if err := bus.SubscribeAsync(TopicProductDelete, p.onProductDelete, false); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *Pusher) onProductSync(product domain.Product) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.SyncProduct(ctx, product); err != nil {
		metrics.MirrorPushFailuresTotal.Inc()
		zap.L().Warn("mirror push failed",
			zap.String("product_id", product.ID),
			zap.Error(err))
	}
}

func (p *Pusher) onProductDelete(productID string) {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()
	if err := p.client.DeleteProduct(ctx, productID); err != nil {
		metrics.MirrorPushFailuresTotal.Inc()
		zap.L().Warn("mirror delete failed",
			zap.String("product_id", productID),
			zap.Error(err))
	}
}

// Close unsubscribes and drains in-flight pushes.
func (p *Pusher) Close() error {
	_ = p.bus.Unsubscribe(TopicProductSync, p.onProductSync)
	_ = p.bus.Unsubscribe(TopicProductDelete, p.onProductDelete)
	p.bus.WaitAsync()
	return nil
}
