package tools

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

// ErrNotConfigured is returned when neither a remote endpoint nor an inventory can answer.
var ErrNotConfigured = errors.New("tools: TOOL_BASE_URL is not configured")

// StatusError is a non-2xx reply from the tool API.
type StatusError struct {
	Op     string
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("tool %s error: status=%d body=%s", e.Op, e.Status, e.Body)
}

type Stock struct {
	Available bool
	Quantity  *int
}

type Price struct {
	Price    float64
	Currency string
}

type Delivery struct {
	DeliveryDate string
}

// OrderPayload is what gets persisted when the caller confirms.
type OrderPayload struct {
	ProductID     string  `json:"productId"`
	Price         float64 `json:"price"`
	DeliveryDate  string  `json:"deliveryDate"`
	Address       string  `json:"address"`
	CustomerPhone string  `json:"customerPhone"`
	Timestamp     string  `json:"timestamp"`
}

type Order struct {
	OrderID string
	Status  string
}

// Timeouts bound each tool request.
type Timeouts struct {
	Stock    time.Duration
	Price    time.Duration
	Delivery time.Duration
	Order    time.Duration
}

// DefaultTimeouts mirror the deployment defaults.
func DefaultTimeouts() Timeouts {
	return Timeouts{Stock: 4 * time.Second, Price: 4 * time.Second, Delivery: 6 * time.Second, Order: 4 * time.Second}
}

// Client talks to the stock/price/delivery/order API and falls back to a
// local inventory when the API is absent or failing. Safe for concurrent use.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	Timeouts   Timeouts
	Inventory  *Inventory
	Log        logrus.FieldLogger
	// OnResult observes every call with op and outcome ("remote", "fallback", "error").
	OnResult func(op, outcome string)
	now      func() time.Time
}

func NewClient(baseURL string, timeouts Timeouts, inv *Inventory) *Client {
	return &Client{
		HTTPClient: &http.Client{},
		BaseURL:    strings.TrimRight(baseURL, "/"),
		Timeouts:   timeouts,
		Inventory:  inv,
		Log:        logrus.StandardLogger(),
		now:        time.Now,
	}
}

func (c *Client) clock() time.Time {
	if c.now != nil {
		return c.now()
	}
	return time.Now()
}

func (c *Client) observe(op, outcome string) {
	if c.OnResult != nil {
		c.OnResult(op, outcome)
	}
}

func (c *Client) post(ctx context.Context, op, path string, timeout time.Duration, in, out interface{}) error {
	if c.BaseURL == "" {
		return ErrNotConfigured
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	body, err := json.Marshal(in)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("tool %s: %w", op, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return &StatusError{Op: op, Status: resp.StatusCode, Body: string(b)}
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("tool %s: decode: %w", op, err)
	}
	return nil
}

// fallback logs the remote failure and reports whether the inventory can answer.
func (c *Client) fallback(op string, err error) bool {
	if c.Inventory == nil {
		return false
	}
	if !errors.Is(err, ErrNotConfigured) {
		c.Log.WithError(err).WithField("op", op).Warn("tool request failed, answering from inventory")
	}
	return true
}

func (c *Client) GetStock(ctx context.Context, productID string) (Stock, error) {
	var r struct {
		Available *bool `json:"available"`
		Quantity  *int  `json:"quantity"`
	}
	err := c.post(ctx, "stock", "/tools/stock", c.Timeouts.Stock, map[string]string{"productId": productID}, &r)
	if err == nil && r.Available == nil {
		err = fmt.Errorf("tool stock: response missing available")
	}
	if err == nil {
		c.observe("stock", "remote")
		return Stock{Available: *r.Available, Quantity: r.Quantity}, nil
	}
	if !c.fallback("stock", err) {
		c.observe("stock", "error")
		return Stock{}, err
	}
	s, ierr := c.Inventory.Stock(productID)
	c.observe("stock", outcome(ierr))
	return s, ierr
}

func (c *Client) GetPrice(ctx context.Context, productID string) (Price, error) {
	var r struct {
		Price    *float64 `json:"price"`
		Currency string   `json:"currency"`
	}
	err := c.post(ctx, "price", "/tools/price", c.Timeouts.Price, map[string]string{"productId": productID}, &r)
	if err == nil && r.Price == nil {
		err = fmt.Errorf("tool price: response missing price")
	}
	if err == nil {
		c.observe("price", "remote")
		return Price{Price: *r.Price, Currency: r.Currency}, nil
	}
	if !c.fallback("price", err) {
		c.observe("price", "error")
		return Price{}, err
	}
	p, ierr := c.Inventory.Price(productID)
	c.observe("price", outcome(ierr))
	return p, ierr
}

func (c *Client) GetDeliveryDate(ctx context.Context, productID, address string) (Delivery, error) {
	var r struct {
		DeliveryDate *string `json:"deliveryDate"`
	}
	in := map[string]string{"productId": productID, "address": address}
	err := c.post(ctx, "delivery", "/tools/delivery-date", c.Timeouts.Delivery, in, &r)
	if err == nil && r.DeliveryDate == nil {
		err = fmt.Errorf("tool delivery: response missing deliveryDate")
	}
	if err == nil {
		c.observe("delivery", "remote")
		return Delivery{DeliveryDate: *r.DeliveryDate}, nil
	}
	if !c.fallback("delivery", err) {
		c.observe("delivery", "error")
		return Delivery{}, err
	}
	d, ierr := c.Inventory.Delivery(productID, c.clock())
	c.observe("delivery", outcome(ierr))
	return d, ierr
}

func (c *Client) SaveOrder(ctx context.Context, payload OrderPayload) (Order, error) {
	var r struct {
		OrderID *string `json:"orderId"`
		Status  string  `json:"status"`
	}
	err := c.post(ctx, "order", "/tools/orders", c.Timeouts.Order, payload, &r)
	if err == nil && r.OrderID == nil {
		err = fmt.Errorf("tool order: response missing orderId")
	}
	if err == nil {
		c.observe("order", "remote")
		return Order{OrderID: *r.OrderID, Status: r.Status}, nil
	}
	if !c.fallback("order", err) {
		c.observe("order", "error")
		return Order{}, err
	}
	c.observe("order", "fallback")
	return Order{OrderID: fmt.Sprintf("LOCAL-%d", c.clock().UnixMilli()), Status: "accepted"}, nil
}

func outcome(err error) string {
	if err != nil {
		return "error"
	}
	return "fallback"
}
