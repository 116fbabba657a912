package conversation

import (
	"context"
	"time"

	"github.com/chadiek/rice-call-gateway/internal/tools"
)

// Effect is a side effect the machine asks its owner to perform.
type Effect interface{ effect() }

// Prompt asks for text to be spoken verbatim to the caller.
type Prompt struct{ Text string }

// InquiryUpdate carries the current order requirements for the call log.
type InquiryUpdate struct {
	Brand           string
	WeightKg        float64
	DeliveryAddress string
	DeliveryDate    string
	Note            string
}

type ToolKind string

const (
	ToolStock    ToolKind = "stock"
	ToolPrice    ToolKind = "price"
	ToolDelivery ToolKind = "delivery"
	ToolOrder    ToolKind = "order"
)

// ToolCall must be executed off the call loop; the result comes back through OnToolResult.
type ToolCall struct {
	Kind      ToolKind
	ProductID string
	Address   string
	Order     tools.OrderPayload
	Delay     time.Duration // wait before calling (order retry backoff)
}

type TimerKind string

const (
	TimerSilence TimerKind = "silence"
	TimerNoHear  TimerKind = "nohear"
)

// StartTimer schedules OnTimer(Timer) after the duration, replacing a running timer of the same kind.
type StartTimer struct {
	Timer TimerKind
	After time.Duration
}

// StopTimers cancels every conversation timer.
type StopTimers struct{}

// Transition reports a state change.
type Transition struct {
	From, To State
	Reason   string
}

func (Prompt) effect()        {}
func (InquiryUpdate) effect() {}
func (ToolCall) effect()      {}
func (StartTimer) effect()    {}
func (StopTimers) effect()    {}
func (Transition) effect()    {}

// ToolResult is the outcome of a ToolCall.
type ToolResult struct {
	Kind     ToolKind
	Stock    tools.Stock
	Price    tools.Price
	Delivery tools.Delivery
	Order    tools.Order
	Err      error
}

// ToolClient is the subset of the tool API the dialogue needs.
type ToolClient interface {
	GetStock(ctx context.Context, productID string) (tools.Stock, error)
	GetPrice(ctx context.Context, productID string) (tools.Price, error)
	GetDeliveryDate(ctx context.Context, productID, address string) (tools.Delivery, error)
	SaveOrder(ctx context.Context, payload tools.OrderPayload) (tools.Order, error)
}

// Execute performs call against c, honouring call.Delay and ctx cancellation.
func Execute(ctx context.Context, c ToolClient, call ToolCall) ToolResult {
	res := ToolResult{Kind: call.Kind}
	if call.Delay > 0 {
		t := time.NewTimer(call.Delay)
		select {
		case <-ctx.Done():
			t.Stop()
			res.Err = ctx.Err()
			return res
		case <-t.C:
		}
	}
	switch call.Kind {
	case ToolStock:
		res.Stock, res.Err = c.GetStock(ctx, call.ProductID)
	case ToolPrice:
		res.Price, res.Err = c.GetPrice(ctx, call.ProductID)
	case ToolDelivery:
		res.Delivery, res.Err = c.GetDeliveryDate(ctx, call.ProductID, call.Address)
	case ToolOrder:
		res.Order, res.Err = c.SaveOrder(ctx, call.Order)
	}
	return res
}
