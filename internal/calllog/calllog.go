package calllog

import (
	"context"
	"errors"
	"time"
)

// ErrNoID is returned when a backend accepts a call but reports no id for it.
var ErrNoID = errors.New("calllog: create call returned no id")

// Call opens a call log row.
type Call struct {
	StartedAt       time.Time `json:"started_at"`
	FromNumber      string    `json:"from_number,omitempty"`
	ToNumber        *string   `json:"to_number"`
	CallType        string    `json:"call_type"`
	Status          string    `json:"status"`
	Provider        string    `json:"provider"`
	ProviderCallSid string    `json:"provider_call_sid,omitempty"`
}

// CallUpdate closes a call log row.
type CallUpdate struct {
	EndedAt     time.Time `json:"ended_at"`
	DurationSec *int      `json:"duration_sec"`
	Status      string    `json:"status"`
}

// Message is one utterance, either "user" or "assistant".
type Message struct {
	Role      string    `json:"role"`
	Content   string    `json:"content"`
	StartedAt time.Time `json:"started_at"`
	EndedAt   time.Time `json:"ended_at"`
}

// Inquiry is the rice order slot snapshot for a call; upserted by call id.
type Inquiry struct {
	CallID          string   `json:"call_id"`
	Brand           *string  `json:"brand"`
	WeightKg        *float64 `json:"weight_kg"`
	DeliveryAddress *string  `json:"delivery_address"`
	DeliveryDate    *string  `json:"delivery_date"`
	Note            *string  `json:"note"`
}

// Store persists call logs. Implementations must be safe for concurrent use.
type Store interface {
	CreateCall(ctx context.Context, c Call) (string, error)
	UpdateCall(ctx context.Context, id string, u CallUpdate) error
	AppendMessage(ctx context.Context, id string, m Message) error
	UpsertInquiry(ctx context.Context, in Inquiry) error
}

// Nop discards everything.
type Nop struct{}

func (Nop) CreateCall(context.Context, Call) (string, error)     { return "", nil }
func (Nop) UpdateCall(context.Context, string, CallUpdate) error { return nil }
func (Nop) AppendMessage(context.Context, string, Message) error { return nil }
func (Nop) UpsertInquiry(context.Context, Inquiry) error         { return nil }

func optional(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NewInquiry fills the nullable columns from plain values; zero values become null.
func NewInquiry(callID, brand string, weightKg float64, address, date, note string) Inquiry {
	in := Inquiry{
		CallID:          callID,
		Brand:           optional(brand),
		DeliveryAddress: optional(address),
		DeliveryDate:    optional(date),
		Note:            optional(note),
	}
	if weightKg > 0 {
		in.WeightKg = &weightKg
	}
	return in
}
