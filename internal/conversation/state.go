package conversation

import (
	"time"

	"github.com/chadiek/rice-call-gateway/internal/catalog"
)

// State is a node of the ordering dialogue.
type State string

const (
	Greeting          State = "Greeting"
	RequirementCheck  State = "RequirementCheck"
	ProductSuggestion State = "ProductSuggestion"
	StockCheck        State = "StockCheck"
	PriceQuote        State = "PriceQuote"
	AddressConfirm    State = "AddressConfirm"
	DeliveryCheck     State = "DeliveryCheck"
	OrderConfirmation State = "OrderConfirmation"
	Closing           State = "Closing"

	// Silence and NoHear always resume into the last interactive state.
	Silence State = "Silence"
	NoHear  State = "NoHear"
)

// Exception reports whether s is a recoverable exception state.
func (s State) Exception() bool { return s == Silence || s == NoHear }

type ClosingReason string

const (
	ClosingSuccess ClosingReason = "success"
	ClosingCancel  ClosingReason = "cancel"
	ClosingError   ClosingReason = "error"
)

// Context holds the slots collected during one call.
type Context struct {
	Category     string
	Product      *catalog.Product
	Price        *float64
	Currency     string
	DeliveryDate string
	Address      string
	RiceBrand    string
	RiceWeightKg float64 // 0 when unknown
	RiceMilling  string
	RiceNote     string

	AddressConfirmed              bool
	AwaitingAddressConfirm        bool
	AwaitingBrandConfirm          bool
	AwaitingWeightChoice          bool
	BrandConfirmed                bool
	AwaitingDeliveryCancelConfirm bool

	CustomerPhone string
	OrderID       string

	SuggestedProductIDs []string

	SilenceRetries  int
	NoHearRetries   int
	DeliveryRetries int
	OrderRetries    int

	ClosingReason ClosingReason
}

func (c Context) clone() Context {
	c.SuggestedProductIDs = append([]string(nil), c.SuggestedProductIDs...)
	if c.Product != nil {
		p := *c.Product
		c.Product = &p
	}
	if c.Price != nil {
		v := *c.Price
		c.Price = &v
	}
	return c
}

// Config tunes timers, retry limits and keyword handling.
type Config struct {
	SilenceTimeout      time.Duration
	NoHearTimeout       time.Duration
	SilenceRetriesMax   int
	NoHearRetriesMax    int
	SilenceAutoPrompt   bool
	NoHearAutoPrompt    bool
	ConfidenceThreshold float64
	CorrectionKeywords  []string
	OrderRetryMax       int
	DeliveryRetryMax    int
	OrderRetryBackoff   time.Duration
}

func DefaultConfig() Config {
	return Config{
		SilenceTimeout:      7 * time.Second,
		NoHearTimeout:       3 * time.Second,
		SilenceRetriesMax:   2,
		NoHearRetriesMax:    2,
		ConfidenceThreshold: 0.55,
		CorrectionKeywords:  []string{"やっぱり", "違う", "他の", "間違えた", "キャンセル"},
		OrderRetryMax:       1,
		DeliveryRetryMax:    1,
		OrderRetryBackoff:   time.Second,
	}
}
