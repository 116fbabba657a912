package tools

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// InventoryItem is one row of the local fallback file.
type InventoryItem struct {
	ProductID     string   `json:"productId" yaml:"productId"`
	Available     *bool    `json:"available,omitempty" yaml:"available,omitempty"`
	Quantity      *int     `json:"quantity,omitempty" yaml:"quantity,omitempty"`
	Price         *float64 `json:"price,omitempty" yaml:"price,omitempty"`
	Currency      string   `json:"currency,omitempty" yaml:"currency,omitempty"`
	EstimatedDays *int     `json:"estimatedDays,omitempty" yaml:"estimatedDays,omitempty"`
}

// Inventory answers tool calls locally. Read-only after load.
type Inventory struct {
	items map[string]InventoryItem
}

func NewInventory(items []InventoryItem) *Inventory {
	m := make(map[string]InventoryItem, len(items))
	for _, it := range items {
		m[it.ProductID] = it
	}
	return &Inventory{items: m}
}

// LoadInventory reads a JSON or YAML list. An empty path returns nil.
func LoadInventory(path string) (*Inventory, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read inventory: %w", err)
	}
	var items []InventoryItem
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(raw, &items)
	default:
		err = json.Unmarshal(raw, &items)
	}
	if err != nil {
		return nil, fmt.Errorf("parse inventory %s: %w", path, err)
	}
	return NewInventory(items), nil
}

func (inv *Inventory) lookup(productID string) (InventoryItem, error) {
	it, ok := inv.items[productID]
	if !ok {
		return InventoryItem{}, fmt.Errorf("inventory: product %q not found", productID)
	}
	return it, nil
}

func (inv *Inventory) Stock(productID string) (Stock, error) {
	it, err := inv.lookup(productID)
	if err != nil {
		return Stock{}, err
	}
	q := 0
	switch {
	case it.Quantity != nil:
		q = *it.Quantity
	case it.Available != nil && *it.Available:
		q = 1
	}
	return Stock{Available: q > 0, Quantity: &q}, nil
}

func (inv *Inventory) Price(productID string) (Price, error) {
	it, err := inv.lookup(productID)
	if err != nil {
		return Price{}, err
	}
	if it.Price == nil {
		return Price{}, fmt.Errorf("inventory: product %q has no price", productID)
	}
	cur := it.Currency
	if cur == "" {
		cur = "JPY"
	}
	return Price{Price: *it.Price, Currency: cur}, nil
}

func (inv *Inventory) Delivery(productID string, now time.Time) (Delivery, error) {
	it, err := inv.lookup(productID)
	if err != nil {
		return Delivery{}, err
	}
	days := 3
	if it.EstimatedDays != nil {
		days = *it.EstimatedDays
	}
	return Delivery{DeliveryDate: now.AddDate(0, 0, days).Format("2006-01-02")}, nil
}
