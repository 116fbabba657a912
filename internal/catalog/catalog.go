package catalog

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/chadiek/rice-call-gateway/internal/extract"
)

// ErrProductNotFound is returned when no entry satisfies a selection.
var ErrProductNotFound = errors.New("catalog: product not found")

// Product is one sellable item. Category carries the brand.
type Product struct {
	ID          string   `json:"id" yaml:"id"`
	Name        string   `json:"name" yaml:"name"`
	Description string   `json:"description,omitempty" yaml:"description,omitempty"`
	Category    string   `json:"category,omitempty" yaml:"category,omitempty"`
	Specs       string   `json:"specs,omitempty" yaml:"specs,omitempty"`
	Price       *float64 `json:"price,omitempty" yaml:"price,omitempty"`
}

// Catalog is loaded once and shared read-only by every call.
type Catalog struct {
	products []Product
	weights  []int
}

// New builds a catalog from products, computing the weight options offered to callers.
func New(products []Product) *Catalog {
	cp := append([]Product(nil), products...)
	names := make([]string, len(cp))
	for i, p := range cp {
		names[i] = p.Name
	}
	return &Catalog{products: cp, weights: extract.WeightOptions(names)}
}

type wrapped struct {
	Items []Product `json:"items" yaml:"items"`
}

// Load reads a JSON or YAML catalog file. Both a bare list and {items: [...]} are accepted.
// An empty path yields an empty catalog.
func Load(path string) (*Catalog, error) {
	if path == "" {
		return New(nil), nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	products, err := decodeProducts(path, raw)
	if err != nil {
		return nil, fmt.Errorf("parse catalog %s: %w", path, err)
	}
	return New(products), nil
}

func decodeProducts(path string, raw []byte) ([]Product, error) {
	var list []Product
	var w wrapped
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, &list); err == nil {
			return list, nil
		}
		if err := yaml.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return w.Items, nil
	default:
		trimmed := strings.TrimSpace(string(raw))
		if strings.HasPrefix(trimmed, "[") {
			err := json.Unmarshal(raw, &list)
			return list, err
		}
		if err := json.Unmarshal(raw, &w); err != nil {
			return nil, err
		}
		return w.Items, nil
	}
}

// Products returns a copy of all entries.
func (c *Catalog) Products() []Product { return append([]Product(nil), c.products...) }

// Len reports the number of entries.
func (c *Catalog) Len() int { return len(c.products) }

// WeightOptions are the weights (kg) callers may choose from.
func (c *Catalog) WeightOptions() []int { return append([]int(nil), c.weights...) }

// AllowsWeight reports whether w is one of the offered weights.
func (c *Catalog) AllowsWeight(w float64) bool {
	for _, o := range c.weights {
		if float64(o) == w {
			return true
		}
	}
	return false
}

// SelectRice returns the entry whose category is the brand and whose name carries the weight.
func (c *Catalog) SelectRice(brand string, weightKg float64, exclude []string) (Product, error) {
	nb := extract.NormalizeRiceText(brand)
	for _, p := range c.products {
		if contains(exclude, p.ID) {
			continue
		}
		w, ok := extract.CatalogWeightKg(p.Name)
		if ok && w == weightKg && extract.NormalizeRiceText(p.Category) == nb {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

// Pick returns the cheapest entry in category not yet excluded, falling back
// to the first entry not excluded. Entries without a price rank after priced ones.
func (c *Catalog) Pick(category string, exclude []string) (Product, error) {
	var candidates []Product
	if category != "" {
		for _, p := range c.products {
			if !contains(exclude, p.ID) && strings.Contains(p.Category, category) {
				candidates = append(candidates, p)
			}
		}
	}
	if len(candidates) > 0 {
		sort.SliceStable(candidates, func(i, j int) bool {
			a, b := candidates[i].Price, candidates[j].Price
			switch {
			case a == nil:
				return false
			case b == nil:
				return true
			default:
				return *a < *b
			}
		})
		return candidates[0], nil
	}
	for _, p := range c.products {
		if !contains(exclude, p.ID) {
			return p, nil
		}
	}
	return Product{}, ErrProductNotFound
}

func contains(ids []string, id string) bool {
	for _, x := range ids {
		if x == id {
			return true
		}
	}
	return false
}
