// Package product is the built-in Product entity type: its events, the
// aggregate that replays them, and the projection compared against the
// product read model.
package product

import (
	"fmt"

	"github.com/roach88/recon/internal/aggregate"
	"github.com/roach88/recon/internal/readmodel"
	"github.com/roach88/recon/internal/reconcile"
	"github.com/roach88/recon/internal/state"
)

// Names used when registering the product module.
const (
	ModuleName    = "product"
	AggregateType = "product"
	Collection    = "products"
)

// Event type names as stored in the event log.
const (
	EventCreationInitialized = "ProductCreationInitialized"
	EventCreated             = "ProductCreated"
	EventCreatedShort        = "Created"
	EventCreationFinalized   = "ProductCreationFinalized"
	EventStockAdjusted       = "ProductStockAdjusted"
	EventPriceChanged        = "ProductPriceChanged"
	EventSnapshotCreated     = "ProductSnapshotCreated"
)

// Lifecycle statuses.
const (
	StatusPending   = "pending"
	StatusCreated   = "created"
	StatusFinalized = "finalized"
)

// CreationInitialized starts a two-step creation.
type CreationInitialized struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int64   `json:"stock"`
}

// Created is the one-step creation event, stored as ProductCreated or under
// the short alias Created. It carries the full initial state. Two-step
// creation uses CreationInitialized followed by CreationFinalized instead.
type Created struct {
	Name  string  `json:"name"`
	Price float64 `json:"price"`
	Stock int64   `json:"stock"`
}

// CreationFinalized completes a two-step creation.
type CreationFinalized struct{}

// StockAdjusted changes stock by Delta.
type StockAdjusted struct {
	Delta int64 `json:"delta"`
}

// PriceChanged sets a new price.
type PriceChanged struct {
	Price float64 `json:"price"`
}

// SnapshotCreated carries the full product state; replay restarts from it.
type SnapshotCreated struct {
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Stock  int64   `json:"stock"`
	Status string  `json:"status"`
}

// Product is the write-side product aggregate.
type Product struct {
	Name   string  `json:"name"`
	Price  float64 `json:"price"`
	Stock  int64   `json:"stock"`
	Status string  `json:"status"`
}

// New returns an empty product.
func New() *Product { return &Product{} }

// Apply folds one domain event into p.
func (p *Product) Apply(event any) error {
	switch e := event.(type) {
	case CreationInitialized:
		p.Name, p.Price, p.Stock, p.Status = e.Name, e.Price, e.Stock, StatusPending
	case Created:
		p.Name, p.Price, p.Stock, p.Status = e.Name, e.Price, e.Stock, StatusCreated
	case CreationFinalized:
		if p.Status != StatusPending {
			return fmt.Errorf("finalize product in status %q", p.Status)
		}
		p.Status = StatusFinalized
	case StockAdjusted:
		p.Stock += e.Delta
	case PriceChanged:
		if e.Price < 0 {
			return fmt.Errorf("negative price %v", e.Price)
		}
		p.Price = e.Price
	case SnapshotCreated:
		p.Name, p.Price, p.Stock, p.Status = e.Name, e.Price, e.Stock, e.Status
	default:
		return fmt.Errorf("product: unsupported event %T", event)
	}
	return nil
}

// Transformers decodes every product event type.
func Transformers() aggregate.Transformers {
	created := aggregate.Decode[Created]()
	return aggregate.Transformers{
		EventCreationInitialized: aggregate.Decode[CreationInitialized](),
		EventCreated:             created,
		EventCreatedShort:        created,
		EventCreationFinalized:   aggregate.Decode[CreationFinalized](),
		EventStockAdjusted:       aggregate.Decode[StockAdjusted](),
		EventPriceChanged:        aggregate.Decode[PriceChanged](),
		EventSnapshotCreated:     aggregate.Decode[SnapshotCreated](),
	}
}

// Project maps a product to its read-model shape.
func Project(p *Product) (state.Object, error) {
	return state.Object{
		"name":   state.String(p.Name),
		"price":  state.Float(p.Price),
		"stock":  state.Int(p.Stock),
		"status": state.String(p.Status),
	}, nil
}

// Module wires the product entity type to a read-model gateway.
func Module(rm readmodel.Gateway) reconcile.Module[*Product] {
	return reconcile.Module[*Product]{
		Name:          ModuleName,
		AggregateType: AggregateType,
		Collection:    Collection,
		Transformers:  Transformers(),
		New:           New,
		Project:       Project,
		ReadModel:     rm,
	}
}
