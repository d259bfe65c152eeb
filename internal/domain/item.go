package domain

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"
)

// Item is a cargo unit. Its weight is fixed once created.
type Item struct {
	ID        string
	Name      string
	Weight    float64
	CreatedAt time.Time
	UpdatedAt time.Time
}

// ItemRepository captures persistence operations for items.
type ItemRepository interface {
	CreateItem(ctx context.Context, item Item) error
	// ListItems returns every item, newest first.
	ListItems(ctx context.Context) ([]Item, error)
	// GetItems returns the items that exist among ids, in no particular order.
	GetItems(ctx context.Context, ids []string) ([]Item, error)
}

// CreateItemInput captures the payload from the API layer.
type CreateItemInput struct {
	Name   string
	Weight float64
}

// Validate checks name and weight.
func (in CreateItemInput) Validate() error {
	if strings.TrimSpace(in.Name) == "" {
		return fmt.Errorf("%w: name is required", ErrValidation)
	}
	if math.IsNaN(in.Weight) || math.IsInf(in.Weight, 0) {
		return fmt.Errorf("%w: weight must be a finite number", ErrValidation)
	}
	if in.Weight < 0 {
		return fmt.Errorf("%w: weight must be >= 0", ErrValidation)
	}
	return nil
}

func totalWeight(items []Item) float64 {
	var sum float64
	for _, item := range items {
		sum += item.Weight
	}
	return sum
}
