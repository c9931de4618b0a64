package usecase

import (
	"context"
	"fmt"
	"strings"

	"HypothesisValidator/internal/domain"
	"HypothesisValidator/internal/ports"
)

// Catalog serves the read-only research and entity type listings.
type Catalog struct {
	store ports.CatalogStore
}

// NewCatalog wraps store.
func NewCatalog(store ports.CatalogStore) *Catalog {
	return &Catalog{store: store}
}

// Researches lists researches matching filter; an empty filter lists all of them.
// Filter fields are matched exactly after trimming surrounding whitespace.
func (c *Catalog) Researches(ctx context.Context, filter domain.ResearchFilter) ([]domain.Research, error) {
	filter.PrimaryItem = strings.TrimSpace(filter.PrimaryItem)
	filter.SecondaryItem = strings.TrimSpace(filter.SecondaryItem)

	researches, err := c.store.ListResearches(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("list researches: %w", err)
	}
	if researches == nil {
		researches = []domain.Research{}
	}
	return researches, nil
}

// EntityTypes lists every entity type.
func (c *Catalog) EntityTypes(ctx context.Context) ([]domain.EntityType, error) {
	types, err := c.store.ListEntityTypes(ctx)
	if err != nil {
		return nil, fmt.Errorf("list entity types: %w", err)
	}
	if types == nil {
		types = []domain.EntityType{}
	}
	return types, nil
}
