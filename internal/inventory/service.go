package inventory

import (
	"context"
	"fmt"

	"github.com/angelmondragon/preorder-backend/pkg/db"
	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	pkgerrors "github.com/angelmondragon/preorder-backend/pkg/errors"
	"github.com/google/uuid"
)

type catalogRepository interface {
	FindMenuItems(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error)
	FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error)
	FindRestaurants(ctx context.Context, ids []uuid.UUID) ([]models.Restaurant, error)
}

// Lookup resolves menu items and restaurants for the order lifecycle.
type Lookup struct {
	repo catalogRepository
}

// NewLookup builds the catalog lookup.
func NewLookup(repo catalogRepository) (*Lookup, error) {
	if repo == nil {
		return nil, fmt.Errorf("inventory repository required")
	}
	return &Lookup{repo: repo}, nil
}

// ResolveMenuItems returns the known menu items keyed by id. Unknown ids are
// absent from the map so callers can report every missing id at once.
func (l *Lookup) ResolveMenuItems(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.MenuItem, error) {
	items, err := l.repo.FindMenuItems(ctx, dedupe(ids))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load menu items")
	}
	resolved := make(map[uuid.UUID]models.MenuItem, len(items))
	for _, item := range items {
		resolved[item.ID] = item
	}
	return resolved, nil
}

// Restaurant loads a single restaurant, mapping a missing row to NOT_FOUND.
func (l *Lookup) Restaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	restaurant, err := l.repo.FindRestaurant(ctx, id)
	if err != nil {
		if db.IsNotFound(err) {
			return nil, pkgerrors.New(pkgerrors.CodeNotFound, "restaurant not found")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurant")
	}
	return restaurant, nil
}

// RestaurantNames returns display names keyed by restaurant id.
func (l *Lookup) RestaurantNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	rows, err := l.repo.FindRestaurants(ctx, dedupe(ids))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load restaurants")
	}
	names := make(map[uuid.UUID]string, len(rows))
	for _, row := range rows {
		names[row.ID] = row.Name
	}
	return names, nil
}

// MenuItemNames returns display names keyed by menu item id.
func (l *Lookup) MenuItemNames(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]string, error) {
	items, err := l.ResolveMenuItems(ctx, ids)
	if err != nil {
		return nil, err
	}
	names := make(map[uuid.UUID]string, len(items))
	for id, item := range items {
		names[id] = item.Name
	}
	return names, nil
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
