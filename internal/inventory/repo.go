package inventory

import (
	"context"

	"github.com/angelmondragon/preorder-backend/pkg/db/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository reads catalog rows owned by the menu service.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds the catalog reads to the provided DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// FindMenuItems loads the menu items matching ids. Missing ids are simply absent.
func (r *Repository) FindMenuItems(ctx context.Context, ids []uuid.UUID) ([]models.MenuItem, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var items []models.MenuItem
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// FindRestaurant loads a restaurant by id.
func (r *Repository) FindRestaurant(ctx context.Context, id uuid.UUID) (*models.Restaurant, error) {
	var restaurant models.Restaurant
	if err := r.db.WithContext(ctx).First(&restaurant, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &restaurant, nil
}

// FindRestaurants loads restaurants by id.
func (r *Repository) FindRestaurants(ctx context.Context, ids []uuid.UUID) ([]models.Restaurant, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var restaurants []models.Restaurant
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&restaurants).Error; err != nil {
		return nil, err
	}
	return restaurants, nil
}
