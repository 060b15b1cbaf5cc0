package models

import (
	"time"

	"github.com/google/uuid"
)

// Restaurant is the subset of the restaurant profile the order core reads.
type Restaurant struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID   uuid.UUID `gorm:"column:owner_id;type:uuid;not null"`
	Name      string    `gorm:"column:name;not null"`
	OpenTime  *string   `gorm:"column:open_time"`
	CloseTime *string   `gorm:"column:close_time"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

func (Restaurant) TableName() string { return "restaurants" }
