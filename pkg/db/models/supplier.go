package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mandexhq/mandex-backend/pkg/types"
)

// Supplier is a vendor that can receive order broadcasts and bid on them.
type Supplier struct {
	ID               uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	Name             string               `gorm:"column:name;not null"`
	Active           bool                 `gorm:"column:active;not null;default:true"`
	Verified         bool                 `gorm:"column:verified;not null;default:false"`
	Location         types.GeographyPoint `gorm:"column:location"`
	DeliveryRadiusKm float64              `gorm:"column:delivery_radius_km;not null;default:0"`
	CompletedOrders  int                  `gorm:"column:completed_orders;not null;default:0"`
	AssignedOrders   int                  `gorm:"column:assigned_orders;not null;default:0"`
	AvgRating        float64              `gorm:"column:avg_rating;not null;default:0"`
	ContactAddress   string               `gorm:"column:contact_address;not null;default:''"`
	CreatedAt        time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt        time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
