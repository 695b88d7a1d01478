package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mandexhq/mandex-backend/pkg/enums"
)

// OrderTransition is the immutable record of one status change. Rows are
// only ever appended; the transition history is the authoritative walk of
// the order through the state graph.
type OrderTransition struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index"`
	FromStatus  enums.OrderStatus `gorm:"column:from_status;type:order_status_enum;not null"`
	ToStatus    enums.OrderStatus `gorm:"column:to_status;type:order_status_enum;not null"`
	PerformedBy uuid.UUID         `gorm:"column:performed_by;type:uuid;not null"`
	Reason      string            `gorm:"column:reason;not null;default:''"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
