package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

// AuditRecord is one append-only line of the action audit log.
type AuditRecord struct {
	ID        uuid.UUID         `gorm:"column:id;type:uuid;primaryKey"`
	ActorID   uuid.UUID         `gorm:"column:actor_id;type:uuid;not null"`
	Action    enums.AuditAction `gorm:"column:action;not null"`
	TargetID  uuid.UUID         `gorm:"column:target_id;type:uuid;not null;index"`
	Reason    string            `gorm:"column:reason;not null;default:''"`
	Metadata  types.JSONMap     `gorm:"column:metadata;type:jsonb;serializer:json"`
	CreatedAt time.Time         `gorm:"column:created_at;autoCreateTime"`
}
