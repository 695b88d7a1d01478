package audit

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
	"github.com/mandexhq/mandex-backend/pkg/types"
)

// Record is one audit log append.
type Record struct {
	ActorID  uuid.UUID
	Action   enums.AuditAction
	TargetID uuid.UUID
	Reason   string
	Metadata types.JSONMap
}

// AppendTx writes an audit record inside the caller's transaction, so the
// record commits or rolls back with the action it documents.
func AppendTx(tx *gorm.DB, record Record) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	if record.Action == "" {
		return errors.New("audit action is required")
	}
	row := models.AuditRecord{
		ID:       uuid.New(),
		ActorID:  record.ActorID,
		Action:   record.Action,
		TargetID: record.TargetID,
		Reason:   record.Reason,
		Metadata: record.Metadata,
	}
	return tx.Create(&row).Error
}

// ListByTarget returns the audit trail for one entity, oldest first.
func ListByTarget(ctx context.Context, db *gorm.DB, targetID uuid.UUID) ([]models.AuditRecord, error) {
	var rows []models.AuditRecord
	err := db.WithContext(ctx).
		Where("target_id = ?", targetID).
		Order("created_at ASC, id ASC").
		Find(&rows).Error
	return rows, err
}
