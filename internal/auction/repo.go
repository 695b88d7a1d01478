package auction

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
	"github.com/mandexhq/mandex-backend/pkg/enums"
)

// Repository handles vendor offer persistence.
type Repository struct {
	db *gorm.DB
}

// NewRepository binds a GORM DB to offer operations.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

// Upsert creates the supplier's offer for the order or, if one already
// exists, updates it in place. One row per (order, supplier) pair.
func (r *Repository) Upsert(ctx context.Context, offer *models.VendorOffer) (*models.VendorOffer, error) {
	if offer == nil {
		return nil, errors.New("offer is required")
	}

	var existing models.VendorOffer
	err := r.db.WithContext(ctx).
		Where("order_id = ? AND supplier_id = ?", offer.OrderID, offer.SupplierID).
		First(&existing).Error
	switch {
	case err == nil:
		updates := map[string]any{
			"price_quote":      offer.PriceQuote,
			"delivery_eta_raw": offer.DeliveryEtaRaw,
			"eta_hours":        offer.EtaHours,
			"stock_confirmed":  offer.StockConfirmed,
			"submitted_at":     offer.SubmittedAt,
		}
		if err := r.db.WithContext(ctx).Model(&models.VendorOffer{}).
			Where("id = ?", existing.ID).
			Updates(updates).Error; err != nil {
			return nil, err
		}
		return r.FindByID(ctx, existing.ID)

	case errors.Is(err, gorm.ErrRecordNotFound):
		if offer.ID == uuid.Nil {
			offer.ID = uuid.New()
		}
		offer.Status = enums.OfferStatusPending
		if err := r.db.WithContext(ctx).Create(offer).Error; err != nil {
			return nil, err
		}
		return offer, nil

	default:
		return nil, err
	}
}

// FindByID loads one offer.
func (r *Repository) FindByID(ctx context.Context, id uuid.UUID) (*models.VendorOffer, error) {
	var offer models.VendorOffer
	if err := r.db.WithContext(ctx).First(&offer, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &offer, nil
}

// ListByOrder returns every offer on the order, earliest submission first.
func (r *Repository) ListByOrder(ctx context.Context, orderID uuid.UUID) ([]models.VendorOffer, error) {
	var rows []models.VendorOffer
	err := r.db.WithContext(ctx).
		Where("order_id = ?", orderID).
		Order("submitted_at ASC").
		Find(&rows).Error
	return rows, err
}

// PendingByOrderTx loads the order's PENDING offers inside the decision
// transaction, earliest submission first.
func (r *Repository) PendingByOrderTx(tx *gorm.DB, orderID uuid.UUID) ([]models.VendorOffer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var rows []models.VendorOffer
	err := tx.Where("order_id = ? AND status = ?", orderID, enums.OfferStatusPending).
		Order("submitted_at ASC").
		Find(&rows).Error
	return rows, err
}

// SetStatusTx updates one offer's status inside the caller's transaction.
func (r *Repository) SetStatusTx(tx *gorm.DB, offerID uuid.UUID, status enums.OfferStatus) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.VendorOffer{}).
		Where("id = ?", offerID).
		Updates(map[string]any{"status": status, "updated_at": time.Now()}).Error
}

// RejectOthersTx marks every pending offer on the order except the winner
// as REJECTED.
func (r *Repository) RejectOthersTx(tx *gorm.DB, orderID, winningOfferID uuid.UUID) error {
	if tx == nil {
		return gorm.ErrInvalidTransaction
	}
	return tx.Model(&models.VendorOffer{}).
		Where("order_id = ? AND id <> ? AND status = ?", orderID, winningOfferID, enums.OfferStatusPending).
		Updates(map[string]any{"status": enums.OfferStatusRejected, "updated_at": time.Now()}).Error
}

// TimeoutPendingTx marks every still-pending offer on the order TIMEOUT.
// Used by the bid-expiry sweep for suppliers that never answered.
func (r *Repository) TimeoutPendingTx(tx *gorm.DB, orderID uuid.UUID) (int64, error) {
	if tx == nil {
		return 0, gorm.ErrInvalidTransaction
	}
	res := tx.Model(&models.VendorOffer{}).
		Where("order_id = ? AND status = ?", orderID, enums.OfferStatusPending).
		Updates(map[string]any{"status": enums.OfferStatusTimeout, "updated_at": time.Now()})
	return res.RowsAffected, res.Error
}

// AcceptedByOrderTx returns the ACCEPTED offer for the order, if any.
func (r *Repository) AcceptedByOrderTx(tx *gorm.DB, orderID uuid.UUID) (*models.VendorOffer, error) {
	if tx == nil {
		return nil, gorm.ErrInvalidTransaction
	}
	var offer models.VendorOffer
	err := tx.Where("order_id = ? AND status = ?", orderID, enums.OfferStatusAccepted).
		First(&offer).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &offer, nil
}
