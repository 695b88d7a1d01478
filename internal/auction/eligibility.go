package auction

import (
	"context"

	"gorm.io/gorm"

	"github.com/mandexhq/mandex-backend/internal/inventory"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
)

// EligibleSuppliers filters the candidate set down to suppliers that can
// actually fulfill the order: active and verified, holding every requested
// product with enough available stock, and within their own delivery
// radius of the buyer's location.
func EligibleSuppliers(ctx context.Context, db *gorm.DB, order *models.Order, candidates []models.Supplier) ([]models.Supplier, error) {
	if len(order.Items) == 0 {
		return nil, nil
	}

	eligible := make([]models.Supplier, 0, len(candidates))
	for _, supplier := range candidates {
		if !supplier.Active || !supplier.Verified {
			continue
		}
		if supplier.Location.DistanceKm(order.DeliveryLocation) > supplier.DeliveryRadiusKm {
			continue
		}
		canFulfill, _, err := inventory.CheckAvailability(ctx, db, supplier.ID, order.Items)
		if err != nil {
			return nil, err
		}
		if !canFulfill {
			continue
		}
		eligible = append(eligible, supplier)
	}
	return eligible, nil
}
