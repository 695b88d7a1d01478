package suppliers

import "github.com/mandexhq/mandex-backend/pkg/db/models"

const (
	reliabilityWeight = 0.6
	ratingWeight      = 0.4
	maxRating         = 5.0
)

// TrustScore blends a supplier's historical completion rate with its
// average rating into a [0,1] score. Suppliers with no assignment history
// get full reliability credit so new vendors are not shut out of auctions.
func TrustScore(supplier models.Supplier) float64 {
	reliability := 1.0
	if supplier.AssignedOrders > 0 {
		reliability = float64(supplier.CompletedOrders) / float64(supplier.AssignedOrders)
		if reliability > 1 {
			reliability = 1
		}
	}

	rating := supplier.AvgRating / maxRating
	if rating > 1 {
		rating = 1
	}
	if rating < 0 {
		rating = 0
	}

	return reliabilityWeight*reliability + ratingWeight*rating
}
