package auction

import (
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mandexhq/mandex-backend/internal/suppliers"
	"github.com/mandexhq/mandex-backend/pkg/config"
	"github.com/mandexhq/mandex-backend/pkg/db/models"
)

// ScoredOffer pairs an offer with its composite score.
type ScoredOffer struct {
	Offer models.VendorOffer
	Score float64
}

// Score computes the composite bid score:
//
//	stock-confirmed bonus (fixed)
//	+ price component: lower price scores higher, normalized against the
//	  market reference price, capped at twice the weight
//	+ ETA component: linear decay to zero at the horizon
//	+ trust component: supplier reliability/rating blend
func Score(cfg config.AuctionConfig, offer models.VendorOffer, supplier models.Supplier, marketReference decimal.Decimal) float64 {
	var score float64

	if offer.StockConfirmed {
		score += cfg.StockConfirmedBonus
	}

	if offer.PriceQuote.IsPositive() && marketReference.IsPositive() {
		ratio, _ := marketReference.Div(offer.PriceQuote).Float64()
		if ratio > 2 {
			ratio = 2
		}
		score += cfg.PriceWeight * ratio
	}

	if cfg.EtaHorizonHours > 0 {
		etaFactor := 1 - offer.EtaHours/cfg.EtaHorizonHours
		if etaFactor < 0 {
			etaFactor = 0
		}
		score += cfg.EtaWeight * etaFactor
	}

	score += cfg.TrustWeight * suppliers.TrustScore(supplier)

	return score
}

// RankOffers scores every offer and orders them best-first. Ties are broken
// by earliest submission time, then by offer id for full determinism.
func RankOffers(cfg config.AuctionConfig, offers []models.VendorOffer, supplierIndex map[string]models.Supplier, marketReference decimal.Decimal) []ScoredOffer {
	scored := make([]ScoredOffer, 0, len(offers))
	for _, offer := range offers {
		supplier, ok := supplierIndex[offer.SupplierID.String()]
		if !ok {
			continue
		}
		scored = append(scored, ScoredOffer{
			Offer: offer,
			Score: Score(cfg, offer, supplier, marketReference),
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].Score != scored[j].Score {
			return scored[i].Score > scored[j].Score
		}
		if !scored[i].Offer.SubmittedAt.Equal(scored[j].Offer.SubmittedAt) {
			return scored[i].Offer.SubmittedAt.Before(scored[j].Offer.SubmittedAt)
		}
		return scored[i].Offer.ID.String() < scored[j].Offer.ID.String()
	})
	return scored
}
