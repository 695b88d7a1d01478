package suppliers

import (
	"math"
	"testing"

	"github.com/mandexhq/mandex-backend/pkg/db/models"
)

func TestTrustScoreBlendsReliabilityAndRating(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		supplier models.Supplier
		want     float64
	}{
		{
			name:     "perfect record",
			supplier: models.Supplier{AssignedOrders: 10, CompletedOrders: 10, AvgRating: 5},
			want:     1.0,
		},
		{
			name:     "half completion no rating",
			supplier: models.Supplier{AssignedOrders: 10, CompletedOrders: 5, AvgRating: 0},
			want:     0.3,
		},
		{
			name:     "new supplier full reliability credit",
			supplier: models.Supplier{AssignedOrders: 0, CompletedOrders: 0, AvgRating: 2.5},
			want:     0.8,
		},
		{
			name:     "rating clamped to scale",
			supplier: models.Supplier{AssignedOrders: 4, CompletedOrders: 4, AvgRating: 9},
			want:     1.0,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := TrustScore(tc.supplier)
			if math.Abs(got-tc.want) > 1e-9 {
				t.Fatalf("got %v, want %v", got, tc.want)
			}
		})
	}
}
