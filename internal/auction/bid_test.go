package auction

import (
	"testing"
	"time"

	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

func TestParseBidText(t *testing.T) {
	t.Parallel()

	defaultEta := 24 * time.Hour

	cases := []struct {
		name      string
		text      string
		wantPrice string
		wantEta   float64
	}{
		{"plain", "PRICE 1200 ETA 2 days", "1200", 48},
		{"lowercase", "price 99.50 eta 36 hours", "99.5", 36},
		{"mixed case", "Price 450 Eta tomorrow", "450", 24},
		{"minutes", "PRICE 10 ETA 90 minutes", "10", 1.5},
		{"compound eta", "PRICE 800 ETA 1 day 12 hours", "800", 36},
		{"leading whitespace", "  PRICE 5.25 ETA 3h  ", "5.25", 3},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			bid, err := ParseBidText(tc.text, defaultEta)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if bid.PriceQuote.String() != tc.wantPrice {
				t.Fatalf("price %s, want %s", bid.PriceQuote, tc.wantPrice)
			}
			if bid.EtaHours != tc.wantEta {
				t.Fatalf("eta %v, want %v", bid.EtaHours, tc.wantEta)
			}
		})
	}
}

func TestParseBidTextRejectsMalformed(t *testing.T) {
	t.Parallel()

	cases := []string{
		"",
		"PRICE ETA 2 days",
		"PRICE abc ETA 2 days",
		"PRICE 100",
		"ETA 2 days PRICE 100",
		"PRICE -5 ETA 1 day",
		"PRICE 0 ETA 1 day",
		"I will do it for 100 in 2 days",
	}
	for _, text := range cases {
		_, err := ParseBidText(text, 24*time.Hour)
		if err == nil {
			t.Errorf("expected rejection for %q", text)
			continue
		}
		typed := pkgerrors.As(err)
		if typed == nil || typed.Code() != pkgerrors.CodeValidation {
			t.Errorf("expected VALIDATION_ERROR for %q, got %v", text, err)
		}
	}
}

func TestNormalizeEtaFallback(t *testing.T) {
	t.Parallel()

	if got := NormalizeEta("as soon as possible", 24*time.Hour); got != 24 {
		t.Fatalf("fallback eta %v", got)
	}
	if got := NormalizeEta("", 12*time.Hour); got != 12 {
		t.Fatalf("fallback eta %v", got)
	}
	if got := NormalizeEta("2d", 24*time.Hour); got != 48 {
		t.Fatalf("day shorthand eta %v", got)
	}
	if got := NormalizeEta("30 min", 24*time.Hour); got != 0.5 {
		t.Fatalf("minute eta %v", got)
	}
}
