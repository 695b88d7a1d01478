package auction

import (
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	pkgerrors "github.com/mandexhq/mandex-backend/pkg/errors"
)

// Bid text grammar: `PRICE <number> ETA <free text>`, case-insensitive.
// Anything that does not match is rejected without creating an offer.
var bidTextRe = regexp.MustCompile(`(?i)^\s*PRICE\s+(\d+(?:\.\d+)?)\s+ETA\s+(\S.*?)\s*$`)

// ParsedBid is the result of decoding raw bid text from the messaging channel.
type ParsedBid struct {
	PriceQuote decimal.Decimal
	EtaRaw     string
	EtaHours   float64
}

// ParseBidText decodes and validates raw bid text. The ETA free text is kept
// verbatim alongside its normalized hour value.
func ParseBidText(text string, defaultEta time.Duration) (*ParsedBid, error) {
	m := bidTextRe.FindStringSubmatch(text)
	if m == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid text must match PRICE <number> ETA <text>")
	}

	price, err := decimal.NewFromString(m[1])
	if err != nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid price is not a number")
	}
	if !price.IsPositive() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "bid price must be positive")
	}

	etaRaw := strings.TrimSpace(m[2])
	return &ParsedBid{
		PriceQuote: price,
		EtaRaw:     etaRaw,
		EtaHours:   NormalizeEta(etaRaw, defaultEta),
	}, nil
}
