package auction

import (
	"regexp"
	"strconv"
	"strings"
	"time"
)

var etaTokenRe = regexp.MustCompile(`(?i)(\d+(?:\.\d+)?)\s*(hours?|hrs?|h|days?|d|minutes?|mins?|min|m)\b`)

// NormalizeEta converts free-text delivery promises ("2 days", "36h",
// "90 minutes", "tomorrow morning") into hours. Multiple tokens add up
// ("1 day 12 hours" = 36). Unparseable text falls back to the default.
func NormalizeEta(raw string, fallback time.Duration) float64 {
	matches := etaTokenRe.FindAllStringSubmatch(raw, -1)
	if len(matches) == 0 {
		return fallback.Hours()
	}

	var hours float64
	for _, m := range matches {
		value, err := strconv.ParseFloat(m[1], 64)
		if err != nil {
			continue
		}
		switch unit := strings.ToLower(m[2]); unit[0] {
		case 'd':
			hours += value * 24
		case 'm':
			hours += value / 60
		default:
			hours += value
		}
	}
	if hours <= 0 {
		return fallback.Hours()
	}
	return hours
}
