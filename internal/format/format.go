// Package format converts on-chain fixed-point values and timestamps into
// display strings. Every function is pure and total: expected edge cases
// such as zero amounts or past timestamps yield a value, never an error.
package format

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ExpiredLabel is returned by the countdown helpers once expiry has passed.
const ExpiredLabel = "Expired"

// requiredStakePercent is the share of the creator's stake an opponent must
// match, as enforced by the market contract.
const requiredStakePercent = 10

// FormatTokenAmount renders raw / 10^decimals as an exact decimal string
// with trailing zeros trimmed. A nil amount renders as "0".
func FormatTokenAmount(raw *big.Int, decimals int32) string {
	if raw == nil {
		return "0"
	}
	return decimal.NewFromBigInt(raw, -decimals).String()
}

// ParseTokenAmount converts a human decimal string into a fixed-point integer
// with the given number of decimals. It rejects negative values and values
// with more fractional digits than decimals allows.
func ParseTokenAmount(s string, decimals int32) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, fmt.Errorf("format: parse amount: empty")
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("format: parse amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return nil, fmt.Errorf("format: parse amount %q: negative", s)
	}
	scaled := d.Shift(decimals)
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("format: parse amount %q: more than %d decimals", s, decimals)
	}
	return scaled.BigInt(), nil
}

// RequiredStake returns the opponent stake for a creator stake using the
// contract's truncating integer arithmetic.
func RequiredStake(creatorStake *big.Int) *big.Int {
	if creatorStake == nil {
		return new(big.Int)
	}
	out := new(big.Int).Mul(creatorStake, big.NewInt(requiredStakePercent))
	return out.Quo(out, big.NewInt(100))
}

// IsExpired reports whether now is at or past expiry (unix seconds).
func IsExpired(now time.Time, expiry int64) bool {
	return now.Unix() >= expiry
}

type unit struct {
	suffix  string
	seconds int64
}

var units = []unit{
	{"d", 86400},
	{"h", 3600},
	{"m", 60},
	{"s", 1},
}

// breakdown splits a positive number of seconds into d/h/m/s parts.
func breakdown(diff int64) []int64 {
	parts := make([]int64, len(units))
	for i, u := range units {
		parts[i] = diff / u.seconds
		diff %= u.seconds
	}
	return parts
}

// TimeUntilExpiry labels the remaining time with the two largest non-zero
// units, e.g. "2d 5h" or "4m 10s". It is recomputed from now on every call.
func TimeUntilExpiry(now time.Time, expiry int64) string {
	diff := expiry - now.Unix()
	if diff <= 0 {
		return ExpiredLabel
	}
	parts := breakdown(diff)
	labels := make([]string, 0, 2)
	for i, n := range parts {
		if n == 0 {
			continue
		}
		labels = append(labels, fmt.Sprintf("%d%s", n, units[i].suffix))
		if len(labels) == 2 {
			break
		}
	}
	return strings.Join(labels, " ")
}

// Countdown labels the remaining time from the largest non-zero unit down to
// seconds, e.g. "1d 0h 3m 9s". It is meant for a once-per-second ticker.
func Countdown(now time.Time, expiry int64) string {
	diff := expiry - now.Unix()
	if diff <= 0 {
		return ExpiredLabel
	}
	parts := breakdown(diff)
	start := len(parts) - 1
	for i, n := range parts {
		if n > 0 {
			start = i
			break
		}
	}
	labels := make([]string, 0, len(parts)-start)
	for i := start; i < len(parts); i++ {
		labels = append(labels, fmt.Sprintf("%d%s", parts[i], units[i].suffix))
	}
	return strings.Join(labels, " ")
}

// FormatTimestamp renders a unix timestamp in loc, or UTC when loc is nil.
func FormatTimestamp(ts int64, loc *time.Location) string {
	if loc == nil {
		loc = time.UTC
	}
	return time.Unix(ts, 0).In(loc).Format("Jan 2, 2006, 03:04:05 PM MST")
}

// FormatAddress shortens a hex address to 0x1234...abcd. Inputs too short to
// shorten are returned unchanged.
func FormatAddress(addr string) string {
	if len(addr) <= 10 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}

// PercentString renders a ratio with one decimal, e.g. "12.5".
func PercentString(d decimal.Decimal) string {
	return d.StringFixed(1)
}
