package view

import (
	"fmt"
	"time"

	"github.com/alanyoungcy/alphamarket/internal/domain"
	"github.com/alanyoungcy/alphamarket/internal/format"
	"github.com/ethereum/go-ethereum/common"
)

// SanitizeOpponents drops unused opponent slots. Applying it twice yields
// the same slice contents.
func SanitizeOpponents(opps []domain.Opponent) []domain.Opponent {
	out := make([]domain.Opponent, 0, len(opps))
	for _, o := range opps {
		if !o.IsPlaceholder() {
			out = append(out, o)
		}
	}
	return out
}

// SanitizeAlphas drops uninitialised slots. IDs are kept as read from the
// ledger, so survivors are not renumbered.
func SanitizeAlphas(alphas []domain.Alpha) []domain.Alpha {
	out := make([]domain.Alpha, 0, len(alphas))
	for _, a := range alphas {
		if !a.IsPlaceholder() {
			out = append(out, a)
		}
	}
	return out
}

// Filter selects alphas in a listing.
type Filter string

const (
	FilterActive  Filter = "active"
	FilterExpired Filter = "expired"
	FilterSettled Filter = "settled"
	FilterAll     Filter = "all"
)

// ParseFilter reads a filter name. The empty string yields def.
func ParseFilter(s string, def Filter) (Filter, error) {
	switch f := Filter(s); f {
	case "":
		return def, nil
	case FilterActive, FilterExpired, FilterSettled, FilterAll:
		return f, nil
	default:
		return "", fmt.Errorf("%w: unknown filter %q", domain.ErrInvalidInput, s)
	}
}

// Matches reports whether a passes f at now.
func (f Filter) Matches(a domain.Alpha, now time.Time) bool {
	expired := format.IsExpired(now, a.Expiry)
	switch f {
	case FilterActive:
		return !a.Settled && !expired
	case FilterExpired:
		return !a.Settled && expired
	case FilterSettled:
		return a.Settled
	default:
		return true
	}
}

// FilterAlphas sanitizes alphas and keeps those matching f.
func FilterAlphas(alphas []domain.Alpha, f Filter, now time.Time) []domain.Alpha {
	out := make([]domain.Alpha, 0, len(alphas))
	for _, a := range SanitizeAlphas(alphas) {
		if f.Matches(a, now) {
			out = append(out, a)
		}
	}
	return out
}

// Mine keeps the alphas created by creator.
func Mine(alphas []domain.Alpha, creator common.Address) []domain.Alpha {
	out := make([]domain.Alpha, 0)
	for _, a := range SanitizeAlphas(alphas) {
		if a.IsCreator(creator) {
			out = append(out, a)
		}
	}
	return out
}

// Counts tallies a listing per filter.
type Counts struct {
	Active  int `json:"active"`
	Expired int `json:"expired"`
	Settled int `json:"settled"`
	All     int `json:"all"`
}

// CountAlphas tallies sanitized alphas per filter at now.
func CountAlphas(alphas []domain.Alpha, now time.Time) Counts {
	var c Counts
	for _, a := range SanitizeAlphas(alphas) {
		c.All++
		switch {
		case FilterSettled.Matches(a, now):
			c.Settled++
		case FilterExpired.Matches(a, now):
			c.Expired++
		default:
			c.Active++
		}
	}
	return c
}
