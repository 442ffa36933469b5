package reference

import (
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"econindex/internal/model"
)

// ErrMalformedEntry marks a reference table that must not be used.
var ErrMalformedEntry = errors.New("reference: malformed redenomination entry")

var one = decimal.NewFromInt(1)

// MalformedEntryError describes the offending entry.
type MalformedEntryError struct {
	Country string
	Index   int
	Reason  string
}

func (e *MalformedEntryError) Error() string {
	return fmt.Sprintf("reference: redenomination %s[%d]: %s", e.Country, e.Index, e.Reason)
}

// Is lets errors.Is match ErrMalformedEntry.
func (e *MalformedEntryError) Is(target error) bool {
	return target == ErrMalformedEntry
}

// Entry is a single currency reform: Factor old units became one new unit in SwitchYear.
type Entry struct {
	SwitchYear int
	Factor     decimal.Decimal
}

// Redenominations is the immutable country -> ordered reforms table.
// A nil table behaves as an empty one.
type Redenominations struct {
	byCountry map[string][]Entry
}

// NewRedenominations validates and copies the given table. Entries must
// already be in ascending switch-year order with factors above one.
func NewRedenominations(table map[string][]Entry) (*Redenominations, error) {
	byCountry := make(map[string][]Entry, len(table))
	for country, entries := range table {
		if !model.IsISO3(country) {
			return nil, &MalformedEntryError{Country: country, Reason: "country code is not ISO3"}
		}
		for i, entry := range entries {
			if entry.Factor.LessThanOrEqual(one) {
				return nil, &MalformedEntryError{Country: country, Index: i, Reason: fmt.Sprintf("factor %s must be greater than 1", entry.Factor)}
			}
			if i > 0 && entry.SwitchYear <= entries[i-1].SwitchYear {
				return nil, &MalformedEntryError{Country: country, Index: i, Reason: fmt.Sprintf("switch year %d not after %d", entry.SwitchYear, entries[i-1].SwitchYear)}
			}
		}
		if len(entries) == 0 {
			continue
		}
		cp := make([]Entry, len(entries))
		copy(cp, entries)
		byCountry[country] = cp
	}
	return &Redenominations{byCountry: byCountry}, nil
}

// CumulativeFactor returns how many units of the currency in circulation in
// year equal one unit of today's currency: the product of every factor whose
// switch year is strictly after year. A reform year itself already uses the
// new unit.
func (r *Redenominations) CumulativeFactor(country string, year int) decimal.Decimal {
	factor := one
	if r == nil {
		return factor
	}
	for _, entry := range r.byCountry[country] {
		if entry.SwitchYear > year {
			factor = factor.Mul(entry.Factor)
		}
	}
	return factor
}

// Has reports whether country has at least one reform.
func (r *Redenominations) Has(country string) bool {
	if r == nil {
		return false
	}
	return len(r.byCountry[country]) > 0
}

// Entries returns a copy of the reforms for country.
func (r *Redenominations) Entries(country string) []Entry {
	if r == nil {
		return nil
	}
	entries := r.byCountry[country]
	cp := make([]Entry, len(entries))
	copy(cp, entries)
	return cp
}

// Countries lists countries with reforms, sorted.
func (r *Redenominations) Countries() []string {
	if r == nil {
		return nil
	}
	out := make([]string, 0, len(r.byCountry))
	for country := range r.byCountry {
		out = append(out, country)
	}
	sort.Strings(out)
	return out
}
