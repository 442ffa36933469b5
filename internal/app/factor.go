package app

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"econindex/internal/reference"
)

// Factor prints redenomination factors from the reference table. With a
// year it prints the cumulative factor applied to that year's FX rate.
func (a *App) Factor(opts FactorOptions) error {
	tables, err := a.loadReference()
	if err != nil {
		return err
	}
	redenoms := tables.Redenominations

	country := strings.ToUpper(strings.TrimSpace(opts.Country))
	if country == "" {
		writer := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(writer, "Country\tName\tReforms\tTotal factor")
		for _, code := range redenoms.Countries() {
			entries := redenoms.Entries(code)
			fmt.Fprintf(writer, "%s\t%s\t%d\t%s\n", code, reference.CountryName(code), len(entries), redenoms.CumulativeFactor(code, entries[0].SwitchYear-1).String())
		}
		return writer.Flush()
	}

	if opts.Year != 0 {
		fmt.Fprintf(a.out, "%s %d: %s\n", country, opts.Year, redenoms.CumulativeFactor(country, opts.Year).String())
		return nil
	}

	entries := redenoms.Entries(country)
	if len(entries) == 0 {
		fmt.Fprintf(a.out, "%s: no redenominations (factor 1)\n", country)
		return nil
	}

	writer := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(writer, "Switch year\tFactor\tCumulative before switch")
	for _, entry := range entries {
		fmt.Fprintf(writer, "%d\t%s\t%s\n", entry.SwitchYear, entry.Factor.String(), redenoms.CumulativeFactor(country, entry.SwitchYear-1).String())
	}
	if eu, ok := tables.Eurozone.Lookup(country); ok {
		fmt.Fprintf(writer, "euro adoption %d\t%s per EUR\t\n", eu.AdoptionYear, eu.LegacyPerEUR.String())
	}
	return writer.Flush()
}
