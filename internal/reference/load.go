package reference

import (
	_ "embed"
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

//go:embed reference.yaml
var defaultReference []byte

// Tables bundles the reference data loaded once at start-up.
type Tables struct {
	Redenominations *Redenominations
	Eurozone        *Eurozone
}

type fileEntry struct {
	Year   int    `yaml:"year"`
	Factor string `yaml:"factor"`
}

type fileEurozone struct {
	Year int    `yaml:"year"`
	Rate string `yaml:"rate"`
}

type fileTables struct {
	Redenominations map[string][]fileEntry  `yaml:"redenominations"`
	Eurozone        map[string]fileEurozone `yaml:"eurozone"`
}

// Default returns the embedded reference tables.
func Default() (*Tables, error) {
	return Parse(defaultReference)
}

// LoadFile reads reference tables from a YAML file; an empty path yields Default.
func LoadFile(path string) (*Tables, error) {
	if path == "" {
		return Default()
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read reference file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML reference data.
func Parse(data []byte) (*Tables, error) {
	var raw fileTables
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse reference yaml: %w", err)
	}

	redenoms := make(map[string][]Entry, len(raw.Redenominations))
	for country, entries := range raw.Redenominations {
		code := strings.ToUpper(strings.TrimSpace(country))
		parsed := make([]Entry, 0, len(entries))
		for i, entry := range entries {
			factor, err := decimal.NewFromString(strings.TrimSpace(entry.Factor))
			if err != nil {
				return nil, &MalformedEntryError{Country: code, Index: i, Reason: fmt.Sprintf("factor %q: %v", entry.Factor, err)}
			}
			parsed = append(parsed, Entry{SwitchYear: entry.Year, Factor: factor})
		}
		redenoms[code] = parsed
	}

	zone := make(map[string]EurozoneEntry, len(raw.Eurozone))
	for country, entry := range raw.Eurozone {
		rate, err := decimal.NewFromString(strings.TrimSpace(entry.Rate))
		if err != nil {
			return nil, fmt.Errorf("reference: eurozone %s rate %q: %w", country, entry.Rate, err)
		}
		zone[strings.ToUpper(strings.TrimSpace(country))] = EurozoneEntry{AdoptionYear: entry.Year, LegacyPerEUR: rate}
	}

	table, err := NewRedenominations(redenoms)
	if err != nil {
		return nil, err
	}
	eurozone, err := NewEurozone(zone)
	if err != nil {
		return nil, err
	}
	return &Tables{Redenominations: table, Eurozone: eurozone}, nil
}
