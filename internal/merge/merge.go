// Package merge combines per-source record streams into one record per
// (country, year, indicator) with deterministic precedence.
package merge

import (
	"errors"
	"fmt"
	"strings"

	"econindex/internal/model"
)

// ErrDuplicateKey reports two records for one key where the output must be unique.
var ErrDuplicateKey = errors.New("merge: duplicate record key")

// DuplicateKeyError names the key and the sources that collided on it.
type DuplicateKeyError struct {
	Key     model.Key
	Sources []string
}

func (e *DuplicateKeyError) Error() string {
	return fmt.Sprintf("merge: duplicate key %s from sources [%s]", e.Key, strings.Join(e.Sources, ", "))
}

// Is lets errors.Is match ErrDuplicateKey.
func (e *DuplicateKeyError) Is(target error) bool {
	return target == ErrDuplicateKey
}

// Stream is the output of one upstream source.
type Stream struct {
	Source  string
	Records []model.IndicatorRecord

	// merged streams already carry per-record provenance
	merged bool
}

// Merge emits every primary record, then every fallback record whose key the
// primary lacks. Records are tagged with the id of the stream they came from.
// Keys present in neither stream produce nothing.
func Merge(primary, fallback Stream) ([]model.IndicatorRecord, error) {
	seen := make(map[model.Key]struct{}, len(primary.Records))
	out := make([]model.IndicatorRecord, 0, len(primary.Records)+len(fallback.Records))

	for _, rec := range primary.Records {
		key := rec.Key()
		if _, dup := seen[key]; dup {
			return nil, &DuplicateKeyError{Key: key, Sources: []string{primary.Source, primary.Source}}
		}
		seen[key] = struct{}{}
		out = append(out, tag(rec, primary.Source))
	}

	fallbackSeen := make(map[model.Key]struct{}, len(fallback.Records))
	for _, rec := range fallback.Records {
		key := rec.Key()
		if _, dup := fallbackSeen[key]; dup {
			return nil, &DuplicateKeyError{Key: key, Sources: []string{fallback.Source, fallback.Source}}
		}
		fallbackSeen[key] = struct{}{}
		if _, covered := seen[key]; covered {
			continue
		}
		out = append(out, tag(rec, fallback.Source))
	}
	return out, nil
}

// Union concatenates streams that are expected to be disjoint. Any shared key
// is a structural violation.
func Union(streams ...Stream) ([]model.IndicatorRecord, error) {
	owner := make(map[model.Key]string)
	var out []model.IndicatorRecord
	for _, stream := range streams {
		for _, rec := range stream.Records {
			key := rec.Key()
			if prev, dup := owner[key]; dup {
				return nil, &DuplicateKeyError{Key: key, Sources: []string{prev, stream.Source}}
			}
			owner[key] = stream.Source
			if !stream.merged {
				rec = tag(rec, stream.Source)
			}
			out = append(out, rec)
		}
	}
	return out, nil
}

func tag(rec model.IndicatorRecord, source string) model.IndicatorRecord {
	if source != "" {
		rec.Source = source
	}
	return rec
}
