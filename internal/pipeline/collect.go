package pipeline

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"econindex/internal/fetcher"
	"econindex/internal/merge"
	"econindex/internal/model"
)

// Collect fetches every source concurrently. Records of sources sharing a
// name are concatenated into one stream. Any failing source fails the run.
func Collect(ctx context.Context, sources []fetcher.RecordSource, fxSources []fetcher.FXSource) (Dataset, error) {
	records := make([][]model.IndicatorRecord, len(sources))
	rates := make([][]model.FXRecord, len(fxSources))

	g, gctx := errgroup.WithContext(ctx)
	for i, src := range sources {
		g.Go(func() error {
			out, err := src.Fetch(gctx)
			if err != nil {
				return fmt.Errorf("fetch %s: %w", src.Name(), err)
			}
			records[i] = out
			return nil
		})
	}
	for i, src := range fxSources {
		g.Go(func() error {
			out, err := src.FetchFX(gctx)
			if err != nil {
				return fmt.Errorf("fetch fx: %w", err)
			}
			rates[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Dataset{}, err
	}

	var ds Dataset
	index := make(map[string]int)
	for i, src := range sources {
		name := src.Name()
		if at, ok := index[name]; ok {
			ds.Streams[at].Records = append(ds.Streams[at].Records, records[i]...)
			continue
		}
		index[name] = len(ds.Streams)
		ds.Streams = append(ds.Streams, merge.Stream{Source: name, Records: records[i]})
	}
	for _, r := range rates {
		ds.FX = append(ds.FX, r...)
	}
	return ds, nil
}
