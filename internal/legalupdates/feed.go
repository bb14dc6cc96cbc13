package legalupdates

import (
	"context"
	"sync"

	"legal-ai-assistant/internal/logger"
)

// Feed gathers records from all configured sources.
type Feed struct {
	sources       []Source
	sectionSource func(section string) Source
}

func NewFeed(sources ...Source) *Feed {
	return &Feed{sources: sources}
}

// WithSectionLookup enables per-query section sources for queries that name
// a section ("section 498A").
func (f *Feed) WithSectionLookup(fn func(section string) Source) *Feed {
	f.sectionSource = fn
	return f
}

// SourceNames lists the static sources in collection order.
func (f *Feed) SourceNames() []string {
	names := make([]string, len(f.sources))
	for i, s := range f.sources {
		names[i] = s.Name()
	}
	return names
}

// Collect fetches every static source concurrently.
func (f *Feed) Collect(ctx context.Context) []Record {
	return collect(ctx, f.sources)
}

// CollectFor is Collect plus a section source when the query names one.
func (f *Feed) CollectFor(ctx context.Context, query string) []Record {
	sources := f.sources
	if f.sectionSource != nil {
		if section := SectionReference(query); section != "" {
			sources = append(append([]Source{}, f.sources...), f.sectionSource(section))
		}
	}
	return collect(ctx, sources)
}

// collect keeps source order in the result. A failing source is logged and
// contributes nothing.
func collect(ctx context.Context, sources []Source) []Record {
	results := make([][]Record, len(sources))

	var wg sync.WaitGroup
	for i, src := range sources {
		wg.Add(1)
		go func(i int, src Source) {
			defer wg.Done()
			records, err := src.Fetch(ctx)
			if err != nil {
				logger.Warn("Legal update source failed", "source", src.Name(), "error", err)
				return
			}
			results[i] = records
		}(i, src)
	}
	wg.Wait()

	all := []Record{}
	for _, records := range results {
		all = append(all, records...)
	}
	return all
}
