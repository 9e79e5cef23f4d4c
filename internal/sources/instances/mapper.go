package instances

import (
	"fmt"

	"github.com/MrSnakeDoc/ytdown/internal/domain"
)

// Map converts file entries to domain instances, keeping file order.
// Invalid or duplicate URLs fail the whole load: a half-applied list would
// silently change the failover order.
func Map(file File) ([]domain.Instance, error) {
	return mapEntries(file.Instances)
}

// FromURLs builds the instance list from plain base URLs (YTDOWN_INSTANCES).
func FromURLs(urls []string) ([]domain.Instance, error) {
	entries := make([]Entry, 0, len(urls))
	for _, u := range urls {
		entries = append(entries, Entry{URL: u})
	}
	return mapEntries(entries)
}

func mapEntries(entries []Entry) ([]domain.Instance, error) {
	out := make([]domain.Instance, 0, len(entries))
	seen := make(map[string]bool, len(entries))

	for i, entry := range entries {
		inst, err := domain.NewInstance(entry.URL, entry.Name)
		if err != nil {
			return nil, fmt.Errorf("instance #%d: %w", i+1, err)
		}
		if seen[inst.URL] {
			return nil, fmt.Errorf("instance #%d: duplicate url %s", i+1, inst.URL)
		}
		seen[inst.URL] = true
		out = append(out, inst)
	}

	if len(out) == 0 {
		return nil, fmt.Errorf("no upstream instances configured")
	}

	return out, nil
}
