package pipeline

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/theirongolddev/emiscope/internal/source"
	"github.com/theirongolddev/emiscope/internal/store"
)

// CachedLoadResult extends LoadResult with cache metadata.
type CachedLoadResult struct {
	LoadResult
	CacheHits int
	Reparsed  int
	Removed   int
}

// LoadWithCache discovers runs, diffs their fingerprints against the cache,
// parses only changed runs, and returns the combined result set.
func LoadWithCache(mlrunsDir, preferred string, cache *store.Cache, progressFn ProgressFunc) (*CachedLoadResult, error) {
	base, runs, err := discover(mlrunsDir, preferred)
	if err != nil {
		return nil, err
	}
	result := &CachedLoadResult{LoadResult: *base}
	if base.Experiment == nil {
		return result, nil
	}

	tracked, err := cache.GetTrackedRuns()
	if err != nil {
		return nil, fmt.Errorf("reading cache: %w", err)
	}

	var toReparse []source.DiscoveredRun
	unchanged := make(map[string]struct{})
	present := make(map[string]struct{}, len(runs))

	for _, r := range runs {
		present[r.Path] = struct{}{}
		cached, ok := tracked[r.Path]
		if ok && cached.MtimeNs == r.MtimeNs && cached.SizeBytes == r.SizeBytes {
			unchanged[r.Path] = struct{}{}
		} else {
			toReparse = append(toReparse, r)
		}
	}

	result.CacheHits = len(unchanged)
	result.Reparsed = len(toReparse)

	cachedRuns, err := cache.LoadRuns(base.Experiment.ID)
	if err != nil {
		return nil, fmt.Errorf("loading cached runs: %w", err)
	}
	for _, r := range cachedRuns {
		if _, ok := unchanged[r.Dir]; ok {
			result.Runs = append(result.Runs, r)
			result.ParsedRuns++
			continue
		}
		// Runs deleted from disk leave the cache too.
		if _, ok := present[r.Dir]; !ok {
			if err := cache.DeleteRun(r.RunID, r.Dir); err == nil {
				result.Removed++
			}
		}
	}

	if len(toReparse) > 0 {
		for i, pr := range parseAll(toReparse, result.CacheHits, result.TotalRuns, progressFn) {
			if pr.Err != nil {
				result.RunErrors++
				continue
			}
			result.ParsedRuns++
			result.ParseErrors += pr.ParseErrors
			result.Runs = append(result.Runs, pr.Run)
			_ = cache.SaveRun(pr.Run, toReparse[i].MtimeNs, toReparse[i].SizeBytes)
		}
	}

	sortRuns(result.Runs)
	return result, nil
}

// CacheDir returns the platform-appropriate cache directory.
func CacheDir() string {
	if xdg := os.Getenv("XDG_CACHE_HOME"); xdg != "" {
		return filepath.Join(xdg, "emiscope")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".cache", "emiscope")
}

// CachePath returns the full path to the cache database.
func CachePath() string {
	return filepath.Join(CacheDir(), "emiscope.db")
}
