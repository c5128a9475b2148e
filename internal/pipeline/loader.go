package pipeline

import (
	"fmt"
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/source"
)

// DefaultExperiment is preferred when several experiments exist.
const DefaultExperiment = "EMIPredict_AI"

// LoadResult holds the output of the full run loading pipeline.
type LoadResult struct {
	Experiment  *model.Experiment
	Experiments []model.Experiment
	Runs        []model.Run
	TotalRuns   int
	ParsedRuns  int
	ParseErrors int
	RunErrors   int
}

// ProgressFunc is called during loading to report progress.
// current is the number of runs processed so far, total is the total count.
type ProgressFunc func(current, total int)

// discover picks the experiment and lists its runs.
func discover(mlrunsDir, preferred string) (*LoadResult, []source.DiscoveredRun, error) {
	exps, err := source.ScanDir(mlrunsDir)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning %s: %w", mlrunsDir, err)
	}
	result := &LoadResult{Experiments: exps}

	exp, ok := SelectExperiment(exps, preferred)
	if !ok {
		return result, nil, nil
	}
	result.Experiment = &exp

	runs, err := source.ScanRuns(exp)
	if err != nil {
		return nil, nil, fmt.Errorf("scanning runs of %s: %w", exp.Name, err)
	}
	result.TotalRuns = len(runs)
	return result, runs, nil
}

// Load discovers the preferred experiment under mlrunsDir and parses all of
// its runs. It uses a bounded worker pool for parallel parsing.
func Load(mlrunsDir, preferred string, progressFn ProgressFunc) (*LoadResult, error) {
	result, runs, err := discover(mlrunsDir, preferred)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return result, nil
	}

	for _, pr := range parseAll(runs, 0, len(runs), progressFn) {
		if pr.Err != nil {
			result.RunErrors++
			continue
		}
		result.ParsedRuns++
		result.ParseErrors += pr.ParseErrors
		result.Runs = append(result.Runs, pr.Run)
	}
	sortRuns(result.Runs)
	return result, nil
}

// parseAll parses runs on GOMAXPROCS workers. offset is added to the
// progress count so cache hits can be reported as already done.
func parseAll(runs []source.DiscoveredRun, offset, total int, progressFn ProgressFunc) []source.ParseResult {
	numWorkers := runtime.GOMAXPROCS(0)
	if numWorkers < 1 {
		numWorkers = 4
	}
	if numWorkers > len(runs) {
		numWorkers = len(runs)
	}

	work := make(chan int, len(runs))
	results := make([]source.ParseResult, len(runs))
	var wg sync.WaitGroup
	var processed atomic.Int64

	for i := range runs {
		work <- i
	}
	close(work)

	wg.Add(numWorkers)
	for w := 0; w < numWorkers; w++ {
		go func() {
			defer wg.Done()
			for idx := range work {
				results[idx] = source.ParseRun(runs[idx])
				n := processed.Add(1)
				if progressFn != nil {
					progressFn(int(n)+offset, total)
				}
			}
		}()
	}

	wg.Wait()
	return results
}
