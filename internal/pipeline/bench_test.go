package pipeline

import (
	"path/filepath"
	"testing"

	"github.com/theirongolddev/emiscope/internal/source"
	"github.com/theirongolddev/emiscope/internal/store"
)

func BenchmarkLoad(b *testing.B) {
	root := fixture(b)

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result, err := Load(root, "", nil)
		if err != nil {
			b.Fatal(err)
		}
		_ = result
	}
}

func BenchmarkParseRun(b *testing.B) {
	root := fixture(b)
	exps, err := source.ScanDir(root)
	if err != nil {
		b.Fatal(err)
	}
	exp, _ := SelectExperiment(exps, "")
	runs, err := source.ScanRuns(exp)
	if err != nil || len(runs) == 0 {
		b.Fatalf("no runs: %v", err)
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		result := source.ParseRun(runs[0])
		if result.Err != nil {
			b.Fatal(result.Err)
		}
	}
}

func BenchmarkLoadWithCache(b *testing.B) {
	root := fixture(b)
	cache, err := store.Open(filepath.Join(b.TempDir(), "bench.db"))
	if err != nil {
		b.Fatal(err)
	}
	defer func() { _ = cache.Close() }()

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		cr, err := LoadWithCache(root, "", cache, nil)
		if err != nil {
			b.Fatal(err)
		}
		_ = cr
	}
}
