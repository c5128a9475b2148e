package source

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/theirongolddev/emiscope/internal/model"
)

// defaultExperimentID is the experiment MLflow creates on its own; it never
// holds the project's runs.
const defaultExperimentID = "0"

// ScanDir lists the experiments under an mlruns directory: numeric
// subdirectories other than the default one that carry a readable meta.yaml
// with a name. A missing directory yields no experiments and no error.
func ScanDir(mlrunsDir string) ([]model.Experiment, error) {
	entries, err := os.ReadDir(mlrunsDir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var exps []model.Experiment
	for _, e := range entries {
		if !e.IsDir() || !isNumeric(e.Name()) || e.Name() == defaultExperimentID {
			continue
		}
		dir := filepath.Join(mlrunsDir, e.Name())
		data, err := os.ReadFile(filepath.Join(dir, "meta.yaml"))
		if err != nil {
			continue
		}
		var meta experimentMeta
		if err := yaml.Unmarshal(data, &meta); err != nil || meta.Name == "" {
			continue
		}
		exps = append(exps, model.Experiment{
			ID:             e.Name(),
			Name:           meta.Name,
			LifecycleStage: meta.LifecycleStage,
			Dir:            dir,
		})
	}

	// ReadDir sorts by name; keep numeric order so "10" follows "9".
	sort.SliceStable(exps, func(i, j int) bool {
		a, _ := strconv.Atoi(exps[i].ID)
		b, _ := strconv.Atoi(exps[j].ID)
		return a < b
	})
	return exps, nil
}

// ScanRuns lists the run directories of one experiment with their fingerprints.
func ScanRuns(exp model.Experiment) ([]DiscoveredRun, error) {
	entries, err := os.ReadDir(exp.Dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}

	var runs []DiscoveredRun
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "models" || e.Name() == ".trash" {
			continue
		}
		dr := DiscoveredRun{
			Path:         filepath.Join(exp.Dir, e.Name()),
			RunID:        e.Name(),
			ExperimentID: exp.ID,
		}
		dr.MtimeNs, dr.SizeBytes = fingerprint(dr.Path)
		runs = append(runs, dr)
	}
	return runs, nil
}

// fingerprint walks the parts of a run ParseRun reads. Artifacts are skipped:
// they can be large and never change the parsed result.
func fingerprint(runDir string) (mtimeNs, size int64) {
	visit := func(path string) {
		info, err := os.Stat(path)
		if err != nil {
			return
		}
		if m := info.ModTime().UnixNano(); m > mtimeNs {
			mtimeNs = m
		}
		if !info.IsDir() {
			size += info.Size()
		}
	}

	visit(filepath.Join(runDir, "meta.yaml"))
	for _, sub := range []string{"metrics", "params", "tags"} {
		dir := filepath.Join(runDir, sub)
		visit(dir)
		entries, err := os.ReadDir(dir)
		if err != nil {
			continue
		}
		for _, e := range entries {
			visit(filepath.Join(dir, e.Name()))
		}
	}
	return mtimeNs, size
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}
