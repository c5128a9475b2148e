// Package source discovers and parses MLflow file-store experiment runs.
package source

import (
	"bufio"
	"bytes"
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/theirongolddev/emiscope/internal/model"
)

const runNameTag = "mlflow.runName"

// ParseResult holds the output of parsing a single run directory.
type ParseResult struct {
	Run         model.Run
	ParseErrors int
	Err         error
}

// ParseRun reads a run's metrics, params, tags and meta.yaml.
//
// Metric files hold one "timestamp value [step]" line per logged value; the
// last well-formed line wins. Malformed lines are counted, not fatal. The run
// name comes from the mlflow.runName tag, then meta.yaml, then the run id.
func ParseRun(dr DiscoveredRun) ParseResult {
	info, err := os.Stat(dr.Path)
	if err != nil {
		return ParseResult{Err: err}
	}
	if !info.IsDir() {
		return ParseResult{Err: errors.New("run path is not a directory")}
	}

	run := model.Run{
		RunID:        dr.RunID,
		ExperimentID: dr.ExperimentID,
		Dir:          dr.Path,
		Metrics:      make(map[string]float64),
		Params:       make(map[string]string),
	}
	var parseErrors int

	err = eachFile(filepath.Join(dr.Path, "metrics"), func(name string, data []byte) {
		v, bad, ok := lastMetricValue(data)
		parseErrors += bad
		if ok {
			run.Metrics[name] = v
		}
	})
	if err != nil {
		return ParseResult{Err: err}
	}

	err = eachFile(filepath.Join(dr.Path, "params"), func(name string, data []byte) {
		if v := strings.TrimSpace(string(data)); v != "" {
			run.Params[name] = v
		}
	})
	if err != nil {
		return ParseResult{Err: err}
	}

	if data, err := os.ReadFile(filepath.Join(dr.Path, "tags", runNameTag)); err == nil {
		run.Name = strings.TrimSpace(string(data))
	}

	if data, err := os.ReadFile(filepath.Join(dr.Path, "meta.yaml")); err == nil {
		var meta runMeta
		if err := yaml.Unmarshal(data, &meta); err != nil {
			parseErrors++
		} else {
			applyMeta(&run, meta)
		}
	}

	if run.Name == "" {
		run.Name = run.RunID
	}
	run.Type = ClassifyRun(run.Metrics)

	return ParseResult{Run: run, ParseErrors: parseErrors}
}

func applyMeta(run *model.Run, meta runMeta) {
	if run.Name == "" {
		run.Name = meta.RunName
	}
	run.Status = string(meta.Status)
	if meta.StartTime != nil && *meta.StartTime > 0 {
		run.StartTime = time.UnixMilli(*meta.StartTime).UTC()
	}
	if meta.EndTime != nil && *meta.EndTime > 0 {
		run.EndTime = time.UnixMilli(*meta.EndTime).UTC()
	}
}

// ClassifyRun infers the task from the logged metric names.
func ClassifyRun(metrics map[string]float64) model.RunType {
	if _, ok := metrics["accuracy"]; ok {
		return model.RunClassification
	}
	if _, ok := metrics["rmse"]; ok {
		return model.RunRegression
	}
	return model.RunUnknown
}

// eachFile calls fn for every regular file directly under dir. A missing dir
// is not an error.
func eachFile(dir string, fn func(name string, data []byte)) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return err
	}
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		data, err := os.ReadFile(filepath.Join(dir, e.Name()))
		if err != nil {
			continue
		}
		fn(e.Name(), data)
	}
	return nil
}

// lastMetricValue returns the value on the last well-formed line of a metric
// file and the number of malformed non-blank lines.
func lastMetricValue(data []byte) (value float64, bad int, ok bool) {
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := bytes.TrimSpace(sc.Bytes())
		if len(line) == 0 {
			continue
		}
		_, v, _, good := ParseMetricLine(line)
		if !good {
			bad++
			continue
		}
		value, ok = v, true
	}
	return value, bad, ok
}

// ParseMetricLine splits "timestamp value [step]". The step defaults to 0.
func ParseMetricLine(line []byte) (ts int64, value float64, step int64, ok bool) {
	fields := bytes.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return 0, 0, 0, false
	}
	ts, err := strconv.ParseInt(string(fields[0]), 10, 64)
	if err != nil {
		return 0, 0, 0, false
	}
	value, err = strconv.ParseFloat(string(fields[1]), 64)
	if err != nil {
		return 0, 0, 0, false
	}
	if len(fields) == 3 {
		step, err = strconv.ParseInt(string(fields[2]), 10, 64)
		if err != nil {
			return 0, 0, 0, false
		}
	}
	return ts, value, step, true
}
