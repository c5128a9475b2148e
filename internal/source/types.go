package source

import (
	"strconv"

	"gopkg.in/yaml.v3"
)

// experimentMeta is an experiment's meta.yaml.
type experimentMeta struct {
	ExperimentID   string `yaml:"experiment_id"`
	Name           string `yaml:"name"`
	LifecycleStage string `yaml:"lifecycle_stage"`
	ArtifactLoc    string `yaml:"artifact_location"`
}

// runMeta is a run's meta.yaml. Times are epoch milliseconds.
type runMeta struct {
	RunID          string    `yaml:"run_id"`
	RunUUID        string    `yaml:"run_uuid"`
	RunName        string    `yaml:"run_name"`
	ExperimentID   string    `yaml:"experiment_id"`
	LifecycleStage string    `yaml:"lifecycle_stage"`
	StartTime      *int64    `yaml:"start_time"`
	EndTime        *int64    `yaml:"end_time"`
	Status         runStatus `yaml:"status"`
}

// runStatus accepts both the numeric file-store enum and its name.
type runStatus string

var runStatusNames = map[int]string{
	1: "RUNNING",
	2: "SCHEDULED",
	3: "FINISHED",
	4: "FAILED",
	5: "KILLED",
}

func (s *runStatus) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.ScalarNode {
		return nil
	}
	if n, err := strconv.Atoi(value.Value); err == nil {
		if name, ok := runStatusNames[n]; ok {
			*s = runStatus(name)
			return nil
		}
	}
	*s = runStatus(value.Value)
	return nil
}

// DiscoveredRun is a run directory found during scanning.
type DiscoveredRun struct {
	Path         string
	RunID        string
	ExperimentID string

	// Fingerprint of the run directory: newest mtime and total size of the
	// files that feed ParseRun.
	MtimeNs   int64
	SizeBytes int64
}
