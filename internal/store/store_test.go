package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/emiscope/internal/model"
)

func openTemp(t *testing.T) *Cache {
	t.Helper()
	c, err := Open(filepath.Join(t.TempDir(), "sub", "emiscope.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func sampleRun(id string) model.Run {
	return model.Run{
		RunID:        id,
		ExperimentID: "1",
		Name:         "XGBoost_" + id,
		Type:         model.RunClassification,
		Status:       "FINISHED",
		Dir:          "/mlruns/1/" + id,
		StartTime:    time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC),
		EndTime:      time.Date(2025, 3, 1, 9, 2, 0, 0, time.UTC),
		Metrics:      map[string]float64{"accuracy": 0.93, "f1_score": 0.9},
		Params:       map[string]string{"max_depth": "6"},
	}
}

func TestSaveAndLoadRuns(t *testing.T) {
	c := openTemp(t)

	require.NoError(t, c.SaveRun(sampleRun("a"), 100, 10))
	require.NoError(t, c.SaveRun(sampleRun("b"), 200, 20))

	other := sampleRun("c")
	other.ExperimentID = "2"
	require.NoError(t, c.SaveRun(other, 300, 30))

	runs, err := c.LoadRuns("1")
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, "a", runs[0].RunID)
	assert.Equal(t, 0.93, runs[0].Metrics["accuracy"])
	assert.Equal(t, "6", runs[0].Params["max_depth"])
	assert.Equal(t, int64(120), runs[0].DurationSecs())

	tracked, err := c.GetTrackedRuns()
	require.NoError(t, err)
	assert.Equal(t, RunInfo{MtimeNs: 200, SizeBytes: 20}, tracked["/mlruns/1/b"])

	n, err := c.RunCount()
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestSaveRun_ReplacesMetrics(t *testing.T) {
	c := openTemp(t)

	r := sampleRun("a")
	require.NoError(t, c.SaveRun(r, 1, 1))
	r.Metrics = map[string]float64{"accuracy": 0.95}
	require.NoError(t, c.SaveRun(r, 2, 2))

	runs, err := c.LoadRuns("1")
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, map[string]float64{"accuracy": 0.95}, runs[0].Metrics)
}

func TestDeleteRun(t *testing.T) {
	c := openTemp(t)
	r := sampleRun("a")
	require.NoError(t, c.SaveRun(r, 1, 1))
	require.NoError(t, c.DeleteRun(r.RunID, r.Dir))

	n, err := c.RunCount()
	require.NoError(t, err)
	assert.Zero(t, n)
	tracked, err := c.GetTrackedRuns()
	require.NoError(t, err)
	assert.Empty(t, tracked)
}

func TestPredictionHistory(t *testing.T) {
	c := openTemp(t)
	base := time.Date(2025, 5, 1, 12, 0, 0, 0, time.UTC)
	emi := 12000.5
	ratio := 24.0

	require.NoError(t, c.SavePrediction(model.PredictionRecord{
		ID: "1", CreatedAt: base, Source: "cli", Task: "both", Label: "Eligible",
		Probabilities: []float64{0.8, 0.1, 0.1}, MaxEMI: &emi, EMIRatioPct: &ratio, Profile: `{}`,
	}))
	require.NoError(t, c.SavePrediction(model.PredictionRecord{
		ID: "2", CreatedAt: base.Add(time.Minute), Source: "server", Task: "eligibility",
		Label: "High Risk", Profile: `{}`,
	}))
	require.NoError(t, c.SavePrediction(model.PredictionRecord{
		ID: "3", CreatedAt: base.Add(2 * time.Minute), Source: "tui", Task: "eligibility",
		Label: "Eligible", Profile: `{}`,
	}))

	recent, err := c.RecentPredictions(2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "3", recent[0].ID)
	assert.Equal(t, "2", recent[1].ID)
	assert.Nil(t, recent[1].MaxEMI)

	all, err := c.RecentPredictions(10)
	require.NoError(t, err)
	require.Len(t, all, 3)
	first := all[2]
	require.NotNil(t, first.MaxEMI)
	assert.Equal(t, emi, *first.MaxEMI)
	assert.Equal(t, []float64{0.8, 0.1, 0.1}, first.Probabilities)
	assert.True(t, first.CreatedAt.Equal(base))

	sum, err := c.SummarizeHistory()
	require.NoError(t, err)
	assert.Equal(t, 3, sum.Total)
	assert.Equal(t, 2, sum.ByLabel["Eligible"])
	assert.Equal(t, 1, sum.ByLabel["High Risk"])
	assert.InDelta(t, emi, sum.AvgEMI, 1e-9)
}
