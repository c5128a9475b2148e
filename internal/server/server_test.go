package server

import (
	"bufio"
	"context"
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/logger"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/predcache"
	"github.com/theirongolddev/emiscope/internal/schema"
	"github.com/theirongolddev/emiscope/internal/store"
)

type stubClassifier struct{}

func (stubClassifier) PredictProba([]float64) ([]float64, error) {
	return []float64{0.7, 0.2, 0.1}, nil
}

type stubRegressor struct{}

func (stubRegressor) Predict([]float64) (float64, error) { return 15000, nil }

func testContext(t *testing.T) *inference.Context {
	t.Helper()
	s := schema.MustNew("monthly_salary", "credit_score", "dti_ratio", "gender_Male")
	c := inference.NewContext(s, stubClassifier{}, stubRegressor{}, logger.NewTest(t))
	c.Fingerprint = "test"
	return c
}

func put(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o750))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func mlrunsFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	exp := filepath.Join(root, "3")
	put(t, filepath.Join(exp, "meta.yaml"), "name: EMIPredict_AI\n")
	put(t, filepath.Join(exp, "a1", "metrics", "accuracy"), "1 0.91\n")
	put(t, filepath.Join(exp, "a1", "tags", "mlflow.runName"), "XGBoost_Classifier")
	put(t, filepath.Join(exp, "b2", "metrics", "rmse"), "1 4100\n")
	put(t, filepath.Join(exp, "b2", "metrics", "r2"), "1 0.82\n")
	put(t, filepath.Join(exp, "b2", "tags", "mlflow.runName"), "RandomForest_Regressor")
	return root
}

func newTestServer(t *testing.T, deps Deps, mlruns string) *Server {
	t.Helper()
	if deps.Logger == nil {
		deps.Logger = logger.NewTest(t)
	}
	return New(Config{MLrunsDir: mlruns, Interval: 10 * time.Second}, deps)
}

func do(t *testing.T, h http.Handler, method, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestDiffSnapshots(t *testing.T) {
	prev := Snapshot{
		Runs:           4,
		Classification: 2,
		Regression:     2,
		BestAccuracy:   0.88,
		BestR2:         0.74,
	}
	curr := Snapshot{
		Runs:           6,
		Classification: 3,
		Regression:     3,
		BestAccuracy:   0.91,
		BestR2:         0.74,
	}

	delta := diffSnapshots(prev, curr)
	if delta.Runs != 2 {
		t.Fatalf("Runs delta = %d, want 2", delta.Runs)
	}
	if delta.Classification != 1 || delta.Regression != 1 {
		t.Fatalf("type deltas = %d/%d, want 1/1", delta.Classification, delta.Regression)
	}
	if math.Abs(delta.BestAccuracy-0.03) > 1e-9 {
		t.Fatalf("BestAccuracy delta = %.4f, want 0.03", delta.BestAccuracy)
	}
	if delta.BestR2 != 0 {
		t.Fatalf("BestR2 delta = %.4f, want 0", delta.BestR2)
	}
	if delta.isZero() {
		t.Fatal("delta unexpectedly reported as zero")
	}
	if !diffSnapshots(curr, curr).isZero() {
		t.Fatal("identical snapshots produced a non-zero delta")
	}
}

func TestPublishEventRingBuffer(t *testing.T) {
	s := New(Config{
		MLrunsDir:    ".",
		Interval:     10 * time.Second,
		EventsBuffer: 2,
	}, Deps{})

	s.publishEvent(Event{ID: 1})
	s.publishEvent(Event{ID: 2})
	s.publishEvent(Event{ID: 3})

	s.mu.RLock()
	defer s.mu.RUnlock()

	if len(s.events) != 2 {
		t.Fatalf("events len = %d, want 2", len(s.events))
	}
	if s.events[0].ID != 2 || s.events[1].ID != 3 {
		t.Fatalf("events ring contains IDs [%d, %d], want [2, 3]", s.events[0].ID, s.events[1].ID)
	}
}

func TestHealthAndStatus(t *testing.T) {
	s := newTestServer(t, Deps{Context: testContext(t)}, t.TempDir())
	h := s.Handler()

	rec := do(t, h, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok\n", rec.Body.String())

	rec = do(t, h, http.MethodGet, "/v1/status", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.True(t, st.Artifacts.Ready)
	assert.Equal(t, 4, st.Artifacts.SchemaColumns)
	assert.Equal(t, "test", st.Artifacts.Fingerprint)
	assert.Equal(t, 10, st.PollIntervalSec)
}

func TestPredict_ServesAndRecordsDecision(t *testing.T) {
	db, err := store.Open(filepath.Join(t.TempDir(), "emiscope.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	s := newTestServer(t, Deps{Context: testContext(t), Store: db}, t.TempDir())
	h := s.Handler()

	rec := do(t, h, http.MethodPost, "/v1/predict", `{"monthly_salary": 60000, "emi_scenario": "Vehicle EMI"}`)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var d inference.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	require.NotNil(t, d.Eligibility)
	assert.Equal(t, "Eligible", d.Eligibility.Name)
	require.NotNil(t, d.MaxEMI)
	assert.Equal(t, "15000", d.MaxEMI.Amount.String())
	assert.InDelta(t, 25.0, d.MaxEMI.SalaryRatioPct, 1e-9)
	assert.Equal(t, 60000.0, d.MaxEMI.MonthlySalary)

	rec = do(t, h, http.MethodGet, "/v1/history?limit=5", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var hist HistoryResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hist))
	require.Len(t, hist.Records, 1)
	assert.Equal(t, "server", hist.Records[0].Source)
	assert.Equal(t, d.RequestID, hist.Records[0].ID)
	assert.Equal(t, 1, hist.Summary.Total)
}

func TestPredict_SingleTasks(t *testing.T) {
	h := newTestServer(t, Deps{Context: testContext(t)}, t.TempDir()).Handler()

	rec := do(t, h, http.MethodPost, "/v1/eligibility", `{}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var d inference.Decision
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.NotNil(t, d.Eligibility)
	assert.Nil(t, d.MaxEMI)

	rec = do(t, h, http.MethodPost, "/v1/max-emi", "")
	require.Equal(t, http.StatusOK, rec.Code, "empty body means all defaults")
	d = inference.Decision{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &d))
	assert.Nil(t, d.Eligibility)
	assert.NotNil(t, d.MaxEMI)
}

func TestPredict_InvalidProfiles(t *testing.T) {
	h := newTestServer(t, Deps{Context: testContext(t)}, t.TempDir()).Handler()

	tests := []struct {
		name   string
		target string
		body   string
		want   int
	}{
		{"out of range", "/v1/predict", `{"age": 5}`, http.StatusBadRequest},
		{"wrong type", "/v1/predict", `{"credit_score": "high"}`, http.StatusBadRequest},
		{"not an object", "/v1/predict", `[1, 2]`, http.StatusBadRequest},
		{"unknown level, lenient", "/v1/predict", `{"gender": "Martian"}`, http.StatusOK},
		{"unknown level, strict", "/v1/predict?strict=true", `{"gender": "Martian"}`, http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := do(t, h, http.MethodPost, tt.target, tt.body)
			require.Equal(t, tt.want, rec.Code, rec.Body.String())
			if tt.want != http.StatusBadRequest {
				return
			}
			var body ErrorBody
			require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
			assert.Equal(t, apperr.CodeInvalidProfile, body.Error.Code)
			assert.NotEmpty(t, body.RequestID)
		})
	}
}

func TestPredict_NoArtifacts(t *testing.T) {
	missing := apperr.ArtifactMissing("feature schema", "/srv/models/feature_columns.json", os.ErrNotExist)
	h := newTestServer(t, Deps{ContextErr: missing}, t.TempDir()).Handler()

	rec := do(t, h, http.MethodPost, "/v1/predict", `{}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, apperr.CodeArtifactMissing, body.Error.Code)
	assert.Contains(t, body.Error.Message, "feature_columns.json")

	rec = do(t, h, http.MethodGet, "/v1/status", "")
	var st Status
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &st))
	assert.False(t, st.Artifacts.Ready)
	assert.NotEmpty(t, st.Artifacts.Error)
}

func TestPredict_UsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	cache := predcache.NewRedisClient(redis.NewClient(&redis.Options{Addr: mr.Addr()}))
	t.Cleanup(func() { _ = cache.Close() })

	db, err := store.Open(filepath.Join(t.TempDir(), "emiscope.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	core, logs := observer.New(zapcore.WarnLevel)
	ic := inference.NewContext(
		schema.MustNew("monthly_salary", "credit_score", "dti_ratio", "gender_Male", "legacy_score"),
		stubClassifier{}, stubRegressor{}, logger.FromZap(zap.New(core)))
	ic.Fingerprint = "test"

	h := newTestServer(t, Deps{Context: ic, Cache: cache, Store: db}, t.TempDir()).Handler()
	body := `{"monthly_salary": 80000, "gender": "Martian"}`

	var first, second inference.Decision
	rec := do(t, h, http.MethodPost, "/v1/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &first))
	assert.False(t, first.Cached)

	rec = do(t, h, http.MethodPost, "/v1/predict", body)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &second))
	assert.True(t, second.Cached)
	assert.NotEqual(t, first.RequestID, second.RequestID)
	assert.Equal(t, first.Eligibility.Name, second.Eligibility.Name)
	assert.Equal(t, first.Diagnostics.Mismatch, second.Diagnostics.Mismatch)
	assert.Len(t, mr.Keys(), 1)

	// Mismatches are reported on every request, cached or not.
	unseen := logs.FilterMessage("unseen categorical level encodes as all zeros").Len()
	missing := logs.FilterMessage("schema column missing from row, zero-filled").Len()
	assert.Equal(t, 2, unseen)
	assert.Equal(t, 2, missing)

	recs, err := db.RecentPredictions(10)
	require.NoError(t, err)
	require.Len(t, recs, 2)
	ids := []string{recs[0].ID, recs[1].ID}
	assert.ElementsMatch(t, []string{first.RequestID, second.RequestID}, ids)
}

func TestFeatures(t *testing.T) {
	h := newTestServer(t, Deps{Context: testContext(t)}, t.TempDir()).Handler()

	rec := do(t, h, http.MethodPost, "/v1/features", `{"monthly_salary": 40000, "gender": "Female"}`)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp FeaturesResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, []string{"monthly_salary", "credit_score", "dti_ratio", "gender_Male"}, resp.Vector.Columns)
	v, ok := resp.Vector.Get("monthly_salary")
	assert.True(t, ok)
	assert.Equal(t, 40000.0, v)
	v, _ = resp.Vector.Get("gender_Male")
	assert.Equal(t, 0.0, v)
	assert.NotEmpty(t, resp.Diagnostics.Mismatch.Extra)
}

func TestExperimentsAndEvents(t *testing.T) {
	root := mlrunsFixture(t)
	s := newTestServer(t, Deps{Context: testContext(t)}, root)
	h := s.Handler()

	s.pollOnce()

	rec := do(t, h, http.MethodGet, "/v1/experiments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var exps ExperimentsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &exps))
	assert.Equal(t, "EMIPredict_AI", exps.Experiment)
	require.Len(t, exps.Comparison.Classification, 1)
	require.Len(t, exps.Comparison.Regression, 1)
	assert.Equal(t, 1, exps.Counts[model.RunClassification])

	rec = do(t, h, http.MethodGet, "/v1/experiments/final", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var final model.FinalModels
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &final))
	require.NotNil(t, final.Classifier)
	assert.Equal(t, "XGBoost_Classifier", final.Classifier.Name)
	require.NotNil(t, final.Regressor)
	assert.Equal(t, "RandomForest_Regressor", final.Regressor.Name)

	rec = do(t, h, http.MethodGet, "/v1/runs/b2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var run model.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &run))
	assert.Equal(t, model.RunRegression, run.Type)
	assert.Equal(t, 0.82, run.Metrics["r2"])

	rec = do(t, h, http.MethodGet, "/v1/runs/nope", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	// Unchanged directory: no new event.
	s.pollOnce()
	put(t, filepath.Join(root, "3", "c3", "metrics", "accuracy"), "1 0.95\n")
	s.pollOnce()

	rec = do(t, h, http.MethodGet, "/v1/events", "")
	var events []Event
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &events))
	require.Len(t, events, 2)
	assert.Equal(t, EventSnapshot, events[0].Type)
	assert.Equal(t, EventRunsDelta, events[1].Type)
	assert.Equal(t, 1, events[1].Delta.Classification)
	assert.InDelta(t, 0.04, events[1].Delta.BestAccuracy, 1e-9)
	assert.Equal(t, 0.95, events[1].Snapshot.BestAccuracy)
}

func TestPoll_MissingDirectoryIsEmptySnapshot(t *testing.T) {
	s := newTestServer(t, Deps{}, filepath.Join(t.TempDir(), "absent"))
	s.pollOnce()

	st := s.snapshotStatus()
	assert.Empty(t, st.LastError)
	assert.Equal(t, 0, st.Summary.Runs)
	assert.Equal(t, int64(1), st.PollCount)
}

func TestStream_SendsCurrentSnapshot(t *testing.T) {
	s := newTestServer(t, Deps{Context: testContext(t)}, mlrunsFixture(t))
	s.pollOnce()

	srv := httptest.NewServer(s.Handler())
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/stream", nil)
	require.NoError(t, err)

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	r := bufio.NewReader(resp.Body)
	line, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: snapshot\n", line)

	line, err = r.ReadString('\n')
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(line, "data: "))

	var ev Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &ev))
	assert.Equal(t, 2, ev.Snapshot.Runs)
	assert.Equal(t, "EMIPredict_AI", ev.Snapshot.Experiment)
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestServer(t, Deps{}, t.TempDir()).Handler()
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}

func TestStatusFor(t *testing.T) {
	tests := map[apperr.Code]int{
		apperr.CodeArtifactMissing:  http.StatusServiceUnavailable,
		apperr.CodeInvalidProfile:   http.StatusBadRequest,
		apperr.CodeNotFound:         http.StatusNotFound,
		apperr.CodePredictionFailed: http.StatusInternalServerError,
		apperr.CodeInternal:         http.StatusInternalServerError,
	}
	for code, want := range tests {
		if got := StatusFor(code); got != want {
			t.Errorf("StatusFor(%s) = %d, want %d", code, got, want)
		}
	}
}
