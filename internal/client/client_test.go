package client

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/schema"
	"github.com/theirongolddev/emiscope/internal/server"
)

type stubClassifier struct{}

func (stubClassifier) PredictProba([]float64) ([]float64, error) {
	return []float64{0.1, 0.2, 0.7}, nil
}

type stubRegressor struct{}

func (stubRegressor) Predict([]float64) (float64, error) { return 4200.5, nil }

func startServer(t *testing.T) *Client {
	t.Helper()
	ic := inference.NewContext(schema.MustNew("monthly_salary", "credit_score"), stubClassifier{}, stubRegressor{}, nil)
	s := server.New(server.Config{MLrunsDir: t.TempDir()}, server.Deps{Context: ic})
	srv := httptest.NewServer(s.Handler())
	t.Cleanup(srv.Close)

	c := New(srv.URL)
	require.NotNil(t, c)
	return c
}

func TestNew(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"", ""},
		{"   ", ""},
		{"127.0.0.1:8790", "http://127.0.0.1:8790"},
		{"http://localhost:8790/", "http://localhost:8790"},
		{"https://emi.example.com", "https://emi.example.com"},
	}
	for _, tt := range tests {
		c := New(tt.in)
		if tt.want == "" {
			if c != nil {
				t.Errorf("New(%q) = %q, want nil", tt.in, c.BaseURL())
			}
			continue
		}
		if c == nil || c.BaseURL() != tt.want {
			t.Errorf("New(%q) = %v, want %q", tt.in, c, tt.want)
		}
	}
}

func TestPredictRoundTrip(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	require.NoError(t, c.Health(ctx))

	d, err := c.Predict(ctx, inference.TaskBoth, profile.Defaults(), false)
	require.NoError(t, err)
	require.NotNil(t, d.Eligibility)
	assert.Equal(t, predictor.NotEligible, d.Eligibility.Label, "label restored from its name")
	require.NotNil(t, d.MaxEMI)
	assert.Equal(t, "4200.50", d.MaxEMI.Amount.StringFixed(2))

	d, err = c.Predict(ctx, inference.TaskEligibility, profile.Defaults(), true)
	require.NoError(t, err)
	assert.Nil(t, d.MaxEMI)
}

func TestPredict_InvalidProfileIsCoded(t *testing.T) {
	c := startServer(t)

	p := profile.Defaults()
	p.Gender = "Martian"
	_, err := c.Predict(context.Background(), inference.TaskBoth, p, true)
	require.Error(t, err)
	assert.True(t, apperr.Is(err, apperr.CodeInvalidProfile), "got %v", err)
}

func TestStatusAndFeatures(t *testing.T) {
	c := startServer(t)
	ctx := context.Background()

	st, err := c.Status(ctx)
	require.NoError(t, err)
	assert.True(t, st.Artifacts.Ready)
	assert.Equal(t, 2, st.Artifacts.SchemaColumns)

	fr, err := c.Features(ctx, profile.Defaults(), false)
	require.NoError(t, err)
	assert.Equal(t, []string{"monthly_salary", "credit_score"}, fr.Vector.Columns)
	assert.Equal(t, []float64{50000, 750}, fr.Vector.Values)

	hr, err := c.History(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, hr.Records)
}

func TestUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	addr := srv.URL
	srv.Close()

	err := New(addr).Health(context.Background())
	assert.True(t, errors.Is(err, ErrUnreachable), "got %v", err)
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = io.WriteString(w, "upstream down")
	}))
	defer srv.Close()

	_, err := New(srv.URL).Status(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unexpected status 502")
}

func TestRequestCarriesProfileJSON(t *testing.T) {
	var got map[string]interface{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/max-emi", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		_ = json.NewDecoder(r.Body).Decode(&got)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(inference.Decision{RequestID: "x", CreatedAt: time.Now()})
	}))
	defer srv.Close()

	p := profile.Defaults()
	p.RequestedAmount = 450000
	d, err := New(srv.URL).Predict(context.Background(), inference.TaskMaxEMI, p, false)
	require.NoError(t, err)
	assert.Equal(t, "x", d.RequestID)
	assert.Equal(t, 450000.0, got["requested_amount"])
}
