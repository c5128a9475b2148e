package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/inference"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
	"github.com/theirongolddev/emiscope/internal/predcache"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/schema"
)

const maxBodyBytes = 1 << 20

// Artifacts describes the loaded inference context in /v1/status.
type Artifacts struct {
	Ready         bool            `json:"ready"`
	Error         string          `json:"error,omitempty"`
	SchemaColumns int             `json:"schema_columns,omitempty"`
	Fingerprint   string          `json:"fingerprint,omitempty"`
	Classifier    *predictor.Info `json:"classifier,omitempty"`
	Regressor     *predictor.Info `json:"regressor,omitempty"`
}

// Status is served at /v1/status.
type Status struct {
	StartedAt       time.Time `json:"started_at"`
	LastPollAt      time.Time `json:"last_poll_at"`
	PollIntervalSec int       `json:"poll_interval_sec"`
	PollCount       int64     `json:"poll_count"`
	MLrunsDir       string    `json:"mlruns_dir"`
	Experiment      string    `json:"experiment,omitempty"`
	Summary         Snapshot  `json:"summary"`
	LastError       string    `json:"last_error,omitempty"`
	EventCount      int       `json:"event_count"`
	SubscriberCount int       `json:"subscriber_count"`
	Artifacts       Artifacts `json:"artifacts"`
}

// FeaturesResponse is the body of POST /v1/features.
type FeaturesResponse struct {
	Vector      schema.Vector         `json:"vector"`
	Diagnostics inference.Diagnostics `json:"diagnostics"`
}

// ExperimentsResponse is the body of GET /v1/experiments.
type ExperimentsResponse struct {
	Experiment string                `json:"experiment"`
	Counts     map[model.RunType]int `json:"counts"`
	Comparison model.Comparison      `json:"comparison"`
}

// HistoryResponse is the body of GET /v1/history.
type HistoryResponse struct {
	Records []model.PredictionRecord `json:"records"`
	Summary model.HistorySummary     `json:"summary"`
}

func (s *Server) snapshotStatus() Status {
	s.mu.RLock()
	st := Status{
		StartedAt:       s.startedAt,
		LastPollAt:      s.lastPollAt,
		PollIntervalSec: int(s.cfg.Interval.Seconds()),
		PollCount:       s.pollCount,
		MLrunsDir:       s.cfg.MLrunsDir,
		Experiment:      s.cfg.Experiment,
		Summary:         s.snapshot,
		LastError:       s.lastError,
		EventCount:      len(s.events),
		SubscriberCount: len(s.subs),
	}
	s.mu.RUnlock()

	if s.infer == nil {
		st.Artifacts.Error = s.inferEr.Error()
		return st
	}
	clf, reg := s.infer.ClassifierInfo, s.infer.RegressorInfo
	st.Artifacts = Artifacts{
		Ready:         true,
		SchemaColumns: s.infer.Schema.Len(),
		Fingerprint:   s.infer.Fingerprint,
		Classifier:    &clf,
		Regressor:     &reg,
	}
	return st
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("ok\n"))
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.snapshotStatus())
}

func (s *Server) handleEvents(w http.ResponseWriter, _ *http.Request) {
	s.mu.RLock()
	events := make([]Event, len(s.events))
	copy(events, s.events)
	s.mu.RUnlock()

	writeJSON(w, http.StatusOK, events)
}

func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	ch := make(chan Event, 16)
	id := s.addSubscriber(ch)
	defer s.removeSubscriber(id)

	current := Event{
		Type:      EventSnapshot,
		Timestamp: time.Now(),
		Snapshot:  s.snapshotStatus().Summary,
	}
	writeSSE(w, current)
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case ev, open := <-ch:
			if !open {
				return
			}
			writeSSE(w, ev)
			flusher.Flush()
		}
	}
}

func writeSSE(w io.Writer, ev Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	_, _ = fmt.Fprintf(w, "event: %s\n", ev.Type)
	_, _ = fmt.Fprintf(w, "data: %s\n\n", data)
}

// context returns the inference context or the coded error explaining why
// there is none.
func (s *Server) context() (*inference.Context, error) {
	if s.infer != nil {
		return s.infer, nil
	}
	var e *apperr.Error
	if errors.As(s.inferEr, &e) {
		return nil, s.inferEr
	}
	return nil, apperr.Wrap(apperr.CodeArtifactMissing, "artifacts not loaded", s.inferEr)
}

// decodeProfile reads a JSON object from the body, validates it and overlays
// it onto the configured defaults.
func (s *Server) decodeProfile(w http.ResponseWriter, r *http.Request) (profile.RawProfile, error) {
	var payload map[string]interface{}
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	if err := dec.Decode(&payload); err != nil {
		if errors.Is(err, io.EOF) {
			payload = map[string]interface{}{}
		} else {
			return profile.RawProfile{}, apperr.InvalidProfile([]string{"body is not a JSON object: " + err.Error()})
		}
	}
	if payload == nil {
		payload = map[string]interface{}{}
	}

	strict := s.cfg.Strict
	if v := r.URL.Query().Get("strict"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			strict = b
		}
	}

	if err := profile.Validate(payload, strict); err != nil {
		var ve *profile.ValidationError
		if errors.As(err, &ve) {
			return profile.RawProfile{}, apperr.InvalidProfile(ve.Problems)
		}
		return profile.RawProfile{}, err
	}

	p, err := profile.FromMap(s.cfg.Defaults, payload)
	if err != nil {
		return profile.RawProfile{}, apperr.InvalidProfile([]string{err.Error()})
	}
	return p, nil
}

func (s *Server) handlePredict(task string) http.HandlerFunc {
	predict := inference.Predict
	switch task {
	case inference.TaskEligibility:
		predict = inference.PredictEligibility
	case inference.TaskMaxEMI:
		predict = inference.PredictMaxEMI
	}

	return func(w http.ResponseWriter, r *http.Request) {
		p, err := s.decodeProfile(w, r)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		ic, err := s.context()
		if err != nil {
			s.writeError(w, r, err)
			return
		}

		key := predcache.Key(task, p, ic.Fingerprint)
		if d, ok := predcache.Lookup(r.Context(), s.cache, s.log, key); ok {
			d = inference.Reuse(ic, p, d)
			s.record(task, p, d)
			writeJSON(w, http.StatusOK, d)
			return
		}

		d, err := predict(ic, p)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		predcache.Store(r.Context(), s.cache, s.log, key, d, s.cfg.CacheTTL)
		s.record(task, p, d)
		writeJSON(w, http.StatusOK, d)
	}
}

func (s *Server) record(task string, p profile.RawProfile, d inference.Decision) {
	if s.db == nil {
		return
	}
	if err := s.db.SavePrediction(inference.Record("server", task, p, d)); err != nil {
		s.log.WithError(err).Warn("saving prediction history failed", map[string]interface{}{"request_id": d.RequestID})
	}
}

func (s *Server) handleFeatures(w http.ResponseWriter, r *http.Request) {
	p, err := s.decodeProfile(w, r)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	ic, err := s.context()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	vec, diag := inference.Transform(ic, p)
	writeJSON(w, http.StatusOK, FeaturesResponse{Vector: vec, Diagnostics: diag})
}

func (s *Server) handleExperiments(w http.ResponseWriter, _ *http.Request) {
	runs, exp := s.currentRuns()
	writeJSON(w, http.StatusOK, ExperimentsResponse{
		Experiment: exp,
		Counts:     pipeline.CountByType(runs),
		Comparison: pipeline.Compare(runs),
	})
}

func (s *Server) handleFinal(w http.ResponseWriter, _ *http.Request) {
	runs, _ := s.currentRuns()
	writeJSON(w, http.StatusOK, pipeline.SelectFinal(runs))
}

func (s *Server) handleRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	runs, _ := s.currentRuns()
	run, ok := pipeline.FindRun(runs, id)
	if !ok {
		s.writeError(w, r, apperr.New(apperr.CodeNotFound, fmt.Sprintf("run %q not found", id)))
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	if s.db == nil {
		writeJSON(w, http.StatusOK, HistoryResponse{Records: []model.PredictionRecord{}})
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	records, err := s.db.RecentPredictions(limit)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	summary, err := s.db.SummarizeHistory()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.PredictionRecord{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Records: records, Summary: summary})
}
