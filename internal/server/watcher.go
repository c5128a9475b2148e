package server

import (
	"math"
	"time"

	"github.com/theirongolddev/emiscope/internal/metrics"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/pipeline"
)

// Snapshot is a compact experiment state for status/event payloads.
type Snapshot struct {
	At              time.Time `json:"at"`
	Experiment      string    `json:"experiment,omitempty"`
	Runs            int       `json:"runs"`
	Classification  int       `json:"classification"`
	Regression      int       `json:"regression"`
	Unknown         int       `json:"unknown"`
	BestAccuracy    float64   `json:"best_accuracy"`
	BestR2          float64   `json:"best_r2"`
	FinalClassifier string    `json:"final_classifier,omitempty"`
	FinalRegressor  string    `json:"final_regressor,omitempty"`
}

// Delta captures snapshot deltas between polls.
type Delta struct {
	Runs           int     `json:"runs"`
	Classification int     `json:"classification"`
	Regression     int     `json:"regression"`
	BestAccuracy   float64 `json:"best_accuracy"`
	BestR2         float64 `json:"best_r2"`
}

func (d Delta) isZero() bool {
	return d.Runs == 0 &&
		d.Classification == 0 &&
		d.Regression == 0 &&
		d.BestAccuracy == 0 &&
		d.BestR2 == 0
}

// Event is emitted whenever the experiment snapshot changes.
type Event struct {
	ID        int64     `json:"id"`
	Type      string    `json:"type"`
	Timestamp time.Time `json:"timestamp"`
	Snapshot  Snapshot  `json:"snapshot"`
	Delta     Delta     `json:"delta"`
}

// Event types.
const (
	EventSnapshot  = "snapshot"
	EventRunsDelta = "runs_delta"
)

func (s *Server) pollOnce() {
	start := time.Now()
	result, err := s.loadRuns()
	if err != nil {
		s.mu.Lock()
		s.lastError = err.Error()
		s.lastPollAt = time.Now()
		s.pollCount++
		s.mu.Unlock()
		s.log.WithError(err).Warn("experiment poll failed", map[string]interface{}{"mlruns_dir": s.cfg.MLrunsDir})
		return
	}

	now := time.Now()
	snap := snapshotFromRuns(result.Experiment, result.Runs, now)
	for t, n := range pipeline.CountByType(result.Runs) {
		metrics.RunsLoaded.WithLabelValues(string(t)).Set(float64(n))
	}

	var (
		ev      Event
		publish bool
	)

	s.mu.Lock()
	prev := s.snapshot
	prevExists := s.hasSnapshot

	s.hasSnapshot = true
	s.snapshot = snap
	s.runs = result.Runs
	s.lastPollAt = now
	s.pollCount++
	s.lastError = ""

	if !prevExists {
		s.nextEventID++
		ev = Event{
			ID:        s.nextEventID,
			Type:      EventSnapshot,
			Timestamp: now,
			Snapshot:  snap,
		}
		publish = true
	} else {
		delta := diffSnapshots(prev, snap)
		if !delta.isZero() {
			s.nextEventID++
			ev = Event{
				ID:        s.nextEventID,
				Type:      EventRunsDelta,
				Timestamp: now,
				Snapshot:  snap,
				Delta:     delta,
			}
			publish = true
		}
	}
	s.mu.Unlock()

	if publish {
		s.publishEvent(ev)
	}
	s.log.Debug("experiment poll", map[string]interface{}{
		"runs":        snap.Runs,
		"duration_ms": time.Since(start).Milliseconds(),
	})
}

func (s *Server) loadRuns() (*pipeline.LoadResult, error) {
	if s.cfg.UseCache && s.db != nil {
		cr, err := pipeline.LoadWithCache(s.cfg.MLrunsDir, s.cfg.Experiment, s.db, nil)
		if err == nil {
			return &cr.LoadResult, nil
		}
		s.log.WithError(err).Warn("cached run load failed, reparsing", nil)
	}
	return pipeline.Load(s.cfg.MLrunsDir, s.cfg.Experiment, nil)
}

func snapshotFromRuns(exp *model.Experiment, runs []model.Run, at time.Time) Snapshot {
	snap := Snapshot{At: at, Runs: len(runs)}
	if exp != nil {
		snap.Experiment = exp.Name
	}
	counts := pipeline.CountByType(runs)
	snap.Classification = counts[model.RunClassification]
	snap.Regression = counts[model.RunRegression]
	snap.Unknown = counts[model.RunUnknown]

	snap.BestAccuracy = best(runs, model.RunClassification)
	snap.BestR2 = best(runs, model.RunRegression)

	final := pipeline.SelectFinal(runs)
	if final.Classifier != nil {
		snap.FinalClassifier = final.Classifier.Name
	}
	if final.Regressor != nil {
		snap.FinalRegressor = final.Regressor.Name
	}
	return snap
}

// best returns the highest primary metric among runs of type t, or 0.
func best(runs []model.Run, t model.RunType) float64 {
	metric := model.PrimaryMetric(t)
	v := math.Inf(-1)
	for _, r := range runs {
		if r.Type != t {
			continue
		}
		if m, ok := r.Metric(metric); ok && m > v {
			v = m
		}
	}
	if math.IsInf(v, -1) {
		return 0
	}
	return v
}

func diffSnapshots(prev, curr Snapshot) Delta {
	return Delta{
		Runs:           curr.Runs - prev.Runs,
		Classification: curr.Classification - prev.Classification,
		Regression:     curr.Regression - prev.Regression,
		BestAccuracy:   curr.BestAccuracy - prev.BestAccuracy,
		BestR2:         curr.BestR2 - prev.BestR2,
	}
}

func (s *Server) publishEvent(ev Event) {
	s.mu.Lock()
	s.events = append(s.events, ev)
	if len(s.events) > s.cfg.EventsBuffer {
		s.events = s.events[len(s.events)-s.cfg.EventsBuffer:]
	}

	for _, ch := range s.subs {
		select {
		case ch <- ev:
		default:
		}
	}
	s.mu.Unlock()
}

func (s *Server) addSubscriber(ch chan Event) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.nextSubID++
	id := s.nextSubID
	s.subs[id] = ch
	return id
}

func (s *Server) removeSubscriber(id int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.subs, id)
}

// closeSubscribers ends every open stream.
func (s *Server) closeSubscribers() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for id, ch := range s.subs {
		close(ch)
		delete(s.subs, id)
	}
}

// currentRuns returns the runs of the last successful poll.
func (s *Server) currentRuns() ([]model.Run, string) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.runs, s.snapshot.Experiment
}
