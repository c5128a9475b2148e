package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/theirongolddev/emiscope/internal/model"
)

// createdLayout has a fixed-width fraction so created_at sorts as text.
const createdLayout = "2006-01-02T15:04:05.000000000Z07:00"

// SavePrediction appends one prediction to the history.
func (c *Cache) SavePrediction(rec model.PredictionRecord) error {
	var proba sql.NullString
	if len(rec.Probabilities) > 0 {
		data, err := json.Marshal(rec.Probabilities)
		if err != nil {
			return fmt.Errorf("encoding probabilities: %w", err)
		}
		proba = sql.NullString{String: string(data), Valid: true}
	}

	_, err := c.db.Exec(`INSERT INTO predictions
		(id, created_at, source, task, label, probabilities, max_emi, emi_ratio, profile)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		rec.ID, rec.CreatedAt.UTC().Format(createdLayout), rec.Source, rec.Task,
		nullString(rec.Label), proba, nullFloat(rec.MaxEMI), nullFloat(rec.EMIRatioPct), rec.Profile,
	)
	return err
}

// RecentPredictions returns up to limit predictions, newest first.
func (c *Cache) RecentPredictions(limit int) ([]model.PredictionRecord, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := c.db.Query(`SELECT
		id, created_at, source, task, label, probabilities, max_emi, emi_ratio, profile
		FROM predictions ORDER BY created_at DESC, id LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []model.PredictionRecord
	for rows.Next() {
		var rec model.PredictionRecord
		var created string
		var label, proba sql.NullString
		var maxEMI, ratio sql.NullFloat64

		if err := rows.Scan(&rec.ID, &created, &rec.Source, &rec.Task, &label, &proba,
			&maxEMI, &ratio, &rec.Profile); err != nil {
			return nil, err
		}
		rec.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		rec.Label = label.String
		if proba.Valid {
			_ = json.Unmarshal([]byte(proba.String), &rec.Probabilities)
		}
		if maxEMI.Valid {
			v := maxEMI.Float64
			rec.MaxEMI = &v
		}
		if ratio.Valid {
			v := ratio.Float64
			rec.EMIRatioPct = &v
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

// SummarizeHistory counts stored predictions by label and averages the
// estimated EMI.
func (c *Cache) SummarizeHistory() (model.HistorySummary, error) {
	sum := model.HistorySummary{ByLabel: make(map[string]int)}

	err := c.db.QueryRow(`SELECT COUNT(*), COALESCE(AVG(max_emi), 0) FROM predictions`).
		Scan(&sum.Total, &sum.AvgEMI)
	if err != nil {
		return sum, err
	}

	rows, err := c.db.Query(`SELECT label, COUNT(*) FROM predictions
		WHERE label IS NOT NULL AND label != '' GROUP BY label`)
	if err != nil {
		return sum, err
	}
	defer func() { _ = rows.Close() }()
	for rows.Next() {
		var label string
		var n int
		if err := rows.Scan(&label, &n); err != nil {
			return sum, err
		}
		sum.ByLabel[label] = n
	}
	return sum, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func nullFloat(f *float64) sql.NullFloat64 {
	if f == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *f, Valid: true}
}
