package model

import "time"

// PredictionRecord is one stored prediction.
type PredictionRecord struct {
	ID            string    `json:"id"`
	CreatedAt     time.Time `json:"created_at"`
	Source        string    `json:"source"` // cli, tui, server, batch
	Task          string    `json:"task"`
	Label         string    `json:"label,omitempty"`
	Probabilities []float64 `json:"probabilities,omitempty"`
	MaxEMI        *float64  `json:"max_emi,omitempty"`
	EMIRatioPct   *float64  `json:"emi_ratio_pct,omitempty"`
	Profile       string    `json:"profile"` // canonical JSON of the raw profile
}

// HistorySummary counts stored predictions by label.
type HistorySummary struct {
	Total   int            `json:"total"`
	ByLabel map[string]int `json:"by_label"`
	AvgEMI  float64        `json:"avg_max_emi"`
}
