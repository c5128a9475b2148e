package inference

import (
	"encoding/json"
	"fmt"

	"github.com/theirongolddev/emiscope/internal/encoding"
	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
)

// Record converts a decision into a history row. source names the surface
// that served it (cli, tui, server, batch).
func Record(source, task string, p profile.RawProfile, d Decision) model.PredictionRecord {
	raw, _ := json.Marshal(p)
	rec := model.PredictionRecord{
		ID:        d.RequestID,
		CreatedAt: d.CreatedAt,
		Source:    source,
		Task:      task,
		Profile:   string(raw),
	}
	if d.Eligibility != nil {
		rec.Label = d.Eligibility.Name
		rec.Probabilities = d.Eligibility.Probabilities
	}
	if d.MaxEMI != nil {
		amount := d.MaxEMI.Amount.InexactFloat64()
		ratio := d.MaxEMI.SalaryRatioPct
		rec.MaxEMI = &amount
		rec.EMIRatioPct = &ratio
	}
	return rec
}

// DecodeDecision parses a decision serialized with encoding/json and restores
// the label and outcome values that travel only as display strings.
func DecodeDecision(data []byte) (Decision, error) {
	var d Decision
	if err := json.Unmarshal(data, &d); err != nil {
		return d, fmt.Errorf("decoding decision: %w", err)
	}
	if d.Eligibility != nil {
		d.Eligibility.Label, _ = predictor.ParseLabel(d.Eligibility.Name)
	}
	for i := range d.Diagnostics.Categories {
		r := &d.Diagnostics.Categories[i]
		r.Outcome, _ = encoding.ParseOutcome(r.Status)
	}
	return d, nil
}
