package inference

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/theirongolddev/emiscope/internal/apperr"
	"github.com/theirongolddev/emiscope/internal/metrics"
	"github.com/theirongolddev/emiscope/internal/predictor"
	"github.com/theirongolddev/emiscope/internal/profile"
)

// Task names used in metrics and history records.
const (
	TaskEligibility = "eligibility"
	TaskMaxEMI      = "max_emi"
	TaskBoth        = "both"
)

// Eligibility is the classifier's verdict.
type Eligibility struct {
	Label         predictor.Label `json:"-"`
	Name          string          `json:"label"`
	Probabilities []float64       `json:"probabilities"`
	Advice        string          `json:"advice"`
}

// MaxEMI is the regressor's estimate of the largest safe monthly payment.
type MaxEMI struct {
	Amount          decimal.Decimal `json:"max_monthly_emi"`
	SalaryRatioPct  float64         `json:"emi_to_salary_pct"`
	MonthlySalary   float64         `json:"monthly_salary"`
	RequestedAmount float64         `json:"requested_amount"`
}

// Decision is the full answer for one profile.
type Decision struct {
	RequestID   string       `json:"request_id"`
	CreatedAt   time.Time    `json:"created_at"`
	Eligibility *Eligibility `json:"eligibility,omitempty"`
	MaxEMI      *MaxEMI      `json:"max_emi,omitempty"`
	Diagnostics Diagnostics  `json:"diagnostics"`
	Cached      bool         `json:"cached,omitempty"`
}

// Advice returns the operator guidance shown next to a label.
func Advice(l predictor.Label) string {
	switch l {
	case predictor.Eligible:
		return "This customer is eligible for EMI. Proceed with the loan application."
	case predictor.HighRisk:
		return "This customer is at high risk. Review the application carefully before approval."
	default:
		return "This customer is not eligible for EMI based on the current financial profile."
	}
}

// SalaryRatio is emi as a percentage of salary, or 0 without a salary.
func SalaryRatio(emi, salary float64) float64 {
	if salary <= 0 {
		return 0
	}
	return emi / salary * 100
}

// Predict runs both models over p.
func Predict(c *Context, p profile.RawProfile) (Decision, error) {
	return run(c, p, TaskBoth)
}

// PredictEligibility runs only the classifier.
func PredictEligibility(c *Context, p profile.RawProfile) (Decision, error) {
	return run(c, p, TaskEligibility)
}

// PredictMaxEMI runs only the regressor.
func PredictMaxEMI(c *Context, p profile.RawProfile) (Decision, error) {
	return run(c, p, TaskMaxEMI)
}

// Reuse serves a cached decision for a new request. The diagnostics are
// recomputed for p, so mismatches are logged and counted as on a fresh
// prediction, and the decision gets its own request id and time.
func Reuse(c *Context, p profile.RawProfile, d Decision) Decision {
	_, d.Diagnostics = Transform(c, p)
	d.RequestID = uuid.NewString()
	d.CreatedAt = time.Now().UTC()
	d.Cached = true
	return d
}

func run(c *Context, p profile.RawProfile, task string) (Decision, error) {
	start := time.Now()
	defer func() {
		metrics.PredictionDuration.WithLabelValues(task).Observe(time.Since(start).Seconds())
	}()

	vec, diag := Transform(c, p)
	d := Decision{
		RequestID:   uuid.NewString(),
		CreatedAt:   start.UTC(),
		Diagnostics: diag,
	}

	if task != TaskMaxEMI {
		e, err := classify(c, vec.Values)
		if err != nil {
			metrics.Predictions.WithLabelValues(TaskEligibility, "error").Inc()
			return d, err
		}
		metrics.Predictions.WithLabelValues(TaskEligibility, e.Name).Inc()
		d.Eligibility = e
	}
	if task != TaskEligibility {
		m, err := estimate(c, vec.Values, p)
		if err != nil {
			metrics.Predictions.WithLabelValues(TaskMaxEMI, "error").Inc()
			return d, err
		}
		metrics.Predictions.WithLabelValues(TaskMaxEMI, "ok").Inc()
		d.MaxEMI = m
	}

	c.Logger.Debug("prediction complete", map[string]interface{}{
		"request_id": d.RequestID,
		"task":       task,
		"elapsed":    time.Since(start).String(),
	})
	return d, nil
}

func classify(c *Context, vec []float64) (*Eligibility, error) {
	if c.Classifier == nil {
		return nil, apperr.New(apperr.CodeArtifactMissing, "no classifier loaded")
	}
	proba, err := c.Classifier.PredictProba(vec)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePredictionFailed, "classifier", err)
	}
	l := predictor.Label(predictor.Argmax(proba))
	return &Eligibility{
		Label:         l,
		Name:          l.String(),
		Probabilities: proba,
		Advice:        Advice(l),
	}, nil
}

func estimate(c *Context, vec []float64, p profile.RawProfile) (*MaxEMI, error) {
	if c.Regressor == nil {
		return nil, apperr.New(apperr.CodeArtifactMissing, "no regressor loaded")
	}
	v, err := c.Regressor.Predict(vec)
	if err != nil {
		return nil, apperr.Wrap(apperr.CodePredictionFailed, "regressor", err)
	}
	return &MaxEMI{
		Amount:          decimal.NewFromFloat(v).Round(2),
		SalaryRatioPct:  SalaryRatio(v, p.MonthlySalary),
		MonthlySalary:   p.MonthlySalary,
		RequestedAmount: p.RequestedAmount,
	}, nil
}
