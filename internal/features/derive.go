// Package features derives the engineered ratios and indices from a raw profile.
package features

import (
	"math"

	"github.com/theirongolddev/emiscope/internal/profile"
)

// Derived holds the engineered features. Every field is a pure function of
// the raw profile.
type Derived struct {
	TotalExpenses            float64 `json:"total_expenses"`
	DisposableIncome         float64 `json:"disposable_income"`
	ExpenseRatio             float64 `json:"expense_ratio"`
	DTIRatio                 float64 `json:"dti_ratio"`
	AffordabilityIndex       float64 `json:"affordability_index"`
	CreditRiskScore          float64 `json:"credit_risk_score"`
	EmploymentStabilityScore float64 `json:"employment_stability_score"`
	FinancialRiskIndex       float64 `json:"financial_risk_index"`
	IncomeCreditInteraction  float64 `json:"income_credit_interaction"`
	EMIIncomeInteraction     float64 `json:"emi_income_interaction"`
	SavingsBufferRatio       float64 `json:"savings_buffer_ratio"`
}

// Names lists the derived column names in the order they are appended to a row.
var Names = []string{
	"total_expenses",
	"disposable_income",
	"expense_ratio",
	"dti_ratio",
	"affordability_index",
	"credit_risk_score",
	"employment_stability_score",
	"financial_risk_index",
	"income_credit_interaction",
	"emi_income_interaction",
	"savings_buffer_ratio",
}

// Derive computes the engineered features. Denominators carry a +1 so a zero
// salary or requested amount never divides by zero.
func Derive(p profile.RawProfile) Derived {
	var d Derived

	d.TotalExpenses = p.SchoolFees + p.CollegeFees + p.TravelExpenses +
		p.GroceriesUtilities + p.OtherMonthlyExpenses
	d.DisposableIncome = math.Max(0, p.MonthlySalary-d.TotalExpenses-p.CurrentEMIAmount)

	income := p.MonthlySalary + 1
	savings := p.BankBalance + p.EmergencyFund

	d.ExpenseRatio = d.TotalExpenses / income
	d.DTIRatio = p.CurrentEMIAmount / income
	d.AffordabilityIndex = savings / (p.RequestedAmount + 1)
	d.CreditRiskScore = (850 - p.CreditScore) / 550
	d.EmploymentStabilityScore = StabilityScore(p.YearsOfEmployment)
	d.FinancialRiskIndex = 0.4*d.ExpenseRatio + 0.4*d.DTIRatio + 0.2*d.CreditRiskScore
	d.IncomeCreditInteraction = p.MonthlySalary * d.CreditRiskScore
	d.EMIIncomeInteraction = p.CurrentEMIAmount / income
	d.SavingsBufferRatio = savings / income

	return d
}

// StabilityScore buckets years of employment.
func StabilityScore(years float64) float64 {
	switch {
	case years >= 5:
		return 1.0
	case years >= 2:
		return 0.5
	default:
		return 0.2
	}
}

// Map returns the derived features keyed by column name.
func (d Derived) Map() map[string]float64 {
	return map[string]float64{
		"total_expenses":             d.TotalExpenses,
		"disposable_income":          d.DisposableIncome,
		"expense_ratio":              d.ExpenseRatio,
		"dti_ratio":                  d.DTIRatio,
		"affordability_index":        d.AffordabilityIndex,
		"credit_risk_score":          d.CreditRiskScore,
		"employment_stability_score": d.EmploymentStabilityScore,
		"financial_risk_index":       d.FinancialRiskIndex,
		"income_credit_interaction":  d.IncomeCreditInteraction,
		"emi_income_interaction":     d.EMIIncomeInteraction,
		"savings_buffer_ratio":       d.SavingsBufferRatio,
	}
}

// Row merges the raw numeric attributes with the derived features. Categorical
// attributes are left to the encoder.
func Row(p profile.RawProfile) map[string]float64 {
	row := p.Numeric()
	for k, v := range Derive(p).Map() {
		row[k] = v
	}
	return row
}
