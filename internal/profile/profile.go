// Package profile defines the raw applicant attributes fed to the feature pipeline.
package profile

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// RawProfile is one applicant's attributes as entered on the form.
type RawProfile struct {
	Age                  float64 `json:"age" toml:"age"`
	MonthlySalary        float64 `json:"monthly_salary" toml:"monthly_salary"`
	YearsOfEmployment    float64 `json:"years_of_employment" toml:"years_of_employment"`
	MonthlyRent          float64 `json:"monthly_rent" toml:"monthly_rent"`
	FamilySize           float64 `json:"family_size" toml:"family_size"`
	Dependents           float64 `json:"dependents" toml:"dependents"`
	SchoolFees           float64 `json:"school_fees" toml:"school_fees"`
	CollegeFees          float64 `json:"college_fees" toml:"college_fees"`
	TravelExpenses       float64 `json:"travel_expenses" toml:"travel_expenses"`
	GroceriesUtilities   float64 `json:"groceries_utilities" toml:"groceries_utilities"`
	OtherMonthlyExpenses float64 `json:"other_monthly_expenses" toml:"other_monthly_expenses"`
	CurrentEMIAmount     float64 `json:"current_emi_amount" toml:"current_emi_amount"`
	CreditScore          float64 `json:"credit_score" toml:"credit_score"`
	BankBalance          float64 `json:"bank_balance" toml:"bank_balance"`
	EmergencyFund        float64 `json:"emergency_fund" toml:"emergency_fund"`
	RequestedAmount      float64 `json:"requested_amount" toml:"requested_amount"`
	RequestedTenure      float64 `json:"requested_tenure" toml:"requested_tenure"`

	Gender         string `json:"gender" toml:"gender"`
	MaritalStatus  string `json:"marital_status" toml:"marital_status"`
	Education      string `json:"education" toml:"education"`
	EmploymentType string `json:"employment_type" toml:"employment_type"`
	CompanyType    string `json:"company_type" toml:"company_type"`
	HouseType      string `json:"house_type" toml:"house_type"`
	ExistingLoans  string `json:"existing_loans" toml:"existing_loans"`
	EMIScenario    string `json:"emi_scenario" toml:"emi_scenario"`
}

// NumericFields lists the numeric attribute names in form order.
var NumericFields = []string{
	"age", "monthly_salary", "years_of_employment", "monthly_rent",
	"family_size", "dependents", "school_fees", "college_fees",
	"travel_expenses", "groceries_utilities", "other_monthly_expenses",
	"current_emi_amount", "credit_score", "bank_balance", "emergency_fund",
	"requested_amount", "requested_tenure",
}

// CategoricalFields lists the fields replaced by indicator columns.
var CategoricalFields = []string{
	"gender", "marital_status", "education", "employment_type",
	"company_type", "house_type", "existing_loans", "emi_scenario",
}

// Defaults returns the profile used for fields the caller leaves unset.
func Defaults() RawProfile {
	return RawProfile{
		Age:                  30,
		MonthlySalary:        50000,
		YearsOfEmployment:    3,
		FamilySize:           3,
		Dependents:           1,
		TravelExpenses:       2000,
		GroceriesUtilities:   5000,
		OtherMonthlyExpenses: 3000,
		CreditScore:          750,
		BankBalance:          50000,
		EmergencyFund:        30000,
		RequestedAmount:      300000,
		RequestedTenure:      36,

		Gender:         "Male",
		MaritalStatus:  "Single",
		Education:      "Graduate",
		EmploymentType: "Private",
		CompanyType:    "Mid-size",
		HouseType:      "Rented",
		ExistingLoans:  "No",
		EMIScenario:    "Personal Loan EMI",
	}
}

// Numeric returns the numeric attributes keyed by attribute name.
func (p RawProfile) Numeric() map[string]float64 {
	return map[string]float64{
		"age":                    p.Age,
		"monthly_salary":         p.MonthlySalary,
		"years_of_employment":    p.YearsOfEmployment,
		"monthly_rent":           p.MonthlyRent,
		"family_size":            p.FamilySize,
		"dependents":             p.Dependents,
		"school_fees":            p.SchoolFees,
		"college_fees":           p.CollegeFees,
		"travel_expenses":        p.TravelExpenses,
		"groceries_utilities":    p.GroceriesUtilities,
		"other_monthly_expenses": p.OtherMonthlyExpenses,
		"current_emi_amount":     p.CurrentEMIAmount,
		"credit_score":           p.CreditScore,
		"bank_balance":           p.BankBalance,
		"emergency_fund":         p.EmergencyFund,
		"requested_amount":       p.RequestedAmount,
		"requested_tenure":       p.RequestedTenure,
	}
}

// Categorical returns the categorical attributes keyed by attribute name.
func (p RawProfile) Categorical() map[string]string {
	return map[string]string{
		"gender":          p.Gender,
		"marital_status":  p.MaritalStatus,
		"education":       p.Education,
		"employment_type": p.EmploymentType,
		"company_type":    p.CompanyType,
		"house_type":      p.HouseType,
		"existing_loans":  p.ExistingLoans,
		"emi_scenario":    p.EMIScenario,
	}
}

func (p *RawProfile) numericPtr(name string) *float64 {
	switch name {
	case "age":
		return &p.Age
	case "monthly_salary":
		return &p.MonthlySalary
	case "years_of_employment":
		return &p.YearsOfEmployment
	case "monthly_rent":
		return &p.MonthlyRent
	case "family_size":
		return &p.FamilySize
	case "dependents":
		return &p.Dependents
	case "school_fees":
		return &p.SchoolFees
	case "college_fees":
		return &p.CollegeFees
	case "travel_expenses":
		return &p.TravelExpenses
	case "groceries_utilities":
		return &p.GroceriesUtilities
	case "other_monthly_expenses":
		return &p.OtherMonthlyExpenses
	case "current_emi_amount":
		return &p.CurrentEMIAmount
	case "credit_score":
		return &p.CreditScore
	case "bank_balance":
		return &p.BankBalance
	case "emergency_fund":
		return &p.EmergencyFund
	case "requested_amount":
		return &p.RequestedAmount
	case "requested_tenure":
		return &p.RequestedTenure
	}
	return nil
}

func (p *RawProfile) categoricalPtr(name string) *string {
	switch name {
	case "gender":
		return &p.Gender
	case "marital_status":
		return &p.MaritalStatus
	case "education":
		return &p.Education
	case "employment_type":
		return &p.EmploymentType
	case "company_type":
		return &p.CompanyType
	case "house_type":
		return &p.HouseType
	case "existing_loans":
		return &p.ExistingLoans
	case "emi_scenario":
		return &p.EMIScenario
	}
	return nil
}

// Set assigns one attribute from its string form. Unknown names are an error.
func (p *RawProfile) Set(name, value string) error {
	name = strings.TrimSpace(name)
	if ptr := p.numericPtr(name); ptr != nil {
		v, err := strconv.ParseFloat(strings.TrimSpace(value), 64)
		if err != nil {
			return fmt.Errorf("%s: %q is not a number", name, value)
		}
		*ptr = v
		return nil
	}
	if ptr := p.categoricalPtr(name); ptr != nil {
		*ptr = value
		return nil
	}
	return fmt.Errorf("unknown profile field %q", name)
}

// FromMap overlays a key-value mapping onto base. Keys that are not profile
// attributes are ignored. Numeric values may be JSON numbers or numeric strings.
func FromMap(base RawProfile, m map[string]any) (RawProfile, error) {
	p := base
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, k := range keys {
		v := m[k]
		if ptr := p.numericPtr(k); ptr != nil {
			f, err := toFloat(v)
			if err != nil {
				return base, fmt.Errorf("%s: %w", k, err)
			}
			*ptr = f
			continue
		}
		if ptr := p.categoricalPtr(k); ptr != nil {
			s, ok := v.(string)
			if !ok {
				return base, fmt.Errorf("%s: expected string, got %T", k, v)
			}
			*ptr = s
		}
	}
	return p, nil
}

// ParseJSON decodes a JSON object onto base.
func ParseJSON(base RawProfile, data []byte) (RawProfile, error) {
	var m map[string]any
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	if err := dec.Decode(&m); err != nil {
		return base, fmt.Errorf("decoding profile: %w", err)
	}
	return FromMap(base, m)
}

func toFloat(v any) (float64, error) {
	switch x := v.(type) {
	case float64:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return float64(x), nil
	case int64:
		return float64(x), nil
	case json.Number:
		return x.Float64()
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", x)
		}
		return f, nil
	}
	return 0, fmt.Errorf("expected number, got %T", v)
}
