package profile

// Range is the inclusive bound the form accepts for a numeric attribute.
type Range struct {
	Min float64
	Max float64
}

// Options holds the known levels of each categorical attribute, in form order.
var Options = map[string][]string{
	"gender":          {"Male", "Female"},
	"marital_status":  {"Single", "Married"},
	"education":       {"High School", "Graduate", "Post Graduate", "Professional"},
	"employment_type": {"Private", "Government", "Self-employed"},
	"company_type":    {"Startup", "Small", "Mid-size", "Large Indian", "MNC"},
	"house_type":      {"Rented", "Own", "Family"},
	"existing_loans":  {"Yes", "No"},
	"emi_scenario": {
		"E-commerce Shopping EMI",
		"Home Appliances EMI",
		"Vehicle EMI",
		"Personal Loan EMI",
		"Education EMI",
	},
}

// Ranges holds the numeric bounds enforced by outer surfaces. Attributes not
// listed only need to be non-negative.
var Ranges = map[string]Range{
	"age":                 {18, 65},
	"monthly_salary":      {10000, 300000},
	"years_of_employment": {0, 40},
	"monthly_rent":        {0, 100000},
	"current_emi_amount":  {0, 100000},
	"requested_amount":    {10000, 2000000},
	"credit_score":        {300, 850},
}

// IsKnownLevel reports whether level is one of the form choices for field.
func IsKnownLevel(field, level string) bool {
	for _, o := range Options[field] {
		if o == level {
			return true
		}
	}
	return false
}
