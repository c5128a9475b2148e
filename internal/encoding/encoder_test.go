package encoding

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/emiscope/internal/profile"
	"github.com/theirongolddev/emiscope/internal/schema"
)

func trainingSchema() *schema.Schema {
	return schema.MustNew(
		"age",
		"monthly_salary",
		"gender_Male",
		"marital_status_Single",
		"education_High School",
		"education_Post Graduate",
		"education_Professional",
		"employment_type_Private",
		"employment_type_Self-employed",
		"existing_loans_Yes",
		"emi_scenario_Education EMI",
		"emi_scenario_Home Appliances EMI",
		"emi_scenario_Personal Loan EMI",
		"emi_scenario_Vehicle EMI",
		"emi_income_interaction",
	)
}

func TestParseLevels(t *testing.T) {
	lv := ParseLevels(trainingSchema(), profile.CategoricalFields)

	assert.Equal(t, []string{"High School", "Post Graduate", "Professional"}, lv.Of("education"))
	assert.Equal(t, []string{"Education EMI", "Home Appliances EMI", "Personal Loan EMI", "Vehicle EMI"}, lv.Of("emi_scenario"))
	assert.Empty(t, lv.Of("house_type"))

	col, ok := lv.Column("employment_type", "Self-employed")
	assert.True(t, ok)
	assert.Equal(t, "employment_type_Self-employed", col)

	_, ok = lv.Column("emi_scenario", "income_interaction")
	assert.False(t, ok, "derived columns sharing a word prefix are not levels")
}

func TestParseLevels_LongestPrefixWins(t *testing.T) {
	s := schema.MustNew("loan_type_Home", "loan_Big")
	lv := ParseLevels(s, []string{"loan", "loan_type"})

	assert.Equal(t, []string{"Home"}, lv.Of("loan_type"))
	assert.Equal(t, []string{"Big"}, lv.Of("loan"))
}

func TestEncode_SetsExactlyOneIndicator(t *testing.T) {
	lv := ParseLevels(trainingSchema(), profile.CategoricalFields)
	p := profile.Defaults()
	p.Education = "Post Graduate"
	p.EMIScenario = "Vehicle EMI"

	row := map[string]float64{}
	results := lv.Encode(p, row)

	assert.Equal(t, 1.0, row["education_Post Graduate"])
	assert.Equal(t, 0.0, row["education_High School"])
	assert.Equal(t, 0.0, row["education_Professional"])
	assert.Equal(t, 1.0, row["emi_scenario_Vehicle EMI"])
	assert.Equal(t, 0.0, row["emi_scenario_Personal Loan EMI"])
	assert.Len(t, results, len(profile.CategoricalFields))
}

func TestEncode_Outcomes(t *testing.T) {
	lv := ParseLevels(trainingSchema(), profile.CategoricalFields)
	p := profile.Defaults()
	p.Gender = "Female"
	p.EMIScenario = "Crypto EMI"
	p.ExistingLoans = "Yes"
	p.HouseType = "Own"

	row := map[string]float64{}
	byField := map[string]FieldResult{}
	for _, r := range lv.Encode(p, row) {
		byField[r.Field] = r
	}

	assert.Equal(t, Reference, byField["gender"].Outcome)
	assert.Equal(t, Unseen, byField["emi_scenario"].Outcome)
	assert.Equal(t, Encoded, byField["existing_loans"].Outcome)
	assert.Equal(t, "existing_loans_Yes", byField["existing_loans"].Column)
	assert.Equal(t, Unmapped, byField["house_type"].Outcome)
	assert.Equal(t, "unseen", byField["emi_scenario"].Status)

	assert.Equal(t, 0.0, row["gender_Male"])
	for _, level := range lv.Of("emi_scenario") {
		col, _ := lv.Column("emi_scenario", level)
		assert.Equal(t, 0.0, row[col], col)
	}
}

func TestEncode_RowIndependentOfOrder(t *testing.T) {
	lv := ParseLevels(trainingSchema(), profile.CategoricalFields)

	a := profile.Defaults()
	a.EmploymentType = "Self-employed"
	b := a

	rowA := map[string]float64{}
	rowB := map[string]float64{"employment_type_Private": 1}
	lv.Encode(a, rowA)
	lv.Encode(b, rowB)

	require.Equal(t, rowA, rowB, "stale indicators are reset")
}
