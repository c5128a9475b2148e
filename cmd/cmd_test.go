package cmd

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/theirongolddev/emiscope/internal/model"
	"github.com/theirongolddev/emiscope/internal/profile"
)

func TestParseAssignment(t *testing.T) {
	k, v, err := parseAssignment(" credit_score = 720 ")
	require.NoError(t, err)
	assert.Equal(t, "credit_score", k)
	assert.Equal(t, "720", v)

	k, v, err = parseAssignment("emi_scenario=Home Appliances EMI")
	require.NoError(t, err)
	assert.Equal(t, "emi_scenario", k)
	assert.Equal(t, "Home Appliances EMI", v)

	for _, bad := range []string{"age", "=30", "  =x"} {
		_, _, err := parseAssignment(bad)
		assert.Error(t, err, bad)
	}
}

func TestProfileFlagsReadLayers(t *testing.T) {
	base := profile.Defaults()
	f := profileFlags{
		file: "-",
		sets: []string{"monthly_salary=90000", "age=45"},
	}
	stdin := strings.NewReader(`{"age": 41, "gender": "Female", "not_a_field": 1}`)

	p, err := f.read(base, stdin)
	require.NoError(t, err)
	assert.Equal(t, 45.0, p.Age, "--set applies after --profile")
	assert.Equal(t, 90000.0, p.MonthlySalary)
	assert.Equal(t, "Female", p.Gender)
	assert.Equal(t, base.CreditScore, p.CreditScore)
	assert.Equal(t, profile.Defaults(), base, "base is not modified")
}

func TestProfileFlagsReadErrors(t *testing.T) {
	base := profile.Defaults()

	f := profileFlags{sets: []string{"shoe_size=9"}}
	p, err := f.read(base, strings.NewReader(""))
	require.Error(t, err)
	assert.Equal(t, base, p)

	f = profileFlags{sets: []string{"age=old"}}
	_, err = f.read(base, strings.NewReader(""))
	require.Error(t, err)

	f = profileFlags{file: "-"}
	_, err = f.read(base, strings.NewReader("{not json"))
	require.Error(t, err)
}

func TestProfileFlagsStrict(t *testing.T) {
	base := profile.Defaults()

	f := profileFlags{sets: []string{"gender=Robot"}}
	_, err := f.read(base, strings.NewReader(""))
	require.NoError(t, err, "unknown levels pass without --strict")

	f.strict = true
	_, err = f.read(base, strings.NewReader(""))
	var verr *profile.ValidationError
	require.ErrorAs(t, err, &verr)

	f.remote = "http://127.0.0.1:8790"
	_, err = f.read(base, strings.NewReader(""))
	require.NoError(t, err, "remote requests are validated by the server")
}

func TestFilterDetachArg(t *testing.T) {
	got := filterDetachArg([]string{"serve", "--detach", "--addr", ":9000", "--detach=true"})
	assert.Equal(t, []string{"serve", "--addr", ":9000"}, got)
}

func TestPadRow(t *testing.T) {
	assert.Equal(t, []string{"7", "", "", "", "boom"}, padRow(5, "7", "boom"))
	assert.Equal(t, []string{"7", "boom"}, padRow(2, "7", "boom"))
}

func TestLookupRun(t *testing.T) {
	runs := []model.Run{
		{RunID: "abc123def456789", Name: "xgboost"},
		{RunID: "abd999", Name: "random_forest"},
		{RunID: "zzz", Name: "logistic"},
	}

	r, err := lookupRun(runs, "zzz")
	require.NoError(t, err)
	assert.Equal(t, "logistic", r.Name)

	r, err = lookupRun(runs, "abc")
	require.NoError(t, err)
	assert.Equal(t, "xgboost", r.Name)

	_, err = lookupRun(runs, "ab")
	assert.ErrorContains(t, err, "ambiguous")

	_, err = lookupRun(runs, "q")
	assert.ErrorContains(t, err, "not found")
}

func TestShortID(t *testing.T) {
	assert.Equal(t, "abc123def456", shortID("abc123def456789"))
	assert.Equal(t, "abc", shortID("abc"))
}

func TestServerStatePath(t *testing.T) {
	assert.Equal(t, "/tmp/emiscoped.pid.json", statePath("/tmp/emiscoped.pid"))
}
