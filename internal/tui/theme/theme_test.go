package theme

import "testing"

func TestByNameFallsBack(t *testing.T) {
	if got := ByName("tokyo-night").Name; got != "tokyo-night" {
		t.Errorf("ByName(tokyo-night) = %q", got)
	}
	if got := ByName("no-such-theme").Name; got != "flexoki-dark" {
		t.Errorf("ByName(unknown) = %q, want flexoki-dark", got)
	}
}

func TestSetActive(t *testing.T) {
	defer SetActive("flexoki-dark")

	SetActive("terminal")
	if Active.Name != "terminal" {
		t.Fatalf("Active = %q, want terminal", Active.Name)
	}
}

func TestForLabel(t *testing.T) {
	th := FlexokiDark
	tests := []struct {
		label string
		want  string
	}{
		{"Eligible", string(th.Green)},
		{"High Risk", string(th.Orange)},
		{"Not Eligible", string(th.Red)},
		{"", string(th.TextMuted)},
	}
	for _, tt := range tests {
		if got := string(th.ForLabel(tt.label)); got != tt.want {
			t.Errorf("ForLabel(%q) = %s, want %s", tt.label, got, tt.want)
		}
	}
}

func TestForRatio(t *testing.T) {
	th := FlexokiDark
	if th.ForRatio(40) != th.Green {
		t.Error("40% should be green")
	}
	if th.ForRatio(55) != th.Yellow {
		t.Error("55% should be yellow")
	}
	if th.ForRatio(61) != th.Red {
		t.Error("61% should be red")
	}
}

func TestNames(t *testing.T) {
	names := Names()
	if len(names) != len(All) || names[0] != "flexoki-dark" {
		t.Errorf("Names() = %v", names)
	}
}
