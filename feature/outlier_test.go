package feature

import (
	"errors"
	"testing"

	"github.com/rushteam/homeprice/core"
)

func TestOutlierPolicy(t *testing.T) {
	policy, err := NewOutlierPolicy(OutlierConfig{
		Enabled: true,
		Ranges: map[string]Range{
			"bedrooms":  {Min: f64(0), Max: f64(20)},
			"bathrooms": {Max: f64(10)},
		},
		Rules:     []string{"sqft_living <= 0.0", `features["sqft_lot"] > 1e7`, "sqft_lot15 > 1e7"},
		Variables: []string{"sqft_lot15"},
	})
	if err != nil {
		t.Fatalf("NewOutlierPolicy: %v", err)
	}
	if !policy.Enabled() {
		t.Fatal("policy should be enabled")
	}

	tests := []struct {
		name     string
		features map[string]float64
		wantRule string
	}{
		{"clean", map[string]float64{"bedrooms": 3, "bathrooms": 2, "sqft_living": 1800}, ""},
		{"too many bedrooms", map[string]float64{"bedrooms": 33, "sqft_living": 1800}, "bedrooms > 20"},
		{"negative bedrooms", map[string]float64{"bedrooms": -1, "sqft_living": 1800}, "bedrooms < 0"},
		{"bathrooms max", map[string]float64{"bathrooms": 11, "sqft_living": 1800}, "bathrooms > 10"},
		{"zero area", map[string]float64{"sqft_living": 0}, "sqft_living <= 0.0"},
		{"map rule", map[string]float64{"sqft_living": 10, "sqft_lot": 2e7}, `features["sqft_lot"] > 1e7`},
		{"declared variable", map[string]float64{"sqft_living": 10, "sqft_lot15": 2e7}, "sqft_lot15 > 1e7"},
		{"rule on missing feature ignored", map[string]float64{"bedrooms": 3}, ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := policy.Check(tt.features)
			if tt.wantRule == "" {
				if err != nil {
					t.Fatalf("unexpected outlier: %v", err)
				}
				return
			}
			var out *core.OutlierError
			if !errors.As(err, &out) {
				t.Fatalf("want OutlierError, got %v", err)
			}
			if out.Rule != tt.wantRule {
				t.Errorf("Rule = %q, want %q", out.Rule, tt.wantRule)
			}
		})
	}
}

func TestOutlierPolicyConfigErrors(t *testing.T) {
	if p, err := NewOutlierPolicy(OutlierConfig{Rules: []string{"not valid ("}}); p != nil || err != nil {
		t.Errorf("disabled policy should be nil without compiling: %v, %v", p, err)
	}
	if err := (*OutlierPolicy)(nil).Check(map[string]float64{"sqft_living": -1}); err != nil {
		t.Errorf("nil policy rejected a row: %v", err)
	}
	if _, err := NewOutlierPolicy(OutlierConfig{Enabled: true, Rules: []string{"not valid ("}}); err == nil {
		t.Error("invalid rule should fail")
	}
	if _, err := NewOutlierPolicy(OutlierConfig{Enabled: true, Ranges: map[string]Range{"a": {Min: f64(2), Max: f64(1)}}}); err == nil {
		t.Error("inverted range should fail")
	}
}
