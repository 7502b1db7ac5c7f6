package domain

import (
	"testing"

	"github.com/shopspring/decimal"
)

func d(v string) decimal.Decimal { return decimal.RequireFromString(v) }

func TestCrosses(t *testing.T) {
	cases := []struct {
		name                     string
		current, previous, level string
		want                     bool
	}{
		{"rises through", "105", "95", "100", true},
		{"falls through", "95", "105", "100", true},
		{"rests on level", "100", "100", "100", false},
		{"departs upwards from level", "101", "100", "100", true},
		{"departs downwards from level", "99", "100", "100", true},
		{"flat below", "99", "99", "100", false},
		{"arrives on level from below", "100", "95", "100", false},
		{"arrives on level from above", "100", "105", "100", false},
		{"stays above", "102", "101", "100", false},
		{"fractional", "92.3456", "91.9", "92.1", true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := Crosses(d(tc.current), d(tc.previous), d(tc.level)); got != tc.want {
				t.Fatalf("Crosses(%s, %s, %s) = %v, want %v", tc.current, tc.previous, tc.level, got, tc.want)
			}
		})
	}
}

func TestCheckThreshold_MissingData(t *testing.T) {
	level := d("100")
	present := decimal.NewNullDecimal(d("105"))
	absent := decimal.NullDecimal{}

	if CheckThreshold(absent, decimal.NewNullDecimal(d("95")), level) {
		t.Error("missing current must not fire")
	}
	if CheckThreshold(present, absent, level) {
		t.Error("missing previous must not fire")
	}
	if !CheckThreshold(present, decimal.NewNullDecimal(d("95")), level) {
		t.Error("want fire with both values present")
	}
}
