package digest

import (
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
)

func quote(v, prev string, nominal int) rates.Quote {
	return rates.Quote{
		Value:    decimal.NewNullDecimal(decimal.RequireFromString(v)),
		Previous: decimal.NewNullDecimal(decimal.RequireFromString(prev)),
		Nominal:  nominal,
	}
}

func TestRates(t *testing.T) {
	snap := rates.Snapshot{Base: "RUB", Rates: map[string]rates.Quote{
		"USD": quote("80", "79.2", 1),
		"JPY": quote("56.42", "56.42", 100),
		"XAU": rates.NoData(),
	}}
	at := time.Date(2025, 5, 5, 9, 0, 0, 0, time.UTC)
	got := Rates(snap, []string{"USD", "JPY", "XAU"}, at, true)

	for _, want := range []string{
		"05.05.2025 09:00 (local time)",
		"USD ($): 80.00 ₽ 📈 +1.01%",
		"JPY (¥): 56.42 ₽ (per 100) ➖ +0.00%",
		"XAU: — ₽",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("digest missing %q:\n%s", want, got)
		}
	}
	if strings.Index(got, "USD") > strings.Index(got, "JPY") {
		t.Errorf("codes must keep requested order:\n%s", got)
	}
}

func TestAlert(t *testing.T) {
	th := domain.Threshold{Currency: "USD", Value: decimal.RequireFromString("100"), Comment: "sell"}
	got := Alert(th, decimal.RequireFromString("102.345"))
	want := "⚠️ USD reached the threshold 100.00!\nCurrent rate: 102.35\nComment: sell"
	if got != want {
		t.Fatalf("want %q, got %q", want, got)
	}
}

func TestDistance(t *testing.T) {
	if got := Distance(decimal.NullDecimal{}, decimal.NewFromInt(1)); got != "" {
		t.Fatalf("unknown current: want empty, got %q", got)
	}
	got := Distance(decimal.NewNullDecimal(decimal.NewFromInt(80)), decimal.NewFromInt(76))
	if got != "📉 -5.00%" {
		t.Fatalf("want 📉 -5.00%%, got %q", got)
	}
}

func TestStats(t *testing.T) {
	pts := []rates.Point{
		{Date: time.Date(2025, 5, 1, 0, 0, 0, 0, time.UTC), Value: decimal.RequireFromString("80")},
		{Date: time.Date(2025, 5, 2, 0, 0, 0, 0, time.UTC), Value: decimal.RequireFromString("84")},
		{Date: time.Date(2025, 5, 3, 0, 0, 0, 0, time.UTC), Value: decimal.RequireFromString("82")},
	}
	got := Stats("USD", pts)
	for _, want := range []string{"Min: 80.0000", "Max: 84.0000", "Average: 82.0000", "Last: 82.0000 📈 +2.50%"} {
		if !strings.Contains(got, want) {
			t.Errorf("stats missing %q:\n%s", want, got)
		}
	}
	if got := Stats("USD", nil); !strings.HasPrefix(got, "No history") {
		t.Errorf("empty series: got %q", got)
	}
}
