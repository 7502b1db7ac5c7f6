// Package digest renders rate digests, crossing alerts and history summaries as plain text.
package digest

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
)

var symbols = map[string]string{
	"RUB": "₽", "USD": "$", "EUR": "€", "CNY": "¥", "GBP": "£", "JPY": "¥",
	"CHF": "₣", "KZT": "₸", "TRY": "₺", "INR": "₹", "KRW": "₩", "BYN": "Br",
	"PLN": "zł", "CZK": "Kč", "SEK": "kr", "NOK": "kr", "DKK": "kr", "HUF": "Ft",
	"BRL": "R$", "CAD": "$", "AUD": "$", "HKD": "$", "SGD": "$", "ZAR": "R",
	"ILS": "₪", "THB": "฿", "VND": "₫", "AZN": "₼", "AED": "د.إ", "UZS": "so'm",
}

var hundred = decimal.NewFromInt(100)

func label(code string) string {
	if s, ok := symbols[code]; ok {
		return fmt.Sprintf("%s (%s)", code, s)
	}
	return code
}

func baseSymbol(base string) string {
	if s, ok := symbols[base]; ok {
		return s
	}
	return base
}

// change renders the relative move from previous to current, e.g. "📈 +0.25%".
func change(current, previous decimal.Decimal) string {
	if previous.IsZero() {
		return ""
	}
	pct := current.Sub(previous).Div(previous).Mul(hundred)
	return arrow(pct) + " " + signed(pct) + "%"
}

func arrow(pct decimal.Decimal) string {
	switch pct.Sign() {
	case 1:
		return "📈"
	case -1:
		return "📉"
	default:
		return "➖"
	}
}

func signed(pct decimal.Decimal) string {
	s := pct.StringFixed(2)
	if pct.Sign() >= 0 {
		return "+" + s
	}
	return s
}

// Rates renders a digest for codes in the given order. at is shown as the
// user's local time when local is true, otherwise as a plain date.
func Rates(snap rates.Snapshot, codes []string, at time.Time, local bool) string {
	var b strings.Builder
	if local {
		fmt.Fprintf(&b, "📊 Exchange rates for %s (local time)\n\n", at.Format("02.01.2006 15:04"))
	} else {
		fmt.Fprintf(&b, "📊 Exchange rates for %s\n\n", at.Format("02.01.2006"))
	}
	base := baseSymbol(snap.Base)
	for _, code := range codes {
		q, ok := snap.Rates[code]
		if !ok || !q.Value.Valid {
			fmt.Fprintf(&b, "%s: — %s\n", label(code), base)
			continue
		}
		line := fmt.Sprintf("%s: %s %s", label(code), q.Value.Decimal.StringFixed(2), base)
		if q.Nominal > 1 {
			line += fmt.Sprintf(" (per %d)", q.Nominal)
		}
		if q.Previous.Valid {
			if c := change(q.Value.Decimal, q.Previous.Decimal); c != "" {
				line += " " + c
			}
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Alert renders a crossing alert for one threshold.
func Alert(th domain.Threshold, current decimal.Decimal) string {
	text := fmt.Sprintf("⚠️ %s reached the threshold %s!\nCurrent rate: %s",
		th.Currency, th.Value.StringFixed(2), current.StringFixed(2))
	if th.Comment != "" {
		text += "\nComment: " + th.Comment
	}
	return text
}

// Distance renders how far level is from current, e.g. "📈 +2.50%".
// It returns "" when current is unknown or zero.
func Distance(current decimal.NullDecimal, level decimal.Decimal) string {
	if !current.Valid || current.Decimal.IsZero() {
		return ""
	}
	return change(level, current.Decimal)
}

// Thresholds renders a user's thresholds with their distance to the current rate.
func Thresholds(ths []domain.Threshold, snap rates.Snapshot) string {
	if len(ths) == 0 {
		return "📉 You have no thresholds yet."
	}
	var b strings.Builder
	b.WriteString("📉 Your thresholds:\n\n")
	for _, th := range ths {
		line := fmt.Sprintf("#%d %s: %s", th.ID, th.Currency, th.Value.StringFixed(2))
		if d := Distance(snap.Rates[th.Currency].Value, th.Value); d != "" {
			line += " " + d
		}
		if th.Comment != "" {
			line += " — " + th.Comment
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// Stats summarizes a history series: first and last value, min, max and average.
func Stats(code string, pts []rates.Point) string {
	if len(pts) == 0 {
		return fmt.Sprintf("No history for %s in this period.", code)
	}
	lo, hi, sum := pts[0].Value, pts[0].Value, decimal.Zero
	for _, p := range pts {
		if p.Value.LessThan(lo) {
			lo = p.Value
		}
		if p.Value.GreaterThan(hi) {
			hi = p.Value
		}
		sum = sum.Add(p.Value)
	}
	first, last := pts[0], pts[len(pts)-1]
	avg := sum.Div(decimal.NewFromInt(int64(len(pts))))

	var b strings.Builder
	fmt.Fprintf(&b, "📈 %s, %s – %s\n\n", label(code), first.Date.Format("02.01.2006"), last.Date.Format("02.01.2006"))
	fmt.Fprintf(&b, "First: %s\nLast: %s %s\n", first.Value.StringFixed(4), last.Value.StringFixed(4), change(last.Value, first.Value))
	fmt.Fprintf(&b, "Min: %s\nMax: %s\nAverage: %s\n", lo.StringFixed(4), hi.StringFixed(4), avg.StringFixed(4))
	return b.String()
}
