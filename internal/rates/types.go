package rates

import (
	"time"

	"github.com/shopspring/decimal"
)

// Base is the currency every CBR rate is quoted against.
const Base = "RUB"

// Quote is one currency's rate. Value and Previous are invalid when the
// source had no usable data for the code.
type Quote struct {
	Value    decimal.NullDecimal
	Nominal  int
	Previous decimal.NullDecimal
}

// NoData is the quote reported for a code the source did not return.
func NoData() Quote {
	return Quote{Nominal: 1}
}

// Snapshot holds quotes for a requested set of codes. Every requested code
// has an entry, even when the source omitted it.
type Snapshot struct {
	Base  string
	Date  time.Time
	Rates map[string]Quote
}

// EmptySnapshot reports no data for each code.
func EmptySnapshot(date time.Time, codes []string) Snapshot {
	s := Snapshot{Base: Base, Date: date, Rates: make(map[string]Quote, len(codes))}
	for _, c := range codes {
		s.Rates[c] = NoData()
	}
	return s
}

// Point is one day of a currency's history, normalized to a single unit.
type Point struct {
	Date  time.Time
	Value decimal.Decimal
}
