package domain

import "github.com/shopspring/decimal"

// Crosses reports whether a move from previous to current passes through level.
// The near side is inclusive and the far side strict, so a rate resting exactly
// on the level fires once as it departs and never while it stays put.
// Equal current and previous never fire.
func Crosses(current, previous, level decimal.Decimal) bool {
	up := current.GreaterThan(level) && level.GreaterThanOrEqual(previous)
	down := current.LessThan(level) && level.LessThanOrEqual(previous)
	return up || down
}

// CheckThreshold applies Crosses to possibly missing source data.
// A missing current or previous value is "no data": no alert, no error.
func CheckThreshold(current, previous decimal.NullDecimal, level decimal.Decimal) bool {
	if !current.Valid || !previous.Valid {
		return false
	}
	return Crosses(current.Decimal, previous.Decimal, level)
}
