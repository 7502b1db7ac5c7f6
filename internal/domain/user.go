package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// UserSchedule is the persisted per-chat notification policy.
// Fields keep the stored text form; ResolvePolicy turns them into a typed Policy.
type UserSchedule struct {
	ChatID       int64
	Currencies   string // comma separated codes, e.g. "USD,EUR"
	NotifyTime   string // HH:MM in user-local time
	Weekdays     string // comma separated ISO weekdays, e.g. "1,2,3,4,5"
	UTCOffset    string // whole hours, e.g. "3" or "-5"
	LastSentDate string // YYYY-MM-DD in user-local time, empty if never sent
}

// Threshold is a user-defined rate level that triggers a crossing alert.
type Threshold struct {
	ID        int64
	ChatID    int64
	Currency  string
	Value     decimal.Decimal
	Comment   string
	CreatedAt time.Time // UTC
}

// Defaults holds the values applied to new users and used as fallbacks
// when a stored value cannot be parsed.
type Defaults struct {
	Currencies []string
	NotifyTime Clock
	Weekdays   WeekdaySet
	UTCOffset  int
}

// StandardDefaults mirrors the stock configuration: USD+EUR at 08:00 on workdays, UTC+3.
func StandardDefaults() Defaults {
	return Defaults{
		Currencies: []string{"USD", "EUR"},
		NotifyTime: Clock{Hour: 8, Minute: 0},
		Weekdays:   Workdays(),
		UTCOffset:  3,
	}
}

// Validate reports whether the defaults themselves are usable.
func (d Defaults) Validate() error {
	if len(d.Currencies) == 0 {
		return ErrInvalidCurrency
	}
	for _, c := range d.Currencies {
		if _, err := ParseCurrency(c); err != nil {
			return err
		}
	}
	if !d.NotifyTime.Valid() {
		return ErrInvalidTime
	}
	if d.Weekdays.Empty() {
		return ErrInvalidWeekdays
	}
	if d.UTCOffset < MinUTCOffset || d.UTCOffset > MaxUTCOffset {
		return ErrInvalidOffset
	}
	return nil
}

// NewSchedule builds the row inserted for a chat seen for the first time.
func (d Defaults) NewSchedule(chatID int64) UserSchedule {
	return UserSchedule{
		ChatID:     chatID,
		Currencies: FormatCurrencies(d.Currencies),
		NotifyTime: d.NotifyTime.String(),
		Weekdays:   d.Weekdays.String(),
		UTCOffset:  FormatOffset(d.UTCOffset),
	}
}
