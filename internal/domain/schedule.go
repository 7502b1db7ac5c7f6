package domain

import (
	"fmt"
	"time"
)

// Policy is the typed, validated form of a UserSchedule used for evaluation.
type Policy struct {
	ChatID     int64
	Currencies []string
	NotifyTime Clock
	// TimeOK is false when the stored notify time was malformed; such a policy never fires.
	TimeOK       bool
	Weekdays     WeekdaySet
	UTCOffset    int
	LastSentDate LocalDate
}

// Issue describes a stored value that could not be used as-is.
type Issue struct {
	Field string
	Value string
	Err   error
}

func (i Issue) Error() string {
	return fmt.Sprintf("%s=%q: %v", i.Field, i.Value, i.Err)
}

// ResolvePolicy parses the stored schedule, substituting defaults for
// malformed values. The stored row is never modified; callers log the issues.
// An empty weekday list silently falls back to the default set.
func ResolvePolicy(u UserSchedule, d Defaults) (Policy, []Issue) {
	p := Policy{ChatID: u.ChatID}
	var issues []Issue

	if c, err := ParseClock(u.NotifyTime); err == nil {
		p.NotifyTime, p.TimeOK = c, true
	} else {
		issues = append(issues, Issue{Field: "notify_time", Value: u.NotifyTime, Err: err})
	}

	p.UTCOffset = d.UTCOffset
	if off, err := ParseOffset(u.UTCOffset); err == nil {
		p.UTCOffset = off
	} else {
		issues = append(issues, Issue{Field: "utc_offset", Value: u.UTCOffset, Err: err})
	}

	p.Weekdays = d.Weekdays
	if days, err := ParseWeekdays(u.Weekdays); err != nil {
		issues = append(issues, Issue{Field: "weekdays", Value: u.Weekdays, Err: err})
	} else if !days.Empty() {
		p.Weekdays = days
	}

	p.Currencies = d.Currencies
	if codes, err := ParseCurrencies(u.Currencies); err != nil {
		issues = append(issues, Issue{Field: "currencies", Value: u.Currencies, Err: err})
	} else if len(codes) > 0 {
		p.Currencies = codes
	}

	if date, err := ParseLocalDate(u.LastSentDate); err == nil {
		p.LastSentDate = date
	} else {
		issues = append(issues, Issue{Field: "last_sent_date", Value: u.LastSentDate, Err: err})
	}

	return p, issues
}

// LocalTime shifts a UTC instant by a whole-hour offset. The result carries a
// fixed zone so Format and Date report the user's wall clock.
func LocalTime(nowUTC time.Time, offsetHours int) time.Time {
	zone := time.FixedZone(fmt.Sprintf("UTC%+d", offsetHours), offsetHours*3600)
	return nowUTC.In(zone)
}

// Decision is the outcome of evaluating a policy at one instant.
type Decision struct {
	Fire      bool
	LocalNow  time.Time
	LocalDate LocalDate
}

// Evaluate reports whether the scheduled digest is due at nowUTC:
// the local hour and minute match the notify time, the local ISO weekday
// is allowed, and nothing has been sent on the local date yet.
func Evaluate(p Policy, nowUTC time.Time) Decision {
	local := LocalTime(nowUTC, p.UTCOffset)
	dec := Decision{LocalNow: local, LocalDate: DateOf(local)}
	if !p.TimeOK {
		return dec
	}
	if local.Hour() != p.NotifyTime.Hour || local.Minute() != p.NotifyTime.Minute {
		return dec
	}
	if !p.Weekdays.Has(ISOWeekday(local)) {
		return dec
	}
	if p.LastSentDate == dec.LocalDate {
		return dec
	}
	dec.Fire = true
	return dec
}
