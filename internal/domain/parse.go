package domain

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

var (
	ErrInvalidTime      = errors.New("invalid notify time")
	ErrInvalidWeekdays  = errors.New("invalid weekdays")
	ErrInvalidOffset    = errors.New("invalid utc offset")
	ErrInvalidCurrency  = errors.New("invalid currency code")
	ErrInvalidThreshold = errors.New("invalid threshold value")
	ErrInvalidDate      = errors.New("invalid date")
)

const (
	MinUTCOffset = -12
	MaxUTCOffset = 14
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
}

func (c Clock) Valid() bool {
	return c.Hour >= 0 && c.Hour <= 23 && c.Minute >= 0 && c.Minute <= 59
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d", c.Hour, c.Minute)
}

// ParseClock parses "HH:MM" (a single-digit hour is accepted).
func ParseClock(s string) (Clock, error) {
	s = strings.TrimSpace(s)
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return Clock{}, fmt.Errorf("%w: expected HH:MM, got %q", ErrInvalidTime, s)
	}
	if n := len(parts[0]); n < 1 || n > 2 || !digits(parts[0]) {
		return Clock{}, fmt.Errorf("%w: hour %q", ErrInvalidTime, parts[0])
	}
	if len(parts[1]) != 2 || !digits(parts[1]) {
		return Clock{}, fmt.Errorf("%w: minute %q", ErrInvalidTime, parts[1])
	}
	h, _ := strconv.Atoi(parts[0])
	m, _ := strconv.Atoi(parts[1])
	c := Clock{Hour: h, Minute: m}
	if !c.Valid() {
		return Clock{}, fmt.Errorf("%w: %q out of range", ErrInvalidTime, s)
	}
	return c, nil
}

func digits(s string) bool {
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// WeekdaySet is a set of ISO weekdays (Monday=1 .. Sunday=7) stored as a bitmask.
type WeekdaySet uint8

// Workdays returns Monday through Friday.
func Workdays() WeekdaySet {
	return NewWeekdaySet(1, 2, 3, 4, 5)
}

// NewWeekdaySet ignores values outside 1..7.
func NewWeekdaySet(days ...int) WeekdaySet {
	var s WeekdaySet
	for _, d := range days {
		if d >= 1 && d <= 7 {
			s |= 1 << uint(d)
		}
	}
	return s
}

func (s WeekdaySet) Has(isoDay int) bool {
	if isoDay < 1 || isoDay > 7 {
		return false
	}
	return s&(1<<uint(isoDay)) != 0
}

func (s WeekdaySet) Empty() bool { return s == 0 }

// Days returns the members in ascending order.
func (s WeekdaySet) Days() []int {
	var out []int
	for d := 1; d <= 7; d++ {
		if s.Has(d) {
			out = append(out, d)
		}
	}
	return out
}

// String renders the stored form, e.g. "1,2,3,4,5".
func (s WeekdaySet) String() string {
	days := s.Days()
	parts := make([]string, len(days))
	for i, d := range days {
		parts[i] = strconv.Itoa(d)
	}
	return strings.Join(parts, ",")
}

// ParseWeekdays parses a comma separated list of ISO weekdays.
// An empty string yields an empty set without error.
func ParseWeekdays(s string) (WeekdaySet, error) {
	var set WeekdaySet
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		d, err := strconv.Atoi(p)
		if err != nil || d < 1 || d > 7 {
			return 0, fmt.Errorf("%w: %q", ErrInvalidWeekdays, p)
		}
		set |= 1 << uint(d)
	}
	return set, nil
}

// ISOWeekday maps time.Weekday (Sunday=0) to ISO numbering (Sunday=7).
func ISOWeekday(t time.Time) int {
	wd := int(t.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}

// ParseOffset parses a whole-hour UTC offset such as "3", "+3" or "-5".
func ParseOffset(s string) (int, error) {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(strings.ToUpper(s), "UTC")
	n, err := strconv.Atoi(strings.TrimPrefix(s, "+"))
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidOffset, s)
	}
	if n < MinUTCOffset || n > MaxUTCOffset {
		return 0, fmt.Errorf("%w: %d not in [%d, %d]", ErrInvalidOffset, n, MinUTCOffset, MaxUTCOffset)
	}
	return n, nil
}

// FormatOffset renders the stored form of an offset ("3", "-5").
func FormatOffset(hours int) string {
	return strconv.Itoa(hours)
}

// ParseCurrency normalizes a three-letter currency code.
func ParseCurrency(s string) (string, error) {
	code := strings.ToUpper(strings.TrimSpace(s))
	if len(code) != 3 {
		return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
	}
	for _, r := range code {
		if r < 'A' || r > 'Z' {
			return "", fmt.Errorf("%w: %q", ErrInvalidCurrency, s)
		}
	}
	return code, nil
}

// ParseCurrencies parses a comma separated list, collapsing duplicates and
// keeping first-seen order.
func ParseCurrencies(s string) ([]string, error) {
	var out []string
	seen := make(map[string]struct{})
	for _, p := range strings.Split(s, ",") {
		if strings.TrimSpace(p) == "" {
			continue
		}
		code, err := ParseCurrency(p)
		if err != nil {
			return nil, err
		}
		if _, ok := seen[code]; ok {
			continue
		}
		seen[code] = struct{}{}
		out = append(out, code)
	}
	return out, nil
}

// FormatCurrencies renders the stored form, e.g. "USD,EUR".
func FormatCurrencies(codes []string) string {
	return strings.Join(codes, ",")
}

// DistinctCurrencies returns the sorted set of currencies referenced by thresholds.
func DistinctCurrencies(ths []Threshold) []string {
	seen := make(map[string]struct{}, len(ths))
	var out []string
	for _, t := range ths {
		if _, ok := seen[t.Currency]; ok {
			continue
		}
		seen[t.Currency] = struct{}{}
		out = append(out, t.Currency)
	}
	sort.Strings(out)
	return out
}

// LocalDate is a calendar date in a user's local time, formatted YYYY-MM-DD.
type LocalDate string

const dateLayout = "2006-01-02"

// DateOf returns the calendar date of t in t's own location.
func DateOf(t time.Time) LocalDate {
	return LocalDate(t.Format(dateLayout))
}

// ParseLocalDate validates a stored date. Empty input yields an empty date.
func ParseLocalDate(s string) (LocalDate, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return "", nil
	}
	if _, err := time.Parse(dateLayout, s); err != nil {
		return "", fmt.Errorf("%w: %q", ErrInvalidDate, s)
	}
	return LocalDate(s), nil
}

// ParseThresholdValue accepts "100.5" or "100,5"; the value must be strictly positive.
func ParseThresholdValue(s string) (decimal.Decimal, error) {
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", ".")
	v, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidThreshold, s)
	}
	if !v.IsPositive() {
		return decimal.Zero, fmt.Errorf("%w: must be positive", ErrInvalidThreshold)
	}
	return v, nil
}
