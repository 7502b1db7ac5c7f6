package domain

// SettingUpdate is a change to exactly one UserSchedule field.
// The set of implementations is closed: only this package can add one.
type SettingUpdate interface {
	// StoredValue is the text written to the settings row.
	StoredValue() string
	settingUpdate()
}

type SetCurrencies struct{ Codes []string }

type SetNotifyTime struct{ Time Clock }

type SetWeekdays struct{ Days WeekdaySet }

type SetUTCOffset struct{ Hours int }

// SetLastSentDate with an empty Date clears the value.
type SetLastSentDate struct{ Date LocalDate }

func (u SetCurrencies) StoredValue() string   { return FormatCurrencies(u.Codes) }
func (u SetNotifyTime) StoredValue() string   { return u.Time.String() }
func (u SetWeekdays) StoredValue() string     { return u.Days.String() }
func (u SetUTCOffset) StoredValue() string    { return FormatOffset(u.Hours) }
func (u SetLastSentDate) StoredValue() string { return string(u.Date) }

func (SetCurrencies) settingUpdate()   {}
func (SetNotifyTime) settingUpdate()   {}
func (SetWeekdays) settingUpdate()     {}
func (SetUTCOffset) settingUpdate()    {}
func (SetLastSentDate) settingUpdate() {}

// Validate checks an update built from user input before it reaches the store.
func Validate(u SettingUpdate) error {
	switch v := u.(type) {
	case SetCurrencies:
		if len(v.Codes) == 0 {
			return ErrInvalidCurrency
		}
		for _, c := range v.Codes {
			if _, err := ParseCurrency(c); err != nil {
				return err
			}
		}
	case SetNotifyTime:
		if !v.Time.Valid() {
			return ErrInvalidTime
		}
	case SetWeekdays:
		if v.Days.Empty() {
			return ErrInvalidWeekdays
		}
	case SetUTCOffset:
		if v.Hours < MinUTCOffset || v.Hours > MaxUTCOffset {
			return ErrInvalidOffset
		}
	case SetLastSentDate:
		if _, err := ParseLocalDate(string(v.Date)); err != nil {
			return err
		}
	}
	return nil
}
