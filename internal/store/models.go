package store

import (
	"database/sql"
	"time"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
)

func toNullDate(d domain.LocalDate) sql.NullString {
	if d == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: string(d), Valid: true}
}

func fromUnix(sec int64) time.Time {
	return time.Unix(sec, 0).UTC()
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

const settingsColumns = `chat_id, currencies, notify_time, weekdays, utc_offset, last_sent_date`

func scanSettings(s rowScanner) (domain.UserSchedule, error) {
	var (
		u    domain.UserSchedule
		last sql.NullString
	)
	if err := s.Scan(&u.ChatID, &u.Currencies, &u.NotifyTime, &u.Weekdays, &u.UTCOffset, &last); err != nil {
		return domain.UserSchedule{}, err
	}
	u.LastSentDate = last.String
	return u, nil
}

const thresholdColumns = `id, chat_id, currency, value, comment, created_at`

func scanThreshold(s rowScanner) (domain.Threshold, error) {
	var (
		t       domain.Threshold
		created int64
	)
	if err := s.Scan(&t.ID, &t.ChatID, &t.Currency, &t.Value, &t.Comment, &created); err != nil {
		return domain.Threshold{}, err
	}
	t.CreatedAt = fromUnix(created)
	return t, nil
}
