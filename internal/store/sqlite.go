package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/shopspring/decimal"
	// Registers the "sqlite" driver (pure Go).
	_ "modernc.org/sqlite"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
)

// SQLiteRepo implements Repo using an embedded SQLite database.
type SQLiteRepo struct {
	db       *sql.DB
	defaults domain.Defaults
}

// OpenSQLite opens (or creates) the SQLite database at the given path,
// applies recommended PRAGMAs, runs SQL migrations, and returns a repository.
// defaults seed the settings row of every new user.
func OpenSQLite(ctx context.Context, path string, defaults domain.Defaults) (*SQLiteRepo, error) {
	if err := defaults.Validate(); err != nil {
		return nil, fmt.Errorf("defaults: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// Single writer: the scheduler and chat handlers serialize on this connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	if err := applyPragmas(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply pragmas: %w", err)
	}
	if err := RunMigrations(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrations: %w", err)
	}

	return &SQLiteRepo{db: db, defaults: defaults}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"PRAGMA busy_timeout=5000;",
		"PRAGMA foreign_keys=ON;",
	}
	for _, p := range pragmas {
		if _, err := db.ExecContext(ctx, p); err != nil {
			return err
		}
	}
	return nil
}

// Close releases the underlying database resources.
func (r *SQLiteRepo) Close() error {
	return r.db.Close()
}

// Ping reports whether the database is reachable.
func (r *SQLiteRepo) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (r *SQLiteRepo) insertDefaults(ctx context.Context, ex execer, chatID int64) error {
	u := r.defaults.NewSchedule(chatID)
	_, err := ex.ExecContext(ctx, `
		INSERT INTO user_settings (chat_id, currencies, notify_time, weekdays, utc_offset, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT(chat_id) DO NOTHING`,
		u.ChatID, u.Currencies, u.NotifyTime, u.Weekdays, u.UTCOffset, time.Now().UTC().Unix(),
	)
	return err
}

// GetOrCreate returns the user's settings, inserting the defaults row first if needed.
func (r *SQLiteRepo) GetOrCreate(ctx context.Context, chatID int64) (domain.UserSchedule, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.UserSchedule{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertDefaults(ctx, tx, chatID); err != nil {
		return domain.UserSchedule{}, fmt.Errorf("insert defaults: %w", err)
	}
	u, err := scanSettings(tx.QueryRowContext(ctx,
		`SELECT `+settingsColumns+` FROM user_settings WHERE chat_id = ?`, chatID))
	if err != nil {
		return domain.UserSchedule{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.UserSchedule{}, err
	}
	return u, nil
}

// UpdateField writes one settings field. The column is chosen by the update's
// concrete type, never by caller-supplied text.
func (r *SQLiteRepo) UpdateField(ctx context.Context, chatID int64, upd domain.SettingUpdate) error {
	var (
		query string
		arg   any = upd.StoredValue()
	)
	switch v := upd.(type) {
	case domain.SetCurrencies:
		query = `UPDATE user_settings SET currencies = ? WHERE chat_id = ?`
	case domain.SetNotifyTime:
		query = `UPDATE user_settings SET notify_time = ? WHERE chat_id = ?`
	case domain.SetWeekdays:
		query = `UPDATE user_settings SET weekdays = ? WHERE chat_id = ?`
	case domain.SetUTCOffset:
		query = `UPDATE user_settings SET utc_offset = ? WHERE chat_id = ?`
	case domain.SetLastSentDate:
		query = `UPDATE user_settings SET last_sent_date = ? WHERE chat_id = ?`
		arg = toNullDate(v.Date)
	default:
		return fmt.Errorf("%w: %T", ErrUnknownField, upd)
	}

	res, err := r.db.ExecContext(ctx, query, arg, chatID)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// ListAll returns every user's settings ordered by chat id.
func (r *SQLiteRepo) ListAll(ctx context.Context) ([]domain.UserSchedule, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+settingsColumns+` FROM user_settings ORDER BY chat_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.UserSchedule
	for rows.Next() {
		u, err := scanSettings(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// ListThresholds returns the user's thresholds in creation order.
func (r *SQLiteRepo) ListThresholds(ctx context.Context, chatID int64) ([]domain.Threshold, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+thresholdColumns+` FROM thresholds WHERE chat_id = ? ORDER BY id`, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var res []domain.Threshold
	for rows.Next() {
		t, err := scanThreshold(rows)
		if err != nil {
			return nil, err
		}
		res = append(res, t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return res, nil
}

// AddThreshold stores a new threshold, creating the owner's settings row if
// it does not exist yet.
func (r *SQLiteRepo) AddThreshold(ctx context.Context, chatID int64, currency string, value decimal.Decimal, comment string) (domain.Threshold, error) {
	if !value.IsPositive() {
		return domain.Threshold{}, domain.ErrInvalidThreshold
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Threshold{}, err
	}
	defer func() { _ = tx.Rollback() }()

	if err := r.insertDefaults(ctx, tx, chatID); err != nil {
		return domain.Threshold{}, fmt.Errorf("insert defaults: %w", err)
	}
	now := time.Now().UTC()
	res, err := tx.ExecContext(ctx, `
		INSERT INTO thresholds (chat_id, currency, value, comment, created_at)
		VALUES (?, ?, ?, ?, ?)`,
		chatID, currency, value.String(), comment, now.Unix(),
	)
	if err != nil {
		return domain.Threshold{}, err
	}
	id, err := res.LastInsertId()
	if err != nil {
		return domain.Threshold{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Threshold{}, err
	}
	return domain.Threshold{
		ID:        id,
		ChatID:    chatID,
		Currency:  currency,
		Value:     value,
		Comment:   comment,
		CreatedAt: fromUnix(now.Unix()),
	}, nil
}

// DeleteThreshold removes a threshold owned by chatID.
func (r *SQLiteRepo) DeleteThreshold(ctx context.Context, id, chatID int64) (domain.Threshold, error) {
	t, err := scanThreshold(r.db.QueryRowContext(ctx,
		`DELETE FROM thresholds WHERE id = ? AND chat_id = ? RETURNING `+thresholdColumns, id, chatID))
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Threshold{}, ErrNotFound
	}
	if err != nil {
		return domain.Threshold{}, err
	}
	return t, nil
}
