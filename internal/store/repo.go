package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
)

var (
	// ErrNotFound is returned when a row does not exist or is not owned by the caller.
	ErrNotFound = errors.New("not found")
	// ErrUnknownField is returned for a SettingUpdate the store cannot map to a column.
	ErrUnknownField = errors.New("unknown settings field")
)

// Repo defines storage operations for user settings and thresholds.
// Every method is a single atomic unit and safe for concurrent use.
type Repo interface {
	// GetOrCreate returns the user's settings, inserting defaults on first access.
	GetOrCreate(ctx context.Context, chatID int64) (domain.UserSchedule, error)
	UpdateField(ctx context.Context, chatID int64, upd domain.SettingUpdate) error
	ListAll(ctx context.Context) ([]domain.UserSchedule, error)

	ListThresholds(ctx context.Context, chatID int64) ([]domain.Threshold, error)
	AddThreshold(ctx context.Context, chatID int64, currency string, value decimal.Decimal, comment string) (domain.Threshold, error)
	// DeleteThreshold removes the threshold only if chatID owns it and returns the removed row.
	DeleteThreshold(ctx context.Context, id, chatID int64) (domain.Threshold, error)

	Close() error
}
