package store

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
)

func openTestRepo(t *testing.T) *SQLiteRepo {
	t.Helper()
	repo, err := OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "db", "rates.db"), domain.StandardDefaults())
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestGetOrCreate_InsertsDefaultsOnce(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	u, err := repo.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate: %v", err)
	}
	want := domain.StandardDefaults().NewSchedule(7)
	if u != want {
		t.Fatalf("want %+v, got %+v", want, u)
	}

	if err := repo.UpdateField(ctx, 7, domain.SetNotifyTime{Time: domain.Clock{Hour: 9, Minute: 30}}); err != nil {
		t.Fatalf("UpdateField: %v", err)
	}
	u, err = repo.GetOrCreate(ctx, 7)
	if err != nil {
		t.Fatalf("GetOrCreate again: %v", err)
	}
	if u.NotifyTime != "09:30" {
		t.Fatalf("existing row must be kept, got notify time %q", u.NotifyTime)
	}
}

func TestUpdateField_AllFields(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	if _, err := repo.GetOrCreate(ctx, 1); err != nil {
		t.Fatal(err)
	}

	updates := []domain.SettingUpdate{
		domain.SetCurrencies{Codes: []string{"CNY", "USD"}},
		domain.SetNotifyTime{Time: domain.Clock{Hour: 7, Minute: 5}},
		domain.SetWeekdays{Days: domain.NewWeekdaySet(6, 7)},
		domain.SetUTCOffset{Hours: -5},
		domain.SetLastSentDate{Date: "2025-05-05"},
	}
	for _, upd := range updates {
		if err := repo.UpdateField(ctx, 1, upd); err != nil {
			t.Fatalf("UpdateField(%T): %v", upd, err)
		}
	}

	all, err := repo.ListAll(ctx)
	if err != nil {
		t.Fatalf("ListAll: %v", err)
	}
	want := domain.UserSchedule{
		ChatID: 1, Currencies: "CNY,USD", NotifyTime: "07:05", Weekdays: "6,7", UTCOffset: "-5", LastSentDate: "2025-05-05",
	}
	if len(all) != 1 || all[0] != want {
		t.Fatalf("want [%+v], got %+v", want, all)
	}

	if err := repo.UpdateField(ctx, 1, domain.SetLastSentDate{}); err != nil {
		t.Fatalf("clear last sent: %v", err)
	}
	u, _ := repo.GetOrCreate(ctx, 1)
	if u.LastSentDate != "" {
		t.Fatalf("want cleared last sent date, got %q", u.LastSentDate)
	}

	if err := repo.UpdateField(ctx, 404, domain.SetUTCOffset{Hours: 1}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("unknown user: want ErrNotFound, got %v", err)
	}
}

func TestThresholds_AddListDeleteScopedToOwner(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	th, err := repo.AddThreshold(ctx, 10, "USD", decimal.RequireFromString("100.5"), "buy")
	if err != nil {
		t.Fatalf("AddThreshold: %v", err)
	}
	if th.ID == 0 || th.ChatID != 10 {
		t.Fatalf("unexpected threshold %+v", th)
	}
	if _, err := repo.AddThreshold(ctx, 10, "EUR", decimal.RequireFromString("95"), ""); err != nil {
		t.Fatalf("AddThreshold: %v", err)
	}
	if _, err := repo.AddThreshold(ctx, 10, "EUR", decimal.Zero, ""); !errors.Is(err, domain.ErrInvalidThreshold) {
		t.Fatalf("zero value: want ErrInvalidThreshold, got %v", err)
	}

	// The owner's settings row was created alongside the threshold.
	all, err := repo.ListAll(ctx)
	if err != nil || len(all) != 1 || all[0].ChatID != 10 {
		t.Fatalf("want settings row for owner, got %+v, %v", all, err)
	}

	list, err := repo.ListThresholds(ctx, 10)
	if err != nil {
		t.Fatalf("ListThresholds: %v", err)
	}
	if len(list) != 2 || list[0].Currency != "USD" || !list[0].Value.Equal(decimal.RequireFromString("100.5")) || list[0].Comment != "buy" {
		t.Fatalf("unexpected list %+v", list)
	}

	if _, err := repo.DeleteThreshold(ctx, th.ID, 11); !errors.Is(err, ErrNotFound) {
		t.Fatalf("foreign delete: want ErrNotFound, got %v", err)
	}
	deleted, err := repo.DeleteThreshold(ctx, th.ID, 10)
	if err != nil {
		t.Fatalf("DeleteThreshold: %v", err)
	}
	if deleted.Currency != "USD" {
		t.Fatalf("want deleted USD, got %+v", deleted)
	}
	if _, err := repo.DeleteThreshold(ctx, th.ID, 10); !errors.Is(err, ErrNotFound) {
		t.Fatalf("second delete: want ErrNotFound, got %v", err)
	}
	if list, _ := repo.ListThresholds(ctx, 10); len(list) != 1 {
		t.Fatalf("want 1 threshold left, got %d", len(list))
	}
}

func TestThresholds_KeepDecimalPrecision(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	// Neither value survives a round trip through float64.
	for _, v := range []string{"100.00000000000000001", "0.123456789012345678901"} {
		want := decimal.RequireFromString(v)
		if _, err := repo.AddThreshold(ctx, 10, "USD", want, ""); err != nil {
			t.Fatalf("AddThreshold(%s): %v", v, err)
		}
	}
	list, err := repo.ListThresholds(ctx, 10)
	if err != nil || len(list) != 2 {
		t.Fatalf("ListThresholds: %+v, %v", list, err)
	}
	if got := list[0].Value.String(); got != "100.00000000000000001" {
		t.Errorf("want 100.00000000000000001, got %s", got)
	}
	if got := list[1].Value.String(); got != "0.123456789012345678901" {
		t.Errorf("want 0.123456789012345678901, got %s", got)
	}

	deleted, err := repo.DeleteThreshold(ctx, list[0].ID, 10)
	if err != nil || deleted.Value.String() != "100.00000000000000001" {
		t.Fatalf("DeleteThreshold: %+v, %v", deleted, err)
	}

	// The column check rejects non-positive text written around the repo.
	if _, err := repo.db.ExecContext(ctx,
		`INSERT INTO thresholds (chat_id, currency, value, comment, created_at) VALUES (10, 'USD', '-1.5', '', 0)`,
	); err == nil {
		t.Fatal("want CHECK violation for a negative value")
	}
}

func TestMigrations_Idempotent(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	if err := RunMigrations(ctx, repo.db); err != nil {
		t.Fatalf("second run: %v", err)
	}
	var n int
	if err := repo.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM schema_migrations`).Scan(&n); err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("want 1 recorded migration, got %d", n)
	}
}

func TestConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)

	var wg sync.WaitGroup
	errs := make(chan error, 40)
	for i := 0; i < 20; i++ {
		wg.Add(2)
		go func(id int64) {
			defer wg.Done()
			if _, err := repo.GetOrCreate(ctx, id%5); err != nil {
				errs <- err
			}
		}(int64(i))
		go func() {
			defer wg.Done()
			if _, err := repo.ListAll(ctx); err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		t.Fatalf("concurrent op: %v", err)
	}
	all, _ := repo.ListAll(ctx)
	if len(all) != 5 {
		t.Fatalf("want 5 users, got %d", len(all))
	}
}
