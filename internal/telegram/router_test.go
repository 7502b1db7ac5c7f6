package telegram

import (
	"context"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/shopspring/decimal"
	"go.uber.org/zap/zaptest"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
	"github.com/BrickRunner/exchangerate-bot/internal/store"
)

type fakeBot struct {
	mu    sync.Mutex
	texts []string
}

func (b *fakeBot) Send(c tgbotapi.Chattable) (tgbotapi.Message, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if m, ok := c.(tgbotapi.MessageConfig); ok {
		b.texts = append(b.texts, m.Text)
	}
	return tgbotapi.Message{}, nil
}

func (b *fakeBot) Request(tgbotapi.Chattable) (*tgbotapi.APIResponse, error) {
	return &tgbotapi.APIResponse{Ok: true}, nil
}

func (b *fakeBot) last(t *testing.T) string {
	t.Helper()
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.texts) == 0 {
		t.Fatal("no message sent")
	}
	return b.texts[len(b.texts)-1]
}

type fakeRates struct{}

func (fakeRates) FetchSnapshot(_ context.Context, codes []string) (rates.Snapshot, error) {
	snap := rates.EmptySnapshot(time.Time{}, codes)
	for _, c := range codes {
		snap.Rates[c] = rates.Quote{
			Value:    decimal.NewNullDecimal(decimal.RequireFromString("80")),
			Previous: decimal.NewNullDecimal(decimal.RequireFromString("79")),
			Nominal:  1,
		}
	}
	return snap, nil
}

func (fakeRates) FetchSnapshotOn(_ context.Context, day time.Time, codes []string) (rates.Snapshot, error) {
	return rates.EmptySnapshot(day, codes), nil
}

func (fakeRates) History(context.Context, string, time.Time, time.Time) ([]rates.Point, error) {
	return nil, rates.ErrUnknownCurrency
}

func newTestRouter(t *testing.T) (*Router, *fakeBot, *store.SQLiteRepo) {
	t.Helper()
	ctx := context.Background()
	defaults := domain.StandardDefaults()
	repo, err := store.OpenSQLite(ctx, filepath.Join(t.TempDir(), "bot.db"), defaults)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })

	bot := &fakeBot{}
	r := NewRouter(bot, zaptest.NewLogger(t), repo, fakeRates{}, Config{SendPerSec: 1000, Defaults: defaults})
	r.now = func() time.Time { return time.Date(2025, 5, 5, 6, 0, 0, 0, time.UTC) }
	return r, bot, repo
}

func msgUpdate(chatID int64, s string) tgbotapi.Update {
	return tgbotapi.Update{Message: &tgbotapi.Message{Chat: &tgbotapi.Chat{ID: chatID}, Text: s}}
}

func TestSplitCommand(t *testing.T) {
	cases := []struct {
		in, cmd, args string
		ok            bool
	}{
		{"/time 09:30", "time", "09:30", true},
		{"/Rates@ratebot", "rates", "", true},
		{"  /threshold_add USD 100 sell now ", "threshold_add", "USD 100 sell now", true},
		{"hello", "", "", false},
	}
	for _, c := range cases {
		cmd, args, ok := splitCommand(c.in)
		if cmd != c.cmd || args != c.args || ok != c.ok {
			t.Errorf("splitCommand(%q) = %q, %q, %v", c.in, cmd, args, ok)
		}
	}
}

func TestParseThresholdArgs(t *testing.T) {
	th, err := parseThresholdArgs("usd 100,5 sell half")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if th.Currency != "USD" || th.Value.String() != "100.5" || th.Comment != "sell half" {
		t.Fatalf("unexpected threshold: %+v", th)
	}
	for _, bad := range []string{"", "USD", "USD -1", "US 100", "USD abc"} {
		if _, err := parseThresholdArgs(bad); err == nil {
			t.Errorf("%q: want error", bad)
		}
	}
}

func TestParseStatsArgs(t *testing.T) {
	code, days, err := parseStatsArgs("eur")
	if err != nil || code != "EUR" || days != defaultStatDays {
		t.Fatalf("got %q %d %v", code, days, err)
	}
	for _, bad := range []string{"", "EUR 0", "EUR 1000", "EUR x", "EUR 1 2"} {
		if _, _, err := parseStatsArgs(bad); err == nil {
			t.Errorf("%q: want error", bad)
		}
	}
}

func TestHandleUpdate_SettingCommands(t *testing.T) {
	r, bot, repo := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(1, "/time 09:30"))
	if got := bot.last(t); got != "Digest time updated: 09:30" {
		t.Fatalf("reply: %q", got)
	}
	r.HandleUpdate(ctx, msgUpdate(1, "/currencies usd, cny, usd"))
	r.HandleUpdate(ctx, msgUpdate(1, "/days 6,7"))

	u, err := repo.GetOrCreate(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if u.NotifyTime != "09:30" || u.Currencies != "USD,CNY" || u.Weekdays != "6,7" {
		t.Fatalf("stored: %+v", u)
	}
}

func TestHandleUpdate_InvalidSettingKeepsStoredValue(t *testing.T) {
	r, bot, repo := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(1, "/time 25:99"))
	if got := bot.last(t); got != settingErrors[pendingTime] {
		t.Fatalf("reply: %q", got)
	}
	r.HandleUpdate(ctx, msgUpdate(1, "/days"))
	r.HandleUpdate(ctx, msgUpdate(1, ","))

	u, err := repo.GetOrCreate(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if u.NotifyTime != "08:00" || u.Weekdays != "1,2,3,4,5" {
		t.Fatalf("stored: %+v", u)
	}
}

func TestHandleUpdate_PendingFlow(t *testing.T) {
	r, bot, repo := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(1, "/tz"))
	if got := bot.last(t); got != settingPrompts[pendingTZ] {
		t.Fatalf("prompt: %q", got)
	}
	r.HandleUpdate(ctx, msgUpdate(1, "+5"))
	if got := bot.last(t); got != "Time zone updated: UTC+5" {
		t.Fatalf("reply: %q", got)
	}
	u, _ := repo.GetOrCreate(ctx, 1)
	if u.UTCOffset != "5" {
		t.Fatalf("stored offset %q", u.UTCOffset)
	}

	// The flow is consumed; free text is ignored afterwards.
	n := len(bot.texts)
	r.HandleUpdate(ctx, msgUpdate(1, "+7"))
	if len(bot.texts) != n {
		t.Fatal("free text without a pending flow must be ignored")
	}
}

func TestHandleUpdate_ThresholdLifecycle(t *testing.T) {
	r, bot, repo := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(1, "/threshold_add USD 84 sell"))
	got := bot.last(t)
	if !strings.HasPrefix(got, "✅ Threshold #") || !strings.Contains(got, "📈 +5.00% to the threshold") {
		t.Fatalf("reply: %q", got)
	}
	ths, err := repo.ListThresholds(ctx, 1)
	if err != nil || len(ths) != 1 {
		t.Fatalf("thresholds: %v %v", ths, err)
	}
	id := ths[0].ID

	r.HandleUpdate(ctx, msgUpdate(2, "/threshold_del "+strconv.FormatInt(id, 10)))
	if got := bot.last(t); !strings.HasPrefix(got, "You have no threshold") {
		t.Fatalf("other chat: %q", got)
	}
	r.HandleUpdate(ctx, msgUpdate(1, "/threshold_del #"+strconv.FormatInt(id, 10)))
	if got := bot.last(t); !strings.HasPrefix(got, "🗑 Threshold") {
		t.Fatalf("owner: %q", got)
	}
	if ths, _ := repo.ListThresholds(ctx, 1); len(ths) != 0 {
		t.Fatalf("want no thresholds, got %d", len(ths))
	}
}

func TestHandleUpdate_RatesCommands(t *testing.T) {
	r, bot, _ := newTestRouter(t)
	ctx := context.Background()

	r.HandleUpdate(ctx, msgUpdate(1, "/rates"))
	if got := bot.last(t); !strings.Contains(got, "05.05.2025 09:00 (local time)") || !strings.Contains(got, "USD ($): 80.00 ₽") {
		t.Fatalf("rates: %q", got)
	}

	r.HandleUpdate(ctx, msgUpdate(1, "/rates_on 01.01.2030"))
	if got := bot.last(t); got != "That date is in the future." {
		t.Fatalf("future: %q", got)
	}
	r.HandleUpdate(ctx, msgUpdate(1, "/rates_on 01.01.2024"))
	if got := bot.last(t); !strings.HasPrefix(got, "No rates were published") {
		t.Fatalf("holiday: %q", got)
	}
	r.HandleUpdate(ctx, msgUpdate(1, "/stats XAU"))
	if got := bot.last(t); !strings.Contains(got, "does not publish XAU") {
		t.Fatalf("stats: %q", got)
	}
}

func TestSendMessage_CanceledContext(t *testing.T) {
	r, _, _ := newTestRouter(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := r.SendMessage(ctx, 1, "hi"); err == nil {
		t.Fatal("want error for canceled context")
	}
}
