package telegram

import (
	"context"
	"strings"
	"sync"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
	"github.com/BrickRunner/exchangerate-bot/internal/store"
)

// Pending state keys used in conversational flows.
const (
	pendingCurrencies = "await_currencies_text"
	pendingTime       = "await_time_text"
	pendingDays       = "await_days_text"
	pendingTZ         = "await_tz_text"
	pendingThreshold  = "await_threshold_text"
)

// BotAPI is the subset of *tgbotapi.BotAPI the router uses.
type BotAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
}

// RateSource is what the commands need from rates.Client.
type RateSource interface {
	FetchSnapshot(ctx context.Context, codes []string) (rates.Snapshot, error)
	FetchSnapshotOn(ctx context.Context, day time.Time, codes []string) (rates.Snapshot, error)
	History(ctx context.Context, code string, from, to time.Time) ([]rates.Point, error)
}

// Config tunes the router.
type Config struct {
	SendPerSec float64 // outgoing messages per second, shared with the scheduler
	Defaults   domain.Defaults
}

// Router wires Telegram updates to handlers and holds minimal in-memory state.
type Router struct {
	bot      BotAPI
	log      *zap.Logger
	repo     store.Repo
	rates    RateSource
	defaults domain.Defaults
	limiter  *rate.Limiter
	now      func() time.Time

	state map[int64]string // chatID -> pending state
	mu    sync.RWMutex
}

// NewRouter creates a new Telegram router.
func NewRouter(bot BotAPI, log *zap.Logger, repo store.Repo, src RateSource, cfg Config) *Router {
	if cfg.SendPerSec <= 0 {
		cfg.SendPerSec = 25
	}
	burst := int(cfg.SendPerSec)
	if burst < 1 {
		burst = 1
	}
	return &Router{
		bot:      bot,
		log:      log.Named("telegram"),
		repo:     repo,
		rates:    src,
		defaults: cfg.Defaults,
		limiter:  rate.NewLimiter(rate.Limit(cfg.SendPerSec), burst),
		now:      time.Now,
		state:    make(map[int64]string),
	}
}

func (r *Router) setPending(chatID int64, s string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.state[chatID] = s
}

func (r *Router) getPending(chatID int64) string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.state[chatID]
}

func (r *Router) clearPending(chatID int64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.state, chatID)
}

// splitCommand splits "/cmd@bot args" into "cmd" and "args".
// ok is false for text that is not a command.
func splitCommand(text string) (cmd, args string, ok bool) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", "", false
	}
	cmd, args, _ = strings.Cut(text[1:], " ")
	cmd, _, _ = strings.Cut(cmd, "@")
	return strings.ToLower(cmd), strings.TrimSpace(args), true
}

// HandleUpdate routes a single update to appropriate handler.
func (r *Router) HandleUpdate(ctx context.Context, upd tgbotapi.Update) {
	if upd.Message != nil && upd.Message.Chat != nil {
		chatID := upd.Message.Chat.ID
		cmd, args, ok := splitCommand(upd.Message.Text)
		if !ok {
			r.handleFreeForm(ctx, chatID, strings.TrimSpace(upd.Message.Text))
			return
		}
		// Any command cancels a pending flow.
		r.clearPending(chatID)

		switch cmd {
		case "start", "help":
			r.handleStart(ctx, chatID)
		case "status":
			r.handleStatus(ctx, chatID)
		case "settings":
			r.handleSettings(ctx, chatID)
		case "rates":
			r.handleRates(ctx, chatID)
		case "rates_on":
			r.handleRatesOn(ctx, chatID, args)
		case "stats":
			r.handleStats(ctx, chatID, args)
		case "currencies":
			r.handleSettingCommand(ctx, chatID, pendingCurrencies, args)
		case "time":
			r.handleSettingCommand(ctx, chatID, pendingTime, args)
		case "days":
			r.handleSettingCommand(ctx, chatID, pendingDays, args)
		case "tz":
			r.handleSettingCommand(ctx, chatID, pendingTZ, args)
		case "thresholds":
			r.handleThresholds(ctx, chatID)
		case "threshold_add":
			r.handleThresholdAdd(ctx, chatID, args)
		case "threshold_del":
			r.handleThresholdDel(ctx, chatID, args)
		default:
			r.sendText(ctx, chatID, unknownCommandText)
		}
		return
	}

	if cb := upd.CallbackQuery; cb != nil && cb.Message != nil && cb.Message.Chat != nil {
		r.handleCallback(ctx, cb.Message.Chat.ID, cb.Data, cb.ID)
	}
}

// SendMessage sends a plain text message to the given chat, waiting for the
// shared send budget. This makes Router satisfy scheduler.Sender.
func (r *Router) SendMessage(ctx context.Context, chatID int64, text string) error {
	return r.send(ctx, tgbotapi.NewMessage(chatID, text))
}

func (r *Router) send(ctx context.Context, c tgbotapi.Chattable) error {
	if err := r.limiter.Wait(ctx); err != nil {
		return err
	}
	_, err := r.bot.Send(c)
	return err
}
