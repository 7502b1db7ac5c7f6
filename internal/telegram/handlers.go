package telegram

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/BrickRunner/exchangerate-bot/internal/digest"
	"github.com/BrickRunner/exchangerate-bot/internal/domain"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
	"github.com/BrickRunner/exchangerate-bot/internal/store"
)

const (
	dateInputLayout = "02.01.2006"
	defaultStatDays = 30
	maxStatDays     = 365
	maxCommentLen   = 200
)

// --- Generic helpers ---

func (r *Router) sendText(ctx context.Context, chatID int64, text string) {
	if err := r.SendMessage(ctx, chatID, text); err != nil {
		r.log.Warn("send reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) sendWithMarkup(ctx context.Context, chatID int64, text string, markup any) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ReplyMarkup = markup
	if err := r.send(ctx, msg); err != nil {
		r.log.Warn("send reply failed", zap.Int64("chat_id", chatID), zap.Error(err))
	}
}

func (r *Router) answerCallback(id, text string) {
	if _, err := r.bot.Request(tgbotapi.NewCallback(id, text)); err != nil {
		r.log.Debug("answer callback failed", zap.Error(err))
	}
}

// ensureUser returns the user's settings, creating a defaults row on first contact.
func (r *Router) ensureUser(ctx context.Context, chatID int64) (domain.UserSchedule, bool) {
	u, err := r.repo.GetOrCreate(ctx, chatID)
	if err != nil {
		r.log.Error("get or create user failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendText(ctx, chatID, storeErrorText)
		return domain.UserSchedule{}, false
	}
	return u, true
}

func (r *Router) policy(u domain.UserSchedule) domain.Policy {
	p, _ := domain.ResolvePolicy(u, r.defaults)
	return p
}

// --- Core commands ---

func (r *Router) handleStart(ctx context.Context, chatID int64) {
	if _, ok := r.ensureUser(ctx, chatID); !ok {
		return
	}
	r.sendWithMarkup(ctx, chatID, startText, mainMenuKeyboard())
}

func (r *Router) handleStatus(ctx context.Context, chatID int64) {
	u, ok := r.ensureUser(ctx, chatID)
	if !ok {
		return
	}
	ths, err := r.repo.ListThresholds(ctx, chatID)
	if err != nil {
		r.log.Error("list thresholds failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendText(ctx, chatID, storeErrorText)
		return
	}
	body := formatStatus(r.policy(u)) + "\n" + digest.Thresholds(ths, r.currentRates(ctx, domain.DistinctCurrencies(ths)))
	r.sendWithMarkup(ctx, chatID, body, mainMenuKeyboard())
}

func (r *Router) handleSettings(ctx context.Context, chatID int64) {
	if _, ok := r.ensureUser(ctx, chatID); !ok {
		return
	}
	r.sendWithMarkup(ctx, chatID, "What do you want to configure?", settingsInlineKeyboard())
}

// currentRates fetches a snapshot for codes, degrading to "no data" on failure.
func (r *Router) currentRates(ctx context.Context, codes []string) rates.Snapshot {
	if len(codes) == 0 {
		return rates.EmptySnapshot(time.Time{}, nil)
	}
	snap, err := r.rates.FetchSnapshot(ctx, codes)
	if err != nil {
		r.log.Warn("fetch rates failed", zap.Strings("codes", codes), zap.Error(err))
		return rates.EmptySnapshot(time.Time{}, codes)
	}
	return snap
}

// --- Rates ---

func (r *Router) handleRates(ctx context.Context, chatID int64) {
	u, ok := r.ensureUser(ctx, chatID)
	if !ok {
		return
	}
	p := r.policy(u)
	snap, err := r.rates.FetchSnapshot(ctx, p.Currencies)
	if err != nil {
		r.log.Warn("fetch rates failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendText(ctx, chatID, ratesUnavailableText)
		return
	}
	r.sendText(ctx, chatID, digest.Rates(snap, p.Currencies, domain.LocalTime(r.now(), p.UTCOffset), true))
}

func (r *Router) handleRatesOn(ctx context.Context, chatID int64, args string) {
	day, err := time.Parse(dateInputLayout, strings.TrimSpace(args))
	if err != nil {
		r.sendText(ctx, chatID, "Usage: /rates_on DD.MM.YYYY, e.g. /rates_on 01.03.2024")
		return
	}
	u, ok := r.ensureUser(ctx, chatID)
	if !ok {
		return
	}
	p := r.policy(u)
	if day.After(domain.LocalTime(r.now(), p.UTCOffset)) {
		r.sendText(ctx, chatID, "That date is in the future.")
		return
	}
	snap, err := r.rates.FetchSnapshotOn(ctx, day, p.Currencies)
	if err != nil {
		r.log.Warn("fetch archive failed", zap.Int64("chat_id", chatID), zap.Time("day", day), zap.Error(err))
		r.sendText(ctx, chatID, ratesUnavailableText)
		return
	}
	if !hasData(snap) {
		r.sendText(ctx, chatID, "No rates were published for "+day.Format(dateInputLayout)+".")
		return
	}
	r.sendText(ctx, chatID, digest.Rates(snap, p.Currencies, day, false))
}

func hasData(snap rates.Snapshot) bool {
	for _, q := range snap.Rates {
		if q.Value.Valid {
			return true
		}
	}
	return false
}

// parseStatsArgs parses "CODE [days]".
func parseStatsArgs(args string) (string, int, error) {
	fields := strings.Fields(args)
	if len(fields) == 0 || len(fields) > 2 {
		return "", 0, errors.New("want CODE [days]")
	}
	code, err := domain.ParseCurrency(fields[0])
	if err != nil {
		return "", 0, err
	}
	days := defaultStatDays
	if len(fields) == 2 {
		days, err = strconv.Atoi(fields[1])
		if err != nil || days < 1 || days > maxStatDays {
			return "", 0, fmt.Errorf("days must be between 1 and %d", maxStatDays)
		}
	}
	return code, days, nil
}

func (r *Router) handleStats(ctx context.Context, chatID int64, args string) {
	code, days, err := parseStatsArgs(args)
	if err != nil {
		r.sendText(ctx, chatID, fmt.Sprintf("Usage: /stats CODE [days], e.g. /stats USD 30 (days 1–%d)", maxStatDays))
		return
	}
	to := r.now()
	pts, err := r.rates.History(ctx, code, to.AddDate(0, 0, -days), to)
	switch {
	case errors.Is(err, rates.ErrUnknownCurrency):
		r.sendText(ctx, chatID, "The central bank does not publish "+code+".")
		return
	case err != nil:
		r.log.Warn("fetch history failed", zap.String("currency", code), zap.Error(err))
		r.sendText(ctx, chatID, ratesUnavailableText)
		return
	}
	r.sendText(ctx, chatID, digest.Stats(code, pts))
}

// --- Settings ---

// parseSetting turns free text into the update for the given pending flow.
func parseSetting(kind, text string) (domain.SettingUpdate, error) {
	var upd domain.SettingUpdate
	switch kind {
	case pendingCurrencies:
		codes, err := domain.ParseCurrencies(text)
		if err != nil {
			return nil, err
		}
		upd = domain.SetCurrencies{Codes: codes}
	case pendingTime:
		c, err := domain.ParseClock(text)
		if err != nil {
			return nil, err
		}
		upd = domain.SetNotifyTime{Time: c}
	case pendingDays:
		set, err := domain.ParseWeekdays(text)
		if err != nil {
			return nil, err
		}
		upd = domain.SetWeekdays{Days: set}
	case pendingTZ:
		h, err := domain.ParseOffset(text)
		if err != nil {
			return nil, err
		}
		upd = domain.SetUTCOffset{Hours: h}
	default:
		return nil, fmt.Errorf("no setting for %q", kind)
	}
	return upd, domain.Validate(upd)
}

// handleSettingCommand applies args right away, or asks for them when empty.
func (r *Router) handleSettingCommand(ctx context.Context, chatID int64, kind, args string) {
	if args == "" {
		r.sendText(ctx, chatID, settingPrompts[kind])
		r.setPending(chatID, kind)
		return
	}
	r.applySetting(ctx, chatID, kind, args)
}

func (r *Router) applySetting(ctx context.Context, chatID int64, kind, text string) {
	upd, err := parseSetting(kind, text)
	if err != nil {
		r.sendText(ctx, chatID, settingErrors[kind])
		return
	}
	if _, ok := r.ensureUser(ctx, chatID); !ok {
		return
	}
	if err := r.repo.UpdateField(ctx, chatID, upd); err != nil {
		r.log.Error("update setting failed", zap.Int64("chat_id", chatID), zap.String("kind", kind), zap.Error(err))
		r.sendText(ctx, chatID, storeErrorText)
		return
	}
	r.sendText(ctx, chatID, settingUpdated(upd))
}

// --- Thresholds ---

func (r *Router) handleThresholds(ctx context.Context, chatID int64) {
	ths, err := r.repo.ListThresholds(ctx, chatID)
	if err != nil {
		r.log.Error("list thresholds failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendText(ctx, chatID, storeErrorText)
		return
	}
	r.sendText(ctx, chatID, digest.Thresholds(ths, r.currentRates(ctx, domain.DistinctCurrencies(ths))))
}

// parseThresholdArgs parses "CODE VALUE [comment...]".
func parseThresholdArgs(args string) (domain.Threshold, error) {
	fields := strings.Fields(args)
	if len(fields) < 2 {
		return domain.Threshold{}, errors.New("want CODE VALUE [comment]")
	}
	code, err := domain.ParseCurrency(fields[0])
	if err != nil {
		return domain.Threshold{}, err
	}
	v, err := domain.ParseThresholdValue(fields[1])
	if err != nil {
		return domain.Threshold{}, err
	}
	comment := strings.Join(fields[2:], " ")
	if len([]rune(comment)) > maxCommentLen {
		return domain.Threshold{}, fmt.Errorf("comment longer than %d characters", maxCommentLen)
	}
	return domain.Threshold{Currency: code, Value: v, Comment: comment}, nil
}

func (r *Router) handleThresholdAdd(ctx context.Context, chatID int64, args string) {
	if args == "" {
		r.sendText(ctx, chatID, thresholdPrompt)
		r.setPending(chatID, pendingThreshold)
		return
	}
	in, err := parseThresholdArgs(args)
	if err != nil {
		r.sendText(ctx, chatID, thresholdUsage)
		return
	}
	th, err := r.repo.AddThreshold(ctx, chatID, in.Currency, in.Value, in.Comment)
	if err != nil {
		r.log.Error("add threshold failed", zap.Int64("chat_id", chatID), zap.Error(err))
		r.sendText(ctx, chatID, storeErrorText)
		return
	}
	r.log.Info("threshold added", zap.Int64("chat_id", chatID), zap.Int64("threshold_id", th.ID), zap.String("currency", th.Currency))

	text := fmt.Sprintf("✅ Threshold #%d added: %s %s", th.ID, th.Currency, th.Value.StringFixed(2))
	snap := r.currentRates(ctx, []string{th.Currency})
	if q := snap.Rates[th.Currency]; q.Value.Valid {
		text += fmt.Sprintf("\nCurrent rate: %s", q.Value.Decimal.StringFixed(2))
		if d := digest.Distance(q.Value, th.Value); d != "" {
			text += " (" + d + " to the threshold)"
		}
	}
	r.sendText(ctx, chatID, text)
}

func (r *Router) handleThresholdDel(ctx context.Context, chatID int64, args string) {
	id, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(args), "#"), 10, 64)
	if err != nil || id <= 0 {
		r.sendText(ctx, chatID, "Usage: /threshold_del ID (see /thresholds)")
		return
	}
	th, err := r.repo.DeleteThreshold(ctx, id, chatID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		r.sendText(ctx, chatID, fmt.Sprintf("You have no threshold #%d.", id))
		return
	case err != nil:
		r.log.Error("delete threshold failed", zap.Int64("chat_id", chatID), zap.Int64("threshold_id", id), zap.Error(err))
		r.sendText(ctx, chatID, storeErrorText)
		return
	}
	r.sendText(ctx, chatID, fmt.Sprintf("🗑 Threshold #%d removed: %s %s", th.ID, th.Currency, th.Value.StringFixed(2)))
}

// --- Free-form dispatcher (answers to prompts) ---

func (r *Router) handleFreeForm(ctx context.Context, chatID int64, text string) {
	kind := r.getPending(chatID)
	if kind == "" {
		return
	}
	r.clearPending(chatID)
	if kind == pendingThreshold {
		r.handleThresholdAdd(ctx, chatID, text)
		return
	}
	r.applySetting(ctx, chatID, kind, text)
}

// --- Inline buttons ---

func (r *Router) handleCallback(ctx context.Context, chatID int64, data, cbID string) {
	r.answerCallback(cbID, "")
	switch {
	case data == "set_currencies":
		r.handleSettingCommand(ctx, chatID, pendingCurrencies, "")
	case data == "set_time":
		r.sendWithMarkup(ctx, chatID, settingPrompts[pendingTime], timePresetsKeyboard())
		r.setPending(chatID, pendingTime)
	case data == "set_days":
		r.sendWithMarkup(ctx, chatID, settingPrompts[pendingDays], daysPresetsKeyboard())
		r.setPending(chatID, pendingDays)
	case data == "set_tz":
		r.sendWithMarkup(ctx, chatID, settingPrompts[pendingTZ], tzPresetsKeyboard())
		r.setPending(chatID, pendingTZ)
	case data == "add_threshold":
		r.handleThresholdAdd(ctx, chatID, "")
	case data == "send_rates":
		r.handleRates(ctx, chatID)

	case strings.HasPrefix(data, "time:"):
		r.clearPending(chatID)
		r.applySetting(ctx, chatID, pendingTime, strings.TrimPrefix(data, "time:"))
	case strings.HasPrefix(data, "days:"):
		r.clearPending(chatID)
		r.applySetting(ctx, chatID, pendingDays, strings.TrimPrefix(data, "days:"))
	case strings.HasPrefix(data, "tz:"):
		r.clearPending(chatID)
		r.applySetting(ctx, chatID, pendingTZ, strings.TrimPrefix(data, "tz:"))

	default:
		// Unknown callback, ignore silently
	}
}
