package telegram

import (
	"fmt"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/BrickRunner/exchangerate-bot/internal/domain"
)

// UI texts in English
const (
	startText = "👋 I send the central bank's exchange rates every morning and warn you when a rate crosses your level.\n\n" +
		"/rates — rates right now\n" +
		"/rates_on DD.MM.YYYY — rates on a past date\n" +
		"/stats CODE [days] — min, max and average over a period\n" +
		"/status — your settings and thresholds\n" +
		"/settings — currencies, time, days and time zone\n" +
		"/threshold_add CODE VALUE [comment] — alert when the rate crosses VALUE\n" +
		"/threshold_del ID — remove a threshold"
	statusTitle = "🧾 Your current settings:"
	statusFmt   = "• Currencies: %s\n• Digest time: %s\n• Days: %s\n• Time zone: %s\n• Last digest: %s\n"

	unknownCommandText   = "Unknown command. Send /start to see what I can do."
	storeErrorText       = "Could not read or save your settings. Please try again later."
	ratesUnavailableText = "Rates are unavailable right now. Please try again later."

	thresholdPrompt = "Send the currency, the level and an optional comment, e.g.: USD 100 sell"
	thresholdUsage  = "Usage: /threshold_add CODE VALUE [comment], e.g. /threshold_add USD 100.5 sell"
)

var settingPrompts = map[string]string{
	pendingCurrencies: "Send currency codes separated by commas, e.g.: USD,EUR,CNY",
	pendingTime:       "Choose a digest time or send your own as HH:MM (your local time):",
	pendingDays:       "Choose the days or send ISO weekdays separated by commas (1 = Monday … 7 = Sunday):",
	pendingTZ:         "Choose your UTC offset or send it in whole hours, e.g.: +3",
}

var settingErrors = map[string]string{
	pendingCurrencies: "Invalid currency list. Example: USD,EUR",
	pendingTime:       "Invalid time. Example: 08:30",
	pendingDays:       "Invalid days. Example: 1,2,3,4,5",
	pendingTZ:         fmt.Sprintf("Invalid offset. Use whole hours from %d to +%d.", domain.MinUTCOffset, domain.MaxUTCOffset),
}

var weekdayNames = [8]string{1: "Mon", 2: "Tue", 3: "Wed", 4: "Thu", 5: "Fri", 6: "Sat", 7: "Sun"}

func formatDays(set domain.WeekdaySet) string {
	days := set.Days()
	names := make([]string, len(days))
	for i, d := range days {
		names[i] = weekdayNames[d]
	}
	return strings.Join(names, ", ")
}

func formatOffset(hours int) string {
	return fmt.Sprintf("UTC%+d", hours)
}

func formatStatus(p domain.Policy) string {
	at := p.NotifyTime.String()
	if !p.TimeOK {
		at = "— (invalid, set it with /time)"
	}
	last := string(p.LastSentDate)
	if last == "" {
		last = "—"
	}
	return fmt.Sprintf("%s\n\n"+statusFmt,
		statusTitle,
		strings.Join(p.Currencies, ", "),
		at,
		formatDays(p.Weekdays),
		formatOffset(p.UTCOffset),
		last,
	)
}

func settingUpdated(upd domain.SettingUpdate) string {
	switch v := upd.(type) {
	case domain.SetCurrencies:
		return "Currencies updated: " + strings.Join(v.Codes, ", ")
	case domain.SetNotifyTime:
		return "Digest time updated: " + v.Time.String()
	case domain.SetWeekdays:
		return "Days updated: " + formatDays(v.Days)
	case domain.SetUTCOffset:
		return "Time zone updated: " + formatOffset(v.Hours)
	default:
		return "Settings updated."
	}
}

// mainMenuKeyboard builds the reply keyboard with the everyday commands.
func mainMenuKeyboard() tgbotapi.ReplyKeyboardMarkup {
	return tgbotapi.NewReplyKeyboard(
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/rates"),
			tgbotapi.NewKeyboardButton("/status"),
		),
		tgbotapi.NewKeyboardButtonRow(
			tgbotapi.NewKeyboardButton("/settings"),
			tgbotapi.NewKeyboardButton("/thresholds"),
		),
	)
}

// Inline keyboards
func settingsInlineKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("💱 Currencies", "set_currencies"),
			tgbotapi.NewInlineKeyboardButtonData("🕘 Time", "set_time"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("📅 Days", "set_days"),
			tgbotapi.NewInlineKeyboardButtonData("🌍 Time zone", "set_tz"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("⚠️ Add threshold", "add_threshold"),
			tgbotapi.NewInlineKeyboardButtonData("📊 Rates now", "send_rates"),
		),
	)
}

func timePresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("07:00", "time:07:00"),
			tgbotapi.NewInlineKeyboardButtonData("08:00", "time:08:00"),
			tgbotapi.NewInlineKeyboardButtonData("09:00", "time:09:00"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("12:00", "time:12:00"),
			tgbotapi.NewInlineKeyboardButtonData("18:00", "time:18:00"),
			tgbotapi.NewInlineKeyboardButtonData("21:00", "time:21:00"),
		),
	)
}

func daysPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Mon–Fri", "days:1,2,3,4,5"),
			tgbotapi.NewInlineKeyboardButtonData("Every day", "days:1,2,3,4,5,6,7"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Weekends", "days:6,7"),
		),
	)
}

func tzPresetsKeyboard() tgbotapi.InlineKeyboardMarkup {
	return tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("UTC+2 Kaliningrad", "tz:+2"),
			tgbotapi.NewInlineKeyboardButtonData("UTC+3 Moscow", "tz:+3"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("UTC+5 Yekaterinburg", "tz:+5"),
			tgbotapi.NewInlineKeyboardButtonData("UTC+7 Novosibirsk", "tz:+7"),
		),
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("UTC+0", "tz:0"),
		),
	)
}
