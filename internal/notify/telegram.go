// Package notify delivers watcher events to Telegram.
package notify

import (
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/user/obs-watcher/internal/domain"
)

// Notifier is the delivery surface the watcher depends on.
type Notifier interface {
	Startup(interval time.Duration) error
	GradeAlert(changes []domain.GradeRecord) error
	ErrorAlert(msg string) error
}

// Telegram sends HTML-formatted messages to a single chat.
type Telegram struct {
	bot    *tgbotapi.BotAPI
	chatID int64
	logger *zap.Logger
}

func NewTelegram(token string, chatID int64, logger *zap.Logger) (*Telegram, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("telegram bot: %w", err)
	}
	return &Telegram{bot: bot, chatID: chatID, logger: logger}, nil
}

func (t *Telegram) send(text string) error {
	msg := tgbotapi.NewMessage(t.chatID, text)
	msg.ParseMode = tgbotapi.ModeHTML
	if _, err := t.bot.Send(msg); err != nil {
		t.logger.Error("telegram send failed", zap.Error(err))
		return err
	}
	return nil
}

// Send delivers a raw preformatted message; used by the --test smoke run.
func (t *Telegram) Send(text string) error {
	return t.send(text)
}

func (t *Telegram) Startup(interval time.Duration) error {
	return t.send(FormatStartup(interval))
}

func (t *Telegram) GradeAlert(changes []domain.GradeRecord) error {
	if len(changes) == 0 {
		return nil
	}
	return t.send(FormatGrades(changes))
}

func (t *Telegram) ErrorAlert(msg string) error {
	return t.send(FormatError(msg))
}

// FormatStartup announces the watcher and its check period.
func FormatStartup(interval time.Duration) string {
	return fmt.Sprintf(
		"🤖 <b>OBS Bildirim Botu Aktif!</b>\n\n⏰ Kontrol sıklığı: %d dakika\n📝 Yeni sonuçlar açıklandığında bildirim alacaksınız.",
		int(interval.Minutes()))
}

// FormatGrades renders a single-grade card or, for several grades, one
// batched message.
func FormatGrades(changes []domain.GradeRecord) string {
	if len(changes) == 1 {
		return formatSingle(changes[0])
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "🎓 <b>%d Yeni Sınav Sonucu!</b>\n\n", len(changes))
	for i, r := range changes {
		fmt.Fprintf(&sb, "%d. <b>%s</b> - %s: <code>%s</code>\n",
			i+1, r.CourseCode, r.CourseName, r.Grade)
	}
	sb.WriteString("\n✨ Tebrikler! Başarılar dilerim.")
	return sb.String()
}

func formatSingle(r domain.GradeRecord) string {
	var sb strings.Builder
	sb.WriteString("🎓 <b>Yeni Sınav Sonucu!</b>\n\n")
	fmt.Fprintf(&sb, "📚 <b>Ders:</b> %s\n", r.CourseCode)
	fmt.Fprintf(&sb, "📖 <b>Ders Adı:</b> %s\n", r.CourseName)
	fmt.Fprintf(&sb, "📊 <b>Not:</b> <code>%s</code>\n", r.Grade)
	if r.Status != "" {
		fmt.Fprintf(&sb, "📋 <b>Durum:</b> %s\n", r.Status)
	}
	sb.WriteString("\n✨ Tebrikler! Başarılar dilerim.")
	return sb.String()
}

// FormatError renders a run-failure alert.
func FormatError(msg string) string {
	return fmt.Sprintf("⚠️ <b>OBS Bot Hatası</b>\n\n%s", msg)
}
