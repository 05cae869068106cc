package notify

import (
	"context"
	"errors"
	"fmt"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

// DeviceStore persists the platform's live triggers.
type DeviceStore interface {
	Create(ctx context.Context, n *DeviceNotification) error
	Delete(ctx context.Context, handle string) error
	// ListCandidates returns all live triggers; the caller decides which
	// are due against each trigger's own calendar day.
	ListCandidates(ctx context.Context) ([]*DeviceNotification, error)
	MarkFired(ctx context.Context, handle string, firedOn time.Time) error
}

// TelegramPlatform implements Platform on top of a persisted trigger table
// delivered over Telegram. Scheduling is durable: triggers survive restarts
// and are fired by the delivery loop, at most once per calendar day each.
type TelegramPlatform struct {
	devices DeviceStore
	logger  *zap.Logger
}

func NewTelegramPlatform(devices DeviceStore, logger *zap.Logger) *TelegramPlatform {
	return &TelegramPlatform{devices: devices, logger: logger}
}

func (p *TelegramPlatform) Schedule(ctx context.Context, trigger Trigger, payload Payload) (string, error) {
	n := &DeviceNotification{
		Handle:       uuid.NewString(),
		MedicationID: payload.MedicationID,
		ChatID:       payload.ChatID,
		Weekday:      trigger.Weekday,
		Hour:         trigger.Hour,
		Minute:       trigger.Minute,
		Message:      payload.Message,
		Timezone:     payload.Timezone,
	}
	if err := p.devices.Create(ctx, n); err != nil {
		return "", fmt.Errorf("failed to schedule notification: %w", err)
	}
	return n.Handle, nil
}

func (p *TelegramPlatform) Cancel(ctx context.Context, handle string) error {
	return p.devices.Delete(ctx, handle)
}

// DueNow returns every trigger that should fire at now: its weekday matches
// in its own timezone, its time of day has passed, and it has not already
// fired on that local calendar day. Triggers are not marked fired here;
// callers mark them after delivery so a failed send is retried next tick.
func (p *TelegramPlatform) DueNow(ctx context.Context, now time.Time) ([]Due, error) {
	candidates, err := p.devices.ListCandidates(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list notification triggers: %w", err)
	}

	var due []Due
	for _, n := range candidates {
		loc, err := time.LoadLocation(n.Timezone)
		if err != nil {
			p.logger.Warn("unknown trigger timezone, using local",
				zap.String("handle", n.Handle), zap.String("timezone", n.Timezone))
			loc = time.Local
		}
		local := now.In(loc)
		if local.Weekday() != n.Weekday {
			continue
		}
		scheduled := time.Date(local.Year(), local.Month(), local.Day(), n.Hour, n.Minute, 0, 0, loc)
		if local.Before(scheduled) {
			continue
		}
		if n.LastFiredOn != nil && sameDate(*n.LastFiredOn, local) {
			continue
		}
		due = append(due, Due{Notification: n, ScheduledAt: scheduled})
	}
	return due, nil
}

// MarkFired records that a trigger delivered on the given local day.
func (p *TelegramPlatform) MarkFired(ctx context.Context, handle string, firedOn time.Time) error {
	return p.devices.MarkFired(ctx, handle, firedOn)
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// Messenger delivers user-facing messages. Split from Platform so the
// delivery loop can be tested without Telegram.
type Messenger interface {
	// SendDoseReminder sends a reminder carrying taken/missed response
	// buttons tied to the pending response id.
	SendDoseReminder(chatID int64, message string, pendingID int) error
	SendText(chatID int64, text string) error
}

// TelegramMessenger sends over the Telegram bot API.
type TelegramMessenger struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegramMessenger(api *tgbotapi.BotAPI, logger *zap.Logger) *TelegramMessenger {
	return &TelegramMessenger{api: api, logger: logger}
}

func (m *TelegramMessenger) SendDoseReminder(chatID int64, message string, pendingID int) error {
	msg := tgbotapi.NewMessage(chatID, "💊 Time for your medication\n\n"+message)
	msg.ReplyMarkup = tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", fmt.Sprintf("dose_taken:%d", pendingID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Missed", fmt.Sprintf("dose_missed:%d", pendingID)),
		),
	)
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send dose reminder: %w", err)
	}
	return nil
}

func (m *TelegramMessenger) SendText(chatID int64, text string) error {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := m.api.Send(msg); err != nil {
		return fmt.Errorf("failed to send message: %w", err)
	}
	return nil
}

// ErrContactUnreachable reports that the contact has no channel this
// notifier can deliver on. Callers must not tell the user the contact was
// alerted when they see it.
var ErrContactUnreachable = errors.New("emergency contact has no linked chat")

// ContactNotifier alerts an emergency contact that doses are being missed.
// The decision to notify is made by the caller; this only delivers.
type ContactNotifier interface {
	Notify(ctx context.Context, contact models.EmergencyContact, medicationName string, consecutiveMisses int) error
}

// TelegramContactNotifier delivers contact alerts to the contact's linked
// Telegram chat. Contacts with only an email address on file are logged for
// an external mail dispatcher to pick up; SMTP is not spoken here.
type TelegramContactNotifier struct {
	api    *tgbotapi.BotAPI
	logger *zap.Logger
}

func NewTelegramContactNotifier(api *tgbotapi.BotAPI, logger *zap.Logger) *TelegramContactNotifier {
	return &TelegramContactNotifier{api: api, logger: logger}
}

func (n *TelegramContactNotifier) Notify(ctx context.Context, contact models.EmergencyContact, medicationName string, consecutiveMisses int) error {
	text := fmt.Sprintf(
		"⚠️ %s: the person who listed you as their emergency contact has missed %d consecutive doses of %s.",
		contact.Name, consecutiveMisses, medicationName,
	)
	if contact.ChatID == nil {
		n.logger.Warn("emergency contact has no linked chat, alert not delivered",
			zap.String("contact_email", contact.Email),
			zap.String("medication", medicationName),
			zap.Int("consecutive_misses", consecutiveMisses))
		return fmt.Errorf("%w: %s", ErrContactUnreachable, contact.Name)
	}
	msg := tgbotapi.NewMessage(*contact.ChatID, text)
	if _, err := n.api.Send(msg); err != nil {
		return fmt.Errorf("failed to notify emergency contact: %w", err)
	}
	return nil
}
