package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/config"
	"github.com/rxline/rxline/internal/models"
	"github.com/rxline/rxline/internal/recurrence"
)

func (h *Handlers) handleAddMedication(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		h.sendMessage(msg.Chat.ID, "Usage: /addmed <name> [amount unit]\nExample: /addmed Aspirin 100 mg")
		return
	}

	med := &models.Medication{
		UserID:    user.UserID,
		StartDate: time.Now(),
		Reminders: models.ReminderConfig{
			Weekdays: models.AllWeekdays(),
		},
	}

	// Trailing "<number> <unit>" is the dosage, everything before is the name.
	if len(args) >= 3 {
		if amount, err := strconv.ParseFloat(args[len(args)-2], 64); err == nil {
			med.Dosage = models.Dosage{Amount: amount, Unit: args[len(args)-1]}
			args = args[:len(args)-2]
		}
	}
	med.Name = strings.Join(args, " ")

	if err := med.Validate(); err != nil {
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("Cannot add medication: %v", err))
		return
	}

	if err := h.repos.Medication.Create(ctx, med); err != nil {
		h.logger.Error("failed to create medication", zap.Int64("user_id", user.UserID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to add the medication, please try again later.")
		return
	}

	if err := h.sync.OnCreate(ctx, med, user); err != nil {
		h.logger.Warn("failed to register reminders", zap.Int("medication_id", med.MedicationID), zap.Error(err))
	}

	h.sendPlain(msg.Chat.ID, fmt.Sprintf("💊 Added %s (#%d).\nSet dose times with /times %d 08:00,20:00 then /remindon %d.",
		med.Label(), med.MedicationID, med.MedicationID, med.MedicationID))
}

func (h *Handlers) handleMedicationList(ctx context.Context, msg *tgbotapi.Message) {
	h.sendPlain(msg.Chat.ID, h.medicationListText(ctx, msg.From.ID))
}

func (h *Handlers) medicationListText(ctx context.Context, userID int64) string {
	meds, err := h.repos.Medication.GetByUserID(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list medications", zap.Int64("user_id", userID), zap.Error(err))
		return "Failed to load your medications, please try again later."
	}
	if len(meds) == 0 {
		return "💊 No medications yet. Add one with /addmed."
	}

	loc := time.Local
	if user, err := h.repos.User.GetByID(ctx, userID); err == nil {
		loc = user.Location()
	}
	now := time.Now()

	var sb strings.Builder
	sb.WriteString("💊 Your medications\n\n")
	for _, med := range meds {
		sb.WriteString(fmt.Sprintf("#%d %s\n", med.MedicationID, med.Label()))
		sb.WriteString(fmt.Sprintf("   ⏰ %s\n", recurrence.Summary(med.Reminders)))
		if next, err := recurrence.NextAfter(med.Reminders, now, loc); err == nil && next != nil && med.Active(now.In(loc)) {
			sb.WriteString(fmt.Sprintf("   ⏭ next dose %s\n", next.Format("Mon 15:04")))
		}
		if med.EndDate != nil {
			sb.WriteString(fmt.Sprintf("   📅 until %s\n", med.EndDate.Format("2006-01-02")))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (h *Handlers) handleDeleteMedication(ctx context.Context, msg *tgbotapi.Message) {
	id, err := strconv.Atoi(strings.TrimSpace(msg.CommandArguments()))
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Usage: /delmed <id>")
		return
	}

	med, err := h.repos.Medication.GetForUser(ctx, id, msg.From.ID)
	if err != nil {
		h.logger.Error("failed to load medication", zap.Int("medication_id", id), zap.Error(err))
		return
	}
	if med == nil {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("Medication #%d not found.", id))
		return
	}

	h.sendDeleteConfirmation(msg.Chat.ID, med)
}

func (h *Handlers) sendDeleteConfirmation(chatID int64, med *models.Medication) {
	text := fmt.Sprintf("Delete %s (#%d)? This also cancels its reminders.", med.Label(), med.MedicationID)
	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("Yes, delete", fmt.Sprintf("delmed_yes:%d", med.MedicationID)),
			tgbotapi.NewInlineKeyboardButtonData("Cancel", fmt.Sprintf("delmed_no:%d", med.MedicationID)),
		),
	)

	out := tgbotapi.NewMessage(chatID, text)
	out.ReplyMarkup = keyboard
	if _, err := h.api.Send(out); err != nil {
		h.logger.Warn("failed to send confirmation", zap.Error(err))
	}
}

func (h *Handlers) confirmDeleteMedication(ctx context.Context, callback *tgbotapi.CallbackQuery, medicationID int) {
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	med, err := h.repos.Medication.GetForUser(ctx, medicationID, callback.From.ID)
	if err != nil {
		h.logger.Error("failed to load medication", zap.Int("medication_id", medicationID), zap.Error(err))
		return
	}
	if med == nil {
		h.editMessageText(chatID, messageID, "This medication is already gone.")
		return
	}

	// Cancel notifications before the row disappears so no orphaned
	// reminders keep firing.
	if err := h.sync.OnDelete(ctx, medicationID); err != nil {
		h.logger.Error("failed to cancel reminders", zap.Int("medication_id", medicationID), zap.Error(err))
		h.editMessageText(chatID, messageID, "Could not cancel the reminders, nothing was deleted. Try again.")
		return
	}

	if err := h.repos.Medication.SoftDelete(ctx, medicationID, callback.From.ID); err != nil {
		h.logger.Error("failed to delete medication", zap.Int("medication_id", medicationID), zap.Error(err))
		h.editMessageText(chatID, messageID, "Failed to delete the medication, please try again.")
		return
	}

	if h.retention == config.RetentionCascade {
		if err := h.ledger.Forget(ctx, medicationID); err != nil {
			h.logger.Error("failed to drop adherence record", zap.Int("medication_id", medicationID), zap.Error(err))
		}
		if err := h.repos.Pending.DeleteByMedication(ctx, medicationID); err != nil {
			h.logger.Error("failed to drop pending responses", zap.Int("medication_id", medicationID), zap.Error(err))
		}
	}

	h.editMessageText(chatID, messageID, fmt.Sprintf("🗑 Deleted %s.", med.Label()))
}

func (h *Handlers) handleTimes(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		h.sendMessage(msg.Chat.ID, "Usage: /times <id> <HH:MM,HH:MM>\nExample: /times 3 08:00,20:00")
		return
	}

	times, err := models.ParseTimes(args[1])
	if err != nil {
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("Invalid time list: %v", err))
		return
	}

	h.updateSchedule(ctx, msg, user, args[0], func(med *models.Medication) {
		med.Reminders.Times = times
	})
}

func (h *Handlers) handleDays(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) != 2 {
		h.sendMessage(msg.Chat.ID, "Usage: /days <id> <MO,WE,FR> or /days <id> all")
		return
	}

	var days []time.Weekday
	if strings.EqualFold(args[1], "all") {
		days = models.AllWeekdays()
	} else {
		var err error
		days, err = models.ParseWeekdays(args[1])
		if err != nil {
			h.sendPlain(msg.Chat.ID, fmt.Sprintf("Invalid day list: %v", err))
			return
		}
	}

	h.updateSchedule(ctx, msg, user, args[0], func(med *models.Medication) {
		med.Reminders.Weekdays = days
	})
}

func (h *Handlers) handleRemindToggle(ctx context.Context, msg *tgbotapi.Message, user *models.User, enabled bool) {
	h.updateSchedule(ctx, msg, user, strings.TrimSpace(msg.CommandArguments()), func(med *models.Medication) {
		med.Reminders.Enabled = enabled
	})
}

// updateSchedule applies a reminder-config change and re-registers the
// medication's notifications so the platform matches the new schedule.
func (h *Handlers) updateSchedule(ctx context.Context, msg *tgbotapi.Message, user *models.User, idArg string, change func(*models.Medication)) {
	id, err := strconv.Atoi(idArg)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "The first argument must be a medication id, see /meds.")
		return
	}

	med, err := h.repos.Medication.GetForUser(ctx, id, user.UserID)
	if err != nil {
		h.logger.Error("failed to load medication", zap.Int("medication_id", id), zap.Error(err))
		return
	}
	if med == nil {
		h.sendMessage(msg.Chat.ID, fmt.Sprintf("Medication #%d not found.", id))
		return
	}

	change(med)

	if err := med.Validate(); err != nil {
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("Cannot update schedule: %v", err))
		return
	}

	if err := h.repos.Medication.Update(ctx, med); err != nil {
		h.logger.Error("failed to update medication", zap.Int("medication_id", id), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to save the schedule, please try again later.")
		return
	}

	if err := h.sync.OnEdit(ctx, med, user); err != nil {
		h.logger.Error("failed to re-register reminders", zap.Int("medication_id", id), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Schedule saved, but updating the reminders failed. Toggle /remindon to retry.")
		return
	}
	h.waker.Notify()

	h.sendPlain(msg.Chat.ID, fmt.Sprintf("⏰ %s: %s", med.Label(), recurrence.Summary(med.Reminders)))
}
