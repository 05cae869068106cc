package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/ai"
	"github.com/rxline/rxline/internal/models"
	"github.com/rxline/rxline/internal/recurrence"
)

const minConfidence = 0.5

func (h *Handlers) handleAIMessage(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	if h.ai == nil {
		h.sendMessage(msg.Chat.ID, "I only understand commands right now, see /help.")
		return
	}

	intent, err := h.ai.ParseIntent(ctx, msg.Text)
	if err != nil {
		h.logger.Error("failed to parse intent", zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Sorry, I could not process that. Try a command from /help.")
		return
	}

	if intent.Action == "unknown" || intent.Confidence < minConfidence {
		reply := intent.AIMessage
		if reply == "" {
			reply = "I did not catch that. Try /help for what I can do."
		}
		h.sendPlain(msg.Chat.ID, reply)
		return
	}

	h.executeIntent(ctx, msg, user, intent)
}

func (h *Handlers) executeIntent(ctx context.Context, msg *tgbotapi.Message, user *models.User, intent *ai.Intent) {
	switch intent.Action {
	case "create_medication":
		h.aiCreateMedication(ctx, msg, user, intent)
	case "list_medications":
		h.sendPlain(msg.Chat.ID, h.medicationListText(ctx, user.UserID))
	case "delete_medication":
		h.aiDeleteMedication(ctx, msg, user, intent)
	case "record_taken":
		h.aiRecordDose(ctx, msg, user, intent, true)
	case "record_missed":
		h.aiRecordDose(ctx, msg, user, intent, false)
	case "adherence_report":
		h.sendPlain(msg.Chat.ID, h.adherenceReportText(ctx, user.UserID))
	case "set_contact":
		h.aiSetContact(ctx, msg, user, intent)
	default:
		h.sendMessage(msg.Chat.ID, "I did not catch that. Try /help for what I can do.")
	}
}

func (h *Handlers) aiCreateMedication(ctx context.Context, msg *tgbotapi.Message, user *models.User, intent *ai.Intent) {
	name := strings.TrimSpace(intent.Parameters["name"])
	if name == "" {
		h.sendMessage(msg.Chat.ID, "Which medication should I add?")
		return
	}

	med := &models.Medication{
		UserID:    user.UserID,
		Name:      name,
		StartDate: time.Now(),
		Reminders: models.ReminderConfig{
			Weekdays: models.AllWeekdays(),
		},
	}

	if amountStr := intent.Parameters["dosage_amount"]; amountStr != "" {
		if amount, err := strconv.ParseFloat(amountStr, 64); err == nil {
			med.Dosage = models.Dosage{Amount: amount, Unit: intent.Parameters["dosage_unit"]}
		}
	}

	if timesStr := intent.Parameters["times"]; timesStr != "" {
		times, err := models.ParseTimes(timesStr)
		if err == nil {
			med.Reminders.Times = times
			med.Reminders.Enabled = true
		}
	}
	if daysStr := intent.Parameters["days"]; daysStr != "" {
		if days, err := models.ParseWeekdays(daysStr); err == nil {
			med.Reminders.Weekdays = days
		}
	}

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
	h.waker.Notify()

	if med.Reminders.Enabled {
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("💊 Added %s (#%d), reminders %s.",
			med.Label(), med.MedicationID, recurrence.Summary(med.Reminders)))
		return
	}
	h.sendPlain(msg.Chat.ID, fmt.Sprintf("💊 Added %s (#%d).\nSet dose times with /times %d 08:00,20:00 then /remindon %d.",
		med.Label(), med.MedicationID, med.MedicationID, med.MedicationID))
}

func (h *Handlers) aiDeleteMedication(ctx context.Context, msg *tgbotapi.Message, user *models.User, intent *ai.Intent) {
	med := h.resolveMedication(ctx, user.UserID, intent)
	if med == nil {
		h.sendMessage(msg.Chat.ID, "I could not find that medication, check /meds for the list.")
		return
	}
	// Deletion always goes through the inline confirmation.
	h.sendDeleteConfirmation(msg.Chat.ID, med)
}

func (h *Handlers) aiRecordDose(ctx context.Context, msg *tgbotapi.Message, user *models.User, intent *ai.Intent, taken bool) {
	med := h.resolveMedication(ctx, user.UserID, intent)
	if med == nil {
		h.sendMessage(msg.Chat.ID, "I could not find that medication, check /meds for the list.")
		return
	}

	if taken {
		if err := h.ledger.RecordTaken(ctx, med.MedicationID); err != nil {
			h.logger.Error("failed to record taken dose", zap.Int("medication_id", med.MedicationID), zap.Error(err))
			h.sendMessage(msg.Chat.ID, "Failed to record the dose, please try again later.")
			return
		}
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("✅ Recorded a taken dose of %s.", med.Name))
		return
	}

	if err := h.ledger.RecordMissed(ctx, med.MedicationID); err != nil {
		h.logger.Error("failed to record missed dose", zap.Int("medication_id", med.MedicationID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to record the dose, please try again later.")
		return
	}
	h.sendPlain(msg.Chat.ID, fmt.Sprintf("❌ Recorded a missed dose of %s.", med.Name))
	h.maybeEscalate(ctx, user.UserID, med.MedicationID)
}

func (h *Handlers) aiSetContact(ctx context.Context, msg *tgbotapi.Message, user *models.User, intent *ai.Intent) {
	name := strings.TrimSpace(intent.Parameters["contact_name"])
	if name == "" {
		h.sendMessage(msg.Chat.ID, "Who should I set as your emergency contact?")
		return
	}
	email := strings.TrimSpace(intent.Parameters["contact_email"])

	if err := h.repos.User.SetContact(ctx, user.UserID, name, email); err != nil {
		h.logger.Error("failed to set contact", zap.Int64("user_id", user.UserID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to save the contact, please try again later.")
		return
	}
	h.sendPlain(msg.Chat.ID, fmt.Sprintf("🆘 Emergency contact set to %s.", name))
}

// resolveMedication finds the medication an intent refers to, by id when
// the parser extracted one, otherwise by case-insensitive name match.
func (h *Handlers) resolveMedication(ctx context.Context, userID int64, intent *ai.Intent) *models.Medication {
	if idStr := intent.Parameters["id"]; idStr != "" {
		if id, err := strconv.Atoi(idStr); err == nil {
			med, err := h.repos.Medication.GetForUser(ctx, id, userID)
			if err != nil {
				h.logger.Error("failed to load medication", zap.Int("medication_id", id), zap.Error(err))
				return nil
			}
			if med != nil {
				return med
			}
		}
	}

	name := strings.TrimSpace(intent.Parameters["name"])
	if name == "" {
		return nil
	}

	meds, err := h.repos.Medication.GetByUserID(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list medications", zap.Int64("user_id", userID), zap.Error(err))
		return nil
	}
	for _, med := range meds {
		if strings.EqualFold(med.Name, name) {
			return med
		}
	}
	// Fall back to a substring match for "my aspirin" style references.
	lower := strings.ToLower(name)
	for _, med := range meds {
		if strings.Contains(strings.ToLower(med.Name), lower) || strings.Contains(lower, strings.ToLower(med.Name)) {
			return med
		}
	}
	return nil
}
