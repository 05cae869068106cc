package handlers

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/models"
)

func (h *Handlers) handleAdherenceReport(ctx context.Context, msg *tgbotapi.Message) {
	h.sendPlain(msg.Chat.ID, h.adherenceReportText(ctx, msg.From.ID))
}

func (h *Handlers) adherenceReportText(ctx context.Context, userID int64) string {
	meds, err := h.repos.Medication.GetByUserID(ctx, userID)
	if err != nil {
		h.logger.Error("failed to list medications", zap.Int64("user_id", userID), zap.Error(err))
		return "Failed to load your medications, please try again later."
	}
	if len(meds) == 0 {
		return "💊 No medications yet. Add one with /addmed."
	}

	ids := make([]int, 0, len(meds))
	for _, med := range meds {
		ids = append(ids, med.MedicationID)
	}

	records, err := h.ledger.GetAdherence(ctx, ids)
	if err != nil {
		h.logger.Error("failed to load adherence records", zap.Int64("user_id", userID), zap.Error(err))
		return "Failed to load your adherence history, please try again later."
	}

	var sb strings.Builder
	sb.WriteString("📊 Adherence\n\n")
	for _, med := range meds {
		rec := records[med.MedicationID]
		sb.WriteString(fmt.Sprintf("#%d %s\n", med.MedicationID, med.Label()))
		if rec == nil || rec.Total() == 0 {
			sb.WriteString("   no doses recorded yet\n\n")
			continue
		}
		sb.WriteString(fmt.Sprintf("   ✅ %d taken, ❌ %d missed (%.0f%%)\n", rec.Taken, rec.Missed, rec.TakenRate()*100))
		if rec.ConsecutiveMisses > 0 {
			sb.WriteString(fmt.Sprintf("   ⚠️ %d missed in a row\n", rec.ConsecutiveMisses))
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

func (h *Handlers) handlePending(ctx context.Context, msg *tgbotapi.Message) {
	count, err := h.repos.Pending.Count(ctx, msg.From.ID)
	if err != nil {
		h.logger.Error("failed to count pending responses", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to check pending reminders, please try again later.")
		return
	}

	if count == 0 {
		h.sendMessage(msg.Chat.ID, "👍 No reminders waiting for a response.")
		return
	}
	h.sendPlain(msg.Chat.ID, fmt.Sprintf("⏳ %d reminder(s) still waiting for a ✅/❌ response. Unanswered ones count as missed after the grace window.", count))
}

func (h *Handlers) handleContact(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	args := strings.Fields(msg.CommandArguments())
	if len(args) == 0 {
		if !user.HasContact() {
			h.sendMessage(msg.Chat.ID, "No emergency contact set. Usage: /contact <name> [email]")
			return
		}
		contact := user.Contact()
		text := fmt.Sprintf("🆘 Emergency contact: %s", contact.Name)
		if contact.Email != "" {
			text += fmt.Sprintf(" (%s)", contact.Email)
		}
		h.sendPlain(msg.Chat.ID, text)
		return
	}

	name := args[0]
	email := ""
	if len(args) > 1 {
		last := args[len(args)-1]
		if strings.Contains(last, "@") {
			email = last
			args = args[:len(args)-1]
		}
		name = strings.Join(args, " ")
	}

	if err := h.repos.User.SetContact(ctx, user.UserID, name, email); err != nil {
		h.logger.Error("failed to set contact", zap.Int64("user_id", user.UserID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to save the contact, please try again later.")
		return
	}

	h.sendPlain(msg.Chat.ID, fmt.Sprintf("🆘 Emergency contact set to %s. They will be alerted after repeated missed doses.\nAsk them to send /linkcontact %d to this bot so alerts reach them here.", name, user.UserID))
}

// handleLinkContact is sent by the emergency contact themselves, from their
// own chat, to receive escalation alerts for the given user.
func (h *Handlers) handleLinkContact(ctx context.Context, msg *tgbotapi.Message) {
	targetID, err := strconv.ParseInt(strings.TrimSpace(msg.CommandArguments()), 10, 64)
	if err != nil {
		h.sendMessage(msg.Chat.ID, "Usage: /linkcontact <user id> (the id the person you look after gave you)")
		return
	}

	target, err := h.repos.User.GetByID(ctx, targetID)
	if err != nil {
		h.logger.Error("failed to load user for contact link", zap.Int64("user_id", targetID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "I do not know that user id.")
		return
	}
	if target.ContactName == "" {
		h.sendMessage(msg.Chat.ID, "That user has not set an emergency contact yet.")
		return
	}

	if err := h.repos.User.LinkContactChat(ctx, targetID, msg.Chat.ID); err != nil {
		h.logger.Error("failed to link contact chat", zap.Int64("user_id", targetID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to link, please try again later.")
		return
	}

	h.sendPlain(msg.Chat.ID, fmt.Sprintf("🔗 Linked. You will be alerted here if they repeatedly miss doses (contact on file: %s).", target.ContactName))
	h.sendMessage(targetID, "🔗 Your emergency contact linked their Telegram and will now receive alerts.")
}

func (h *Handlers) handleTimezone(ctx context.Context, msg *tgbotapi.Message, user *models.User) {
	zone := strings.TrimSpace(msg.CommandArguments())
	if zone == "" {
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("Current timezone: %s\nUsage: /timezone <IANA zone>, e.g. /timezone America/New_York", user.Timezone))
		return
	}

	if _, err := time.LoadLocation(zone); err != nil {
		h.sendPlain(msg.Chat.ID, fmt.Sprintf("Unknown timezone %q, use an IANA name like Europe/Berlin.", zone))
		return
	}

	if err := h.repos.User.SetTimezone(ctx, user.UserID, zone); err != nil {
		h.logger.Error("failed to set timezone", zap.Int64("user_id", user.UserID), zap.Error(err))
		h.sendMessage(msg.Chat.ID, "Failed to save the timezone, please try again later.")
		return
	}
	user.Timezone = zone

	// Registered notifications carry the old zone, re-register them all.
	meds, err := h.repos.Medication.GetByUserID(ctx, user.UserID)
	if err != nil {
		h.logger.Error("failed to list medications", zap.Int64("user_id", user.UserID), zap.Error(err))
	} else {
		for _, med := range meds {
			if err := h.sync.OnEdit(ctx, med, user); err != nil {
				h.logger.Error("failed to re-register reminders", zap.Int("medication_id", med.MedicationID), zap.Error(err))
			}
		}
		h.waker.Notify()
	}

	h.sendPlain(msg.Chat.ID, fmt.Sprintf("🌍 Timezone set to %s.", zone))
}
