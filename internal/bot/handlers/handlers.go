package handlers

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"go.uber.org/zap"

	"github.com/rxline/rxline/internal/adherence"
	"github.com/rxline/rxline/internal/ai"
	"github.com/rxline/rxline/internal/config"
	"github.com/rxline/rxline/internal/models"
	"github.com/rxline/rxline/internal/notify"
	"github.com/rxline/rxline/internal/repository"
	"github.com/rxline/rxline/internal/schedule"
)

type Repositories struct {
	User       *repository.UserRepository
	Medication *repository.MedicationRepository
	Pending    *repository.PendingResponseRepository
}

// Waker pokes the delivery loop so schedule changes take effect without
// waiting for the next tick.
type Waker interface {
	Notify()
}

type Handlers struct {
	api       *tgbotapi.BotAPI
	repos     *Repositories
	ai        *ai.Client
	sync      *schedule.Synchronizer
	ledger    *adherence.Ledger
	contacts  notify.ContactNotifier
	waker     Waker
	threshold int
	retention string
	logger    *zap.Logger
}

func New(
	api *tgbotapi.BotAPI,
	repos *Repositories,
	aiClient *ai.Client,
	sync *schedule.Synchronizer,
	ledger *adherence.Ledger,
	contacts notify.ContactNotifier,
	waker Waker,
	cfg *config.Config,
	logger *zap.Logger,
) *Handlers {
	return &Handlers{
		api:       api,
		repos:     repos,
		ai:        aiClient,
		sync:      sync,
		ledger:    ledger,
		contacts:  contacts,
		waker:     waker,
		threshold: cfg.EscalationThreshold,
		retention: cfg.AdherenceRetention,
		logger:    logger,
	}
}

func (h *Handlers) HandleCommand(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.repos.User.GetOrCreate(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		h.logger.Error("failed to get/create user", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return
	}

	switch msg.Command() {
	case "start":
		h.handleStart(ctx, msg)
	case "help":
		h.handleHelp(ctx, msg)
	case "addmed":
		h.handleAddMedication(ctx, msg, user)
	case "meds":
		h.handleMedicationList(ctx, msg)
	case "delmed":
		h.handleDeleteMedication(ctx, msg)
	case "times":
		h.handleTimes(ctx, msg, user)
	case "days":
		h.handleDays(ctx, msg, user)
	case "remindon":
		h.handleRemindToggle(ctx, msg, user, true)
	case "remindoff":
		h.handleRemindToggle(ctx, msg, user, false)
	case "adherence":
		h.handleAdherenceReport(ctx, msg)
	case "pending":
		h.handlePending(ctx, msg)
	case "contact":
		h.handleContact(ctx, msg, user)
	case "linkcontact":
		h.handleLinkContact(ctx, msg)
	case "timezone":
		h.handleTimezone(ctx, msg, user)
	default:
		h.sendMessage(msg.Chat.ID, "Unknown command, see /help")
	}
}

func (h *Handlers) HandleMessage(ctx context.Context, msg *tgbotapi.Message) {
	user, err := h.repos.User.GetOrCreate(ctx, msg.From.ID, msg.From.UserName)
	if err != nil {
		h.logger.Error("failed to get/create user", zap.Int64("user_id", msg.From.ID), zap.Error(err))
		return
	}

	h.handleAIMessage(ctx, msg, user)
}

func (h *Handlers) HandleCallbackQuery(ctx context.Context, callback *tgbotapi.CallbackQuery) {
	answer := tgbotapi.NewCallback(callback.ID, "")
	if _, err := h.api.Request(answer); err != nil {
		h.logger.Warn("failed to answer callback", zap.Error(err))
	}

	parts := strings.SplitN(callback.Data, ":", 2)
	if len(parts) != 2 {
		return
	}
	action := parts[0]
	id, err := strconv.Atoi(parts[1])
	if err != nil {
		return
	}

	switch action {
	case "dose_taken":
		h.handleDoseResponse(ctx, callback, id, true)
	case "dose_missed":
		h.handleDoseResponse(ctx, callback, id, false)
	case "delmed_yes":
		h.confirmDeleteMedication(ctx, callback, id)
	case "delmed_no":
		h.editMessageText(callback.Message.Chat.ID, callback.Message.MessageID, "Delete cancelled.")
	}
}

// handleDoseResponse resolves a reminder button press. The pending row is
// claimed first so a tap and the missed-dose sweep never both count the
// same dose.
func (h *Handlers) handleDoseResponse(ctx context.Context, callback *tgbotapi.CallbackQuery, pendingID int, taken bool) {
	chatID := callback.Message.Chat.ID
	messageID := callback.Message.MessageID

	pending, err := h.repos.Pending.GetByID(ctx, pendingID)
	if err != nil {
		h.logger.Error("failed to load pending response", zap.Int("pending_id", pendingID), zap.Error(err))
		return
	}
	if pending == nil {
		h.editMessageText(chatID, messageID, "This reminder was already resolved.")
		return
	}

	claimed, err := h.repos.Pending.Claim(ctx, pendingID)
	if err != nil {
		h.logger.Error("failed to claim pending response", zap.Int("pending_id", pendingID), zap.Error(err))
		return
	}
	if !claimed {
		h.editMessageText(chatID, messageID, "This reminder was already resolved.")
		return
	}

	var recordErr error
	if taken {
		recordErr = h.ledger.RecordTaken(ctx, pending.MedicationID)
	} else {
		recordErr = h.ledger.RecordMissed(ctx, pending.MedicationID)
	}
	if recordErr != nil {
		h.logger.Error("failed to record dose response",
			zap.Int("medication_id", pending.MedicationID), zap.Bool("taken", taken), zap.Error(recordErr))
		h.restoreDoseButtons(ctx, chatID, messageID, pending)
		return
	}

	if taken {
		h.editMessageText(chatID, messageID, "✅ Dose recorded as taken.")
		return
	}
	h.editMessageText(chatID, messageID, "❌ Dose recorded as missed.")
	h.maybeEscalate(ctx, pending.UserID, pending.MedicationID)
}

// restoreDoseButtons puts the claimed marker back after a failed ledger
// write, so the dose stays recordable, and tells the user the response was
// not saved. The fresh marker gets fresh buttons: the old pending id is
// gone, so a retry has to resolve against the new one.
func (h *Handlers) restoreDoseButtons(ctx context.Context, chatID int64, messageID int, pending *models.PendingResponse) {
	restored := &models.PendingResponse{
		MedicationID: pending.MedicationID,
		UserID:       pending.UserID,
		ScheduledAt:  pending.ScheduledAt,
	}
	if err := h.repos.Pending.Create(ctx, restored); err != nil {
		h.logger.Error("failed to restore pending response",
			zap.Int("medication_id", pending.MedicationID), zap.Error(err))
		h.editMessageText(chatID, messageID, "❗ Your response could not be saved and this dose may not be recorded.")
		return
	}

	keyboard := tgbotapi.NewInlineKeyboardMarkup(
		tgbotapi.NewInlineKeyboardRow(
			tgbotapi.NewInlineKeyboardButtonData("✅ Taken", fmt.Sprintf("dose_taken:%d", restored.PendingID)),
			tgbotapi.NewInlineKeyboardButtonData("❌ Missed", fmt.Sprintf("dose_missed:%d", restored.PendingID)),
		),
	)
	edit := tgbotapi.NewEditMessageTextAndMarkup(chatID, messageID,
		"❗ Your response could not be saved, please tap again.", keyboard)
	if _, err := h.api.Send(edit); err != nil {
		h.logger.Warn("failed to edit message", zap.Error(err))
	}
}

// maybeEscalate alerts the emergency contact when the miss streak crosses
// the configured threshold.
func (h *Handlers) maybeEscalate(ctx context.Context, userID int64, medicationID int) {
	rec, err := h.ledger.Get(ctx, medicationID)
	if err != nil {
		h.logger.Error("failed to load adherence record", zap.Int("medication_id", medicationID), zap.Error(err))
		return
	}
	if !adherence.ShouldEscalate(rec, h.threshold) {
		return
	}

	user, err := h.repos.User.GetByID(ctx, userID)
	if err != nil || user == nil || !user.HasContact() {
		return
	}

	name := "a medication"
	if med, err := h.repos.Medication.GetByID(ctx, medicationID); err == nil && med != nil {
		name = med.Name
	}

	if err := h.contacts.Notify(ctx, user.Contact(), name, rec.ConsecutiveMisses); err != nil {
		if errors.Is(err, notify.ErrContactUnreachable) {
			h.sendMessage(userID, fmt.Sprintf("⚠️ %d doses of %s missed in a row. Your emergency contact could not be reached, ask them to run /linkcontact with this bot.",
				rec.ConsecutiveMisses, name))
			return
		}
		h.logger.Error("failed to notify contact", zap.Int64("user_id", userID), zap.Error(err))
		return
	}
	h.sendMessage(userID, fmt.Sprintf("⚠️ %d doses of %s missed in a row, your emergency contact has been notified.",
		rec.ConsecutiveMisses, name))
}

func (h *Handlers) editMessageText(chatID int64, messageID int, text string) {
	edit := tgbotapi.NewEditMessageText(chatID, messageID, text)
	if _, err := h.api.Send(edit); err != nil {
		h.logger.Warn("failed to edit message", zap.Error(err))
	}
}

func (h *Handlers) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = "Markdown"
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}

// sendPlain skips Markdown parse mode for texts with user-supplied content
// that may contain markup characters.
func (h *Handlers) sendPlain(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	if _, err := h.api.Send(msg); err != nil {
		h.logger.Warn("failed to send message", zap.Error(err))
	}
}

func (h *Handlers) handleStart(ctx context.Context, msg *tgbotapi.Message) {
	text := fmt.Sprintf(`👋 Hi %s!

I keep track of your medications and remind you when a dose is due.

• Add a medication with /addmed, set its dose times with /times
• When a reminder fires, tap ✅ Taken or ❌ Missed
• Check how you are doing with /adherence

You can also just tell me things like:
• "Add aspirin 100 mg every morning at 8"
• "I took my aspirin"
• "How am I doing with my meds?"

See /help for all commands.`, msg.From.FirstName)
	h.sendPlain(msg.Chat.ID, text)
}

func (h *Handlers) handleHelp(ctx context.Context, msg *tgbotapi.Message) {
	text := `📖 *Commands*

*Medications*
/addmed <name> [amount unit] - add a medication
/meds - list your medications
/delmed <id> - delete a medication

*Reminders*
/times <id> <HH:MM,HH:MM> - set dose times
/days <id> <MO,WE,FR | all> - set reminder days
/remindon <id> - enable reminders
/remindoff <id> - disable reminders

*Adherence*
/adherence - taken/missed report
/pending - reminders still waiting for a response

*Settings*
/contact <name> [email] - set your emergency contact
/linkcontact <user id> - sent by the contact, links their chat for alerts
/timezone <IANA zone> - set your timezone

💡 Plain language works too, just tell me what you need.`
	h.sendMessage(msg.Chat.ID, text)
}
