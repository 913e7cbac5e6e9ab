package bot

import (
	"context"
	"errors"
	"fmt"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/glebk/skillswap/internal/domain"
)

// Notify messages both participants about a status change, if they linked a
// chat and it is within notification hours.
func (b *Bot) Notify(ctx context.Context, event domain.Event) error {
	if event.Type != domain.EventSessionStatusChanged {
		return nil
	}
	if !b.notifyHours.IsNotifyHour(b.now()) {
		return nil
	}

	recipients := []struct {
		userID string
		role   domain.Role
	}{
		{event.TeacherID, domain.RoleTeacher},
		{event.StudentID, domain.RoleStudent},
	}

	var errs []error
	for _, recipient := range recipients {
		account, err := b.accounts.Balance(ctx, recipient.userID)
		if err != nil {
			errs = append(errs, fmt.Errorf("resolve %s: %w", recipient.userID, err))
			continue
		}
		if account.TelegramChatID == 0 {
			continue
		}

		msg := tgbotapi.NewMessage(account.TelegramChatID, eventText(event, recipient.role))
		msg.ParseMode = tgbotapi.ModeMarkdown
		if keyboard, ok := eventKeyboard(event, recipient.role); ok {
			msg.ReplyMarkup = keyboard
		}
		if _, err := b.api.Send(msg); err != nil {
			errs = append(errs, fmt.Errorf("send to %s: %w", recipient.userID, err))
		}
	}
	return errors.Join(errs...)
}

// Alert sends an integrity alert to the operator chat
func (b *Bot) Alert(_ context.Context, message string) error {
	if b.adminChatID == 0 {
		return errors.New("no admin chat configured")
	}
	msg := tgbotapi.NewMessage(b.adminChatID, "⚠️ *Integrity alert*\n"+escape(message))
	msg.ParseMode = tgbotapi.ModeMarkdown
	_, err := b.api.Send(msg)
	return err
}

func eventText(event domain.Event, role domain.Role) string {
	ref := fmt.Sprintf("`%s`", event.SessionID)
	switch event.To {
	case domain.SessionStatusPending:
		if role == domain.RoleTeacher {
			return fmt.Sprintf("*New session request* %s\n%s asks for a session worth %s credits.",
				ref, escape(event.StudentID), event.Amount)
		}
		return fmt.Sprintf("*Request sent* %s\nWaiting for %s to approve.", ref, escape(event.TeacherID))
	case domain.SessionStatusApproved:
		return fmt.Sprintf("*Session approved* %s\n%s credits are held in escrow. Check in within 15 minutes of the start.",
			ref, event.Amount)
	case domain.SessionStatusInProgress:
		return fmt.Sprintf("*Session started* %s\nBoth of you checked in. Confirm when it is over.", ref)
	case domain.SessionStatusCompleted:
		if role == domain.RoleTeacher {
			return fmt.Sprintf("*Session completed* %s\n%s credits were paid to you.", ref, event.Amount)
		}
		return fmt.Sprintf("*Session completed* %s\n%s credits were paid to %s.", ref, event.Amount, escape(event.TeacherID))
	case domain.SessionStatusRejected:
		return withReason(fmt.Sprintf("*Session rejected* %s", ref), event.Reason)
	case domain.SessionStatusCancelled:
		return withReason(fmt.Sprintf("*Session cancelled* %s\nHeld credits were returned.", ref), event.Reason)
	case domain.SessionStatusDisputed:
		return withReason(fmt.Sprintf("*Dispute opened* %s\nEscrow is frozen until an administrator resolves it.", ref), event.Reason)
	}
	return fmt.Sprintf("Session %s is now %s", ref, escape(string(event.To)))
}

func withReason(text, reason string) string {
	if reason == "" {
		return text
	}
	return text + "\nReason: " + escape(reason)
}

func eventKeyboard(event domain.Event, role domain.Role) (tgbotapi.InlineKeyboardMarkup, bool) {
	var button tgbotapi.InlineKeyboardButton
	switch {
	case event.To == domain.SessionStatusPending && role == domain.RoleTeacher:
		button = tgbotapi.NewInlineKeyboardButtonData("✅ Approve", actionApprove+":"+event.SessionID)
	case event.To == domain.SessionStatusApproved:
		button = tgbotapi.NewInlineKeyboardButtonData("📍 Check in", actionCheckIn+":"+event.SessionID)
	case event.To == domain.SessionStatusInProgress:
		button = tgbotapi.NewInlineKeyboardButtonData("🏁 Confirm completion", actionConfirm+":"+event.SessionID)
	default:
		return tgbotapi.InlineKeyboardMarkup{}, false
	}
	return tgbotapi.NewInlineKeyboardMarkup(tgbotapi.NewInlineKeyboardRow(button)), true
}
