package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/config"
	"github.com/glebk/skillswap/internal/domain"
	"github.com/glebk/skillswap/internal/service"
)

const handlerTimeout = 10 * time.Second

// botAPI is the part of *tgbotapi.BotAPI the bot uses
type botAPI interface {
	Send(c tgbotapi.Chattable) (tgbotapi.Message, error)
	Request(c tgbotapi.Chattable) (*tgbotapi.APIResponse, error)
	GetUpdatesChan(config tgbotapi.UpdateConfig) tgbotapi.UpdatesChannel
	StopReceivingUpdates()
}

// Bot represents the Telegram bot. It answers participant commands, pushes
// session events to linked chats and carries operator alerts.
type Bot struct {
	api         botAPI
	sessions    *service.SessionService
	accounts    *service.AccountService
	notifyHours config.NotifyHours
	adminChatID int64
	log         logrus.FieldLogger
	now         func() time.Time
}

// New creates a new Bot instance
func New(token string, sessions *service.SessionService, accounts *service.AccountService, cfg *config.Config, log logrus.FieldLogger) (*Bot, error) {
	api, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, fmt.Errorf("failed to create bot: %w", err)
	}

	log.WithField("username", api.Self.UserName).Info("telegram bot authorized")

	return newBot(api, sessions, accounts, cfg, log), nil
}

func newBot(api botAPI, sessions *service.SessionService, accounts *service.AccountService, cfg *config.Config, log logrus.FieldLogger) *Bot {
	return &Bot{
		api:         api,
		sessions:    sessions,
		accounts:    accounts,
		notifyHours: alwaysIfUnset(cfg.NotifyHours),
		adminChatID: cfg.TelegramAdminChatID,
		log:         log,
		now:         time.Now,
	}
}

// Start polls for updates until ctx is cancelled
func (b *Bot) Start(ctx context.Context) error {
	u := tgbotapi.NewUpdate(0)
	u.Timeout = 60

	updates := b.api.GetUpdatesChan(u)
	defer b.api.StopReceivingUpdates()

	for {
		select {
		case <-ctx.Done():
			return nil
		case update, ok := <-updates:
			if !ok {
				return nil
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update tgbotapi.Update) {
	ctx, cancel := context.WithTimeout(ctx, handlerTimeout)
	defer cancel()

	if update.Message != nil {
		b.handleMessage(ctx, update.Message)
	} else if update.CallbackQuery != nil {
		b.handleCallbackQuery(ctx, update.CallbackQuery)
	}
}

// handleMessage handles incoming messages
func (b *Bot) handleMessage(ctx context.Context, message *tgbotapi.Message) {
	if !message.IsCommand() {
		return
	}

	chatID := message.Chat.ID
	switch message.Command() {
	case "start":
		b.handleStart(ctx, chatID)
	case "help":
		b.sendMessage(chatID, helpText)
	case "balance":
		b.withAccount(ctx, chatID, func(account *domain.Account) {
			b.handleBalance(chatID, account)
		})
	case "sessions":
		b.withAccount(ctx, chatID, func(account *domain.Account) {
			b.handleSessions(ctx, chatID, account)
		})
	case "status":
		b.withSessionArg(ctx, message, func(account *domain.Account, sessionID string) {
			b.handleStatus(ctx, chatID, account, sessionID)
		})
	case "checkin":
		b.withSessionArg(ctx, message, func(account *domain.Account, sessionID string) {
			b.sendMessage(chatID, b.runAction(ctx, actionCheckIn, sessionID, account.UserID))
		})
	case "confirm":
		b.withSessionArg(ctx, message, func(account *domain.Account, sessionID string) {
			b.sendMessage(chatID, b.runAction(ctx, actionConfirm, sessionID, account.UserID))
		})
	case "approve":
		b.withSessionArg(ctx, message, func(account *domain.Account, sessionID string) {
			b.sendMessage(chatID, b.runAction(ctx, actionApprove, sessionID, account.UserID))
		})
	default:
		b.sendMessage(chatID, "Unknown command. Send /help for the list.")
	}
}

const helpText = `*Skill swap bot*

/balance - your available and held credits
/sessions - your sessions
/status <id> - session details and live progress
/approve <id> - approve a pending session
/checkin <id> - check in to a session
/confirm <id> - confirm the session took place`

func (b *Bot) handleStart(ctx context.Context, chatID int64) {
	account, err := b.accounts.ByTelegramChat(ctx, chatID)
	if err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			b.log.WithError(err).WithField("chat_id", chatID).Error("failed to resolve chat")
			b.sendMessage(chatID, describeError(err))
			return
		}
		b.sendLinkCode(ctx, chatID)
		return
	}
	b.sendMessage(chatID, fmt.Sprintf("Welcome back, %s!\n\n%s", escape(account.UserID), helpText))
}

func (b *Bot) sendLinkCode(ctx context.Context, chatID int64) {
	link, err := b.accounts.IssueLinkCode(ctx, chatID)
	if err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Error("failed to issue link code")
		b.sendMessage(chatID, describeError(err))
		return
	}
	b.sendMessage(chatID, fmt.Sprintf(
		"Welcome! This chat is not linked to an account yet.\n\nSend code `%s` to PUT /me/telegram within %s to link it.",
		link.Code, formatDuration(link.ExpiresAt.Sub(link.CreatedAt))))
}

func (b *Bot) handleBalance(chatID int64, account *domain.Account) {
	b.sendMessage(chatID, fmt.Sprintf("*Balance*\nAvailable: %s\nHeld in escrow: %s",
		account.Available, account.Held))
}

func (b *Bot) handleSessions(ctx context.Context, chatID int64, account *domain.Account) {
	sessions, err := b.sessions.ListForUser(ctx, account.UserID)
	if err != nil {
		b.log.WithError(err).WithField("user_id", account.UserID).Error("failed to list sessions")
		b.sendMessage(chatID, describeError(err))
		return
	}
	if len(sessions) == 0 {
		b.sendMessage(chatID, "You have no sessions yet.")
		return
	}

	const limit = 10
	var lines []string
	for i, session := range sessions {
		if i == limit {
			lines = append(lines, fmt.Sprintf("…and %d more", len(sessions)-limit))
			break
		}
		lines = append(lines, fmt.Sprintf("• `%s` %s, %s, %s credits",
			session.ID, escape(session.SkillReference), escape(string(session.Status)), session.CreditAmount))
	}
	b.sendMessage(chatID, "*Your sessions*\n"+strings.Join(lines, "\n"))
}

func (b *Bot) handleStatus(ctx context.Context, chatID int64, account *domain.Account, sessionID string) {
	progress, err := b.sessions.Progress(ctx, sessionID, account.UserID)
	if err != nil {
		b.sendMessage(chatID, describeError(err))
		return
	}
	b.sendMessage(chatID, describeProgress(progress))
}

func (b *Bot) withAccount(ctx context.Context, chatID int64, fn func(*domain.Account)) {
	account, err := b.accounts.ByTelegramChat(ctx, chatID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			b.sendMessage(chatID, "This chat is not linked to an account. Send /start for instructions.")
			return
		}
		b.log.WithError(err).WithField("chat_id", chatID).Error("failed to resolve chat")
		b.sendMessage(chatID, describeError(err))
		return
	}
	fn(account)
}

func (b *Bot) withSessionArg(ctx context.Context, message *tgbotapi.Message, fn func(*domain.Account, string)) {
	sessionID := strings.TrimSpace(message.CommandArguments())
	if sessionID == "" {
		b.sendMessage(message.Chat.ID, fmt.Sprintf("Usage: /%s <session id>", message.Command()))
		return
	}
	b.withAccount(ctx, message.Chat.ID, func(account *domain.Account) {
		fn(account, sessionID)
	})
}

// handleCallbackQuery handles button callbacks
func (b *Bot) handleCallbackQuery(ctx context.Context, query *tgbotapi.CallbackQuery) {
	action, sessionID, ok := strings.Cut(query.Data, ":")
	if !ok || sessionID == "" {
		b.answerCallback(query.ID, "Invalid button")
		return
	}
	if query.Message == nil {
		b.answerCallback(query.ID, "Message expired")
		return
	}

	chatID := query.Message.Chat.ID
	account, err := b.accounts.ByTelegramChat(ctx, chatID)
	if err != nil {
		b.answerCallback(query.ID, "This chat is not linked to an account")
		return
	}

	text := b.runAction(ctx, action, sessionID, account.UserID)
	b.answerCallback(query.ID, firstLine(text))
	b.sendMessage(chatID, text)
}

const (
	actionApprove = "approve"
	actionCheckIn = "checkin"
	actionConfirm = "confirm"
)

func (b *Bot) runAction(ctx context.Context, action, sessionID, actorID string) string {
	var (
		session *domain.Session
		err     error
	)
	switch action {
	case actionApprove:
		session, err = b.sessions.Approve(ctx, sessionID, actorID)
	case actionCheckIn:
		session, err = b.sessions.CheckIn(ctx, sessionID, actorID)
	case actionConfirm:
		session, err = b.sessions.ConfirmCompletion(ctx, sessionID, actorID)
	default:
		return "Unknown action"
	}
	if err != nil {
		b.log.WithError(err).WithFields(logrus.Fields{
			"action":     action,
			"session_id": sessionID,
			"actor_id":   actorID,
		}).Info("bot action rejected")
		return describeError(err)
	}
	return describeOutcome(action, session)
}

// sendMessage sends a Markdown message
func (b *Bot) sendMessage(chatID int64, text string) {
	msg := tgbotapi.NewMessage(chatID, text)
	msg.ParseMode = tgbotapi.ModeMarkdown
	if _, err := b.api.Send(msg); err != nil {
		b.log.WithError(err).WithField("chat_id", chatID).Warn("failed to send message")
	}
}

// answerCallback answers a callback query
func (b *Bot) answerCallback(callbackID string, text string) {
	callback := tgbotapi.NewCallback(callbackID, text)
	if _, err := b.api.Request(callback); err != nil {
		b.log.WithError(err).Warn("failed to answer callback")
	}
}

func escape(text string) string {
	return tgbotapi.EscapeText(tgbotapi.ModeMarkdown, text)
}

func firstLine(text string) string {
	line, _, _ := strings.Cut(text, "\n")
	return strings.Trim(line, "*")
}

func alwaysIfUnset(hours config.NotifyHours) config.NotifyHours {
	if hours.StartHour == 0 && hours.EndHour == 0 {
		hours.EndHour = 24
	}
	return hours
}
