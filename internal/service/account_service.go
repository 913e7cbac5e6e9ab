package service

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/glebk/skillswap/internal/domain"
)

const linkCodeTTL = 10 * time.Minute

// AccountService handles ledger accounts and their notification links
type AccountService struct {
	store       domain.Store
	log         logrus.FieldLogger
	now         func() time.Time
	newID       func() string
	signupGrant domain.Credits
}

// NewAccountService creates a new AccountService. signupGrant is credited
// once, when an account is first opened.
func NewAccountService(store domain.Store, signupGrant domain.Credits, log logrus.FieldLogger) *AccountService {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &AccountService{
		store:       store,
		log:         log,
		now:         func() time.Time { return time.Now().UTC() },
		newID:       uuid.NewString,
		signupGrant: signupGrant,
	}
}

// OpenAccount creates the user's account if needed and reports whether it
// was created by this call
func (s *AccountService) OpenAccount(ctx context.Context, userID string) (*domain.Account, bool, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, false, domain.NewError(domain.CodeInvalidInput, "user id is required")
	}

	var (
		account *domain.Account
		created bool
	)
	err := s.store.WithTx(ctx, func(repos domain.Repositories) error {
		now := s.now()
		var err error
		created, err = repos.Accounts().Create(ctx, &domain.Account{UserID: userID, CreatedAt: now})
		if err != nil {
			return err
		}
		if created && s.signupGrant > 0 {
			if err := repos.Accounts().Grant(ctx, userID, s.signupGrant); err != nil {
				return err
			}
			if err := repos.Transactions().Append(ctx, &domain.Transaction{
				ID:        s.newID(),
				Type:      domain.TransactionGrant,
				ToUserID:  userID,
				Amount:    s.signupGrant,
				CreatedAt: now,
			}); err != nil {
				return err
			}
		}
		account, err = repos.Accounts().GetByID(ctx, userID)
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("failed to open account: %w", err)
	}

	if created {
		s.log.WithFields(logrus.Fields{
			"user_id": userID,
			"grant":   s.signupGrant.String(),
		}).Info("account opened")
	}
	return account, created, nil
}

// Balance returns the user's available and held credits
func (s *AccountService) Balance(ctx context.Context, userID string) (*domain.Account, error) {
	return s.store.Accounts().GetByID(ctx, userID)
}

// History lists the user's credit transactions, newest first
func (s *AccountService) History(ctx context.Context, userID string, limit int) ([]*domain.Transaction, error) {
	if _, err := s.store.Accounts().GetByID(ctx, userID); err != nil {
		return nil, err
	}
	return s.store.Transactions().ListByUser(ctx, userID, limit)
}

// IssueLinkCode hands out a one-time code for chatID. Redeeming it with
// LinkTelegram links the chat to the redeeming user.
func (s *AccountService) IssueLinkCode(ctx context.Context, chatID int64) (*domain.LinkCode, error) {
	if chatID == 0 {
		return nil, domain.NewError(domain.CodeInvalidInput, "chat id is required")
	}
	code, err := newLinkCode()
	if err != nil {
		return nil, fmt.Errorf("failed to generate link code: %w", err)
	}

	now := s.now()
	link := &domain.LinkCode{Code: code, ChatID: chatID, CreatedAt: now, ExpiresAt: now.Add(linkCodeTTL)}
	err = s.store.WithTx(ctx, func(repos domain.Repositories) error {
		return repos.LinkCodes().Issue(ctx, link)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to issue link code: %w", err)
	}

	s.log.WithField("chat_id", chatID).Debug("telegram link code issued")
	return link, nil
}

// LinkTelegram redeems a code issued by the bot and links its chat to the
// user. A chat that belongs to another account is refused.
func (s *AccountService) LinkTelegram(ctx context.Context, userID, code string) error {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return domain.NewError(domain.CodeInvalidInput, "link code is required")
	}

	var chatID int64
	err := s.store.WithTx(ctx, func(repos domain.Repositories) error {
		link, err := repos.LinkCodes().Consume(ctx, code, s.now())
		if errors.Is(err, domain.ErrNotFound) {
			return domain.NewError(domain.CodeInvalidInput, "link code is invalid or expired")
		}
		if err != nil {
			return err
		}
		chatID = link.ChatID
		return repos.Accounts().SetTelegramChatID(ctx, userID, link.ChatID)
	})
	if err != nil {
		return err
	}

	s.log.WithFields(logrus.Fields{"user_id": userID, "chat_id": chatID}).Info("telegram chat linked")
	return nil
}

// ByTelegramChat resolves the account linked to a chat
func (s *AccountService) ByTelegramChat(ctx context.Context, chatID int64) (*domain.Account, error) {
	return s.store.Accounts().GetByTelegramChatID(ctx, chatID)
}

// newLinkCode returns eight characters from the base32 alphabet, easy to
// retype from a chat.
func newLinkCode() (string, error) {
	buf := make([]byte, 5)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base32.StdEncoding.EncodeToString(buf), nil
}
