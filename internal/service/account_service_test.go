package service

import (
	"context"
	"strings"
	"testing"

	"github.com/glebk/skillswap/internal/domain"
)

func TestOpenAccountGrantsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	account, created, err := h.accounts.OpenAccount(ctx, "newcomer")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if !created || account.Available != signupGrant {
		t.Fatalf("unexpected new account created=%v %+v", created, account)
	}

	again, created, err := h.accounts.OpenAccount(ctx, "newcomer")
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	if created || again.Available != signupGrant {
		t.Fatalf("reopening granted again: created=%v %+v", created, again)
	}

	history, err := h.accounts.History(ctx, "newcomer", 0)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	if len(history) != 1 || history[0].Type != domain.TransactionGrant {
		t.Fatalf("unexpected history %+v", history)
	}
}

func TestOpenAccountRequiresUser(t *testing.T) {
	h := newHarness(t)
	_, _, err := h.accounts.OpenAccount(context.Background(), "  ")
	assertCode(t, err, domain.ErrInvalidInput)
}

func TestHistoryUnknownUser(t *testing.T) {
	h := newHarness(t)
	_, err := h.accounts.History(context.Background(), "ghost", 10)
	assertCode(t, err, domain.ErrNotFound)
}

func issueLinkCode(t *testing.T, h *harness, chatID int64) string {
	t.Helper()
	link, err := h.accounts.IssueLinkCode(context.Background(), chatID)
	if err != nil {
		t.Fatalf("issue link code: %v", err)
	}
	return link.Code
}

func TestLinkTelegram(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	_, err := h.accounts.IssueLinkCode(ctx, 0)
	assertCode(t, err, domain.ErrInvalidInput)
	assertCode(t, h.accounts.LinkTelegram(ctx, "student", " "), domain.ErrInvalidInput)
	assertCode(t, h.accounts.LinkTelegram(ctx, "student", "NOSUCH23"), domain.ErrInvalidInput)

	code := issueLinkCode(t, h, 1001)
	if len(code) != 8 {
		t.Fatalf("unexpected link code %q", code)
	}
	if err := h.accounts.LinkTelegram(ctx, "student", strings.ToLower(code)); err != nil {
		t.Fatalf("link: %v", err)
	}
	account, err := h.accounts.ByTelegramChat(ctx, 1001)
	if err != nil {
		t.Fatalf("by chat: %v", err)
	}
	if account.UserID != "student" {
		t.Fatalf("chat resolved to %s", account.UserID)
	}
	_, err = h.accounts.ByTelegramChat(ctx, 2002)
	assertCode(t, err, domain.ErrNotFound)

	assertCode(t, h.accounts.LinkTelegram(ctx, "teacher", code), domain.ErrInvalidInput)
}

func TestLinkTelegramCodeExpires(t *testing.T) {
	h := newHarness(t)
	code := issueLinkCode(t, h, 1001)

	h.clock.Set(h.clock.Now().Add(linkCodeTTL))
	assertCode(t, h.accounts.LinkTelegram(context.Background(), "student", code), domain.ErrInvalidInput)
}

func TestLinkTelegramRefusesChatOfAnotherAccount(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	if err := h.accounts.LinkTelegram(ctx, "student", issueLinkCode(t, h, 1001)); err != nil {
		t.Fatalf("link student: %v", err)
	}

	err := h.accounts.LinkTelegram(ctx, "outsider", issueLinkCode(t, h, 1001))
	assertCode(t, err, domain.ErrForbidden)

	account, err := h.accounts.ByTelegramChat(ctx, 1001)
	if err != nil {
		t.Fatalf("by chat: %v", err)
	}
	if account.UserID != "student" {
		t.Fatalf("chat moved to %s", account.UserID)
	}
	outsider, err := h.accounts.Balance(ctx, "outsider")
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if outsider.TelegramChatID != 0 {
		t.Fatalf("outsider linked to chat %d", outsider.TelegramChatID)
	}
}
