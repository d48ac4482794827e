package wallet

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/tourwallet/topup/internal/ledger"
	"github.com/tourwallet/topup/internal/logging"
)

func TestServiceBalanceAndEntries(t *testing.T) {
	repo := NewMemoryRepository()
	acct := ledger.NewAccountant(ledger.NewInMemory(repo), logging.Discard())
	svc := NewService(repo, acct)

	ctx := context.Background()
	userID := uuid.NewString()
	if err := repo.Create(ctx, User{ID: userID, DisplayName: "Lan", Currency: "VND"}); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := acct.Credit(ctx, userID, 500_000, uuid.NewString()); err != nil {
		t.Fatalf("credit: %v", err)
	}

	balance, err := svc.Balance(ctx, userID)
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	if balance.Amount != 500_000 {
		t.Fatalf("expected balance 500000, got %d", balance.Amount)
	}

	entries, err := svc.Entries(ctx, userID, 10)
	if err != nil {
		t.Fatalf("entries: %v", err)
	}
	if len(entries) != 1 || entries[0].BalanceAfter != 500_000 {
		t.Fatalf("unexpected entries %+v", entries)
	}
}

func TestServiceUnknownUser(t *testing.T) {
	repo := NewMemoryRepository()
	svc := NewService(repo, ledger.NewAccountant(ledger.NewInMemory(repo), logging.Discard()))

	if _, err := svc.Balance(context.Background(), "missing"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestHandlerWallet(t *testing.T) {
	repo := NewMemoryRepository()
	acct := ledger.NewAccountant(ledger.NewInMemory(repo), logging.Discard())
	h := NewHandler(NewService(repo, acct))

	ctx := context.Background()
	userID := uuid.NewString()
	_ = repo.Create(ctx, User{ID: userID, Currency: "VND"})
	_, _ = acct.Credit(ctx, userID, 20_000, uuid.NewString())

	app := fiber.New()
	app.Get("/users/:userId/wallet", h.Wallet)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodGet, "/users/"+userID+"/wallet", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusOK {
		t.Fatalf("expected 200 got %d", resp.StatusCode)
	}
	var body struct {
		Balance int64          `json:"balance"`
		Entries []ledger.Entry `json:"entries"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Balance != 20_000 || len(body.Entries) != 1 {
		t.Fatalf("unexpected body %+v", body)
	}

	resp, err = app.Test(httptest.NewRequest(fiber.MethodGet, "/users/nobody/wallet", nil))
	if err != nil {
		t.Fatalf("app.Test: %v", err)
	}
	if resp.StatusCode != fiber.StatusNotFound {
		t.Fatalf("expected 404 got %d", resp.StatusCode)
	}
}
