package ledger

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/google/uuid"

	"github.com/tourwallet/topup/internal/logging"
)

type fakeAccounts struct {
	mu       sync.Mutex
	balances map[string]int64
	fail     error
}

func newFakeAccounts(users ...string) *fakeAccounts {
	f := &fakeAccounts{balances: map[string]int64{}}
	for _, u := range users {
		f.balances[u] = 0
	}
	return f
}

func (f *fakeAccounts) CreditWallet(_ context.Context, userID string, amount int64, _ string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail != nil {
		return 0, f.fail
	}
	bal, ok := f.balances[userID]
	if !ok {
		return 0, fmt.Errorf("user %s not found", userID)
	}
	bal += amount
	f.balances[userID] = bal
	return bal, nil
}

func TestInMemoryLedger_CreditAppliesBalanceAndEntry(t *testing.T) {
	accounts := newFakeAccounts("u1")
	l := NewInMemory(accounts)
	ctx := context.Background()

	entry, err := l.Credit(ctx, "u1", "intent-1", 500_000)
	if err != nil {
		t.Fatalf("credit failed: %v", err)
	}
	if entry.BalanceAfter != 500_000 || entry.Delta != 500_000 {
		t.Fatalf("unexpected entry %+v", entry)
	}
	if accounts.balances["u1"] != 500_000 {
		t.Fatalf("expected balance 500000, got %d", accounts.balances["u1"])
	}

	got, err := l.EntryForIntent(ctx, "intent-1")
	if err != nil {
		t.Fatalf("entry for intent: %v", err)
	}
	if got.ID != entry.ID {
		t.Fatalf("expected entry %s got %s", entry.ID, got.ID)
	}
}

func TestInMemoryLedger_DuplicateCredit(t *testing.T) {
	accounts := newFakeAccounts("u1")
	l := NewInMemory(accounts)
	ctx := context.Background()

	first, err := l.Credit(ctx, "u1", "intent-1", 1_000)
	if err != nil {
		t.Fatalf("first credit: %v", err)
	}
	second, err := l.Credit(ctx, "u1", "intent-1", 1_000)
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate error, got %v", err)
	}
	if second.ID != first.ID {
		t.Fatalf("expected original entry to be returned")
	}
	if accounts.balances["u1"] != 1_000 {
		t.Fatalf("balance changed on duplicate: %d", accounts.balances["u1"])
	}
}

func TestInMemoryLedger_FailedCreditLeavesNoEntry(t *testing.T) {
	accounts := newFakeAccounts("u1")
	accounts.fail = errors.New("store down")
	l := NewInMemory(accounts)

	if _, err := l.Credit(context.Background(), "u1", "intent-1", 1_000); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := l.EntryForIntent(context.Background(), "intent-1"); !errors.Is(err, ErrEntryNotFound) {
		t.Fatalf("expected no entry, got %v", err)
	}
}

func TestInMemoryLedger_RejectsNonPositive(t *testing.T) {
	l := NewInMemory(newFakeAccounts("u1"))
	if _, err := l.Credit(context.Background(), "u1", "intent-1", 0); !errors.Is(err, ErrInvalidAmount) {
		t.Fatalf("expected invalid amount, got %v", err)
	}
}

func TestInMemoryLedger_ConcurrentCreditsSameIntent(t *testing.T) {
	accounts := newFakeAccounts("u1")
	l := NewInMemory(accounts)
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = l.Credit(ctx, "u1", "intent-race", 2_000)
		}()
	}
	wg.Wait()

	if n := PositiveEntries(l, "intent-race"); n != 1 {
		t.Fatalf("expected exactly one entry, got %d", n)
	}
	if accounts.balances["u1"] != 2_000 {
		t.Fatalf("expected balance 2000, got %d", accounts.balances["u1"])
	}
}

func TestInMemoryLedger_ListByUserNewestFirst(t *testing.T) {
	l := NewInMemory(newFakeAccounts("u1", "u2"))
	ctx := context.Background()
	for i := 0; i < 3; i++ {
		if _, err := l.Credit(ctx, "u1", uuid.NewString(), int64(1_000*(i+1))); err != nil {
			t.Fatalf("credit %d: %v", i, err)
		}
	}
	if _, err := l.Credit(ctx, "u2", uuid.NewString(), 9_000); err != nil {
		t.Fatalf("credit u2: %v", err)
	}

	entries, err := l.ListByUser(ctx, "u1", 2)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(entries))
	}
	if entries[0].BalanceAfter != 6_000 || entries[1].BalanceAfter != 3_000 {
		t.Fatalf("unexpected order: %+v", entries)
	}
}

func TestAccountant_DuplicateReturnsOriginal(t *testing.T) {
	l := NewInMemory(newFakeAccounts("u1"))
	acct := NewAccountant(l, logging.Discard())
	ctx := context.Background()

	first, err := acct.Credit(ctx, "u1", 10_000, "intent-9")
	if err != nil {
		t.Fatalf("credit: %v", err)
	}
	again, err := acct.Credit(ctx, "u1", 10_000, "intent-9")
	if !errors.Is(err, ErrDuplicateTransaction) {
		t.Fatalf("expected duplicate, got %v", err)
	}
	if again.ID != first.ID {
		t.Fatalf("expected original entry")
	}
	if _, err := acct.Credit(ctx, "u1", 10_000, ""); err == nil {
		t.Fatalf("expected error for missing intent id")
	}
}
