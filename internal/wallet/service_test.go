package wallet

import (
	"context"
	"errors"
	"testing"

	"github.com/escrowhub/escrowhub/internal/domain"
	"github.com/escrowhub/escrowhub/internal/logging"
	"github.com/escrowhub/escrowhub/internal/store"
)

func newTestService() *Service {
	return NewService(store.NewMemory(), nil, logging.Discard())
}

func addMethod(t *testing.T, svc *Service, userID string, spec MethodSpec) domain.PaymentMethod {
	t.Helper()
	method, _, err := svc.AddPaymentMethod(context.Background(), userID, spec)
	if err != nil {
		t.Fatalf("add payment method: %v", err)
	}
	return method
}

func TestGetOrCreateIsLazy(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	w, err := svc.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("get or create: %v", err)
	}
	if w.Balance != 0 || w.ReservedBalance != 0 || len(w.PaymentMethods) != 0 {
		t.Fatalf("expected empty wallet, got %+v", w)
	}

	again, err := svc.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("second get: %v", err)
	}
	if again.CreatedAt != w.CreatedAt {
		t.Fatal("expected the same wallet on second access")
	}
}

func TestDepositCreditsBalanceAndLogs(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	method := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount, Label: "checking"})

	res, err := svc.Deposit(ctx, DepositInput{UserID: "alice", Amount: 1_000, PaymentMethodID: method.ID})
	if err != nil {
		t.Fatalf("deposit: %v", err)
	}
	if res.Wallet.Balance != 1_000 {
		t.Fatalf("expected balance 1000, got %d", res.Wallet.Balance)
	}
	if res.Transaction.Type != domain.TransactionDeposit || res.Transaction.Amount != 1_000 {
		t.Fatalf("unexpected transaction: %+v", res.Transaction)
	}

	txs, total, err := svc.ListTransactions(ctx, "alice", 0, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	if total != 1 || txs[0].ID != res.Transaction.ID {
		t.Fatalf("deposit not logged: total=%d", total)
	}
}

func TestDepositCardInvokesGateway(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	method := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeCard, CardToken: "tok_123", Last4: "4242"})

	res, err := svc.Deposit(ctx, DepositInput{UserID: "alice", Amount: 500, PaymentMethodID: method.ID})
	if err != nil {
		t.Fatalf("card deposit: %v", err)
	}
	if res.Transaction.GatewayRef == "" {
		t.Fatal("expected gateway reference on card deposit")
	}
}

func TestDepositValidation(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()

	var validation *domain.ValidationError
	if _, err := svc.Deposit(ctx, DepositInput{UserID: "alice", Amount: 0, PaymentMethodID: "m"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for zero amount, got %v", err)
	}
	if _, err := svc.Deposit(ctx, DepositInput{UserID: "alice", Amount: 100, PaymentMethodID: "unknown"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for unknown method, got %v", err)
	}
}

func TestWithdrawInsufficientFundsLeavesWalletUntouched(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	method := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})
	if _, err := svc.Deposit(ctx, DepositInput{UserID: "alice", Amount: 200, PaymentMethodID: method.ID}); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	_, err := svc.Withdraw(ctx, WithdrawInput{UserID: "alice", Amount: 500, PaymentMethodID: method.ID})
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	if insufficient.Available != 200 || insufficient.Requested != 500 {
		t.Fatalf("unexpected error detail: %+v", insufficient)
	}

	w, err := svc.GetOrCreate(ctx, "alice")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 200 || w.ReservedBalance != 0 {
		t.Fatalf("failed withdrawal mutated wallet: %+v", w)
	}
}

func TestWithdrawDebitsAndLogs(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	method := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})
	if _, err := svc.Deposit(ctx, DepositInput{UserID: "alice", Amount: 1_000, PaymentMethodID: method.ID}); err != nil {
		t.Fatalf("seed deposit: %v", err)
	}

	res, err := svc.Withdraw(ctx, WithdrawInput{UserID: "alice", Amount: 300, PaymentMethodID: method.ID})
	if err != nil {
		t.Fatalf("withdraw: %v", err)
	}
	if res.Wallet.Balance != 700 {
		t.Fatalf("expected balance 700, got %d", res.Wallet.Balance)
	}
	if res.Transaction.Amount != -300 || res.Transaction.Type != domain.TransactionWithdrawal {
		t.Fatalf("unexpected transaction: %+v", res.Transaction)
	}

	// Reconciliation: the transaction log sums to the wallet balance.
	txs, _, err := svc.ListTransactions(ctx, "alice", 0, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	var sum int64
	for _, tx := range txs {
		sum += tx.Amount
	}
	if sum != res.Wallet.Balance {
		t.Fatalf("log sum %d does not match balance %d", sum, res.Wallet.Balance)
	}
}

func TestFirstPaymentMethodBecomesDefault(t *testing.T) {
	svc := newTestService()

	first := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})
	if !first.IsDefault {
		t.Fatal("first method should become default")
	}

	second := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeCard, IsDefault: true})
	if !second.IsDefault {
		t.Fatal("explicitly default method should be default")
	}

	w, err := svc.GetOrCreate(context.Background(), "alice")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	defaults := 0
	for _, m := range w.PaymentMethods {
		if m.IsDefault {
			defaults++
		}
	}
	if defaults != 1 {
		t.Fatalf("expected exactly one default method, got %d", defaults)
	}
}

func TestRemoveOnlyPaymentMethodFails(t *testing.T) {
	svc := newTestService()
	method := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})

	_, err := svc.RemovePaymentMethod(context.Background(), "alice", method.ID)
	var validation *domain.ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRemoveDefaultPromotesRemaining(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	first := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})
	second := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeCard})

	w, err := svc.RemovePaymentMethod(ctx, "alice", first.ID)
	if err != nil {
		t.Fatalf("remove default: %v", err)
	}
	if len(w.PaymentMethods) != 1 || w.PaymentMethods[0].ID != second.ID || !w.PaymentMethods[0].IsDefault {
		t.Fatalf("remaining method should be promoted to default: %+v", w.PaymentMethods)
	}
}

func TestRemoveUnknownPaymentMethod(t *testing.T) {
	svc := newTestService()
	addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})

	_, err := svc.RemovePaymentMethod(context.Background(), "alice", "nope")
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestSetDefaultPaymentMethod(t *testing.T) {
	svc := newTestService()
	ctx := context.Background()
	first := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeBankAccount})
	second := addMethod(t, svc, "alice", MethodSpec{Type: domain.MethodTypeCard})

	w, err := svc.SetDefaultPaymentMethod(ctx, "alice", second.ID)
	if err != nil {
		t.Fatalf("set default: %v", err)
	}
	for _, m := range w.PaymentMethods {
		if m.ID == second.ID && !m.IsDefault {
			t.Fatal("second method should be default")
		}
		if m.ID == first.ID && m.IsDefault {
			t.Fatal("first method should no longer be default")
		}
	}

	var notFound *domain.NotFoundError
	if _, err := svc.SetDefaultPaymentMethod(ctx, "alice", "nope"); !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
