package escrow

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/escrowhub/escrowhub/internal/domain"
	"github.com/escrowhub/escrowhub/internal/logging"
	"github.com/escrowhub/escrowhub/internal/store"
	"github.com/escrowhub/escrowhub/internal/wallet"
)

type testEnv struct {
	store   store.Store
	wallets *wallet.Service
	escrows *Service
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	st := store.NewMemory()
	logger := logging.Discard()
	return &testEnv{
		store:   st,
		wallets: wallet.NewService(st, nil, logger),
		escrows: NewService(st, nil, logger),
	}
}

// fundClient gives the client a payment method and a starting balance,
// returning the method ID.
func (e *testEnv) fundClient(t *testing.T, userID string, balance int64) string {
	t.Helper()
	ctx := context.Background()
	method, _, err := e.wallets.AddPaymentMethod(ctx, userID, wallet.MethodSpec{Type: domain.MethodTypeBankAccount})
	if err != nil {
		t.Fatalf("add method: %v", err)
	}
	if balance > 0 {
		if _, err := e.wallets.Deposit(ctx, wallet.DepositInput{UserID: userID, Amount: balance, PaymentMethodID: method.ID}); err != nil {
			t.Fatalf("seed deposit: %v", err)
		}
	}
	return method.ID
}

func (e *testEnv) create(t *testing.T, methodID string, amount int64) domain.Escrow {
	t.Helper()
	result, err := e.escrows.Create(context.Background(), CreateInput{
		ClientID:        "client",
		FreelancerID:    "freelancer",
		ServiceName:     "logo design",
		Description:     "three concepts",
		Amount:          amount,
		PaymentMethodID: methodID,
	})
	if err != nil {
		t.Fatalf("create escrow: %v", err)
	}
	return result.Escrow
}

func checkInvariants(t *testing.T, st store.Store, userID string) {
	t.Helper()
	ctx := context.Background()
	w, err := st.GetWallet(ctx, userID)
	if err != nil {
		return
	}
	if w.ReservedBalance < 0 || w.Balance < w.ReservedBalance {
		t.Fatalf("balance invariant violated for %s: balance=%d reserved=%d", userID, w.Balance, w.ReservedBalance)
	}
	var reserveSum int64
	for _, r := range w.EscrowReserves {
		reserveSum += r.Amount
	}
	if reserveSum != w.ReservedBalance {
		t.Fatalf("reserved balance %d does not match reserve entries %d", w.ReservedBalance, reserveSum)
	}
	txs, _, err := st.ListTransactions(ctx, userID, 0, 0)
	if err != nil {
		t.Fatalf("list transactions: %v", err)
	}
	var txSum int64
	for _, tx := range txs {
		txSum += tx.Amount
	}
	if txSum != w.Balance {
		t.Fatalf("transaction log sum %d does not match balance %d for %s", txSum, w.Balance, userID)
	}
}

func TestCreateFundsEscrowWithFee(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)

	result, err := env.escrows.Create(context.Background(), CreateInput{
		ClientID:        "client",
		FreelancerID:    "freelancer",
		ServiceName:     "logo design",
		Amount:          100,
		PaymentMethodID: methodID,
	})
	if err != nil {
		t.Fatalf("create: %v", err)
	}

	esc := result.Escrow
	if esc.Status != domain.EscrowStatusFunded {
		t.Fatalf("expected funded, got %s", esc.Status)
	}
	if esc.PlatformFee != 5 {
		t.Fatalf("expected fee 5, got %d", esc.PlatformFee)
	}
	if esc.FundedAt.IsZero() {
		t.Fatal("expected fundedAt to be set")
	}

	w := result.ClientWallet
	if w.Balance != 895 || w.ReservedBalance != 100 || w.Available() != 795 {
		t.Fatalf("unexpected client wallet: balance=%d reserved=%d available=%d", w.Balance, w.ReservedBalance, w.Available())
	}
	if _, ok := w.Reserve(esc.ID); !ok {
		t.Fatal("expected reserve entry for the escrow")
	}
	checkInvariants(t, env.store, "client")
}

func TestCreateInsufficientFunds(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 100)

	_, err := env.escrows.Create(context.Background(), CreateInput{
		ClientID:        "client",
		FreelancerID:    "freelancer",
		ServiceName:     "logo design",
		Amount:          100,
		PaymentMethodID: methodID,
	})
	var insufficient *domain.InsufficientFundsError
	if !errors.As(err, &insufficient) {
		t.Fatalf("expected insufficient funds, got %v", err)
	}
	// total includes the platform fee
	if insufficient.Available != 100 || insufficient.Requested != 105 {
		t.Fatalf("unexpected error detail: %+v", insufficient)
	}

	w, err := env.store.GetWallet(context.Background(), "client")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 100 || w.ReservedBalance != 0 {
		t.Fatalf("failed create mutated wallet: %+v", w)
	}
}

func TestCreateValidation(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	ctx := context.Background()

	cases := []CreateInput{
		{FreelancerID: "f", ServiceName: "x", Amount: 10, PaymentMethodID: methodID},
		{ClientID: "c", ServiceName: "x", Amount: 10, PaymentMethodID: methodID},
		{ClientID: "c", FreelancerID: "f", Amount: 10, PaymentMethodID: methodID},
		{ClientID: "c", FreelancerID: "f", ServiceName: "x", Amount: 0, PaymentMethodID: methodID},
		{ClientID: "c", FreelancerID: "f", ServiceName: "x", Amount: 10},
		{ClientID: "same", FreelancerID: "same", ServiceName: "x", Amount: 10, PaymentMethodID: methodID},
	}
	for i, input := range cases {
		var validation *domain.ValidationError
		if _, err := env.escrows.Create(ctx, input); !errors.As(err, &validation) {
			t.Fatalf("case %d: expected validation error, got %v", i, err)
		}
	}
}

func TestHappyPathLifecycle(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	started, err := env.escrows.Start(ctx, esc.ID, "freelancer")
	if err != nil {
		t.Fatalf("start: %v", err)
	}
	if started.Status != domain.EscrowStatusInProgress || started.StartedAt.IsZero() {
		t.Fatalf("unexpected state after start: %+v", started)
	}

	delivered, err := env.escrows.Deliver(ctx, DeliverInput{
		EscrowID:     esc.ID,
		FreelancerID: "freelancer",
		Message:      "final files attached",
		Files:        []string{"logo.svg"},
	})
	if err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if delivered.Status != domain.EscrowStatusDelivered || delivered.Delivery.Message == "" {
		t.Fatalf("unexpected state after deliver: %+v", delivered)
	}

	result, err := env.escrows.Approve(ctx, ApproveInput{EscrowID: esc.ID, ClientID: "client", Rating: 5, Feedback: "great"})
	if err != nil {
		t.Fatalf("approve: %v", err)
	}
	if result.Escrow.Status != domain.EscrowStatusApproved {
		t.Fatalf("expected approved, got %s", result.Escrow.Status)
	}

	// Client: reserve released, balance unchanged since funding.
	if result.ClientWallet.ReservedBalance != 0 || result.ClientWallet.Balance != 895 {
		t.Fatalf("unexpected client wallet: %+v", result.ClientWallet)
	}
	// Freelancer receives exactly the amount; the fee goes to neither party.
	if result.FreelancerWallet.Balance != 100 {
		t.Fatalf("expected freelancer balance 100, got %d", result.FreelancerWallet.Balance)
	}

	checkInvariants(t, env.store, "client")
	checkInvariants(t, env.store, "freelancer")
}

func TestTransitionAuthorizationCheckedBeforeState(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	// Wrong freelancer on a funded escrow: authorization fails even though
	// the state check would also fail for a started escrow.
	var notAuthorized *domain.NotAuthorizedError
	if _, err := env.escrows.Start(ctx, esc.ID, "impostor"); !errors.As(err, &notAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}

	// Right freelancer, wrong state.
	if _, err := env.escrows.Deliver(ctx, DeliverInput{EscrowID: esc.ID, FreelancerID: "freelancer", Message: "hi"}); err == nil {
		t.Fatal("expected invalid state error")
	} else {
		var invalidState *domain.InvalidStateError
		if !errors.As(err, &invalidState) {
			t.Fatalf("expected invalid state, got %v", err)
		}
		if invalidState.Current != domain.EscrowStatusFunded || invalidState.Required != domain.EscrowStatusInProgress {
			t.Fatalf("unexpected state detail: %+v", invalidState)
		}
	}

	// Approve by the wrong client.
	if _, err := env.escrows.Approve(ctx, ApproveInput{EscrowID: esc.ID, ClientID: "impostor"}); !errors.As(err, &notAuthorized) {
		t.Fatalf("expected not authorized, got %v", err)
	}
}

func TestConcurrentApproveExactlyOneWins(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	if _, err := env.escrows.Start(ctx, esc.ID, "freelancer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.escrows.Deliver(ctx, DeliverInput{EscrowID: esc.ID, FreelancerID: "freelancer", Message: "done"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	const callers = 2
	results := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := env.escrows.Approve(ctx, ApproveInput{EscrowID: esc.ID, ClientID: "client"})
			results[i] = err
		}(i)
	}
	wg.Wait()

	var wins, stateErrs int
	for _, err := range results {
		if err == nil {
			wins++
			continue
		}
		var invalidState *domain.InvalidStateError
		if errors.As(err, &invalidState) {
			stateErrs++
			if invalidState.Current != domain.EscrowStatusApproved || invalidState.Required != domain.EscrowStatusDelivered {
				t.Fatalf("unexpected state detail: %+v", invalidState)
			}
		} else {
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if wins != 1 || stateErrs != 1 {
		t.Fatalf("expected exactly one winner, got wins=%d stateErrs=%d", wins, stateErrs)
	}

	// The freelancer was paid exactly once.
	w, err := env.store.GetWallet(ctx, "freelancer")
	if err != nil {
		t.Fatalf("get freelancer wallet: %v", err)
	}
	if w.Balance != 100 {
		t.Fatalf("expected freelancer balance 100, got %d", w.Balance)
	}
	checkInvariants(t, env.store, "client")
	checkInvariants(t, env.store, "freelancer")
}

func TestRejectKeepsFundsReserved(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	if _, err := env.escrows.Start(ctx, esc.ID, "freelancer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.escrows.Deliver(ctx, DeliverInput{EscrowID: esc.ID, FreelancerID: "freelancer", Message: "done"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}

	var validation *domain.ValidationError
	if _, err := env.escrows.Reject(ctx, RejectInput{EscrowID: esc.ID, ClientID: "client"}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error without reason, got %v", err)
	}

	disputed, err := env.escrows.Reject(ctx, RejectInput{EscrowID: esc.ID, ClientID: "client", Reason: "wrong colors"})
	if err != nil {
		t.Fatalf("reject: %v", err)
	}
	if disputed.Status != domain.EscrowStatusDisputed || disputed.DisputeReason != "wrong colors" {
		t.Fatalf("unexpected escrow after reject: %+v", disputed)
	}

	w, err := env.store.GetWallet(ctx, "client")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 895 || w.ReservedBalance != 100 {
		t.Fatalf("reject must not move funds: %+v", w)
	}
}

func TestResolveRefundedReturnsAmountNotFee(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	if _, err := env.escrows.Start(ctx, esc.ID, "freelancer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.escrows.Deliver(ctx, DeliverInput{EscrowID: esc.ID, FreelancerID: "freelancer", Message: "done"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := env.escrows.Reject(ctx, RejectInput{EscrowID: esc.ID, ClientID: "client", Reason: "not as agreed"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	resolved, err := env.escrows.Resolve(ctx, ResolveInput{EscrowID: esc.ID, Outcome: domain.EscrowStatusRefunded})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.EscrowStatusRefunded || resolved.ResolvedAt.IsZero() {
		t.Fatalf("unexpected escrow after resolve: %+v", resolved)
	}

	w, err := env.store.GetWallet(ctx, "client")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	// 1000 - 105 at funding + 100 refund; the 5 fee is gone for good.
	if w.Balance != 995 || w.ReservedBalance != 0 {
		t.Fatalf("unexpected client wallet after refund: %+v", w)
	}
	checkInvariants(t, env.store, "client")
}

func TestResolveReleasedPaysFreelancer(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	if _, err := env.escrows.Start(ctx, esc.ID, "freelancer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	if _, err := env.escrows.Deliver(ctx, DeliverInput{EscrowID: esc.ID, FreelancerID: "freelancer", Message: "done"}); err != nil {
		t.Fatalf("deliver: %v", err)
	}
	if _, err := env.escrows.Reject(ctx, RejectInput{EscrowID: esc.ID, ClientID: "client", Reason: "late"}); err != nil {
		t.Fatalf("reject: %v", err)
	}

	resolved, err := env.escrows.Resolve(ctx, ResolveInput{EscrowID: esc.ID, Outcome: domain.EscrowStatusReleased})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if resolved.Status != domain.EscrowStatusReleased {
		t.Fatalf("expected released, got %s", resolved.Status)
	}

	client, _ := env.store.GetWallet(ctx, "client")
	freelancer, _ := env.store.GetWallet(ctx, "freelancer")
	if client.Balance != 895 || client.ReservedBalance != 0 {
		t.Fatalf("unexpected client wallet: %+v", client)
	}
	if freelancer.Balance != 100 {
		t.Fatalf("expected freelancer balance 100, got %d", freelancer.Balance)
	}
	checkInvariants(t, env.store, "client")
	checkInvariants(t, env.store, "freelancer")
}

func TestResolveRequiresDispute(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)

	var invalidState *domain.InvalidStateError
	if _, err := env.escrows.Resolve(context.Background(), ResolveInput{EscrowID: esc.ID, Outcome: domain.EscrowStatusRefunded}); !errors.As(err, &invalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}

	var validation *domain.ValidationError
	if _, err := env.escrows.Resolve(context.Background(), ResolveInput{EscrowID: esc.ID, Outcome: domain.EscrowStatusApproved}); !errors.As(err, &validation) {
		t.Fatalf("expected validation error for bad outcome, got %v", err)
	}
}

func TestCancelOnlyWhileFunded(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 1_000)
	esc := env.create(t, methodID, 100)
	ctx := context.Background()

	cancelled, err := env.escrows.Cancel(ctx, esc.ID, "client")
	if err != nil {
		t.Fatalf("cancel: %v", err)
	}
	if cancelled.Status != domain.EscrowStatusCancelled {
		t.Fatalf("expected cancelled, got %s", cancelled.Status)
	}

	w, err := env.store.GetWallet(ctx, "client")
	if err != nil {
		t.Fatalf("get wallet: %v", err)
	}
	if w.Balance != 995 || w.ReservedBalance != 0 {
		t.Fatalf("unexpected wallet after cancel: %+v", w)
	}
	checkInvariants(t, env.store, "client")

	// A second escrow that has been started can no longer be cancelled.
	esc2 := env.create(t, methodID, 100)
	if _, err := env.escrows.Start(ctx, esc2.ID, "freelancer"); err != nil {
		t.Fatalf("start: %v", err)
	}
	var invalidState *domain.InvalidStateError
	if _, err := env.escrows.Cancel(ctx, esc2.ID, "client"); !errors.As(err, &invalidState) {
		t.Fatalf("expected invalid state, got %v", err)
	}
}

func TestGetAndListByUser(t *testing.T) {
	env := newTestEnv(t)
	methodID := env.fundClient(t, "client", 2_000)
	first := env.create(t, methodID, 100)
	second := env.create(t, methodID, 200)
	ctx := context.Background()

	got, err := env.escrows.Get(ctx, first.ID)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got.ID != first.ID {
		t.Fatalf("expected escrow %s, got %s", first.ID, got.ID)
	}

	escrows, total, err := env.escrows.ListByUser(ctx, "freelancer", 0, 10)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if total != 2 || len(escrows) != 2 {
		t.Fatalf("expected 2 escrows, got %d/%d", len(escrows), total)
	}
	seen := map[string]bool{escrows[0].ID: true, escrows[1].ID: true}
	if !seen[first.ID] || !seen[second.ID] {
		t.Fatalf("listing missed an escrow: %v", seen)
	}

	var notFound *domain.NotFoundError
	if _, err := env.escrows.Get(ctx, "missing"); !errors.As(err, &notFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}
