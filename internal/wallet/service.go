package wallet

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/escrowhub/escrowhub/internal/domain"
	"github.com/escrowhub/escrowhub/internal/gateway"
	"github.com/escrowhub/escrowhub/internal/store"
)

// DefaultCurrency is assigned to wallets created lazily on first access.
const DefaultCurrency = "USD"

// Service owns balance arithmetic and payment-method bookkeeping for wallets.
// Every balance-affecting operation runs inside one store unit of work
// together with its transaction log append.
type Service struct {
	store   store.Store
	gateway gateway.Gateway
	logger  *slog.Logger
}

// NewService builds a wallet service. A nil gateway falls back to the static
// always-approve connector so non-card flows never depend on processor
// availability.
func NewService(st store.Store, gw gateway.Gateway, logger *slog.Logger) *Service {
	if gw == nil {
		gw = gateway.Static{}
	}
	return &Service{store: st, gateway: gw, logger: logger}
}

// GetOrCreate returns the wallet for userID, creating an empty one if absent.
func (s *Service) GetOrCreate(ctx context.Context, userID string) (domain.Wallet, error) {
	if userID == "" {
		return domain.Wallet{}, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}

	w, err := s.store.GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return domain.Wallet{}, err
	}

	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		w, err = GetOrCreateTx(ctx, tx, userID, time.Now().UTC())
		return err
	})
	if err != nil {
		return domain.Wallet{}, err
	}
	return w, nil
}

// GetOrCreateTx fetches a wallet inside an open unit of work, creating and
// staging a zero-balance wallet when none exists yet. Callers that go on to
// move money do so against the returned value and write it back themselves.
func GetOrCreateTx(ctx context.Context, tx store.Tx, userID string, now time.Time) (domain.Wallet, error) {
	w, err := tx.GetWallet(ctx, userID)
	if err == nil {
		return w, nil
	}
	var notFound *domain.NotFoundError
	if !errors.As(err, &notFound) {
		return domain.Wallet{}, err
	}

	w = domain.Wallet{
		UserID:    userID,
		Currency:  DefaultCurrency,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := tx.PutWallet(ctx, w); err != nil {
		return domain.Wallet{}, err
	}
	return w, nil
}

// DepositInput captures the data required to fund a wallet.
type DepositInput struct {
	UserID          string
	Amount          int64
	PaymentMethodID string
}

// WithdrawInput captures the data required to withdraw from a wallet.
type WithdrawInput struct {
	UserID          string
	Amount          int64
	PaymentMethodID string
}

// MovementResult is the outcome of a deposit or withdrawal.
type MovementResult struct {
	Wallet      domain.Wallet
	Transaction domain.Transaction
}

// Deposit credits the wallet and appends the matching ledger entry in one
// unit of work. Card-backed methods are authorized with the gateway first;
// the processor reference is recorded on the transaction.
func (s *Service) Deposit(ctx context.Context, input DepositInput) (MovementResult, error) {
	if input.Amount <= 0 {
		return MovementResult{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if input.PaymentMethodID == "" {
		return MovementResult{}, &domain.ValidationError{Field: "payment_method_id", Reason: "must not be empty"}
	}

	w, err := s.GetOrCreate(ctx, input.UserID)
	if err != nil {
		return MovementResult{}, err
	}
	method, ok := w.Method(input.PaymentMethodID)
	if !ok {
		return MovementResult{}, &domain.ValidationError{Field: "payment_method_id", Reason: "unknown payment method"}
	}

	var gatewayRef string
	if method.Type == domain.MethodTypeCard {
		decision, err := s.gateway.Authorize(ctx, gateway.Authorization{
			CardToken: method.CardToken,
			Amount:    input.Amount,
			Currency:  w.Currency,
		})
		if err != nil {
			return MovementResult{}, err
		}
		gatewayRef = decision.Reference
	}

	var result MovementResult
	err = s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		w, err := tx.GetWallet(ctx, input.UserID)
		if err != nil {
			return err
		}
		if _, ok := w.Method(input.PaymentMethodID); !ok {
			return &domain.ValidationError{Field: "payment_method_id", Reason: "unknown payment method"}
		}

		entry := domain.Transaction{
			ID:         uuid.NewString(),
			UserID:     w.UserID,
			Amount:     input.Amount,
			Currency:   w.Currency,
			Type:       domain.TransactionDeposit,
			Status:     domain.TransactionStatusCompleted,
			GatewayRef: gatewayRef,
			CreatedAt:  now,
		}
		w.Balance += input.Amount
		w.TransactionIDs = append(w.TransactionIDs, entry.ID)
		w.UpdatedAt = now

		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.PutTransaction(ctx, entry); err != nil {
			return err
		}
		result = MovementResult{Wallet: w, Transaction: entry}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}

	s.logger.Info("deposit", "user_id", input.UserID, "amount", input.Amount, "balance", result.Wallet.Balance)
	return result, nil
}

// Withdraw debits the available balance and appends the matching ledger entry
// in one unit of work. Funds reserved for open escrows cannot be withdrawn.
func (s *Service) Withdraw(ctx context.Context, input WithdrawInput) (MovementResult, error) {
	if input.Amount <= 0 {
		return MovementResult{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}
	if input.PaymentMethodID == "" {
		return MovementResult{}, &domain.ValidationError{Field: "payment_method_id", Reason: "must not be empty"}
	}

	var result MovementResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		w, err := GetOrCreateTx(ctx, tx, input.UserID, now)
		if err != nil {
			return err
		}
		if _, ok := w.Method(input.PaymentMethodID); !ok {
			return &domain.ValidationError{Field: "payment_method_id", Reason: "unknown payment method"}
		}
		if available := w.Available(); input.Amount > available {
			return &domain.InsufficientFundsError{Available: available, Requested: input.Amount}
		}

		entry := domain.Transaction{
			ID:        uuid.NewString(),
			UserID:    w.UserID,
			Amount:    -input.Amount,
			Currency:  w.Currency,
			Type:      domain.TransactionWithdrawal,
			Status:    domain.TransactionStatusCompleted,
			CreatedAt: now,
		}
		w.Balance -= input.Amount
		w.TransactionIDs = append(w.TransactionIDs, entry.ID)
		w.UpdatedAt = now

		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.PutTransaction(ctx, entry); err != nil {
			return err
		}
		result = MovementResult{Wallet: w, Transaction: entry}
		return nil
	})
	if err != nil {
		return MovementResult{}, err
	}

	s.logger.Info("withdrawal", "user_id", input.UserID, "amount", input.Amount, "balance", result.Wallet.Balance)
	return result, nil
}

// MethodSpec describes a payment method to attach to a wallet.
type MethodSpec struct {
	Type      string
	Label     string
	CardToken string
	Last4     string
	IsDefault bool
}

// AddPaymentMethod attaches a new method. The first method on a wallet always
// becomes the default, keeping the exactly-one-default invariant.
func (s *Service) AddPaymentMethod(ctx context.Context, userID string, spec MethodSpec) (domain.PaymentMethod, domain.Wallet, error) {
	if spec.Type == "" {
		return domain.PaymentMethod{}, domain.Wallet{}, &domain.ValidationError{Field: "type", Reason: "must not be empty"}
	}

	var method domain.PaymentMethod
	var wallet domain.Wallet
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		w, err := GetOrCreateTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}

		method = domain.PaymentMethod{
			ID:        uuid.NewString(),
			Type:      spec.Type,
			Label:     spec.Label,
			CardToken: spec.CardToken,
			Last4:     spec.Last4,
			IsDefault: spec.IsDefault || len(w.PaymentMethods) == 0,
			AddedAt:   now,
		}
		if method.IsDefault {
			for i := range w.PaymentMethods {
				w.PaymentMethods[i].IsDefault = false
			}
		}
		w.PaymentMethods = append(w.PaymentMethods, method)
		w.UpdatedAt = now

		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return domain.PaymentMethod{}, domain.Wallet{}, err
	}
	return method, wallet, nil
}

// RemovePaymentMethod detaches a method. The sole remaining method cannot be
// removed; removing the default promotes another method in its place.
func (s *Service) RemovePaymentMethod(ctx context.Context, userID, methodID string) (domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		w, err := GetOrCreateTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		removed, ok := w.Method(methodID)
		if !ok {
			return &domain.NotFoundError{Kind: "payment method", Key: methodID}
		}
		if len(w.PaymentMethods) == 1 {
			return &domain.ValidationError{Field: "payment_method_id", Reason: "cannot remove the only payment method"}
		}

		kept := w.PaymentMethods[:0]
		for _, m := range w.PaymentMethods {
			if m.ID != methodID {
				kept = append(kept, m)
			}
		}
		w.PaymentMethods = kept
		if removed.IsDefault {
			w.PaymentMethods[0].IsDefault = true
		}
		w.UpdatedAt = now

		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return domain.Wallet{}, err
	}
	return wallet, nil
}

// SetDefaultPaymentMethod marks methodID as the wallet's default.
func (s *Service) SetDefaultPaymentMethod(ctx context.Context, userID, methodID string) (domain.Wallet, error) {
	var wallet domain.Wallet
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		w, err := GetOrCreateTx(ctx, tx, userID, now)
		if err != nil {
			return err
		}
		if _, ok := w.Method(methodID); !ok {
			return &domain.NotFoundError{Kind: "payment method", Key: methodID}
		}

		for i := range w.PaymentMethods {
			w.PaymentMethods[i].IsDefault = w.PaymentMethods[i].ID == methodID
		}
		w.UpdatedAt = now

		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		wallet = w
		return nil
	})
	if err != nil {
		return domain.Wallet{}, err
	}
	return wallet, nil
}

// ListTransactions returns the wallet's ledger entries in append order.
func (s *Service) ListTransactions(ctx context.Context, userID string, skip, limit int) ([]domain.Transaction, int, error) {
	if userID == "" {
		return nil, 0, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.store.ListTransactions(ctx, userID, skip, limit)
}
