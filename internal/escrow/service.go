package escrow

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/escrowhub/escrowhub/internal/domain"
	"github.com/escrowhub/escrowhub/internal/notification"
	"github.com/escrowhub/escrowhub/internal/store"
	"github.com/escrowhub/escrowhub/internal/wallet"
)

// platformFeeBps is the funding-time surcharge in basis points (5%). The fee
// is retained by the platform: it is never refunded to the client and never
// paid to the freelancer.
const platformFeeBps = 500

// PlatformFee computes the fee charged on top of an escrow amount.
func PlatformFee(amount int64) int64 {
	return amount * platformFeeBps / 10_000
}

// Service owns the escrow state machine and the cross-wallet fund movements
// that accompany each transition. Every transition checks the caller's
// identity first, then the current state, and mutates nothing on failure.
type Service struct {
	store    store.Store
	notifier notification.Notifier
	logger   *slog.Logger
}

// NewService builds an escrow engine.
func NewService(st store.Store, notifier notification.Notifier, logger *slog.Logger) *Service {
	return &Service{store: st, notifier: notifier, logger: logger}
}

// CreateInput captures the agreement to fund.
type CreateInput struct {
	ClientID        string
	FreelancerID    string
	ServiceName     string
	Description     string
	Amount          int64
	Currency        string
	PaymentMethodID string
	Terms           string
}

// CreateResult carries the funded escrow and the client wallet after funding.
type CreateResult struct {
	Escrow       domain.Escrow
	ClientWallet domain.Wallet
}

// Create funds a new escrow in one unit of work: the client wallet is debited
// by amount plus fee, the amount is reserved against the escrow, and the
// funding movement is logged. The transient created state is never observable;
// a successfully created escrow is always funded.
func (s *Service) Create(ctx context.Context, input CreateInput) (CreateResult, error) {
	switch {
	case input.ClientID == "":
		return CreateResult{}, &domain.ValidationError{Field: "client_id", Reason: "must not be empty"}
	case input.FreelancerID == "":
		return CreateResult{}, &domain.ValidationError{Field: "freelancer_id", Reason: "must not be empty"}
	case input.ClientID == input.FreelancerID:
		return CreateResult{}, &domain.ValidationError{Field: "freelancer_id", Reason: "client and freelancer must differ"}
	case input.ServiceName == "":
		return CreateResult{}, &domain.ValidationError{Field: "service_name", Reason: "must not be empty"}
	case input.PaymentMethodID == "":
		return CreateResult{}, &domain.ValidationError{Field: "payment_method_id", Reason: "must not be empty"}
	case input.Amount <= 0:
		return CreateResult{}, &domain.ValidationError{Field: "amount", Reason: "must be positive"}
	}

	fee := PlatformFee(input.Amount)
	total := input.Amount + fee

	var result CreateResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		now := time.Now().UTC()
		w, err := wallet.GetOrCreateTx(ctx, tx, input.ClientID, now)
		if err != nil {
			return err
		}
		if _, ok := w.Method(input.PaymentMethodID); !ok {
			return &domain.ValidationError{Field: "payment_method_id", Reason: "unknown payment method"}
		}
		if available := w.Available(); total > available {
			return &domain.InsufficientFundsError{Available: available, Requested: total}
		}

		currency := input.Currency
		if currency == "" {
			currency = w.Currency
		}

		escrowID := uuid.NewString()
		entry := domain.Transaction{
			ID:        uuid.NewString(),
			UserID:    w.UserID,
			Amount:    -total,
			Currency:  currency,
			Type:      domain.TransactionEscrow,
			Status:    domain.TransactionStatusCompleted,
			EscrowID:  escrowID,
			CreatedAt: now,
		}

		w.Balance -= total
		w.AddReserve(escrowID, input.Amount)
		w.TransactionIDs = append(w.TransactionIDs, entry.ID)
		w.UpdatedAt = now

		esc := domain.Escrow{
			ID:            escrowID,
			ClientID:      input.ClientID,
			FreelancerID:  input.FreelancerID,
			ServiceName:   input.ServiceName,
			Description:   input.Description,
			Amount:        input.Amount,
			PlatformFee:   fee,
			Currency:      currency,
			Status:        domain.EscrowStatusFunded,
			Terms:         input.Terms,
			TransactionID: entry.ID,
			CreatedAt:     now,
			FundedAt:      now,
		}

		if err := tx.PutWallet(ctx, w); err != nil {
			return err
		}
		if err := tx.PutTransaction(ctx, entry); err != nil {
			return err
		}
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		result = CreateResult{Escrow: esc, ClientWallet: w}
		return nil
	})
	if err != nil {
		return CreateResult{}, err
	}

	s.logger.Info("escrow funded",
		"escrow_id", result.Escrow.ID,
		"client_id", input.ClientID,
		"freelancer_id", input.FreelancerID,
		"amount", input.Amount,
		"platform_fee", fee)
	return result, nil
}

// Start moves a funded escrow to in_progress. Only the named freelancer may
// start work.
func (s *Service) Start(ctx context.Context, escrowID, freelancerID string) (domain.Escrow, error) {
	var out domain.Escrow
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		esc, err := tx.GetEscrow(ctx, escrowID)
		if err != nil {
			return err
		}
		if esc.FreelancerID != freelancerID {
			return &domain.NotAuthorizedError{Reason: "caller is not the escrow freelancer"}
		}
		switch esc.Status {
		case domain.EscrowStatusFunded:
		case domain.EscrowStatusInProgress, domain.EscrowStatusDelivered, domain.EscrowStatusDisputed,
			domain.EscrowStatusApproved, domain.EscrowStatusRefunded, domain.EscrowStatusReleased,
			domain.EscrowStatusCancelled:
			return &domain.InvalidStateError{Current: esc.Status, Required: domain.EscrowStatusFunded}
		}

		esc.Status = domain.EscrowStatusInProgress
		esc.StartedAt = time.Now().UTC()
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return domain.Escrow{}, err
	}
	return out, nil
}

// DeliverInput carries the freelancer's delivery payload.
type DeliverInput struct {
	EscrowID     string
	FreelancerID string
	Message      string
	Files        []string
}

// Deliver records the work delivery on an in_progress escrow.
func (s *Service) Deliver(ctx context.Context, input DeliverInput) (domain.Escrow, error) {
	if input.Message == "" {
		return domain.Escrow{}, &domain.ValidationError{Field: "message", Reason: "must not be empty"}
	}

	var out domain.Escrow
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		esc, err := tx.GetEscrow(ctx, input.EscrowID)
		if err != nil {
			return err
		}
		if esc.FreelancerID != input.FreelancerID {
			return &domain.NotAuthorizedError{Reason: "caller is not the escrow freelancer"}
		}
		switch esc.Status {
		case domain.EscrowStatusInProgress:
		case domain.EscrowStatusFunded, domain.EscrowStatusDelivered, domain.EscrowStatusDisputed,
			domain.EscrowStatusApproved, domain.EscrowStatusRefunded, domain.EscrowStatusReleased,
			domain.EscrowStatusCancelled:
			return &domain.InvalidStateError{Current: esc.Status, Required: domain.EscrowStatusInProgress}
		}

		esc.Status = domain.EscrowStatusDelivered
		esc.Delivery = domain.Delivery{Message: input.Message, Files: input.Files}
		esc.DeliveredAt = time.Now().UTC()
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return domain.Escrow{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindEscrowDelivered,
			Destination: out.ClientID,
			Body:        fmt.Sprintf("Work delivered for %s", out.ServiceName),
		})
	}
	return out, nil
}

// ApproveInput carries the client's acceptance of delivered work.
type ApproveInput struct {
	EscrowID string
	ClientID string
	Rating   int
	Feedback string
}

// ApproveResult carries the released escrow and both updated wallets.
type ApproveResult struct {
	Escrow           domain.Escrow
	ClientWallet     domain.Wallet
	FreelancerWallet domain.Wallet
}

// Approve releases the held amount to the freelancer in one unit of work
// spanning both wallets and the transaction log. The platform fee debited at
// funding time is retained.
func (s *Service) Approve(ctx context.Context, input ApproveInput) (ApproveResult, error) {
	if input.Rating < 0 || input.Rating > 5 {
		return ApproveResult{}, &domain.ValidationError{Field: "rating", Reason: "must be between 0 and 5"}
	}

	var result ApproveResult
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		esc, err := tx.GetEscrow(ctx, input.EscrowID)
		if err != nil {
			return err
		}
		if esc.ClientID != input.ClientID {
			return &domain.NotAuthorizedError{Reason: "caller is not the escrow client"}
		}
		switch esc.Status {
		case domain.EscrowStatusDelivered:
		case domain.EscrowStatusFunded, domain.EscrowStatusInProgress, domain.EscrowStatusDisputed,
			domain.EscrowStatusApproved, domain.EscrowStatusRefunded, domain.EscrowStatusReleased,
			domain.EscrowStatusCancelled:
			return &domain.InvalidStateError{Current: esc.Status, Required: domain.EscrowStatusDelivered}
		}

		now := time.Now().UTC()
		clientWallet, err := s.releaseReserve(ctx, tx, esc, now)
		if err != nil {
			return err
		}
		freelancerWallet, err := s.creditFreelancer(ctx, tx, esc, now)
		if err != nil {
			return err
		}

		esc.Status = domain.EscrowStatusApproved
		esc.ApprovedAt = now
		esc.Rating = input.Rating
		esc.Feedback = input.Feedback
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		result = ApproveResult{Escrow: esc, ClientWallet: clientWallet, FreelancerWallet: freelancerWallet}
		return nil
	})
	if err != nil {
		return ApproveResult{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindEscrowApproved,
			Destination: result.Escrow.FreelancerID,
			Body:        fmt.Sprintf("Payment of %d released for %s", result.Escrow.Amount, result.Escrow.ServiceName),
		})
	}
	s.logger.Info("escrow approved", "escrow_id", result.Escrow.ID, "amount", result.Escrow.Amount)
	return result, nil
}

// RejectInput carries the client's dispute of delivered work.
type RejectInput struct {
	EscrowID string
	ClientID string
	Reason   string
}

// Reject disputes delivered work. Funds stay reserved pending external
// resolution; no wallet or ledger mutation happens here.
func (s *Service) Reject(ctx context.Context, input RejectInput) (domain.Escrow, error) {
	if input.Reason == "" {
		return domain.Escrow{}, &domain.ValidationError{Field: "reason", Reason: "must not be empty"}
	}

	var out domain.Escrow
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		esc, err := tx.GetEscrow(ctx, input.EscrowID)
		if err != nil {
			return err
		}
		if esc.ClientID != input.ClientID {
			return &domain.NotAuthorizedError{Reason: "caller is not the escrow client"}
		}
		switch esc.Status {
		case domain.EscrowStatusDelivered:
		case domain.EscrowStatusFunded, domain.EscrowStatusInProgress, domain.EscrowStatusDisputed,
			domain.EscrowStatusApproved, domain.EscrowStatusRefunded, domain.EscrowStatusReleased,
			domain.EscrowStatusCancelled:
			return &domain.InvalidStateError{Current: esc.Status, Required: domain.EscrowStatusDelivered}
		}

		esc.Status = domain.EscrowStatusDisputed
		esc.DisputeReason = input.Reason
		esc.DisputedAt = time.Now().UTC()
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return domain.Escrow{}, err
	}

	s.logger.Info("escrow disputed", "escrow_id", out.ID, "reason", input.Reason)
	return out, nil
}

// ResolveInput carries the externally decided dispute outcome.
type ResolveInput struct {
	EscrowID string
	Outcome  domain.EscrowStatus
}

// Resolve settles a disputed escrow. A refunded outcome returns the held
// amount to the client; a released outcome pays the freelancer, mirroring
// Approve. The platform fee is retained either way.
func (s *Service) Resolve(ctx context.Context, input ResolveInput) (domain.Escrow, error) {
	if input.Outcome != domain.EscrowStatusRefunded && input.Outcome != domain.EscrowStatusReleased {
		return domain.Escrow{}, &domain.ValidationError{Field: "outcome", Reason: "must be refunded or released"}
	}

	var out domain.Escrow
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		esc, err := tx.GetEscrow(ctx, input.EscrowID)
		if err != nil {
			return err
		}
		switch esc.Status {
		case domain.EscrowStatusDisputed:
		case domain.EscrowStatusFunded, domain.EscrowStatusInProgress, domain.EscrowStatusDelivered,
			domain.EscrowStatusApproved, domain.EscrowStatusRefunded, domain.EscrowStatusReleased,
			domain.EscrowStatusCancelled:
			return &domain.InvalidStateError{Current: esc.Status, Required: domain.EscrowStatusDisputed}
		}

		now := time.Now().UTC()
		if input.Outcome == domain.EscrowStatusRefunded {
			if _, err := s.refundClient(ctx, tx, esc, now); err != nil {
				return err
			}
		} else {
			if _, err := s.releaseReserve(ctx, tx, esc, now); err != nil {
				return err
			}
			if _, err := s.creditFreelancer(ctx, tx, esc, now); err != nil {
				return err
			}
		}

		esc.Status = input.Outcome
		esc.ResolvedAt = now
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return domain.Escrow{}, err
	}

	if s.notifier != nil {
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindEscrowResolved,
			Destination: out.ClientID,
			Body:        fmt.Sprintf("Dispute over %s resolved as %s", out.ServiceName, out.Status),
		})
		_ = s.notifier.Send(ctx, notification.Message{
			Kind:        notification.KindEscrowResolved,
			Destination: out.FreelancerID,
			Body:        fmt.Sprintf("Dispute over %s resolved as %s", out.ServiceName, out.Status),
		})
	}
	s.logger.Info("escrow resolved", "escrow_id", out.ID, "outcome", out.Status)
	return out, nil
}

// Cancel voids a funded escrow before work has started, returning the held
// amount to the client. The platform fee is not returned.
func (s *Service) Cancel(ctx context.Context, escrowID, clientID string) (domain.Escrow, error) {
	var out domain.Escrow
	err := s.store.WithTransaction(ctx, func(ctx context.Context, tx store.Tx) error {
		esc, err := tx.GetEscrow(ctx, escrowID)
		if err != nil {
			return err
		}
		if esc.ClientID != clientID {
			return &domain.NotAuthorizedError{Reason: "caller is not the escrow client"}
		}
		switch esc.Status {
		case domain.EscrowStatusFunded:
		case domain.EscrowStatusInProgress, domain.EscrowStatusDelivered, domain.EscrowStatusDisputed,
			domain.EscrowStatusApproved, domain.EscrowStatusRefunded, domain.EscrowStatusReleased,
			domain.EscrowStatusCancelled:
			return &domain.InvalidStateError{Current: esc.Status, Required: domain.EscrowStatusFunded}
		}

		now := time.Now().UTC()
		if _, err := s.refundClient(ctx, tx, esc, now); err != nil {
			return err
		}

		esc.Status = domain.EscrowStatusCancelled
		esc.CancelledAt = now
		if err := tx.PutEscrow(ctx, esc); err != nil {
			return err
		}
		out = esc
		return nil
	})
	if err != nil {
		return domain.Escrow{}, err
	}

	s.logger.Info("escrow cancelled", "escrow_id", out.ID)
	return out, nil
}

// Get fetches a single escrow.
func (s *Service) Get(ctx context.Context, escrowID string) (domain.Escrow, error) {
	return s.store.GetEscrow(ctx, escrowID)
}

// ListByUser returns escrows where the user is either party.
func (s *Service) ListByUser(ctx context.Context, userID string, skip, limit int) ([]domain.Escrow, int, error) {
	if userID == "" {
		return nil, 0, &domain.ValidationError{Field: "user_id", Reason: "must not be empty"}
	}
	return s.store.ListEscrowsByUser(ctx, userID, skip, limit)
}

// releaseReserve drops the escrow's reserve entry from the client wallet and
// recomputes the reserved balance. The client's balance does not change: the
// held total was already debited at funding time.
func (s *Service) releaseReserve(ctx context.Context, tx store.Tx, esc domain.Escrow, now time.Time) (domain.Wallet, error) {
	w, err := tx.GetWallet(ctx, esc.ClientID)
	if err != nil {
		return domain.Wallet{}, err
	}
	w.RemoveReserve(esc.ID)
	w.UpdatedAt = now
	if err := tx.PutWallet(ctx, w); err != nil {
		return domain.Wallet{}, err
	}
	return w, nil
}

// creditFreelancer pays the escrow amount into the freelancer wallet,
// creating it if absent, and logs the payment.
func (s *Service) creditFreelancer(ctx context.Context, tx store.Tx, esc domain.Escrow, now time.Time) (domain.Wallet, error) {
	w, err := wallet.GetOrCreateTx(ctx, tx, esc.FreelancerID, now)
	if err != nil {
		return domain.Wallet{}, err
	}

	entry := domain.Transaction{
		ID:        uuid.NewString(),
		UserID:    w.UserID,
		Amount:    esc.Amount,
		Currency:  esc.Currency,
		Type:      domain.TransactionPayment,
		Status:    domain.TransactionStatusCompleted,
		EscrowID:  esc.ID,
		CreatedAt: now,
	}
	w.Balance += esc.Amount
	w.TransactionIDs = append(w.TransactionIDs, entry.ID)
	w.UpdatedAt = now

	if err := tx.PutWallet(ctx, w); err != nil {
		return domain.Wallet{}, err
	}
	if err := tx.PutTransaction(ctx, entry); err != nil {
		return domain.Wallet{}, err
	}
	return w, nil
}

// refundClient removes the reserve entry and returns the escrow amount to the
// client balance, logging the refund. The fee stays with the platform.
func (s *Service) refundClient(ctx context.Context, tx store.Tx, esc domain.Escrow, now time.Time) (domain.Wallet, error) {
	w, err := tx.GetWallet(ctx, esc.ClientID)
	if err != nil {
		return domain.Wallet{}, err
	}

	entry := domain.Transaction{
		ID:        uuid.NewString(),
		UserID:    w.UserID,
		Amount:    esc.Amount,
		Currency:  esc.Currency,
		Type:      domain.TransactionRefund,
		Status:    domain.TransactionStatusCompleted,
		EscrowID:  esc.ID,
		CreatedAt: now,
	}
	w.RemoveReserve(esc.ID)
	w.Balance += esc.Amount
	w.TransactionIDs = append(w.TransactionIDs, entry.ID)
	w.UpdatedAt = now

	if err := tx.PutWallet(ctx, w); err != nil {
		return domain.Wallet{}, err
	}
	if err := tx.PutTransaction(ctx, entry); err != nil {
		return domain.Wallet{}, err
	}
	return w, nil
}
