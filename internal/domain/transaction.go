package domain

import "time"

// TransactionType classifies a ledger movement.
type TransactionType string

const (
	TransactionDeposit    TransactionType = "deposit"
	TransactionWithdrawal TransactionType = "withdrawal"
	TransactionPayment    TransactionType = "payment"
	TransactionRefund     TransactionType = "refund"
	TransactionEscrow     TransactionType = "escrow"
)

// TransactionStatusCompleted marks a committed movement.
const TransactionStatusCompleted = "completed"

// Transaction is an immutable ledger entry. Amount is signed: positive
// credits the user's wallet, negative debits it. For any user the sum of
// recorded amounts equals the wallet's current balance.
type Transaction struct {
	ID         string
	UserID     string
	Amount     int64
	Currency   string
	Type       TransactionType
	Status     string
	EscrowID   string
	GatewayRef string
	CreatedAt  time.Time
}
