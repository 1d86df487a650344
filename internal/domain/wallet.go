package domain

import "time"

// Payment method types. Card methods require a gateway authorization before a
// deposit is posted; other types post directly.
const (
	MethodTypeCard        = "card"
	MethodTypeBankAccount = "bank_account"
	MethodTypeMobileMoney = "mobile_money"
)

// PaymentMethod is a funding instrument attached to a wallet. At most one
// method per wallet carries IsDefault, and exactly one does whenever the
// wallet has any methods at all.
type PaymentMethod struct {
	ID        string
	Type      string
	Label     string
	CardToken string
	Last4     string
	IsDefault bool
	AddedAt   time.Time
}

// EscrowReserve earmarks part of a wallet balance for one open escrow.
type EscrowReserve struct {
	EscrowID string
	Amount   int64
}

// Wallet is the per-user balance record. ReservedBalance is derived: it must
// equal the sum of EscrowReserves amounts after every committed operation,
// and Balance - ReservedBalance (the available balance) never goes negative.
type Wallet struct {
	UserID          string
	Balance         int64
	ReservedBalance int64
	Currency        string
	EscrowReserves  []EscrowReserve
	PaymentMethods  []PaymentMethod
	TransactionIDs  []string
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Available returns the portion of the balance not reserved for open escrows.
func (w Wallet) Available() int64 {
	return w.Balance - w.ReservedBalance
}

// Method looks up a payment method by identifier.
func (w Wallet) Method(id string) (PaymentMethod, bool) {
	for _, m := range w.PaymentMethods {
		if m.ID == id {
			return m, true
		}
	}
	return PaymentMethod{}, false
}

// Reserve looks up the reserve entry for an escrow.
func (w Wallet) Reserve(escrowID string) (EscrowReserve, bool) {
	for _, r := range w.EscrowReserves {
		if r.EscrowID == escrowID {
			return r, true
		}
	}
	return EscrowReserve{}, false
}

// AddReserve appends a reserve entry and recomputes ReservedBalance.
func (w *Wallet) AddReserve(escrowID string, amount int64) {
	w.EscrowReserves = append(w.EscrowReserves, EscrowReserve{EscrowID: escrowID, Amount: amount})
	w.recomputeReserved()
}

// RemoveReserve drops the reserve entry for an escrow, if present, and
// recomputes ReservedBalance from the remaining entries.
func (w *Wallet) RemoveReserve(escrowID string) {
	kept := w.EscrowReserves[:0]
	for _, r := range w.EscrowReserves {
		if r.EscrowID != escrowID {
			kept = append(kept, r)
		}
	}
	w.EscrowReserves = kept
	w.recomputeReserved()
}

func (w *Wallet) recomputeReserved() {
	var total int64
	for _, r := range w.EscrowReserves {
		total += r.Amount
	}
	w.ReservedBalance = total
}
