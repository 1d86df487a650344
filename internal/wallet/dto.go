package wallet

import (
	"time"

	"github.com/escrowhub/escrowhub/internal/domain"
)

type depositRequest struct {
	Amount          int64  `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

type withdrawRequest struct {
	Amount          int64  `json:"amount"`
	PaymentMethodID string `json:"payment_method_id"`
}

type methodRequest struct {
	Type      string `json:"type"`
	Label     string `json:"label"`
	CardToken string `json:"card_token"`
	Last4     string `json:"last4"`
	IsDefault bool   `json:"is_default"`
}

type methodResponse struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	Label     string `json:"label"`
	Last4     string `json:"last4"`
	IsDefault bool   `json:"is_default"`
}

type reserveResponse struct {
	EscrowID string `json:"escrow_id"`
	Amount   int64  `json:"amount"`
}

type walletResponse struct {
	UserID           string            `json:"user_id"`
	Balance          int64             `json:"balance"`
	ReservedBalance  int64             `json:"reserved_balance"`
	AvailableBalance int64             `json:"available_balance"`
	Currency         string            `json:"currency"`
	PaymentMethods   []methodResponse  `json:"payment_methods"`
	EscrowReserves   []reserveResponse `json:"escrow_reserves"`
}

type transactionResponse struct {
	ID        string    `json:"id"`
	UserID    string    `json:"user_id"`
	Amount    int64     `json:"amount"`
	Currency  string    `json:"currency"`
	Type      string    `json:"type"`
	Status    string    `json:"status"`
	EscrowID  string    `json:"escrow_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type movementResponse struct {
	Wallet      walletResponse      `json:"wallet"`
	Transaction transactionResponse `json:"transaction"`
}

func toWalletResponse(w domain.Wallet) walletResponse {
	resp := walletResponse{
		UserID:           w.UserID,
		Balance:          w.Balance,
		ReservedBalance:  w.ReservedBalance,
		AvailableBalance: w.Available(),
		Currency:         w.Currency,
		PaymentMethods:   []methodResponse{},
		EscrowReserves:   []reserveResponse{},
	}
	for _, m := range w.PaymentMethods {
		resp.PaymentMethods = append(resp.PaymentMethods, methodResponse{
			ID: m.ID, Type: m.Type, Label: m.Label, Last4: m.Last4, IsDefault: m.IsDefault,
		})
	}
	for _, r := range w.EscrowReserves {
		resp.EscrowReserves = append(resp.EscrowReserves, reserveResponse{EscrowID: r.EscrowID, Amount: r.Amount})
	}
	return resp
}

func toTransactionResponse(tx domain.Transaction) transactionResponse {
	return transactionResponse{
		ID:        tx.ID,
		UserID:    tx.UserID,
		Amount:    tx.Amount,
		Currency:  tx.Currency,
		Type:      string(tx.Type),
		Status:    tx.Status,
		EscrowID:  tx.EscrowID,
		CreatedAt: tx.CreatedAt,
	}
}
