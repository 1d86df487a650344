package escrow

import (
	"time"

	"github.com/escrowhub/escrowhub/internal/domain"
)

type createRequest struct {
	ClientID        string `json:"client_id"`
	FreelancerID    string `json:"freelancer_id"`
	ServiceName     string `json:"service_name"`
	Description     string `json:"description"`
	Amount          int64  `json:"amount"`
	Currency        string `json:"currency"`
	PaymentMethodID string `json:"payment_method_id"`
	Terms           string `json:"terms"`
}

type startRequest struct {
	FreelancerID string `json:"freelancer_id"`
}

type deliverRequest struct {
	FreelancerID string   `json:"freelancer_id"`
	Message      string   `json:"message"`
	Files        []string `json:"files"`
}

type approveRequest struct {
	ClientID string `json:"client_id"`
	Rating   int    `json:"rating"`
	Feedback string `json:"feedback"`
}

type rejectRequest struct {
	ClientID string `json:"client_id"`
	Reason   string `json:"reason"`
}

type resolveRequest struct {
	Outcome string `json:"outcome"`
}

type cancelRequest struct {
	ClientID string `json:"client_id"`
}

type escrowResponse struct {
	ID            string     `json:"id"`
	ClientID      string     `json:"client_id"`
	FreelancerID  string     `json:"freelancer_id"`
	ServiceName   string     `json:"service_name"`
	Description   string     `json:"description,omitempty"`
	Amount        int64      `json:"amount"`
	PlatformFee   int64      `json:"platform_fee"`
	Currency      string     `json:"currency"`
	Status        string     `json:"status"`
	Terms         string     `json:"terms,omitempty"`
	Message       string     `json:"delivery_message,omitempty"`
	Files         []string   `json:"delivery_files,omitempty"`
	Rating        int        `json:"rating,omitempty"`
	Feedback      string     `json:"feedback,omitempty"`
	DisputeReason string     `json:"dispute_reason,omitempty"`
	TransactionID string     `json:"transaction_id"`
	CreatedAt     time.Time  `json:"created_at"`
	FundedAt      *time.Time `json:"funded_at,omitempty"`
	StartedAt     *time.Time `json:"started_at,omitempty"`
	DeliveredAt   *time.Time `json:"delivered_at,omitempty"`
	ApprovedAt    *time.Time `json:"approved_at,omitempty"`
	DisputedAt    *time.Time `json:"disputed_at,omitempty"`
	ResolvedAt    *time.Time `json:"resolved_at,omitempty"`
	CancelledAt   *time.Time `json:"cancelled_at,omitempty"`
}

func toEscrowResponse(e domain.Escrow) escrowResponse {
	return escrowResponse{
		ID:            e.ID,
		ClientID:      e.ClientID,
		FreelancerID:  e.FreelancerID,
		ServiceName:   e.ServiceName,
		Description:   e.Description,
		Amount:        e.Amount,
		PlatformFee:   e.PlatformFee,
		Currency:      e.Currency,
		Status:        string(e.Status),
		Terms:         e.Terms,
		Message:       e.Delivery.Message,
		Files:         e.Delivery.Files,
		Rating:        e.Rating,
		Feedback:      e.Feedback,
		DisputeReason: e.DisputeReason,
		TransactionID: e.TransactionID,
		CreatedAt:     e.CreatedAt,
		FundedAt:      optionalTime(e.FundedAt),
		StartedAt:     optionalTime(e.StartedAt),
		DeliveredAt:   optionalTime(e.DeliveredAt),
		ApprovedAt:    optionalTime(e.ApprovedAt),
		DisputedAt:    optionalTime(e.DisputedAt),
		ResolvedAt:    optionalTime(e.ResolvedAt),
		CancelledAt:   optionalTime(e.CancelledAt),
	}
}

func optionalTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
