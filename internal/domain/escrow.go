package domain

import "time"

// EscrowStatus is the closed set of escrow lifecycle states. Transition sites
// switch over every value so a new state cannot silently fall through.
type EscrowStatus string

const (
	// EscrowStatusFunded is the first externally observable state: funding
	// happens inside the create operation itself.
	EscrowStatusFunded     EscrowStatus = "funded"
	EscrowStatusInProgress EscrowStatus = "in_progress"
	EscrowStatusDelivered  EscrowStatus = "delivered"
	EscrowStatusDisputed   EscrowStatus = "disputed"

	// Terminal states. No reserve entry may exist for the escrow once it
	// reaches any of these.
	EscrowStatusApproved  EscrowStatus = "approved"
	EscrowStatusRefunded  EscrowStatus = "refunded"
	EscrowStatusReleased  EscrowStatus = "released"
	EscrowStatusCancelled EscrowStatus = "cancelled"
)

// Terminal reports whether the status admits no further transitions.
func (s EscrowStatus) Terminal() bool {
	switch s {
	case EscrowStatusApproved, EscrowStatusRefunded, EscrowStatusReleased, EscrowStatusCancelled:
		return true
	case EscrowStatusFunded, EscrowStatusInProgress, EscrowStatusDelivered, EscrowStatusDisputed:
		return false
	}
	return false
}

// Delivery is the payload attached when the freelancer delivers work.
type Delivery struct {
	Message string
	Files   []string
}

// Escrow is a funds-in-trust agreement between a client and a freelancer.
// While the status is funded, in_progress, delivered or disputed the client
// wallet carries exactly one reserve entry equal to Amount; terminal states
// carry none. PlatformFee is taken at funding time and never returned.
type Escrow struct {
	ID            string
	ClientID      string
	FreelancerID  string
	ServiceName   string
	Description   string
	Amount        int64
	PlatformFee   int64
	Currency      string
	Status        EscrowStatus
	Terms         string
	Delivery      Delivery
	Rating        int
	Feedback      string
	DisputeReason string
	TransactionID string

	CreatedAt   time.Time
	FundedAt    time.Time
	StartedAt   time.Time
	DeliveredAt time.Time
	ApprovedAt  time.Time
	DisputedAt  time.Time
	ResolvedAt  time.Time
	CancelledAt time.Time
}
