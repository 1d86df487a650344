package gateway

import (
	"context"
	"errors"

	"github.com/google/uuid"
)

// ErrDeclined indicates the processor refused the authorization.
var ErrDeclined = errors.New("card authorization declined")

// Gateway represents a connector to an external card processor. It is invoked
// only for card-backed deposits; non-card deposits never touch it.
type Gateway interface {
	Authorize(ctx context.Context, input Authorization) (Decision, error)
}

// Authorization encapsulates the details of a card charge request.
type Authorization struct {
	CardToken string
	Amount    int64
	Currency  string
}

// Decision captures the processor's response.
type Decision struct {
	Reference string
	Status    string
}

// Static simulates a successful processor integration.
type Static struct{}

// Authorize approves the charge with a synthetic reference.
func (Static) Authorize(_ context.Context, _ Authorization) (Decision, error) {
	return Decision{Reference: uuid.NewString(), Status: "approved"}, nil
}
