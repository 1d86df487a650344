package escrow

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/escrowhub/escrowhub/internal/domain"
)

// Handler exposes escrow HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds an escrow HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Create funds a new escrow from the client wallet.
func (h *Handler) Create(c *fiber.Ctx) error {
	var req createRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.Create(c.UserContext(), CreateInput{
		ClientID:        req.ClientID,
		FreelancerID:    req.FreelancerID,
		ServiceName:     req.ServiceName,
		Description:     req.Description,
		Amount:          req.Amount,
		Currency:        req.Currency,
		PaymentMethodID: req.PaymentMethodID,
		Terms:           req.Terms,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"escrow": toEscrowResponse(result.Escrow),
		"client_wallet": fiber.Map{
			"balance":          result.ClientWallet.Balance,
			"reserved_balance": result.ClientWallet.ReservedBalance,
			"available":        result.ClientWallet.Available(),
		},
	})
}

// Get fetches one escrow.
func (h *Handler) Get(c *fiber.Ctx) error {
	esc, err := h.service.Get(c.UserContext(), c.Params("escrowId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(esc))
}

// List returns escrows for a user, paginated.
func (h *Handler) List(c *fiber.Ctx) error {
	skip := c.QueryInt("skip", 0)
	limit := c.QueryInt("limit", 20)
	escrows, total, err := h.service.ListByUser(c.UserContext(), c.Query("user_id"), skip, limit)
	if err != nil {
		return httpError(err)
	}
	items := []escrowResponse{}
	for _, e := range escrows {
		items = append(items, toEscrowResponse(e))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"escrows": items,
		"total":   total,
		"skip":    skip,
		"limit":   limit,
	})
}

// Start marks the escrow as in progress.
func (h *Handler) Start(c *fiber.Ctx) error {
	var req startRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	esc, err := h.service.Start(c.UserContext(), c.Params("escrowId"), req.FreelancerID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(esc))
}

// Deliver records the freelancer's delivery.
func (h *Handler) Deliver(c *fiber.Ctx) error {
	var req deliverRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	esc, err := h.service.Deliver(c.UserContext(), DeliverInput{
		EscrowID:     c.Params("escrowId"),
		FreelancerID: req.FreelancerID,
		Message:      req.Message,
		Files:        req.Files,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(esc))
}

// Approve releases the held funds to the freelancer.
func (h *Handler) Approve(c *fiber.Ctx) error {
	var req approveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.Approve(c.UserContext(), ApproveInput{
		EscrowID: c.Params("escrowId"),
		ClientID: req.ClientID,
		Rating:   req.Rating,
		Feedback: req.Feedback,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"escrow": toEscrowResponse(result.Escrow),
		"client_wallet": fiber.Map{
			"balance":          result.ClientWallet.Balance,
			"reserved_balance": result.ClientWallet.ReservedBalance,
		},
		"freelancer_wallet": fiber.Map{
			"balance": result.FreelancerWallet.Balance,
		},
	})
}

// Reject disputes the delivered work.
func (h *Handler) Reject(c *fiber.Ctx) error {
	var req rejectRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	esc, err := h.service.Reject(c.UserContext(), RejectInput{
		EscrowID: c.Params("escrowId"),
		ClientID: req.ClientID,
		Reason:   req.Reason,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(esc))
}

// Resolve settles a disputed escrow with an externally decided outcome.
func (h *Handler) Resolve(c *fiber.Ctx) error {
	var req resolveRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	esc, err := h.service.Resolve(c.UserContext(), ResolveInput{
		EscrowID: c.Params("escrowId"),
		Outcome:  domain.EscrowStatus(req.Outcome),
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(esc))
}

// Cancel voids a funded escrow before work starts.
func (h *Handler) Cancel(c *fiber.Ctx) error {
	var req cancelRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	esc, err := h.service.Cancel(c.UserContext(), c.Params("escrowId"), req.ClientID)
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toEscrowResponse(esc))
}

func httpError(err error) error {
	var validation *domain.ValidationError
	var notFound *domain.NotFoundError
	var insufficient *domain.InsufficientFundsError
	var invalidState *domain.InvalidStateError
	var notAuthorized *domain.NotAuthorizedError
	var storeFailure *domain.StoreError

	switch {
	case errors.As(err, &validation):
		return fiber.NewError(http.StatusBadRequest, err.Error())
	case errors.As(err, &notFound):
		return fiber.NewError(http.StatusNotFound, err.Error())
	case errors.As(err, &insufficient):
		return fiber.NewError(http.StatusPaymentRequired, err.Error())
	case errors.As(err, &invalidState):
		return fiber.NewError(http.StatusConflict, err.Error())
	case errors.As(err, &notAuthorized):
		return fiber.NewError(http.StatusForbidden, err.Error())
	case errors.As(err, &storeFailure):
		return fiber.NewError(http.StatusServiceUnavailable, err.Error())
	default:
		return fiber.NewError(http.StatusInternalServerError, err.Error())
	}
}
