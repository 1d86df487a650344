package wallet

import (
	"errors"
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/escrowhub/escrowhub/internal/domain"
)

// Handler exposes wallet HTTP endpoints.
type Handler struct {
	service *Service
}

// NewHandler builds a wallet HTTP handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

// Get returns the wallet for a user, creating it on first access.
func (h *Handler) Get(c *fiber.Ctx) error {
	w, err := h.service.GetOrCreate(c.UserContext(), c.Params("userId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Deposit funds the wallet through a payment method.
func (h *Handler) Deposit(c *fiber.Ctx) error {
	var req depositRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.Deposit(c.UserContext(), DepositInput{
		UserID:          c.Params("userId"),
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(movementResponse{
		Wallet:      toWalletResponse(result.Wallet),
		Transaction: toTransactionResponse(result.Transaction),
	})
}

// Withdraw debits the wallet's available balance.
func (h *Handler) Withdraw(c *fiber.Ctx) error {
	var req withdrawRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	result, err := h.service.Withdraw(c.UserContext(), WithdrawInput{
		UserID:          c.Params("userId"),
		Amount:          req.Amount,
		PaymentMethodID: req.PaymentMethodID,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(movementResponse{
		Wallet:      toWalletResponse(result.Wallet),
		Transaction: toTransactionResponse(result.Transaction),
	})
}

// AddMethod attaches a payment method to the wallet.
func (h *Handler) AddMethod(c *fiber.Ctx) error {
	var req methodRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(http.StatusBadRequest, err.Error())
	}
	method, w, err := h.service.AddPaymentMethod(c.UserContext(), c.Params("userId"), MethodSpec{
		Type:      req.Type,
		Label:     req.Label,
		CardToken: req.CardToken,
		Last4:     req.Last4,
		IsDefault: req.IsDefault,
	})
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusCreated).JSON(fiber.Map{
		"method": methodResponse{ID: method.ID, Type: method.Type, Label: method.Label, Last4: method.Last4, IsDefault: method.IsDefault},
		"wallet": toWalletResponse(w),
	})
}

// RemoveMethod detaches a payment method.
func (h *Handler) RemoveMethod(c *fiber.Ctx) error {
	w, err := h.service.RemovePaymentMethod(c.UserContext(), c.Params("userId"), c.Params("methodId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// SetDefaultMethod marks a payment method as the wallet default.
func (h *Handler) SetDefaultMethod(c *fiber.Ctx) error {
	w, err := h.service.SetDefaultPaymentMethod(c.UserContext(), c.Params("userId"), c.Params("methodId"))
	if err != nil {
		return httpError(err)
	}
	return c.Status(http.StatusOK).JSON(toWalletResponse(w))
}

// Transactions lists the wallet's ledger entries with pagination.
func (h *Handler) Transactions(c *fiber.Ctx) error {
	skip := c.QueryInt("skip", 0)
	limit := c.QueryInt("limit", 20)
	txs, total, err := h.service.ListTransactions(c.UserContext(), c.Params("userId"), skip, limit)
	if err != nil {
		return httpError(err)
	}
	items := []transactionResponse{}
	for _, tx := range txs {
		items = append(items, toTransactionResponse(tx))
	}
	return c.Status(http.StatusOK).JSON(fiber.Map{
		"transactions": items,
		"total":        total,
		"skip":         skip,
		"limit":        limit,
	})
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
