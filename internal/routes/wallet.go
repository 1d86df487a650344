package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/escrowhub/escrowhub/internal/wallet"
)

// RegisterWalletRoutes wires wallet-related endpoints.
func RegisterWalletRoutes(r fiber.Router, h *wallet.Handler) {
	r.Get("/wallets/:userId", h.Get)
	r.Post("/wallets/:userId/deposit", h.Deposit)
	r.Post("/wallets/:userId/withdraw", h.Withdraw)
	r.Get("/wallets/:userId/transactions", h.Transactions)
	r.Post("/wallets/:userId/payment-methods", h.AddMethod)
	r.Delete("/wallets/:userId/payment-methods/:methodId", h.RemoveMethod)
	r.Put("/wallets/:userId/payment-methods/:methodId/default", h.SetDefaultMethod)
}
