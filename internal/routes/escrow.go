package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/escrowhub/escrowhub/internal/escrow"
)

// RegisterEscrowRoutes wires escrow lifecycle endpoints.
func RegisterEscrowRoutes(r fiber.Router, h *escrow.Handler) {
	r.Post("/escrows", h.Create)
	r.Get("/escrows", h.List)
	r.Get("/escrows/:escrowId", h.Get)
	r.Post("/escrows/:escrowId/start", h.Start)
	r.Post("/escrows/:escrowId/deliver", h.Deliver)
	r.Post("/escrows/:escrowId/approve", h.Approve)
	r.Post("/escrows/:escrowId/reject", h.Reject)
	r.Post("/escrows/:escrowId/resolve", h.Resolve)
	r.Post("/escrows/:escrowId/cancel", h.Cancel)
}
