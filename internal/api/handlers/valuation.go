/**
 * @description
 * Valuation API Handlers.
 * Exposes the tiered resolver over HTTP.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"errors"

	"github.com/autovalor/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type ValuationHandler struct {
	Service *services.ValuationService
}

func NewValuationHandler(service *services.ValuationService) *ValuationHandler {
	return &ValuationHandler{Service: service}
}

// GetValuation resolves a value estimate for one vehicle
// GET /api/v1/valuations?vin=...&make=...&model=...&year=...&mileage=...&state=...
func (h *ValuationHandler) GetValuation(c *fiber.Ctx) error {
	ctx := c.Context()

	req := services.ResolveRequest{
		VIN:   c.Query("vin"),
		Make:  c.Query("make"),
		Model: c.Query("model"),
		Year:  c.QueryInt("year", 0),
		State: c.Query("state"),
	}
	if m := c.QueryInt("mileage", -1); m >= 0 {
		req.Mileage = &m
	}

	est, err := h.Service.Resolve(ctx, req)
	if err != nil {
		if errors.Is(err, services.ErrInsufficientIdentity) {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "provide a vin, or a make, model and year",
			})
		}
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to resolve valuation",
		})
	}
	return c.JSON(est)
}
