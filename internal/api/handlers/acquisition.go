/**
 * @description
 * Acquisition API Handlers.
 * Triggers scrape jobs and the valuation refresh on demand.
 *
 * @dependencies
 * - github.com/gofiber/fiber/v2
 * - backend/internal/services
 */

package handlers

import (
	"github.com/autovalor/backend/internal/services"
	"github.com/gofiber/fiber/v2"
)

type AcquisitionHandler struct {
	Service *services.AcquisitionService
}

func NewAcquisitionHandler(service *services.AcquisitionService) *AcquisitionHandler {
	return &AcquisitionHandler{Service: service}
}

// CreateJob runs one acquisition job synchronously and returns its outcome
// POST /api/v1/acquisition/jobs
func (h *AcquisitionHandler) CreateJob(c *fiber.Ctx) error {
	ctx := c.Context()

	var params services.JobParams
	if err := c.BodyParser(&params); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	result, err := h.Service.RunJob(ctx, params)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.Status(fiber.StatusCreated).JSON(result)
}

// RefreshValuations re-aggregates stored listings into valuation rows
// POST /api/v1/valuations/refresh
func (h *AcquisitionHandler) RefreshValuations(c *fiber.Ctx) error {
	ctx := c.Context()

	var req struct {
		MinSampleSize int `json:"min_sample_size"`
	}
	if len(c.Body()) > 0 {
		if err := c.BodyParser(&req); err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "invalid request body",
			})
		}
	}

	result, err := h.Service.RefreshValuations(ctx, req.MinSampleSize)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to refresh valuations",
		})
	}
	return c.JSON(result)
}
