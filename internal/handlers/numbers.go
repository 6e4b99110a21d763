package handlers

import (
	"errors"
	"log"

	"github.com/gofiber/fiber/v2"

	"github.com/nimbuscrm/nimbus-backend/internal/models"
	"github.com/nimbuscrm/nimbus-backend/internal/services"
)

// NumberHandler exposes the gateway control surface, keyed by numberId.
type NumberHandler struct {
	service *services.NumberService
}

// NewNumberHandler creates a new number handler
func NewNumberHandler(service *services.NumberService) *NumberHandler {
	return &NumberHandler{service: service}
}

// Create registers a number and starts its session
// POST /api/numbers
func (h *NumberHandler) Create(c *fiber.Ctx) error {
	var req models.NumberCreateRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}
	if req.NumberID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "numberId is required",
		})
	}

	info, err := h.service.Create(c.Context(), req)
	if err != nil {
		log.Printf("❌ Failed to create number %s: %v", req.NumberID, err)
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": err.Error(),
		})
	}

	return c.Status(fiber.StatusCreated).JSON(fiber.Map{
		"status":  info.Status,
		"message": "Session created - poll the QR endpoint to pair",
	})
}

// GetQR returns the current pairing payload
// GET /api/numbers/:id/qr
func (h *NumberHandler) GetQR(c *fiber.Ctx) error {
	info, err := h.service.GetQR(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}

	resp := fiber.Map{"status": info.Status}
	if info.QRCode != "" {
		resp["qrCode"] = info.QRCode
	}
	return c.JSON(resp)
}

// GetStatus returns the live session snapshot
// GET /api/numbers/:id/status
func (h *NumberHandler) GetStatus(c *fiber.Ctx) error {
	info, err := h.service.GetStatus(c.Params("id"))
	if err != nil {
		return notFound(c, err)
	}

	return c.JSON(fiber.Map{
		"status":      info.Status,
		"phoneNumber": info.PhoneNumber,
		"pushName":    info.DisplayName,
		"connectedAt": info.ConnectedAt,
	})
}

// SendText sends a text message from the number's session
// POST /api/numbers/:id/send
func (h *NumberHandler) SendText(c *fiber.Ctx) error {
	var req models.SendTextRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}
	if req.To == "" || req.Text == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both 'to' and 'text' are required",
		})
	}

	messageID, err := h.service.SendText(c.Context(), c.Params("id"), req.To, req.Text)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":    "sent",
		"messageId": messageID,
	})
}

// SendMedia sends a media message from the number's session
// POST /api/numbers/:id/send-media
func (h *NumberHandler) SendMedia(c *fiber.Ctx) error {
	var req models.SendMediaRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request payload",
		})
	}
	if req.To == "" || req.Media == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Both 'to' and 'media' are required",
		})
	}

	messageID, err := h.service.SendMedia(c.Context(), c.Params("id"), req)
	if err != nil {
		return sendError(c, err)
	}

	return c.JSON(fiber.Map{
		"status":    "sent",
		"messageId": messageID,
	})
}

// Disconnect closes the session, preserving credentials
// POST /api/numbers/:id/disconnect
func (h *NumberHandler) Disconnect(c *fiber.Ctx) error {
	if err := h.service.Disconnect(c.Params("id")); err != nil {
		return notFound(c, err)
	}
	return c.JSON(fiber.Map{
		"status":  "disconnected",
		"message": "Session disconnected - credentials preserved",
	})
}

// Delete erases credentials and removes the number
// DELETE /api/numbers/:id
func (h *NumberHandler) Delete(c *fiber.Ctx) error {
	if err := h.service.Delete(c.Params("id")); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"status":  "deleted",
		"message": "Number and credentials removed",
	})
}

// List returns all registered numbers with live status
// GET /api/numbers
func (h *NumberHandler) List(c *fiber.Ctx) error {
	numbers, err := h.service.List()
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"count":   len(numbers),
		"numbers": numbers,
	})
}

func notFound(c *fiber.Ctx, err error) error {
	if errors.Is(err, services.ErrSessionNotFound) {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Number has no active session",
		})
	}
	return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
		"error": err.Error(),
	})
}

func sendError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, services.ErrSessionNotFound):
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Number has no active session",
		})
	case errors.Is(err, services.ErrNotConnected):
		return c.Status(fiber.StatusConflict).JSON(fiber.Map{
			"error": "Session is not connected",
		})
	default:
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
}
