package handlers

import (
	"log"

	"github.com/amirphl/Susanoo/app/dto"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/amirphl/Susanoo/config"
	"github.com/gofiber/fiber/v3"
)

// WebhookHandlerInterface defines the contract for webhook handlers
type WebhookHandlerInterface interface {
	HandleDeliveryEvent(c fiber.Ctx) error
}

// WebhookHandler receives provider delivery event callbacks
type WebhookHandler struct {
	eventFlow businessflow.DeliveryEventFlow
	cfg       config.WebhookConfig
}

// NewWebhookHandler creates a new webhook handler
func NewWebhookHandler(eventFlow businessflow.DeliveryEventFlow, cfg config.WebhookConfig) *WebhookHandler {
	return &WebhookHandler{
		eventFlow: eventFlow,
		cfg:       cfg,
	}
}

func (h *WebhookHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

// HandleDeliveryEvent verifies and applies one provider callback. Unknown
// provider message ids answer 200 so the provider stops retrying.
func (h *WebhookHandler) HandleDeliveryEvent(c fiber.Ctx) error {
	header := h.cfg.SignatureHeader
	if header == "" {
		header = "X-Webhook-Signature"
	}

	result, err := h.eventFlow.HandleDeliveryEvent(requestContext(c), c.Body(), c.Get(header))
	if err != nil {
		if businessflow.IsSignatureRejected(err) {
			return h.ErrorResponse(c, fiber.StatusUnauthorized, "Signature verification failed", "INVALID_SIGNATURE", nil)
		}
		if businessflow.IsValidationFailure(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid delivery event", "INVALID_DELIVERY_EVENT", err.Error())
		}

		log.Println("Delivery event failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to process delivery event", "DELIVERY_EVENT_FAILED", nil)
	}

	return c.Status(fiber.StatusOK).JSON(result)
}
