package handlers

import (
	"log"
	"strconv"

	"github.com/amirphl/Susanoo/app/dto"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// PipelineHandlerInterface defines the contract for pipeline handlers
type PipelineHandlerInterface interface {
	EnqueueCampaign(c fiber.Ctx) error
	DrainQueue(c fiber.Ctx) error
	QueueStats(c fiber.Ctx) error
	AddSuppression(c fiber.Ctx) error
	ListSuppressions(c fiber.Ctx) error
}

// PipelineHandler handles send queue and suppression HTTP requests
type PipelineHandler struct {
	pipelineFlow    businessflow.PipelineFlow
	suppressionFlow businessflow.SuppressionFlow
	validator       *validator.Validate
}

// NewPipelineHandler creates a new pipeline handler
func NewPipelineHandler(pipelineFlow businessflow.PipelineFlow, suppressionFlow businessflow.SuppressionFlow) *PipelineHandler {
	return &PipelineHandler{
		pipelineFlow:    pipelineFlow,
		suppressionFlow: suppressionFlow,
		validator:       validator.New(),
	}
}

func (h *PipelineHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *PipelineHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// EnqueueCampaign schedules the next pacing batch of one campaign
func (h *PipelineHandler) EnqueueCampaign(c fiber.Ctx) error {
	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	req := dto.EnqueueRequest{UUID: c.Params("uuid"), OwnerID: ownerID}
	result, err := h.pipelineFlow.Enqueue(requestContext(c), &req)
	if err != nil {
		switch {
		case businessflow.IsCampaignNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		case businessflow.IsCampaignAccessDenied(err):
			return h.ErrorResponse(c, fiber.StatusForbidden, "Campaign access denied", "CAMPAIGN_ACCESS_DENIED", nil)
		case businessflow.IsCampaignNotActive(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Campaign is not active", "CAMPAIGN_NOT_ACTIVE", nil)
		}

		log.Println("Campaign enqueue failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to enqueue campaign", "ENQUEUE_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// DrainQueue dispatches one batch of due messages
func (h *PipelineHandler) DrainQueue(c fiber.Ctx) error {
	var req dto.DrainQueueRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorList(err))
	}

	result, err := h.pipelineFlow.DrainQueue(requestContext(c), &req)
	if err != nil {
		log.Println("Queue drain failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to drain queue", "DRAIN_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// QueueStats reports queue depth per status and the suppression list size
func (h *PipelineHandler) QueueStats(c fiber.Ctx) error {
	result, err := h.pipelineFlow.QueueStats(requestContext(c))
	if err != nil {
		log.Println("Queue stats failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to read queue stats", "QUEUE_STATS_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, "Queue stats retrieved successfully", result)
}

// AddSuppression inserts a manual do-not-send entry
func (h *PipelineHandler) AddSuppression(c fiber.Ctx) error {
	var req dto.AddSuppressionRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorList(err))
	}

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.suppressionFlow.AddSuppression(requestContext(c), &req, metadata)
	if err != nil {
		if businessflow.IsValidationFailure(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Suppression validation failed", "SUPPRESSION_VALIDATION_FAILED", err.Error())
		}

		log.Println("Suppression insert failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to add suppression", "SUPPRESSION_FAILED", nil)
	}

	status := fiber.StatusOK
	if result.Added {
		status = fiber.StatusCreated
	}
	return h.SuccessResponse(c, status, result.Message, result)
}

// ListSuppressions pages through the do-not-send list
func (h *PipelineHandler) ListSuppressions(c fiber.Ctx) error {
	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "50"))
	req := dto.ListSuppressionsRequest{Page: page, Limit: limit}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorList(err))
	}

	result, err := h.suppressionFlow.ListSuppressions(requestContext(c), &req)
	if err != nil {
		log.Println("Suppression listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list suppressions", "SUPPRESSION_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}
