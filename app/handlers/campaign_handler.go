package handlers

import (
	"context"
	"log"
	"strconv"

	"github.com/amirphl/Susanoo/app/dto"
	businessflow "github.com/amirphl/Susanoo/business_flow"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"
)

// CampaignHandlerInterface defines the contract for campaign handlers
type CampaignHandlerInterface interface {
	CreateCampaign(c fiber.Ctx) error
	ActivateCampaign(c fiber.Ctx) error
	PauseCampaign(c fiber.Ctx) error
	CompleteCampaign(c fiber.Ctx) error
	ListCampaigns(c fiber.Ctx) error
	DownloadCampaignReport(c fiber.Ctx) error
}

// CampaignHandler handles campaign-related HTTP requests
type CampaignHandler struct {
	campaignFlow businessflow.CampaignFlow
	reportFlow   businessflow.ReportFlow
	validator    *validator.Validate
}

// NewCampaignHandler creates a new campaign handler
func NewCampaignHandler(campaignFlow businessflow.CampaignFlow, reportFlow businessflow.ReportFlow) *CampaignHandler {
	return &CampaignHandler{
		campaignFlow: campaignFlow,
		reportFlow:   reportFlow,
		validator:    validator.New(),
	}
}

func (h *CampaignHandler) ErrorResponse(c fiber.Ctx, statusCode int, message, errorCode string, details any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: false,
		Message: message,
		Error: dto.ErrorDetail{
			Code:    errorCode,
			Details: details,
		},
	})
}

func (h *CampaignHandler) SuccessResponse(c fiber.Ctx, statusCode int, message string, data any) error {
	return c.Status(statusCode).JSON(dto.APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	})
}

// CreateCampaign handles the campaign creation process
func (h *CampaignHandler) CreateCampaign(c fiber.Ctx) error {
	var req dto.CreateCampaignRequest
	if err := c.Bind().JSON(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorList(err))
	}

	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}
	req.OwnerID = ownerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := h.campaignFlow.CreateCampaign(requestContext(c), &req, metadata)
	if err != nil {
		if businessflow.IsValidationFailure(err) {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Campaign validation failed", "CAMPAIGN_VALIDATION_FAILED", err.Error())
		}

		log.Println("Campaign creation failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign creation failed", "CAMPAIGN_CREATION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusCreated, "Campaign created successfully", result)
}

// ActivateCampaign handles the draft/paused to active transition
func (h *CampaignHandler) ActivateCampaign(c fiber.Ctx) error {
	return h.transition(c, "activate", h.campaignFlow.ActivateCampaign)
}

// PauseCampaign handles the active to paused transition
func (h *CampaignHandler) PauseCampaign(c fiber.Ctx) error {
	return h.transition(c, "pause", h.campaignFlow.PauseCampaign)
}

// CompleteCampaign handles the transition to the terminal completed status
func (h *CampaignHandler) CompleteCampaign(c fiber.Ctx) error {
	return h.transition(c, "complete", h.campaignFlow.CompleteCampaign)
}

type transitionFunc func(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *businessflow.ClientMetadata) (*dto.CampaignTransitionResponse, error)

func (h *CampaignHandler) transition(c fiber.Ctx, name string, fn transitionFunc) error {
	var req dto.CampaignTransitionRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return h.ErrorResponse(c, fiber.StatusBadRequest, "Invalid request body", "INVALID_REQUEST", err.Error())
		}
	}
	req.UUID = c.Params("uuid")

	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}
	req.OwnerID = ownerID

	metadata := businessflow.NewClientMetadata(c.IP(), c.Get("User-Agent"))
	result, err := fn(requestContext(c), &req, metadata)
	if err != nil {
		switch {
		case businessflow.IsCampaignNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		case businessflow.IsCampaignAccessDenied(err):
			return h.ErrorResponse(c, fiber.StatusForbidden, "Campaign access denied", "CAMPAIGN_ACCESS_DENIED", nil)
		case businessflow.IsInvalidTransition(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Transition not allowed", "CAMPAIGN_TRANSITION_DENIED", nil)
		case businessflow.IsAccountNotUsable(err):
			return h.ErrorResponse(c, fiber.StatusConflict, "Connected account requires re-authorization", "ACCOUNT_NOT_USABLE", nil)
		}

		log.Printf("Campaign %s failed: %v", name, err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Campaign transition failed", "CAMPAIGN_TRANSITION_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// ListCampaigns lists campaigns of the authenticated owner
func (h *CampaignHandler) ListCampaigns(c fiber.Ctx) error {
	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	page, _ := strconv.Atoi(c.Query("page", "1"))
	limit, _ := strconv.Atoi(c.Query("limit", "20"))
	req := dto.ListCampaignsRequest{
		OwnerID: ownerID,
		Page:    page,
		Limit:   limit,
	}
	if status := c.Query("status"); status != "" {
		req.Status = &status
	}

	if err := h.validator.Struct(&req); err != nil {
		return h.ErrorResponse(c, fiber.StatusBadRequest, "Validation failed", "VALIDATION_ERROR", validationErrorList(err))
	}

	result, err := h.campaignFlow.ListCampaigns(requestContext(c), &req)
	if err != nil {
		log.Println("Campaign listing failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to list campaigns", "CAMPAIGN_LIST_FAILED", nil)
	}

	return h.SuccessResponse(c, fiber.StatusOK, result.Message, result)
}

// DownloadCampaignReport streams the xlsx delivery report for one campaign
func (h *CampaignHandler) DownloadCampaignReport(c fiber.Ctx) error {
	ownerID, ok := c.Locals("owner_id").(uint)
	if !ok {
		return h.ErrorResponse(c, fiber.StatusUnauthorized, "Owner ID not found in context", "MISSING_OWNER_ID", nil)
	}

	req := dto.CampaignReportRequest{UUID: c.Params("uuid"), OwnerID: ownerID}
	filename, content, err := h.reportFlow.GenerateCampaignReport(requestContext(c), &req)
	if err != nil {
		switch {
		case businessflow.IsCampaignNotFound(err):
			return h.ErrorResponse(c, fiber.StatusNotFound, "Campaign not found", "CAMPAIGN_NOT_FOUND", nil)
		case businessflow.IsCampaignAccessDenied(err):
			return h.ErrorResponse(c, fiber.StatusForbidden, "Campaign access denied", "CAMPAIGN_ACCESS_DENIED", nil)
		}

		log.Println("Campaign report failed", err)
		return h.ErrorResponse(c, fiber.StatusInternalServerError, "Failed to generate report", "REPORT_FAILED", nil)
	}

	c.Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	c.Set("Content-Disposition", `attachment; filename="`+filename+`"`)
	return c.Send(content)
}
