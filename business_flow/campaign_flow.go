package businessflow

import (
	"context"
	"fmt"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// CampaignFlow handles the campaign lifecycle business logic
type CampaignFlow interface {
	CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error)
	ActivateCampaign(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *ClientMetadata) (*dto.CampaignTransitionResponse, error)
	PauseCampaign(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *ClientMetadata) (*dto.CampaignTransitionResponse, error)
	CompleteCampaign(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *ClientMetadata) (*dto.CampaignTransitionResponse, error)
	ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error)
}

// CampaignFlowImpl implements the campaign business flow
type CampaignFlowImpl struct {
	campaignRepo repository.CampaignRepository
	accountRepo  repository.EmailAccountRepository
	auditRepo    repository.AuditLogRepository
	db           *gorm.DB
}

// NewCampaignFlow creates a new campaign flow instance
func NewCampaignFlow(
	campaignRepo repository.CampaignRepository,
	accountRepo repository.EmailAccountRepository,
	auditRepo repository.AuditLogRepository,
	db *gorm.DB,
) CampaignFlow {
	return &CampaignFlowImpl{
		campaignRepo: campaignRepo,
		accountRepo:  accountRepo,
		auditRepo:    auditRepo,
		db:           db,
	}
}

// CreateCampaign creates a new campaign in draft status
func (s *CampaignFlowImpl) CreateCampaign(ctx context.Context, req *dto.CreateCampaignRequest, metadata *ClientMetadata) (*dto.CreateCampaignResponse, error) {
	if err := s.validateCreateCampaignRequest(ctx, req); err != nil {
		return nil, NewBusinessError("CAMPAIGN_VALIDATION_FAILED", "Campaign validation failed", err)
	}

	campaign := &models.Campaign{
		UUID:            uuid.New(),
		OwnerID:         req.OwnerID,
		Type:            models.CampaignType(req.Type),
		Status:          models.CampaignStatusDraft,
		Title:           req.Title,
		AccountID:       req.AccountID,
		DailyVolume:     req.DailyVolume,
		ProspectListID:  req.ProspectListID,
		TemplateSubject: req.TemplateSubject,
		TemplateBody:    req.TemplateBody,
		ReplyBody:       req.ReplyBody,
	}
	if req.SendWindow != nil {
		campaign.SendWindow = models.SendWindow{
			Timezone:  req.SendWindow.Timezone,
			StartHour: req.SendWindow.StartHour,
			EndHour:   req.SendWindow.EndHour,
		}
	}

	err := repository.WithTransaction(ctx, s.db, func(txCtx context.Context) error {
		return s.campaignRepo.Save(txCtx, campaign)
	})
	if err != nil {
		errMsg := fmt.Sprintf("Campaign creation failed: %s", err.Error())
		_ = recordAudit(ctx, s.auditRepo, nil, &req.AccountID, models.AuditActionCampaignCreated, errMsg, false, &errMsg, metadata)

		return nil, NewBusinessError("CAMPAIGN_CREATION_FAILED", "Campaign creation failed", err)
	}

	msg := fmt.Sprintf("Campaign created: %s", campaign.UUID.String())
	_ = recordAudit(ctx, s.auditRepo, &campaign.ID, &campaign.AccountID, models.AuditActionCampaignCreated, msg, true, nil, metadata)

	return &dto.CreateCampaignResponse{
		Message:   "Campaign created successfully",
		ID:        campaign.ID,
		UUID:      campaign.UUID.String(),
		Status:    string(campaign.Status),
		CreatedAt: campaign.CreatedAt.Format(time.RFC3339),
	}, nil
}

// ActivateCampaign transitions draft or paused campaigns to active. The
// connected account must hold usable credentials before any send is allowed.
func (s *CampaignFlowImpl) ActivateCampaign(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *ClientMetadata) (*dto.CampaignTransitionResponse, error) {
	campaign, err := s.getOwnedCampaign(ctx, req.UUID, req.OwnerID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusDraft && campaign.Status != models.CampaignStatusPaused {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_DENIED", "Campaign cannot be activated", ErrInvalidTransition)
	}

	account, err := s.accountRepo.ByID(ctx, campaign.AccountID)
	if err != nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to lookup email account", err)
	}
	if account == nil {
		return nil, NewBusinessError("ACCOUNT_LOOKUP_FAILED", "Failed to lookup email account", ErrAccountNotFound)
	}
	if account.Status == models.AccountStatusError {
		return nil, NewBusinessError("ACCOUNT_NOT_USABLE", "Connected account requires re-authorization", ErrAccountNotUsable)
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusActive, nil); err != nil {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_FAILED", "Campaign activation failed", err)
	}

	msg := fmt.Sprintf("Campaign activated: %s", campaign.UUID.String())
	_ = recordAudit(ctx, s.auditRepo, &campaign.ID, &campaign.AccountID, models.AuditActionCampaignActivated, msg, true, nil, metadata)

	return &dto.CampaignTransitionResponse{
		Message: "Campaign activated successfully",
		UUID:    campaign.UUID.String(),
		Status:  string(models.CampaignStatusActive),
	}, nil
}

// PauseCampaign transitions an active campaign to paused
func (s *CampaignFlowImpl) PauseCampaign(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *ClientMetadata) (*dto.CampaignTransitionResponse, error) {
	campaign, err := s.getOwnedCampaign(ctx, req.UUID, req.OwnerID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusActive {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_DENIED", "Campaign cannot be paused", ErrInvalidTransition)
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusPaused, req.Reason); err != nil {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_FAILED", "Campaign pause failed", err)
	}

	msg := fmt.Sprintf("Campaign paused: %s", campaign.UUID.String())
	if req.Reason != nil {
		msg = fmt.Sprintf("Campaign paused: %s (%s)", campaign.UUID.String(), *req.Reason)
	}
	_ = recordAudit(ctx, s.auditRepo, &campaign.ID, &campaign.AccountID, models.AuditActionCampaignPaused, msg, true, nil, metadata)

	return &dto.CampaignTransitionResponse{
		Message: "Campaign paused successfully",
		UUID:    campaign.UUID.String(),
		Status:  string(models.CampaignStatusPaused),
	}, nil
}

// CompleteCampaign transitions an active or paused campaign to completed
func (s *CampaignFlowImpl) CompleteCampaign(ctx context.Context, req *dto.CampaignTransitionRequest, metadata *ClientMetadata) (*dto.CampaignTransitionResponse, error) {
	campaign, err := s.getOwnedCampaign(ctx, req.UUID, req.OwnerID)
	if err != nil {
		return nil, err
	}

	if campaign.Status != models.CampaignStatusActive && campaign.Status != models.CampaignStatusPaused {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_DENIED", "Campaign cannot be completed", ErrInvalidTransition)
	}

	if err := s.campaignRepo.UpdateStatus(ctx, campaign.ID, models.CampaignStatusCompleted, nil); err != nil {
		return nil, NewBusinessError("CAMPAIGN_TRANSITION_FAILED", "Campaign completion failed", err)
	}

	msg := fmt.Sprintf("Campaign completed: %s", campaign.UUID.String())
	_ = recordAudit(ctx, s.auditRepo, &campaign.ID, &campaign.AccountID, models.AuditActionCampaignCompleted, msg, true, nil, metadata)

	return &dto.CampaignTransitionResponse{
		Message: "Campaign completed successfully",
		UUID:    campaign.UUID.String(),
		Status:  string(models.CampaignStatusCompleted),
	}, nil
}

// ListCampaigns lists campaigns of one owner, optionally filtered by status
func (s *CampaignFlowImpl) ListCampaigns(ctx context.Context, req *dto.ListCampaignsRequest) (*dto.ListCampaignsResponse, error) {
	filter := models.CampaignFilter{OwnerID: &req.OwnerID}
	if req.Status != nil {
		status := models.CampaignStatus(*req.Status)
		filter.Status = &status
	}

	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 20
	}

	campaigns, err := s.campaignRepo.ByFilter(ctx, filter, "created_at DESC", limit, (page-1)*limit)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to list campaigns", err)
	}
	total, err := s.campaignRepo.Count(ctx, filter)
	if err != nil {
		return nil, NewBusinessError("CAMPAIGN_LIST_FAILED", "Failed to count campaigns", err)
	}

	out := make([]dto.CampaignDTO, 0, len(campaigns))
	for _, c := range campaigns {
		out = append(out, dto.CampaignDTO{
			ID:              c.ID,
			UUID:            c.UUID.String(),
			Title:           c.Title,
			Type:            string(c.Type),
			Status:          string(c.Status),
			AccountID:       c.AccountID,
			DailyVolume:     c.DailyVolume,
			PauseReason:     c.PauseReason,
			LastScheduledAt: c.LastScheduledAt,
			CreatedAt:       c.CreatedAt,
		})
	}

	return &dto.ListCampaignsResponse{
		Message:   "Campaigns retrieved successfully",
		Campaigns: out,
		Total:     total,
	}, nil
}

func (s *CampaignFlowImpl) validateCreateCampaignRequest(ctx context.Context, req *dto.CreateCampaignRequest) error {
	if req.Title == "" {
		return ErrCampaignTitleRequired
	}
	if !models.CampaignType(req.Type).Valid() {
		return ErrInvalidCampaignType
	}
	if req.DailyVolume <= 0 {
		return ErrDailyVolumeRequired
	}
	if models.CampaignType(req.Type) == models.CampaignTypeOutreach {
		if req.ProspectListID == nil || req.TemplateSubject == nil || req.TemplateBody == nil {
			return ErrProspectSourceRequired
		}
	}

	account, err := s.accountRepo.ByID(ctx, req.AccountID)
	if err != nil {
		return err
	}
	if account == nil {
		return ErrAccountNotFound
	}
	return nil
}

func (s *CampaignFlowImpl) getOwnedCampaign(ctx context.Context, rawUUID string, ownerID uint) (*models.Campaign, error) {
	return getOwnedCampaignByUUID(ctx, s.campaignRepo, rawUUID, ownerID)
}
