package businessflow

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
)

// SuppressionFlow manages the manual side of the do-not-send list
type SuppressionFlow interface {
	AddSuppression(ctx context.Context, req *dto.AddSuppressionRequest, metadata *ClientMetadata) (*dto.AddSuppressionResponse, error)
	ListSuppressions(ctx context.Context, req *dto.ListSuppressionsRequest) (*dto.ListSuppressionsResponse, error)
}

// SuppressionFlowImpl implements the suppression business flow
type SuppressionFlowImpl struct {
	suppressionRepo repository.SuppressionRepository
	auditRepo       repository.AuditLogRepository
}

// NewSuppressionFlow creates a new suppression flow instance
func NewSuppressionFlow(
	suppressionRepo repository.SuppressionRepository,
	auditRepo repository.AuditLogRepository,
) SuppressionFlow {
	return &SuppressionFlowImpl{
		suppressionRepo: suppressionRepo,
		auditRepo:       auditRepo,
	}
}

// AddSuppression inserts a manual do-not-send entry. Adding an address that
// is already suppressed is a no-op, not an error.
func (s *SuppressionFlowImpl) AddSuppression(ctx context.Context, req *dto.AddSuppressionRequest, metadata *ClientMetadata) (*dto.AddSuppressionResponse, error) {
	email := strings.ToLower(strings.TrimSpace(req.Email))
	if email == "" {
		return nil, NewBusinessError("SUPPRESSION_VALIDATION_FAILED", "Suppression validation failed", ErrSuppressionEmailRequired)
	}

	added, err := s.suppressionRepo.AddIfAbsent(ctx, &models.SuppressionEntry{
		Email:  email,
		Reason: req.Reason,
		Source: models.SuppressionSourceManual,
	})
	if err != nil {
		return nil, NewBusinessError("SUPPRESSION_ADD_FAILED", "Failed to add suppression entry", err)
	}

	if added {
		msg := fmt.Sprintf("Recipient %s suppressed manually", email)
		_ = recordAudit(ctx, s.auditRepo, nil, nil, models.AuditActionSuppressionAdded, msg, true, nil, metadata)
	}

	message := "Suppression entry added"
	if !added {
		message = "Address already suppressed"
	}
	return &dto.AddSuppressionResponse{Message: message, Added: added}, nil
}

// ListSuppressions pages through the do-not-send list, newest first
func (s *SuppressionFlowImpl) ListSuppressions(ctx context.Context, req *dto.ListSuppressionsRequest) (*dto.ListSuppressionsResponse, error) {
	page := req.Page
	if page < 1 {
		page = 1
	}
	limit := req.Limit
	if limit < 1 {
		limit = 50
	}

	entries, err := s.suppressionRepo.ByFilter(ctx, models.SuppressionEntryFilter{}, "created_at DESC", limit, (page-1)*limit)
	if err != nil {
		return nil, NewBusinessError("SUPPRESSION_LIST_FAILED", "Failed to list suppression entries", err)
	}
	total, err := s.suppressionRepo.Size(ctx)
	if err != nil {
		return nil, NewBusinessError("SUPPRESSION_LIST_FAILED", "Failed to measure suppression list", err)
	}

	out := make([]dto.SuppressionDTO, 0, len(entries))
	for _, e := range entries {
		out = append(out, dto.SuppressionDTO{
			Email:     e.Email,
			Reason:    e.Reason,
			Source:    string(e.Source),
			CreatedAt: e.CreatedAt.Format(time.RFC3339),
		})
	}

	return &dto.ListSuppressionsResponse{
		Message: "Suppression entries retrieved successfully",
		Entries: out,
		Total:   total,
	}, nil
}
