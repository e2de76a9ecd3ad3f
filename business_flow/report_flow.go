package businessflow

import (
	"context"
	"fmt"

	"github.com/amirphl/Susanoo/app/dto"
	"github.com/amirphl/Susanoo/models"
	"github.com/amirphl/Susanoo/repository"
	"github.com/xuri/excelize/v2"
)

// ReportFlow exports campaign delivery statistics
type ReportFlow interface {
	// GenerateCampaignReport returns an xlsx export of delivery outcomes
	// for one campaign as (filename, content).
	GenerateCampaignReport(ctx context.Context, req *dto.CampaignReportRequest) (string, []byte, error)
}

// ReportFlowImpl implements the report business flow
type ReportFlowImpl struct {
	campaignRepo repository.CampaignRepository
	deliveryRepo repository.DeliveryLogRepository
}

// NewReportFlow creates a new report flow instance
func NewReportFlow(
	campaignRepo repository.CampaignRepository,
	deliveryRepo repository.DeliveryLogRepository,
) ReportFlow {
	return &ReportFlowImpl{
		campaignRepo: campaignRepo,
		deliveryRepo: deliveryRepo,
	}
}

// GenerateCampaignReport builds a two-sheet workbook: aggregate counts per
// delivery status and the full per-recipient delivery log
func (s *ReportFlowImpl) GenerateCampaignReport(ctx context.Context, req *dto.CampaignReportRequest) (string, []byte, error) {
	campaign, err := getOwnedCampaignByUUID(ctx, s.campaignRepo, req.UUID, req.OwnerID)
	if err != nil {
		return "", nil, err
	}

	counts, err := s.deliveryRepo.CountByStatusForCampaign(ctx, campaign.ID)
	if err != nil {
		return "", nil, NewBusinessError("REPORT_QUERY_FAILED", "Failed to aggregate delivery outcomes", err)
	}

	logs, err := s.deliveryRepo.ByFilter(ctx, models.DeliveryLogFilter{CampaignID: &campaign.ID}, "sent_at ASC", 0, 0)
	if err != nil {
		return "", nil, NewBusinessError("REPORT_QUERY_FAILED", "Failed to list delivery logs", err)
	}

	xl := excelize.NewFile()
	defer func() { _ = xl.Close() }()

	summarySheet := "summary"
	xl.SetSheetName(xl.GetSheetName(0), summarySheet)

	summaryHeader := []string{"status", "count"}
	_ = xl.SetSheetRow(summarySheet, "A1", &summaryHeader)
	statuses := []models.DeliveryStatus{
		models.DeliveryStatusSent,
		models.DeliveryStatusDelivered,
		models.DeliveryStatusOpened,
		models.DeliveryStatusReplied,
		models.DeliveryStatusUnsubscribed,
		models.DeliveryStatusBounced,
		models.DeliveryStatusSpam,
	}
	for i, status := range statuses {
		record := []any{string(status), counts[status]}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(summarySheet, cellRef, &record)
	}

	detailSheet := "deliveries"
	_, _ = xl.NewSheet(detailSheet)
	detailHeader := []string{"recipient", "provider_message_id", "status", "opens", "replies", "clicks", "sent_at"}
	_ = xl.SetSheetRow(detailSheet, "A1", &detailHeader)
	for i, row := range logs {
		record := []any{
			row.Recipient,
			row.ProviderMessageID,
			string(row.Status),
			row.OpenCount,
			row.ReplyCount,
			row.ClickCount,
			row.SentAt.UTC().Format("2006-01-02 15:04:05"),
		}
		cellRef, _ := excelize.CoordinatesToCellName(1, i+2)
		_ = xl.SetSheetRow(detailSheet, cellRef, &record)
	}

	buf, err := xl.WriteToBuffer()
	if err != nil {
		return "", nil, NewBusinessError("EXCEL_WRITE_ERROR", "Failed to write Excel file", err)
	}

	filename := fmt.Sprintf("campaign_%s_deliveries.xlsx", campaign.UUID.String())
	return filename, buf.Bytes(), nil
}
