package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/amirphl/Susanoo/config"
	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
)

// SESClient sends through Amazon SES. SES authenticates with IAM keys at the
// service level, so the per-account access token is unused here.
type SESClient struct {
	client *sesv2.Client
}

// NewSESClient creates a new SES provider backend
func NewSESClient(ctx context.Context, cfg *config.ProviderConfig) (*SESClient, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.SESRegion),
		awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.SESAccessKey, cfg.SESSecretKey, ""),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &SESClient{client: sesv2.NewFromConfig(awsCfg)}, nil
}

func (s *SESClient) Name() string { return "ses" }

// Send delivers one message via SendEmail
func (s *SESClient) Send(ctx context.Context, _ string, req *SendRequest) (*SendResult, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(req.From),
		Destination: &types.Destination{
			ToAddresses: []string{req.To},
		},
		Content: &types.EmailContent{
			Simple: &types.Message{
				Subject: &types.Content{Data: aws.String(req.Subject)},
				Body: &types.Body{
					Html: &types.Content{Data: aws.String(req.Body)},
				},
			},
		},
	}

	out, err := s.client.SendEmail(ctx, input)
	if err != nil {
		return nil, classifySESError(err)
	}
	if out.MessageId == nil || *out.MessageId == "" {
		return nil, fmt.Errorf("%w: empty message id in response", ErrProviderUnavailable)
	}
	return &SendResult{ProviderMessageID: *out.MessageId}, nil
}

// GetAccountInfo is not meaningful for SES keys, the caller already knows the
// verified sender address.
func (s *SESClient) GetAccountInfo(ctx context.Context, _ string) (*AccountInfo, error) {
	return nil, fmt.Errorf("%w: ses does not expose account profiles", ErrProviderRejected)
}

func classifySESError(err error) error {
	var badRequest *types.BadRequestException
	var notFound *types.NotFoundException
	var limit *types.LimitExceededException
	var sending *types.SendingPausedException
	switch {
	case errors.As(err, &badRequest), errors.As(err, &notFound):
		return fmt.Errorf("%w: %v", ErrProviderRejected, err)
	case errors.As(err, &sending):
		return fmt.Errorf("%w: %v", ErrProviderAuth, err)
	case errors.As(err, &limit):
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	default:
		return fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
}
