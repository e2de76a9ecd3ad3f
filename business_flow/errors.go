// Package businessflow contains the core business logic and use cases for delivery pipeline workflows
package businessflow

import (
	"errors"
	"fmt"
)

// Business flow error constants
var (
	// Campaign-related errors
	ErrCampaignNotFound       = errors.New("campaign not found")
	ErrCampaignAccessDenied   = errors.New("campaign access denied")
	ErrCampaignTitleRequired  = errors.New("campaign title is required")
	ErrInvalidCampaignType    = errors.New("invalid campaign type")
	ErrInvalidTransition      = errors.New("campaign status transition not allowed")
	ErrDailyVolumeRequired    = errors.New("daily volume must be positive")
	ErrProspectSourceRequired = errors.New("outreach campaigns require a prospect list and template")
	ErrCampaignNotActive      = errors.New("campaign is not active")

	// Account-related errors
	ErrAccountNotFound  = errors.New("email account not found")
	ErrAccountNotUsable = errors.New("email account requires re-authorization")

	// Webhook-related errors
	ErrInvalidSignature       = errors.New("webhook signature verification failed")
	ErrSignatureRequired      = errors.New("webhook signature is required")
	ErrUnknownProviderMessage = errors.New("no delivery log matches the provider message id")
	ErrUnknownDeliveryEvent   = errors.New("unknown delivery event type")

	// Suppression-related errors
	ErrSuppressionEmailRequired = errors.New("suppression email is required")
)

// BusinessError represents a business logic error with a code and message
type BusinessError struct {
	Code    string
	Message string
	Err     error
}

// Error implements the error interface
func (e *BusinessError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

// Unwrap returns the underlying error
func (e *BusinessError) Unwrap() error {
	return e.Err
}

// NewBusinessError creates a new business error
func NewBusinessError(code, message string, err error) *BusinessError {
	return &BusinessError{
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// Error predicates for handler-level status mapping

func IsCampaignNotFound(err error) bool {
	return errors.Is(err, ErrCampaignNotFound)
}

func IsCampaignAccessDenied(err error) bool {
	return errors.Is(err, ErrCampaignAccessDenied)
}

func IsInvalidTransition(err error) bool {
	return errors.Is(err, ErrInvalidTransition)
}

func IsCampaignNotActive(err error) bool {
	return errors.Is(err, ErrCampaignNotActive)
}

func IsAccountNotUsable(err error) bool {
	return errors.Is(err, ErrAccountNotUsable)
}

func IsValidationFailure(err error) bool {
	return errors.Is(err, ErrCampaignTitleRequired) ||
		errors.Is(err, ErrInvalidCampaignType) ||
		errors.Is(err, ErrDailyVolumeRequired) ||
		errors.Is(err, ErrProspectSourceRequired) ||
		errors.Is(err, ErrSuppressionEmailRequired)
}

func IsSignatureRejected(err error) bool {
	return errors.Is(err, ErrInvalidSignature) || errors.Is(err, ErrSignatureRequired)
}
