// Package services provides external service integrations and technical concerns like providers, credentials and tokens
package services

import (
	"context"
	"errors"
	"fmt"
)

// Provider sends mail through an external backend on behalf of a connected account
type Provider interface {
	// Send delivers one message and returns the provider-assigned identifiers.
	Send(ctx context.Context, accessToken string, req *SendRequest) (*SendResult, error)
	// GetAccountInfo resolves the sending address the token belongs to.
	GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error)
	Name() string
}

// TokenRefresher exchanges a refresh token for a fresh access token
type TokenRefresher interface {
	RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error)
}

// SendRequest carries one outbound message
type SendRequest struct {
	From       string
	To         string
	Subject    string
	Body       string
	ThreadID   *string // set for reply continuations
	TrackingID string
}

// SendResult carries the provider identifiers for a delivered message
type SendResult struct {
	ProviderMessageID string
	ThreadID          string
}

// AccountInfo describes the account behind a credential
type AccountInfo struct {
	Email string
}

// TokenResult is the outcome of a refresh exchange. RefreshToken is empty
// unless the backend rotated it.
type TokenResult struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    int // seconds
}

// Provider error taxonomy. Dispatch decides retry or fail from these.
var (
	// ErrProviderAuth means the backend rejected the credential. The account
	// needs operator re-authorization, retrying will not help.
	ErrProviderAuth = errors.New("provider rejected credentials")

	// ErrProviderRejected means the backend permanently refused the message
	// (invalid recipient, policy violation).
	ErrProviderRejected = errors.New("provider rejected message")

	// ErrProviderUnavailable means a transient backend failure worth retrying.
	ErrProviderUnavailable = errors.New("provider temporarily unavailable")
)

// IsAuthError reports whether the send failed on credentials
func IsAuthError(err error) bool {
	return errors.Is(err, ErrProviderAuth)
}

// IsPermanentError reports whether retrying the same message is pointless
func IsPermanentError(err error) bool {
	return errors.Is(err, ErrProviderRejected) || errors.Is(err, ErrProviderAuth)
}

// classifyStatus maps an HTTP status to the provider error taxonomy
func classifyStatus(status int, body string) error {
	switch {
	case status >= 200 && status < 300:
		return nil
	case status == 401 || status == 403:
		return fmt.Errorf("%w: status %d: %s", ErrProviderAuth, status, body)
	case status == 400 || status == 404 || status == 422:
		return fmt.Errorf("%w: status %d: %s", ErrProviderRejected, status, body)
	default:
		return fmt.Errorf("%w: status %d: %s", ErrProviderUnavailable, status, body)
	}
}
