package services

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/amirphl/Susanoo/config"
)

// GmailClient talks to a Gmail-style REST API with a per-account bearer token
type GmailClient struct {
	config *config.ProviderConfig
	client *http.Client
}

// gmailSendRequest is the raw message envelope the API expects
type gmailSendRequest struct {
	Raw      string `json:"raw"`
	ThreadID string `json:"threadId,omitempty"`
}

type gmailSendResponse struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId"`
}

type gmailProfileResponse struct {
	EmailAddress string `json:"emailAddress"`
}

type gmailTokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"` // present only when rotated
	ExpiresIn    int    `json:"expires_in"`
	TokenType    string `json:"token_type"`
}

// NewGmailClient creates a new Gmail API client
func NewGmailClient(cfg *config.ProviderConfig) *GmailClient {
	return &GmailClient{
		config: cfg,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

func (g *GmailClient) Name() string { return "gmail" }

// Send delivers one message via the users.messages.send endpoint
func (g *GmailClient) Send(ctx context.Context, accessToken string, req *SendRequest) (*SendResult, error) {
	payload := gmailSendRequest{
		Raw: base64.URLEncoding.EncodeToString(buildMIME(req)),
	}
	if req.ThreadID != nil {
		payload.ThreadID = *req.ThreadID
	}

	requestBody, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal send request: %w", err)
	}

	endpoint := fmt.Sprintf("%s/gmail/v1/users/me/messages/send", g.config.GmailAPIBase)
	httpReq, err := http.NewRequestWithContext(ctx, "POST", endpoint, strings.NewReader(string(requestBody)))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := classifyStatus(resp.StatusCode, string(body)); err != nil {
		return nil, err
	}

	var result gmailSendResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("failed to decode send response: %w", err)
	}
	if result.ID == "" {
		return nil, fmt.Errorf("%w: empty message id in response", ErrProviderUnavailable)
	}
	return &SendResult{ProviderMessageID: result.ID, ThreadID: result.ThreadID}, nil
}

// GetAccountInfo resolves the profile behind the token
func (g *GmailClient) GetAccountInfo(ctx context.Context, accessToken string) (*AccountInfo, error) {
	endpoint := fmt.Sprintf("%s/gmail/v1/users/me/profile", g.config.GmailAPIBase)
	httpReq, err := http.NewRequestWithContext(ctx, "GET", endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := classifyStatus(resp.StatusCode, string(body)); err != nil {
		return nil, err
	}

	var profile gmailProfileResponse
	if err := json.Unmarshal(body, &profile); err != nil {
		return nil, fmt.Errorf("failed to decode profile response: %w", err)
	}
	return &AccountInfo{Email: profile.EmailAddress}, nil
}

// RefreshToken exchanges a refresh token at the OAuth token endpoint
func (g *GmailClient) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	form := url.Values{}
	form.Set("grant_type", "refresh_token")
	form.Set("refresh_token", refreshToken)
	form.Set("client_id", g.config.GmailClientID)
	form.Set("client_secret", g.config.GmailSecret)

	httpReq, err := http.NewRequestWithContext(ctx, "POST", g.config.GmailTokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := g.client.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err := classifyStatus(resp.StatusCode, string(body)); err != nil {
		return nil, err
	}

	var token gmailTokenResponse
	if err := json.Unmarshal(body, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token response: %w", err)
	}
	if token.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty access token in response", ErrProviderAuth)
	}
	return &TokenResult{AccessToken: token.AccessToken, RefreshToken: token.RefreshToken, ExpiresIn: token.ExpiresIn}, nil
}

// buildMIME renders the RFC 2822 envelope for the raw send payload
func buildMIME(req *SendRequest) []byte {
	var b strings.Builder
	fmt.Fprintf(&b, "From: %s\r\n", req.From)
	fmt.Fprintf(&b, "To: %s\r\n", req.To)
	fmt.Fprintf(&b, "Subject: %s\r\n", req.Subject)
	if req.TrackingID != "" {
		fmt.Fprintf(&b, "X-Tracking-ID: %s\r\n", req.TrackingID)
	}
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=UTF-8\r\n")
	b.WriteString("\r\n")
	b.WriteString(req.Body)
	return []byte(b.String())
}
