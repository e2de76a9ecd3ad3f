package services

import (
	"context"
	"fmt"
	"sync"
)

// MockProvider implements Provider for testing and local development
type MockProvider struct {
	mu       sync.Mutex
	sent     []SendRequest
	counter  int
	FailWith error // when set, Send returns this error
	Email    string
}

// NewMockProvider creates a mock provider backend
func NewMockProvider() *MockProvider {
	return &MockProvider{Email: "mock@susanoo.dev"}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Send(ctx context.Context, _ string, req *SendRequest) (*SendResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.FailWith != nil {
		return nil, m.FailWith
	}
	m.counter++
	m.sent = append(m.sent, *req)
	threadID := fmt.Sprintf("mock-thread-%d", m.counter)
	if req.ThreadID != nil {
		threadID = *req.ThreadID
	}
	return &SendResult{
		ProviderMessageID: fmt.Sprintf("mock-msg-%d", m.counter),
		ThreadID:          threadID,
	}, nil
}

func (m *MockProvider) GetAccountInfo(ctx context.Context, _ string) (*AccountInfo, error) {
	return &AccountInfo{Email: m.Email}, nil
}

// GetSentMessages returns all messages sent through the mock
func (m *MockProvider) GetSentMessages() []SendRequest {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]SendRequest, len(m.sent))
	copy(out, m.sent)
	return out
}

// ClearSentMessages resets recorded messages
func (m *MockProvider) ClearSentMessages() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = nil
	m.counter = 0
}

// MockTokenRefresher implements TokenRefresher for testing
type MockTokenRefresher struct {
	mu       sync.Mutex
	Result   *TokenResult
	Err      error
	Requests []string
}

func (m *MockTokenRefresher) RefreshToken(ctx context.Context, refreshToken string) (*TokenResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Requests = append(m.Requests, refreshToken)
	if m.Err != nil {
		return nil, m.Err
	}
	if m.Result != nil {
		return m.Result, nil
	}
	return &TokenResult{AccessToken: "refreshed-token", ExpiresIn: 3600}, nil
}
