package utils

import (
	"time"
)

// Token and session time constants
const (
	// AccessTokenTTL is the time-to-live for access tokens (24 hours)
	AccessTokenTTL = 24 * time.Hour

	// RefreshTokenTTL is the time-to-live for refresh tokens (7 days)
	RefreshTokenTTL = 7 * 24 * time.Hour
)

// Delivery pipeline constants
const (
	// CredentialRefreshMargin is how long before expiry a provider credential
	// is refreshed proactively
	CredentialRefreshMargin = 5 * time.Minute

	// DefaultMaxAttempts is the number of dispatch attempts before a queued
	// message is marked failed
	DefaultMaxAttempts = 3

	// RequeueDelay is the short delay applied when a message is re-queued
	// without consuming an attempt (credential unavailable, rate limited)
	RequeueDelay = 2 * time.Minute

	// StaleClaimThreshold is how long a message may stay in processing before
	// a later drain cycle is allowed to reclaim it
	StaleClaimThreshold = 15 * time.Minute

	// MaxClickRecords bounds the per-message click append log
	MaxClickRecords = 50

	// MaxMessageBodyBytes bounds rendered message content at enqueue time
	MaxMessageBodyBytes = 256 * 1024
)

// CORS and security constants
const (
	// CORSMaxAge is the maximum age for CORS preflight requests (24 hours)
	CORSMaxAge = 86400
)
