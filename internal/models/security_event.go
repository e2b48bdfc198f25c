package models

import (
	"time"
)

// EventKind classifies why a request was rejected or flagged.
type EventKind string

const (
	EventUnauthorizedAccess EventKind = "unauthorized_access"
	EventInvalidAPIKey      EventKind = "invalid_api_key"
	EventInvalidOrigin      EventKind = "invalid_origin"
	EventRateLimitExceeded  EventKind = "rate_limit_exceeded"
	EventSuspiciousContent  EventKind = "suspicious_content"
	EventBlockedRequest     EventKind = "blocked_request"
)

// RiskLevel is the discrete risk classification of a source address,
// derived from its trailing event count.
type RiskLevel string

const (
	RiskLow      RiskLevel = "low"
	RiskMedium   RiskLevel = "medium"
	RiskHigh     RiskLevel = "high"
	RiskCritical RiskLevel = "critical"
)

// SecurityEvent records one rejected or flagged request. Rows are
// append-only; only IsBlocked may be flipped after the fact, in bulk,
// by the block feedback loop or a manual admin override.
type SecurityEvent struct {
	ID   uint   `json:"id" gorm:"primaryKey"`
	UUID string `json:"uuid" gorm:"uniqueIndex"`

	SourceAddress string `json:"source_address" gorm:"index:idx_events_source_ts,priority:1"`
	UserAgent     string `json:"user_agent"`
	OriginHeader  string `json:"origin_header"`
	RefererHeader string `json:"referer_header"`

	Method   string `json:"method"`
	Path     string `json:"path"`
	Endpoint string `json:"endpoint"`

	EventKind  EventKind `json:"event_kind" gorm:"index"`
	Reason     string    `json:"reason"`
	StatusCode int       `json:"status_code"`

	// Redacted copies of request data, stored as JSON text.
	SanitizedBody    string `json:"sanitized_body,omitempty" gorm:"type:text"`
	SanitizedHeaders string `json:"sanitized_headers,omitempty" gorm:"type:text"`
	QueryParams      string `json:"query_params,omitempty" gorm:"type:text"`

	RiskLevel RiskLevel `json:"risk_level" gorm:"index"`
	IsBlocked bool      `json:"is_blocked" gorm:"index"`

	// Stable hash of client-identifying headers, for correlating a
	// source across address changes. Never the primary key.
	Fingerprint string `json:"fingerprint" gorm:"index"`

	Timestamp time.Time `json:"timestamp" gorm:"index;index:idx_events_source_ts,priority:2"`
}
