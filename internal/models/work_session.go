package models

import "time"

// Contributor identifies an individual caller within a tenant, provider
// and proxy. Created lazily on first successful identity extraction.
type Contributor struct {
	ID                 uint   `gorm:"primaryKey;autoIncrement"`
	TenantID           uint   `gorm:"not null;uniqueIndex:idx_contributor_key"`
	Provider           string `gorm:"size:32;not null;uniqueIndex:idx_contributor_key"`
	ProxyID            uint   `gorm:"not null;uniqueIndex:idx_contributor_key"`
	ProviderSpecificID string `gorm:"size:128;not null;uniqueIndex:idx_contributor_key"`
	AccountID          string `gorm:"size:128;not null;uniqueIndex:idx_contributor_key"`
	DisplayName        string `gorm:"size:128"`
	CreatedAt          time.Time
}

// WorkSession is one provider-side conversation thread and its derived
// analytics. LastProcessedRequestID is the replay watermark: it only
// advances after the corresponding request bodies have been folded into
// the analytics snapshot.
type WorkSession struct {
	ID                     uint   `gorm:"primaryKey;autoIncrement"`
	TenantID               uint   `gorm:"not null;uniqueIndex:idx_session_key"`
	Provider               string `gorm:"size:32;not null;uniqueIndex:idx_session_key"`
	ProxyID                uint   `gorm:"not null;uniqueIndex:idx_session_key"`
	ProviderSpecificID     string `gorm:"size:128;not null;uniqueIndex:idx_session_key"`
	ProviderContributorID  string `gorm:"size:128"`
	ContributorID          *uint  `gorm:"index"`
	AccountID              string `gorm:"size:128"`
	TotalRequests          int64  `gorm:"default:0"`
	TotalInputTokens       int64  `gorm:"default:0"`
	TotalOutputTokens      int64  `gorm:"default:0"`
	LastProcessedRequestID uint   `gorm:"default:0"`
	LastReceivedRequestAt  *time.Time
	AnalyticsJSON          string `gorm:"type:text"`
	Title                  string `gorm:"size:512"`
	Project                string `gorm:"size:256"`
	ProjectID              *uint  `gorm:"index"`
	CreatedAt              time.Time
	UpdatedAt              time.Time
}

// ModelUsage is one per-model token total for a session, recreated in
// full on every accumulator run.
type ModelUsage struct {
	ID            uint    `gorm:"primaryKey;autoIncrement"`
	TenantID      uint    `gorm:"not null;index"`
	WorkSessionID uint    `gorm:"not null;index"`
	ProxyID       uint    `gorm:"not null"`
	Provider      string  `gorm:"size:32"`
	ProjectID     *uint   `gorm:"index"`
	ContributorID *uint
	AccountID     *string `gorm:"size:128"`
	ModelName     string  `gorm:"size:128"`
	InputTokens   int64   `gorm:"default:0"`
	OutputTokens  int64   `gorm:"default:0"`
	CreatedAt     time.Time
}
