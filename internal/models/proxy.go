package models

import "time"

// Proxy is a routable identity through which a tenant's calls are
// forwarded to an upstream provider. The API key is the only credential
// a client presents; everything downstream is scoped by the tenant.
type Proxy struct {
	ID            uint   `gorm:"primaryKey;autoIncrement"`
	TenantID      uint   `gorm:"not null;index"`
	UserID        *uint  // nil = tenant-wide proxy
	Name          string `gorm:"size:128"`
	APIKey        string `gorm:"size:128;not null;uniqueIndex"`
	TotalRequests int64  `gorm:"default:0"`
	CreatedAt     time.Time
	UpdatedAt     time.Time

	Requests []ProviderRequest `gorm:"foreignKey:ProxyID;constraint:OnDelete:CASCADE"`
	Sessions []WorkSession     `gorm:"foreignKey:ProxyID;constraint:OnDelete:CASCADE"`
}

// ProviderRequest records one forwarded call. Rows are immutable once
// created except for session linkage back-fill; the auto-increment ID is
// the replay order within a session.
type ProviderRequest struct {
	ID                    uint   `gorm:"primaryKey;autoIncrement"`
	TenantID              uint   `gorm:"not null;index"`
	ProxyID               uint   `gorm:"not null;index"`
	GeneratedID           string `gorm:"size:64;not null;uniqueIndex"`
	Provider              string `gorm:"size:32;not null"`
	ReceivedAt            time.Time
	ProviderContributorID *string `gorm:"size:128"`
	ContributorID         *uint
	ContributorAccountID  *string `gorm:"size:128"`
	WorkSessionID         *uint   `gorm:"index"`
	ClientVersion         *string `gorm:"size:256"`
	CreatedAt             time.Time
}
