package models

import "time"

// Project aggregates sessions sharing an inferred project name within a
// tenant. Token and request totals are recomputed from member sessions
// on every session update, never incremented.
type Project struct {
	ID                uint   `gorm:"primaryKey;autoIncrement"`
	TenantID          uint   `gorm:"not null;uniqueIndex:idx_project_name"`
	Name              string `gorm:"size:256;not null;uniqueIndex:idx_project_name"`
	TotalRequests     int64  `gorm:"default:0"`
	TotalInputTokens  int64  `gorm:"default:0"`
	TotalOutputTokens int64  `gorm:"default:0"`
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// MemoryRecord is a persisted per-topic implementation note derived from
// a session's analytics, attached to a project. Records for a session
// are deleted and recreated whole on every accumulator run.
type MemoryRecord struct {
	ID            uint  `gorm:"primaryKey;autoIncrement"`
	TenantID      uint  `gorm:"not null;index"`
	ProjectID     *uint `gorm:"index"`
	WorkSessionID uint  `gorm:"not null;index"`
	Title         string `gorm:"size:512"`
	Body          string `gorm:"type:text"`
	CreatedAt     time.Time
}
