package models

import "time"

// Setting is a tenant-scoped key/value configuration entry.
type Setting struct {
	TenantID  uint   `gorm:"primaryKey"`
	Key       string `gorm:"primaryKey;size:64"`
	Value     string `gorm:"type:text"`
	Hidden    bool   `gorm:"default:false"`
	UpdatedAt time.Time
}
