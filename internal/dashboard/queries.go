package dashboard

import (
	"encoding/json"
	"time"

	"github.com/zulandar/stenograph/internal/accumulate"
	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
)

// SessionRow holds session data for list views.
type SessionRow struct {
	ID                uint       `json:"id"`
	Provider          string     `json:"provider"`
	ProxyID           uint       `json:"proxyId"`
	Title             string     `json:"title"`
	Project           string     `json:"project"`
	ContributorID     *uint      `json:"contributorId"`
	TotalRequests     int64      `json:"totalRequests"`
	TotalInputTokens  int64      `json:"totalInputTokens"`
	TotalOutputTokens int64      `json:"totalOutputTokens"`
	LastReceivedAt    *time.Time `json:"lastReceivedAt"`
	CreatedAt         time.Time  `json:"createdAt"`
}

// SessionList returns a page of sessions for a tenant, newest first.
func SessionList(db *gorm.DB, tenantID uint, offset, limit int) ([]SessionRow, int64, error) {
	var total int64
	if err := db.Model(&models.WorkSession{}).Where("tenant_id = ?", tenantID).Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var sessions []models.WorkSession
	err := db.Where("tenant_id = ?", tenantID).
		Order("id DESC").
		Offset(offset).
		Limit(limit).
		Find(&sessions).Error
	if err != nil {
		return nil, 0, err
	}

	rows := make([]SessionRow, len(sessions))
	for i, s := range sessions {
		rows[i] = SessionRow{
			ID:                s.ID,
			Provider:          s.Provider,
			ProxyID:           s.ProxyID,
			Title:             s.Title,
			Project:           s.Project,
			ContributorID:     s.ContributorID,
			TotalRequests:     s.TotalRequests,
			TotalInputTokens:  s.TotalInputTokens,
			TotalOutputTokens: s.TotalOutputTokens,
			LastReceivedAt:    s.LastReceivedRequestAt,
			CreatedAt:         s.CreatedAt,
		}
	}
	return rows, total, nil
}

// SessionDetail is a session row plus its parsed analytics snapshot.
type SessionDetail struct {
	SessionRow
	Analytics *accumulate.Analytics `json:"analytics"`
}

// SessionByID returns one session with its analytics snapshot parsed.
func SessionByID(db *gorm.DB, tenantID, id uint) (*SessionDetail, *models.WorkSession, error) {
	var session models.WorkSession
	if err := db.Where("id = ? AND tenant_id = ?", id, tenantID).First(&session).Error; err != nil {
		return nil, nil, err
	}

	detail := &SessionDetail{
		SessionRow: SessionRow{
			ID:                session.ID,
			Provider:          session.Provider,
			ProxyID:           session.ProxyID,
			Title:             session.Title,
			Project:           session.Project,
			ContributorID:     session.ContributorID,
			TotalRequests:     session.TotalRequests,
			TotalInputTokens:  session.TotalInputTokens,
			TotalOutputTokens: session.TotalOutputTokens,
			LastReceivedAt:    session.LastReceivedRequestAt,
			CreatedAt:         session.CreatedAt,
		},
	}
	if session.AnalyticsJSON != "" {
		var analytics accumulate.Analytics
		if err := json.Unmarshal([]byte(session.AnalyticsJSON), &analytics); err == nil {
			detail.Analytics = &analytics
		}
	}
	return detail, &session, nil
}

// ContributorRow holds contributor data with session counts.
type ContributorRow struct {
	ID                 uint      `json:"id"`
	Provider           string    `json:"provider"`
	ProxyID            uint      `json:"proxyId"`
	ProviderSpecificID string    `json:"providerSpecificId"`
	AccountID          string    `json:"accountId"`
	DisplayName        string    `json:"displayName"`
	Sessions           int64     `json:"sessions"`
	CreatedAt          time.Time `json:"createdAt"`
}

// ContributorList returns all contributors for a tenant with how many
// sessions each one owns.
func ContributorList(db *gorm.DB, tenantID uint) ([]ContributorRow, error) {
	var contributors []models.Contributor
	if err := db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&contributors).Error; err != nil {
		return nil, err
	}

	rows := make([]ContributorRow, len(contributors))
	for i, c := range contributors {
		var sessions int64
		if err := db.Model(&models.WorkSession{}).Where("contributor_id = ?", c.ID).Count(&sessions).Error; err != nil {
			return nil, err
		}
		rows[i] = ContributorRow{
			ID:                 c.ID,
			Provider:           c.Provider,
			ProxyID:            c.ProxyID,
			ProviderSpecificID: c.ProviderSpecificID,
			AccountID:          c.AccountID,
			DisplayName:        c.DisplayName,
			Sessions:           sessions,
			CreatedAt:          c.CreatedAt,
		}
	}
	return rows, nil
}

// ProjectRow holds project data for list views.
type ProjectRow struct {
	ID                uint      `json:"id"`
	Name              string    `json:"name"`
	TotalRequests     int64     `json:"totalRequests"`
	TotalInputTokens  int64     `json:"totalInputTokens"`
	TotalOutputTokens int64     `json:"totalOutputTokens"`
	Sessions          int64     `json:"sessions"`
	CreatedAt         time.Time `json:"createdAt"`
}

// ProjectList returns all projects for a tenant with session counts.
func ProjectList(db *gorm.DB, tenantID uint) ([]ProjectRow, error) {
	var projects []models.Project
	if err := db.Where("tenant_id = ?", tenantID).Order("name ASC").Find(&projects).Error; err != nil {
		return nil, err
	}

	rows := make([]ProjectRow, len(projects))
	for i, p := range projects {
		var sessions int64
		if err := db.Model(&models.WorkSession{}).Where("project_id = ?", p.ID).Count(&sessions).Error; err != nil {
			return nil, err
		}
		rows[i] = ProjectRow{
			ID:                p.ID,
			Name:              p.Name,
			TotalRequests:     p.TotalRequests,
			TotalInputTokens:  p.TotalInputTokens,
			TotalOutputTokens: p.TotalOutputTokens,
			Sessions:          sessions,
			CreatedAt:         p.CreatedAt,
		}
	}
	return rows, nil
}

// MemoryRecordRow holds one memory record for display.
type MemoryRecordRow struct {
	ID            uint      `json:"id"`
	WorkSessionID uint      `json:"workSessionId"`
	Title         string    `json:"title"`
	Body          string    `json:"body"`
	CreatedAt     time.Time `json:"createdAt"`
}

// MemoryRecordsByProject returns the project's memory records, newest
// first.
func MemoryRecordsByProject(db *gorm.DB, tenantID, projectID uint) ([]MemoryRecordRow, error) {
	var records []models.MemoryRecord
	err := db.Where("tenant_id = ? AND project_id = ?", tenantID, projectID).
		Order("id DESC").
		Find(&records).Error
	if err != nil {
		return nil, err
	}

	rows := make([]MemoryRecordRow, len(records))
	for i, r := range records {
		rows[i] = MemoryRecordRow{
			ID:            r.ID,
			WorkSessionID: r.WorkSessionID,
			Title:         r.Title,
			Body:          r.Body,
			CreatedAt:     r.CreatedAt,
		}
	}
	return rows, nil
}

// ProxyRow holds proxy data for display. The API key is masked down to
// a recognizable prefix.
type ProxyRow struct {
	ID            uint      `json:"id"`
	Name          string    `json:"name"`
	APIKeyPrefix  string    `json:"apiKeyPrefix"`
	TotalRequests int64     `json:"totalRequests"`
	CreatedAt     time.Time `json:"createdAt"`
}

// ProxyList returns all proxies for a tenant with masked credentials.
func ProxyList(db *gorm.DB, tenantID uint) ([]ProxyRow, error) {
	var proxies []models.Proxy
	if err := db.Where("tenant_id = ?", tenantID).Order("id ASC").Find(&proxies).Error; err != nil {
		return nil, err
	}

	rows := make([]ProxyRow, len(proxies))
	for i, p := range proxies {
		prefix := p.APIKey
		if len(prefix) > 11 {
			prefix = prefix[:11]
		}
		rows[i] = ProxyRow{
			ID:            p.ID,
			Name:          p.Name,
			APIKeyPrefix:  prefix + "...",
			TotalRequests: p.TotalRequests,
			CreatedAt:     p.CreatedAt,
		}
	}
	return rows, nil
}

// SettingRow holds one tenant setting. Hidden settings expose only
// their key.
type SettingRow struct {
	Key    string `json:"key"`
	Value  string `json:"value"`
	Hidden bool   `json:"hidden"`
}

// SettingList returns the tenant's settings, masking hidden values.
func SettingList(db *gorm.DB, tenantID uint) ([]SettingRow, error) {
	var settings []models.Setting
	if err := db.Where("tenant_id = ?", tenantID).Order("`key` ASC").Find(&settings).Error; err != nil {
		return nil, err
	}

	rows := make([]SettingRow, len(settings))
	for i, s := range settings {
		value := s.Value
		if s.Hidden {
			value = ""
		}
		rows[i] = SettingRow{Key: s.Key, Value: value, Hidden: s.Hidden}
	}
	return rows, nil
}
