// Package settings provides tenant-scoped key/value configuration with
// environment-backed defaults.
package settings

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
)

// Setting keys.
const (
	SessionRecalculationIntervalInSeconds = "session-recalculation-interval-in-seconds"
	AnthropicAPIKey                       = "anthropic-api-key"
	AnthropicBaseURL                      = "anthropic-base-url"
	AIGatewayToken                        = "ai-gateway-token"
)

// DefaultDebounceSeconds is the fallback update-session debounce delay.
const DefaultDebounceSeconds = 600

// ErrNotFound is returned when a setting has neither a stored value nor
// a default.
var ErrNotFound = errors.New("settings: not found")

// Defaults returns the default value map for a fresh tenant. Secret
// settings fall back to process environment so a single-tenant deploy
// works without any settings rows.
func Defaults() map[string]string {
	return map[string]string{
		SessionRecalculationIntervalInSeconds: strconv.Itoa(DefaultDebounceSeconds),
		AnthropicAPIKey:                       os.Getenv("ANTHROPIC_API_KEY"),
		AnthropicBaseURL:                      os.Getenv("ANTHROPIC_BASE_URL"),
		AIGatewayToken:                        os.Getenv("AI_GATEWAY_TOKEN"),
	}
}

// Get returns the tenant's value for key, falling back to defaults.
func Get(db *gorm.DB, tenantID uint, key string) (string, error) {
	var s models.Setting
	err := db.Where("tenant_id = ? AND `key` = ?", tenantID, key).First(&s).Error
	if err == nil {
		return s.Value, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", fmt.Errorf("settings: get %q: %w", key, err)
	}

	if v, ok := Defaults()[key]; ok && v != "" {
		return v, nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotFound, key)
}

// GetInt returns the tenant's value for key parsed as an integer, or
// fallback when the setting is missing or malformed.
func GetInt(db *gorm.DB, tenantID uint, key string, fallback int) int {
	raw, err := Get(db, tenantID, key)
	if err != nil {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return n
}

// Set upserts the tenant's value for key. The Hidden flag on an
// existing row is left untouched.
func Set(db *gorm.DB, tenantID uint, key, value string) error {
	res := db.Model(&models.Setting{}).
		Where("tenant_id = ? AND `key` = ?", tenantID, key).
		Update("value", value)
	if res.Error != nil {
		return fmt.Errorf("settings: set %q: %w", key, res.Error)
	}
	if res.RowsAffected == 0 {
		s := models.Setting{TenantID: tenantID, Key: key, Value: value}
		if err := db.Create(&s).Error; err != nil {
			return fmt.Errorf("settings: set %q: %w", key, err)
		}
	}
	return nil
}
