// Package correlate consumes provider-request events and turns raw
// archived calls into linked contributor, session and request rows.
package correlate

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"

	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/queue"
	"github.com/zulandar/stenograph/internal/settings"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// Correlator processes provider-request events: it records the request
// row, resolves the caller identity into contributor and session rows,
// and schedules a debounced analytics recalculation.
type Correlator struct {
	db    *gorm.DB
	store archive.Store
	queue *queue.Queue
}

// New returns a correlator over the given store and queue.
func New(db *gorm.DB, store archive.Store, q *queue.Queue) *Correlator {
	return &Correlator{db: db, store: store, queue: q}
}

// Process handles one provider-request event. Identity failures degrade
// to an unlinked request row; only storage errors propagate so the
// queue can redeliver.
func (c *Correlator) Process(msg queue.ProviderRequestMessage) error {
	record := models.ProviderRequest{
		TenantID:    msg.TenantID,
		ProxyID:     msg.ProxyID,
		GeneratedID: msg.RequestID,
		Provider:    msg.Provider,
		ReceivedAt:  msg.RequestDate,
	}

	body, err := c.store.Get(archive.RequestBodyPath(msg.TenantID, msg.ProxyID, msg.RequestDate, msg.RequestID))
	if err != nil && !errors.Is(err, archive.ErrNotFound) {
		return fmt.Errorf("correlate: fetch body for %s: %w", msg.RequestID, err)
	}

	if version := c.clientVersion(msg); version != "" {
		record.ClientVersion = &version
	}

	identity, identityErr := ExtractIdentity(msg.Provider, body)
	if identityErr != nil && !errors.Is(identityErr, ErrNoIdentity) {
		log.Printf("correlate: request %s: %v", msg.RequestID, identityErr)
	}

	var session *models.WorkSession
	if identityErr == nil {
		contributor, err := c.upsertContributor(msg, identity)
		if err != nil {
			return err
		}
		session, err = c.upsertSession(msg, identity, contributor)
		if err != nil {
			return err
		}

		record.ProviderContributorID = &identity.ContributorID
		record.ContributorID = &contributor.ID
		record.ContributorAccountID = &identity.AccountID
		record.WorkSessionID = &session.ID
	}

	res := c.db.Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "generated_id"}},
		DoNothing: true,
	}).Create(&record)
	if res.Error != nil {
		return fmt.Errorf("correlate: create request %s: %w", msg.RequestID, res.Error)
	}
	if res.RowsAffected == 0 {
		// Redelivered event for a request already recorded.
		return nil
	}

	if err := c.db.Model(&models.Proxy{}).
		Where("id = ?", msg.ProxyID).
		Update("total_requests", gorm.Expr("total_requests + 1")).Error; err != nil {
		return fmt.Errorf("correlate: count request on proxy %d: %w", msg.ProxyID, err)
	}

	if session != nil {
		if err := c.db.Model(session).Update("last_received_request_at", msg.RequestDate).Error; err != nil {
			return fmt.Errorf("correlate: touch session %d: %w", session.ID, err)
		}
		if err := c.scheduleRecalculation(msg, session); err != nil {
			return err
		}
	}
	return nil
}

// clientVersion reads the user-agent header out of the archived request
// metadata. Missing metadata is not an error.
func (c *Correlator) clientVersion(msg queue.ProviderRequestMessage) string {
	raw, err := c.store.Get(archive.RequestMetaPath(msg.TenantID, msg.ProxyID, msg.RequestDate, msg.RequestID))
	if err != nil {
		if !errors.Is(err, archive.ErrNotFound) {
			log.Printf("correlate: fetch metadata for %s: %v", msg.RequestID, err)
		}
		return ""
	}
	var meta archive.RequestMeta
	if err := json.Unmarshal(raw, &meta); err != nil {
		log.Printf("correlate: parse metadata for %s: %v", msg.RequestID, err)
		return ""
	}
	return meta.Header("user-agent")
}

func (c *Correlator) upsertContributor(msg queue.ProviderRequestMessage, id Identity) (*models.Contributor, error) {
	contributor := models.Contributor{
		TenantID:           msg.TenantID,
		Provider:           msg.Provider,
		ProxyID:            msg.ProxyID,
		ProviderSpecificID: id.ContributorID,
		AccountID:          id.AccountID,
	}
	err := c.db.Where(models.Contributor{
		TenantID:           msg.TenantID,
		Provider:           msg.Provider,
		ProxyID:            msg.ProxyID,
		ProviderSpecificID: id.ContributorID,
		AccountID:          id.AccountID,
	}).FirstOrCreate(&contributor).Error
	if err != nil {
		return nil, fmt.Errorf("correlate: upsert contributor %s: %w", id.ContributorID, err)
	}
	return &contributor, nil
}

func (c *Correlator) upsertSession(msg queue.ProviderRequestMessage, id Identity, contributor *models.Contributor) (*models.WorkSession, error) {
	session := models.WorkSession{
		TenantID:              msg.TenantID,
		Provider:              msg.Provider,
		ProxyID:               msg.ProxyID,
		ProviderSpecificID:    id.SessionID,
		ProviderContributorID: id.ContributorID,
		ContributorID:         &contributor.ID,
		AccountID:             id.AccountID,
	}
	err := c.db.Where(models.WorkSession{
		TenantID:           msg.TenantID,
		Provider:           msg.Provider,
		ProxyID:            msg.ProxyID,
		ProviderSpecificID: id.SessionID,
	}).FirstOrCreate(&session).Error
	if err != nil {
		return nil, fmt.Errorf("correlate: upsert session %s: %w", id.SessionID, err)
	}
	return &session, nil
}

// scheduleRecalculation enqueues a delayed update-session event unless
// one is already pending for this session. The delay coalesces request
// bursts into one accumulator run.
func (c *Correlator) scheduleRecalculation(msg queue.ProviderRequestMessage, session *models.WorkSession) error {
	pattern := fmt.Sprintf(`%%"sessionId":%d,%%`, session.ID)
	var pending int64
	err := c.db.Model(&models.QueueMessage{}).
		Where("type = ? AND done = ? AND dead = ?", queue.TypeUpdateSession, false, false).
		Where("payload LIKE ?", pattern).
		Count(&pending).Error
	if err != nil {
		return fmt.Errorf("correlate: check pending recalculation: %w", err)
	}
	if pending > 0 {
		return nil
	}

	delay := settings.GetInt(c.db, msg.TenantID, settings.SessionRecalculationIntervalInSeconds, settings.DefaultDebounceSeconds)
	update := queue.UpdateSessionMessage{
		Type:      queue.TypeUpdateSession,
		TenantID:  msg.TenantID,
		SessionID: session.ID,
		Provider:  msg.Provider,
	}
	if err := c.queue.SendDelayed(queue.TypeUpdateSession, update, delay); err != nil {
		return fmt.Errorf("correlate: schedule recalculation for session %d: %w", session.ID, err)
	}
	return nil
}
