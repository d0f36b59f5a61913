package worker

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"time"

	"github.com/zulandar/stenograph/internal/accumulate"
	"github.com/zulandar/stenograph/internal/archive"
	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/persist"
	"github.com/zulandar/stenograph/internal/queue"
	"github.com/zulandar/stenograph/internal/summarize"
	"gorm.io/gorm"
)

// pageSize bounds how many request rows one replay iteration loads.
const pageSize = 10

// combinedDocument is the consolidated session transcript written to
// the archive after each replay.
type combinedDocument struct {
	SessionID    uint                 `json:"sessionId"`
	TenantID     uint                 `json:"tenantId"`
	CreatedAt    time.Time            `json:"createdAt"`
	LastUpdated  time.Time            `json:"lastUpdated"`
	MessageCount int                  `json:"messageCount"`
	Messages     []accumulate.Message `json:"messages"`
}

// updateSession replays the session's archived requests through a
// fresh accumulator, summarizes the result and persists the snapshot.
// The replay always starts from the beginning: the working state is
// not durable, and every request body carries the conversation so far,
// so the hash-deduplicating fold makes reruns idempotent.
func (w *Worker) updateSession(ctx context.Context, m queue.UpdateSessionMessage) error {
	var session models.WorkSession
	err := w.db.Where("id = ? AND tenant_id = ?", m.SessionID, m.TenantID).First(&session).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		log.Printf("worker: session %d not found for tenant %d", m.SessionID, m.TenantID)
		return nil
	}
	if err != nil {
		return err
	}

	acc := accumulate.New()
	analytics := accumulate.NewAnalytics()

	var cursor uint
	var lastRequest *models.ProviderRequest
	for {
		var page []models.ProviderRequest
		err := w.db.
			Where("tenant_id = ? AND work_session_id = ? AND id > ?", m.TenantID, session.ID, cursor).
			Order("id ASC").
			Limit(pageSize).
			Find(&page).Error
		if err != nil {
			return err
		}
		if len(page) == 0 {
			break
		}

		for i := range page {
			accumulate.ProcessRequest(w.store, acc, analytics, page[i])
			cursor = page[i].ID
		}
		last := page[len(page)-1]
		lastRequest = &last

		// Per-page watermark, guarded so it never moves backwards.
		err = w.db.Model(&models.WorkSession{}).
			Where("id = ? AND last_processed_request_id < ?", session.ID, cursor).
			Update("last_processed_request_id", cursor).Error
		if err != nil {
			return err
		}

		if len(page) < pageSize {
			break
		}
	}

	acc.Topics.Flush()
	w.saveCombined(&session, acc)

	complete, err := w.completionFor(w.db, session.TenantID)
	if err != nil {
		log.Printf("worker: completion unavailable for tenant %d: %v", session.TenantID, err)
	} else {
		summarize.Summarize(ctx, complete, analytics, acc)
	}

	var lastID uint
	var lastReceived *time.Time
	if lastRequest != nil {
		lastID = lastRequest.ID
		received := lastRequest.ReceivedAt
		lastReceived = &received
	}
	if err := persist.SaveSession(w.db, &session, analytics, lastID, lastReceived); err != nil {
		return err
	}

	if err := w.notifier.SessionUpdated(ctx, &session, analytics); err != nil {
		log.Printf("worker: notify session %d: %v", session.ID, err)
	}
	log.Printf("worker: updated session %d (%d messages, %d requests)", session.ID, acc.All.Len(), analytics.TotalRequests)
	return nil
}

// saveCombined writes the consolidated transcript. Failures are logged;
// the analytics run is worth keeping even if the transcript write
// fails.
func (w *Worker) saveCombined(session *models.WorkSession, acc *accumulate.Accumulator) {
	messages := acc.All.Items()
	if len(messages) == 0 {
		return
	}

	doc := combinedDocument{
		SessionID:    session.ID,
		TenantID:     session.TenantID,
		CreatedAt:    session.CreatedAt,
		LastUpdated:  time.Now().UTC(),
		MessageCount: len(messages),
		Messages:     messages,
	}
	data, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		log.Printf("worker: marshal transcript for session %d: %v", session.ID, err)
		return
	}

	path := archive.CombinedPath(session.TenantID, session.ID, session.CreatedAt)
	if err := w.store.Put(path, data); err != nil {
		log.Printf("worker: save transcript %s: %v", path, err)
		return
	}
	log.Printf("worker: saved transcript %s (%d messages)", path, len(messages))
}
