package worker

import (
	"fmt"
	"log"

	"github.com/zulandar/stenograph/internal/models"
	"github.com/zulandar/stenograph/internal/queue"
)

// Sweep enqueues an immediate update-session event for every session
// with requests newer than its replay watermark and no pending event.
// The debounce path covers the common case; the sweep catches sessions
// whose delayed event was lost or dead-lettered.
func (w *Worker) Sweep() {
	var sessions []models.WorkSession
	err := w.db.Model(&models.WorkSession{}).
		Joins("JOIN provider_requests ON provider_requests.work_session_id = work_sessions.id AND provider_requests.id > work_sessions.last_processed_request_id").
		Group("work_sessions.id").
		Find(&sessions).Error
	if err != nil {
		log.Printf("worker: sweep query: %v", err)
		return
	}

	for i := range sessions {
		session := &sessions[i]
		pending, err := w.pendingUpdate(session.ID)
		if err != nil {
			log.Printf("worker: sweep session %d: %v", session.ID, err)
			continue
		}
		if pending {
			continue
		}

		msg := queue.UpdateSessionMessage{
			Type:      queue.TypeUpdateSession,
			TenantID:  session.TenantID,
			SessionID: session.ID,
			Provider:  session.Provider,
		}
		if err := w.queue.Send(queue.TypeUpdateSession, msg); err != nil {
			log.Printf("worker: sweep enqueue session %d: %v", session.ID, err)
			continue
		}
		log.Printf("worker: sweep scheduled session %d", session.ID)
	}
}

func (w *Worker) pendingUpdate(sessionID uint) (bool, error) {
	pattern := fmt.Sprintf(`%%"sessionId":%d,%%`, sessionID)
	var count int64
	err := w.db.Model(&models.QueueMessage{}).
		Where("type = ? AND done = ? AND dead = ?", queue.TypeUpdateSession, false, false).
		Where("payload LIKE ?", pattern).
		Count(&count).Error
	if err != nil {
		return false, err
	}
	return count > 0, nil
}
