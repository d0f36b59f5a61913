// Package queue implements an at-least-once event queue with optional
// delayed delivery, backed by the relational store.
package queue

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/zulandar/stenograph/internal/models"
	"gorm.io/gorm"
)

// ErrEmpty is returned by Receive when no message is deliverable.
var ErrEmpty = errors.New("queue: empty")

// maxAttempts bounds redelivery; messages past it are marked dead and
// kept in the table for inspection.
const maxAttempts = 5

// nackBackoff is the redelivery delay applied by Nack.
const nackBackoff = 60 * time.Second

// Queue sends and receives typed messages through the queue_messages
// table. Delivery is at-least-once: a claimed message that is never
// acked becomes visible again after the claim expires.
type Queue struct {
	db *gorm.DB

	// ClaimTimeout is how long a claim holds before the message is
	// redelivered to another consumer.
	ClaimTimeout time.Duration
}

// New returns a queue over the given database handle.
func New(db *gorm.DB) *Queue {
	return &Queue{db: db, ClaimTimeout: 10 * time.Minute}
}

// Send enqueues a message for immediate delivery.
func (q *Queue) Send(msgType string, payload any) error {
	return q.SendDelayed(msgType, payload, 0)
}

// SendDelayed enqueues a message that becomes visible after delay
// seconds. Used to debounce update-session events.
func (q *Queue) SendDelayed(msgType string, payload any, delaySeconds int) error {
	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("queue: marshal %s: %w", msgType, err)
	}

	msg := models.QueueMessage{
		Type:      msgType,
		Payload:   string(data),
		VisibleAt: time.Now().Add(time.Duration(delaySeconds) * time.Second),
	}
	if err := q.db.Create(&msg).Error; err != nil {
		return fmt.Errorf("queue: send %s: %w", msgType, err)
	}
	return nil
}

// Receive claims the oldest deliverable message for consumer. Returns
// ErrEmpty when nothing is visible. The claim is taken inside a
// transaction so two consumers cannot claim the same message.
func (q *Queue) Receive(consumer string) (*models.QueueMessage, error) {
	var claimed *models.QueueMessage

	err := q.db.Transaction(func(tx *gorm.DB) error {
		now := time.Now()
		staleClaim := now.Add(-q.ClaimTimeout)

		var msg models.QueueMessage
		err := tx.
			Where("done = ? AND dead = ? AND visible_at <= ?", false, false, now).
			Where("claimed_at IS NULL OR claimed_at <= ?", staleClaim).
			Order("id ASC").
			First(&msg).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrEmpty
		}
		if err != nil {
			return fmt.Errorf("queue: receive: %w", err)
		}

		res := tx.Model(&models.QueueMessage{}).
			Where("id = ? AND (claimed_at IS NULL OR claimed_at <= ?)", msg.ID, staleClaim).
			Updates(map[string]any{
				"claimed_by": consumer,
				"claimed_at": now,
				"attempts":   gorm.Expr("attempts + 1"),
			})
		if res.Error != nil {
			return fmt.Errorf("queue: claim %d: %w", msg.ID, res.Error)
		}
		if res.RowsAffected == 0 {
			return ErrEmpty
		}

		msg.ClaimedBy = consumer
		msg.ClaimedAt = &now
		msg.Attempts++
		claimed = &msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	return claimed, nil
}

// Ack marks a claimed message as successfully processed.
func (q *Queue) Ack(id uint) error {
	if err := q.db.Model(&models.QueueMessage{}).Where("id = ?", id).Update("done", true).Error; err != nil {
		return fmt.Errorf("queue: ack %d: %w", id, err)
	}
	return nil
}

// Nack releases a claimed message for redelivery after a backoff.
// Messages that have exhausted their attempts are marked dead instead.
func (q *Queue) Nack(id uint) error {
	var msg models.QueueMessage
	if err := q.db.First(&msg, id).Error; err != nil {
		return fmt.Errorf("queue: nack %d: %w", id, err)
	}

	updates := map[string]any{
		"claimed_by": "",
		"claimed_at": nil,
		"visible_at": time.Now().Add(nackBackoff),
	}
	if msg.Attempts >= maxAttempts {
		updates["dead"] = true
	}
	if err := q.db.Model(&models.QueueMessage{}).Where("id = ?", id).Updates(updates).Error; err != nil {
		return fmt.Errorf("queue: nack %d: %w", id, err)
	}
	return nil
}

// DecodePayload unmarshals a message payload into dst.
func DecodePayload(msg *models.QueueMessage, dst any) error {
	if err := json.Unmarshal([]byte(msg.Payload), dst); err != nil {
		return fmt.Errorf("queue: decode %s payload: %w", msg.Type, err)
	}
	return nil
}
