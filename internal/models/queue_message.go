package models

import "time"

// QueueMessage backs the at-least-once event queue. A message becomes
// deliverable once VisibleAt has passed; consumers claim it, process it
// and mark it done, or nack it back with a later VisibleAt. Messages
// that exhaust their attempts are flagged dead and kept for inspection.
type QueueMessage struct {
	ID        uint      `gorm:"primaryKey;autoIncrement"`
	Type      string    `gorm:"size:32;not null;index"`
	Payload   string    `gorm:"type:text"`
	VisibleAt time.Time `gorm:"index"`
	Attempts  int       `gorm:"default:0"`
	ClaimedBy string    `gorm:"size:64"`
	ClaimedAt *time.Time
	Done      bool `gorm:"default:false;index"`
	Dead      bool `gorm:"default:false"`
	CreatedAt time.Time
}
