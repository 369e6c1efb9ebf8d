package models

import "time"

// Delivery status values recorded per notification attempt.
const (
	DeliverySent    = "sent"
	DeliveryFailed  = "failed"
	DeliverySkipped = "skipped"
	DeliveryLogged  = "logged"
)

// Notification is one delivery attempt in the audit log.
type Notification struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Type      string    `gorm:"size:32;index" json:"type"`
	Protocol  string    `gorm:"size:32;index" json:"protocol"`
	Recipient string    `gorm:"size:255" json:"recipient"`
	Subject   string    `gorm:"size:255" json:"subject"`
	Status    string    `gorm:"size:16" json:"status"`
	Error     string    `gorm:"type:text" json:"error,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}
