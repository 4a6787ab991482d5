// Package models defines GORM data models for PicoRelay.
package models

import (
	"time"

	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Command is one mailbox entry: a dashboard-issued configuration payload
// waiting for its device to poll. Entries are append-only apart from the
// Consumed flag, which flips false→true exactly once when a consume-poll
// delivers the entry. Delivered rows are kept as an audit trail.
//
// The gorm.Model uint primary key gives a total FIFO order even when two
// enqueues land on the same timestamp; CommandID is the opaque identifier
// exposed over the API.
type Command struct {
	gorm.Model `json:"-"`

	CommandID string `gorm:"uniqueIndex;not null" json:"id"`
	DeviceID  string `gorm:"index;not null" json:"device_id"`

	// Params is the arbitrary structured payload, stored verbatim as JSON.
	Params datatypes.JSON `json:"params"`

	Consumed    bool       `gorm:"default:false" json:"consumed"`
	QueuedAt    time.Time  `gorm:"index" json:"timestamp"`
	DeliveredAt *time.Time `json:"delivered_at,omitempty"`
}
