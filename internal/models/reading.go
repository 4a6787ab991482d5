// Package models defines GORM data models for PicoRelay.
package models

import (
	"time"

	"gorm.io/gorm"
)

// Reading stores one temperature/fan report from a Pico node.
// Rows are append-only: written once by the ingest endpoint, never updated.
// The live presence tracker keeps the most recent Reading per device in
// memory; this table is the durable history behind /api/db-data.
type Reading struct {
	gorm.Model `json:"-"`

	DeviceID string  `gorm:"index;not null" json:"device_id"`
	Temp     float64 `json:"temp"`
	// Fan is the reported fan duty in percent (0 when the node has no fan).
	Fan float64 `json:"fan"`
	// Mode is the node's control mode ("auto", "manual", ...); nil when the
	// firmware does not report one.
	Mode *string `json:"mode"`

	// ReportedAt is the server-side arrival time of the reading.
	ReportedAt time.Time `gorm:"index" json:"timestamp"`
}
