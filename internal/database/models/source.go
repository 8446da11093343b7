package models

import (
	"time"
)

// SourceRecord is the persisted classification of one NetLog source
type SourceRecord struct {
	ID                  uint   `gorm:"primaryKey;autoIncrement"`
	CaptureName         string `gorm:"not null;uniqueIndex:idx_capture_source"`
	SourceID            int64  `gorm:"not null;uniqueIndex:idx_capture_source"`
	SourceType          string `gorm:"not null;index:idx_source_type"`
	Description         string
	IsError             bool      `gorm:"default:false"`
	IsInactive          bool      `gorm:"default:false"`
	StartTime           time.Time `gorm:"index:idx_source_start"`
	EndTime             time.Time
	DurationMs          int64
	EventCount          int
	MaxPreviousSourceID int64

	// GeoIP enrichment for sources described by an IP address
	GeoCountry string
	GeoCity    string
	ASN        int
	ASNOrg     string

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (SourceRecord) TableName() string {
	return "source_records"
}

// EventRecord is a single persisted NetLog event
type EventRecord struct {
	ID          uint      `gorm:"primaryKey;autoIncrement"`
	CaptureName string    `gorm:"not null;index:idx_event_source,priority:1"`
	SourceID    int64     `gorm:"not null;index:idx_event_source,priority:2"`
	Seq         int       `gorm:"not null;index:idx_event_source,priority:3"` // Position within the source
	Type        string    `gorm:"not null"`
	Phase       int       `gorm:"not null"`
	Ticks       int64     `gorm:"not null"`
	Timestamp   time.Time `gorm:"not null;index:idx_event_timestamp"`
	Params      string    `gorm:"type:text"` // JSON
}

func (EventRecord) TableName() string {
	return "event_records"
}
