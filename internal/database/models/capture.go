package models

import (
	"time"
)

// Capture is a NetLog capture being ingested. File captures are tailed
// from Path; live captures receive events over a websocket and have no
// path.
type Capture struct {
	Name            string `gorm:"primaryKey"`
	CaptureID       string `gorm:"size:36;uniqueIndex"`
	Path            string
	ParserType      string `gorm:"not null;index"`
	Live            bool   `gorm:"default:false"`
	LastLineContent string
	LastPosition    int64 `gorm:"default:0"`
	LastInode       int64 `gorm:"default:0"` // File inode for identity tracking (SQLite only supports int64)
	LastReadAt      *time.Time
	TimeTickOffset  int64
	Constants       string `gorm:"type:text"` // Parser state, the capture's constants header as JSON
	PolledData      string `gorm:"type:text"` // polledData of a loaded export
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

func (Capture) TableName() string {
	return "captures"
}
