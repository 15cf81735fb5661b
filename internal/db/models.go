package db

import (
	"time"
)

// FetchCycle records one resolved catalog fetch. Only the outcome is stored,
// never the books themselves.
type FetchCycle struct {
	ID         uint      `gorm:"primarykey" json:"id"`
	CreatedAt  time.Time `gorm:"index" json:"createdAt"`
	Seq        uint64    `json:"seq"`
	Topic      string    `gorm:"index" json:"topic"`
	Page       int       `json:"page"`
	Offset     int       `json:"offset"`
	NumFound   int       `json:"numFound"`
	Returned   int       `json:"returned"`
	Valid      int       `json:"valid"`
	Dropped    int       `json:"dropped"`
	Outcome    string    `gorm:"index" json:"outcome"` // ready, empty, transport, discarded
	Error      string    `json:"error,omitempty"`
	DurationMs int64     `json:"durationMs"`
}
