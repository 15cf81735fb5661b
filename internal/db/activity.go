package db

import (
	"context"
	"time"

	"github.com/shelfarr/shelfbrowse/internal/catalog"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// ActivityStore persists fetch cycle reports. It implements catalog.Observer.
type ActivityStore struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

// NewActivityStore creates a store on an initialized database
func NewActivityStore(db *gorm.DB, log logrus.FieldLogger) *ActivityStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &ActivityStore{db: db, log: log}
}

func (s *ActivityStore) CycleSettled(r catalog.CycleReport)   { s.record(r) }
func (s *ActivityStore) CycleDiscarded(r catalog.CycleReport) { s.record(r) }

func (s *ActivityStore) record(r catalog.CycleReport) {
	entry := FetchCycle{
		Seq:        r.Seq,
		Topic:      string(r.Topic),
		Page:       r.Page,
		Offset:     r.Offset,
		NumFound:   r.NumFound,
		Returned:   r.Returned,
		Valid:      r.Valid,
		Dropped:    r.Dropped,
		Outcome:    r.Outcome(),
		DurationMs: r.Duration.Milliseconds(),
	}
	if r.Err != nil {
		entry.Error = r.Err.Error()
	}
	if err := s.db.Create(&entry).Error; err != nil {
		s.log.WithError(err).WithField("seq", r.Seq).Warn("Failed to record fetch cycle")
	}
}

// Recent returns the latest cycles, newest first
func (s *ActivityStore) Recent(ctx context.Context, limit int) ([]FetchCycle, error) {
	var cycles []FetchCycle
	err := s.db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&cycles).Error
	return cycles, err
}

// Prune deletes cycles recorded before the cutoff and returns how many were removed
func (s *ActivityStore) Prune(ctx context.Context, before time.Time) (int64, error) {
	res := s.db.WithContext(ctx).Where("created_at < ?", before).Delete(&FetchCycle{})
	return res.RowsAffected, res.Error
}
