package photos

import (
	"context"
	"fmt"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/store"
)

const (
	defaultSweepInterval = 10 * time.Minute
	// SweepMargin is added to the upload TTL before an unconfirmed photo is removed.
	SweepMargin = 60 * time.Second
)

// SweepResult counts the photos one sweep touched.
type SweepResult struct {
	DeletedInvalid int64
	MarkedOrphans  int64
}

// Sweeper removes photos whose upload was never confirmed and marks photos
// without a trip or owner as deleted.
type Sweeper struct {
	photos   *store.PhotoStore
	ttl      time.Duration
	interval time.Duration
	now      func() time.Time
}

// NewSweeper constructs a Sweeper for uploads signed with ttl.
func NewSweeper(db *gorm.DB, ttl time.Duration) *Sweeper {
	if db == nil {
		return nil
	}
	if ttl <= 0 {
		ttl = DefaultUploadTTL
	}
	return &Sweeper{
		photos:   store.NewPhotoStore(db),
		ttl:      ttl,
		interval: defaultSweepInterval,
		now:      time.Now,
	}
}

// Start runs the sweep loop in the background.
func (s *Sweeper) Start(ctx context.Context) {
	if s == nil {
		return
	}
	go s.run(ctx)
	log.Infof("photo sweeper started (interval=%s)", s.interval)
}

func (s *Sweeper) run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				log.WithError(err).Warn("photo sweeper: sweep failed")
			}
		}
	}
}

// SweepOnce deletes unconfirmed photos older than the upload TTL plus
// SweepMargin, then marks orphaned photos deleted.
func (s *Sweeper) SweepOnce(ctx context.Context) (SweepResult, error) {
	if s == nil || s.photos == nil {
		return SweepResult{}, fmt.Errorf("photo sweeper: not initialized")
	}
	now := s.now()
	var res SweepResult
	deleted, errDelete := s.photos.DeleteInvalidBefore(ctx, now.Add(-(s.ttl + SweepMargin)))
	if errDelete != nil {
		return res, errDelete
	}
	res.DeletedInvalid = deleted
	orphans, errOrphans := s.photos.MarkOrphansDeleted(ctx, now)
	if errOrphans != nil {
		return res, errOrphans
	}
	res.MarkedOrphans = orphans
	if deleted > 0 || orphans > 0 {
		log.Infof("photo sweeper: deleted %d invalid photos and marked %d orphaned photos as deleted", deleted, orphans)
	}
	return res, nil
}
