package importer

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/metrics"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/trips"
)

// Preview is the parsed content of an import file awaiting confirmation.
type Preview struct {
	Drafts []*trips.Draft `json:"trips"`
	Errors []RowError     `json:"errors,omitempty"`
}

// Valid reports whether every row passed validation.
func (p *Preview) Valid() bool {
	return p != nil && len(p.Errors) == 0
}

// Service imports trips for a user.
type Service struct {
	trips  *store.TripStore
	cavers *store.CaverStore
	now    func() time.Time
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{trips: store.NewTripStore(db), cavers: store.NewCaverStore(db), now: time.Now}
}

// Preview parses and validates data without saving anything.
func (s *Service) Preview(ctx context.Context, user *models.User, data []byte) (*Preview, error) {
	rows, errParse := Parse(data)
	if errParse != nil {
		return nil, errParse
	}
	drafts, rowErrs, _ := Validate(rows, user.Zone(), s.now())
	return &Preview{Drafts: drafts, Errors: rowErrs}, nil
}

// Commit parses, validates and stores every row of data for user. Nothing is
// stored unless every row is valid.
func (s *Service) Commit(ctx context.Context, user *models.User, data []byte) ([]*models.Trip, error) {
	if user == nil {
		return nil, apperr.Forbidden("You must be signed in to do that.")
	}
	rows, errParse := Parse(data)
	if errParse != nil {
		return nil, errParse
	}
	drafts, rowErrs, errValidate := Validate(rows, user.Zone(), s.now())
	if errValidate != nil {
		metrics.RecordImportRows("rejected", len(rowErrs))
		return nil, errValidate
	}

	out := make([]*models.Trip, len(drafts))
	cavers := make([][]uint64, len(drafts))
	for i, d := range drafts {
		ids, errCavers := s.cavers.ResolveNames(ctx, user.ID, d.CaverNames())
		if errCavers != nil {
			return nil, errCavers
		}
		trip := &models.Trip{UserID: user.ID}
		d.Apply(trip)
		out[i] = trip
		cavers[i] = ids
	}
	if errCreate := s.trips.CreateMany(ctx, out, cavers); errCreate != nil {
		return nil, errCreate
	}
	metrics.RecordImportRows("imported", len(out))
	log.WithField("user", user.Username).Infof("%s imported %d trips", user.Name, len(out))
	return out, nil
}
