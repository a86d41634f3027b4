package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"
	"time"
	"unicode"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

var (
	slugInvalid = regexp.MustCompile(`[^a-z0-9\s-]`)
	slugSpace   = regexp.MustCompile(`[\s-]+`)
)

// errSlugTaken is shown when a user reuses one of their report slugs.
const errSlugTaken = "You already have a trip report with this URL slug. Please choose another."

// Slugify lowercases s, strips accents and punctuation, and joins words with hyphens.
func Slugify(s string) string {
	folded, _, errFold := transform.String(transform.Chain(norm.NFKD, runes.Remove(runes.In(unicode.Mn)), norm.NFC), s)
	if errFold != nil {
		folded = s
	}
	folded = slugInvalid.ReplaceAllString(strings.ToLower(folded), "")
	return strings.Trim(slugSpace.ReplaceAllString(strings.TrimSpace(folded), "-"), "-_")
}

// ReportStore persists trip reports.
type ReportStore struct {
	db *gorm.DB
}

// NewReportStore constructs a ReportStore.
func NewReportStore(db *gorm.DB) *ReportStore {
	return &ReportStore{db: db}
}

func checkReport(report *models.TripReport) error {
	verr := apperr.NewValidation()
	if strings.TrimSpace(report.Title) == "" {
		verr.Add("title", "This field is required.")
	}
	if report.Slug == "" {
		report.Slug = Slugify(report.Title)
	}
	if report.Slug == "" {
		verr.Add("slug", "This field is required.")
	}
	if report.PubDate.IsZero() {
		report.PubDate = time.Now().UTC()
	}
	if report.Privacy == "" {
		report.Privacy = models.PrivacyDefault
	}
	if !report.Privacy.Valid() {
		verr.Add("privacy", fmt.Sprintf("Select a valid choice. %s is not one of the available choices.", report.Privacy))
	}
	return verr.OrNil()
}

// Create inserts report. A duplicate (user, slug) pair is reported as a
// conflict on the slug field.
func (s *ReportStore) Create(ctx context.Context, report *models.TripReport) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("report store: not initialized")
	}
	if errCheck := checkReport(report); errCheck != nil {
		return errCheck
	}
	var existing int64
	if errCount := s.db.WithContext(ctx).Model(&models.TripReport{}).Where("trip_id = ?", report.TripID).Count(&existing).Error; errCount != nil {
		return fmt.Errorf("report store: create: %w", errCount)
	}
	if existing > 0 {
		return apperr.Validation("This trip already has a report.")
	}
	if errCreate := s.db.WithContext(ctx).Omit(clause.Associations).Create(report).Error; errCreate != nil {
		if db.IsUniqueViolation(errCreate) {
			return apperr.Conflict("slug", errSlugTaken, errCreate)
		}
		return fmt.Errorf("report store: create: %w", errCreate)
	}
	return nil
}

// Update saves report.
func (s *ReportStore) Update(ctx context.Context, report *models.TripReport) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("report store: not initialized")
	}
	if errCheck := checkReport(report); errCheck != nil {
		return errCheck
	}
	if errSave := s.db.WithContext(ctx).Omit(clause.Associations).Save(report).Error; errSave != nil {
		if db.IsUniqueViolation(errSave) {
			return apperr.Conflict("slug", errSlugTaken, errSave)
		}
		return fmt.Errorf("report store: update: %w", errSave)
	}
	return nil
}

// Get loads a report by primary key.
func (s *ReportStore) Get(ctx context.Context, id uint64) (*models.TripReport, error) {
	return s.first(ctx, "id = ?", id)
}

// ByTrip loads the report attached to tripID.
func (s *ReportStore) ByTrip(ctx context.Context, tripID uint64) (*models.TripReport, error) {
	return s.first(ctx, "trip_id = ?", tripID)
}

// BySlug loads one of userID's reports by slug.
func (s *ReportStore) BySlug(ctx context.Context, userID uint64, slug string) (*models.TripReport, error) {
	return s.first(ctx, "user_id = ? AND slug = ?", userID, slug)
}

func (s *ReportStore) first(ctx context.Context, query string, args ...any) (*models.TripReport, error) {
	if s == nil || s.db == nil {
		return nil, fmt.Errorf("report store: not initialized")
	}
	var report models.TripReport
	if errFind := s.db.WithContext(ctx).Where(query, args...).First(&report).Error; errFind != nil {
		if db.IsNotFound(errFind) {
			return nil, apperr.NotFound("report")
		}
		return nil, fmt.Errorf("report store: find: %w", errFind)
	}
	return &report, nil
}

// Delete removes a report and its likes.
func (s *ReportStore) Delete(ctx context.Context, id uint64) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if errLikes := tx.Where("report_id = ?", id).Delete(&models.ReportLike{}).Error; errLikes != nil {
			return fmt.Errorf("report store: delete likes: %w", errLikes)
		}
		if errDelete := tx.Delete(&models.TripReport{}, id).Error; errDelete != nil {
			return fmt.Errorf("report store: delete: %w", errDelete)
		}
		return nil
	})
}

// ToggleLike flips userID's like on the report and returns the new state.
func (s *ReportStore) ToggleLike(ctx context.Context, reportID, userID uint64) (bool, error) {
	liked := false
	errTx := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Where("report_id = ? AND user_id = ?", reportID, userID).Delete(&models.ReportLike{})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected > 0 {
			return nil
		}
		liked = true
		return tx.Create(&models.ReportLike{ReportID: reportID, UserID: userID}).Error
	})
	if errTx != nil {
		return false, fmt.Errorf("report store: toggle like: %w", errTx)
	}
	return liked, nil
}

// AddView increments the view counter unless viewer is anonymous or the owner.
func (s *ReportStore) AddView(ctx context.Context, viewer *models.User, report *models.TripReport) error {
	if viewer == nil || report == nil || viewer.ID == report.UserID {
		return nil
	}
	return s.db.WithContext(ctx).Model(&models.TripReport{}).Where("id = ?", report.ID).
		UpdateColumn("view_count", gorm.Expr("view_count + 1")).Error
}
