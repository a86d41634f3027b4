// Package search finds trips by free text across the fields a user can see.
package search

import (
	"context"
	"strings"

	"github.com/cavelog/cavelog/internal/apperr"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/textfold"
	"github.com/cavelog/cavelog/internal/visibility"
	"gorm.io/gorm"
)

const (
	// PageSize is the number of results per page.
	PageSize = 10
	// MinTermsLength is the shortest accepted search.
	MinTermsLength = 3

	msgTermsTooShort   = "Search terms must be at least 3 characters."
	msgUsernameMissing = "Username not found."
)

// Field names a searchable trip attribute.
type Field string

const (
	FieldCavers       Field = "cavers"
	FieldCaveName     Field = "cave_name"
	FieldCaveEntrance Field = "cave_entrance"
	FieldCaveExit     Field = "cave_exit"
	FieldRegion       Field = "region"
	FieldCountry      Field = "country"
	FieldClubs        Field = "clubs"
	FieldExpedition   Field = "expedition"
	FieldNotes        Field = "notes"
)

// Query is a validated search request.
type Query struct {
	Terms    string   `json:"terms"`
	Username string   `json:"user"`
	Type     string   `json:"trip_type"`
	Fields   []string `json:"fields"`
	Page     int      `json:"page"`
}

// Result is one page of matches.
type Result struct {
	Trips []*models.Trip `json:"trips"`
	Total int            `json:"total"`
	Page  int            `json:"page"`
	Pages int            `json:"pages"`
}

// Service runs searches.
type Service struct {
	users *store.UserStore
	trips *store.TripStore
}

// NewService constructs a Service.
func NewService(db *gorm.DB) *Service {
	return &Service{users: store.NewUserStore(db), trips: store.NewTripStore(db)}
}

// Search returns the page of trips matching q that viewer may see.
func (s *Service) Search(ctx context.Context, viewer *models.User, q Query) (*Result, error) {
	if viewer == nil {
		return nil, apperr.Forbidden("You must be signed in to search.")
	}
	verr := apperr.NewValidation()
	terms := strings.TrimSpace(q.Terms)
	if len([]rune(terms)) < MinTermsLength {
		verr.Add("terms", msgTermsTooShort)
	}
	var searchUser *models.User
	if username := strings.TrimSpace(q.Username); username != "" {
		u, errUser := s.users.ByUsername(ctx, username)
		switch {
		case errUser == nil:
			searchUser = u
		case apperr.Is(errUser, apperr.KindNotFound):
			verr.Add("user", msgUsernameMissing)
		default:
			return nil, errUser
		}
	}
	if verr.HasErrors() {
		return nil, verr
	}

	opts := store.ListOptions{Order: models.FeedByStart}
	friendIDs, errFriends := s.users.FriendIDs(ctx, viewer.ID)
	if errFriends != nil {
		return nil, errFriends
	}
	if searchUser != nil {
		opts.UserIDs = []uint64{searchUser.ID}
	} else {
		opts.UserIDs = append([]uint64{viewer.ID}, friendIDs...)
		opts.IncludePublic = true
	}
	if tt := strings.TrimSpace(q.Type); tt != "" && !strings.EqualFold(tt, "any") {
		opts.Types = []models.TripType{models.TripType(tt)}
	}
	m := newMatcher(terms, q.Fields)
	// The store narrows candidates by folded text; the matcher makes the
	// final per field decision.
	opts.Contains = m.terms
	candidates, errList := s.trips.List(ctx, opts)
	if errList != nil {
		return nil, errList
	}

	ownerIDs := make([]uint64, 0, len(candidates))
	for _, trip := range candidates {
		ownerIDs = append(ownerIDs, trip.UserID)
	}
	owners, errOwners := s.users.ListByIDs(ctx, ownerIDs)
	if errOwners != nil {
		return nil, errOwners
	}
	viewerSet := visibility.NewFriendSet(viewer.ID)
	viewerFriends := visibility.NewFriendSet(friendIDs...)

	var matches []*models.Trip
	for _, trip := range candidates {
		owner := owners[trip.UserID]
		if owner == nil || !m.match(viewer, trip, owner) {
			continue
		}
		// The viewer is in the owner's friend set exactly when the owner is
		// one of the viewer's friends.
		ownerFriends := visibility.FriendSet(nil)
		if viewerFriends.Has(owner.ID) {
			ownerFriends = viewerSet
		}
		if !visibility.TripVisible(viewer, trip, owner, ownerFriends) {
			continue
		}
		visibility.Sanitise(viewer, trip, owner)
		matches = append(matches, trip)
	}
	return paginate(matches, q.Page), nil
}

func paginate(trips []*models.Trip, page int) *Result {
	total := len(trips)
	pages := max((total+PageSize-1)/PageSize, 1)
	// Out of range pages clamp like a paginator's get_page.
	if page < 1 {
		page = 1
	}
	if page > pages {
		page = pages
	}
	start := min((page-1)*PageSize, total)
	end := min(start+PageSize, total)
	return &Result{Trips: trips[start:end], Total: total, Page: page, Pages: pages}
}

// matcher is built per search; its folder is not shared between goroutines.
type matcher struct {
	folder *textfold.Folder
	terms  string
	fields map[Field]bool
}

func newMatcher(terms string, fields []string) *matcher {
	folder := textfold.New()
	m := &matcher{folder: folder, terms: folder.String(terms), fields: make(map[Field]bool)}
	for _, f := range fields {
		m.fields[Field(strings.TrimSpace(f))] = true
	}
	return m
}

// wants reports whether f is searched. No fields selected means all fields.
func (m *matcher) wants(f Field) bool {
	return len(m.fields) == 0 || m.fields[f]
}

func (m *matcher) contains(value string) bool {
	return value != "" && strings.Contains(m.folder.String(value), m.terms)
}

func (m *matcher) match(viewer *models.User, trip *models.Trip, owner *models.User) bool {
	if m.wants(FieldCavers) {
		for _, name := range trip.CaverNames() {
			if m.contains(name) {
				return true
			}
		}
	}
	textFields := []struct {
		field Field
		value string
	}{
		{FieldCaveName, trip.CaveName},
		{FieldCaveEntrance, trip.CaveEntrance},
		{FieldCaveExit, trip.CaveExit},
		{FieldRegion, trip.CaveRegion},
		{FieldClubs, trip.Clubs},
		{FieldExpedition, trip.Expedition},
	}
	for _, tf := range textFields {
		if m.wants(tf.field) && m.contains(tf.value) {
			return true
		}
	}
	if m.wants(FieldCountry) && trip.CaveCountry != "" && m.folder.String(trip.CaveCountry) == m.terms {
		return true
	}
	if m.wants(FieldNotes) && (!owner.PrivateNotes || viewer.ID == owner.ID) && m.contains(trip.Notes) {
		return true
	}
	return false
}
