// Package seed generates random but reproducible development data.
package seed

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/brianvoe/gofakeit/v7"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/distance"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

// Options controls how much data Run creates.
type Options struct {
	Users      int
	Trips      int
	Reports    int
	Friends    int
	AdminTrips int
	NoLikes    bool
	NoComments bool
	// Password is set on every generated account. Blank leaves accounts
	// without a usable password.
	Password string
}

// DefaultOptions mirrors the command line defaults.
func DefaultOptions() Options {
	return Options{Users: 25, Trips: 6000, Reports: 50, Friends: 5}
}

// Summary counts the rows Run created.
type Summary struct {
	Users       int
	Trips       int
	Reports     int
	Friendships int
	Likes       int
	Comments    int
}

// Generator writes seeded development data.
type Generator struct {
	db       *gorm.DB
	users    *store.UserStore
	trips    *store.TripStore
	reports  *store.ReportStore
	comments *store.CommentStore
	cavers   *store.CaverStore
	fake     *gofakeit.Faker
	now      func() time.Time
}

// New constructs a Generator. The same seed produces the same data.
func New(db *gorm.DB, seed uint64) *Generator {
	return &Generator{
		db:       db,
		users:    store.NewUserStore(db),
		trips:    store.NewTripStore(db),
		reports:  store.NewReportStore(db),
		comments: store.NewCommentStore(db),
		cavers:   store.NewCaverStore(db),
		fake:     gofakeit.New(seed),
		now:      time.Now,
	}
}

// Run creates users, then trips spread across them, then the optional
// social data.
func (g *Generator) Run(ctx context.Context, opts Options) (Summary, error) {
	var sum Summary
	log.Warn("generating large amounts of test data may take a long time")

	users, errUsers := g.makeUsers(ctx, opts)
	sum.Users = len(users)
	if errUsers != nil {
		return sum, errUsers
	}
	if len(users) == 0 {
		return sum, nil
	}

	trips := make([]*models.Trip, 0, opts.Trips+opts.AdminTrips)
	for i := 0; i < opts.Trips; i++ {
		owner := users[g.fake.IntRange(0, len(users)-1)]
		trip, errTrip := g.makeTrip(ctx, owner)
		if errTrip != nil {
			return sum, errTrip
		}
		trips = append(trips, trip)
	}
	if opts.AdminTrips > 0 {
		admin, errAdmin := g.admin(ctx, opts.Password)
		if errAdmin != nil {
			return sum, errAdmin
		}
		for i := 0; i < opts.AdminTrips; i++ {
			trip, errTrip := g.makeTrip(ctx, admin)
			if errTrip != nil {
				return sum, errTrip
			}
			trips = append(trips, trip)
		}
	}
	sum.Trips = len(trips)
	if len(trips) == 0 {
		return sum, nil
	}

	var errSocial error
	if sum.Reports, errSocial = g.makeReports(ctx, trips, opts.Reports); errSocial != nil {
		return sum, errSocial
	}
	if sum.Friendships, errSocial = g.makeFriends(ctx, users, opts.Friends); errSocial != nil {
		return sum, errSocial
	}
	if !opts.NoLikes {
		if sum.Likes, errSocial = g.makeLikes(ctx, users, trips); errSocial != nil {
			return sum, errSocial
		}
	}
	if !opts.NoComments {
		if sum.Comments, errSocial = g.makeComments(ctx, users, trips); errSocial != nil {
			return sum, errSocial
		}
	}
	log.Infof("seed: created %d users and %d trips", sum.Users, sum.Trips)
	return sum, nil
}

func (g *Generator) makeUsers(ctx context.Context, opts Options) ([]*models.User, error) {
	var existing int64
	if errCount := g.db.WithContext(ctx).Model(&models.User{}).Count(&existing).Error; errCount != nil {
		return nil, fmt.Errorf("seed: count users: %w", errCount)
	}
	users := make([]*models.User, 0, opts.Users)
	for i := 0; i < opts.Users; i++ {
		n := int(existing) + i + 1
		u := &models.User{
			Username:            fmt.Sprintf("user%d", n),
			Email:               fmt.Sprintf("user%d@caves.app", n),
			Name:                truncate(g.fake.Name(), 35),
			IsActive:            g.fake.IntRange(1, 100) <= 90,
			Bio:                 g.words(20, 80),
			Location:            truncate(g.fake.City(), 50),
			Clubs:               g.club(),
			Timezone:            g.fake.TimeZoneRegion(),
			AllowFriendEmail:    g.fake.Bool(),
			AllowFriendUsername: g.fake.Bool(),
			AllowComments:       g.fake.Bool(),
			Privacy:             models.Privacy(g.fake.RandomString([]string{"Public", "Friends", "Private"})),
			Units:               distance.System(g.fake.RandomString([]string{string(distance.Metric), string(distance.Imperial)})),
		}
		u.HasVerifiedEmail = u.IsActive
		if errCreate := g.users.Create(ctx, u, opts.Password); errCreate != nil {
			return users, fmt.Errorf("seed: create user %s (perhaps the database already holds test data?): %w", u.Email, errCreate)
		}
		// Columns with a database default of true are skipped by gorm on
		// insert when false, so write the generated settings again.
		if errUpdate := g.users.Update(ctx, u); errUpdate != nil {
			return users, errUpdate
		}
		log.Debugf("seed: created user %s: %s", u.Email, u.Name)
		users = append(users, u)
	}
	return users, nil
}

func (g *Generator) admin(ctx context.Context, password string) (*models.User, error) {
	if u, errFind := g.users.ByUsername(ctx, "admin"); errFind == nil {
		return u, nil
	}
	u := &models.User{
		Username:         "admin",
		Email:            "admin@caves.app",
		Name:             "Admin",
		IsActive:         true,
		HasVerifiedEmail: true,
		IsSuperuser:      true,
		Privacy:          models.PrivacyPublic,
		Timezone:         "Europe/London",
	}
	if errCreate := g.users.Create(ctx, u, password); errCreate != nil {
		return nil, fmt.Errorf("seed: create admin: %w", errCreate)
	}
	return u, nil
}

func (g *Generator) makeTrip(ctx context.Context, owner *models.User) (*models.Trip, error) {
	now := g.now().UTC()
	start := now.Add(-time.Duration(g.fake.IntRange(1, 20*365*24*60)) * time.Minute)
	var length time.Duration
	if g.fake.IntRange(1, 100) <= 5 {
		length = time.Duration(g.fake.IntRange(60, 10*24*60)) * time.Minute
	} else {
		length = time.Duration(g.fake.IntRange(30, 14*60)) * time.Minute
	}
	end := start.Add(length)

	trip := &models.Trip{
		UserID:         owner.ID,
		CaveName:       g.caveName(),
		CaveEntrance:   g.maybe(20, g.caveName),
		CaveExit:       g.maybe(20, g.caveName),
		CaveRegion:     truncate(g.fake.State(), 100),
		CaveCountry:    truncate(g.fake.Country(), 100),
		Start:          start,
		End:            &end,
		Type:           models.TripTypes[g.fake.IntRange(0, len(models.TripTypes)-1)],
		Clubs:          g.club(),
		Expedition:     g.maybe(20, g.expedition),
		Privacy:        models.Privacy(g.fake.RandomString([]string{"Default", "Public", "Friends", "Private"})),
		Notes:          g.words(0, 60),
		HorizontalDist: g.distance(10, 200, 60),
		VertDistUp:     g.distance(10, 200, 30),
		VertDistDown:   g.distance(10, 200, 30),
		SurveyedDist:   g.distance(10, 800, 80),
		ResurveyedDist: g.distance(10, 800, 90),
		AidDist:        g.distance(20, 80, 95),
	}
	if g.fake.IntRange(1, 100) <= 30 {
		lat, lng := g.fake.Latitude(), g.fake.Longitude()
		trip.CaveLocation = fmt.Sprintf("%.5f, %.5f", lat, lng)
		trip.Latitude, trip.Longitude = &lat, &lng
	}

	var caverIDs []uint64
	for i, n := 0, g.fake.IntRange(0, 5); i < n; i++ {
		caver, errCaver := g.cavers.GetOrCreateByName(ctx, owner.ID, truncate(g.fake.Name(), 40))
		if errCaver != nil {
			return nil, errCaver
		}
		caverIDs = append(caverIDs, caver.ID)
	}
	if errCreate := g.trips.Create(ctx, trip, caverIDs); errCreate != nil {
		return nil, fmt.Errorf("seed: create trip: %w", errCreate)
	}
	log.Debugf("seed: created trip %d for user %s", trip.ID, owner.Email)
	return trip, nil
}

func (g *Generator) makeReports(ctx context.Context, trips []*models.Trip, n int) (int, error) {
	if n > len(trips) {
		n = len(trips)
	}
	order := make([]int, len(trips))
	for i := range order {
		order[i] = i
	}
	g.fake.ShuffleInts(order)
	created := 0
	for _, idx := range order[:n] {
		trip := trips[idx]
		title := truncate("A trip to "+trip.CaveName, 100)
		report := &models.TripReport{
			TripID:  trip.ID,
			UserID:  trip.UserID,
			Title:   title,
			Slug:    truncate(store.Slugify(title)+"-"+trip.UUID[:8], 100),
			PubDate: trip.Start,
			Content: g.words(100, 400),
			Privacy: models.PrivacyDefault,
		}
		if errCreate := g.reports.Create(ctx, report); errCreate != nil {
			return created, fmt.Errorf("seed: create report: %w", errCreate)
		}
		created++
	}
	return created, nil
}

func (g *Generator) makeFriends(ctx context.Context, users []*models.User, per int) (int, error) {
	if len(users) < 2 || per <= 0 {
		return 0, nil
	}
	created := 0
	errTx := g.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, u := range users {
			for i := 0; i < per; i++ {
				other := users[g.fake.IntRange(0, len(users)-1)]
				if other.ID == u.ID {
					continue
				}
				if errAdd := store.AddFriendshipTx(tx, u.ID, other.ID); errAdd != nil {
					return errAdd
				}
				created++
			}
		}
		return nil
	})
	if errTx != nil {
		return 0, fmt.Errorf("seed: friendships: %w", errTx)
	}
	return created, nil
}

func (g *Generator) makeLikes(ctx context.Context, users []*models.User, trips []*models.Trip) (int, error) {
	created := 0
	for _, trip := range trips {
		for i, n := 0, g.fake.IntRange(0, 3); i < n; i++ {
			liker := users[g.fake.IntRange(0, len(users)-1)]
			added, errLike := g.trips.Like(ctx, trip.ID, liker.ID)
			if errLike != nil {
				return created, errLike
			}
			if added {
				created++
			}
		}
	}
	return created, nil
}

func (g *Generator) makeComments(ctx context.Context, users []*models.User, trips []*models.Trip) (int, error) {
	created := 0
	for _, trip := range trips {
		if g.fake.IntRange(1, 100) > 20 {
			continue
		}
		for i, n := 0, g.fake.IntRange(1, 4); i < n; i++ {
			author := users[g.fake.IntRange(0, len(users)-1)]
			c := &models.Comment{TripID: trip.ID, AuthorID: author.ID, Content: g.words(3, 40)}
			if errCreate := g.comments.Create(ctx, c); errCreate != nil {
				return created, errCreate
			}
			created++
		}
	}
	return created, nil
}

var (
	caveSuffixes = []string{
		"Cave", "Pot", "Mine", "Shaft", "Adit", "Tunnel", "Rift", "Swallet", "Sink",
		"Rise", "Spring", "Sump", "Chamber", "Passage", "Aven", "Pitch", "Cavern",
		"Grotto", "Caverns", "Caves", "Pothole", "Mines",
	}
	expeditionSuffixes = []string{
		"Cave Project", "Cave Expedition", "Cave Exploration", "Cave Survey",
		"Cave Dig", "Diggers", "Explorers", "Surveyors", "Cave Diving", "Project",
	}
	clubMiddles = []string{
		"Caving", "Potholing", "Spelunking", "Cave Diving", "Cave Exploration",
		"Cave Survey", "Digging", "Mining", "Speleological", "Cave Research",
	}
	clubSuffixes = []string{"Club", "Society", "Group", "Association", "Team"}
)

func (g *Generator) caveName() string {
	return truncate(g.fake.City()+" "+g.fake.RandomString(caveSuffixes), 100)
}

func (g *Generator) expedition() string {
	return truncate(g.fake.City()+" "+g.fake.RandomString(expeditionSuffixes), 100)
}

func (g *Generator) club() string {
	if g.fake.IntRange(1, 100) > 60 {
		return ""
	}
	return truncate(g.fake.City()+" "+g.fake.RandomString(clubMiddles)+" "+g.fake.RandomString(clubSuffixes), 100)
}

// maybe returns gen() with the given percentage chance, otherwise "".
func (g *Generator) maybe(percent int, gen func() string) string {
	if g.fake.IntRange(1, 100) > percent {
		return ""
	}
	return gen()
}

// distance returns a metre distance in [min, max], or none with the given
// percentage chance.
func (g *Generator) distance(min, max, nonePercent int) distance.Null {
	if g.fake.IntRange(1, 100) <= nonePercent {
		return distance.Null{}
	}
	return distance.Some(distance.MustNew(float64(g.fake.IntRange(min, max)), "m"))
}

func (g *Generator) words(min, max int) string {
	n := g.fake.IntRange(min, max)
	if n == 0 {
		return ""
	}
	words := make([]string, n)
	for i := range words {
		words[i] = g.fake.Word()
	}
	text := strings.Join(words, " ")
	return strings.ToUpper(text[:1]) + text[1:] + "."
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n])
}
