package feed

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"

	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
)

func openTestDB(t *testing.T, name string) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	return conn
}

func createUser(t *testing.T, users *store.UserStore, username string, privacy models.Privacy) *models.User {
	t.Helper()
	u := &models.User{Username: username, Email: username + "@example.com", Name: username, Privacy: privacy, IsActive: true}
	if err := users.Create(context.Background(), u, "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}
	return u
}

func TestPage_FriendsOnlyVisibleAndPaginated(t *testing.T) {
	conn := openTestDB(t, "feed_page")
	ctx := context.Background()
	users := store.NewUserStore(conn)
	trips := store.NewTripStore(conn)

	ann := createUser(t, users, "ann", models.PrivacyPrivate)
	bob := createUser(t, users, "bob", models.PrivacyFriends)
	cat := createUser(t, users, "cat", models.PrivacyPublic)
	if err := conn.Transaction(func(tx *gorm.DB) error { return store.AddFriendshipTx(tx, ann.ID, bob.ID) }); err != nil {
		t.Fatalf("befriend: %v", err)
	}

	base := time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC)
	add := func(owner *models.User, i int, privacy models.Privacy) *models.Trip {
		trip := &models.Trip{UserID: owner.ID, CaveName: "Cave", Start: base.Add(time.Duration(i) * time.Hour), Privacy: privacy, Notes: "secret"}
		if err := trips.Create(ctx, trip, nil); err != nil {
			t.Fatalf("create trip: %v", err)
		}
		return trip
	}
	add(ann, 0, models.PrivacyDefault)
	for i := 1; i <= 10; i++ {
		add(bob, i, models.PrivacyDefault)
	}
	add(bob, 11, models.PrivacyPrivate)
	add(cat, 12, models.PrivacyPublic)

	bob.PrivateNotes = true
	if err := users.Update(ctx, bob); err != nil {
		t.Fatalf("update: %v", err)
	}

	svc := NewService(conn)
	page1, err := svc.Page(ctx, ann, models.FeedByStart, 1)
	if err != nil {
		t.Fatalf("page 1: %v", err)
	}
	if len(page1) != PageSize {
		t.Fatalf("expected %d items, got %d", PageSize, len(page1))
	}
	for _, item := range page1 {
		if item.Trip.UserID == cat.ID || item.Trip.Privacy == models.PrivacyPrivate {
			t.Fatalf("unexpected trip in feed: %+v", item.Trip)
		}
		if item.Trip.UserID == bob.ID && item.Trip.Notes != "" {
			t.Fatalf("expected bob's private notes to be blanked")
		}
	}
	if !page1[0].Trip.Start.Equal(base.Add(10 * time.Hour)) {
		t.Fatalf("expected newest start first, got %v", page1[0].Trip.Start)
	}

	page2, err := svc.Page(ctx, ann, models.FeedByStart, 2)
	if err != nil || len(page2) != 1 || page2[0].Trip.UserID != ann.ID || page2[0].Trip.Notes != "secret" {
		t.Fatalf("expected ann's own trip with notes on page 2, got %+v %v", page2, err)
	}
	page3, err := svc.Page(ctx, ann, models.FeedByStart, 3)
	if err != nil || len(page3) != 0 {
		t.Fatalf("expected empty page past the end, got %d %v", len(page3), err)
	}
}

func TestPage_LikesAndCaption(t *testing.T) {
	conn := openTestDB(t, "feed_likes")
	ctx := context.Background()
	users := store.NewUserStore(conn)
	trips := store.NewTripStore(conn)
	ann := createUser(t, users, "ann", models.PrivacyPublic)
	bob := createUser(t, users, "bob", models.PrivacyPublic)
	if err := conn.Transaction(func(tx *gorm.DB) error { return store.AddFriendshipTx(tx, ann.ID, bob.ID) }); err != nil {
		t.Fatalf("befriend: %v", err)
	}
	trip := &models.Trip{UserID: bob.ID, CaveName: "Gaping Gill", Start: time.Date(2024, 5, 1, 9, 0, 0, 0, time.UTC)}
	if err := trips.Create(ctx, trip, nil); err != nil {
		t.Fatalf("create trip: %v", err)
	}
	if _, err := trips.Like(ctx, trip.ID, ann.ID); err != nil {
		t.Fatalf("like: %v", err)
	}
	if _, err := trips.Like(ctx, trip.ID, bob.ID); err != nil {
		t.Fatalf("like: %v", err)
	}

	items, err := NewService(conn).Page(ctx, ann, models.FeedByAdded, 1)
	if err != nil || len(items) != 1 {
		t.Fatalf("expected one item, got %d %v", len(items), err)
	}
	item := items[0]
	if item.LikesCount != 2 || !item.ViewerLiked || item.LikedStr != "Liked by bob and you" {
		t.Fatalf("unexpected like fields %+v", item)
	}
	if item.HasPhotos || item.PhotoCount != 0 {
		t.Fatalf("expected no photos")
	}
}

func TestSetOrdering(t *testing.T) {
	conn := openTestDB(t, "feed_ordering")
	users := store.NewUserStore(conn)
	ann := createUser(t, users, "ann", models.PrivacyPublic)
	svc := NewService(conn)
	if err := svc.SetOrdering(context.Background(), ann, "sideways"); err == nil {
		t.Fatalf("expected invalid ordering to be rejected")
	}
	if err := svc.SetOrdering(context.Background(), ann, models.FeedByStart); err != nil {
		t.Fatalf("set ordering: %v", err)
	}
	reloaded, _ := users.Get(context.Background(), ann.ID)
	if reloaded.FeedOrdering != models.FeedByStart {
		t.Fatalf("expected ordering saved, got %q", reloaded.FeedOrdering)
	}
}
