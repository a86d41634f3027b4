package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/verify"
	"github.com/gin-gonic/gin"
	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
)

type testServer struct {
	engine *gin.Engine
	db     *gorm.DB
	signer *verify.Signer
	users  map[string]*models.User
}

func newTestServer(t *testing.T, name string) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	conn, err := gorm.Open(sqlite.Open("file:"+name+"?mode=memory&cache=shared"), &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if errMigrate := db.Migrate(conn); errMigrate != nil {
		t.Fatalf("migrate: %v", errMigrate)
	}
	signer, errSigner := verify.NewSigner("test-secret-key")
	if errSigner != nil {
		t.Fatalf("new signer: %v", errSigner)
	}

	srv := &testServer{engine: gin.New(), db: conn, signer: signer, users: map[string]*models.User{}}
	userStore := store.NewUserStore(conn)
	for _, username := range []string{"ann", "bob", "staff"} {
		u := &models.User{
			Username:         username,
			Email:            username + "@example.com",
			Name:             username,
			IsActive:         true,
			HasVerifiedEmail: true,
			IsSuperuser:      username == "staff",
		}
		if errCreate := userStore.Create(context.Background(), u, "password123"); errCreate != nil {
			t.Fatalf("create user: %v", errCreate)
		}
		srv.users[username] = u
	}
	RegisterRoutes(srv.engine, Deps{DB: conn, Signer: signer, SiteRoot: "https://cavelog.example"})
	return srv
}

func (s *testServer) do(t *testing.T, method, path, username string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var payload []byte
	if body != nil {
		raw, errMarshal := json.Marshal(body)
		if errMarshal != nil {
			t.Fatalf("marshal body: %v", errMarshal)
		}
		payload = raw
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	if username != "" {
		token, errToken := s.signer.SessionToken(s.users[username])
		if errToken != nil {
			t.Fatalf("session token: %v", errToken)
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.engine.ServeHTTP(rec, req)
	return rec
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	if errDecode := json.Unmarshal(rec.Body.Bytes(), &out); errDecode != nil {
		t.Fatalf("decode %q: %v", rec.Body.String(), errDecode)
	}
	return out
}

func TestHealthz(t *testing.T) {
	srv := newTestServer(t, "api_healthz")
	rec := srv.do(t, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
}

func TestSessionMiddleware(t *testing.T) {
	srv := newTestServer(t, "api_session")

	if rec := srv.do(t, http.MethodGet, "/v0/feed", "", nil); rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v0/account", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	rec := httptest.NewRecorder()
	srv.engine.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad token, got %d", rec.Code)
	}

	rec = srv.do(t, http.MethodGet, "/v0/account", "ann", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	user, _ := decode(t, rec)["user"].(map[string]any)
	if user["username"] != "ann" {
		t.Fatalf("expected ann, got %v", user["username"])
	}
	if _, leaked := user["password"]; leaked {
		t.Fatalf("expected password to be omitted")
	}
}

func TestSessionMiddleware_RejectsInactiveUser(t *testing.T) {
	srv := newTestServer(t, "api_inactive")
	if errUpdate := srv.db.Model(&models.User{}).Where("id = ?", srv.users["bob"].ID).Update("is_active", false).Error; errUpdate != nil {
		t.Fatalf("deactivate: %v", errUpdate)
	}
	if rec := srv.do(t, http.MethodGet, "/v0/account", "bob", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", rec.Code)
	}
}

func TestTripRoutes(t *testing.T) {
	srv := newTestServer(t, "api_trips")
	start := time.Now().UTC().Add(-48 * time.Hour).Truncate(time.Second)
	end := start.Add(4 * time.Hour)

	rec := srv.do(t, http.MethodPost, "/v0/trips", "ann", gin.H{
		"cave_name":       "Swildon's Hole",
		"start":           start,
		"end":             end,
		"type":            "Sport",
		"horizontal_dist": "1.5km",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	trip, _ := decode(t, rec)["trip"].(map[string]any)
	id, _ := trip["uuid"].(string)
	if id == "" {
		t.Fatalf("expected trip uuid in %v", trip)
	}

	if rec := srv.do(t, http.MethodPost, "/v0/trips", "ann", gin.H{"cave_name": ""}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for invalid trip, got %d", rec.Code)
	} else if _, ok := decode(t, rec)["errors"]; !ok {
		t.Fatalf("expected field errors, got %s", rec.Body.String())
	}

	if rec := srv.do(t, http.MethodGet, "/v0/trips/"+id, "ann", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected owner to see trip, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/v0/trips/"+id, "", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected private trip hidden from anonymous viewer, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodGet, "/v0/trips/"+id, "bob", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected private trip hidden from stranger, got %d", rec.Code)
	}

	if rec := srv.do(t, http.MethodDelete, "/v0/trips/"+id, "bob", nil); rec.Code != http.StatusForbidden && rec.Code != http.StatusNotFound {
		t.Fatalf("expected stranger delete to fail, got %d", rec.Code)
	}
	if rec := srv.do(t, http.MethodDelete, "/v0/trips/"+id, "ann", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected owner delete to succeed, got %d: %s", rec.Code, rec.Body.String())
	}
	if rec := srv.do(t, http.MethodGet, "/v0/trips/"+id, "ann", nil); rec.Code != http.StatusNotFound {
		t.Fatalf("expected deleted trip to be gone, got %d", rec.Code)
	}
}

func TestFriendRequestRoutes(t *testing.T) {
	srv := newTestServer(t, "api_friends")

	rec := srv.do(t, http.MethodPost, "/v0/friends/requests", "ann", gin.H{"user": "bob"})
	if rec.Code != http.StatusCreated && rec.Code != http.StatusOK {
		t.Fatalf("expected request to be sent, got %d: %s", rec.Code, rec.Body.String())
	}

	var req models.FriendRequest
	if errFind := srv.db.Where("from_user_id = ?", srv.users["ann"].ID).First(&req).Error; errFind != nil {
		t.Fatalf("find request: %v", errFind)
	}
	path := "/v0/friends/requests/" + jsonNumber(req.ID) + "/accept"
	if rec := srv.do(t, http.MethodPost, path, "ann", nil); rec.Code == http.StatusOK {
		t.Fatalf("expected sender to be unable to accept their own request")
	}
	if rec := srv.do(t, http.MethodPost, path, "bob", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected recipient accept to succeed, got %d: %s", rec.Code, rec.Body.String())
	}

	friends, errFriends := store.NewUserStore(srv.db).AreFriends(context.Background(), srv.users["ann"].ID, srv.users["bob"].ID)
	if errFriends != nil {
		t.Fatalf("are friends: %v", errFriends)
	}
	if !friends {
		t.Fatalf("expected ann and bob to be friends")
	}
}

func TestNotificationReadOnVisit(t *testing.T) {
	srv := newTestServer(t, "api_notifications")
	notifications := store.NewNotificationStore(srv.db)
	n, errNotify := notifications.Notify(context.Background(), srv.users["ann"].ID, "Bob sent you a friend request", "/friends/")
	if errNotify != nil {
		t.Fatalf("notify: %v", errNotify)
	}

	if rec := srv.do(t, http.MethodGet, "/v0/friends", "ann", nil); rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	got, errGet := notifications.Get(context.Background(), srv.users["ann"].ID, n.ID)
	if errGet != nil {
		t.Fatalf("get notification: %v", errGet)
	}
	if !got.Read {
		t.Fatalf("expected notification to be marked read after visiting its page")
	}
}

func TestNotificationPath(t *testing.T) {
	cases := map[string]string{
		"/v0/friends":        "/friends/",
		"/v0/trips/abc/":     "/trips/abc/",
		"/v0/u/ann":          "/u/ann/",
		"/v0":                "/",
		"/healthz":           "/healthz/",
		"/v0/trips/abc/like": "/trips/abc/like/",
	}
	for in, want := range cases {
		if got := notificationPath(in); got != want {
			t.Fatalf("expected %q for %q, got %q", want, in, got)
		}
	}
}

func TestPhotoRoutesWithoutStorage(t *testing.T) {
	srv := newTestServer(t, "api_photos")
	if rec := srv.do(t, http.MethodGet, "/v0/trips/whatever/photos", "ann", nil); rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
}

func TestAdminRoutes(t *testing.T) {
	srv := newTestServer(t, "api_admin")

	if rec := srv.do(t, http.MethodGet, "/v0/admin/users", "ann", nil); rec.Code != http.StatusForbidden {
		t.Fatalf("expected 403 for non-staff, got %d", rec.Code)
	}
	rec := srv.do(t, http.MethodGet, "/v0/admin/users", "staff", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	users, _ := decode(t, rec)["users"].([]any)
	if len(users) != 3 {
		t.Fatalf("expected 3 users, got %d", len(users))
	}

	rec = srv.do(t, http.MethodPost, "/v0/admin/notifications", "staff", gin.H{"message": "Site maintenance", "url": "/news/"})
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if notified, _ := decode(t, rec)["notified"].(float64); notified != 3 {
		t.Fatalf("expected 3 notifications, got %v", notified)
	}

	if rec := srv.do(t, http.MethodPost, "/v0/admin/notifications", "staff", gin.H{"message": "No link"}); rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without url, got %d", rec.Code)
	}
}

func jsonNumber(id uint64) string {
	raw, _ := json.Marshal(id)
	return string(raw)
}
