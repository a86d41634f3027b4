package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/http/api/handlers"
	"github.com/cavelog/cavelog/internal/ratelimit"
	"github.com/cavelog/cavelog/internal/social"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/verify"
	"github.com/gin-gonic/gin"
	log "github.com/sirupsen/logrus"
)

// lastSeenInterval throttles last-seen writes for active sessions.
const lastSeenInterval = 5 * time.Minute

// sessionMiddleware loads the user behind a bearer token. Requests without an
// Authorization header continue anonymously; a malformed or expired token is
// rejected.
func sessionMiddleware(users *store.UserStore, signer *verify.Signer) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.Next()
			return
		}

		token := strings.TrimPrefix(authHeader, "Bearer ")
		if token == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid authorization format"})
			return
		}
		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "empty token"})
			return
		}

		userID, errSession := signer.ParseSession(token)
		if errSession != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		ctx := c.Request.Context()
		user, errFind := users.Get(ctx, userID)
		if errFind != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "user not found"})
			return
		}
		if !user.IsActive {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "user disabled"})
			return
		}

		now := time.Now().UTC()
		if user.LastSeen == nil || now.Sub(*user.LastSeen) > lastSeenInterval {
			if errTouch := users.Touch(ctx, user.ID, now); errTouch != nil {
				log.WithError(errTouch).WithField("user", user.ID).Warn("api: update last seen failed")
			}
		}

		handlers.SetCurrentUser(c, user)
		c.Next()
	}
}

// requireUser rejects anonymous requests.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		if handlers.CurrentUser(c) == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		c.Next()
	}
}

// requireSuperuser rejects requests from non-staff accounts.
func requireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		user := handlers.CurrentUser(c)
		if user == nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		if !user.IsSuperuser {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "permission denied"})
			return
		}
		c.Next()
	}
}

// notificationPath maps a request path to the page path stored on
// notifications: the API prefix is dropped and a trailing slash added.
func notificationPath(requestPath string) string {
	path := strings.TrimPrefix(requestPath, apiPrefix)
	if path == "" {
		return "/"
	}
	if !strings.HasSuffix(path, "/") {
		path += "/"
	}
	return path
}

// notificationReadMiddleware marks the signed-in user's notifications for the
// requested page as read when the page is fetched.
func notificationReadMiddleware(svc *social.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		user := handlers.CurrentUser(c)
		if user == nil || c.Request.Method != http.MethodGet {
			c.Next()
			return
		}
		path := notificationPath(c.Request.URL.Path)
		if _, errMark := svc.MarkReadForPath(c.Request.Context(), user, path); errMark != nil {
			log.WithError(errMark).WithField("path", path).Warn("api: mark notifications read failed")
		}
		c.Next()
	}
}

// limit enforces a rate limit policy keyed by the signed-in user or client IP.
func limit(limits *ratelimit.Manager, policy ratelimit.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		var userID uint64
		if user := handlers.CurrentUser(c); user != nil {
			userID = user.ID
		}
		if errLimit := limits.Check(c.Request.Context(), policy, userID, c.ClientIP()); errLimit != nil {
			handlers.Abort(c, errLimit)
			return
		}
		c.Next()
	}
}
