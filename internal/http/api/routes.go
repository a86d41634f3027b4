// Package api wires the logbook HTTP endpoints onto a gin engine.
package api

import (
	"github.com/cavelog/cavelog/internal/geocode"
	"github.com/cavelog/cavelog/internal/http/api/admin"
	"github.com/cavelog/cavelog/internal/http/api/handlers"
	"github.com/cavelog/cavelog/internal/metrics"
	"github.com/cavelog/cavelog/internal/photos"
	"github.com/cavelog/cavelog/internal/ratelimit"
	"github.com/cavelog/cavelog/internal/social"
	"github.com/cavelog/cavelog/internal/store"
	"github.com/cavelog/cavelog/internal/verify"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

// apiPrefix is the mount point of every JSON endpoint.
const apiPrefix = "/v0"

// Deps carries the services the routes are built from. Photos and Geocoder
// may be nil when their backends are not configured.
type Deps struct {
	DB       *gorm.DB
	Signer   *verify.Signer
	Limits   *ratelimit.Manager
	Mail     handlers.Mailer
	Photos   *photos.Service
	Geocoder *geocode.Client
	SiteRoot string
}

// RegisterRoutes registers the API routes, middleware and handlers.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	if r == nil || deps.DB == nil || deps.Signer == nil {
		return
	}
	db := deps.DB

	r.Use(metrics.Middleware())

	healthHandler := handlers.NewHealthHandler(db)
	r.GET("/healthz", healthHandler.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	var mail social.Mailer
	if deps.Mail != nil {
		mail = deps.Mail
	}
	socialSvc := social.NewService(db, mail, deps.SiteRoot)

	v0 := r.Group(apiPrefix)
	v0.Use(sessionMiddleware(store.NewUserStore(db), deps.Signer))
	v0.Use(notificationReadMiddleware(socialSvc))

	authHandler := handlers.NewAuthHandler(db, deps.Signer, deps.Mail, deps.SiteRoot)
	v0.POST("/register", limit(deps.Limits, ratelimit.PolicyLogin), authHandler.Register)
	v0.POST("/login", limit(deps.Limits, ratelimit.PolicyLogin), authHandler.Login)
	v0.POST("/account/verify", limit(deps.Limits, ratelimit.PolicyVerify), authHandler.Verify)

	tripHandler := handlers.NewTripHandler(db, socialSvc)
	socialHandler := handlers.NewSocialHandler(db, socialSvc)
	browseHandler := handlers.NewBrowseHandler(db)
	photoHandler := handlers.NewPhotoHandler(deps.Photos)

	// Pages anonymous visitors may read, subject to privacy settings.
	v0.GET("/trips/:uuid", tripHandler.Get)
	v0.GET("/trips/:uuid/comments", socialHandler.ListComments)
	v0.GET("/trips/:uuid/photos", photoHandler.List)
	v0.GET("/u/:username", limit(deps.Limits, ratelimit.PolicyProfile), tripHandler.Logbook)
	v0.GET("/u/:username/stats", limit(deps.Limits, ratelimit.PolicyProfile), browseHandler.Stats)
	v0.GET("/u/:username/map", limit(deps.Limits, ratelimit.PolicyProfile), browseHandler.Map)
	v0.GET("/u/:username/reports/:slug", tripHandler.Report)

	authed := v0.Group("")
	authed.Use(requireUser())

	accountHandler := handlers.NewAccountHandler(db)
	authed.GET("/account", accountHandler.Me)
	authed.PUT("/account/settings", accountHandler.UpdateSettings)
	authed.PUT("/account/custom-fields", accountHandler.UpdateCustomFields)
	authed.POST("/account/email", limit(deps.Limits, ratelimit.PolicyVerify), authHandler.ChangeEmail)
	authed.POST("/account/avatar", limit(deps.Limits, ratelimit.PolicyAvatar), photoHandler.SetAvatar)
	authed.GET("/cavers", accountHandler.Cavers)
	authed.PUT("/cavers/:uuid", accountHandler.UpdateCaver)
	authed.POST("/cavers/:uuid/merge", accountHandler.MergeCaver)
	authed.DELETE("/cavers/:uuid", accountHandler.DeleteCaver)

	authed.GET("/feed", limit(deps.Limits, ratelimit.PolicyFeed), browseHandler.Feed)
	authed.PUT("/feed/ordering", browseHandler.SetFeedOrdering)
	authed.GET("/search", limit(deps.Limits, ratelimit.PolicySearch), browseHandler.Search)

	authed.POST("/trips", limit(deps.Limits, ratelimit.PolicyTripWrite), tripHandler.Create)
	authed.PUT("/trips/:uuid", limit(deps.Limits, ratelimit.PolicyTripWrite), tripHandler.Update)
	authed.DELETE("/trips/:uuid", tripHandler.Delete)
	authed.PUT("/trips/:uuid/report", tripHandler.SaveReport)
	authed.DELETE("/trips/:uuid/report", tripHandler.DeleteReport)
	authed.POST("/trips/:uuid/like", limit(deps.Limits, ratelimit.PolicyLike), socialHandler.ToggleLike)
	authed.POST("/trips/:uuid/comments", limit(deps.Limits, ratelimit.PolicyComments), socialHandler.AddComment)
	authed.POST("/trips/:uuid/follow", socialHandler.Follow)
	authed.DELETE("/trips/:uuid/follow", socialHandler.Unfollow)
	authed.POST("/u/:username/reports/:slug/like", limit(deps.Limits, ratelimit.PolicyLike), tripHandler.LikeReport)
	authed.DELETE("/comments/:id", socialHandler.DeleteComment)
	authed.POST("/news/:id/comments", limit(deps.Limits, ratelimit.PolicyComments), socialHandler.AddNewsComment)

	authed.POST("/trips/:uuid/photos", limit(deps.Limits, ratelimit.PolicyPhotoUploads), photoHandler.RequestUpload)
	authed.POST("/trips/:uuid/photos/confirm", photoHandler.ConfirmUpload)
	authed.DELETE("/trips/:uuid/photos", photoHandler.DeleteAll)
	authed.POST("/trips/:uuid/feature/:photo", photoHandler.Feature)
	authed.DELETE("/trips/:uuid/feature", photoHandler.Unfeature)
	authed.PUT("/photos/:uuid", photoHandler.UpdateCaption)
	authed.DELETE("/photos/:uuid", photoHandler.Delete)

	authed.GET("/friends", socialHandler.Friends)
	authed.POST("/friends/requests", limit(deps.Limits, ratelimit.PolicyFriendAdd), socialHandler.SendRequest)
	authed.POST("/friends/requests/:id/accept", socialHandler.AcceptRequest)
	authed.POST("/friends/requests/:id/reject", socialHandler.RejectRequest)
	authed.POST("/friends/requests/:id/cancel", socialHandler.CancelRequest)
	authed.DELETE("/friends/:username", socialHandler.RemoveFriend)

	authed.GET("/notifications", socialHandler.Notifications)
	authed.POST("/notifications/read", socialHandler.MarkAllRead)
	authed.GET("/notifications/:id", socialHandler.OpenNotification)

	transferHandler := handlers.NewTransferHandler(db)
	authed.POST("/import/preview", limit(deps.Limits, ratelimit.PolicyImport), transferHandler.Preview)
	authed.POST("/import", limit(deps.Limits, ratelimit.PolicyImport), transferHandler.Import)
	authed.GET("/import/sample", transferHandler.Sample)
	authed.GET("/export", limit(deps.Limits, ratelimit.PolicyExport), transferHandler.Export)

	geocodeHandler := handlers.NewGeocodeHandler(deps.Geocoder)
	authed.GET("/geocode", limit(deps.Limits, ratelimit.PolicyGeocode), geocodeHandler.Lookup)

	staff := v0.Group("/admin")
	staff.Use(requireSuperuser())
	admin.RegisterAdminRoutes(staff, db)
}
