// Package app boots the logbook server and runs the maintenance commands.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/config"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/geocode"
	"github.com/cavelog/cavelog/internal/http/api"
	"github.com/cavelog/cavelog/internal/imgproxy"
	"github.com/cavelog/cavelog/internal/mailer"
	"github.com/cavelog/cavelog/internal/photos"
	"github.com/cavelog/cavelog/internal/ratelimit"
	"github.com/cavelog/cavelog/internal/verify"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// shutdownTimeout bounds graceful server shutdown.
const shutdownTimeout = 5 * time.Second

// Runtime holds the connections shared by the server and the commands.
type Runtime struct {
	Config config.Config
	DB     *gorm.DB
	Redis  *redis.Client
}

// Open connects to the database and, when configured, redis. An unreachable
// redis is logged and skipped so the in-process fallbacks take over.
func Open(ctx context.Context, cfg config.Config) (*Runtime, error) {
	conn, errOpen := db.Open(cfg.Database.URL)
	if errOpen != nil {
		return nil, errOpen
	}
	log.Infof("database: %s", describeDSN(cfg.Database.URL))
	rt := &Runtime{Config: cfg, DB: conn}

	if cfg.Redis.Enabled() {
		opts, errParse := redis.ParseURL(strings.TrimSpace(cfg.Redis.URL))
		if errParse != nil {
			log.WithError(errParse).Warn("redis: invalid url, using in-process fallbacks")
			return rt, nil
		}
		client := redis.NewClient(opts)
		if errPing := client.Ping(ctx).Err(); errPing != nil {
			log.WithError(errPing).Warn("redis: unreachable, using in-process fallbacks")
			_ = client.Close()
			return rt, nil
		}
		rt.Redis = client
	}
	return rt, nil
}

// Close releases the connections.
func (rt *Runtime) Close() {
	if rt == nil {
		return
	}
	if rt.Redis != nil {
		if errClose := rt.Redis.Close(); errClose != nil {
			log.Errorf("redis close error: %v", errClose)
		}
	}
	if rt.DB != nil {
		if sqlDB, errDB := rt.DB.DB(); errDB == nil {
			if errClose := sqlDB.Close(); errClose != nil {
				log.Errorf("sql db close error: %v", errClose)
			}
		}
	}
}

// MailQueue returns the redis queue when redis is available and the database
// outbox otherwise.
func (rt *Runtime) MailQueue() mailer.Queue {
	if rt.Redis != nil {
		return mailer.NewRedisQueue(rt.Redis, rt.Config.Redis.Prefix)
	}
	return mailer.NewOutboxQueue(rt.DB)
}

// PhotoService builds the photo service, or returns nil when object storage
// is not configured.
func (rt *Runtime) PhotoService(ctx context.Context) (*photos.Service, error) {
	cfg := rt.Config
	if strings.TrimSpace(cfg.S3.Bucket) == "" {
		log.Warn("photos: s3 bucket not configured, photo endpoints disabled")
		return nil, nil
	}
	storage, errStorage := photos.NewS3Storage(ctx, cfg.S3)
	if errStorage != nil {
		return nil, errStorage
	}
	var thumbs photos.Thumbnailer
	if strings.TrimSpace(cfg.Imgproxy.URL) != "" {
		builder, errBuilder := imgproxy.New(cfg.Imgproxy, storage.URL)
		if errBuilder != nil {
			return nil, errBuilder
		}
		thumbs = builder
	}
	return photos.NewService(rt.DB, storage, thumbs, photos.Options{UploadTTL: cfg.S3.PresignedExpiry}), nil
}

// Geocoder builds the geocoding client with a redis cache when available.
func (rt *Runtime) Geocoder() *geocode.Client {
	var cache geocode.Cache
	if rt.Redis != nil {
		cache = geocode.NewRedisCache(rt.Redis, rt.Config.Redis.Prefix)
	}
	return geocode.NewClient(rt.Config.Geocode, cache)
}

// Migrate opens the database and runs migrations.
func Migrate(ctx context.Context, cfg config.Config) error {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return errOpen
	}
	defer rt.Close()
	return db.Migrate(rt.DB)
}

// RunServer boots the API server and blocks until ctx is cancelled.
func RunServer(ctx context.Context, cfg config.Config) error {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return errOpen
	}
	defer rt.Close()
	if errMigrate := db.Migrate(rt.DB); errMigrate != nil {
		return errMigrate
	}

	hasSuperuser, errState := HasSuperuser(rt.DB)
	if errState != nil {
		return errState
	}
	if !hasSuperuser {
		log.Warn("no superuser exists yet, create one with the createsuperuser command")
	}

	signer, errSigner := verify.NewSigner(cfg.SecretKey)
	if errSigner != nil {
		return errSigner
	}
	limitSettings, errLimits := ratelimit.SettingsFromConfig(cfg)
	if errLimits != nil {
		log.WithError(errLimits).Warn("rate limit overrides skipped")
	}
	limits := ratelimit.NewManager(func() ratelimit.SettingsConfig { return limitSettings }, nil, nil)

	photoSvc, errPhotos := rt.PhotoService(ctx)
	if errPhotos != nil {
		return errPhotos
	}
	photos.NewSweeper(rt.DB, cfg.S3.PresignedExpiry).Start(ctx)

	if !strings.EqualFold(cfg.LogLevel, "debug") {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery())
	api.RegisterRoutes(engine, api.Deps{
		DB:       rt.DB,
		Signer:   signer,
		Limits:   limits,
		Mail:     mailer.NewEmitter(rt.MailQueue()),
		Photos:   photoSvc,
		Geocoder: rt.Geocoder(),
		SiteRoot: cfg.Site.Root,
	})

	addr := fmt.Sprintf(":%d", cfg.HTTP.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           engine,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if errShutdown := srv.Shutdown(shutdownCtx); errShutdown != nil {
			log.Errorf("server shutdown error: %v", errShutdown)
		}
	}()

	log.Infof("starting server on %s with config=%s", addr, cfg.ConfigPath)
	if errListen := srv.ListenAndServe(); errListen != nil && !errors.Is(errListen, http.ErrServerClosed) {
		return errListen
	}
	return nil
}
