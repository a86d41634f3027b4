package app

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cavelog/cavelog/internal/config"
	"github.com/cavelog/cavelog/internal/db"
	"github.com/cavelog/cavelog/internal/mailer"
	"github.com/cavelog/cavelog/internal/models"
	"github.com/cavelog/cavelog/internal/photos"
	"github.com/cavelog/cavelog/internal/seed"
	"github.com/cavelog/cavelog/internal/store"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	"gorm.io/gorm"
)

// ErrNotConfirmed is returned when a destructive command is not confirmed.
var ErrNotConfirmed = errors.New("command not confirmed")

// ConfigExists reports whether the config file exists at the path.
func ConfigExists(configPath string) bool {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return false
	}
	return true
}

// configFile maps YAML fields for the generated config file.
type configFile struct {
	SecretKey string      `yaml:"secret-key"`
	LogLevel  string      `yaml:"log-level"`
	Database  databaseCfg `yaml:"database"`
	HTTP      httpCfg     `yaml:"http"`
}

// databaseCfg holds database settings for the generated config file.
type databaseCfg struct {
	URL string `yaml:"url"`
}

// httpCfg holds listener settings for the generated config file.
type httpCfg struct {
	Port int `yaml:"port"`
}

// generateSecretKey creates a random signing secret.
func generateSecretKey() (string, error) {
	buf := make([]byte, 48)
	if _, errRead := rand.Read(buf); errRead != nil {
		return "", fmt.Errorf("generate secret key: %w", errRead)
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

// WriteConfigFile writes a starter config file with a fresh secret key. An
// existing file is never overwritten.
func WriteConfigFile(configPath, databaseURL string, port int) error {
	if ConfigExists(configPath) {
		return fmt.Errorf("config file already exists: %s", configPath)
	}
	if strings.TrimSpace(databaseURL) == "" {
		databaseURL = db.BuildSQLiteDSN("")
	}
	secret, errSecret := generateSecretKey()
	if errSecret != nil {
		return errSecret
	}
	cfg := configFile{
		SecretKey: secret,
		LogLevel:  "info",
		Database:  databaseCfg{URL: databaseURL},
		HTTP:      httpCfg{Port: port},
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	dir := filepath.Dir(configPath)
	if errMkdir := os.MkdirAll(dir, 0755); errMkdir != nil {
		return fmt.Errorf("create config dir: %w", errMkdir)
	}

	if errWrite := os.WriteFile(configPath, data, 0600); errWrite != nil {
		return fmt.Errorf("write config file: %w", errWrite)
	}

	return nil
}

// CreateSuperuser creates an active, verified staff account.
func CreateSuperuser(ctx context.Context, cfg config.Config, username, email, password string) error {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return errOpen
	}
	defer rt.Close()
	if errMigrate := db.Migrate(rt.DB); errMigrate != nil {
		return fmt.Errorf("migrate database: %w", errMigrate)
	}
	return CreateSuperuserWithConn(ctx, rt.DB, username, email, password)
}

// CreateSuperuserWithConn creates an active, verified staff account.
func CreateSuperuserWithConn(ctx context.Context, conn *gorm.DB, username, email, password string) error {
	if conn == nil {
		return fmt.Errorf("open database: nil connection")
	}
	username = strings.TrimSpace(username)
	if username == "" {
		return fmt.Errorf("username is required")
	}
	if len(password) < 8 {
		return fmt.Errorf("password must be at least 8 characters")
	}

	user := &models.User{
		Username:         username,
		Email:            strings.TrimSpace(email),
		Name:             username,
		IsActive:         true,
		HasVerifiedEmail: true,
		IsSuperuser:      true,
	}
	if errCreate := store.NewUserStore(conn).Create(ctx, user, password); errCreate != nil {
		return fmt.Errorf("create superuser: %w", errCreate)
	}
	log.WithField("user", user.Username).Info("superuser created")
	return nil
}

// PruneInactiveUsers deletes accounts that never verified their email.
func PruneInactiveUsers(ctx context.Context, cfg config.Config) (int, error) {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return 0, errOpen
	}
	defer rt.Close()
	n, errPrune := store.NewUserStore(rt.DB).PruneInactive(ctx, time.Now().UTC())
	if errPrune != nil {
		return 0, errPrune
	}
	log.Infof("deleted %d inactive users", n)
	return n, nil
}

// DeleteInvalidPhotos removes stale unconfirmed uploads and marks orphaned
// photos deleted.
func DeleteInvalidPhotos(ctx context.Context, cfg config.Config) (photos.SweepResult, error) {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return photos.SweepResult{}, errOpen
	}
	defer rt.Close()
	return photos.NewSweeper(rt.DB, cfg.S3.PresignedExpiry).SweepOnce(ctx)
}

// NotifyAllUsers sends a free text notification to every user. confirm must
// be exactly "yes".
func NotifyAllUsers(ctx context.Context, cfg config.Config, message, url, confirm string) (int, error) {
	if strings.TrimSpace(confirm) != "yes" {
		return 0, ErrNotConfirmed
	}
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return 0, errOpen
	}
	defer rt.Close()
	n, errNotify := store.NewNotificationStore(rt.DB).NotifyAll(ctx, message, url)
	if errNotify != nil {
		return 0, errNotify
	}
	log.Infof("notified %d users", n)
	return n, nil
}

// RunMailer delivers queued email. With once set it drains the queue and
// returns, otherwise it runs until ctx is cancelled.
func RunMailer(ctx context.Context, cfg config.Config, once bool) error {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return errOpen
	}
	defer rt.Close()

	sender, errSender := mailer.NewSMTPSender(cfg.Email)
	if errSender != nil {
		return errSender
	}
	renderer, errRenderer := mailer.NewRenderer(cfg.Site.Root, cfg.Site.Title)
	if errRenderer != nil {
		return errRenderer
	}
	consumer := mailer.NewConsumer(rt.MailQueue(), sender, renderer, cfg.Email.EmptyQueueSleep)
	if once {
		n, errDrain := consumer.Drain(ctx)
		log.Infof("mailer: delivered %d messages", n)
		return errDrain
	}
	return consumer.Run(ctx)
}

// SeedTestData fills the database with generated development data.
func SeedTestData(ctx context.Context, cfg config.Config, seedValue uint64, opts seed.Options) (seed.Summary, error) {
	rt, errOpen := Open(ctx, cfg)
	if errOpen != nil {
		return seed.Summary{}, errOpen
	}
	defer rt.Close()
	if errMigrate := db.Migrate(rt.DB); errMigrate != nil {
		return seed.Summary{}, errMigrate
	}
	return seed.New(rt.DB, seedValue).Run(ctx, opts)
}
