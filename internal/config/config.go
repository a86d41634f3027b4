// Package config resolves cavelog settings from an optional YAML file, a
// .env file and the process environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

const (
	EnvConfigPath            = "CONFIG_PATH"
	EnvSecretKey             = "SECRET_KEY"
	EnvDatabaseURL           = "DATABASE_URL"
	EnvRedisURL              = "REDIS_URL"
	EnvSiteRoot              = "SITE_ROOT"
	EnvSiteTitle             = "SITE_TITLE"
	EnvDefaultFromEmail      = "DEFAULT_FROM_EMAIL"
	EnvEmailHost             = "EMAIL_HOST"
	EnvEmailPort             = "EMAIL_PORT"
	EnvEmailHostUser         = "EMAIL_HOST_USER"
	EnvEmailHostPassword     = "EMAIL_HOST_PASSWORD"
	EnvEmailUseTLS           = "EMAIL_USE_TLS"
	EnvMailerEmptyQueueSleep = "MAILER_EMPTY_QUEUE_SLEEP"
	EnvS3EndpointURL         = "AWS_S3_ENDPOINT_URL"
	EnvS3RegionName          = "AWS_S3_REGION_NAME"
	EnvS3AccessKeyID         = "AWS_S3_ACCESS_KEY_ID"
	EnvS3SecretAccessKey     = "AWS_S3_SECRET_ACCESS_KEY"
	EnvS3Bucket              = "AWS_STORAGE_BUCKET_NAME"
	EnvS3DefaultACL          = "AWS_S3_DEFAULT_ACL"
	EnvS3PresignedExpiry     = "AWS_S3_PRESIGNED_EXPIRY"
	EnvS3CustomDomain        = "AWS_S3_CUSTOM_DOMAIN"
	EnvImgproxyURL           = "IMGPROXY_URL"
	EnvImgproxyKey           = "IMGPROXY_KEY"
	EnvImgproxySalt          = "IMGPROXY_SALT"
	EnvImgproxyPresets       = "IMGPROXY_PRESETS"
	EnvGoogleMapsAPIKey      = "GOOGLE_MAPS_API_KEY"
	EnvGoogleMapsGeocodeURL  = "GOOGLE_MAPS_GEOCODE_URL"
	EnvAllowedHosts          = "DJANGO_ALLOWED_HOSTS"
	EnvCSRFTrustedOrigins    = "CSRF_TRUSTED_ORIGINS"
	EnvSentryKey             = "SENTRY_KEY"
	EnvGoogleAnalyticsID     = "GOOGLE_ANALYTICS_ID"
	EnvHTTPPort              = "HTTP_PORT"
	EnvLogLevel              = "LOG_LEVEL"
)

// ErrMissingSecretKey indicates SECRET_KEY is unset.
var ErrMissingSecretKey = errors.New("missing secret key (set `SECRET_KEY` or `secret-key` in config file)")

// ErrMissingDatabaseURL indicates DATABASE_URL is unset.
var ErrMissingDatabaseURL = errors.New("missing database url (set `DATABASE_URL` or `database.url` in config file)")

// Defaults applied when neither the file nor the environment sets a value.
const (
	defaultPresignedExpiry = 300 * time.Second
	defaultMailerSleep     = 30 * time.Second
	defaultSiteTitle       = "Cave Log"
	defaultSiteRoot        = "localhost"
	defaultFromEmail       = "Cave Log <admin@localhost>"
	defaultHTTPPort        = 8000
	defaultEmailPort       = 25
	defaultS3ACL           = "private"
	defaultGeocodeURL      = "https://maps.googleapis.com/maps/api/geocode/json"
)

// Config holds resolved application configuration values.
type Config struct {
	ConfigPath string `yaml:"-"`

	SecretKey string `yaml:"secret-key"`
	LogLevel  string `yaml:"log-level"`
	LogFormat string `yaml:"log-format"`

	Database DatabaseConfig `yaml:"database"`
	Redis    RedisConfig    `yaml:"redis"`
	Site     SiteConfig     `yaml:"site"`
	HTTP     HTTPConfig     `yaml:"http"`
	Email    EmailConfig    `yaml:"email"`
	S3       S3Config       `yaml:"s3"`
	Imgproxy ImgproxyConfig `yaml:"imgproxy"`
	Geocode  GeocodeConfig  `yaml:"geocode"`

	RateLimit RateLimitConfig `yaml:"rate-limit"`
}

// DatabaseConfig selects the database.
type DatabaseConfig struct {
	URL string `yaml:"url"`
}

// RedisConfig configures the optional redis instance used for rate limits,
// the geocode cache and the mail queue.
type RedisConfig struct {
	URL    string `yaml:"url"`
	Prefix string `yaml:"prefix"`
}

// Enabled reports whether a redis URL is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.URL) != "" }

// SiteConfig holds display settings used in emails and links.
type SiteConfig struct {
	Root              string   `yaml:"root"`
	Title             string   `yaml:"title"`
	SentryKey         string   `yaml:"sentry-key"`
	GoogleAnalyticsID string   `yaml:"google-analytics-id"`
	AllowedHosts      []string `yaml:"allowed-hosts"`
	CSRFOrigins       []string `yaml:"csrf-trusted-origins"`
}

// HTTPConfig holds listener settings.
type HTTPConfig struct {
	Port int `yaml:"port"`
}

// EmailConfig configures outbound SMTP.
type EmailConfig struct {
	From            string        `yaml:"from"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	Username        string        `yaml:"username"`
	Password        string        `yaml:"password"`
	UseTLS          bool          `yaml:"use-tls"`
	EmptyQueueSleep time.Duration `yaml:"empty-queue-sleep"`
}

// S3Config configures object storage for photos and avatars.
type S3Config struct {
	EndpointURL     string        `yaml:"endpoint-url"`
	Region          string        `yaml:"region"`
	AccessKeyID     string        `yaml:"access-key-id"`
	SecretAccessKey string        `yaml:"secret-access-key"`
	Bucket          string        `yaml:"bucket"`
	DefaultACL      string        `yaml:"default-acl"`
	PresignedExpiry time.Duration `yaml:"presigned-expiry"`
	CustomDomain    string        `yaml:"custom-domain"`
}

// ImgproxyConfig configures signed thumbnail URLs.
type ImgproxyConfig struct {
	URL     string `yaml:"url"`
	Key     string `yaml:"key"`
	Salt    string `yaml:"salt"`
	Presets string `yaml:"presets"`
}

// GeocodeConfig configures the Google geocoding client.
type GeocodeConfig struct {
	APIKey string `yaml:"api-key"`
	URL    string `yaml:"url"`
}

// RateLimitConfig overrides the built-in request rate limits. Rates map a
// policy name to "<count>/<period>", for example "20/h".
type RateLimitConfig struct {
	Disabled bool              `yaml:"disabled"`
	Rates    map[string]string `yaml:"rates"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// LoadDotEnv loads .env from the working directory when present.
func LoadDotEnv() {
	if errLoad := godotenv.Load(); errLoad != nil && !errors.Is(errLoad, os.ErrNotExist) {
		log.WithError(errLoad).Warn("config: load .env")
	}
}

// Load reads the YAML file at configPath (optional), applies environment
// overrides and defaults, and checks required values.
func Load(configPath string) (Config, error) {
	cfg := Config{ConfigPath: ResolveConfigPath(configPath)}

	data, errRead := os.ReadFile(cfg.ConfigPath)
	switch {
	case errRead == nil:
		if errUnmarshal := yaml.Unmarshal(data, &cfg); errUnmarshal != nil {
			return Config{}, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	case errors.Is(errRead, os.ErrNotExist):
	default:
		return Config{}, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnv(&cfg)
	applyDefaults(&cfg)

	if strings.TrimSpace(cfg.SecretKey) == "" {
		return cfg, ErrMissingSecretKey
	}
	if strings.TrimSpace(cfg.Database.URL) == "" {
		return cfg, ErrMissingDatabaseURL
	}
	return cfg, nil
}

func applyEnv(cfg *Config) {
	setString(&cfg.SecretKey, EnvSecretKey)
	setString(&cfg.LogLevel, EnvLogLevel)
	setString(&cfg.Database.URL, EnvDatabaseURL)
	setString(&cfg.Redis.URL, EnvRedisURL)
	setString(&cfg.Site.Root, EnvSiteRoot)
	setString(&cfg.Site.Title, EnvSiteTitle)
	setString(&cfg.Site.SentryKey, EnvSentryKey)
	setString(&cfg.Site.GoogleAnalyticsID, EnvGoogleAnalyticsID)
	setList(&cfg.Site.AllowedHosts, EnvAllowedHosts)
	setList(&cfg.Site.CSRFOrigins, EnvCSRFTrustedOrigins)
	setInt(&cfg.HTTP.Port, EnvHTTPPort)

	setString(&cfg.Email.From, EnvDefaultFromEmail)
	setString(&cfg.Email.Host, EnvEmailHost)
	setInt(&cfg.Email.Port, EnvEmailPort)
	setString(&cfg.Email.Username, EnvEmailHostUser)
	setString(&cfg.Email.Password, EnvEmailHostPassword)
	setBool(&cfg.Email.UseTLS, EnvEmailUseTLS)
	setSeconds(&cfg.Email.EmptyQueueSleep, EnvMailerEmptyQueueSleep)

	setString(&cfg.S3.EndpointURL, EnvS3EndpointURL)
	setString(&cfg.S3.Region, EnvS3RegionName)
	setString(&cfg.S3.AccessKeyID, EnvS3AccessKeyID)
	setString(&cfg.S3.SecretAccessKey, EnvS3SecretAccessKey)
	setString(&cfg.S3.Bucket, EnvS3Bucket)
	setString(&cfg.S3.DefaultACL, EnvS3DefaultACL)
	setSeconds(&cfg.S3.PresignedExpiry, EnvS3PresignedExpiry)
	setString(&cfg.S3.CustomDomain, EnvS3CustomDomain)

	setString(&cfg.Imgproxy.URL, EnvImgproxyURL)
	setString(&cfg.Imgproxy.Key, EnvImgproxyKey)
	setString(&cfg.Imgproxy.Salt, EnvImgproxySalt)
	setString(&cfg.Imgproxy.Presets, EnvImgproxyPresets)

	setString(&cfg.Geocode.APIKey, EnvGoogleMapsAPIKey)
	setString(&cfg.Geocode.URL, EnvGoogleMapsGeocodeURL)
}

func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}
	if cfg.Site.Title == "" {
		cfg.Site.Title = defaultSiteTitle
	}
	if cfg.Site.Root == "" {
		cfg.Site.Root = defaultSiteRoot
	}
	if cfg.HTTP.Port <= 0 {
		cfg.HTTP.Port = defaultHTTPPort
	}
	if cfg.Email.From == "" {
		cfg.Email.From = defaultFromEmail
	}
	if cfg.Email.Port <= 0 {
		cfg.Email.Port = defaultEmailPort
	}
	if cfg.Email.EmptyQueueSleep <= 0 {
		cfg.Email.EmptyQueueSleep = defaultMailerSleep
	}
	if cfg.S3.DefaultACL == "" {
		cfg.S3.DefaultACL = defaultS3ACL
	}
	if cfg.S3.PresignedExpiry <= 0 {
		cfg.S3.PresignedExpiry = defaultPresignedExpiry
	}
	if cfg.Geocode.URL == "" {
		cfg.Geocode.URL = defaultGeocodeURL
	}
	if cfg.Redis.Prefix == "" {
		cfg.Redis.Prefix = "cavelog"
	}
}

// ConfigureLogging applies the log level and format to the package logger.
func (c Config) ConfigureLogging() {
	level, errParse := log.ParseLevel(c.LogLevel)
	if errParse != nil {
		log.WithError(errParse).Warn("config: invalid log level, using info")
		level = log.InfoLevel
	}
	log.SetLevel(level)
	if strings.EqualFold(c.LogFormat, "json") {
		log.SetFormatter(&log.JSONFormatter{})
	}
}

func setString(dst *string, key string) {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		*dst = v
	}
}

func setList(dst *[]string, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	var out []string
	for _, part := range strings.FieldsFunc(raw, func(r rune) bool { return r == ',' || r == ' ' }) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	*dst = out
}

func setInt(dst *int, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, errParse := strconv.Atoi(raw)
	if errParse != nil {
		log.WithError(errParse).Warnf("config: invalid %s", key)
		return
	}
	*dst = v
}

func setBool(dst *bool, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, errParse := strconv.ParseBool(raw)
	if errParse != nil {
		log.WithError(errParse).Warnf("config: invalid %s", key)
		return
	}
	*dst = v
}

func setSeconds(dst *time.Duration, key string) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return
	}
	v, errParse := strconv.ParseFloat(raw, 64)
	if errParse != nil || v <= 0 {
		log.Warnf("config: invalid %s=%q", key, raw)
		return
	}
	*dst = time.Duration(v * float64(time.Second))
}
