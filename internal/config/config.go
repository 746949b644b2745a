package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/appdata"
	"github.com/spf13/viper"
)

const (
	envPrefix              = "CHAPTERBOARD"
	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultCachePath       = "chapterboard.db"
	defaultLogLevel        = "info"
	defaultTimezone        = "Asia/Seoul"
	defaultWindowStart     = "2026-02-08"
	defaultWindowEnd       = "2026-12-31"
	defaultDailyCap        = 4
	defaultPollSeconds     = 60
	defaultCooldownSeconds = 30
	defaultPendingTTLHours = 12
	defaultEmptyFloor      = 3
	defaultTokenTTLMinutes = 60
	defaultJWKSURL         = "https://www.googleapis.com/oauth2/v3/certs"
)

// AppConfig captures runtime configuration for the sync and scoring service.
type AppConfig struct {
	HTTPAddress string
	LogLevel    string

	PrimaryURL       string
	BackupURL        string
	BackupDocumentID string

	PollInterval       time.Duration
	Cooldown           time.Duration
	PendingTTL         time.Duration
	EmptySnapshotFloor int

	CachePath string

	Timezone         *time.Location
	CompetitionStart appdata.DayKey
	CompetitionEnd   appdata.DayKey
	DailyCap         int

	AdminKey       string
	GoogleClientID string
	GoogleJWKSURL  string
	SigningSecret  string
	TokenTTL       time.Duration

	MetricsEnabled bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("cache.path", defaultCachePath)
	configViper.SetDefault("sync.poll_interval_seconds", defaultPollSeconds)
	configViper.SetDefault("sync.cooldown_seconds", defaultCooldownSeconds)
	configViper.SetDefault("sync.pending_ttl_hours", defaultPendingTTLHours)
	configViper.SetDefault("sync.empty_snapshot_floor", defaultEmptyFloor)
	configViper.SetDefault("competition.timezone", defaultTimezone)
	configViper.SetDefault("competition.start", defaultWindowStart)
	configViper.SetDefault("competition.end", defaultWindowEnd)
	configViper.SetDefault("competition.daily_cap", defaultDailyCap)
	configViper.SetDefault("google.jwks_url", defaultJWKSURL)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("metrics.enabled", true)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	location, err := time.LoadLocation(configViper.GetString("competition.timezone"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("competition.timezone is invalid: %w", err)
	}
	windowStart, err := appdata.NewDayKey(configViper.GetString("competition.start"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("competition.start is invalid: %w", err)
	}
	windowEnd, err := appdata.NewDayKey(configViper.GetString("competition.end"))
	if err != nil {
		return AppConfig{}, fmt.Errorf("competition.end is invalid: %w", err)
	}

	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		LogLevel:           configViper.GetString("log.level"),
		PrimaryURL:         configViper.GetString("remote.primary_url"),
		BackupURL:          configViper.GetString("remote.backup_url"),
		BackupDocumentID:   configViper.GetString("remote.backup_document_id"),
		PollInterval:       time.Duration(configViper.GetInt("sync.poll_interval_seconds")) * time.Second,
		Cooldown:           time.Duration(configViper.GetInt("sync.cooldown_seconds")) * time.Second,
		PendingTTL:         time.Duration(configViper.GetInt("sync.pending_ttl_hours")) * time.Hour,
		EmptySnapshotFloor: configViper.GetInt("sync.empty_snapshot_floor"),
		CachePath:          configViper.GetString("cache.path"),
		Timezone:           location,
		CompetitionStart:   windowStart,
		CompetitionEnd:     windowEnd,
		DailyCap:           configViper.GetInt("competition.daily_cap"),
		AdminKey:           configViper.GetString("admin.key"),
		GoogleClientID:     configViper.GetString("google.client_id"),
		GoogleJWKSURL:      configViper.GetString("google.jwks_url"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		MetricsEnabled:     configViper.GetBool("metrics.enabled"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.PrimaryURL) == "" {
		return fmt.Errorf("remote.primary_url is required")
	}
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.GoogleClientID) == "" {
		return fmt.Errorf("google.client_id is required")
	}
	if strings.TrimSpace(c.CachePath) == "" {
		return fmt.Errorf("cache.path is required")
	}
	if c.CompetitionEnd.Before(c.CompetitionStart) {
		return fmt.Errorf("competition.end precedes competition.start")
	}
	if c.DailyCap <= 0 {
		return fmt.Errorf("competition.daily_cap must be positive")
	}
	if c.EmptySnapshotFloor <= 0 {
		return fmt.Errorf("sync.empty_snapshot_floor must be positive")
	}
	return nil
}

// Window returns the inclusive competition window.
func (c AppConfig) Window() appdata.Window {
	return appdata.Window{Start: c.CompetitionStart, End: c.CompetitionEnd}
}
