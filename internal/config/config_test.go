package config

import (
	"strings"
	"testing"
	"time"

	"github.com/spf13/viper"
)

func validViper() *viper.Viper {
	configViper := NewViper()
	configViper.Set("remote.primary_url", "https://script.example.com/exec")
	configViper.Set("auth.signing_secret", "test-secret")
	configViper.Set("google.client_id", "client-id.apps.googleusercontent.com")
	return configViper
}

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(validViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}

	if cfg.HTTPAddress != "0.0.0.0:8080" {
		t.Fatalf("unexpected http address %q", cfg.HTTPAddress)
	}
	if cfg.Timezone == nil || cfg.Timezone.String() != "Asia/Seoul" {
		t.Fatalf("unexpected timezone %v", cfg.Timezone)
	}
	if cfg.CompetitionStart.String() != "2026-02-08" || cfg.CompetitionEnd.String() != "2026-12-31" {
		t.Fatalf("unexpected competition window %s..%s", cfg.CompetitionStart, cfg.CompetitionEnd)
	}
	if cfg.DailyCap != 4 {
		t.Fatalf("unexpected daily cap %d", cfg.DailyCap)
	}
	if cfg.PollInterval != 60*time.Second || cfg.Cooldown != 30*time.Second {
		t.Fatalf("unexpected sync timing %v / %v", cfg.PollInterval, cfg.Cooldown)
	}
	if cfg.PendingTTL != 12*time.Hour {
		t.Fatalf("unexpected pending ttl %v", cfg.PendingTTL)
	}
	if cfg.EmptySnapshotFloor != 3 {
		t.Fatalf("unexpected empty snapshot floor %d", cfg.EmptySnapshotFloor)
	}
	if cfg.TokenTTL != 60*time.Minute {
		t.Fatalf("unexpected token ttl %v", cfg.TokenTTL)
	}
	if !cfg.MetricsEnabled {
		t.Fatalf("expected metrics enabled by default")
	}
}

func TestLoadRequiresPrimaryURL(t *testing.T) {
	configViper := validViper()
	configViper.Set("remote.primary_url", "  ")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "remote.primary_url") {
		t.Fatalf("expected a primary url error, got %v", err)
	}
}

func TestLoadRequiresSigningSecret(t *testing.T) {
	configViper := validViper()
	configViper.Set("auth.signing_secret", "")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "auth.signing_secret") {
		t.Fatalf("expected a signing secret error, got %v", err)
	}
}

func TestLoadRequiresGoogleClientID(t *testing.T) {
	configViper := validViper()
	configViper.Set("google.client_id", "")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "google.client_id") {
		t.Fatalf("expected a google client id error, got %v", err)
	}
}

func TestLoadRejectsInvertedCompetitionWindow(t *testing.T) {
	configViper := validViper()
	configViper.Set("competition.start", "2026-12-31")
	configViper.Set("competition.end", "2026-02-08")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "competition.end") {
		t.Fatalf("expected a window ordering error, got %v", err)
	}
}

func TestLoadRejectsMalformedWindowDays(t *testing.T) {
	configViper := validViper()
	configViper.Set("competition.start", "Feb 8 2026")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "competition.start") {
		t.Fatalf("expected a day format error, got %v", err)
	}
}

func TestLoadRejectsUnknownTimezone(t *testing.T) {
	configViper := validViper()
	configViper.Set("competition.timezone", "Mars/Olympus")

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "competition.timezone") {
		t.Fatalf("expected a timezone error, got %v", err)
	}
}

func TestLoadRejectsNonPositiveDailyCap(t *testing.T) {
	configViper := validViper()
	configViper.Set("competition.daily_cap", 0)

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "daily_cap") {
		t.Fatalf("expected a daily cap error, got %v", err)
	}
}

func TestLoadReadsConfiguredEmptySnapshotFloor(t *testing.T) {
	configViper := validViper()
	configViper.Set("sync.empty_snapshot_floor", 10)

	cfg, err := Load(configViper)
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	if cfg.EmptySnapshotFloor != 10 {
		t.Fatalf("unexpected empty snapshot floor %d", cfg.EmptySnapshotFloor)
	}
}

func TestLoadRejectsNonPositiveEmptySnapshotFloor(t *testing.T) {
	configViper := validViper()
	configViper.Set("sync.empty_snapshot_floor", 0)

	if _, err := Load(configViper); err == nil || !strings.Contains(err.Error(), "empty_snapshot_floor") {
		t.Fatalf("expected an empty snapshot floor error, got %v", err)
	}
}

func TestWindowUsesConfiguredBounds(t *testing.T) {
	cfg, err := Load(validViper())
	if err != nil {
		t.Fatalf("unexpected load error: %v", err)
	}
	window := cfg.Window()
	if window.Start != cfg.CompetitionStart || window.End != cfg.CompetitionEnd {
		t.Fatalf("unexpected window %+v", window)
	}
}
