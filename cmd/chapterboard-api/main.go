package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lamplight-apps/chapterboard/internal/auth"
	"github.com/lamplight-apps/chapterboard/internal/cache"
	"github.com/lamplight-apps/chapterboard/internal/config"
	"github.com/lamplight-apps/chapterboard/internal/directory"
	"github.com/lamplight-apps/chapterboard/internal/logging"
	"github.com/lamplight-apps/chapterboard/internal/metrics"
	"github.com/lamplight-apps/chapterboard/internal/population"
	"github.com/lamplight-apps/chapterboard/internal/records"
	"github.com/lamplight-apps/chapterboard/internal/remote"
	"github.com/lamplight-apps/chapterboard/internal/server"
	"github.com/lamplight-apps/chapterboard/internal/syncer"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "chapterboard-api",
		Short: "Chapterboard reading-competition sync and scoring service",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("primary-url", defaults.GetString("remote.primary_url"), "Primary store endpoint URL")
	cmd.PersistentFlags().String("backup-url", defaults.GetString("remote.backup_url"), "Backup store endpoint URL")
	cmd.PersistentFlags().String("backup-document-id", defaults.GetString("remote.backup_document_id"), "Backup store document identifier")
	cmd.PersistentFlags().String("cache-path", defaults.GetString("cache.path"), "Snapshot cache SQLite path")
	cmd.PersistentFlags().Int("poll-interval-seconds", defaults.GetInt("sync.poll_interval_seconds"), "Background fetch interval in seconds")
	cmd.PersistentFlags().Int("cooldown-seconds", defaults.GetInt("sync.cooldown_seconds"), "Post-save fetch cooldown in seconds")
	cmd.PersistentFlags().String("google-client-id", defaults.GetString("google.client_id"), "Google OAuth client ID")
	cmd.PersistentFlags().String("google-jwks-url", defaults.GetString("google.jwks_url"), "Google JWKS URL")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("admin-key", "", "Shared admin key (overrides env)")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "remote.primary_url", "primary-url")
	bindFlag(cmd, "remote.backup_url", "backup-url")
	bindFlag(cmd, "remote.backup_document_id", "backup-document-id")
	bindFlag(cmd, "cache.path", "cache-path")
	bindFlag(cmd, "sync.poll_interval_seconds", "poll-interval-seconds")
	bindFlag(cmd, "sync.cooldown_seconds", "cooldown-seconds")
	bindFlag(cmd, "google.client_id", "google-client-id")
	bindFlag(cmd, "google.jwks_url", "google-jwks-url")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "admin.key", "admin-key")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	metricsProvider := metrics.NewProvider(appConfig.MetricsEnabled)

	snapshotCache, err := cache.Open(cache.Config{
		Path:   appConfig.CachePath,
		Logger: logger,
	})
	if err != nil {
		return err
	}
	defer snapshotCache.Close()

	primaryClient, err := remote.NewPrimaryClient(remote.PrimaryConfig{
		EndpointURL: appConfig.PrimaryURL,
		Logger:      logger,
	})
	if err != nil {
		return err
	}

	var backupStore syncer.BackupStore
	if appConfig.BackupURL != "" && appConfig.BackupDocumentID != "" {
		backupClient, err := remote.NewBackupClient(remote.BackupConfig{
			EndpointURL: appConfig.BackupURL,
			DocumentID:  appConfig.BackupDocumentID,
			Logger:      logger,
		})
		if err != nil {
			return err
		}
		backupStore = backupClient
	}

	recordStore, err := records.NewStore(records.StoreConfig{
		Location:           appConfig.Timezone,
		IDProvider:         records.NewUUIDProvider(),
		PendingTTL:         appConfig.PendingTTL,
		EmptySnapshotFloor: appConfig.EmptySnapshotFloor,
		Logger:             logger,
	})
	if err != nil {
		return err
	}

	ledger := population.NewLedger(appConfig.Timezone)
	memberDirectory := directory.NewDirectory(appConfig.AdminKey)

	controller, err := syncer.NewController(syncer.ControllerConfig{
		Primary:      primaryClient,
		Backup:       backupStore,
		Cache:        snapshotCache,
		Records:      recordStore,
		Ledger:       ledger,
		Directory:    memberDirectory,
		Metrics:      metricsProvider,
		Logger:       logger,
		PollInterval: appConfig.PollInterval,
		Cooldown:     appConfig.Cooldown,
	})
	if err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "chapterboard-auth",
		Audience:      "chapterboard-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	googleVerifier, err := auth.NewGoogleVerifier(auth.GoogleVerifierConfig{
		Audience: appConfig.GoogleClientID,
		JWKSURL:  appConfig.GoogleJWKSURL,
		Logger:   logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		GoogleVerifier: googleVerifier,
		TokenManager:   tokenManager,
		Controller:     controller,
		Records:        recordStore,
		Ledger:         ledger,
		Directory:      memberDirectory,
		Scoring: server.ScoringOptions{
			Window:   appConfig.Window(),
			Location: appConfig.Timezone,
			DailyCap: appConfig.DailyCap,
		},
		MetricsEnabled: appConfig.MetricsEnabled,
		Logger:         logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go controller.Run(signalCtx)

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
