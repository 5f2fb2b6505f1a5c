// Package app assembles the services shared by the API server and the
// workers from configuration.
package app

import (
	"context"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"document-portal/portal-backend/internal/auth"
	"document-portal/portal-backend/internal/config"
	"document-portal/portal-backend/internal/database"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/documents"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/internal/notifications/websocket"
	"document-portal/portal-backend/internal/reports/export"
	"document-portal/portal-backend/internal/schedules"
	"document-portal/portal-backend/internal/settings"
	"document-portal/portal-backend/pkg/cloud"
	"document-portal/portal-backend/pkg/metrics"
	"document-portal/portal-backend/pkg/search"
	"document-portal/portal-backend/pkg/storage"
)

// App holds the wired services.
type App struct {
	Config        *config.Config
	DB            *gorm.DB
	Logger        *zap.Logger
	Metrics       *metrics.Collector
	Directory     directory.Repository
	Settings      *settings.Service
	Notifications *notifications.Service
	Websocket     *websocket.Manager
	Documents     *documents.Service
	Schedules     *schedules.Service
	Auth          *auth.Service
}

// New connects the store, migrates it when configured and builds every
// service. The websocket manager is only created when live is true.
func New(ctx context.Context, cfg *config.Config, logger *zap.Logger, live bool) (*App, error) {
	logger.Info("Connecting to database", zap.String("url", cfg.Database.Redacted()))
	db, err := database.Open(cfg.Database, cfg.IsProduction())
	if err != nil {
		return nil, err
	}
	return Assemble(ctx, cfg, db, logger, live)
}

// Assemble builds the services on an open database.
func Assemble(ctx context.Context, cfg *config.Config, db *gorm.DB, logger *zap.Logger, live bool) (*App, error) {
	if cfg.Database.AutoMigrate {
		if err := database.Migrate(db); err != nil {
			return nil, err
		}
	}

	a := &App{Config: cfg, DB: db, Logger: logger, Metrics: metrics.NewCollector()}
	a.Directory = directory.NewRepository(db)
	if _, err := database.EnsureAdmin(ctx, a.Directory, cfg.Bootstrap.AdminUsername, cfg.Bootstrap.AdminPassword, logger); err != nil {
		return nil, fmt.Errorf("failed to bootstrap admin: %w", err)
	}

	var awsCfg aws.Config
	if cfg.NeedsAWS() {
		var err error
		awsCfg, err = cloud.LoadAWSConfig(ctx, cloud.Options{
			Region:          cfg.AWS.Region,
			AccessKeyID:     cfg.AWS.AccessKeyID,
			SecretAccessKey: cfg.AWS.SecretAccessKey,
		})
		if err != nil {
			return nil, err
		}
	}
	return a.assemble(cfg, awsCfg, live)
}

func (a *App) assemble(cfg *config.Config, awsCfg aws.Config, live bool) (*App, error) {
	a.Settings = settings.NewService(settings.NewRepository(a.DB), a.Logger)
	notifyOpts := []notifications.Option{notifications.WithPreferences(a.Settings)}
	if live {
		a.Websocket = websocket.NewManager(a.Logger, cfg.Server.AllowedOrigins)
		notifyOpts = append(notifyOpts, notifications.WithPusher(a.Websocket))
	}
	if cfg.Email.Enabled {
		notifyOpts = append(notifyOpts, notifications.WithEmail(notifications.NewEmailChannel(awsCfg, cfg.Email.From), a.Directory))
	}
	if cfg.SMS.Enabled {
		notifyOpts = append(notifyOpts, notifications.WithSMS(notifications.NewSMSChannel(awsCfg, cfg.SMS.SenderID), a.Directory))
	}
	a.Notifications = notifications.NewService(a.DB, a.Logger, notifyOpts...)

	var blobs storage.S3Client
	switch cfg.Storage.Driver {
	case "s3":
		blobs = storage.NewS3Client(awsCfg, storage.S3Options{
			Endpoint:     cfg.Storage.Endpoint,
			UsePathStyle: cfg.Storage.UsePathStyle,
		})
	default:
		a.Logger.Warn("Attachments are kept in memory and lost on restart")
		blobs = storage.NewMemoryClient()
	}

	pdf := export.DefaultPDFOptions()
	pdf.FontPath = cfg.Export.PDFFontPath
	docOpts := []documents.Option{
		documents.WithNotifier(a.Notifications),
		documents.WithAttachmentStore(documents.NewAttachmentStore(blobs, cfg.Storage.Bucket, cfg.Storage.PresignTTL)),
		documents.WithPDFOptions(pdf),
	}
	if cfg.Search.Enabled {
		client, err := search.NewClient(search.Config{
			Addresses: cfg.Search.Addresses,
			Username:  cfg.Search.Username,
			Password:  cfg.Search.Password,
			Index:     cfg.Search.Index,
		})
		if err != nil {
			return nil, err
		}
		docOpts = append(docOpts, documents.WithIndexer(client))
	}
	a.Documents = documents.NewService(documents.NewRepository(a.DB), a.Directory, a.Logger, docOpts...)
	a.Schedules = schedules.NewService(schedules.NewRepository(a.DB), a.Directory, a.Logger,
		schedules.WithNotifier(a.Notifications))

	tokens, err := auth.NewTokenIssuer(cfg.Security.JWTSecret, cfg.Security.JWTIssuer, cfg.Security.TokenTTL)
	if err != nil {
		return nil, err
	}
	a.Auth = auth.NewService(a.Directory, tokens, a.Logger)
	return a, nil
}

// Close releases the websocket connections and the database pool.
func (a *App) Close() {
	if a.Websocket != nil {
		a.Websocket.Close()
	}
	if sqlDB, err := a.DB.DB(); err == nil {
		_ = sqlDB.Close()
	}
}
