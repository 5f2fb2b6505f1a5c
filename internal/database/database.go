// Package database opens the Postgres store and migrates every table the
// portal owns.
package database

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"document-portal/portal-backend/internal/access"
	"document-portal/portal-backend/internal/apperr"
	"document-portal/portal-backend/internal/config"
	"document-portal/portal-backend/internal/directory"
	"document-portal/portal-backend/internal/documents"
	"document-portal/portal-backend/internal/notifications"
	"document-portal/portal-backend/internal/schedules"
	"document-portal/portal-backend/internal/settings"
)

// Open connects with the pool settings from cfg. SQL logging is only verbose
// outside production.
func Open(cfg config.DatabaseConfig, production bool) (*gorm.DB, error) {
	level := logger.Info
	if production {
		level = logger.Warn
	}
	db, err := gorm.Open(postgres.Open(cfg.GetDatabaseURL()), &gorm.Config{
		Logger:         logger.Default.LogMode(level),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(cfg.MaxConnections)
	sqlDB.SetMaxIdleConns(cfg.MaxIdleConns)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)
	return db, nil
}

// Models lists every table in migration order. Packages that share a table
// (history entries) list it once here.
func Models() []any {
	var models []any
	seen := make(map[string]bool)
	for _, set := range [][]any{
		directory.Models(),
		documents.Models(),
		schedules.Models(),
		notifications.Models(),
		settings.Models(),
	} {
		for _, m := range set {
			name := fmt.Sprintf("%T", m)
			if !seen[name] {
				seen[name] = true
				models = append(models, m)
			}
		}
	}
	return models
}

func Migrate(db *gorm.DB) error {
	if err := db.AutoMigrate(Models()...); err != nil {
		return fmt.Errorf("failed to run migrations: %w", err)
	}
	return nil
}

// EnsureAdmin creates the bootstrap administrator when no active admin
// exists. It reports whether a user was created.
func EnsureAdmin(ctx context.Context, repo directory.Repository, username, password string, log *zap.Logger) (bool, error) {
	if username == "" {
		return false, nil
	}
	role := access.RoleAdmin
	admins, err := repo.ListUsers(ctx, directory.UserFilter{Role: &role, ActiveOnly: true})
	if err != nil {
		return false, err
	}
	if len(admins) > 0 {
		return false, nil
	}
	if _, err := repo.GetUserByUsername(ctx, username); err == nil {
		return false, fmt.Errorf("user %q exists but is not an active admin", username)
	} else if !errors.Is(err, apperr.ErrNotFound) {
		return false, err
	}

	user, err := directory.NewUser(directory.CreateUserRequest{
		Username: username,
		FullName: "Quản trị hệ thống",
		Password: password,
		Roles:    []access.Role{access.RoleAdmin},
	})
	if err != nil {
		return false, err
	}
	if err := repo.CreateUser(ctx, user); err != nil {
		return false, err
	}
	log.Info("Bootstrap administrator created", zap.String("username", username), zap.Uint("user_id", user.ID))
	return true, nil
}
