package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/yogaflow-backend/pkg/config"
	"github.com/angelmondragon/yogaflow-backend/pkg/db"
	"github.com/angelmondragon/yogaflow-backend/pkg/docstore"
	"github.com/angelmondragon/yogaflow-backend/pkg/logger"
)

// EnsureDocuments makes the documents table available at process start.
// SQLite gets the gorm schema since the goose files use Postgres types;
// Postgres defers to MaybeRunDev.
func EnsureDocuments(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg.FeatureFlags.UseSQLite || client.Dialect() == "sqlite" {
		if err := docstore.AutoMigrate(client.DB()); err != nil {
			return fmt.Errorf("sqlite documents schema: %w", err)
		}
		logg.Info(logg.WithField(ctx, "driver", client.Dialect()), "documents table ready")
		return nil
	}
	return MaybeRunDev(ctx, cfg, logg, client)
}

// MaybeRunDev runs goose up when the app is in dev and auto-migrate is on.
// Other environments run cmd/migrate as a release step.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("extracting sql.DB: %w", err)
	}

	ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "dir": DefaultDir, "driver": client.Dialect()})
	logg.Info(ctx, "running goose migrations (dev auto-run)")

	if err := Run(ctx, sqlDB, client.Dialect(), DefaultDir, "up"); err != nil {
		return fmt.Errorf("running goose up: %w", err)
	}

	logg.Info(ctx, "goose migrations completed")
	return nil
}
