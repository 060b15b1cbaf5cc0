package migrate

import (
	"context"
	"fmt"

	"github.com/angelmondragon/preorder-backend/pkg/config"
	"github.com/angelmondragon/preorder-backend/pkg/db"
	"github.com/angelmondragon/preorder-backend/pkg/logger"
)

// MaybeRunDev applies pending migrations on boot, but only in dev with
// PREORDER_AUTO_MIGRATE set. Other environments migrate through cmd/migrate.
func MaybeRunDev(ctx context.Context, cfg *config.Config, logg *logger.Logger, client *db.Client) error {
	if cfg == nil || client == nil || !cfg.App.IsDev() || !cfg.FeatureFlags.AutoMigrate {
		return nil
	}

	sqlDB, err := client.DB().DB()
	if err != nil {
		return fmt.Errorf("unwrap sql.DB: %w", err)
	}
	if err := ValidateDir(DefaultDir); err != nil {
		return err
	}
	if err := Run(ctx, sqlDB, DefaultDir, "up"); err != nil {
		return err
	}

	if logg != nil {
		version, verr := CurrentVersion(ctx, sqlDB)
		ctx = logg.WithFields(ctx, map[string]any{"env": cfg.App.Env, "schema_version": version})
		if verr != nil {
			logg.Error(ctx, "migrate.autorun.version_unknown", verr)
			return nil
		}
		logg.Info(ctx, "migrate.autorun.applied")
	}
	return nil
}
