package ledger

import (
	"errors"
	"fmt"
	"strings"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5" // pgx5 database driver
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"go.uber.org/zap"

	"github.com/your-org/agent-arena-bot/db/migrations"
)

// Migrate applies all pending schema migrations to the database behind dsn.
// Already being up to date is not an error.
func Migrate(dsn string, logger *zap.Logger) error {
	src, err := iofs.New(migrations.FS, ".")
	if err != nil {
		return fmt.Errorf("ledger.Migrate: load migrations: %w", err)
	}

	// golang-migrate selects its driver by URL scheme.
	url := strings.Replace(dsn, "postgres://", "pgx5://", 1)

	m, err := migrate.NewWithSourceInstance("iofs", src, url)
	if err != nil {
		return fmt.Errorf("ledger.Migrate: init: %w", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil {
		if errors.Is(err, migrate.ErrNoChange) {
			logger.Debug("ledger: schema already up to date")
			return nil
		}
		return fmt.Errorf("ledger.Migrate: up: %w", err)
	}
	logger.Info("ledger: schema migrations applied")
	return nil
}
