// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"
	"path/filepath"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/database"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// history.db - daily prices, can be re-downloaded
	historyDB, err := openDatabase(cfg.DataDir, database.NameHistory, database.ProfileStandard)
	if err != nil {
		return nil, err
	}
	container.HistoryDB = historyDB

	// runs.db - run results, fsync on every commit
	runsDB, err := openDatabase(cfg.DataDir, database.NameRuns, database.ProfileDurable)
	if err != nil {
		historyDB.Close()
		return nil, err
	}
	container.RunsDB = runsDB

	log.Info().Str("data_dir", cfg.DataDir).Msg("Databases initialized")
	return container, nil
}

func openDatabase(dataDir, name string, profile database.DatabaseProfile) (*database.DB, error) {
	db, err := database.New(database.Config{
		Path:    filepath.Join(dataDir, name+".db"),
		Profile: profile,
		Name:    name,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s database: %w", name, err)
	}
	if err := db.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate %s database: %w", name, err)
	}
	return db, nil
}
