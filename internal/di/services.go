package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/clients/yahoo"
	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/modules/universe"
	"github.com/aristath/quantumfolio/internal/reliability"
	"github.com/aristath/quantumfolio/internal/services"
	"github.com/aristath/quantumfolio/internal/workers"
)

// priceSource is recorded on every stored price row
const priceSource = "yahoo"

// InitializeServices builds repositories, clients and services on top of the
// open databases.
func InitializeServices(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	// Repositories
	container.PriceHistory = universe.NewHistoryDB(container.HistoryDB.Conn(), log)
	container.RunRepo = optimization.NewRunRepository(container.RunsDB.Conn(), log)

	// Price download
	container.YahooClient = yahoo.NewClient(log)
	container.PriceValidator = universe.NewPriceValidator(log)
	container.SyncService = universe.NewHistoricalSyncService(
		container.YahooClient,
		container.PriceHistory,
		container.PriceValidator,
		priceSource,
		log,
	)

	// Engine
	container.WorkerPool = workers.NewWorkerPool(cfg.SweepWorkers)
	container.Optimizer = optimization.NewService(nil, container.WorkerPool, log)

	// Archive (optional)
	var archiver services.RunArchiver
	if cfg.Archive.Enabled() {
		client, err := reliability.NewR2Client(
			cfg.Archive.AccountID,
			cfg.Archive.AccessKeyID,
			cfg.Archive.SecretAccessKey,
			cfg.Archive.Bucket,
			log,
		)
		if err != nil {
			return fmt.Errorf("failed to create R2 client: %w", err)
		}
		container.R2Client = client
		container.BackupService = reliability.NewR2BackupService(client, container.Databases(), cfg.DataDir, log)
		archiver = container.BackupService
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("Run archive enabled")
	} else {
		log.Info().Msg("Run archive disabled, no R2 credentials configured")
	}

	container.RunService = services.NewRunService(
		container.Optimizer,
		container.RunRepo,
		container.PriceHistory,
		container.SyncService,
		archiver,
		log,
	)
	return nil
}
