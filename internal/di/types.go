package di

import (
	"github.com/aristath/quantumfolio/internal/clients/yahoo"
	"github.com/aristath/quantumfolio/internal/database"
	"github.com/aristath/quantumfolio/internal/modules/optimization"
	"github.com/aristath/quantumfolio/internal/modules/universe"
	"github.com/aristath/quantumfolio/internal/reliability"
	"github.com/aristath/quantumfolio/internal/scheduler"
	"github.com/aristath/quantumfolio/internal/services"
	"github.com/aristath/quantumfolio/internal/workers"
)

// Container holds all application dependencies. It is the single source of
// truth for service instances and is handed to the server and the CLI.
type Container struct {
	// Databases
	HistoryDB *database.DB // daily prices, re-fetchable
	RunsDB    *database.DB // optimization run results

	// Repositories
	PriceHistory *universe.HistoryDB
	RunRepo      *optimization.RunRepository

	// Clients
	YahooClient *yahoo.Client
	R2Client    *reliability.R2Client // nil when archiving is disabled

	// Services
	PriceValidator *universe.PriceValidator
	SyncService    *universe.HistoricalSyncService
	WorkerPool     *workers.WorkerPool
	Optimizer      *optimization.Service
	BackupService  *reliability.R2BackupService // nil when archiving is disabled
	RunService     *services.RunService

	// Background jobs
	Scheduler *scheduler.Scheduler
}

// Databases returns every open database
func (c *Container) Databases() []*database.DB {
	var dbs []*database.DB
	for _, db := range []*database.DB{c.HistoryDB, c.RunsDB} {
		if db != nil {
			dbs = append(dbs, db)
		}
	}
	return dbs
}

// Close closes all databases. The scheduler must already be stopped.
func (c *Container) Close() error {
	var firstErr error
	for _, db := range c.Databases() {
		if err := db.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
