package di

import (
	"fmt"

	"github.com/rs/zerolog"

	"github.com/aristath/quantumfolio/internal/config"
	"github.com/aristath/quantumfolio/internal/reliability"
	"github.com/aristath/quantumfolio/internal/scheduler"
)

// Maintenance schedules (seconds field first)
const (
	dailyMaintenanceSchedule  = "0 0 2 * * *"
	weeklyMaintenanceSchedule = "0 0 4 * * SUN"
)

// RegisterJobs creates the scheduler and registers all background jobs. The
// scheduler is not started.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) error {
	if container == nil {
		return fmt.Errorf("container cannot be nil")
	}

	sched := scheduler.New(log)

	// Price sync only runs when a watch list is configured
	if len(cfg.PriceSync.Symbols) > 0 {
		job := scheduler.NewPriceSyncJob(container.SyncService, cfg.PriceSync.Symbols, cfg.PriceSync.LookbackDays, log)
		if err := sched.AddJob(cfg.PriceSync.Schedule, job); err != nil {
			return err
		}
	}

	daily := reliability.NewDailyMaintenanceJob(container.Databases(), cfg.DataDir, log)
	if err := sched.AddJob(dailyMaintenanceSchedule, daily); err != nil {
		return err
	}

	weekly := reliability.NewWeeklyMaintenanceJob(container.Databases(), log)
	if err := sched.AddJob(weeklyMaintenanceSchedule, weekly); err != nil {
		return err
	}

	if container.BackupService != nil {
		backup := reliability.NewBackupJob(container.BackupService, cfg.Archive.RetentionDays, log)
		if err := sched.AddJob(cfg.Archive.BackupSchedule, backup); err != nil {
			return err
		}
	}

	container.Scheduler = sched
	log.Info().Int("jobs", sched.Entries()).Msg("Background jobs registered")
	return nil
}
