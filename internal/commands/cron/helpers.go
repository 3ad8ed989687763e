package cron

import (
	"fmt"
	"time"

	"github.com/gobby-dev/gobby/internal/config"
	"github.com/gobby-dev/gobby/internal/model"
	"github.com/gobby-dev/gobby/internal/storage"
)

// openStore loads config from configPath (resolved by cobra's --config
// flag, falling back to the XDG default when empty) and opens the
// database it names. Callers must Close the returned store.
func openStore(configPath string) (*storage.Store, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	store, err := storage.Open(storage.Config{Path: cfg.Database.Path, WAL: cfg.Database.WAL})
	if err != nil {
		return nil, fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	return store, nil
}

func formatOptTime(t *time.Time) string {
	if t == nil {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

// scheduleSummary renders whichever of a job's three schedule fields is
// active, for list/runs table output.
func scheduleSummary(j *model.CronJob) string {
	switch j.ScheduleType {
	case model.ScheduleTypeCron:
		if j.Timezone != "" {
			return fmt.Sprintf("%s (%s)", j.CronExpr, j.Timezone)
		}
		return j.CronExpr
	case model.ScheduleTypeInterval:
		return fmt.Sprintf("every %ds", j.IntervalSeconds)
	case model.ScheduleTypeOnce:
		return "once@" + formatOptTime(j.RunAt)
	default:
		return string(j.ScheduleType)
	}
}
