// Package server manages the PicoRelay database layer.
// It initializes GORM with SQLite and provides the durable stores behind
// the API: the append-only readings history and the per-device command
// mailbox with its consume-exactly-once poll.
package server

import (
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/jkoivu/picorelay/internal/config"
	"github.com/jkoivu/picorelay/internal/models"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var DB *gorm.DB

// historyLimitMax caps /api/db-data page sizes; historyLimitDefault
// applies when the client sends no limit.
const (
	historyLimitMax     = 500
	historyLimitDefault = 50
)

// InitDB opens the database and runs AutoMigrate.
func InitDB(cfg *config.Config) error {
	var dialector gorm.Dialector
	switch cfg.DBDriver {
	case "sqlite", "":
		dialector = sqlite.Open(cfg.DBPath)
	default:
		return fmt.Errorf("unsupported db_driver %q (use 'sqlite')", cfg.DBDriver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Warn),
	})
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}

	if err := db.AutoMigrate(&models.Reading{}, &models.Command{}); err != nil {
		return fmt.Errorf("auto-migrate: %w", err)
	}

	DB = db
	log.Printf("[db] opened %s/%s", cfg.DBDriver, cfg.DBPath)
	return nil
}

// SaveReading appends one reading to durable history.
func SaveReading(r *models.Reading) error {
	return DB.Create(r).Error
}

// RecentReadings returns the most recent limit readings, oldest first,
// optionally filtered by device. limit is clamped to [1, historyLimitMax];
// zero or negative means the default page size.
func RecentReadings(limit int, deviceID string) ([]models.Reading, error) {
	if limit <= 0 {
		limit = historyLimitDefault
	}
	if limit > historyLimitMax {
		limit = historyLimitMax
	}

	q := DB.Model(&models.Reading{})
	if deviceID != "" {
		q = q.Where("device_id = ?", deviceID)
	}

	var readings []models.Reading
	if err := q.Order("reported_at desc, id desc").Limit(limit).Find(&readings).Error; err != nil {
		return nil, err
	}

	// Query newest-first to apply the limit, respond oldest-first.
	for i, j := 0, len(readings)-1; i < j; i, j = i+1, j-1 {
		readings[i], readings[j] = readings[j], readings[i]
	}
	return readings, nil
}

// EnqueueCommand queues params for a device and returns the stored entry.
// There is deliberately no check that the device has ever reported:
// commands may be staged before a node first comes online.
func EnqueueCommand(deviceID string, params datatypes.JSON, now time.Time) (*models.Command, error) {
	cmd := &models.Command{
		CommandID: uuid.NewString(),
		DeviceID:  deviceID,
		Params:    params,
		Consumed:  false,
		QueuedAt:  now,
	}
	if err := DB.Create(cmd).Error; err != nil {
		return nil, err
	}
	return cmd, nil
}

// NextCommand returns the oldest queued command for a device, or nil when
// the mailbox is empty. With consume=false (peek) the entry is returned
// unchanged. With consume=true the entry is atomically marked delivered:
// the conditional UPDATE flips the flag only if it is still unset, so of
// two racing consumers exactly one wins a given entry and the loser
// reselects the next-oldest queued one.
func NextCommand(deviceID string, consume bool) (*models.Command, error) {
	for {
		var cmd models.Command
		err := DB.Where("device_id = ? AND consumed = ?", deviceID, false).
			Order("queued_at asc, id asc").
			First(&cmd).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}

		if !consume {
			return &cmd, nil
		}

		deliveredAt := time.Now()
		res := DB.Model(&models.Command{}).
			Where("id = ? AND consumed = ?", cmd.ID, false).
			Updates(map[string]any{
				"consumed":     true,
				"delivered_at": deliveredAt,
			})
		if res.Error != nil {
			return nil, res.Error
		}
		if res.RowsAffected == 1 {
			cmd.Consumed = true
			cmd.DeliveredAt = &deliveredAt
			return &cmd, nil
		}
		// Another poller consumed it between select and update; retry.
	}
}
