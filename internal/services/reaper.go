package services

import (
	"time"

	"github.com/schedulo/verify/internal/models"
	"github.com/schedulo/verify/pkg/logger"
	"gorm.io/gorm"
)

// Reaper is storage hygiene only: it deletes old terminal challenges and
// expired device grants on a timer. Correctness never depends on it running;
// expiry is evaluated lazily at verification time.
type Reaper struct {
	DB            *gorm.DB
	RetentionDays int
	Interval      time.Duration

	Now func() time.Time
}

func NewReaper(db *gorm.DB, retentionDays int, interval time.Duration) *Reaper {
	return &Reaper{
		DB:            db,
		RetentionDays: retentionDays,
		Interval:      interval,
		Now:           time.Now,
	}
}

func (r *Reaper) Start() {
	go func() {
		ticker := time.NewTicker(r.Interval)
		defer ticker.Stop()

		for range ticker.C {
			r.Sweep()
		}
	}()

	logger.Info("reaper_started", map[string]interface{}{
		"interval":       r.Interval.String(),
		"retention_days": r.RetentionDays,
	})
}

// Sweep removes challenges past the retention window regardless of status
// and trusted devices past their grant expiry. Failures are logged and
// retried on the next tick; they never affect issuance or verification.
func (r *Reaper) Sweep() {
	now := r.Now()
	cutoff := now.Add(-time.Duration(r.RetentionDays) * 24 * time.Hour)

	res := r.DB.Where("created_at < ?", cutoff).Delete(&models.Challenge{})
	if res.Error != nil {
		logger.Error("reaper_challenge_sweep_failed", res.Error, nil)
	} else if res.RowsAffected > 0 {
		logger.Info("reaper_challenges_deleted", map[string]interface{}{
			"count": res.RowsAffected,
		})
	}

	res = r.DB.Where("expires_at < ?", now).Delete(&models.TrustedDevice{})
	if res.Error != nil {
		logger.Error("reaper_device_sweep_failed", res.Error, nil)
	} else if res.RowsAffected > 0 {
		logger.Info("reaper_devices_deleted", map[string]interface{}{
			"count": res.RowsAffected,
		})
	}
}
