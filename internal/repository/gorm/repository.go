package gormrepository

import (
	"context"
	"errors"
	"strings"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"zerodte/internal/models"
	"zerodte/internal/repository"
)

type Store struct {
	db *gorm.DB
}

func New(db *gorm.DB) *Store {
	return &Store{db: db}
}

func (s *Store) ListJobs(ctx context.Context) ([]models.Job, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var items []models.Job
	err := s.db.WithContext(ctx).Model(&models.Job{}).Order("id ASC").Find(&items).Error
	return items, err
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil
	}
	var item models.Job
	err := s.db.WithContext(ctx).Model(&models.Job{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

// UpsertJob refreshes definition columns only; the operator-owned enabled flag survives reseeding.
func (s *Store) UpsertJob(ctx context.Context, item *models.Job) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	if strings.TrimSpace(item.ID) == "" {
		return nil
	}
	return s.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"name",
			"type",
			"schedule",
			"timezone",
			"config",
			"updated_at",
		}),
	}).Create(item).Error
}

func (s *Store) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", strings.TrimSpace(id)).
		Updates(map[string]any{"enabled": enabled, "updated_at": time.Now().UTC()})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (s *Store) UpdateJobLastRun(ctx context.Context, id string, at time.Time, status models.RunStatus) error {
	if s == nil || s.db == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.Job{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"last_run_at":     at.UTC(),
			"last_run_status": string(status),
			"updated_at":      time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrJobNotFound
	}
	return nil
}

func (s *Store) FindSuccessfulRun(ctx context.Context, jobID string, marketDay string) (*models.JobRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.JobRun
	err := s.db.WithContext(ctx).Model(&models.JobRun{}).
		Where("job_id = ? AND market_day = ? AND status = ?", jobID, marketDay, models.RunSuccess).
		Order("started_at ASC").
		First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ClaimRun(ctx context.Context, item *models.JobRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	item.Status = models.RunRunning
	err := s.db.WithContext(ctx).Create(item).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return repository.ErrRunConflict
	}
	return err
}

func (s *Store) InsertRun(ctx context.Context, item *models.JobRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	return s.db.WithContext(ctx).Create(item).Error
}

func (s *Store) FinishRun(ctx context.Context, item *models.JobRun) error {
	if s == nil || s.db == nil || item == nil {
		return nil
	}
	res := s.db.WithContext(ctx).Model(&models.JobRun{}).
		Where("id = ? AND status = ?", item.ID, models.RunRunning).
		Updates(map[string]any{
			"status":      item.Status,
			"ended_at":    item.EndedAt,
			"duration_ms": item.DurationMs,
			"result":      item.Result,
			"error":       item.Error,
			"reason":      item.Reason,
			"attempts":    item.Attempts,
			"updated_at":  time.Now().UTC(),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return repository.ErrRunFinalized
	}
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*models.JobRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var item models.JobRun
	err := s.db.WithContext(ctx).Model(&models.JobRun{}).Where("id = ?", id).First(&item).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &item, nil
}

func (s *Store) ListRuns(ctx context.Context, params repository.ListRunsParams) ([]models.JobRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	q := s.db.WithContext(ctx).Model(&models.JobRun{})
	if jobID := strings.TrimSpace(params.JobID); jobID != "" {
		q = q.Where("job_id = ?", jobID)
	}
	if status := strings.TrimSpace(params.Status); status != "" {
		q = q.Where("status = ?", status)
	}
	if params.Limit > 0 {
		q = q.Limit(params.Limit)
	}
	var items []models.JobRun
	err := q.Order("started_at DESC").Order("id DESC").Find(&items).Error
	return items, err
}

func (s *Store) FailStaleRuns(ctx context.Context, startedBefore time.Time, now time.Time, message string) ([]models.JobRun, error) {
	if s == nil || s.db == nil {
		return nil, nil
	}
	var out []models.JobRun
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var stale []models.JobRun
		if err := lockStaleRuns(tx, startedBefore).Find(&stale).Error; err != nil {
			return err
		}
		ended := now.UTC()
		for i := range stale {
			r := stale[i]
			duration := ended.Sub(r.StartedAt).Milliseconds()
			res := tx.Model(&models.JobRun{}).
				Where("id = ? AND status = ?", r.ID, models.RunRunning).
				Updates(map[string]any{
					"status":      models.RunFailed,
					"ended_at":    ended,
					"duration_ms": duration,
					"error":       message,
					"updated_at":  ended,
				})
			if res.Error != nil {
				return res.Error
			}
			if res.RowsAffected == 0 {
				continue
			}
			r.Status = models.RunFailed
			r.EndedAt = &ended
			r.DurationMs = duration
			r.Error = message
			out = append(out, r)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// lockStaleRuns selects running rows older than startedBefore, skipping rows another sweeper holds.
func lockStaleRuns(tx *gorm.DB, startedBefore time.Time) *gorm.DB {
	return tx.Model(&models.JobRun{}).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Where("status = ? AND started_at < ?", models.RunRunning, startedBefore.UTC()).
		Order("started_at ASC")
}
