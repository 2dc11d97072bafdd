package memoryrepository

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"zerodte/internal/models"
	"zerodte/internal/repository"
)

// Store keeps jobs and runs in process memory. It backs tests and the "memory" db driver.
type Store struct {
	mu   sync.Mutex
	jobs map[string]models.Job
	runs map[string]models.JobRun
	now  func() time.Time
}

func New() *Store {
	return &Store{
		jobs: map[string]models.Job{},
		runs: map[string]models.JobRun{},
		now:  func() time.Time { return time.Now().UTC() },
	}
}

func (s *Store) ListJobs(ctx context.Context) ([]models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.Job, 0, len(s.jobs))
	for _, j := range s.jobs {
		out = append(out, j)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].ID < out[k].ID })
	return out, nil
}

func (s *Store) GetJob(ctx context.Context, id string) (*models.Job, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[strings.TrimSpace(id)]
	if !ok {
		return nil, nil
	}
	return &j, nil
}

func (s *Store) UpsertJob(ctx context.Context, item *models.Job) error {
	if item == nil || strings.TrimSpace(item.ID) == "" {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	if prev, ok := s.jobs[item.ID]; ok {
		prev.Name = item.Name
		prev.Type = item.Type
		prev.Schedule = item.Schedule
		prev.Timezone = item.Timezone
		prev.Config = item.Config
		prev.UpdatedAt = now
		s.jobs[item.ID] = prev
		return nil
	}
	cp := *item
	cp.CreatedAt = now
	cp.UpdatedAt = now
	s.jobs[item.ID] = cp
	return nil
}

func (s *Store) SetJobEnabled(ctx context.Context, id string, enabled bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	j.Enabled = enabled
	j.UpdatedAt = s.now()
	s.jobs[id] = j
	return nil
}

func (s *Store) UpdateJobLastRun(ctx context.Context, id string, at time.Time, status models.RunStatus) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	j, ok := s.jobs[id]
	if !ok {
		return repository.ErrJobNotFound
	}
	at = at.UTC()
	j.LastRunAt = &at
	j.LastRunStatus = string(status)
	j.UpdatedAt = s.now()
	s.jobs[id] = j
	return nil
}

func (s *Store) FindSuccessfulRun(ctx context.Context, jobID string, marketDay string) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var found *models.JobRun
	for _, r := range s.runs {
		if r.JobID != jobID || r.MarketDay != marketDay || r.Status != models.RunSuccess {
			continue
		}
		if found == nil || r.StartedAt.Before(found.StartedAt) {
			cp := r
			found = &cp
		}
	}
	return found, nil
}

func (s *Store) ClaimRun(ctx context.Context, item *models.JobRun) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !item.Forced {
		for _, r := range s.runs {
			if r.JobID != item.JobID || r.MarketDay != item.MarketDay || r.Forced {
				continue
			}
			if r.Status == models.RunRunning || r.Status == models.RunSuccess {
				return repository.ErrRunConflict
			}
		}
	}
	item.Status = models.RunRunning
	s.insertLocked(item)
	return nil
}

func (s *Store) InsertRun(ctx context.Context, item *models.JobRun) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.insertLocked(item)
	return nil
}

func (s *Store) insertLocked(item *models.JobRun) {
	now := s.now()
	item.CreatedAt = now
	item.UpdatedAt = now
	s.runs[item.ID] = *item
}

func (s *Store) FinishRun(ctx context.Context, item *models.JobRun) error {
	if item == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	prev, ok := s.runs[item.ID]
	if !ok || prev.Status != models.RunRunning {
		return repository.ErrRunFinalized
	}
	prev.Status = item.Status
	prev.EndedAt = item.EndedAt
	prev.DurationMs = item.DurationMs
	prev.Result = item.Result
	prev.Error = item.Error
	prev.Reason = item.Reason
	prev.Attempts = item.Attempts
	prev.UpdatedAt = s.now()
	s.runs[item.ID] = prev
	return nil
}

func (s *Store) GetRun(ctx context.Context, id string) (*models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.runs[id]
	if !ok {
		return nil, nil
	}
	return &r, nil
}

func (s *Store) ListRuns(ctx context.Context, params repository.ListRunsParams) ([]models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]models.JobRun, 0)
	for _, r := range s.runs {
		if params.JobID != "" && r.JobID != params.JobID {
			continue
		}
		if params.Status != "" && string(r.Status) != params.Status {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, k int) bool {
		if out[i].StartedAt.Equal(out[k].StartedAt) {
			return out[i].ID > out[k].ID
		}
		return out[i].StartedAt.After(out[k].StartedAt)
	})
	if params.Limit > 0 && len(out) > params.Limit {
		out = out[:params.Limit]
	}
	return out, nil
}

func (s *Store) FailStaleRuns(ctx context.Context, startedBefore time.Time, now time.Time, message string) ([]models.JobRun, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.JobRun
	for id, r := range s.runs {
		if r.Status != models.RunRunning || !r.StartedAt.Before(startedBefore) {
			continue
		}
		ended := now.UTC()
		r.Status = models.RunFailed
		r.EndedAt = &ended
		r.DurationMs = ended.Sub(r.StartedAt).Milliseconds()
		r.Error = message
		r.UpdatedAt = ended
		s.runs[id] = r
		out = append(out, r)
	}
	sort.Slice(out, func(i, k int) bool { return out[i].StartedAt.Before(out[k].StartedAt) })
	return out, nil
}
