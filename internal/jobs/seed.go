package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
	"gorm.io/datatypes"

	cronrunner "zerodte/internal/cron"
	"zerodte/internal/models"
	"zerodte/internal/repository"
)

type SeedFile struct {
	Timezone string    `yaml:"timezone"`
	Jobs     []SeedJob `yaml:"jobs"`
}

type SeedJob struct {
	ID       string           `yaml:"id"`
	Name     string           `yaml:"name"`
	Type     string           `yaml:"type"`
	Schedule string           `yaml:"schedule"`
	Timezone string           `yaml:"timezone"`
	Enabled  *bool            `yaml:"enabled"`
	Config   models.JobConfig `yaml:"config"`
}

func LoadSeedFile(path string) (SeedFile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return SeedFile{}, err
	}
	return ParseSeed(raw)
}

func ParseSeed(raw []byte) (SeedFile, error) {
	var f SeedFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return SeedFile{}, fmt.Errorf("parse job seed: %w", err)
	}
	return f, nil
}

// Models validates the seed and converts it to job rows.
func (f SeedFile) Models() ([]models.Job, error) {
	out := make([]models.Job, 0, len(f.Jobs))
	seen := map[string]struct{}{}
	for i, sj := range f.Jobs {
		id := strings.TrimSpace(sj.ID)
		if id == "" {
			return nil, fmt.Errorf("job seed #%d: id is required", i)
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("job seed %s: duplicate id", id)
		}
		seen[id] = struct{}{}

		tz := strings.TrimSpace(sj.Timezone)
		if tz == "" {
			tz = f.Timezone
		}
		if _, err := cronrunner.Parse(cronrunner.WithTimezone(sj.Schedule, tz)); err != nil {
			return nil, fmt.Errorf("job seed %s: schedule %q: %w", id, sj.Schedule, err)
		}
		if strings.TrimSpace(sj.Config.Symbol) == "" {
			return nil, fmt.Errorf("job seed %s: config.symbol is required", id)
		}
		typ := strings.TrimSpace(sj.Type)
		if typ == "" {
			typ = models.JobTypeDecisionPipeline
		}
		cfg, err := json.Marshal(sj.Config)
		if err != nil {
			return nil, err
		}
		enabled := true
		if sj.Enabled != nil {
			enabled = *sj.Enabled
		}
		name := strings.TrimSpace(sj.Name)
		if name == "" {
			name = id
		}
		out = append(out, models.Job{
			ID:       id,
			Name:     name,
			Type:     typ,
			Schedule: strings.TrimSpace(sj.Schedule),
			Timezone: tz,
			Enabled:  enabled,
			Config:   datatypes.JSON(cfg),
		})
	}
	return out, nil
}

// Seed upserts job definitions. Operator-set enabled flags on existing jobs are preserved.
func Seed(ctx context.Context, repo repository.JobRepository, items []models.Job) error {
	if repo == nil {
		return nil
	}
	for i := range items {
		if err := repo.UpsertJob(ctx, &items[i]); err != nil {
			return fmt.Errorf("seed job %s: %w", items[i].ID, err)
		}
	}
	return nil
}
