package models

import (
	"encoding/json"
	"time"

	"gorm.io/datatypes"
)

const JobTypeDecisionPipeline = "decision_pipeline"

// Job is a schedulable unit of work. Jobs are seeded at provisioning time and toggled by operators.
type Job struct {
	ID       string `gorm:"type:varchar(64);primaryKey" json:"id"`
	Name     string `gorm:"type:varchar(100);not null" json:"name"`
	Type     string `gorm:"type:varchar(40);not null;index" json:"type"`
	Schedule string `gorm:"type:varchar(100);not null" json:"schedule"`
	Timezone string `gorm:"type:varchar(64);not null;default:'America/New_York'" json:"timezone"`
	Enabled  bool   `gorm:"not null;index" json:"enabled"`

	Config datatypes.JSON `gorm:"type:jsonb" json:"config" swaggertype:"object"`

	LastRunAt     *time.Time `gorm:"type:timestamptz" json:"last_run_at,omitempty"`
	LastRunStatus string     `gorm:"type:varchar(20)" json:"last_run_status,omitempty"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (Job) TableName() string {
	return "jobs"
}

// JobConfig is the decoded form of Job.Config.
type JobConfig struct {
	Symbol          string  `json:"symbol" yaml:"symbol"`
	SkipMarketCheck bool    `json:"skip_market_check,omitempty" yaml:"skip_market_check"`
	Direction       string  `json:"direction,omitempty" yaml:"direction"`
	StopMultiplier  float64 `json:"stop_multiplier,omitempty" yaml:"stop_multiplier"`
	Aggression      float64 `json:"aggression,omitempty" yaml:"aggression"`
}

// DecodeConfig parses the job's JSON config; an empty config decodes to the zero value.
func (j Job) DecodeConfig() (JobConfig, error) {
	var out JobConfig
	if len(j.Config) == 0 {
		return out, nil
	}
	if err := json.Unmarshal(j.Config, &out); err != nil {
		return JobConfig{}, err
	}
	return out, nil
}
