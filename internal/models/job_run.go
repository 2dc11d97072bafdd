package models

import (
	"time"

	"gorm.io/datatypes"
)

type RunStatus string

const (
	RunPending RunStatus = "pending"
	RunRunning RunStatus = "running"
	RunSuccess RunStatus = "success"
	RunFailed  RunStatus = "failed"
	RunSkipped RunStatus = "skipped"
)

func (s RunStatus) Terminal() bool {
	return s == RunSuccess || s == RunFailed || s == RunSkipped
}

type Trigger string

const (
	TriggerScheduler Trigger = "scheduler"
	TriggerManual    Trigger = "manual"
)

// JobRun is one execution record of a Job. The partial unique index lets at most one
// unforced running-or-successful run exist per job and trading day.
type JobRun struct {
	ID          string    `gorm:"type:varchar(36);primaryKey" json:"id"`
	JobID       string    `gorm:"type:varchar(64);not null;index;uniqueIndex:idx_job_runs_claim,priority:1,where:status <> 'failed' AND status <> 'skipped' AND forced = false" json:"job_id"`
	MarketDay   string    `gorm:"type:varchar(10);not null;index;uniqueIndex:idx_job_runs_claim,priority:2" json:"market_day"`
	Status      RunStatus `gorm:"type:varchar(20);not null;index" json:"status"`
	TriggeredBy Trigger   `gorm:"type:varchar(20);not null" json:"triggered_by"`

	StartedAt  time.Time  `gorm:"type:timestamptz;not null;index" json:"started_at"`
	EndedAt    *time.Time `gorm:"type:timestamptz" json:"ended_at,omitempty"`
	DurationMs int64      `gorm:"default:0" json:"duration_ms"`

	Result datatypes.JSON `gorm:"type:jsonb" json:"result,omitempty" swaggertype:"object"`
	Error  string         `gorm:"type:text" json:"error,omitempty"`
	Reason string         `gorm:"type:text" json:"reason,omitempty"`

	Attempts        int  `gorm:"default:0" json:"attempts"`
	Forced          bool `gorm:"default:false" json:"forced"`
	SkipMarketCheck bool `gorm:"default:false" json:"skip_market_check"`

	CreatedAt time.Time `gorm:"type:timestamptz;autoCreateTime" json:"created_at"`
	UpdatedAt time.Time `gorm:"type:timestamptz;autoUpdateTime" json:"updated_at"`
}

func (JobRun) TableName() string {
	return "job_runs"
}
