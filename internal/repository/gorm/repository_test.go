package gormrepository

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/schema"

	"zerodte/internal/db"
	"zerodte/internal/models"
	"zerodte/internal/repository"
)

type statement struct {
	sql  string
	vars []any
}

// dryStore records every statement the store builds; nothing reaches a server.
func dryStore(t *testing.T) (*Store, *gorm.DB, *[]statement) {
	t.Helper()
	gdb, err := db.OpenDryRun()
	require.NoError(t, err)

	var stmts []statement
	record := func(tx *gorm.DB) {
		stmts = append(stmts, statement{
			sql:  tx.Statement.SQL.String(),
			vars: append([]any(nil), tx.Statement.Vars...),
		})
	}
	require.NoError(t, gdb.Callback().Create().After("gorm:create").Register("zerodte:record_create", record))
	require.NoError(t, gdb.Callback().Update().After("gorm:update").Register("zerodte:record_update", record))
	require.NoError(t, gdb.Callback().Query().After("gorm:query").Register("zerodte:record_query", record))
	return New(gdb), gdb, &stmts
}

// insertVar returns the bound value of column in a single-row INSERT.
func insertVar(t *testing.T, st statement, column string) any {
	t.Helper()
	open := strings.Index(st.sql, "(")
	closing := strings.Index(st.sql, ")")
	require.True(t, open >= 0 && closing > open, st.sql)
	for i, c := range strings.Split(st.sql[open+1:closing], ",") {
		if strings.Trim(strings.TrimSpace(c), `"`) == column {
			require.Less(t, i, len(st.vars))
			return st.vars[i]
		}
	}
	t.Fatalf("column %s not in %s", column, st.sql)
	return nil
}

func TestJob_EnabledHasNoColumnDefault(t *testing.T) {
	sch, err := schema.Parse(&models.Job{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	f := sch.LookUpField("enabled")
	require.NotNil(t, f)
	assert.True(t, f.NotNull)
	assert.Nil(t, f.DefaultValueInterface)
	assert.Empty(t, f.DefaultValue)
}

func TestStore_UpsertJobKeepsDisabledSeed(t *testing.T) {
	store, _, stmts := dryStore(t)
	job := &models.Job{
		ID:       "qqq-0dte-midday",
		Name:     "QQQ 0DTE midday",
		Type:     models.JobTypeDecisionPipeline,
		Schedule: "0 0 12 * * MON-FRI",
		Timezone: "America/New_York",
		Enabled:  false,
	}
	require.NoError(t, store.UpsertJob(context.Background(), job))
	assert.False(t, job.Enabled)

	require.Len(t, *stmts, 1)
	st := (*stmts)[0]
	assert.Contains(t, st.sql, `INSERT INTO "jobs"`)
	assert.Equal(t, false, insertVar(t, st, "enabled"))

	at := strings.Index(st.sql, "ON CONFLICT")
	require.GreaterOrEqual(t, at, 0, st.sql)
	onConflict := st.sql[at:]
	assert.Contains(t, onConflict, `("id")`)
	for _, col := range []string{"name", "type", "schedule", "timezone", "config", "updated_at"} {
		assert.Contains(t, onConflict, `"excluded"."`+col+`"`)
	}
	assert.NotContains(t, onConflict, `"excluded"."enabled"`)
	assert.NotContains(t, onConflict, `"excluded"."last_run_at"`)
}

func TestStore_SetJobEnabledWritesFalse(t *testing.T) {
	store, _, stmts := dryStore(t)
	err := store.SetJobEnabled(context.Background(), "spy-0dte", false)
	assert.ErrorIs(t, err, repository.ErrJobNotFound, "a dry run matches no rows")

	require.Len(t, *stmts, 1)
	st := (*stmts)[0]
	assert.Contains(t, st.sql, `UPDATE "jobs" SET "enabled"=$1`)
	assert.Equal(t, false, st.vars[0])
	assert.Contains(t, st.vars, "spy-0dte")
}

func TestJobRun_ClaimIndexIsPartialUnique(t *testing.T) {
	sch, err := schema.Parse(&models.JobRun{}, &sync.Map{}, schema.NamingStrategy{})
	require.NoError(t, err)
	idx := sch.LookIndex("idx_job_runs_claim")
	require.NotNil(t, idx)
	assert.Equal(t, "UNIQUE", idx.Class)
	require.Len(t, idx.Fields, 2)
	assert.Equal(t, "job_id", idx.Fields[0].DBName)
	assert.Equal(t, "market_day", idx.Fields[1].DBName)
	assert.Contains(t, idx.Where, "status <> 'failed'")
	assert.Contains(t, idx.Where, "status <> 'skipped'")
	assert.Contains(t, idx.Where, "forced = false")
}

func TestStore_ClaimRunInsertsRunningAndMapsDuplicate(t *testing.T) {
	store, gdb, stmts := dryStore(t)
	ctx := context.Background()
	started := time.Date(2025, 3, 4, 15, 0, 0, 0, time.UTC)

	run := &models.JobRun{ID: "run-1", JobID: "spy-0dte", MarketDay: "2025-03-04", TriggeredBy: models.TriggerScheduler, StartedAt: started}
	require.NoError(t, store.ClaimRun(ctx, run))
	assert.Equal(t, models.RunRunning, run.Status)
	require.Len(t, *stmts, 1)
	st := (*stmts)[0]
	assert.Contains(t, st.sql, `INSERT INTO "job_runs"`)
	assert.Equal(t, models.RunRunning, insertVar(t, st, "status"))
	assert.Equal(t, "2025-03-04", insertVar(t, st, "market_day"))
	assert.Equal(t, false, insertVar(t, st, "forced"))

	require.NoError(t, gdb.Callback().Create().Before("gorm:create").Register("zerodte:unique_violation", func(tx *gorm.DB) {
		_ = tx.AddError(gorm.ErrDuplicatedKey)
	}))
	err := store.ClaimRun(ctx, &models.JobRun{ID: "run-2", JobID: "spy-0dte", MarketDay: "2025-03-04", TriggeredBy: models.TriggerManual, StartedAt: started})
	assert.ErrorIs(t, err, repository.ErrRunConflict)
}

func TestStore_FinishRunOnlyUpdatesRunningRow(t *testing.T) {
	store, _, stmts := dryStore(t)
	ended := time.Date(2025, 3, 4, 15, 0, 2, 0, time.UTC)
	err := store.FinishRun(context.Background(), &models.JobRun{
		ID:         "run-1",
		Status:     models.RunSuccess,
		EndedAt:    &ended,
		DurationMs: 2000,
		Attempts:   1,
	})
	assert.ErrorIs(t, err, repository.ErrRunFinalized, "a dry run matches no rows")

	require.Len(t, *stmts, 1)
	st := (*stmts)[0]
	assert.Contains(t, st.sql, `UPDATE "job_runs" SET`)
	at := strings.Index(st.sql, "WHERE")
	require.GreaterOrEqual(t, at, 0, st.sql)
	where := st.sql[at:]
	assert.Contains(t, where, "id = $")
	assert.Contains(t, where, "status = $")
	assert.Contains(t, st.vars, "run-1")
	assert.Contains(t, st.vars, models.RunRunning)
	assert.Contains(t, st.vars, models.RunSuccess)
}

func TestLockStaleRuns_SkipsLockedRows(t *testing.T) {
	gdb, err := db.OpenDryRun()
	require.NoError(t, err)
	before := time.Date(2025, 3, 4, 14, 0, 0, 0, time.UTC)
	sql := gdb.ToSQL(func(tx *gorm.DB) *gorm.DB {
		return lockStaleRuns(tx, before).Find(&[]models.JobRun{})
	})
	assert.Contains(t, sql, `FROM "job_runs"`)
	assert.Contains(t, sql, "started_at <")
	assert.Contains(t, sql, "running")
	assert.Contains(t, sql, "ORDER BY started_at ASC")
	assert.Contains(t, sql, "FOR UPDATE SKIP LOCKED")
}

func TestStore_NilIsNoop(t *testing.T) {
	var s *Store
	ctx := context.Background()
	assert.NoError(t, s.UpsertJob(ctx, &models.Job{ID: "x"}))
	assert.NoError(t, s.ClaimRun(ctx, &models.JobRun{ID: "x"}))
	runs, err := s.FailStaleRuns(ctx, time.Now(), time.Now(), "stale")
	assert.NoError(t, err)
	assert.Nil(t, runs)
}
