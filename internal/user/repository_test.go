package user

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// sqlRecorder keeps the statements gorm would have sent.
type sqlRecorder struct {
	mu         sync.Mutex
	statements []string
}

func (r *sqlRecorder) LogMode(logger.LogLevel) logger.Interface     { return r }
func (r *sqlRecorder) Info(context.Context, string, ...interface{})  {}
func (r *sqlRecorder) Warn(context.Context, string, ...interface{})  {}
func (r *sqlRecorder) Error(context.Context, string, ...interface{}) {}

func (r *sqlRecorder) Trace(_ context.Context, _ time.Time, fc func() (string, int64), _ error) {
	sql, _ := fc()
	r.mu.Lock()
	r.statements = append(r.statements, sql)
	r.mu.Unlock()
}

func (r *sqlRecorder) last(t *testing.T) string {
	r.mu.Lock()
	defer r.mu.Unlock()
	require.NotEmpty(t, r.statements)
	return r.statements[len(r.statements)-1]
}

func dryRunRepository(t *testing.T) (UserRepository, *sqlRecorder) {
	rec := &sqlRecorder{}
	db, err := gorm.Open(
		postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: rec},
	)
	require.NoError(t, err)
	return NewRepository(db), rec
}

func TestRepository_Search(t *testing.T) {
	repo, rec := dryRunRepository(t)

	_, err := repo.Search(context.Background(), "50%_jo", 10)
	require.NoError(t, err)

	sql := rec.last(t)
	assert.Contains(t, sql, `is_active = true`)
	assert.Contains(t, sql, `name ILIKE '%50\%\_jo%' OR email ILIKE '%50\%\_jo%'`)
	assert.Contains(t, sql, `ORDER BY name`)
	assert.Contains(t, sql, `LIMIT 10`)
}

func TestRepository_DeactivateRevokesTokens(t *testing.T) {
	repo, rec := dryRunRepository(t)

	require.NoError(t, repo.Deactivate(context.Background(), "u1"))

	sql := rec.last(t)
	assert.Contains(t, sql, `"is_active"=false`)
	assert.Contains(t, sql, `"token_version"=token_version + 1`)
	assert.Contains(t, sql, `WHERE id = 'u1'`)
}

func TestRepository_IncrementTokenVersion(t *testing.T) {
	repo, rec := dryRunRepository(t)

	require.NoError(t, repo.IncrementTokenVersion(context.Background(), "u1"))

	sql := rec.last(t)
	assert.Contains(t, sql, `UPDATE "users" SET "token_version"=token_version + 1`)
	assert.Contains(t, sql, `WHERE id = 'u1'`)
}
