package project

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

func (r *sqlRecorder) all() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.statements...)
}

func dryRunRepository(t *testing.T) (ProjectRepository, *sqlRecorder) {
	rec := &sqlRecorder{}
	db, err := gorm.Open(
		postgres.New(postgres.Config{DSN: "host=localhost user=test dbname=test sslmode=disable"}),
		&gorm.Config{DryRun: true, DisableAutomaticPing: true, Logger: rec},
	)
	require.NoError(t, err)
	return NewRepository(db), rec
}

func TestRepository_ListVisibleIncludesSharedProjects(t *testing.T) {
	repo, rec := dryRunRepository(t)

	_, meta, err := repo.ListVisible(context.Background(), "u1", 2, 10)
	require.NoError(t, err)
	assert.Equal(t, 2, meta.CurrentPage)

	statements := rec.all()
	require.Len(t, statements, 2)

	shared := `owner_id = 'u1' OR id IN (SELECT project_id FROM project_accesses WHERE user_id = 'u1')`
	assert.Contains(t, statements[0], "count(*)")
	assert.Contains(t, statements[0], shared)
	assert.Contains(t, statements[1], shared)
	assert.Contains(t, statements[1], "ORDER BY updated_at DESC")
	assert.Contains(t, statements[1], "LIMIT 10 OFFSET 10")
}

func TestRepository_ListCollaborators(t *testing.T) {
	repo, rec := dryRunRepository(t)

	_, err := repo.ListCollaborators(context.Background(), "p1")
	require.NoError(t, err)

	statements := rec.all()
	require.NotEmpty(t, statements)
	sql := statements[len(statements)-1]
	assert.Contains(t, sql, "FROM project_accesses AS pa")
	assert.Contains(t, sql, "JOIN users u ON u.id = pa.user_id")
	assert.Contains(t, sql, "pa.project_id = 'p1'")
}

func TestRepository_ListFilesOrderedByPath(t *testing.T) {
	repo, rec := dryRunRepository(t)

	_, err := repo.ListFiles(context.Background(), "p1")
	require.NoError(t, err)

	statements := rec.all()
	require.NotEmpty(t, statements)
	sql := statements[len(statements)-1]
	assert.Contains(t, sql, "project_id = 'p1'")
	assert.Contains(t, sql, "ORDER BY path")
}
