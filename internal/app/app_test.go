package app

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yungbote/samerge/internal/merge"
	apperrors "github.com/yungbote/samerge/internal/pkg/errors"
	"github.com/yungbote/samerge/internal/platform/filelock"
	"github.com/yungbote/samerge/internal/platform/logger"
)

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := LoadConfig(NewViper())
	require.NoError(t, err)
	assert.Equal(t, "merge.db", cfg.Database)
	assert.Equal(t, merge.DefaultMaxSize, cfg.Merge.MaxSize)
	assert.Equal(t, merge.DefaultMinSize, cfg.Merge.MinSize)
	assert.Equal(t, 72*time.Hour, cfg.Merge.MaxAge)
	assert.Equal(t, merge.DefaultMaxProjects, cfg.Merge.MaxProjects)
	assert.Equal(t, merge.Phases{Discover: true, Submit: true, Cleanup: true}, cfg.Merge.Phases.Normalize())
	assert.Equal(t, "jobsub_submit", cfg.JobsubBinary)
	assert.Equal(t, 60*time.Second, cfg.SAM.Timeout)
}

func TestLoadConfigFileAndEnvironment(t *testing.T) {
	path := filepath.Join(t.TempDir(), "samerge.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
database: /data/merge/merge.db
max_age: 2d
max_count: 25
phase2: true
samweb:
  url: https://samweb.example.org/sam/uboone/api
  token_file: /tmp/bt_u1000
`), 0o644))
	t.Setenv("SAMERGE_MAX_PROJECTS", "7")
	t.Setenv("SAMERGE_SAMWEB_USER", "uboonepro")

	v := NewViper()
	require.NoError(t, ReadConfigFile(v, path))
	cfg, err := LoadConfig(v)
	require.NoError(t, err)

	assert.Equal(t, "/data/merge/merge.db", cfg.Database)
	assert.Equal(t, 48*time.Hour, cfg.Merge.MaxAge)
	assert.Equal(t, 25, cfg.Merge.MaxCount)
	assert.Equal(t, 7, cfg.Merge.MaxProjects)
	assert.Equal(t, merge.Phases{Submit: true}, cfg.Merge.Phases)
	assert.Equal(t, "https://samweb.example.org/sam/uboone/api", cfg.SAM.BaseURL)
	assert.Equal(t, "/tmp/bt_u1000", cfg.SAM.TokenFile)
	assert.Equal(t, "uboonepro", cfg.SAM.User)
}

func TestLoadConfigRejectsBadValues(t *testing.T) {
	v := NewViper()
	v.Set(KeyMaxAge, "soon")
	_, err := LoadConfig(v)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	v = NewViper()
	v.Set(KeyMinSize, 5e9)
	_, err = LoadConfig(v)
	assert.ErrorIs(t, err, apperrors.ErrInvalidArgument)

	assert.ErrorIs(t, ReadConfigFile(NewViper(), filepath.Join(t.TempDir(), "missing.yaml")), apperrors.ErrConfig)
}

func testConfig(t *testing.T) Config {
	t.Helper()
	v := NewViper()
	v.Set(KeyDatabase, filepath.Join(t.TempDir(), "merge.db"))
	v.Set(KeyPhase3, true)
	cfg, err := LoadConfig(v)
	require.NoError(t, err)
	return cfg
}

func TestNewRefusesLockedDatabase(t *testing.T) {
	cfg := testConfig(t)
	held, err := filelock.TryLock(cfg.Database + ".lock")
	require.NoError(t, err)
	defer held.Unlock()

	_, err = New(cfg, logger.NewNop())
	assert.ErrorIs(t, err, apperrors.ErrLocked)
}

func TestRunCleanupPhaseWritesMetrics(t *testing.T) {
	cfg := testConfig(t)
	cfg.MetricsFile = filepath.Join(t.TempDir(), "samerge.prom")

	a, err := New(cfg, logger.NewNop())
	require.NoError(t, err)
	defer a.Close()

	rep, err := a.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, rep.Discovered)

	b, err := os.ReadFile(cfg.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(b), "samerge_last_run_timestamp_seconds")
	assert.Contains(t, string(b), `samerge_items{status="ready"} 0`)

	sum, err := a.Engine.Summary(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(0), sum.Groups)
}
