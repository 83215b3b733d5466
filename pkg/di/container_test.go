package di

import (
	"context"
	"io"
	"testing"

	"whatsapp-agent/backend/pkg/config"
	"whatsapp-agent/backend/pkg/health"
	"whatsapp-agent/backend/pkg/logger"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testConfig(databaseURL string) *config.Config {
	cfg := config.Load()
	cfg.Database.URL = databaseURL
	cfg.Docs.StorePath = "docs"
	cfg.Docs.Dir = ""
	cfg.Redis.URL = ""
	cfg.Vault.Address = ""
	cfg.Pipeline.PromptsFile = ""
	cfg.Approval.SweepCron = ""
	return cfg
}

func newTestContainer(t *testing.T, cfg *config.Config) *Container {
	t.Helper()
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})
	c, err := New(context.Background(), cfg, log, Options{DocsOptions: &pebble.Options{FS: vfs.NewMem()}})
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() })
	return c
}

func TestNewWithMemoryStore(t *testing.T) {
	c := newTestContainer(t, testConfig(config.MemoryDatabaseURL))

	assert.True(t, c.Store.Available())
	assert.Nil(t, c.DB)
	assert.Nil(t, c.Redis)
	assert.NotNil(t, c.Pipeline)
	assert.NotNil(t, c.Dispatcher)
	assert.NotNil(t, c.Sweeper)
	assert.Nil(t, c.Indexer)

	c.Health.RunChecks(context.Background())
	status := c.Health.GetStatus()
	assert.Equal(t, health.StatusUp, status["database"].Status)
	assert.Equal(t, health.StatusDegraded, status["redis"].Status)
	assert.Equal(t, health.StatusDegraded, status["docstore"].Status)
}

func TestNewWithoutDatabase(t *testing.T) {
	c := newTestContainer(t, testConfig(""))

	assert.False(t, c.Store.Available())

	c.Health.RunChecks(context.Background())
	assert.Equal(t, health.StatusDegraded, c.Health.GetStatus()["database"].Status)
}

func TestNewRejectsInvalidSweepCron(t *testing.T) {
	cfg := testConfig(config.MemoryDatabaseURL)
	cfg.Approval.SweepCron = "every so often"
	log := logger.New(logger.Config{Level: "error", Output: io.Discard})

	_, err := New(context.Background(), cfg, log, Options{DocsOptions: &pebble.Options{FS: vfs.NewMem()}})
	assert.Error(t, err)
}
