package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/config"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/health"
)

func loadConfig(t *testing.T, extra string) *config.Config {
	t.Helper()
	mr := miniredis.RunT(t)
	dir := t.TempDir()
	body := fmt.Sprintf(`
llm:
  provider: openai
  api_key: sk-test
database:
  driver: sqlite3
  path: %s
redis:
  addr: %s
embeddings:
  base_url: http://127.0.0.1:1
auth:
  skip: true
%s`, filepath.Join(dir, "app.db"), mr.Addr(), extra)
	path := filepath.Join(dir, "campaign.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))

	cfg, err := config.Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())
	return cfg
}

func TestNewBuildsStack(t *testing.T) {
	cfg := loadConfig(t, "")
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()

	assert.NotNil(t, a.Stream)
	assert.NotNil(t, a.Cache)
	assert.Nil(t, a.Publisher)
	assert.NotEmpty(t, a.Calendars.TemplateTypes())
	assert.NotNil(t, a.Activities())
	require.NoError(t, a.ReloadTemplates())

	m := health.NewManager(health.Config{}, zaptest.NewLogger(t))
	require.NoError(t, a.RegisterHealthChecks(m))
	detailed := m.GetDetailedHealth(context.Background())
	assert.Len(t, detailed.Components, 4)
	assert.Equal(t, health.StatusHealthy, detailed.Components["database"].Status)
	assert.Equal(t, health.StatusHealthy, detailed.Components["event_stream"].Status)

	require.NoError(t, a.Close())
}

func TestNewWithPublisher(t *testing.T) {
	cfg := loadConfig(t, `
telegram:
  enabled: true
  bot_token: "123:abc"
  chat_id: "@brand"
`)
	a, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.NoError(t, err)
	defer a.Close()
	assert.NotNil(t, a.Publisher)
}

func TestNewFailsOnUnknownProvider(t *testing.T) {
	cfg := loadConfig(t, "")
	cfg.LLM.Provider = "mystery"

	_, err := New(context.Background(), cfg, zaptest.NewLogger(t))
	require.ErrorContains(t, err, "mystery")
}
