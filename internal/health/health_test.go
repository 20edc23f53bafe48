package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	redisv9 "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/db"
	"github.com/Kocoro-lab/brandcast/go/orchestrator/internal/vectordb"
)

func fixed(name string, critical bool, status CheckStatus) Checker {
	return NewCustomHealthChecker(name, critical, time.Second, func(context.Context) CheckResult {
		return CheckResult{Status: status}
	})
}

func TestOverallStatus(t *testing.T) {
	cases := []struct {
		name   string
		checks []Checker
		status CheckStatus
		ready  bool
	}{
		{"none", nil, StatusUnknown, true},
		{"all healthy", []Checker{fixed("a", true, StatusHealthy), fixed("b", false, StatusHealthy)}, StatusHealthy, true},
		{"critical down", []Checker{fixed("a", true, StatusUnhealthy), fixed("b", false, StatusHealthy)}, StatusUnhealthy, false},
		{"optional down", []Checker{fixed("a", true, StatusHealthy), fixed("b", false, StatusUnhealthy)}, StatusDegraded, true},
		{"slow", []Checker{fixed("a", true, StatusDegraded)}, StatusDegraded, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			m := NewManager(Config{}, zaptest.NewLogger(t))
			for _, c := range tc.checks {
				require.NoError(t, m.RegisterChecker(c))
			}
			detailed := m.GetDetailedHealth(context.Background())
			assert.Equal(t, tc.status, detailed.Overall.Status)
			assert.Equal(t, tc.ready, detailed.Overall.Ready)
			assert.True(t, detailed.Overall.Live)
			assert.Equal(t, len(tc.checks), detailed.Summary.Total)
		})
	}
}

func TestRegisterCheckerOverrides(t *testing.T) {
	m := NewManager(Config{Checks: map[string]CheckConfig{
		"vector_store": {Enabled: true, Critical: true},
		"event_stream": {Enabled: false},
	}}, zaptest.NewLogger(t))

	require.NoError(t, m.RegisterChecker(fixed("vector_store", false, StatusUnhealthy)))
	require.NoError(t, m.RegisterChecker(fixed("event_stream", false, StatusUnhealthy)))
	require.Error(t, m.RegisterChecker(fixed("vector_store", false, StatusHealthy)))

	detailed := m.GetDetailedHealth(context.Background())
	require.Len(t, detailed.Components, 1)
	assert.True(t, detailed.Components["vector_store"].Critical)
	assert.False(t, detailed.Overall.Ready)
	assert.Len(t, m.GetLastResults(), 1)
}

func TestDependencyCheckers(t *testing.T) {
	ctx := context.Background()
	logger := zaptest.NewLogger(t)

	store, err := db.NewClient(&db.Config{Driver: db.DriverSQLite, Path: filepath.Join(t.TempDir(), "h.db")}, logger)
	require.NoError(t, err)
	defer store.Close()
	res := NewDatabaseChecker(store).Check(ctx)
	assert.NotEqual(t, StatusUnhealthy, res.Status, res.Error)
	assert.Contains(t, res.Details, "open_connections")

	mr := miniredis.RunT(t)
	rdb := redisv9.NewClient(&redisv9.Options{Addr: mr.Addr()})
	defer rdb.Close()
	assert.NotEqual(t, StatusUnhealthy, NewStreamChecker(rdb).Check(ctx).Status)
	mr.Close()
	down := NewStreamChecker(rdb).Check(ctx)
	assert.Equal(t, StatusUnhealthy, down.Status)
	assert.NotEmpty(t, down.Error)

	qdrant := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"result":{"collections":[]},"status":"ok"}`))
	}))
	defer qdrant.Close()
	vc := vectordb.NewWithBaseURL(qdrant.URL, vectordb.Config{}, logger)
	assert.NotEqual(t, StatusUnhealthy, NewVectorStoreChecker(vc).Check(ctx).Status)
}

func TestHTTPHandler(t *testing.T) {
	m := NewManager(Config{}, zaptest.NewLogger(t))
	require.NoError(t, m.RegisterChecker(fixed("database", true, StatusHealthy)))
	failing := NewCustomHealthChecker("temporal", true, time.Second, func(context.Context) CheckResult {
		return CheckResult{Status: StatusUnhealthy, Error: errors.New("connection refused").Error()}
	})
	require.NoError(t, m.RegisterChecker(failing))

	mux := http.NewServeMux()
	NewHTTPHandler(m, zaptest.NewLogger(t)).RegisterRoutes(mux)

	get := func(path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	assert.Equal(t, http.StatusOK, get("/health/live").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health/ready").Code)
	assert.Equal(t, http.StatusServiceUnavailable, get("/health").Code)

	rec := get("/health/detailed?cached=true")
	var body struct {
		Overall struct {
			Status string `json:"status"`
		} `json:"overall"`
		Components map[string]struct {
			Status string `json:"status"`
			Error  string `json:"error"`
		} `json:"components"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "unhealthy", body.Overall.Status)
	assert.Equal(t, "connection refused", body.Components["temporal"].Error)
	assert.Equal(t, "healthy", body.Components["database"].Status)
}
