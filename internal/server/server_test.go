package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/quantumfolio/internal/database"
	"github.com/aristath/quantumfolio/internal/scheduler"
	testingpkg "github.com/aristath/quantumfolio/internal/testing"
)

type pingModule struct{}

func (pingModule) RegisterRoutes(r chi.Router) {
	r.Get("/ping", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("pong"))
	})
}

type fakeJobs struct {
	ran []string
	err error
}

func (f *fakeJobs) Jobs() []scheduler.JobStatus {
	return []scheduler.JobStatus{{Name: "price_sync", Schedule: "0 30 22 * * MON-FRI"}}
}

func (f *fakeJobs) RunByName(name string) error {
	if name != "price_sync" {
		return fmt.Errorf("%w: %s", scheduler.ErrJobNotFound, name)
	}
	f.ran = append(f.ran, name)
	return f.err
}

func newTestServer(t *testing.T, jobs JobRunner) *Server {
	t.Helper()
	history := testingpkg.NewTestDB(t, database.NameHistory)
	runs := testingpkg.NewTestDB(t, database.NameRuns)

	return New(Config{
		Log:       zerolog.Nop(),
		Port:      0,
		DevMode:   true,
		DataDir:   t.TempDir(),
		Databases: []*database.DB{history, runs},
		Jobs:      jobs,
		Modules:   []RouteRegistrar{pingModule{}},
	})
}

func get(t *testing.T, s *Server, method, path string) (*httptest.ResponseRecorder, []byte) {
	t.Helper()
	w := httptest.NewRecorder()
	s.Handler().ServeHTTP(w, httptest.NewRequest(method, path, nil))
	return w, w.Body.Bytes()
}

func TestServer_Health(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := get(t, s, "GET", "/health")
	require.Equal(t, http.StatusOK, w.Code)

	var response map[string]interface{}
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, "healthy", response["status"])
	assert.Equal(t, "quantumfolio", response["service"])
	assert.Equal(t, map[string]interface{}{"history": "ok", "runs": "ok"}, response["databases"])
}

func TestServer_HealthDegradedWhenDatabaseDown(t *testing.T) {
	history := testingpkg.NewTestDB(t, database.NameHistory)
	runs := testingpkg.NewTestDB(t, database.NameRuns)
	s := New(Config{
		Log:       zerolog.Nop(),
		DevMode:   true,
		DataDir:   t.TempDir(),
		Databases: []*database.DB{history, runs},
	})
	require.NoError(t, runs.Close())

	w, body := get(t, s, "GET", "/health")
	require.Equal(t, http.StatusServiceUnavailable, w.Code)

	var response HealthResponse
	require.NoError(t, json.Unmarshal(body, &response))
	assert.Equal(t, "degraded", response.Status)
	assert.Equal(t, "ok", response.Databases["history"])
	assert.Equal(t, "unreachable", response.Databases["runs"])
}

func TestServer_MountsModulesUnderAPI(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := get(t, s, "GET", "/api/ping")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "pong", string(body))

	w, _ = get(t, s, "GET", "/ping")
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestSystemHandlers_DatabaseStats(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := get(t, s, "GET", "/api/system/database/stats")
	require.Equal(t, http.StatusOK, w.Code)

	var response DatabaseStatsResponse
	require.NoError(t, json.Unmarshal(body, &response))
	require.Len(t, response.Databases, 2)
	assert.Equal(t, database.NameHistory, response.Databases[0].Name)
	assert.Equal(t, database.NameRuns, response.Databases[1].Name)
	for _, db := range response.Databases {
		assert.True(t, db.Healthy)
		assert.Greater(t, db.PageCount, int64(0))
	}
	assert.NotEmpty(t, response.LastChecked)
}

func TestSystemHandlers_StatusAndDisk(t *testing.T) {
	s := newTestServer(t, nil)

	w, body := get(t, s, "GET", "/api/system/status")
	require.Equal(t, http.StatusOK, w.Code)
	var status SystemStatusResponse
	require.NoError(t, json.Unmarshal(body, &status))
	assert.Equal(t, "healthy", status.Status)
	assert.Greater(t, status.Goroutines, 0)

	w, body = get(t, s, "GET", "/api/system/disk")
	require.Equal(t, http.StatusOK, w.Code)
	var usage DiskUsageResponse
	require.NoError(t, json.Unmarshal(body, &usage))
	assert.GreaterOrEqual(t, usage.DataDirMB, 0.0)
}

func TestSystemHandlers_Jobs(t *testing.T) {
	t.Run("without scheduler", func(t *testing.T) {
		s := newTestServer(t, nil)

		w, body := get(t, s, "GET", "/api/system/jobs")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.JSONEq(t, "[]", string(body))

		w, _ = get(t, s, "POST", "/api/system/jobs/price_sync")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	})

	t.Run("with scheduler", func(t *testing.T) {
		jobs := &fakeJobs{}
		s := newTestServer(t, jobs)

		w, body := get(t, s, "GET", "/api/system/jobs")
		require.Equal(t, http.StatusOK, w.Code)
		var listed []scheduler.JobStatus
		require.NoError(t, json.Unmarshal(body, &listed))
		require.Len(t, listed, 1)
		assert.Equal(t, "price_sync", listed[0].Name)

		w, _ = get(t, s, "POST", "/api/system/jobs/price_sync")
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, []string{"price_sync"}, jobs.ran)

		w, _ = get(t, s, "POST", "/api/system/jobs/unknown")
		assert.Equal(t, http.StatusNotFound, w.Code)

		jobs.err = errors.New("provider down")
		w, body = get(t, s, "POST", "/api/system/jobs/price_sync")
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.Contains(t, string(body), "provider down")
	})
}
