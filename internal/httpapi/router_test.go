package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jkaflik/tbcover2mqtt/internal/cover"
	"github.com/jkaflik/tbcover2mqtt/internal/metrics"
	"github.com/pkg/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSnapshotter struct {
	records []cover.Record
	err     error
}

func (f fakeSnapshotter) Snapshot(_ context.Context, id string) ([]cover.Record, error) {
	if f.err != nil {
		return nil, f.err
	}
	if id == "" {
		return f.records, nil
	}
	for _, r := range f.records {
		if r.ID == id {
			return []cover.Record{r}, nil
		}
	}

	return nil, errors.Wrap(cover.ErrUnknownCover, id)
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))

	return rec
}

func TestRouter(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	m.Position("kitchen", 7000)

	router := NewRouter(fakeSnapshotter{records: []cover.Record{
		{ID: "kitchen", Position: 7000, Status: cover.StatusStopped},
		{ID: "office", Position: 0, Status: cover.StatusMoving},
	}}, reg)

	t.Run("health", func(t *testing.T) {
		rec := get(t, router, "/health")
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("list covers", func(t *testing.T) {
		rec := get(t, router, "/covers")
		require.Equal(t, http.StatusOK, rec.Code)

		var records []cover.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &records))
		assert.Len(t, records, 2)
	})

	t.Run("single cover", func(t *testing.T) {
		rec := get(t, router, "/covers/kitchen")
		require.Equal(t, http.StatusOK, rec.Code)

		var r cover.Record
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &r))
		assert.Equal(t, 7000, r.Position)
	})

	t.Run("unknown cover", func(t *testing.T) {
		rec := get(t, router, "/covers/attic")
		assert.Equal(t, http.StatusNotFound, rec.Code)
	})

	t.Run("metrics", func(t *testing.T) {
		rec := get(t, router, "/metrics")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.True(t, strings.Contains(rec.Body.String(), `tbcover_position{cover="kitchen"} 7000`))
	})
}

func TestRouterDaemonUnavailable(t *testing.T) {
	router := NewRouter(fakeSnapshotter{err: errors.New("daemon stopped")}, prometheus.NewRegistry())

	rec := get(t, router, "/covers")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
