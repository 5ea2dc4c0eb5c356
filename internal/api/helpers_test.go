package api

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/phrazzld/scry-sync/internal/cache"
	"github.com/phrazzld/scry-sync/internal/mocks"
	"github.com/phrazzld/scry-sync/internal/platform/clock"
	"github.com/phrazzld/scry-sync/internal/service"
	"github.com/phrazzld/scry-sync/internal/syncer"
	"github.com/stretchr/testify/require"
)

var testNow = time.Date(2025, 10, 6, 8, 30, 0, 0, time.UTC)

type testAPI struct {
	handler http.Handler
	svc     service.StudyService
	remote  *mocks.RemoteStore
	clock   *clock.Fake
	net     *clock.Switch
	user    uuid.UUID
}

func newTestAPI(t *testing.T, online bool) *testAPI {
	t.Helper()
	ctx := context.Background()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))

	a := &testAPI{
		clock: clock.NewFake(testNow),
		net:   clock.NewSwitch(online),
		user:  uuid.New(),
	}
	a.remote = mocks.NewRemoteStore(a.clock)

	c, err := cache.Open(ctx, cache.NewMemoryBackend(), a.clock, log)
	require.NoError(t, err)
	engine, err := syncer.New(ctx, syncer.DefaultConfig(), syncer.Deps{
		Cache:        c,
		Remote:       a.remote,
		Clock:        a.clock,
		Connectivity: a.net,
		Logger:       log,
	})
	require.NoError(t, err)
	t.Cleanup(engine.Stop)

	a.svc, err = service.NewStudyService(service.Deps{Cache: c, Engine: engine, Clock: a.clock, Logger: log})
	require.NoError(t, err)
	a.handler = NewRouter(a.svc, a.clock, log)
	return a
}

func (a *testAPI) userPath(suffix string) string {
	return "/api/users/" + a.user.String() + suffix
}

// do sends a request with body encoded as JSON (strings are sent verbatim)
// and returns the recorder.
func (a *testAPI) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	switch b := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(b)
	default:
		data, err := json.Marshal(b)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	a.handler.ServeHTTP(w, req)
	return w
}

func decodeBody[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}
