package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/connectbridge/internal/events"
)

func newTestServer(t *testing.T) (*Server, <-chan events.RemoteCommand) {
	t.Helper()
	bus := events.NewBus()
	t.Cleanup(bus.Close)
	cmds, unsub := events.Subscribe[events.RemoteCommand](bus, 8)
	t.Cleanup(unsub)
	return New("127.0.0.1:0", bus, nil, nil), cmds
}

func postDispatch(t *testing.T, handler http.Handler, body any) *httptest.ResponseRecorder {
	t.Helper()
	payload, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, "/dispatch", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func TestDispatchPublishesRemoteCommand(t *testing.T) {
	srv, cmds := newTestServer(t)

	rec := postDispatch(t, srv.Handler(), map[string]any{
		"deviceId": "aa:bb:cc:dd:ee:ff",
		"cmd":      "volume",
		"value":    63,
	})
	require.Equal(t, http.StatusAccepted, rec.Code)

	var resp dispatchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.NotEmpty(t, resp.DispatchID)

	select {
	case cmd := <-cmds:
		assert.Equal(t, "aa:bb:cc:dd:ee:ff", cmd.DeviceID)
		assert.Equal(t, events.CommandVolume, cmd.Kind)
		assert.Equal(t, 63, cmd.Value)
		assert.Equal(t, events.OriginUser, cmd.Origin)
		assert.Equal(t, resp.DispatchID, cmd.DispatchID)
		assert.False(t, cmd.ReceivedAt.IsZero())
	case <-time.After(2 * time.Second):
		t.Fatal("no command published")
	}
}

func TestDispatchAcceptsAllCommandKinds(t *testing.T) {
	srv, cmds := newTestServer(t)
	handler := srv.Handler()

	for _, cmd := range []string{"start", "stop", "change", "volume"} {
		rec := postDispatch(t, handler, map[string]any{"deviceId": "aa:bb", "cmd": cmd})
		require.Equal(t, http.StatusAccepted, rec.Code, "cmd %q", cmd)
	}

	for range 4 {
		select {
		case <-cmds:
		case <-time.After(2 * time.Second):
			t.Fatal("missing published command")
		}
	}
}

func TestDispatchRejectsUnknownCommand(t *testing.T) {
	srv, cmds := newTestServer(t)

	rec := postDispatch(t, srv.Handler(), map[string]any{"deviceId": "aa:bb", "cmd": "explode"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	select {
	case cmd := <-cmds:
		t.Fatalf("unexpected command published: %+v", cmd)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestDispatchRejectsMissingDeviceID(t *testing.T) {
	srv, _ := newTestServer(t)

	rec := postDispatch(t, srv.Handler(), map[string]any{"cmd": "start"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestDispatchRejectsGet(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/dispatch", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestHealthz(t *testing.T) {
	srv, _ := newTestServer(t)

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
}

func TestMetricsEndpointOnlyWhenConfigured(t *testing.T) {
	bus := events.NewBus()
	t.Cleanup(bus.Close)

	stub := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("metrics"))
	})
	srv := New("127.0.0.1:0", bus, stub, nil)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	bare := New("127.0.0.1:0", bus, nil, nil)
	rec = httptest.NewRecorder()
	bare.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
