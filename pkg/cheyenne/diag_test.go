package cheyenne

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestDiag(t *testing.T) (*DiagServer, *httptest.Server) {
	t.Helper()
	client := NewClient(testConfig(t, 1))
	d := NewDiagServer("127.0.0.1:0", client, quietLogger())
	srv := httptest.NewServer(d.Handler())
	t.Cleanup(srv.Close)
	return d, srv
}

func TestDiagHealthz(t *testing.T) {
	_, srv := newTestDiag(t)

	resp, err := http.Get(srv.URL + "/healthz")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var body map[string]any
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, true, body["ok"])
}

func TestDiagState(t *testing.T) {
	_, srv := newTestDiag(t)

	resp, err := http.Get(srv.URL + "/state")
	require.NoError(t, err)
	defer resp.Body.Close()

	var update stateUpdate
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&update))
	assert.False(t, update.Connected)
	assert.NotNil(t, update.Stats.Messages)
}

func TestDiagMetrics(t *testing.T) {
	_, srv := newTestDiag(t)

	resp, err := http.Get(srv.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "cheyenne_connected")
	assert.Contains(t, string(body), "cheyenne_reconnects_total")
}

func TestDiagWebsocketStream(t *testing.T) {
	d, srv := newTestDiag(t)

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.NoError(t, err)
	if resp != nil {
		resp.Body.Close()
	}
	t.Cleanup(func() { conn.Close() })

	// subscribers get an initial snapshot immediately
	var update stateUpdate
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&update))
	assert.False(t, update.Connected)

	// and every transition afterwards
	d.HandleConnectionState(true)
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	require.NoError(t, conn.ReadJSON(&update))
	assert.True(t, update.Connected)
}
