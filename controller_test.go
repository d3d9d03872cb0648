package main

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"secure_messenger/internal/client"
	"secure_messenger/internal/config"
	"secure_messenger/internal/database"
	"secure_messenger/internal/hub"
)

type relayFixture struct {
	server *httptest.Server
	store  *database.Store
	hub    *hub.Hub
	cancel context.CancelFunc
}

func newRelayFixture(t *testing.T, origins ...string) *relayFixture {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	db, err := database.Open("file:" + t.Name() + "?mode=memory&cache=shared")
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close(db) })
	store := database.NewStore(db)

	recorder := database.NewRecorder(store, 0)
	go recorder.Run(ctx)

	registry := prometheus.NewRegistry()
	h := hub.NewHub(ctx, hub.Options{Registerer: registry, Activity: recorder})
	go h.Run()

	cfg := config.Default()
	cfg.AllowedOrigins = origins
	cfg.StaticDir = staticRoot(t)

	srv := httptest.NewServer(newRouter(NewController(ctx, h, store, origins), registry, cfg))
	t.Cleanup(srv.Close)
	return &relayFixture{server: srv, store: store, hub: h, cancel: cancel}
}

func (f *relayFixture) wsURL() string {
	return "ws" + strings.TrimPrefix(f.server.URL, "http") + "/ws"
}

func TestHealth(t *testing.T) {
	f := newRelayFixture(t)

	resp, err := http.Get(f.server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "application/json", resp.Header.Get("Content-Type"))
	var body HealthResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "ok", body.Status)
}

func TestRoomsReportsMembersAndActivity(t *testing.T) {
	f := newRelayFixture(t)
	ctx := context.Background()

	alice, err := client.Dial(ctx, client.Options{URL: f.wsURL(), Username: "alice"})
	require.NoError(t, err)
	defer alice.Close()

	require.Eventually(t, func() bool {
		return f.hub.Registry().Len() == 1
	}, 3*time.Second, 10*time.Millisecond)

	var body RoomsResponse
	require.Eventually(t, func() bool {
		resp, err := http.Get(f.server.URL + "/rooms")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		body = RoomsResponse{}
		if json.NewDecoder(resp.Body).Decode(&body) != nil {
			return false
		}
		return len(body.Rooms) == 1 && body.Rooms[0].Joins == 1
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, "Lobby", body.Lobby)
	assert.Equal(t, RoomSummary{Room: "Lobby", Members: 1, Joins: 1}, body.Rooms[0])
}

func TestRoomsRejectsPost(t *testing.T) {
	f := newRelayFixture(t)
	resp, err := http.Post(f.server.URL+"/rooms", "application/json", nil)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}

func TestMetricsEndpoint(t *testing.T) {
	f := newRelayFixture(t)
	resp, err := http.Get(f.server.URL + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestWebSocketOriginCheck(t *testing.T) {
	f := newRelayFixture(t, "https://chat.example")

	header := http.Header{"Origin": []string{"https://evil.example"}}
	_, resp, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", "https://chat.example")
	conn, _, err := websocket.DefaultDialer.Dial(f.wsURL(), header)
	require.NoError(t, err)
	_ = conn.Close()
}

func TestOriginChecker(t *testing.T) {
	req := func(origin string) *http.Request {
		r := httptest.NewRequest(http.MethodGet, "/ws", nil)
		if origin != "" {
			r.Header.Set("Origin", origin)
		}
		return r
	}

	open := originChecker(nil)
	assert.True(t, open(req("https://anything.example")))

	check := originChecker([]string{"https://Chat.example/"})
	assert.True(t, check(req("https://chat.example")))
	assert.True(t, check(req("")))
	assert.False(t, check(req("http://chat.example")))
	assert.False(t, check(req("::::")))

	assert.True(t, originChecker([]string{"*"})(req("https://x.example")))
}

func TestStaticFallback(t *testing.T) {
	f := newRelayFixture(t)
	resp, err := http.Get(f.server.URL + "/")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/html; charset=utf-8", resp.Header.Get("Content-Type"))
}

func TestWebSocketRefusedAfterShutdown(t *testing.T) {
	f := newRelayFixture(t)
	f.cancel()

	resp, err := http.Get(f.server.URL + "/ws")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, resp.StatusCode)
}
