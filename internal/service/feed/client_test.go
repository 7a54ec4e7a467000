package feed

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"VitalWatch/internal/domain/models"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFeedServer(t *testing.T, frames ...string) (*httptest.Server, *int32) {
	t.Helper()
	var conns int32
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		n := atomic.AddInt32(&conns, 1)
		if int(n) <= len(frames) {
			_ = conn.WriteMessage(websocket.TextMessage, []byte(frames[n-1]))
		}
		// the first connection drops right away, later ones stay open
		if n == 1 {
			return
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv, &conns
}

func wsURL(srv *httptest.Server) string {
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func next(t *testing.T, ch <-chan models.FeedEvent) models.FeedEvent {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for feed event")
		return models.FeedEvent{}
	}
}

func TestClient_ReadReconnectClose(t *testing.T) {
	srv, conns := newFeedServer(t,
		"1,80,HeartRate,1000\nnot a line\n1,triggered,Alert,1001\n",
		"2,95%,Saturation,2000",
	)
	c := NewClient(wsURL(srv), 10*time.Millisecond, time.Second, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	assert.True(t, c.IsConnected())
	events, errs := c.Read(ctx)

	assert.Equal(t, models.FeedEvent{SubjectID: 1, Label: "HeartRate", Value: 80, Timestamp: 1000}, next(t, events))
	assert.Equal(t, models.AlertTriggered, next(t, events).AlertState)

	select {
	case err := <-errs:
		require.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("expected read error after server dropped the connection")
	}
	assert.False(t, c.IsConnected())

	require.NoError(t, c.Reconnect(ctx))
	assert.Equal(t, models.FeedEvent{SubjectID: 2, Label: "Saturation", Value: 95, Timestamp: 2000}, next(t, events))
	assert.Equal(t, int32(2), atomic.LoadInt32(conns))

	require.NoError(t, c.Close())
	assert.False(t, c.IsConnected())
	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-events:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 5*time.Millisecond)
}

func TestClient_ConnectFailure(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/feed", time.Millisecond, time.Second, nil)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.Error(t, c.Connect(ctx))
	assert.False(t, c.IsConnected())
}

func TestClient_ReconnectStopsOnClose(t *testing.T) {
	c := NewClient("ws://127.0.0.1:1/feed", 5*time.Millisecond, time.Second, nil)
	done := make(chan error, 1)
	go func() { done <- c.Reconnect(context.Background()) }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Close())

	select {
	case err := <-done:
		assert.Error(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("reconnect did not stop after close")
	}
}
