package server

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	ws "github.com/coder/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dukerupert/conea/internal/bridge"
	"github.com/dukerupert/conea/internal/notification"
	"github.com/dukerupert/conea/internal/store"
	wshub "github.com/dukerupert/conea/internal/websocket"
)

type memStorage map[string]string

func (m memStorage) Get(key string) (string, error) {
	v, ok := m[key]
	if !ok {
		return "", store.ErrNotFound
	}
	return v, nil
}

func (m memStorage) Set(key, value string) error {
	m[key] = value
	return nil
}

func newTestServer(t *testing.T) (*httptest.Server, *wshub.Hub, *notification.Provider) {
	t.Helper()
	return newBridgedTestServer(t, nil)
}

// newBridgedTestServer feeds the service from local and serves the publish
// endpoint on top of it. A nil local gives a server with no bridge.
func newBridgedTestServer(t *testing.T, local *bridge.Local) (*httptest.Server, *wshub.Hub, *notification.Provider) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	opts := []notification.Option{notification.WithLogger(logger)}
	var ingress *Ingress
	if local != nil {
		opts = append(opts, notification.WithBridge(local, notification.DefaultChannel))
		ingress = &Ingress{Publisher: local, Channel: notification.DefaultChannel}
	}
	svc := notification.NewService(store.NewNotificationStore(memStorage{}), opts...)
	provider := notification.NewProvider(svc, logger)
	provider.Mount()
	hub := wshub.NewHub(logger)

	srv := New(provider, hub, nil, ingress, nil, logger)
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(func() {
		ts.Close()
		provider.Unmount()
		svc.Close()
	})
	return ts, hub, provider
}

func TestHealth(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body, _ := io.ReadAll(resp.Body)
	assert.JSONEq(t, `{"status":"ok"}`, string(body))
}

func TestPushRoutesAbsentWithoutVAPID(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Get(ts.URL + "/api/push/vapid-key")
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCreateBroadcastsChange(t *testing.T) {
	ts, hub, provider := newTestServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()

	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	body := `{"type":"order","title":"New Order","message":"#12345","category":"注文","priority":"high"}`
	resp, err := http.Post(ts.URL+"/api/notifications", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg struct {
		Type string                         `json:"type"`
		Data wshub.NotificationsChangedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, wshub.TypeNotificationsChanged, msg.Type)
	assert.Equal(t, provider.UnreadCount(), msg.Data.UnreadCount)
	assert.Equal(t, len(provider.Notifications()), msg.Data.Total)

	resp, err = http.Get(ts.URL + "/api/notifications?type=order")
	require.NoError(t, err)
	defer resp.Body.Close()
	var list struct {
		Notifications []struct {
			Title string `json:"title"`
		} `json:"notifications"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.NotEmpty(t, list.Notifications)
	assert.Equal(t, "New Order", list.Notifications[0].Title)
}

func TestBridgePublishRouteAbsentWithoutBridge(t *testing.T) {
	ts, _, _ := newTestServer(t)

	resp, err := http.Post(ts.URL+"/api/bridge/publish", "application/json", strings.NewReader(`{"type":"notification"}`))
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestBridgePublishBroadcastsChange(t *testing.T) {
	ts, hub, provider := newBridgedTestServer(t, bridge.NewLocal())

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(ts.URL, "http")+"/ws", nil)
	require.NoError(t, err)
	defer conn.CloseNow()
	require.Eventually(t, func() bool { return hub.ClientCount() == 1 }, time.Second, 5*time.Millisecond)

	body := `{"type":"notification","data":{"id":"up-1","type":"inventory","title":"Low stock","category":"在庫","priority":"high"}}`
	resp, err := http.Post(ts.URL+"/api/bridge/publish", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	resp.Body.Close()
	require.Equal(t, http.StatusAccepted, resp.StatusCode)

	_, data, err := conn.Read(ctx)
	require.NoError(t, err)
	var msg struct {
		Type string                         `json:"type"`
		Data wshub.NotificationsChangedData `json:"data"`
	}
	require.NoError(t, json.Unmarshal(data, &msg))
	assert.Equal(t, wshub.TypeNotificationsChanged, msg.Type)
	assert.Equal(t, 1, msg.Data.UnreadCount)

	list := provider.Notifications()
	require.Len(t, list, 1)
	assert.Equal(t, "up-1", list[0].ID)
}
