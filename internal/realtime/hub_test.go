package realtime

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"scanhub/internal/models"
)

func startHub(t *testing.T) (*Hub, string) {
	t.Helper()
	hub := NewHub(zerolog.Nop())
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Serve(conn, r.URL.Query().Get("user"))
	}))
	t.Cleanup(srv.Close)
	return hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func TestHub_PushReachesEveryConnectionOfUser(t *testing.T) {
	hub, url := startHub(t)

	a, _, err := websocket.DefaultDialer.Dial(url+"?user=u1", nil)
	require.NoError(t, err)
	defer a.Close()
	b, _, err := websocket.DefaultDialer.Dial(url+"?user=u1", nil)
	require.NoError(t, err)
	defer b.Close()
	other, _, err := websocket.DefaultDialer.Dial(url+"?user=u2", nil)
	require.NoError(t, err)
	defer other.Close()

	require.Eventually(t, func() bool { return hub.Count("u1") == 2 && hub.Count("u2") == 1 }, time.Second, 10*time.Millisecond)

	hub.Push("u1", models.Notification{
		ID:       "n1",
		Title:    "Scan ready",
		Type:     models.NotificationScanCompleted,
		Metadata: json.RawMessage(`{"scan_id":"s1"}`),
		UserID:   "u1",
	})

	for _, conn := range []*websocket.Conn{a, b} {
		var ev Event
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
		require.NoError(t, conn.ReadJSON(&ev))
		assert.Equal(t, "notification", ev.Type)
		assert.Equal(t, "n1", ev.Notification.ID)
		assert.Equal(t, "scan_completed", ev.Notification.Type)
		assert.JSONEq(t, `{"scan_id":"s1"}`, string(ev.Notification.Metadata))
	}

	require.NoError(t, other.SetReadDeadline(time.Now().Add(100*time.Millisecond)))
	_, _, err = other.ReadMessage()
	assert.Error(t, err)
}

func TestHub_UnregistersOnDisconnect(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?user=u1", nil)
	require.NoError(t, err)
	require.Eventually(t, func() bool { return hub.Count("u1") == 1 }, time.Second, 10*time.Millisecond)

	require.NoError(t, conn.Close())
	require.Eventually(t, func() bool { return hub.Count("u1") == 0 }, time.Second, 10*time.Millisecond)

	// pushing to a user without connections is a no-op
	hub.Push("u1", models.Notification{ID: "n2"})
}

func TestHub_CloseSendsCloseFrame(t *testing.T) {
	hub, url := startHub(t)

	conn, _, err := websocket.DefaultDialer.Dial(url+"?user=u1", nil)
	require.NoError(t, err)
	defer conn.Close()
	require.Eventually(t, func() bool { return hub.Count("u1") == 1 }, time.Second, 10*time.Millisecond)

	hub.Close()
	assert.Zero(t, hub.Count("u1"))

	// well under the ping period: the close frame is written immediately
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(time.Second)))
	_, _, err = conn.ReadMessage()
	var closeErr *websocket.CloseError
	assert.ErrorAs(t, err, &closeErr)

	// a late push after Close must not hit the closed channel
	hub.Push("u1", models.Notification{ID: "n3"})
}
