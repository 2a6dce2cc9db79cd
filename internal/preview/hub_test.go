package preview

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"github.com/hanko-field/cms/internal/platform/metrics"
)

const testOrigin = "https://admin.example.org"

func dial(t *testing.T, server *httptest.Server, session string, role Role, origin string) (*websocket.Conn, *http.Response, error) {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/?session=" + session + "&role=" + string(role)
	header := http.Header{}
	if origin != "" {
		header.Set("Origin", origin)
	}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if err == nil {
		t.Cleanup(func() { _ = conn.Close() })
	}
	return conn, resp, err
}

func waitConnected(t *testing.T, hub *Hub, session string, roles ...Role) {
	t.Helper()
	require.Eventually(t, func() bool {
		for _, role := range roles {
			if !hub.Connected(session, role) {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func readMessage(t *testing.T, conn *websocket.Conn) Message {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, payload, err := conn.ReadMessage()
	require.NoError(t, err)
	msg, err := Decode(payload)
	require.NoError(t, err)
	return msg
}

func TestHubRelaysBetweenSurfaces(t *testing.T) {
	m := metrics.New()
	hub := NewHub(WithAllowedOrigins(testOrigin), WithHubMetrics(m))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	editor, _, err := dial(t, server, "s1", RoleEditor, testOrigin)
	require.NoError(t, err)
	preview, _, err := dial(t, server, "s1", RolePreview, testOrigin)
	require.NoError(t, err)
	waitConnected(t, hub, "s1", RoleEditor, RolePreview)

	require.NoError(t, editor.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMS_PREVIEW_UPDATE","key":"home.hero.title","value":"Hi"}`)))
	require.Equal(t, PreviewUpdate{Key: "home.hero.title", Value: "Hi"}, readMessage(t, preview))

	require.NoError(t, preview.WriteMessage(websocket.TextMessage, []byte(`{"v":1,"type":"CMS_EDIT_REQUEST","key":"home.hero.title"}`)))
	require.Equal(t, EditRequest{Key: "home.hero.title"}, readMessage(t, editor))

	require.Equal(t, float64(1), testutil.ToFloat64(m.PreviewMessages.WithLabelValues(TypePreviewUpdate, "relayed")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.PreviewConnections.WithLabelValues(string(RoleEditor))))
}

func TestHubDropsWrongDirectionAndUnknownTypes(t *testing.T) {
	m := metrics.New()
	hub := NewHub(WithAllowedOrigins(testOrigin), WithHubMetrics(m))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	editor, _, err := dial(t, server, "s2", RoleEditor, testOrigin)
	require.NoError(t, err)
	preview, _, err := dial(t, server, "s2", RolePreview, testOrigin)
	require.NoError(t, err)
	waitConnected(t, hub, "s2", RoleEditor, RolePreview)

	require.NoError(t, editor.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMS_EDIT_REQUEST","key":"a.b"}`)))
	require.NoError(t, editor.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMS_FUTURE","key":"a.b"}`)))
	require.NoError(t, editor.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMS_PREVIEW_UPDATE","key":"a.b","value":"ok"}`)))

	// Only the valid update arrives; the earlier frames were dropped in order.
	require.Equal(t, PreviewUpdate{Key: "a.b", Value: "ok"}, readMessage(t, preview))
	require.Equal(t, float64(1), testutil.ToFloat64(m.PreviewMessages.WithLabelValues(TypeEditRequest, "dropped")))
	require.Equal(t, float64(1), testutil.ToFloat64(m.PreviewMessages.WithLabelValues("invalid", "dropped")))
}

func TestHubDropsWhenPeerMissing(t *testing.T) {
	m := metrics.New()
	hub := NewHub(WithAllowedOrigins(testOrigin), WithHubMetrics(m))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	editor, _, err := dial(t, server, "s3", RoleEditor, testOrigin)
	require.NoError(t, err)
	waitConnected(t, hub, "s3", RoleEditor)

	require.NoError(t, editor.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMS_PREVIEW_UPDATE","key":"a.b","value":"lost"}`)))
	require.Eventually(t, func() bool {
		return testutil.ToFloat64(m.PreviewMessages.WithLabelValues(TypePreviewUpdate, "dropped")) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestHubRejectsForeignOrigin(t *testing.T) {
	hub := NewHub(WithAllowedOrigins(testOrigin))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)

	_, resp, err := dial(t, server, "s4", RoleEditor, "https://evil.example.com")
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, http.StatusForbidden, resp.StatusCode)
}

func TestHubRequiresSessionAndRole(t *testing.T) {
	hub := NewHub()
	rec := httptest.NewRecorder()
	hub.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/?session=s5&role=viewer", nil))
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHubReplacesConnectionForSameRole(t *testing.T) {
	hub := NewHub(WithAllowedOrigins(testOrigin))
	server := httptest.NewServer(hub)
	t.Cleanup(server.Close)
	t.Cleanup(hub.Close)

	first, _, err := dial(t, server, "s6", RolePreview, testOrigin)
	require.NoError(t, err)
	waitConnected(t, hub, "s6", RolePreview)
	second, _, err := dial(t, server, "s6", RolePreview, testOrigin)
	require.NoError(t, err)
	editor, _, err := dial(t, server, "s6", RoleEditor, testOrigin)
	require.NoError(t, err)
	waitConnected(t, hub, "s6", RoleEditor)

	require.NoError(t, first.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, _, err = first.ReadMessage()
	require.Error(t, err, "replaced connection is closed")

	require.NoError(t, editor.WriteMessage(websocket.TextMessage, []byte(`{"type":"CMS_PREVIEW_UPDATE","key":"a.b","value":"v"}`)))
	require.Equal(t, PreviewUpdate{Key: "a.b", Value: "v"}, readMessage(t, second))
}
