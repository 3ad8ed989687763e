package wsapi

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
)

func dialTestServer(t *testing.T, srv *Server, token string) (*websocket.Conn, func()) {
	t.Helper()
	ts := httptest.NewServer(srv)
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	header := make(map[string][]string)
	if token != "" {
		header["X-Auth-Token"] = []string{token}
	}
	conn, resp, err := websocket.DefaultDialer.Dial(wsURL, header)
	if err != nil {
		ts.Close()
		t.Fatalf("dial failed: %v (resp=%v)", err, resp)
	}
	return conn, func() {
		conn.Close()
		ts.Close()
	}
}

func TestConnectionEstablishedOnUpgrade(t *testing.T) {
	srv := NewServer(Config{})
	conn, cleanup := dialTestServer(t, srv, "")
	defer cleanup()

	var msg map[string]any
	require.NoError(t, conn.ReadJSON(&msg))
	require.Equal(t, string(MsgConnectionEstablished), msg["type"])
	require.Equal(t, "local", msg["user_id"])
	require.Eventually(t, func() bool { return srv.Hub().ClientCount() == 1 }, time.Second, 10*time.Millisecond)
}

func TestPingPongRoundTrip(t *testing.T) {
	srv := NewServer(Config{})
	conn, cleanup := dialTestServer(t, srv, "")
	defer cleanup()

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "ping"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, "pong", reply["type"])
}

func TestUnknownMessageTypeRepliesWithError(t *testing.T) {
	srv := NewServer(Config{})
	conn, cleanup := dialTestServer(t, srv, "")
	defer cleanup()

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "bogus_type"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, string(MsgError), reply["type"])
}

func TestToolCallWithoutProxyConfiguredErrors(t *testing.T) {
	srv := NewServer(Config{})
	conn, cleanup := dialTestServer(t, srv, "")
	defer cleanup()

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "tool_call", "server": "s", "tool": "t"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, string(MsgError), reply["type"])
}

func TestChatMessageWithoutSpawnerErrors(t *testing.T) {
	srv := NewServer(Config{})
	conn, cleanup := dialTestServer(t, srv, "")
	defer cleanup()

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{
		"type": "chat_message", "conversation_id": "c1", "content": "hi",
	}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, string(MsgError), reply["type"])
}

func TestVoiceDisabledByDefault(t *testing.T) {
	srv := NewServer(Config{})
	conn, cleanup := dialTestServer(t, srv, "")
	defer cleanup()

	var welcome map[string]any
	require.NoError(t, conn.ReadJSON(&welcome))

	require.NoError(t, conn.WriteJSON(map[string]any{"type": "voice_audio"}))
	var reply map[string]any
	require.NoError(t, conn.ReadJSON(&reply))
	require.Equal(t, string(MsgError), reply["type"])
	require.Contains(t, reply["message"], "not configured")
}

func TestAuthRejectsMissingToken(t *testing.T) {
	srv := NewServer(Config{Auth: NewAuthenticator("test-signing-key")})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	wsURL := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	require.Equal(t, 401, resp.StatusCode)
}
