package websocket

import (
	"easy-chat/domain"
	"easy-chat/observability"
	"easy-chat/runtime"
	"easy-chat/services"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"
	"time"

	ws "github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
)

type envelope struct {
	Kind     domain.Kind          `json:"kind"`
	Content  string               `json:"content"`
	Username string               `json:"username"`
	Message  string               `json:"message"`
	Users    []domain.Participant `json:"users"`
}

func newServer(t *testing.T) (*httptest.Server, *runtime.Registry) {
	log := logs.GetLoggerFromLevel(slog.LevelDebug)
	monitoring := observability.NewMonitoringManager(log)
	registry := runtime.NewRegistry(log, domain.DefaultHistoryLimit)
	broadcaster := runtime.NewBroadcaster(log, registry, monitoring, time.Second)
	service := services.NewChatService(log, registry, broadcaster, nil, monitoring,
		domain.DefaultBackfillSize, domain.MaxContentLength)
	server := httptest.NewServer(NewHandler(log, service, nil, 0))
	t.Cleanup(server.Close)
	return server, registry
}

func dial(t *testing.T, server *httptest.Server, username string) *ws.Conn {
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/?" + url.Values{usernameParam: {username}}.Encode()
	socket, _, err := ws.DefaultDialer.Dial(u, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = socket.Close() })
	return socket
}

func read(t *testing.T, socket *ws.Conn) envelope {
	require.NoError(t, socket.SetReadDeadline(time.Now().Add(2*time.Second)))
	var e envelope
	require.NoError(t, socket.ReadJSON(&e))
	return e
}

// readUntil skips frames until one of the given kind arrives.
func readUntil(t *testing.T, socket *ws.Conn, kind domain.Kind) envelope {
	for {
		e := read(t, socket)
		if e.Kind == kind {
			return e
		}
	}
}

func expectClose(t *testing.T, socket *ws.Conn, code int, text string) {
	req := require.New(t)
	req.NoError(socket.SetReadDeadline(time.Now().Add(2 * time.Second)))
	_, _, err := socket.ReadMessage()
	var closeErr *ws.CloseError
	req.ErrorAs(err, &closeErr)
	req.Equal(code, closeErr.Code)
	req.Equal(text, closeErr.Text)
}

func TestHandler_Message_Roundtrip(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t)

	// Given A is connected and has its roster
	a := dial(t, server, "A")
	roster := readUntil(t, a, domain.KindUserList)
	req.Len(roster.Users, 1)
	req.Equal("A", roster.Users[0].Username)

	// When A says Hi
	req.NoError(a.WriteJSON(map[string]string{"kind": "message", "content": "Hi <b>"}))

	// Then A receives its own escaped message
	msg := readUntil(t, a, domain.KindMessage)
	req.Equal("A", msg.Username)
	req.Equal("Hi &lt;b&gt;", msg.Content)
}

func TestHandler_Duplicate_Name_Closed_With_Policy_Violation(t *testing.T) {
	req := require.New(t)
	server, registry := newServer(t)

	a := dial(t, server, "A")
	readUntil(t, a, domain.KindUserList)

	// When a second client claims the same name
	dup := dial(t, server, "A")

	// Then it is closed with 1008
	expectClose(t, dup, ws.ClosePolicyViolation, "Username is already taken")
	req.Len(registry.Roster(), 1)
}

func TestHandler_Missing_Name_Closed_With_Policy_Violation(t *testing.T) {
	server, _ := newServer(t)
	socket := dial(t, server, "")
	expectClose(t, socket, ws.ClosePolicyViolation, "Username is required")
}

func TestHandler_Ping_Pong(t *testing.T) {
	req := require.New(t)
	server, registry := newServer(t)
	a := dial(t, server, "A")
	readUntil(t, a, domain.KindUserList)
	before := registry.RecentMessages(100)

	req.NoError(a.WriteJSON(map[string]string{"kind": "ping"}))
	pong := readUntil(t, a, domain.KindPong)
	req.Equal(domain.KindPong, pong.Kind)
	// Pings never reach the message log
	req.Equal(before, registry.RecentMessages(100))
}

func TestHandler_Invalid_Frame_Gets_Error_Notice(t *testing.T) {
	req := require.New(t)
	server, _ := newServer(t)
	a := dial(t, server, "A")
	readUntil(t, a, domain.KindUserList)

	req.NoError(a.WriteMessage(ws.TextMessage, []byte("not json")))
	notice := readUntil(t, a, domain.KindError)
	req.Equal("Invalid message format", notice.Message)
}

func TestHandler_Disconnect_Updates_Roster(t *testing.T) {
	req := require.New(t)
	server, registry := newServer(t)

	a := dial(t, server, "A")
	readUntil(t, a, domain.KindUserList)
	b := dial(t, server, "B")
	readUntil(t, b, domain.KindUserList)

	// When B goes away
	req.NoError(b.WriteMessage(ws.CloseMessage, ws.FormatCloseMessage(ws.CloseNormalClosure, "")))
	_ = b.Close()

	// Then A eventually sees a roster with only itself
	for {
		roster := readUntil(t, a, domain.KindUserList)
		if len(roster.Users) == 1 {
			req.Equal("A", roster.Users[0].Username)
			break
		}
	}
	req.Eventually(func() bool { return registry.IsNameAvailable("B") }, time.Second, 10*time.Millisecond)
}

func TestOriginChecker(t *testing.T) {
	req := require.New(t)
	check := originChecker([]string{"https://chat.example.com"})

	r := httptest.NewRequest(http.MethodGet, "/ws", nil)
	req.True(check(r))

	r.Header.Set("Origin", "https://chat.example.com")
	req.True(check(r))

	r.Header.Set("Origin", "https://evil.example.com")
	req.False(check(r))

	req.True(originChecker([]string{"*"})(r))
	req.True(originChecker(nil)(r))
}
