package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/pkg"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-hotseat/testing/suite"
)

const testKey = "dGhlIHNhbXBsZSBub25jZQ=="

type testClient struct {
	t      *testing.T
	conn   net.Conn
	reader *bufio.Reader
	writer *bufio.Writer
	cookie *http.Cookie
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	logger := suite.NewLogger()
	manager := usecase.NewGameManager(logger, repository.NewMemorySessionRepository(0), nil)

	srv := httptest.NewServer(New(logger, manager).Handler(ctx))
	t.Cleanup(srv.Close)

	return srv
}

func dial(t *testing.T, srv *httptest.Server) *testClient {
	t.Helper()

	return dialAddr(t, srv.Listener.Addr().String())
}

func dialAddr(t *testing.T, addr string) *testClient {
	t.Helper()

	conn, err := net.Dial("tcp", addr)
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })

	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	handshake := "GET /ws HTTP/1.1\r\n" +
		"Host: " + addr + "\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: " + testKey + "\r\n" +
		"Sec-WebSocket-Version: 13\r\n\r\n"

	_, err = conn.Write([]byte(handshake))
	require.NoError(t, err)

	reader := bufio.NewReader(conn)
	resp, err := http.ReadResponse(reader, nil)
	require.NoError(t, err)

	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	require.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", resp.Header.Get("Sec-WebSocket-Accept"))

	client := &testClient{
		t:      t,
		conn:   conn,
		reader: reader,
		writer: bufio.NewWriter(conn),
	}

	for _, cookie := range resp.Cookies() {
		if cookie.Name == pkg.SessionCookieName {
			client.cookie = cookie
		}
	}

	return client
}

func (that *testClient) send(action string, payload any) {
	that.t.Helper()

	message := map[string]any{"action": action}
	if payload != nil {
		message["payload"] = payload
	}

	raw, err := json.Marshal(message)
	require.NoError(that.t, err)

	that.sendRaw(opText, raw)
}

func (that *testClient) sendRaw(opCode byte, payload []byte) {
	that.t.Helper()

	err := writeFrame(that.writer, frame{isFin: true, opCode: opCode, mask: []byte{7, 1, 9, 3}, payload: payload})
	require.NoError(that.t, err)
}

func (that *testClient) receive() (string, ResponsePayload) {
	that.t.Helper()

	received, err := readFrame(that.reader)
	require.NoError(that.t, err)
	require.Equal(that.t, opText, received.opCode)

	var message Message
	require.NoError(that.t, json.Unmarshal(received.payload, &message))

	var payload ResponsePayload
	require.NoError(that.t, json.Unmarshal(message.Payload, &payload))

	return message.Action, payload
}

func TestServer_Handshake(t *testing.T) {
	t.Run("Issues a session cookie", func(t *testing.T) {
		srv := newTestServer(t)

		client := dial(t, srv)

		require.NotNil(t, client.cookie)
		assert.Equal(t, "/", client.cookie.Path)
	})

	t.Run("Plain request is rejected", func(t *testing.T) {
		srv := newTestServer(t)

		resp, err := http.Get(srv.URL + "/ws")
		require.NoError(t, err)
		defer resp.Body.Close()

		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestServer_Game(t *testing.T) {
	t.Run("Connect returns the cookie session", func(t *testing.T) {
		// Given: a connected client
		srv := newTestServer(t)
		client := dial(t, srv)

		// When: it sends connect without a session id
		client.send("connect", nil)

		// Then: the fresh game of the cookie session is returned
		action, payload := client.receive()
		assert.Equal(t, "connect", action)
		assert.Equal(t, client.cookie.Value, payload.SessionID)
		require.NotNil(t, payload.Game)
		assert.Equal(t, entity.PlayerX, payload.Game.CurrentPlayer)
	})

	t.Run("Turns are broadcast to every connection of the session", func(t *testing.T) {
		// Given: two connections joined to the same session
		srv := newTestServer(t)
		first := dial(t, srv)
		second := dial(t, srv)

		first.send("connect", map[string]any{"session_id": "table-1"})
		_, _ = first.receive()
		second.send("connect", map[string]any{"session_id": "table-1"})
		_, _ = second.receive()

		// When: the first connection plays the center
		first.send("game:turn", map[string]any{"cell": 4})

		// Then: both connections see the mark
		for _, client := range []*testClient{first, second} {
			action, payload := client.receive()
			assert.Equal(t, "game:turn", action)
			require.NotNil(t, payload.Game)
			assert.Equal(t, entity.PlayerX, payload.Game.Board[4])
			assert.Equal(t, entity.PlayerO, payload.Game.CurrentPlayer)
		}

		// When: the second connection resets
		second.send("game:reset", nil)

		// Then: both connections see an empty board
		for _, client := range []*testClient{first, second} {
			action, payload := client.receive()
			assert.Equal(t, "game:reset", action)
			require.NotNil(t, payload.Game)
			assert.Equal(t, entity.Board{}, payload.Game.Board)
		}
	})

	t.Run("Invalid cell is reported to the sender only", func(t *testing.T) {
		// Given: two connections in one session
		srv := newTestServer(t)
		first := dial(t, srv)
		second := dial(t, srv)

		first.send("connect", map[string]any{"session_id": "table-2"})
		_, _ = first.receive()
		second.send("connect", map[string]any{"session_id": "table-2"})
		_, _ = second.receive()

		// When: the first one sends a cell outside the board, then a valid one
		first.send("game:turn", map[string]any{"cell": 12})
		action, payload := first.receive()

		// Then: only the sender gets the error
		assert.Equal(t, "game:turn", action)
		assert.Equal(t, "invalid cell index", payload.Error)
		assert.Nil(t, payload.Game)

		first.send("game:turn", map[string]any{"cell": 0})
		_, payload = second.receive()
		require.NotNil(t, payload.Game)
		assert.Equal(t, entity.PlayerX, payload.Game.Board[0])
	})

	t.Run("Missing cell", func(t *testing.T) {
		srv := newTestServer(t)
		client := dial(t, srv)

		client.send("game:turn", map[string]any{})

		_, payload := client.receive()
		assert.Equal(t, "missing argument: cell", payload.Error)
	})

	t.Run("Unknown action", func(t *testing.T) {
		srv := newTestServer(t)
		client := dial(t, srv)

		client.send("game:fly", nil)

		action, payload := client.receive()
		assert.Equal(t, "game:fly", action)
		assert.Equal(t, "unknown action", payload.Error)
	})

	t.Run("Malformed message", func(t *testing.T) {
		srv := newTestServer(t)
		client := dial(t, srv)

		client.sendRaw(opText, []byte("{not json"))

		action, payload := client.receive()
		assert.Equal(t, "error", action)
		assert.Equal(t, "malformed message", payload.Error)
	})
}

func TestServer_ControlFrames(t *testing.T) {
	t.Run("Ping is answered with pong", func(t *testing.T) {
		srv := newTestServer(t)
		client := dial(t, srv)

		client.sendRaw(opPing, []byte("hi"))

		received, err := readFrame(client.reader)
		require.NoError(t, err)
		assert.Equal(t, opPong, received.opCode)
		assert.Equal(t, []byte("hi"), received.payload)
	})

	t.Run("Close ends the connection", func(t *testing.T) {
		// Given: a connected client
		srv := newTestServer(t)
		client := dial(t, srv)

		// When: it sends a close frame
		client.sendRaw(opClose, []byte{0x03, 0xe8})

		// Then: the server echoes close and hangs up
		received, err := readFrame(client.reader)
		require.NoError(t, err)
		assert.Equal(t, opClose, received.opCode)

		_, err = client.reader.ReadByte()
		require.Error(t, err)
		assert.False(t, strings.Contains(err.Error(), "timeout"))
	})
}

func TestServer_Serve(t *testing.T) {
	t.Run("Shutdown closes every open connection", func(t *testing.T) {
		// Given: a served websocket endpoint with two clients of different sessions
		listener, err := net.Listen("tcp", "127.0.0.1:0")
		require.NoError(t, err)

		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(cancel)

		logger := suite.NewLogger()
		server := New(logger, usecase.NewGameManager(logger, repository.NewMemorySessionRepository(0), nil))

		served := make(chan error, 1)
		go func() { served <- server.Serve(ctx, listener) }()

		first := dialAddr(t, listener.Addr().String())
		second := dialAddr(t, listener.Addr().String())

		for _, client := range []*testClient{first, second} {
			client.send("connect", nil)
			action, _ := client.receive()
			require.Equal(t, "connect", action)
		}

		// When: the server context is cancelled
		cancel()

		// Then: both clients see their connection closed
		for _, client := range []*testClient{first, second} {
			_, err = readFrame(client.reader)
			require.Error(t, err)

			var netErr net.Error
			if errors.As(err, &netErr) {
				assert.False(t, netErr.Timeout(), "connection was not closed by the server")
			}
		}

		// And: Serve returns with no connection left registered
		select {
		case err = <-served:
			require.NoError(t, err)
		case <-time.After(shutdownTimeout + time.Second):
			t.Fatal("Serve did not return after shutdown")
		}

		server.connectionsMutex.RLock()
		defer server.connectionsMutex.RUnlock()
		assert.Empty(t, server.connections)
	})

	t.Run("Connections after shutdown are not served", func(t *testing.T) {
		// Given: a server that already closed its connections
		logger := suite.NewLogger()
		server := New(logger, usecase.NewGameManager(logger, repository.NewMemorySessionRepository(0), nil))
		server.closeAll()

		// When: a late connection tries to register
		conn := &connection{}

		// Then: it is refused
		assert.False(t, server.bind(conn, "s1"))
		assert.Empty(t, server.peers("s1"))
	})
}
