package websocket

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/apperror"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/pkg"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	State(ctx context.Context, sessionID string) (entity.Snapshot, error)
	PlaceMark(ctx context.Context, sessionID string, cell int) (entity.Snapshot, error)
	Reset(ctx context.Context, sessionID string) (entity.Snapshot, error)
}

type handlerFunc func(ctx context.Context, conn *connection, message *Message) error

type Server struct {
	logger  *slog.Logger
	manager gameManager

	handlers map[string]handlerFunc

	connectionsMutex sync.RWMutex
	connections      map[string]map[*connection]struct{}
	closing          bool

	active sync.WaitGroup
}

// connection is a hijacked client bound to one session. Writes are serialized since
// broadcasts from other sessions' goroutines share the writer.
type connection struct {
	conn net.Conn
	rw   *bufio.ReadWriter

	writeMutex sync.Mutex
	sessionID  string
}

func New(logger *slog.Logger, manager gameManager) *Server {
	server := &Server{
		logger:  logger.With("component", "websocket"),
		manager: manager,

		handlers:    make(map[string]handlerFunc),
		connections: make(map[string]map[*connection]struct{}),
	}

	server.handlers["connect"] = server.handleConnect
	server.handlers["game:turn"] = server.handleGameTurn
	server.handlers["game:reset"] = server.handleGameReset

	return server
}

func (that *Server) Handler(ctx context.Context) http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		that.upgradeToWebSocket(ctx, w, r)
	})

	return mux
}

// Start - starts WebSocket server, it stops when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return that.Serve(ctx, listener)
}

// Serve accepts connections on listener until ctx is done. It returns once the listener is closed
// and every upgraded connection has been closed and its handler has finished.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:           that.Handler(ctx),
		ReadHeaderTimeout: 10 * time.Second,
	}

	stopped := make(chan struct{})
	go func() {
		defer close(stopped)

		<-ctx.Done()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			that.logger.Error("failed to shutdown server", "error", err)
		}

		// hijacked connections are invisible to Shutdown
		that.closeAll()
		that.active.Wait()
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-stopped

	return nil
}

// upgradeToWebSocket - upgrades the connection to WebSocket.
func (that *Server) upgradeToWebSocket(ctx context.Context, writer http.ResponseWriter, req *http.Request) {
	log := that.logger.With("method", "upgradeConnection")

	key := req.Header.Get("Sec-WebSocket-Key")
	if !strings.EqualFold(req.Header.Get("Upgrade"), "websocket") || key == "" {
		http.Error(writer, "not a websocket upgrade", http.StatusBadRequest)
		return
	}

	sessionID, cookie, err := pkg.SessionFromRequest(req)
	if err != nil {
		log.Error("failed to create session", "error", err)
		http.Error(writer, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	hijacker, ok := writer.(http.Hijacker)
	if !ok {
		log.Error("web server does not support hijacking")
		http.Error(writer, "Internal Server Error", http.StatusInternalServerError)
		return
	}

	that.active.Add(1)
	defer that.active.Done()

	netConn, bufrw, err := hijacker.Hijack()
	if err != nil {
		log.Error("failed to hijack connection", "error", err)
		return
	}

	defer netConn.Close()

	// deadlines set by the http server must not apply to the long-lived connection
	_ = netConn.SetDeadline(time.Time{})

	if err = writeHandshake(bufrw.Writer, pkg.GenerateAcceptKey(key), cookie); err != nil {
		log.Error("failed to write handshake", "error", err)
		return
	}

	conn := &connection{conn: netConn, rw: bufrw}
	if !that.bind(conn, sessionID) {
		log.Info("server is shutting down, connection dropped", "sessionID", sessionID)
		return
	}
	defer that.unbind(conn)

	log.Info("WebSocket connection established", "sessionID", sessionID)

	if err = that.handleMessages(ctx, conn); err != nil {
		log.Error("error handling messages", "error", err)
	}
}

func writeHandshake(w *bufio.Writer, acceptKey string, cookie *http.Cookie) error {
	var response strings.Builder

	response.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	response.WriteString("Upgrade: websocket\r\n")
	response.WriteString("Connection: Upgrade\r\n")
	response.WriteString("Sec-WebSocket-Accept: " + acceptKey + "\r\n")
	if cookie != nil {
		response.WriteString("Set-Cookie: " + cookie.String() + "\r\n")
	}
	response.WriteString("\r\n")

	if _, err := w.WriteString(response.String()); err != nil {
		return fmt.Errorf("failed to write handshake: %w", err)
	}

	if err := w.Flush(); err != nil {
		return fmt.Errorf("failed to flush handshake: %w", err)
	}

	return nil
}

// handleMessages - processes messages from the client until it closes the connection.
func (that *Server) handleMessages(ctx context.Context, conn *connection) error {
	log := that.logger.With("method", "handleMessages")

	for {
		request, err := readFrame(conn.rw.Reader)
		if err != nil {
			return err
		}

		switch request.opCode {
		case opClose:
			return conn.writeControl(opClose, request.payload)
		case opPing:
			if err = conn.writeControl(opPong, request.payload); err != nil {
				return err
			}
			continue
		case opText:
		default:
			continue
		}

		var message Message
		if err = json.Unmarshal(request.payload, &message); err != nil {
			log.Error("failed to unmarshal message", "error", err)
			if err = that.sendErrorResponse(conn, "error", "malformed message"); err != nil {
				return err
			}
			continue
		}

		handler, ok := that.handlers[message.Action]
		if !ok {
			log.Warn("unknown action", "action", message.Action)
			if err = that.sendErrorResponse(conn, message.Action, apperror.ErrUnknownAction.Error()); err != nil {
				return err
			}
			continue
		}

		if err = handler(ctx, conn, &message); err != nil {
			log.Error("error processing message", "action", message.Action, "error", err)
		}
	}
}

// bind attaches the connection to sessionID, detaching it from its previous session.
// It reports false once closeAll has run.
func (that *Server) bind(conn *connection, sessionID string) bool {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	if that.closing {
		return false
	}

	that.detach(conn)

	conn.sessionID = sessionID
	if that.connections[sessionID] == nil {
		that.connections[sessionID] = make(map[*connection]struct{})
	}
	that.connections[sessionID][conn] = struct{}{}

	return true
}

func (that *Server) unbind(conn *connection) {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	that.detach(conn)
	that.logger.Info("connection closed", "sessionID", conn.sessionID)
}

// detach expects connectionsMutex to be held.
func (that *Server) detach(conn *connection) {
	if conn.sessionID == "" {
		return
	}

	peers := that.connections[conn.sessionID]
	delete(peers, conn)
	if len(peers) == 0 {
		delete(that.connections, conn.sessionID)
	}
}

func (that *Server) sessionOf(conn *connection) string {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	return conn.sessionID
}

func (that *Server) peers(sessionID string) []*connection {
	that.connectionsMutex.RLock()
	defer that.connectionsMutex.RUnlock()

	peers := make([]*connection, 0, len(that.connections[sessionID]))
	for peer := range that.connections[sessionID] {
		peers = append(peers, peer)
	}

	return peers
}

func (that *Server) closeAll() {
	that.connectionsMutex.Lock()
	defer that.connectionsMutex.Unlock()

	that.closing = true

	for _, peers := range that.connections {
		for peer := range peers {
			_ = peer.conn.Close()
		}
	}
}

func (that *connection) send(message []byte) error {
	that.writeMutex.Lock()
	defer that.writeMutex.Unlock()

	return writeFrame(that.rw.Writer, frame{isFin: true, opCode: opText, payload: message})
}

func (that *connection) writeControl(opCode byte, payload []byte) error {
	that.writeMutex.Lock()
	defer that.writeMutex.Unlock()

	return writeFrame(that.rw.Writer, frame{isFin: true, opCode: opCode, payload: payload})
}
