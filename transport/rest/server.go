package rest

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
	"github.com/rocketscienceinc/tictactoe-hotseat/web"
)

const shutdownTimeout = 5 * time.Second

type gameManager interface {
	State(ctx context.Context, sessionID string) (entity.Snapshot, error)
	PlaceMark(ctx context.Context, sessionID string, cell int) (entity.Snapshot, error)
	Reset(ctx context.Context, sessionID string) (entity.Snapshot, error)
	EndSession(ctx context.Context, sessionID string) error
	History(ctx context.Context, sessionID string, limit int) ([]entity.GameRecord, error)
}

type Server struct {
	logger    *slog.Logger
	manager   gameManager
	templates *template.Template
}

func New(logger *slog.Logger, manager gameManager) *Server {
	return &Server{
		logger:    logger.With("component", "rest"),
		manager:   manager,
		templates: web.Templates(),
	}
}

// Handler returns the routes wrapped with request logging.
func (that *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /ping", that.pingHandler)
	mux.HandleFunc("GET /{$}", that.indexHandler)
	mux.Handle("GET /static/", http.StripPrefix("/static/", http.FileServer(web.StaticFS())))

	mux.HandleFunc("GET /api/game", that.getGameHandler)
	mux.HandleFunc("DELETE /api/game", that.endSessionHandler)
	mux.HandleFunc("POST /api/game/cells/{index}", that.placeMarkHandler)
	mux.HandleFunc("POST /api/game/reset", that.resetHandler)
	mux.HandleFunc("GET /api/game/history", that.historyHandler)

	return requestLogger(that.logger, mux)
}

// Start - starts HTTP server, it stops when ctx is done.
func (that *Server) Start(ctx context.Context, port string) error {
	listener, err := net.Listen("tcp", ":"+port)
	if err != nil {
		return fmt.Errorf("failed to start server: %w", err)
	}

	return that.Serve(ctx, listener)
}

// Serve handles requests on listener until ctx is done, then returns once in-flight requests have drained.
func (that *Server) Serve(ctx context.Context, listener net.Listener) error {
	srv := &http.Server{
		Handler:      that.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  30 * time.Second,
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
	}()

	if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("failed to start server: %w", err)
	}

	<-stopped

	return nil
}

// statusWriter captures HTTP status and bytes written.
type statusWriter struct {
	http.ResponseWriter
	status int
	bytes  int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (w *statusWriter) Write(b []byte) (int, error) {
	if w.status == 0 {
		w.status = http.StatusOK
	}

	n, err := w.ResponseWriter.Write(b)
	w.bytes += n

	return n, err
}

func requestLogger(logger *slog.Logger, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		sw := &statusWriter{ResponseWriter: w}

		next.ServeHTTP(sw, r)

		logger.Info("http",
			"method", r.Method,
			"path", r.URL.Path,
			"status", sw.status,
			"bytes", sw.bytes,
			"dur", time.Since(start).Round(time.Millisecond),
		)
	})
}
