package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"sync"
	"syscall"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/config"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/repository/storage"
	"github.com/rocketscienceinc/tictactoe-hotseat/internal/usecase"
	"github.com/rocketscienceinc/tictactoe-hotseat/transport/rest"
	"github.com/rocketscienceinc/tictactoe-hotseat/transport/websocket"
)

var ErrAddrNotFound = errors.New("redis address string is empty")

// RunApp - runs the application.
func RunApp(logger *slog.Logger, conf *config.Config) error {
	log := logger.With("component", "app")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigs
		log.Info("Received signal, shutting down", "signal", sig)
		cancel()
	}()

	sessionRepo, closeSessions, err := initSessionRepository(ctx, conf)
	if err != nil {
		return err
	}

	defer func() {
		if err = closeSessions(); err != nil {
			log.Error("could not close session storage", "error", err)
		}
	}()

	var historyRepo repository.HistoryRepository
	if conf.SQLiteStoragePath != "" {
		sqliteStorage, sqliteErr := initSQLiteStorage(ctx, conf.SQLiteStoragePath)
		if sqliteErr != nil {
			return sqliteErr
		}

		defer func() {
			if err = sqliteStorage.Close(); err != nil {
				log.Error("could not close sqlite storage", "error", err)
			}
		}()

		historyRepo = repository.NewHistoryRepository(sqliteStorage.Connection)
	}

	log.Info("storage ready", "driver", conf.Storage.Driver, "history", historyRepo != nil)

	gameManager := usecase.NewGameManager(logger, sessionRepo, historyRepo)

	return runServers(ctx, cancel, log,
		server{name: "HTTP", port: conf.HTTPPort, start: rest.New(logger, gameManager).Start},
		server{name: "WebSocket", port: conf.SocketPort, start: websocket.New(logger, gameManager).Start},
	)
}

type server struct {
	name  string
	port  string
	start func(ctx context.Context, port string) error
}

// runServers starts every server and returns once all of them have stopped. The first failure
// cancels ctx so the others shut down too, and is the returned error.
func runServers(ctx context.Context, cancel context.CancelFunc, log *slog.Logger, servers ...server) error {
	var (
		wg       sync.WaitGroup
		errMutex sync.Mutex
		runErr   error
	)

	for _, srv := range servers {
		wg.Add(1)

		go func() {
			defer wg.Done()

			log.Info("Starting "+srv.name+" server", "port", srv.port)
			if err := srv.start(ctx, srv.port); err != nil {
				log.Error(srv.name+" server error", "error", err)

				errMutex.Lock()
				if runErr == nil {
					runErr = fmt.Errorf("%s server error: %w", srv.name, err)
				}
				errMutex.Unlock()

				cancel()
			}
		}()
	}

	<-ctx.Done()
	log.Info("Application context canceled, shutting down")

	wg.Wait()

	return runErr
}

func initSessionRepository(ctx context.Context, conf *config.Config) (repository.SessionRepository, func() error, error) {
	if conf.Storage.Driver != config.StorageRedis {
		return repository.NewMemorySessionRepository(conf.Storage.SessionTTL), func() error { return nil }, nil
	}

	redisAddrString := conf.Redis.GetRedisAddr()
	if conf.Redis.Host == "" {
		return nil, nil, ErrAddrNotFound
	}

	redisStorage, err := storage.NewRedis(ctx, redisAddrString)
	if err != nil {
		return nil, nil, fmt.Errorf("could not connect to redis storage: %w", err)
	}

	return repository.NewSessionRepository(redisStorage, conf.Storage.SessionTTL), redisStorage.Close, nil
}

func initSQLiteStorage(ctx context.Context, path string) (*storage.Storage, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("could not create sqlite directory: %w", err)
	}

	sqliteStorage, err := storage.NewSQLiteStorage(path)
	if err != nil {
		return nil, fmt.Errorf("could not open sqlite storage: %w", err)
	}

	if err = sqliteStorage.Init(ctx); err != nil {
		_ = sqliteStorage.Close()
		return nil, fmt.Errorf("could not init sqlite storage: %w", err)
	}

	return sqliteStorage, nil
}
