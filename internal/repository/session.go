package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rocketscienceinc/tictactoe-hotseat/internal/entity"
)

var ErrSessionNotFound = errors.New("session not found")

type SessionRepository interface {
	CreateOrUpdate(ctx context.Context, sessionID string, snapshot entity.Snapshot) error
	GetByID(ctx context.Context, sessionID string) (entity.Snapshot, error)
	DeleteByID(ctx context.Context, sessionID string) error
}

type dbSession struct {
	client *redis.Client
	ttl    time.Duration
}

// NewSessionRepository stores session snapshots in redis as JSON. A positive ttl expires idle sessions.
func NewSessionRepository(client *redis.Client, ttl time.Duration) SessionRepository {
	return &dbSession{
		client: client,
		ttl:    ttl,
	}
}

func sessionKey(sessionID string) string {
	return "session:" + sessionID
}

func (that *dbSession) CreateOrUpdate(ctx context.Context, sessionID string, snapshot entity.Snapshot) error {
	sessionJSON, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("could not marshal session: %w", err)
	}

	if err = that.client.Set(ctx, sessionKey(sessionID), sessionJSON, that.ttl).Err(); err != nil {
		return fmt.Errorf("failed to set session: %w", err)
	}

	return nil
}

func (that *dbSession) GetByID(ctx context.Context, sessionID string) (entity.Snapshot, error) {
	response, err := that.client.Get(ctx, sessionKey(sessionID)).Result()
	if errors.Is(err, redis.Nil) {
		return entity.Snapshot{}, ErrSessionNotFound
	}

	if err != nil {
		return entity.Snapshot{}, fmt.Errorf("failed to get session by id: %w", err)
	}

	var snapshot entity.Snapshot
	if err = json.Unmarshal([]byte(response), &snapshot); err != nil {
		return entity.Snapshot{}, fmt.Errorf("failed to unmarshal session: %w", err)
	}

	return snapshot, nil
}

func (that *dbSession) DeleteByID(ctx context.Context, sessionID string) error {
	deleted, err := that.client.Del(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to delete session by id: %w", err)
	}

	if deleted == 0 {
		return ErrSessionNotFound
	}

	return nil
}
