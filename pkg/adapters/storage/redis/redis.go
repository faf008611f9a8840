package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/weftworks/weft/pkg/domain/run"
	"github.com/weftworks/weft/pkg/ports"
)

// Store implements RunStore on Redis. Snapshots are stored as JSON values
// with a TTL, so finished runs age out without a reaper.
type Store struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration
}

// NewStore creates a new Redis run store
func NewStore(client *redis.Client, ttl time.Duration, logger *zap.Logger) *Store {
	return &Store{
		client: client,
		logger: logger,
		ttl:    ttl,
	}
}

// SaveRun persists a snapshot under its run id, refreshing the TTL.
func (s *Store) SaveRun(ctx context.Context, snapshot *run.Snapshot) error {
	key := getRunKey(snapshot.ID)

	data, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("failed to marshal run state: %w", err)
	}

	if err := s.client.Set(ctx, key, data, s.ttl).Err(); err != nil {
		return fmt.Errorf("failed to save run state: %w", err)
	}

	s.logger.Debug("run state saved",
		zap.String("run_id", snapshot.ID),
		zap.String("status", string(snapshot.Status)))

	return nil
}

// LoadRun retrieves the snapshot for a run id.
func (s *Store) LoadRun(ctx context.Context, id string) (*run.Snapshot, error) {
	key := getRunKey(id)

	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, ports.ErrRunNotFound
		}
		return nil, fmt.Errorf("failed to get run state: %w", err)
	}

	var snap run.Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to unmarshal run state: %w", err)
	}

	return &snap, nil
}

// DeleteRun removes the snapshot for a run id.
func (s *Store) DeleteRun(ctx context.Context, id string) error {
	key := getRunKey(id)

	deleted, err := s.client.Del(ctx, key).Result()
	if err != nil {
		return fmt.Errorf("failed to delete run state: %w", err)
	}
	if deleted == 0 {
		return ports.ErrRunNotFound
	}

	s.logger.Debug("run state deleted",
		zap.String("run_id", id))

	return nil
}

// ListRuns returns every stored snapshot, newest first. Keys that vanish or
// fail to decode mid-scan are skipped.
func (s *Store) ListRuns(ctx context.Context) ([]*run.Snapshot, error) {
	pattern := "weft:run:*"

	var cursor uint64
	var keys []string

	for {
		var batch []string
		var err error

		batch, cursor, err = s.client.Scan(ctx, cursor, pattern, 100).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan keys: %w", err)
		}

		keys = append(keys, batch...)

		if cursor == 0 {
			break
		}
	}

	snaps := make([]*run.Snapshot, 0, len(keys))
	for _, key := range keys {
		data, err := s.client.Get(ctx, key).Bytes()
		if err != nil {
			continue
		}

		var snap run.Snapshot
		if err := json.Unmarshal(data, &snap); err != nil {
			continue
		}

		snaps = append(snaps, &snap)
	}

	sort.Slice(snaps, func(i, j int) bool {
		if snaps[i].CreatedAt.Equal(snaps[j].CreatedAt) {
			return snaps[i].ID < snaps[j].ID
		}
		return snaps[i].CreatedAt.After(snaps[j].CreatedAt)
	})

	return snaps, nil
}

// getRunKey returns the Redis key for a run snapshot
func getRunKey(id string) string {
	return fmt.Sprintf("weft:run:%s", id)
}
