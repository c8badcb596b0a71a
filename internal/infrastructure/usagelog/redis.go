package usagelog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"HSEWrapped/internal/domain"
	"HSEWrapped/internal/ports"
)

const (
	keyUsers      = "hsewrapped:usage:users"
	keyCounters   = "hsewrapped:usage:counters"
	keyBroadcasts = "hsewrapped:usage:broadcasts"

	fieldTotalUsers    = "totalUsers"
	fieldTotalRequests = "totalRequests"

	maxTxRetries = 5
)

// RedisStore keeps one JSON record per user in a hash, with global counters
// in a second hash and broadcasts in a capped list.
type RedisStore struct {
	client *redis.Client
	clock  func() time.Time
}

var _ ports.UsageLog = (*RedisStore)(nil)

// NewRedisStore wraps an existing client.
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, clock: time.Now}
}

// OpenRedis connects and verifies the server is reachable.
func OpenRedis(ctx context.Context, addr string, db int) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr: addr,
		DB:   db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis %s: %w", addr, err)
	}
	return NewRedisStore(client), nil
}

// RecordStart creates or refreshes the caller's record.
func (s *RedisStore) RecordStart(ctx context.Context, caller domain.Caller) error {
	return s.mutate(ctx, caller.ID, true, func(rec *domain.UserRecord, existed bool, now time.Time) {
		applyStart(rec, existed, caller, now)
	}, func(pipe redis.Pipeliner, existed bool) {
		if !existed {
			pipe.HIncrBy(ctx, keyCounters, fieldTotalUsers, 1)
		}
	})
}

// RecordRequest counts a portfolio request.
func (s *RedisStore) RecordRequest(ctx context.Context, caller domain.Caller, portfolioURL string) error {
	return s.mutate(ctx, caller.ID, false, func(rec *domain.UserRecord, _ bool, now time.Time) {
		applyRequest(rec, portfolioURL, now)
	}, func(pipe redis.Pipeliner, _ bool) {
		pipe.HIncrBy(ctx, keyCounters, fieldTotalRequests, 1)
	})
}

// RecordSuccess counts a delivered set of images.
func (s *RedisStore) RecordSuccess(ctx context.Context, caller domain.Caller, images int, summary domain.Summary) error {
	return s.mutate(ctx, caller.ID, false, func(rec *domain.UserRecord, _ bool, now time.Time) {
		applySuccess(rec, images, summary, now)
	}, nil)
}

// RecordFailure counts a failed request with its usage-log label.
func (s *RedisStore) RecordFailure(ctx context.Context, caller domain.Caller, kind string) error {
	return s.mutate(ctx, caller.ID, false, func(rec *domain.UserRecord, _ bool, now time.Time) {
		applyFailure(rec, kind, now)
	}, nil)
}

// RecordBroadcast appends a broadcast and trims the list to the newest ones.
func (s *RedisStore) RecordBroadcast(ctx context.Context, rec domain.BroadcastRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode broadcast: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.RPush(ctx, keyBroadcasts, raw)
		pipe.LTrim(ctx, keyBroadcasts, -maxBroadcasts, -1)
		return nil
	})
	if err != nil {
		return fmt.Errorf("push broadcast: %w", err)
	}
	return nil
}

// Stats aggregates all records.
func (s *RedisStore) Stats(ctx context.Context, now time.Time) (domain.UsageStats, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return domain.UsageStats{}, err
	}

	counters, err := s.client.HMGet(ctx, keyCounters, fieldTotalUsers, fieldTotalRequests).Result()
	if err != nil {
		return domain.UsageStats{}, fmt.Errorf("read counters: %w", err)
	}
	return summarize(users, counterValue(counters[0]), counterValue(counters[1]), now), nil
}

// TopUsers returns users ordered by portfolio requests.
func (s *RedisStore) TopUsers(ctx context.Context, limit int) ([]domain.UserRecord, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	return topUsers(users, limit), nil
}

// Users returns the users passing filter.
func (s *RedisStore) Users(ctx context.Context, filter domain.UserFilter, now time.Time) ([]domain.UserRecord, error) {
	users, err := s.loadUsers(ctx)
	if err != nil {
		return nil, err
	}
	return filterUsers(users, filter, now), nil
}

// Broadcasts returns the retained broadcast history, oldest first.
func (s *RedisStore) Broadcasts(ctx context.Context) ([]domain.BroadcastRecord, error) {
	raw, err := s.client.LRange(ctx, keyBroadcasts, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("read broadcasts: %w", err)
	}

	result := make([]domain.BroadcastRecord, 0, len(raw))
	for _, item := range raw {
		var rec domain.BroadcastRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("decode broadcast: %w", err)
		}
		result = append(result, rec)
	}
	return result, nil
}

// Close closes the client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// mutate reads one record, applies fn and writes it back under WATCH on the
// users hash. Unknown users are skipped unless create is set; extra still runs
// so global counters move regardless.
func (s *RedisStore) mutate(
	ctx context.Context,
	id int64,
	create bool,
	fn func(rec *domain.UserRecord, existed bool, now time.Time),
	extra func(pipe redis.Pipeliner, existed bool),
) error {
	field := userKey(id)

	txf := func(tx *redis.Tx) error {
		var rec domain.UserRecord
		existed := true

		raw, err := tx.HGet(ctx, keyUsers, field).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
			existed = false
		case err != nil:
			return fmt.Errorf("read user %d: %w", id, err)
		default:
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("decode user %d: %w", id, err)
			}
		}

		write := existed || create
		if !write && extra == nil {
			return nil
		}

		var encoded []byte
		if write {
			fn(&rec, existed, s.clock())
			if encoded, err = json.Marshal(rec); err != nil {
				return fmt.Errorf("encode user %d: %w", id, err)
			}
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if write {
				pipe.HSet(ctx, keyUsers, field, encoded)
			}
			if extra != nil {
				extra(pipe, existed)
			}
			return nil
		})
		return err
	}

	for attempt := 0; attempt < maxTxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, keyUsers)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("update user %d: %w", id, err)
		}
		return nil
	}
	return fmt.Errorf("update user %d: too much contention", id)
}

func (s *RedisStore) loadUsers(ctx context.Context) ([]domain.UserRecord, error) {
	raw, err := s.client.HGetAll(ctx, keyUsers).Result()
	if err != nil {
		return nil, fmt.Errorf("read users: %w", err)
	}

	users := make([]domain.UserRecord, 0, len(raw))
	for field, value := range raw {
		var rec domain.UserRecord
		if err := json.Unmarshal([]byte(value), &rec); err != nil {
			return nil, fmt.Errorf("decode user %s: %w", field, err)
		}
		users = append(users, rec)
	}
	return users, nil
}

func counterValue(v any) int {
	s, ok := v.(string)
	if !ok {
		return 0
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}
