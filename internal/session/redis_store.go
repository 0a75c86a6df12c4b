package session

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"

	"ddorchestrator/internal/ddrerr"
	"ddorchestrator/internal/model"
)

// RedisStore is the durable Store implementation for
// SESSION_STORE_BACKEND=redis (spec 6.4). Grounded on the CRUD shape of
// the teacher's pkg/core/debate/persistence.go DebateRepo
// (Create/UpdateStatus/AddMessage/GetHistory), reimplemented as one
// JSON-encoded Redis string value per session (with a 24h TTL) instead of
// Postgres tables since no repo in the retrieval
// pack uses Redis for session state specifically; Redis is this module's
// own grounded ecosystem choice for the documented key-value backend.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisStore(redisURL string) (*RedisStore, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &RedisStore{client: redis.NewClient(opt), ttl: 24 * time.Hour}, nil
}

func sessionKey(id string) string { return "ddorchestrator:session:" + id }

func (r *RedisStore) Put(ctx context.Context, s *model.Session) error {
	data, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, sessionKey(s.ID), data, r.ttl).Err()
}

func (r *RedisStore) Get(ctx context.Context, id string) (*model.Session, bool, error) {
	data, err := r.client.Get(ctx, sessionKey(id)).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, ddrerr.Wrap(ddrerr.ServiceUnavailable, "redis store: get failed", err)
	}
	var s model.Session
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, false, err
	}
	return &s, true, nil
}

func (r *RedisStore) withSession(ctx context.Context, id string, fn func(*model.Session) error) error {
	s, found, err := r.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return ddrerr.New(ddrerr.SessionNotFound, "session not found: "+id)
	}
	if err := fn(s); err != nil {
		return err
	}
	return r.Put(ctx, s)
}

func (r *RedisStore) AppendStep(ctx context.Context, id string, step model.Step) error {
	return r.withSession(ctx, id, func(s *model.Session) error {
		s.Steps = append(s.Steps, step)
		return nil
	})
}

func (r *RedisStore) UpdateStep(ctx context.Context, id string, step model.Step) error {
	return r.withSession(ctx, id, func(s *model.Session) error {
		for i := range s.Steps {
			if s.Steps[i].Index == step.Index {
				s.Steps[i] = step
				return nil
			}
		}
		return ddrerr.New(ddrerr.InternalError, "step not found for update")
	})
}

func (r *RedisStore) UpdateState(ctx context.Context, id string, state model.WorkflowState) error {
	return r.withSession(ctx, id, func(s *model.Session) error {
		s.State = state
		return nil
	})
}

func (r *RedisStore) MarkTerminal(ctx context.Context, id string, state model.WorkflowState, canceledReason string) error {
	return r.withSession(ctx, id, func(s *model.Session) error {
		s.State = state
		s.CanceledReason = canceledReason
		return nil
	})
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.client.Del(ctx, sessionKey(id)).Err()
}

// Expire is a no-op for RedisStore: TTL expiry is handled natively by
// Redis (spec 6.3 "the durable implementation uses store-native TTL").
func (r *RedisStore) Expire(_ context.Context, _ time.Time) error {
	return nil
}
