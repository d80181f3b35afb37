package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/garrison-hq/garrison/internal/auth"
	"github.com/garrison-hq/garrison/internal/observability"
	"github.com/garrison-hq/garrison/internal/session"
)

// SessionPurgeJob removes expired session audit rows from Postgres and
// credential keys in Redis whose session no longer exists.
type SessionPurgeJob struct {
	Auth    *auth.Service
	Pool    *pgxpool.Pool
	Redis   *redis.Client
	Logger  *slog.Logger
	Metrics *observability.Metrics
	clock   func() time.Time
}

// NewSessionPurgeJob initialises the purge handler.
func NewSessionPurgeJob(authSvc *auth.Service, pool *pgxpool.Pool, rdb *redis.Client, logger *slog.Logger, metrics *observability.Metrics) *SessionPurgeJob {
	return &SessionPurgeJob{
		Auth:    authSvc,
		Pool:    pool,
		Redis:   rdb,
		Logger:  logger,
		Metrics: metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes the purge sweep.
func (j *SessionPurgeJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil {
		return errors.New("session purge: handler not configured")
	}
	var payload SessionPurgePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	var resultErr error
	defer func() {
		if j.Metrics != nil {
			j.Metrics.JobObserved(TaskSessionPurge, resultErr)
		}
	}()

	now := j.now()
	deleted, err := j.Auth.PurgeExpiredSessions(ctx, now)
	if err != nil {
		resultErr = err
		return err
	}

	orphans, err := j.sweepOrphanedCredentials(ctx)
	if err != nil {
		resultErr = err
		return err
	}

	j.logger().Info("session purge complete",
		slog.Int64("expired_sessions", deleted),
		slog.Int("orphaned_credentials", orphans))
	return nil
}

// sweepOrphanedCredentials deletes credential keys whose session audit row
// is gone. Keys carry a TTL as well; the sweep just shortens the window.
func (j *SessionPurgeJob) sweepOrphanedCredentials(ctx context.Context) (int, error) {
	if j.Redis == nil || j.Pool == nil {
		return 0, nil
	}
	var removed int
	iter := j.Redis.Scan(ctx, 0, session.CredentialKeyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		key := iter.Val()
		sid := strings.TrimPrefix(key, session.CredentialKeyPrefix)
		var exists bool
		if err := j.Pool.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sid).Scan(&exists); err != nil {
			return removed, err
		}
		if exists {
			continue
		}
		if err := j.Redis.Del(ctx, key).Err(); err != nil {
			return removed, err
		}
		removed++
	}
	if err := iter.Err(); err != nil {
		return removed, err
	}
	return removed, nil
}

func (j *SessionPurgeJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}

func (j *SessionPurgeJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger
	}
	return slog.Default()
}
