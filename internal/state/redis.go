package state

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Manager provides distributed daily guards backed by Redis. It is an
// optimization layer: every guard it implements also exists as a
// conditional write at the database, so a nil Manager is fully functional.
type Manager struct {
	client *redis.Client
}

// NewManager connects to Redis and verifies the connection.
func NewManager(redisHost, redisPort string) (*Manager, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", redisHost, redisPort),
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return &Manager{client: client}, nil
}

// AcquireDailyLock takes a once-per-day lock for the named job. Returns
// true when this caller owns today's run. Without Redis every caller
// acquires; the DB-level uniqueness guards then deduplicate the effects.
func (m *Manager) AcquireDailyLock(ctx context.Context, name string, day time.Time) bool {
	if m == nil || m.client == nil {
		return true
	}
	key := fmt.Sprintf("lock:%s:%s", name, day.Format("2006-01-02"))
	ok, err := m.client.SetNX(ctx, key, 1, 36*time.Hour).Result()
	if err != nil {
		// Redis being down must not stop the job.
		return true
	}
	return ok
}

// MarkLogged remembers that the user's streak was updated for the day.
func (m *Manager) MarkLogged(ctx context.Context, userID uint, day time.Time) {
	if m == nil || m.client == nil {
		return
	}
	key := fmt.Sprintf("streak:%d:%s", userID, day.Format("2006-01-02"))
	m.client.Set(ctx, key, 1, 36*time.Hour)
}

// LoggedToday reports whether the user's streak was already updated for
// the day. False negatives are fine; the conditional DB update is the
// source of truth.
func (m *Manager) LoggedToday(ctx context.Context, userID uint, day time.Time) bool {
	if m == nil || m.client == nil {
		return false
	}
	key := fmt.Sprintf("streak:%d:%s", userID, day.Format("2006-01-02"))
	n, err := m.client.Exists(ctx, key).Result()
	return err == nil && n > 0
}
