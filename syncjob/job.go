package syncjob

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type Status string

const (
	StatusPending Status = "pending"
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusError   Status = "error"
)

func (s Status) Finished() bool {
	return s == StatusDone || s == StatusError
}

var ErrJobNotFound = errors.New("job not found")

// Job is the externally visible state of one sync pass.
type Job struct {
	ID           string    `json:"id"`
	ConnectionID uint      `json:"connectionId"`
	Status       Status    `json:"status"`
	Step         string    `json:"step,omitempty"`
	Message      string    `json:"message"`
	Result       *Summary  `json:"result,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt"`
}

func newJob(connectionID uint, now time.Time) Job {
	return Job{
		ID:           uuid.NewString(),
		ConnectionID: connectionID,
		Status:       StatusPending,
		Message:      "queued",
		CreatedAt:    now,
		UpdatedAt:    now,
	}
}

// JobStore keeps job statuses and the active job of every connection.
type JobStore interface {
	Save(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	// ClaimActive records jobID as the running job of the connection unless
	// another one already holds it.
	ClaimActive(ctx context.Context, connectionID uint, jobID string, ttl time.Duration) (bool, error)
	Active(ctx context.Context, connectionID uint) (string, bool, error)
	ReleaseActive(ctx context.Context, connectionID uint, jobID string) error
}

type MemoryJobStore struct {
	mu     sync.Mutex
	jobs   map[string]Job
	active map[uint]string
}

func NewMemoryJobStore() *MemoryJobStore {
	return &MemoryJobStore{jobs: map[string]Job{}, active: map[uint]string{}}
}

func (m *MemoryJobStore) Save(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	return nil
}

func (m *MemoryJobStore) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	job, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return job, nil
}

func (m *MemoryJobStore) ClaimActive(_ context.Context, connectionID uint, jobID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.active[connectionID]; ok {
		return false, nil
	}
	m.active[connectionID] = jobID
	return true, nil
}

func (m *MemoryJobStore) Active(_ context.Context, connectionID uint) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.active[connectionID]
	return id, ok, nil
}

func (m *MemoryJobStore) ReleaseActive(_ context.Context, connectionID uint, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active[connectionID] == jobID {
		delete(m.active, connectionID)
	}
	return nil
}

// RedisJobStore keeps jobs as JSON values that expire after ttl.
type RedisJobStore struct {
	rdb *redis.Client
	ttl time.Duration
}

func NewRedisJobStore(rdb *redis.Client, ttl time.Duration) *RedisJobStore {
	return &RedisJobStore{rdb: rdb, ttl: ttl}
}

func jobKey(id string) string {
	return "sheetsync:job:" + id
}

func activeKey(connectionID uint) string {
	return "sheetsync:active:" + strconv.FormatUint(uint64(connectionID), 10)
}

func (r *RedisJobStore) Save(ctx context.Context, job Job) error {
	data, err := json.Marshal(job)
	if err != nil {
		return err
	}
	if err := r.rdb.Set(ctx, jobKey(job.ID), data, r.ttl).Err(); err != nil {
		return fmt.Errorf("save job %s: %w", job.ID, err)
	}
	return nil
}

func (r *RedisJobStore) Get(ctx context.Context, id string) (Job, error) {
	data, err := r.rdb.Get(ctx, jobKey(id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return Job{}, ErrJobNotFound
	}
	if err != nil {
		return Job{}, fmt.Errorf("get job %s: %w", id, err)
	}
	var job Job
	if err := json.Unmarshal(data, &job); err != nil {
		return Job{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	return job, nil
}

func (r *RedisJobStore) ClaimActive(ctx context.Context, connectionID uint, jobID string, ttl time.Duration) (bool, error) {
	return r.rdb.SetNX(ctx, activeKey(connectionID), jobID, ttl).Result()
}

func (r *RedisJobStore) Active(ctx context.Context, connectionID uint) (string, bool, error) {
	id, err := r.rdb.Get(ctx, activeKey(connectionID)).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return id, true, nil
}

var releaseActiveScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

func (r *RedisJobStore) ReleaseActive(ctx context.Context, connectionID uint, jobID string) error {
	return releaseActiveScript.Run(ctx, r.rdb, []string{activeKey(connectionID)}, jobID).Err()
}
