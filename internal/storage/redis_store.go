package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/prassanna-ravishankar/torale/internal/task"
)

const (
	// Redis key prefixes
	taskKeyPrefix     = "torale:task:"
	execKeyPrefix     = "torale:exec:"
	execIndexPrefix   = "torale:index:exec:"
	ownerIndexPrefix  = "torale:index:owner:"
	lockKeyPrefix     = "torale:lock:"
	scheduleKey       = "torale:schedule"
	liveExecutionsKey = "torale:live"
)

// acquireScript creates the pending execution iff the task holds no live
// execution. The lock key doubles as the at-most-one-in-flight marker and
// is a compare-and-set against persisted state, so it holds across
// multiple process instances.
var acquireScript = redis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 1 then
  return 0
end
redis.call('SET', KEYS[1], ARGV[1])
redis.call('SET', KEYS[2], ARGV[2])
redis.call('ZADD', KEYS[3], ARGV[3], ARGV[1])
redis.call('SADD', KEYS[4], ARGV[1])
return 1
`)

// completeScript writes the terminal execution and the mutated task row in
// one atomic step, releases the lock (only if this execution still holds
// it), and syncs the schedule index. ARGV[5] carries the next-run score or
// an empty string when the task leaves the schedule.
//
// The task write is a compare-and-set: ARGV[6] is the row as the caller
// read it. A concurrent pause or resume makes the compare fail (return 0,
// nothing of the task is touched); a concurrent delete leaves the row
// missing (return -1, the task is not recreated and its schedule entry is
// cleared). The execution record and lock release land in every branch so
// the audit trail survives the losing side of the race.
var completeScript = redis.NewScript(`
if redis.call('GET', KEYS[1]) == ARGV[1] then
  redis.call('DEL', KEYS[1])
end
redis.call('SET', KEYS[2], ARGV[2])
redis.call('SREM', KEYS[3], ARGV[1])
local cur = redis.call('GET', KEYS[4])
if cur == false then
  redis.call('ZREM', KEYS[5], ARGV[4])
  return -1
end
if cur ~= ARGV[6] then
  return 0
end
redis.call('SET', KEYS[4], ARGV[3])
if ARGV[5] == '' then
  redis.call('ZREM', KEYS[5], ARGV[4])
else
  redis.call('ZADD', KEYS[5], ARGV[5], ARGV[4])
end
return 1
`)

// RedisStore implements Store using Redis
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed store from an existing client
func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// NewRedisClient creates a Redis client with connection pooling and
// verifies connectivity
func NewRedisClient(addr, password string, db, poolSize int) (*redis.Client, error) {
	if addr == "" {
		return nil, fmt.Errorf("redis address cannot be empty")
	}

	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		Password:     password,
		DB:           db,
		PoolSize:     poolSize,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return client, nil
}

// CreateTask persists a new task and indexes its schedule
func (rs *RedisStore) CreateTask(ctx context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("invalid task")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+t.ID, data, 0)
	pipe.SAdd(ctx, ownerIndexPrefix+t.OwnerID, t.ID)
	if t.NextRunAt != nil {
		pipe.ZAdd(ctx, scheduleKey, redis.Z{Score: scoreMs(*t.NextRunAt), Member: t.ID})
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to create task: %w", err)
	}
	return nil
}

// GetTask retrieves a task by ID
func (rs *RedisStore) GetTask(ctx context.Context, taskID string) (*task.Task, error) {
	if taskID == "" {
		return nil, fmt.Errorf("task ID cannot be empty")
	}

	data, err := rs.client.Get(ctx, taskKeyPrefix+taskID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get task: %w", err)
	}

	var t task.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return nil, fmt.Errorf("failed to unmarshal task: %w", err)
	}
	return &t, nil
}

// UpdateTask persists the task row and keeps the due-time index in sync
func (rs *RedisStore) UpdateTask(ctx context.Context, t *task.Task) error {
	if t == nil || t.ID == "" {
		return fmt.Errorf("invalid task")
	}

	data, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}

	pipe := rs.client.TxPipeline()
	pipe.Set(ctx, taskKeyPrefix+t.ID, data, 0)
	if t.NextRunAt != nil {
		pipe.ZAdd(ctx, scheduleKey, redis.Z{Score: scoreMs(*t.NextRunAt), Member: t.ID})
	} else {
		pipe.ZRem(ctx, scheduleKey, t.ID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to update task: %w", err)
	}
	return nil
}

// DeleteTask removes the task, its schedule entry, and its execution log
func (rs *RedisStore) DeleteTask(ctx context.Context, taskID string) error {
	t, err := rs.GetTask(ctx, taskID)
	if err != nil {
		return err
	}

	execIDs, err := rs.client.ZRange(ctx, execIndexPrefix+taskID, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("failed to list executions for delete: %w", err)
	}

	pipe := rs.client.TxPipeline()
	for _, execID := range execIDs {
		pipe.Del(ctx, execKeyPrefix+execID)
		pipe.SRem(ctx, liveExecutionsKey, execID)
	}
	pipe.Del(ctx, execIndexPrefix+taskID)
	pipe.Del(ctx, lockKeyPrefix+taskID)
	pipe.ZRem(ctx, scheduleKey, taskID)
	pipe.SRem(ctx, ownerIndexPrefix+t.OwnerID, taskID)
	pipe.Del(ctx, taskKeyPrefix+taskID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to delete task: %w", err)
	}
	return nil
}

// ListTasks returns all tasks for an owner
func (rs *RedisStore) ListTasks(ctx context.Context, ownerID string) ([]*task.Task, error) {
	taskIDs, err := rs.client.SMembers(ctx, ownerIndexPrefix+ownerID).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list tasks: %w", err)
	}

	tasks := make([]*task.Task, 0, len(taskIDs))
	for _, id := range taskIDs {
		t, err := rs.GetTask(ctx, id)
		if err != nil {
			// Index entries can outlive rows briefly; skip them
			continue
		}
		tasks = append(tasks, t)
	}
	return tasks, nil
}

// DueTaskIDs returns IDs of tasks due at or before now, oldest first
func (rs *RedisStore) DueTaskIDs(ctx context.Context, now time.Time, limit int) ([]string, error) {
	ids, err := rs.client.ZRangeByScore(ctx, scheduleKey, &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatFloat(scoreMs(now), 'f', -1, 64),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to query due tasks: %w", err)
	}
	return ids, nil
}

// AcquireExecution atomically creates the pending execution iff the task
// holds no live execution
func (rs *RedisStore) AcquireExecution(ctx context.Context, e *task.Execution) error {
	if e == nil || e.ID == "" || e.TaskID == "" {
		return fmt.Errorf("invalid execution")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}

	keys := []string{
		lockKeyPrefix + e.TaskID,
		execKeyPrefix + e.ID,
		execIndexPrefix + e.TaskID,
		liveExecutionsKey,
	}
	res, err := acquireScript.Run(ctx, rs.client, keys,
		e.ID, data, scoreMs(e.CreatedAt)).Int()
	if err != nil {
		return fmt.Errorf("failed to acquire execution: %w", err)
	}
	if res == 0 {
		return fmt.Errorf("task %s: %w", e.TaskID, ErrAlreadyRunning)
	}
	return nil
}

// UpdateExecution persists a non-terminal execution state change
func (rs *RedisStore) UpdateExecution(ctx context.Context, e *task.Execution) error {
	if e == nil || e.ID == "" {
		return fmt.Errorf("invalid execution")
	}

	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	if err := rs.client.Set(ctx, execKeyPrefix+e.ID, data, 0).Err(); err != nil {
		return fmt.Errorf("failed to update execution: %w", err)
	}
	return nil
}

// GetExecution retrieves an execution by ID
func (rs *RedisStore) GetExecution(ctx context.Context, execID string) (*task.Execution, error) {
	if execID == "" {
		return nil, fmt.Errorf("execution ID cannot be empty")
	}

	data, err := rs.client.Get(ctx, execKeyPrefix+execID).Result()
	if err == redis.Nil {
		return nil, fmt.Errorf("%w: %s", ErrExecutionNotFound, execID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get execution: %w", err)
	}

	var e task.Execution
	if err := json.Unmarshal([]byte(data), &e); err != nil {
		return nil, fmt.Errorf("failed to unmarshal execution: %w", err)
	}
	return &e, nil
}

// ListExecutions returns a task's executions, newest first
func (rs *RedisStore) ListExecutions(ctx context.Context, taskID string, f ExecutionFilter) ([]*task.Execution, error) {
	execIDs, err := rs.client.ZRevRange(ctx, execIndexPrefix+taskID, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list executions: %w", err)
	}

	execs := make([]*task.Execution, 0, len(execIDs))
	for _, id := range execIDs {
		e, err := rs.GetExecution(ctx, id)
		if err != nil {
			continue
		}
		if f.Status != "" && e.Status != f.Status {
			continue
		}
		execs = append(execs, e)
		if f.Limit > 0 && len(execs) >= f.Limit {
			break
		}
	}
	return execs, nil
}

// LiveExecutions returns all non-terminal executions
func (rs *RedisStore) LiveExecutions(ctx context.Context) ([]*task.Execution, error) {
	execIDs, err := rs.client.SMembers(ctx, liveExecutionsKey).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list live executions: %w", err)
	}

	execs := make([]*task.Execution, 0, len(execIDs))
	for _, id := range execIDs {
		e, err := rs.GetExecution(ctx, id)
		if err != nil {
			continue
		}
		execs = append(execs, e)
	}
	return execs, nil
}

// CompleteExecution atomically writes the terminal execution and mutated
// task, releases the lock, and syncs the schedule index. The task write
// only lands when the stored row still matches prior; otherwise the
// execution and lock release are persisted and ErrTaskConflict or
// ErrTaskNotFound reports who won the race.
func (rs *RedisStore) CompleteExecution(ctx context.Context, prior, t *task.Task, e *task.Execution) error {
	if prior == nil || t == nil || e == nil || t.ID != e.TaskID || prior.ID != t.ID {
		return fmt.Errorf("task and execution do not match")
	}
	if !e.IsTerminal() {
		return fmt.Errorf("execution %s is not terminal", e.ID)
	}

	execData, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal execution: %w", err)
	}
	taskData, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("failed to marshal task: %w", err)
	}
	priorData, err := json.Marshal(prior)
	if err != nil {
		return fmt.Errorf("failed to marshal task snapshot: %w", err)
	}

	nextScore := ""
	if t.NextRunAt != nil {
		nextScore = strconv.FormatFloat(scoreMs(*t.NextRunAt), 'f', -1, 64)
	}

	keys := []string{
		lockKeyPrefix + t.ID,
		execKeyPrefix + e.ID,
		liveExecutionsKey,
		taskKeyPrefix + t.ID,
		scheduleKey,
	}
	res, err := completeScript.Run(ctx, rs.client, keys,
		e.ID, execData, taskData, t.ID, nextScore, priorData).Int()
	if err != nil {
		return fmt.Errorf("failed to complete execution: %w", err)
	}
	switch res {
	case -1:
		return fmt.Errorf("complete execution %s: %w", e.ID, ErrTaskNotFound)
	case 0:
		return fmt.Errorf("complete execution %s: %w", e.ID, ErrTaskConflict)
	}
	return nil
}

// Close closes the Redis connection
func (rs *RedisStore) Close() error {
	return rs.client.Close()
}

func scoreMs(t time.Time) float64 {
	return float64(t.UnixMilli())
}
