package storage

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"quicktask/domain"
)

type backend interface {
	ListTasks(ctx context.Context, ownerID string, c domain.Criteria) ([]domain.Task, error)
	GetTask(ctx context.Context, ownerID, id string) (domain.Task, error)
	InsertTask(ctx context.Context, t domain.Task) error
	ReplaceTask(ctx context.Context, t domain.Task) error
	DeleteTask(ctx context.Context, ownerID, id string) error
}

// fillTimeout bounds a shared backend read on a cache miss. The read outlives
// the caller that started it, since other callers may be waiting on it.
const fillTimeout = 10 * time.Second

// Cache wraps a backend with a Redis read cache for task listings. Each owner
// has one hash whose fields are the pushed down filters; any write to the
// owner's tasks drops the whole hash and bumps the owner's generation. A
// listing is only cached if the generation it was read under is still
// current.
type Cache struct {
	base  backend
	redis *redis.Client
	ttl   time.Duration
	group singleflight.Group
}

// NewCache creates a caching wrapper using the provided Redis client and TTL.
func NewCache(base backend, client *redis.Client, ttl time.Duration) *Cache {
	if base == nil {
		panic("storage.NewCache: base storage is nil")
	}
	if ttl < 0 {
		ttl = 0
	}
	return &Cache{base: base, redis: client, ttl: ttl}
}

func (c *Cache) ListTasks(ctx context.Context, ownerID string, cr domain.Criteria) ([]domain.Task, error) {
	field := cacheField(cr)
	if tasks, ok := c.loadTasks(ctx, ownerID, field); ok {
		return tasks, nil
	}

	gen, genOK := c.generation(ctx, ownerID)
	key := tasksCacheKey(ownerID) + "|" + field + "|" + strconv.FormatInt(gen, 10)
	ch := c.group.DoChan(key, func() (any, error) {
		fillCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), fillTimeout)
		defer cancel()
		tasks, err := c.base.ListTasks(fillCtx, ownerID, cr)
		if err != nil {
			return nil, err
		}
		if genOK {
			c.storeTasks(fillCtx, ownerID, field, gen, tasks)
		}
		return tasks, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return append([]domain.Task(nil), res.Val.([]domain.Task)...), nil
	}
}

func (c *Cache) GetTask(ctx context.Context, ownerID, id string) (domain.Task, error) {
	return c.base.GetTask(ctx, ownerID, id)
}

func (c *Cache) InsertTask(ctx context.Context, t domain.Task) error {
	if err := c.base.InsertTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.OwnerID)
	return nil
}

func (c *Cache) ReplaceTask(ctx context.Context, t domain.Task) error {
	if err := c.base.ReplaceTask(ctx, t); err != nil {
		return err
	}
	c.evict(ctx, t.OwnerID)
	return nil
}

func (c *Cache) DeleteTask(ctx context.Context, ownerID, id string) error {
	if err := c.base.DeleteTask(ctx, ownerID, id); err != nil {
		return err
	}
	c.evict(ctx, ownerID)
	return nil
}

func (c *Cache) loadTasks(ctx context.Context, ownerID, field string) ([]domain.Task, bool) {
	if c.redis == nil {
		return nil, false
	}
	data, err := c.redis.HGet(ctx, tasksCacheKey(ownerID), field).Bytes()
	if err != nil {
		if !errors.Is(err, redis.Nil) {
			// On redis errors fall back to the backing storage without failing.
			_ = c.redis.Del(ctx, tasksCacheKey(ownerID)).Err()
		}
		return nil, false
	}
	var tasks []domain.Task
	if err := json.Unmarshal(data, &tasks); err != nil {
		_ = c.redis.HDel(ctx, tasksCacheKey(ownerID), field).Err()
		return nil, false
	}
	return tasks, true
}

// generation returns the owner's write generation. ok is false when Redis
// cannot answer, in which case nothing should be cached.
func (c *Cache) generation(ctx context.Context, ownerID string) (int64, bool) {
	if c.redis == nil {
		return 0, false
	}
	gen, err := c.redis.Get(ctx, generationKey(ownerID)).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, true
	}
	if err != nil {
		return 0, false
	}
	return gen, true
}

// storeTasks caches tasks read under gen. The write is dropped if an eviction
// bumped the generation in the meantime.
func (c *Cache) storeTasks(ctx context.Context, ownerID, field string, gen int64, tasks []domain.Task) {
	if c.redis == nil || c.ttl == 0 {
		return
	}
	data, err := json.Marshal(tasks)
	if err != nil {
		return
	}
	key, genKey := tasksCacheKey(ownerID), generationKey(ownerID)
	_ = c.redis.Watch(ctx, func(tx *redis.Tx) error {
		cur, err := tx.Get(ctx, genKey).Int64()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}
		if cur != gen {
			return nil
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, key, field, data)
			pipe.Expire(ctx, key, c.ttl)
			return nil
		})
		return err
	}, genKey)
}

// evict runs even if the caller is gone; the backend write already happened.
func (c *Cache) evict(ctx context.Context, ownerID string) {
	if c.redis == nil {
		return
	}
	ctx = context.WithoutCancel(ctx)
	pipe := c.redis.TxPipeline()
	pipe.Incr(ctx, generationKey(ownerID))
	pipe.Del(ctx, tasksCacheKey(ownerID))
	_, _ = pipe.Exec(ctx)
}

func tasksCacheKey(ownerID string) string {
	return "tasks:" + ownerID
}

func generationKey(ownerID string) string {
	return "tasks-gen:" + ownerID
}

func cacheField(c domain.Criteria) string {
	s, _ := c.StatusFilter()
	p, _ := c.PriorityFilter()
	return "status=" + string(s) + "|priority=" + string(p)
}
