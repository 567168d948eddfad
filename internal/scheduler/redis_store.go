package scheduler

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisStore persists jobs in a sorted set scored by fire time, with
// payloads in a companion hash. Jobs survive process restart, which the
// expiration contract requires.
type RedisStore struct {
	client *redis.Client
	prefix string
}

func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "sched"
	}
	return &RedisStore{client: client, prefix: prefix}
}

func (r *RedisStore) scheduleKey() string {
	return r.prefix + ":jobs"
}

func (r *RedisStore) payloadKey() string {
	return r.prefix + ":payloads"
}

func (r *RedisStore) Put(ctx context.Context, job Job) error {
	pipe := r.client.TxPipeline()
	pipe.ZAdd(ctx, r.scheduleKey(), redis.Z{
		Score:  float64(job.FireAt.UnixMilli()),
		Member: job.Key,
	})
	pipe.HSet(ctx, r.payloadKey(), job.Key, job.Payload)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("put job %s: %w", job.Key, err)
	}
	return nil
}

func (r *RedisStore) Remove(ctx context.Context, key string) (bool, error) {
	pipe := r.client.TxPipeline()
	zrem := pipe.ZRem(ctx, r.scheduleKey(), key)
	pipe.HDel(ctx, r.payloadKey(), key)
	if _, err := pipe.Exec(ctx); err != nil {
		return false, fmt.Errorf("remove job %s: %w", key, err)
	}
	return zrem.Val() > 0, nil
}

// removeAtScript deletes a job only while its score still matches the
// fire time the caller delivered, keeping a reschedule that landed
// between Due and removal alive.
var removeAtScript = redis.NewScript(`
local score = redis.call("ZSCORE", KEYS[1], ARGV[1])
if score and tonumber(score) == tonumber(ARGV[2]) then
	redis.call("ZREM", KEYS[1], ARGV[1])
	redis.call("HDEL", KEYS[2], ARGV[1])
	return 1
end
return 0`)

func (r *RedisStore) RemoveAt(ctx context.Context, key string, fireAt time.Time) (bool, error) {
	n, err := removeAtScript.Run(ctx, r.client,
		[]string{r.scheduleKey(), r.payloadKey()},
		key, fireAt.UnixMilli(),
	).Int()
	if err != nil {
		return false, fmt.Errorf("remove fired job %s: %w", key, err)
	}
	return n == 1, nil
}

func (r *RedisStore) Due(ctx context.Context, now time.Time, limit int) ([]Job, error) {
	entries, err := r.client.ZRangeByScoreWithScores(ctx, r.scheduleKey(), &redis.ZRangeBy{
		Min:   "-inf",
		Max:   strconv.FormatInt(now.UnixMilli(), 10),
		Count: int64(limit),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("list due jobs: %w", err)
	}
	if len(entries) == 0 {
		return nil, nil
	}

	keys := make([]string, 0, len(entries))
	for _, e := range entries {
		keys = append(keys, e.Member.(string))
	}
	payloads, err := r.client.HMGet(ctx, r.payloadKey(), keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("load job payloads: %w", err)
	}

	jobs := make([]Job, 0, len(entries))
	for i, e := range entries {
		job := Job{
			Key:    keys[i],
			FireAt: time.UnixMilli(int64(e.Score)).UTC(),
		}
		if s, ok := payloads[i].(string); ok {
			job.Payload = []byte(s)
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}
