package queue

import (
	"context"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

func TestMemoryQueueFIFOAndEmpty(t *testing.T) {
	ctx := context.Background()
	q := NewMemory("http://x/a.mp4", "http://x/b.mp4")

	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://x/a.mp4", first.URL())

	second, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://x/b.mp4", second.URL())

	for i := 0; i < 3; i++ {
		_, err = q.Pop(ctx)
		assert.ErrorIs(t, err, ErrEmpty)
	}
}

func TestRedisListPopsFromRight(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	q := NewRedisList(rdb, "")

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	// 生产者 LPUSH，消费者 RPOP，整体是先进先出
	require.NoError(t, rdb.LPush(ctx, DefaultListKey, "http://x/a.mp4").Err())
	require.NoError(t, rdb.LPush(ctx, DefaultListKey, "http://x/b.mp4").Err())

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, []byte("http://x/a.mp4"), got.Body)
	assert.Empty(t, got.ID)

	got, err = q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://x/b.mp4", got.URL())

	_, err = q.Pop(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisListConnectionError(t *testing.T) {
	mr, rdb := newRedis(t)
	q := NewRedisList(rdb, "tasks")
	mr.Close()

	_, err := q.Pop(context.Background())
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrEmpty)
}

func TestRedisStreamPopAndAck(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	q := NewRedisStream(rdb, "download_tasks", "download-group", "worker-1")
	require.NoError(t, q.EnsureGroup(ctx))
	// 第二次创建遇到 BUSYGROUP，应视为成功
	require.NoError(t, q.EnsureGroup(ctx))

	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "download_tasks",
		Values: map[string]interface{}{"payload": "http://x/a.mp4"},
	}).Err())

	got, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://x/a.mp4", got.URL())
	assert.NotEmpty(t, got.ID)

	pending, err := rdb.XPending(ctx, "download_tasks", "download-group").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 1, pending.Count)

	require.NoError(t, q.Ack(ctx, got))
	pending, err = rdb.XPending(ctx, "download_tasks", "download-group").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}

func TestRedisStreamRedeliversPendingAfterRestart(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	q := NewRedisStream(rdb, "download_tasks", "download-group", "worker-1")
	require.NoError(t, q.EnsureGroup(ctx))

	for _, u := range []string{"http://x/a.mp4", "http://x/b.mp4"} {
		require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
			Stream: "download_tasks",
			Values: map[string]interface{}{"payload": u},
		}).Err())
	}

	// 取出后未确认就“崩溃”
	first, err := q.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://x/a.mp4", first.URL())

	restarted := NewRedisStream(rdb, "download_tasks", "download-group", "worker-1")
	require.NoError(t, restarted.EnsureGroup(ctx))

	again, err := restarted.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, first.ID, again.ID)
	assert.Equal(t, "http://x/a.mp4", again.URL())
	require.NoError(t, restarted.Ack(ctx, again))

	next, err := restarted.Pop(ctx)
	require.NoError(t, err)
	assert.Equal(t, "http://x/b.mp4", next.URL())
	require.NoError(t, restarted.Ack(ctx, next))

	_, err = restarted.Pop(ctx)
	assert.ErrorIs(t, err, ErrEmpty)

	pending, err := rdb.XPending(ctx, "download_tasks", "download-group").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}

func TestRedisStreamPendingIsPerConsumer(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	a := NewRedisStream(rdb, "s", "g", "worker-a")
	b := NewRedisStream(rdb, "s", "g", "worker-b")
	require.NoError(t, a.EnsureGroup(ctx))

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "s",
		Values: map[string]interface{}{"payload": "http://x/a.mp4"},
	}).Err())

	_, err := a.Pop(ctx)
	require.NoError(t, err)

	// 其他消费者看不到 worker-a 的 pending 消息
	_, err = b.Pop(ctx)
	assert.ErrorIs(t, err, ErrEmpty)
}

func TestRedisStreamSkipsMalformedMessage(t *testing.T) {
	ctx := context.Background()
	_, rdb := newRedis(t)
	q := NewRedisStream(rdb, "s", "g", "c")
	require.NoError(t, q.EnsureGroup(ctx))

	require.NoError(t, rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: "s",
		Values: map[string]interface{}{"other": "x"},
	}).Err())

	_, err := q.Pop(ctx)
	require.Error(t, err)

	pending, err := rdb.XPending(ctx, "s", "g").Result()
	require.NoError(t, err)
	assert.EqualValues(t, 0, pending.Count)
}
