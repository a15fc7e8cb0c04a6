package queue

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

// DefaultListKey 是生产者 LPUSH 任务的列表键名
const DefaultListKey = "douyinTask"

// RedisList 从 Redis 列表右端弹出任务（生产者从左端 LPUSH）。
// 弹出即消费，没有确认机制。
type RedisList struct {
	rdb *redis.Client
	key string
}

func NewRedisList(rdb *redis.Client, key string) *RedisList {
	if key == "" {
		key = DefaultListKey
	}
	return &RedisList{rdb: rdb, key: key}
}

func (q *RedisList) Pop(ctx context.Context) (task.Task, error) {
	body, err := q.rdb.RPop(ctx, q.key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return task.Task{}, ErrEmpty
		}
		return task.Task{}, fmt.Errorf("rpop %s: %w", q.key, err)
	}
	return task.New(body), nil
}

// RedisStream 通过消费者组读取 Redis Stream。每条消息的 "payload" 字段就是任务 URL。
// 消息在 Ack 之前一直处于 pending 状态，同名消费者重启后会先重新领取这些消息。
type RedisStream struct {
	rdb      *redis.Client
	stream   string
	group    string
	consumer string
}

func NewRedisStream(rdb *redis.Client, stream, group, consumer string) *RedisStream {
	return &RedisStream{rdb: rdb, stream: stream, group: group, consumer: consumer}
}

// EnsureGroup 确保消费者组存在，如果不存在则创建
func (q *RedisStream) EnsureGroup(ctx context.Context) error {
	err := q.rdb.XGroupCreateMkStream(ctx, q.stream, q.group, "0").Err()
	if err != nil && !strings.Contains(err.Error(), "BUSYGROUP") {
		return fmt.Errorf("create consumer group %s: %w", q.group, err)
	}
	return nil
}

// Pop 先取回本消费者名下尚未确认的消息（上次进程崩溃时留下的），没有再读取新消息
func (q *RedisStream) Pop(ctx context.Context) (task.Task, error) {
	msg, err := q.read(ctx, "0")
	if errors.Is(err, ErrEmpty) {
		msg, err = q.read(ctx, ">")
	}
	if err != nil {
		return task.Task{}, err
	}

	payload, ok := msg.Values["payload"].(string)
	if !ok {
		// 格式不对（或已被 XDEL）的消息直接确认掉，防止堵住队列
		q.rdb.XAck(ctx, q.stream, q.group, msg.ID)
		return task.Task{}, fmt.Errorf("message %s has no payload field", msg.ID)
	}
	return task.Task{ID: msg.ID, Body: []byte(payload)}, nil
}

// read 读取一条消息。id 为 ">" 时读新消息，为 "0" 时读本消费者的 pending 列表
func (q *RedisStream) read(ctx context.Context, id string) (redis.XMessage, error) {
	streams, err := q.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    q.group,
		Consumer: q.consumer,
		Streams:  []string{q.stream, id},
		Count:    1,
		Block:    -1, // 负数表示不带 BLOCK 参数，没有消息时立即返回
	}).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return redis.XMessage{}, ErrEmpty
		}
		return redis.XMessage{}, fmt.Errorf("xreadgroup %s: %w", q.stream, err)
	}
	if len(streams) == 0 || len(streams[0].Messages) == 0 {
		return redis.XMessage{}, ErrEmpty
	}
	return streams[0].Messages[0], nil
}

func (q *RedisStream) Ack(ctx context.Context, t task.Task) error {
	if t.ID == "" {
		return nil
	}
	return q.rdb.XAck(ctx, q.stream, q.group, t.ID).Err()
}
