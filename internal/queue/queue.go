// Package queue 提供任务队列的消费端。生产者不在本服务内。
package queue

import (
	"context"
	"errors"
	"sync"

	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

// ErrEmpty 表示当前队列中没有任务。Pop 不会阻塞等待。
var ErrEmpty = errors.New("queue: empty")

// TaskQueue 是 worker 依赖的队列接口。投递语义为至少一次，
// 同一个任务可能被多次取出。
type TaskQueue interface {
	Pop(ctx context.Context) (task.Task, error)
}

// Acker 由需要显式确认的队列实现。worker 在任务处理结束后（无论成功与否）调用 Ack。
type Acker interface {
	Ack(ctx context.Context, t task.Task) error
}

// Memory 是进程内的 FIFO 队列，用于测试和一次性命令。
type Memory struct {
	mu    sync.Mutex
	tasks []task.Task
}

// NewMemory 创建队列并按顺序放入给定的任务
func NewMemory(bodies ...string) *Memory {
	m := &Memory{}
	for _, b := range bodies {
		m.Push(task.New([]byte(b)))
	}
	return m
}

func (m *Memory) Push(t task.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tasks = append(m.tasks, t)
}

func (m *Memory) Pop(context.Context) (task.Task, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.tasks) == 0 {
		return task.Task{}, ErrEmpty
	}
	t := m.tasks[0]
	m.tasks = m.tasks[1:]
	return t, nil
}

// Len 返回剩余任务数
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.tasks)
}
