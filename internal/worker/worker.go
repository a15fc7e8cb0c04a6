// Package worker drives the fetch pipeline from the task queue, one task at a time.
package worker

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/Slade66/media-dedup-fetcher/internal/fetcher"
	"github.com/Slade66/media-dedup-fetcher/internal/logger"
	"github.com/Slade66/media-dedup-fetcher/internal/queue"
	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

// DefaultIdleInterval 是队列为空时两次轮询之间的等待时间
const DefaultIdleInterval = time.Second

// State 是 worker 的运行状态
type State int

const (
	Polling State = iota
	Processing
)

func (s State) String() string {
	if s == Processing {
		return "processing"
	}
	return "polling"
}

// Processor 处理单个任务并给出结果
type Processor interface {
	ProcessTask(ctx context.Context, t task.Task) fetcher.Result
}

// Reporter 在每个任务结束后收到结果，只用于观测，失败不影响 worker。
type Reporter interface {
	Report(ctx context.Context, res fetcher.Result) error
}

// Config 配置 worker 循环
type Config struct {
	IdleInterval time.Duration
	// MaxPolls 大于 0 时，轮询这么多次后 Run 返回；0 表示一直运行
	MaxPolls  int
	Reporters []Reporter
	Logger    *slog.Logger
}

// Stats 是 worker 的累计计数
type Stats struct {
	Polls      int
	Empty      int
	PopErrors  int
	ByOutcome  map[fetcher.Outcome]int
	Processing bool
}

// Worker 串行地从队列取任务并处理：一个任务完全结束后才取下一个。
type Worker struct {
	queue     queue.TaskQueue
	processor Processor
	cfg       Config
	logger    *slog.Logger
	sleep     func(ctx context.Context, d time.Duration) error

	mu    sync.Mutex
	state State
	stats Stats
}

func New(q queue.TaskQueue, p Processor, cfg Config) *Worker {
	if cfg.IdleInterval <= 0 {
		cfg.IdleInterval = DefaultIdleInterval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Worker{
		queue:     q,
		processor: p,
		cfg:       cfg,
		logger:    cfg.Logger.With(slog.String("component", "worker")),
		sleep:     sleepContext,
		stats:     Stats{ByOutcome: make(map[fetcher.Outcome]int)},
	}
}

// Run 运行轮询/处理状态机，直到 ctx 被取消或达到 MaxPolls。
// 已经开始的任务总会处理完再检查 ctx。
func (w *Worker) Run(ctx context.Context) error {
	w.logger.Info("worker started", slog.Duration("idle_interval", w.cfg.IdleInterval))
	for polls := 0; w.cfg.MaxPolls <= 0 || polls < w.cfg.MaxPolls; polls++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := w.poll(ctx); err != nil {
			return err
		}
	}
	return nil
}

// poll 执行一次 Polling 状态：取任务，有任务则进入 Processing，否则等待。
func (w *Worker) poll(ctx context.Context) error {
	t, err := w.queue.Pop(ctx)
	w.mu.Lock()
	w.stats.Polls++
	w.mu.Unlock()

	if err != nil {
		w.mu.Lock()
		if errors.Is(err, queue.ErrEmpty) {
			w.stats.Empty++
		} else {
			w.stats.PopErrors++
		}
		w.mu.Unlock()
		if !errors.Is(err, queue.ErrEmpty) {
			w.logger.Error("pop task failed", slog.Any("error", err))
		}
		return w.sleep(ctx, w.cfg.IdleInterval)
	}

	w.setState(Processing)
	w.process(ctx, t)
	w.setState(Polling)
	return nil
}

func (w *Worker) process(ctx context.Context, t task.Task) {
	// 任务一旦取出就执行完，不随 ctx 取消而中断
	ctx = context.WithoutCancel(ctx)
	log := w.logger.With(slog.String("task", t.URL()))
	if t.ID != "" {
		log = log.With(slog.String("message_id", t.ID))
	}
	res := w.processor.ProcessTask(logger.WithContext(ctx, log), t)

	w.mu.Lock()
	w.stats.ByOutcome[res.Outcome]++
	w.mu.Unlock()

	attrs := []any{
		slog.String("source_fp", res.SourceFingerprint),
		slog.String("outcome", res.Outcome.String()),
	}
	if res.ContentFingerprint != "" {
		attrs = append(attrs, slog.String("content_fp", res.ContentFingerprint))
	}
	if res.StoragePath != "" {
		attrs = append(attrs, slog.String("path", res.StoragePath))
	}
	if res.Err != nil {
		attrs = append(attrs, slog.String("kind", string(res.Err.Kind)), slog.Any("error", res.Err))
		log.Error("task failed", attrs...)
	} else {
		log.Info("task done", attrs...)
	}

	for _, r := range w.cfg.Reporters {
		if err := r.Report(ctx, res); err != nil {
			log.Warn("report task result failed", slog.Any("error", err))
		}
	}
	if acker, ok := w.queue.(queue.Acker); ok {
		if err := acker.Ack(ctx, t); err != nil {
			log.Error("ack task failed", slog.Any("error", err))
		}
	}
}

func (w *Worker) setState(s State) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.state = s
}

// State 返回当前状态
func (w *Worker) State() State {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.state
}

// Stats 返回计数的快照
func (w *Worker) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	out := w.stats
	out.Processing = w.state == Processing
	out.ByOutcome = make(map[fetcher.Outcome]int, len(w.stats.ByOutcome))
	for k, v := range w.stats.ByOutcome {
		out.ByOutcome[k] = v
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
