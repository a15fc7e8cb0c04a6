package observer

import (
	"log/slog"
	"sync"
)

// ProgressLogObserver 把下载进度写成结构化日志。
// 已知总长度时每前进 step 百分比记一条，未知长度时每 byteStep 字节记一条。
type ProgressLogObserver struct {
	logger   *slog.Logger
	step     int
	byteStep int64

	mu       sync.Mutex
	url      string
	total    int64
	current  int64
	lastMark int64
}

// NewProgressLogObserver 创建一个新的进度日志观察者
func NewProgressLogObserver(logger *slog.Logger) *ProgressLogObserver {
	if logger == nil {
		logger = slog.Default()
	}
	return &ProgressLogObserver{
		logger:   logger,
		step:     25,
		byteStep: 16 << 20,
	}
}

func (p *ProgressLogObserver) Start(url string, total int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.url, p.total, p.current, p.lastMark = url, total, 0, 0
}

// Update 实现了 Observer 接口
func (p *ProgressLogObserver) Update(downloaded int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current += downloaded

	var mark int64
	if p.total > 0 {
		mark = p.current * 100 / p.total / int64(p.step)
	} else {
		mark = p.current / p.byteStep
	}
	if mark > p.lastMark {
		p.lastMark = mark
		p.logger.Debug("download progress",
			slog.String("url", p.url),
			slog.Int64("bytes", p.current),
			slog.Int64("total", p.total),
		)
	}
}

func (p *ProgressLogObserver) Finish(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if err != nil {
		p.logger.Debug("download aborted", slog.String("url", p.url), slog.Int64("bytes", p.current), slog.Any("error", err))
		return
	}
	p.logger.Debug("download finished", slog.String("url", p.url), slog.Int64("bytes", p.current))
}

// Current 返回当前下载已读取的字节数
func (p *ProgressLogObserver) Current() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Marks 返回当前下载已经记录过的进度刻度数
func (p *ProgressLogObserver) Marks() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastMark
}
