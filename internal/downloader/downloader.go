// internal/downloader/downloader.go
package downloader

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/Slade66/media-dedup-fetcher/internal/client"
	"github.com/Slade66/media-dedup-fetcher/internal/observer"
)

// ErrUnexpectedStatus 表示服务器返回了非 2xx 状态码
var ErrUnexpectedStatus = errors.New("unexpected status code")

// countingReader 在每次读取后把读到的字节数报告给观察者
type countingReader struct {
	r          io.Reader
	onProgress func(int64)
}

func (cr *countingReader) Read(p []byte) (int, error) {
	n, err := cr.r.Read(p)
	if n > 0 {
		cr.onProgress(int64(n))
	}
	return n, err
}

// Downloader 以单个 GET 请求把远程资源流式写入本地
type Downloader struct {
	client    *http.Client
	observers []observer.Observer
	mu        sync.Mutex
}

// New 创建一个新的 Downloader 实例。httpClient 为 nil 时使用共享的默认客户端。
func New(httpClient *http.Client) *Downloader {
	if httpClient == nil {
		httpClient = client.GetClient()
	}
	return &Downloader{
		client:    httpClient,
		observers: make([]observer.Observer, 0),
	}
}

// AddObserver 实现了 Observable 接口，用于添加观察者
func (d *Downloader) AddObserver(o observer.Observer) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.observers = append(d.observers, o)
}

// Notify 实现了 Observable 接口，用于通知所有观察者
func (d *Downloader) Notify(downloaded int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, obs := range d.observers {
		obs.Update(downloaded)
	}
}

func (d *Downloader) start(url string, total int64) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, obs := range d.observers {
		obs.Start(url, total)
	}
}

func (d *Downloader) finish(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, obs := range d.observers {
		obs.Finish(err)
	}
}

// Download 请求 url 并把完整响应体写入 w，返回写入的字节数。
// 传输错误和非 2xx 状态码都作为错误返回；出错时 w 中可能已有部分数据，由调用方丢弃。
func (d *Downloader) Download(ctx context.Context, url string, w io.Writer) (int64, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return 0, fmt.Errorf("build request: %w", err)
	}

	resp, err := d.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return 0, fmt.Errorf("%w: %s", ErrUnexpectedStatus, resp.Status)
	}

	d.start(url, resp.ContentLength)
	n, err := io.Copy(w, &countingReader{r: resp.Body, onProgress: d.Notify})
	d.finish(err)
	if err != nil {
		return n, fmt.Errorf("read body: %w", err)
	}
	return n, nil
}
