// internal/client/client.go
package client

import (
	"net/http"
	"sync"
	"time"
)

// DefaultTimeout 是整个请求（含读取响应体）的上限，防止远端卡住时 worker 永久阻塞
const DefaultTimeout = 30 * time.Second

var (
	instance *http.Client
	once     sync.Once
)

// GetClient 返回使用默认超时的 http.Client 单例
func GetClient() *http.Client {
	once.Do(func() {
		instance = New(DefaultTimeout)
	})
	return instance
}

// New 创建一个带超时的 http.Client。timeout <= 0 时使用 DefaultTimeout。
func New(timeout time.Duration) *http.Client {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &http.Client{
		Timeout: timeout,
	}
}
