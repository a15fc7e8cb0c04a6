// internal/observer/interfaces.go
package observer

// Observer 观察者接口，接收单次下载的进度通知。
// worker 是串行的，同一时间只有一个下载在通知观察者。
type Observer interface {
	// Start 在开始写入响应体之前调用，total 为 -1 表示服务器没有给出长度
	Start(url string, total int64)
	// Update 每读到一块数据调用一次，downloaded 是本次新增的字节数
	Update(downloaded int64)
	// Finish 在下载结束（成功或失败）后调用
	Finish(err error)
}

// Observable 被观察者（主题）接口
type Observable interface {
	AddObserver(o Observer)
	Notify(downloaded int64)
}
