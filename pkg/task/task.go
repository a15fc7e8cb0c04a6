package task

// Task 是从队列中取出的一个下载任务。
// Body 是任务的原始字节（语义上是一个媒体资源的 URL），去重指纹直接基于这些字节计算，
// 不做任何编码转换。
type Task struct {
	// 队列侧的回执 ID。列表队列没有回执，此字段为空；
	// Stream 队列用它在任务处理完后执行 ACK。
	ID string

	// 任务的原始字节
	Body []byte
}

// New 用原始字节创建一个没有回执 ID 的任务
func New(body []byte) Task {
	return Task{Body: body}
}

// URL 返回任务的文本形式，只用于发起请求、日志展示和写入目录。
func (t Task) URL() string {
	return string(t.Body)
}
