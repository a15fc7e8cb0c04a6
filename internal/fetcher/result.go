package fetcher

import (
	"fmt"

	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

// Outcome 是单个任务的最终处理结果
type Outcome int

const (
	Stored Outcome = iota
	SkippedDuplicateURL
	SkippedDuplicateContent
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Stored:
		return "stored"
	case SkippedDuplicateURL:
		return "skipped_duplicate_url"
	case SkippedDuplicateContent:
		return "skipped_duplicate_content"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// ErrorKind 对任务失败原因分类
type ErrorKind string

const (
	KindFetch      ErrorKind = "fetch"
	KindRead       ErrorKind = "read"
	KindCatalog    ErrorKind = "catalog"
	KindFilesystem ErrorKind = "filesystem"
)

// TaskError 是单个任务失败时携带的错误
type TaskError struct {
	Kind ErrorKind
	Op   string
	Err  error
}

func (e *TaskError) Error() string {
	return fmt.Sprintf("%s error: %s: %v", e.Kind, e.Op, e.Err)
}

func (e *TaskError) Unwrap() error { return e.Err }

// Result 描述一次 ProcessTask 调用
type Result struct {
	Task               task.Task
	Outcome            Outcome
	SourceFingerprint  string
	ContentFingerprint string
	// Stored 时为新文件路径；SkippedDuplicate* 时为已有记录的文件路径
	StoragePath string
	Bytes       int64
	// Orphan 为 true 表示文件已进入最终存储但目录记录没有写成功，需要人工补录
	Orphan bool
	Err    *TaskError
}

func failed(res Result, kind ErrorKind, op string, err error) Result {
	res.Outcome = Failed
	res.Err = &TaskError{Kind: kind, Op: op, Err: err}
	return res
}
