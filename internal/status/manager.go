package status

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Slade66/media-dedup-fetcher/internal/fetcher"
)

const keyPrefix = "task:status:"

// StatusInfo 定义了任务处理结果的详细信息，用于JSON序列化
type StatusInfo struct {
	SourceFingerprint  string `json:"source_fp"`
	URL                string `json:"url"`
	Status             string `json:"status"`
	ContentFingerprint string `json:"content_fp,omitempty"`
	StoragePath        string `json:"storage_path,omitempty"`
	Orphan             string `json:"orphan,omitempty"`
	FinishTime         string `json:"finish_time"`
	Error              string `json:"error,omitempty"`
}

// Manager 结构体封装了与Redis的交互。记录按 URL 指纹存放，同一个 URL 只保留最近一次结果。
type Manager struct {
	rdb *redis.Client
	ttl time.Duration
	now func() time.Time
}

// NewManager 创建一个新的状态管理器实例。ttl 为 0 表示记录不过期。
func NewManager(rdb *redis.Client, ttl time.Duration) *Manager {
	return &Manager{rdb: rdb, ttl: ttl, now: time.Now}
}

// taskKey 返回一个任务状态在Redis中的键名
func (m *Manager) taskKey(sourceFP string) string {
	return keyPrefix + sourceFP
}

// Report 写入一个任务的处理结果，实现 worker.Reporter
func (m *Manager) Report(ctx context.Context, res fetcher.Result) error {
	info := StatusInfo{
		SourceFingerprint:  res.SourceFingerprint,
		URL:                res.Task.URL(),
		Status:             res.Outcome.String(),
		ContentFingerprint: res.ContentFingerprint,
		StoragePath:        res.StoragePath,
		FinishTime:         m.now().UTC().Format(time.RFC3339),
	}
	if res.Orphan {
		info.Orphan = "true"
	}
	if res.Err != nil {
		info.Error = res.Err.Error()
	}

	statusMap, err := structToMap(info)
	if err != nil {
		return err
	}
	key := m.taskKey(res.SourceFingerprint)
	pipe := m.rdb.TxPipeline()
	// 先删除旧记录，避免上一次失败的 error 字段残留
	pipe.Del(ctx, key)
	pipe.HSet(ctx, key, statusMap)
	if m.ttl > 0 {
		pipe.Expire(ctx, key, m.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("write status %s: %w", key, err)
	}
	return nil
}

// Get 返回一个 URL 指纹对应的最近结果
func (m *Manager) Get(ctx context.Context, sourceFP string) (StatusInfo, bool, error) {
	data, err := m.rdb.HGetAll(ctx, m.taskKey(sourceFP)).Result()
	if err != nil {
		return StatusInfo{}, false, err
	}
	if len(data) == 0 {
		return StatusInfo{}, false, nil
	}
	return fromMap(data), true, nil
}

// GetAllTasks 获取所有任务的状态信息
func (m *Manager) GetAllTasks(ctx context.Context) ([]StatusInfo, error) {
	tasks := make([]StatusInfo, 0)
	iter := m.rdb.Scan(ctx, 0, keyPrefix+"*", 100).Iterator()
	for iter.Next(ctx) {
		data, err := m.rdb.HGetAll(ctx, iter.Val()).Result()
		if err != nil {
			// 如果某个键读取失败，跳过它继续处理其他的
			continue
		}
		if len(data) > 0 {
			tasks = append(tasks, fromMap(data))
		}
	}
	if err := iter.Err(); err != nil {
		return nil, err
	}
	return tasks, nil
}

func fromMap(data map[string]string) StatusInfo {
	return StatusInfo{
		SourceFingerprint:  data["source_fp"],
		URL:                data["url"],
		Status:             data["status"],
		ContentFingerprint: data["content_fp"],
		StoragePath:        data["storage_path"],
		Orphan:             data["orphan"],
		FinishTime:         data["finish_time"],
		Error:              data["error"],
	}
}

// structToMap 是一个辅助函数，用于将结构体转换为 map
func structToMap(s StatusInfo) (map[string]interface{}, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, err
	}
	var resultMap map[string]interface{}
	if err := json.Unmarshal(data, &resultMap); err != nil {
		return nil, err
	}
	// 删除空的字段，避免在 Redis 中存储空值
	for k, v := range resultMap {
		if vs, ok := v.(string); ok && vs == "" {
			delete(resultMap, k)
		}
	}
	return resultMap, nil
}
