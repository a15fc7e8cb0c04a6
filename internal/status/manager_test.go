package status

import (
	"context"
	"errors"
	"sort"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Slade66/media-dedup-fetcher/internal/fetcher"
	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

func newManager(t *testing.T, ttl time.Duration) (*Manager, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	m := NewManager(rdb, ttl)
	m.now = func() time.Time { return time.Date(2026, 10, 19, 8, 0, 0, 0, time.UTC) }
	return m, mr
}

func TestReportOverwritesPreviousResult(t *testing.T) {
	ctx := context.Background()
	m, _ := newManager(t, 0)

	failedRes := fetcher.Result{
		Task:              task.New([]byte("http://x/a.mp4")),
		Outcome:           fetcher.Failed,
		SourceFingerprint: "src-a",
		Err:               &fetcher.TaskError{Kind: fetcher.KindFetch, Op: "download", Err: errors.New("timeout")},
	}
	require.NoError(t, m.Report(ctx, failedRes))

	got, ok, err := m.Get(ctx, "src-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "failed", got.Status)
	assert.Contains(t, got.Error, "timeout")

	stored := fetcher.Result{
		Task:               failedRes.Task,
		Outcome:            fetcher.Stored,
		SourceFingerprint:  "src-a",
		ContentFingerprint: "content-a",
		StoragePath:        "/root/douyin/content-a.mp4",
	}
	require.NoError(t, m.Report(ctx, stored))

	got, ok, err = m.Get(ctx, "src-a")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, StatusInfo{
		SourceFingerprint:  "src-a",
		URL:                "http://x/a.mp4",
		Status:             "stored",
		ContentFingerprint: "content-a",
		StoragePath:        "/root/douyin/content-a.mp4",
		FinishTime:         "2026-10-19T08:00:00Z",
	}, got)
}

func TestGetMissing(t *testing.T) {
	m, _ := newManager(t, 0)
	_, ok, err := m.Get(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestReportAppliesTTL(t *testing.T) {
	ctx := context.Background()
	m, mr := newManager(t, time.Hour)
	require.NoError(t, m.Report(ctx, fetcher.Result{
		Task:              task.New([]byte("http://x/a.mp4")),
		SourceFingerprint: "src-a",
		Orphan:            true,
	}))
	assert.Equal(t, time.Hour, mr.TTL(keyPrefix+"src-a"))

	got, _, err := m.Get(ctx, "src-a")
	require.NoError(t, err)
	assert.Equal(t, "true", got.Orphan)
}

func TestGetAllTasks(t *testing.T) {
	ctx := context.Background()
	m, mr := newManager(t, 0)
	for _, fp := range []string{"a", "b", "c"} {
		require.NoError(t, m.Report(ctx, fetcher.Result{
			Task:              task.New([]byte("http://x/" + fp)),
			Outcome:           fetcher.SkippedDuplicateURL,
			SourceFingerprint: fp,
		}))
	}
	mr.Set("unrelated", "x")

	tasks, err := m.GetAllTasks(ctx)
	require.NoError(t, err)
	require.Len(t, tasks, 3)
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].SourceFingerprint < tasks[j].SourceFingerprint })
	assert.Equal(t, "a", tasks[0].SourceFingerprint)
	assert.Equal(t, "skipped_duplicate_url", tasks[2].Status)
}
