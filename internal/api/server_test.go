package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/fingerprint"
	"github.com/Slade66/media-dedup-fetcher/internal/reconcile"
	"github.com/Slade66/media-dedup-fetcher/internal/status"
	"github.com/Slade66/media-dedup-fetcher/internal/storage"
)

type fakeStatuses struct {
	tasks []status.StatusInfo
}

func (f *fakeStatuses) GetAllTasks(context.Context) ([]status.StatusInfo, error) {
	return f.tasks, nil
}

func (f *fakeStatuses) Get(_ context.Context, fp string) (status.StatusInfo, bool, error) {
	for _, t := range f.tasks {
		if t.SourceFingerprint == fp {
			return t, true, nil
		}
	}
	return status.StatusInfo{}, false, nil
}

type fixture struct {
	router *gin.Engine
	cat    *catalog.Memory
	layout *storage.Layout
	fp     *fingerprint.Computer
}

func newFixture(t *testing.T, statuses StatusStore) fixture {
	gin.SetMode(gin.TestMode)
	fp, err := fingerprint.New(fingerprint.MD5)
	require.NoError(t, err)
	layout := storage.NewLayout(t.TempDir())
	cat := catalog.NewMemory()
	srv := New(cat, reconcile.NewScanner(layout, cat, fp), statuses, 1)
	return fixture{router: srv.Router(), cat: cat, layout: layout, fp: fp}
}

func (f fixture) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func TestTasksEndpoints(t *testing.T) {
	f := newFixture(t, &fakeStatuses{tasks: []status.StatusInfo{{SourceFingerprint: "a", Status: "stored"}}})

	w := f.do(http.MethodGet, "/api/tasks", "")
	require.Equal(t, http.StatusOK, w.Code)
	var tasks []status.StatusInfo
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &tasks))
	assert.Len(t, tasks, 1)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/tasks/a", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/tasks/b", "").Code)
}

func TestTasksWithoutStatusStore(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/tasks", "").Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/healthz", "").Code)
}

func TestRecordLookup(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.cat.Insert(context.Background(), catalog.Record{
		SourceURL: "http://x/a.mp4", SourceFingerprint: "src", ContentFingerprint: "content", StoragePath: "/p",
	})
	require.NoError(t, err)

	w := f.do(http.MethodGet, "/api/records/content/content", "")
	require.Equal(t, http.StatusOK, w.Code)
	var rec catalog.Record
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rec))
	assert.Equal(t, "http://x/a.mp4", rec.SourceURL)

	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/api/records/source/src", "").Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodGet, "/api/records/source/other", "").Code)
}

func TestOrphanListAndReinsert(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodGet, "/api/orphans", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, "[]", w.Body.String())

	contentFP := f.fp.Bytes([]byte("B1"))
	require.NoError(t, os.WriteFile(f.layout.FinalPath(contentFP, ".mp4"), []byte("B1"), 0o640))

	w = f.do(http.MethodGet, "/api/orphans", "")
	require.Equal(t, http.StatusOK, w.Code)
	var orphans []reconcile.Orphan
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &orphans))
	require.Len(t, orphans, 1)
	assert.Equal(t, contentFP, orphans[0].Fingerprint)

	assert.Equal(t, http.StatusBadRequest, f.do(http.MethodPost, "/api/orphans/"+contentFP, `{}`).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPost, "/api/orphans/missing", `{"url":"http://x/a.mp4"}`).Code)

	w = f.do(http.MethodPost, "/api/orphans/"+contentFP, `{"url":"http://x/a.mp4","platform":2}`)
	require.Equal(t, http.StatusCreated, w.Code)
	recs := f.cat.All()
	require.Len(t, recs, 1)
	assert.Equal(t, 2, recs[0].Platform)

	assert.Equal(t, http.StatusConflict, f.do(http.MethodPost, "/api/orphans/"+contentFP, `{"url":"http://x/a.mp4"}`).Code)
}
