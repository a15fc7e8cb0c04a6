// Package api exposes a small operator HTTP API: recent task results, catalog
// lookups, and orphaned-file listing/re-insertion.
package api

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/reconcile"
	"github.com/Slade66/media-dedup-fetcher/internal/status"
)

// StatusStore 是任务结果的只读视图
type StatusStore interface {
	GetAllTasks(ctx context.Context) ([]status.StatusInfo, error)
	Get(ctx context.Context, sourceFP string) (status.StatusInfo, bool, error)
}

type Server struct {
	catalog  catalog.Catalog
	scanner  *reconcile.Scanner
	statuses StatusStore
	platform int
}

// New 创建 API 服务。statuses 为 nil 时任务状态接口返回 503。
func New(cat catalog.Catalog, scanner *reconcile.Scanner, statuses StatusStore, platform int) *Server {
	return &Server{catalog: cat, scanner: scanner, statuses: statuses, platform: platform}
}

// Router 注册所有路由
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) { c.JSON(http.StatusOK, gin.H{"status": "ok"}) })

	api := router.Group("/api")
	{
		api.GET("/tasks", s.getTasksHandler)
		api.GET("/tasks/:source_fp", s.getTaskHandler)
		api.GET("/records/source/:fp", s.getRecordHandler(s.catalog.FindBySourceFingerprint))
		api.GET("/records/content/:fp", s.getRecordHandler(s.catalog.FindByContentFingerprint))
		api.GET("/orphans", s.getOrphansHandler)
		api.POST("/orphans/:fp", s.reinsertHandler)
	}
	return router
}

func (s *Server) getTasksHandler(c *gin.Context) {
	if s.statuses == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task status store not configured"})
		return
	}
	tasks, err := s.statuses.GetAllTasks(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "无法从 Redis 获取任务列表: " + err.Error()})
		return
	}
	c.JSON(http.StatusOK, tasks)
}

func (s *Server) getTaskHandler(c *gin.Context) {
	if s.statuses == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "task status store not configured"})
		return
	}
	info, ok, err := s.statuses.Get(c.Request.Context(), c.Param("source_fp"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "task not found"})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) getRecordHandler(find func(context.Context, string) (catalog.Record, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		rec, err := find(c.Request.Context(), c.Param("fp"))
		if err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, rec)
	}
}

func (s *Server) getOrphansHandler(c *gin.Context) {
	orphans, err := s.scanner.Orphans(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	if orphans == nil {
		orphans = []reconcile.Orphan{}
	}
	c.JSON(http.StatusOK, orphans)
}

func (s *Server) reinsertHandler(c *gin.Context) {
	var request struct {
		URL      string `json:"url" binding:"required"`
		Platform *int   `json:"platform"`
	}
	if err := c.ShouldBindJSON(&request); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "无效的请求: " + err.Error()})
		return
	}
	platform := s.platform
	if request.Platform != nil {
		platform = *request.Platform
	}

	rec, err := s.scanner.Reinsert(c.Request.Context(), c.Param("fp"), request.URL, platform)
	switch {
	case err == nil:
		c.JSON(http.StatusCreated, rec)
	case errors.Is(err, reconcile.ErrFileNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrNotOrphan),
		errors.Is(err, catalog.ErrDuplicateContent),
		errors.Is(err, catalog.ErrDuplicateSource):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, reconcile.ErrFingerprintMismatch):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
	}
}
