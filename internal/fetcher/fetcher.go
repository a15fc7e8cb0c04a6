// Package fetcher implements the fetch-and-store protocol: check the catalog
// by URL fingerprint, download into a temp file, fingerprint the content,
// then either discard the duplicate or promote the file and record it.
package fetcher

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync/atomic"

	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/fingerprint"
	"github.com/Slade66/media-dedup-fetcher/internal/logger"
	"github.com/Slade66/media-dedup-fetcher/internal/storage"
	"github.com/Slade66/media-dedup-fetcher/pkg/task"
)

// Downloader 把 url 对应的资源完整写入 w
type Downloader interface {
	Download(ctx context.Context, url string, w io.Writer) (int64, error)
}

// Mirror 在文件入库后额外上传一份副本，失败只记日志
type Mirror interface {
	UploadFile(objectKey, filePath string) error
}

// Options 是写入目录记录时使用的固定字段
type Options struct {
	Platform   int
	DefaultExt string
	Mirror     Mirror
}

// Processor 串行处理任务。除了成功入库计数外不在调用之间保存状态。
type Processor struct {
	catalog    catalog.Catalog
	downloader Downloader
	fp         *fingerprint.Computer
	layout     *storage.Layout
	mirror     Mirror
	platform   int
	defaultExt string

	stored atomic.Int64
}

func New(cat catalog.Catalog, dl Downloader, fp *fingerprint.Computer, layout *storage.Layout, opts Options) *Processor {
	if opts.DefaultExt == "" {
		opts.DefaultExt = storage.DefaultExt
	}
	return &Processor{
		catalog:    cat,
		downloader: dl,
		fp:         fp,
		layout:     layout,
		mirror:     opts.Mirror,
		platform:   opts.Platform,
		defaultExt: opts.DefaultExt,
	}
}

// Stored 返回本进程成功入库的文件数
func (p *Processor) Stored() int64 {
	return p.stored.Load()
}

// ProcessTask 处理一个任务直到得到最终结果。任何错误都体现在 Result 中，不会 panic 或中断 worker。
func (p *Processor) ProcessTask(ctx context.Context, t task.Task) Result {
	res := Result{Task: t, SourceFingerprint: p.fp.Bytes(t.Body)}
	url := t.URL()
	// worker 会把带有任务信息的 logger 放进 ctx
	log := logger.FromContext(ctx).With(slog.String("component", "fetcher"), slog.String("source_fp", res.SourceFingerprint))

	// 1. 按 URL 指纹判断是否已经下载过，命中则不发起网络请求
	existing, err := p.catalog.FindBySourceFingerprint(ctx, res.SourceFingerprint)
	switch {
	case err == nil:
		res.Outcome = SkippedDuplicateURL
		res.ContentFingerprint = existing.ContentFingerprint
		res.StoragePath = existing.StoragePath
		return res
	case !errors.Is(err, catalog.ErrNotFound):
		return failed(res, KindCatalog, "find by source fingerprint", err)
	}

	// 2. 下载到日期目录下的临时文件
	ext := storage.ExtFromURL(url, p.defaultExt)
	tmp, err := p.layout.CreateTemp(ext)
	if err != nil {
		return failed(res, KindFilesystem, "create temp file", err)
	}
	tempPath := tmp.Name()
	log.Debug("downloading", slog.String("temp", tempPath))

	res.Bytes, err = p.downloader.Download(ctx, url, tmp)
	closeErr := tmp.Close()
	if err != nil {
		p.discard(log, tempPath)
		return failed(res, KindFetch, "download", err)
	}
	if closeErr != nil {
		p.discard(log, tempPath)
		return failed(res, KindFilesystem, "close temp file", closeErr)
	}

	// 3. 计算文件内容指纹
	res.ContentFingerprint, err = p.fp.File(tempPath)
	if err != nil {
		p.discard(log, tempPath)
		return failed(res, KindRead, "fingerprint content", err)
	}
	log = log.With(slog.String("content_fp", res.ContentFingerprint))

	// 4. 相同内容已经入库：丢弃临时文件
	existing, err = p.catalog.FindByContentFingerprint(ctx, res.ContentFingerprint)
	switch {
	case err == nil:
		p.discard(log, tempPath)
		res.Outcome = SkippedDuplicateContent
		res.StoragePath = existing.StoragePath
		return res
	case !errors.Is(err, catalog.ErrNotFound):
		p.discard(log, tempPath)
		return failed(res, KindCatalog, "find by content fingerprint", err)
	}

	// 5. 移动到内容寻址路径，然后写入目录
	finalPath := p.layout.FinalPath(res.ContentFingerprint, ext)
	created, err := p.layout.Promote(tempPath, finalPath)
	if err != nil {
		if !created {
			p.discard(log, tempPath)
			return failed(res, KindFilesystem, "promote", err)
		}
		// 最终文件已经就位，只是临时文件没删掉，继续写入目录
		log.Warn("temp file left behind", slog.String("temp", tempPath), slog.Any("error", err))
	}

	rec, err := p.catalog.Insert(ctx, catalog.Record{
		Platform:           p.platform,
		Status:             0,
		Title:              "",
		SourceURL:          url,
		ContentFingerprint: res.ContentFingerprint,
		SourceFingerprint:  res.SourceFingerprint,
		StoragePath:        finalPath,
	})
	switch {
	case errors.Is(err, catalog.ErrDuplicateContent):
		// 另一个 worker 先插入了相同内容
		res.Outcome = SkippedDuplicateContent
		res.StoragePath = p.releasePromoted(ctx, log, created, res.ContentFingerprint, finalPath)
		return res
	case errors.Is(err, catalog.ErrDuplicateSource):
		// 另一个 worker 先完成了同一个 URL
		res.Outcome = SkippedDuplicateURL
		res.StoragePath = p.releasePromoted(ctx, log, created, res.ContentFingerprint, finalPath)
		return res
	case err != nil:
		res.StoragePath = finalPath
		res.Orphan = true
		log.Warn("file stored without catalog record", slog.String("path", finalPath), slog.Any("error", err))
		return failed(res, KindCatalog, "insert record", err)
	}

	res.Outcome = Stored
	res.StoragePath = rec.StoragePath
	count := p.stored.Add(1)
	log.Info("stored", slog.String("path", finalPath), slog.Int64("bytes", res.Bytes), slog.Int64("count", count))

	if p.mirror != nil {
		if err := p.mirror.UploadFile(filepath.Base(finalPath), finalPath); err != nil {
			log.Error("mirror upload failed", slog.String("path", finalPath), slog.Any("error", err))
		}
	}
	return res
}

// releasePromoted 在插入竞争失败后处理本次创建的最终文件：
// 如果目录里没有任何记录指向它就删除，返回应当报告的存储路径。
func (p *Processor) releasePromoted(ctx context.Context, log *slog.Logger, created bool, contentFP, finalPath string) string {
	winner, err := p.catalog.FindByContentFingerprint(ctx, contentFP)
	if err == nil && winner.StoragePath == finalPath {
		return finalPath
	}
	if err != nil && !errors.Is(err, catalog.ErrNotFound) {
		// 无法确认归属时保留文件，由 orphans 扫描发现
		log.Warn("cannot verify promoted file owner", slog.String("path", finalPath), slog.Any("error", err))
		return finalPath
	}
	if created {
		p.discard(log, finalPath)
	}
	if err == nil {
		return winner.StoragePath
	}
	return ""
}

func (p *Processor) discard(log *slog.Logger, path string) {
	if err := storage.Discard(path); err != nil {
		log.Error("remove file failed", slog.String("path", path), slog.Any("error", err))
	}
}
