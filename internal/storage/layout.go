// Package storage lays out downloaded media on the local filesystem.
//
// In-flight downloads live under <root>/<YYYY-MM-DD>/ (UTC) with a
// timestamp-based name. Completed files live directly under <root>, named by
// their content fingerprint. A content-addressed file is never overwritten.
package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	dirPerm  = 0o750
	filePerm = 0o640
)

// DefaultExt 是无法从 URL 推断扩展名时使用的扩展名
const DefaultExt = ".mp4"

var mediaExts = map[string]bool{
	".mp4": true, ".m4v": true, ".mov": true, ".webm": true, ".mkv": true, ".flv": true,
	".ts": true, ".avi": true, ".mp3": true, ".m4a": true, ".aac": true, ".wav": true,
	".jpg": true, ".jpeg": true, ".png": true, ".gif": true, ".webp": true,
}

// Layout 描述下载根目录下的文件布局
type Layout struct {
	Root string
	// Now 用于生成日期目录和临时文件名，测试中可以替换
	Now func() time.Time
	// Remove 用于删除已经链接到最终路径的临时文件，测试中可以替换
	Remove func(name string) error
}

func NewLayout(root string) *Layout {
	return &Layout{Root: root, Now: time.Now, Remove: os.Remove}
}

// CreateTemp 在当天的日期目录下创建一个新的临时文件。目录已存在不算错误。
func (l *Layout) CreateTemp(ext string) (*os.File, error) {
	now := l.Now().UTC()
	dir := filepath.Join(l.Root, now.Format("2006-01-02"))
	if err := os.MkdirAll(dir, dirPerm); err != nil {
		return nil, fmt.Errorf("create dir %s: %w", dir, err)
	}
	name := fmt.Sprintf("%d-%s%s", now.UnixNano(), uuid.NewString()[:8], ext)
	f, err := os.OpenFile(filepath.Join(dir, name), os.O_RDWR|os.O_CREATE|os.O_EXCL, filePerm)
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	return f, nil
}

// FinalPath 返回内容指纹对应的最终存储路径
func (l *Layout) FinalPath(fingerprint, ext string) string {
	return filepath.Join(l.Root, fingerprint+ext)
}

// Promote 把临时文件移动到最终路径，并保证不覆盖已存在的最终文件。
// 返回 created=false 表示最终文件早已存在，此时临时文件被删除。
// created=true 时最终文件一定已经就位，即使同时返回了删除临时文件的错误。
func (l *Layout) Promote(tempPath, finalPath string) (created bool, err error) {
	if err := os.MkdirAll(filepath.Dir(finalPath), dirPerm); err != nil {
		return false, fmt.Errorf("create dir: %w", err)
	}

	linkErr := os.Link(tempPath, finalPath)
	switch {
	case linkErr == nil:
		if err := l.Remove(tempPath); err != nil {
			return true, fmt.Errorf("remove temp file: %w", err)
		}
		return true, nil
	case errors.Is(linkErr, fs.ErrExist):
		return false, Discard(tempPath)
	}

	// 不支持硬链接的文件系统：先检查再 rename
	if _, err := os.Lstat(finalPath); err == nil {
		return false, Discard(tempPath)
	}
	if err := os.Rename(tempPath, finalPath); err != nil {
		return false, fmt.Errorf("rename %s: %w", tempPath, err)
	}
	return true, nil
}

// Discard 删除文件，文件不存在不算错误
func Discard(p string) error {
	if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}

// StoredFile 是根目录下的一个内容寻址文件
type StoredFile struct {
	Path        string `json:"path"`
	Fingerprint string `json:"fingerprint"`
	Ext         string `json:"ext"`
	Size        int64  `json:"size"`
}

// Scan 列出根目录下所有内容寻址文件，不进入日期目录。
// 只保留文件名主干是 digestLen 位小写十六进制的文件；digestLen <= 0 时不限长度。
func (l *Layout) Scan(digestLen int) ([]StoredFile, error) {
	entries, err := os.ReadDir(l.Root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	var out []StoredFile
	for _, e := range entries {
		if !e.Type().IsRegular() {
			continue
		}
		name := e.Name()
		ext := filepath.Ext(name)
		stem := strings.TrimSuffix(name, ext)
		if !isDigest(stem, digestLen) {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		out = append(out, StoredFile{
			Path:        filepath.Join(l.Root, name),
			Fingerprint: stem,
			Ext:         ext,
			Size:        info.Size(),
		})
	}
	return out, nil
}

func isDigest(s string, n int) bool {
	if s == "" || (n > 0 && len(s) != n) {
		return false
	}
	for _, c := range s {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

// ExtFromURL 从 URL 路径中取出已知的媒体扩展名，否则返回 def
func ExtFromURL(rawURL, def string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return def
	}
	ext := strings.ToLower(path.Ext(u.Path))
	if mediaExts[ext] {
		return ext
	}
	return def
}
