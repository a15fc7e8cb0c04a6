// Package reconcile finds stored files that have no catalog record and lets an
// operator re-run the catalog insert for them. Nothing here runs automatically.
package reconcile

import (
	"context"
	"errors"
	"fmt"

	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/fingerprint"
	"github.com/Slade66/media-dedup-fetcher/internal/storage"
)

var (
	// ErrNotOrphan 表示文件已经有对应的目录记录
	ErrNotOrphan = errors.New("file already has a catalog record")
	// ErrFileNotFound 表示根目录下没有该指纹的文件
	ErrFileNotFound = errors.New("no stored file with that fingerprint")
	// ErrFingerprintMismatch 表示文件内容与文件名中的指纹不一致
	ErrFingerprintMismatch = errors.New("file content does not match its name")
)

// Orphan 是一个没有匹配目录记录的已存储文件
type Orphan struct {
	storage.StoredFile
	// RecordedPath 不为空时，目录中有相同内容的记录但指向另一个文件
	RecordedPath string `json:"recorded_path,omitempty"`
}

type Scanner struct {
	layout  *storage.Layout
	catalog catalog.Catalog
	fp      *fingerprint.Computer
}

func NewScanner(layout *storage.Layout, cat catalog.Catalog, fp *fingerprint.Computer) *Scanner {
	return &Scanner{layout: layout, catalog: cat, fp: fp}
}

// Orphans 列出根目录下所有没有对应记录的内容寻址文件
func (s *Scanner) Orphans(ctx context.Context) ([]Orphan, error) {
	files, err := s.layout.Scan(s.fp.HexLen())
	if err != nil {
		return nil, fmt.Errorf("scan %s: %w", s.layout.Root, err)
	}
	var out []Orphan
	for _, f := range files {
		rec, err := s.catalog.FindByContentFingerprint(ctx, f.Fingerprint)
		switch {
		case errors.Is(err, catalog.ErrNotFound):
			out = append(out, Orphan{StoredFile: f})
		case err != nil:
			return nil, fmt.Errorf("lookup %s: %w", f.Fingerprint, err)
		case rec.StoragePath != f.Path:
			out = append(out, Orphan{StoredFile: f, RecordedPath: rec.StoragePath})
		}
	}
	return out, nil
}

// Reinsert 为一个孤立文件补写目录记录。sourceURL 由操作者提供，
// 文件内容会重新计算指纹并与文件名核对。
func (s *Scanner) Reinsert(ctx context.Context, contentFP, sourceURL string, platform int) (catalog.Record, error) {
	files, err := s.layout.Scan(s.fp.HexLen())
	if err != nil {
		return catalog.Record{}, err
	}
	var target *storage.StoredFile
	for i := range files {
		if files[i].Fingerprint == contentFP {
			target = &files[i]
			break
		}
	}
	if target == nil {
		return catalog.Record{}, ErrFileNotFound
	}

	if _, err := s.catalog.FindByContentFingerprint(ctx, contentFP); err == nil {
		return catalog.Record{}, ErrNotOrphan
	} else if !errors.Is(err, catalog.ErrNotFound) {
		return catalog.Record{}, err
	}

	actual, err := s.fp.File(target.Path)
	if err != nil {
		return catalog.Record{}, err
	}
	if actual != contentFP {
		return catalog.Record{}, fmt.Errorf("%w: %s", ErrFingerprintMismatch, target.Path)
	}

	return s.catalog.Insert(ctx, catalog.Record{
		Platform:           platform,
		SourceURL:          sourceURL,
		ContentFingerprint: contentFP,
		SourceFingerprint:  s.fp.Bytes([]byte(sourceURL)),
		StoragePath:        target.Path,
	})
}
