package reconcile

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Slade66/media-dedup-fetcher/internal/catalog"
	"github.com/Slade66/media-dedup-fetcher/internal/fingerprint"
	"github.com/Slade66/media-dedup-fetcher/internal/storage"
)

type fixture struct {
	scanner *Scanner
	layout  *storage.Layout
	cat     *catalog.Memory
	fp      *fingerprint.Computer
}

func newFixture(t *testing.T) fixture {
	fp, err := fingerprint.New(fingerprint.MD5)
	require.NoError(t, err)
	layout := storage.NewLayout(t.TempDir())
	cat := catalog.NewMemory()
	return fixture{scanner: NewScanner(layout, cat, fp), layout: layout, cat: cat, fp: fp}
}

// store 写入一个内容寻址文件并返回其指纹
func (f fixture) store(t *testing.T, content, ext string) (string, string) {
	fp := f.fp.Bytes([]byte(content))
	path := f.layout.FinalPath(fp, ext)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o640))
	return fp, path
}

func TestOrphansListsFilesWithoutRecords(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	recordedFP, recordedPath := f.store(t, "B1", ".mp4")
	_, err := f.cat.Insert(ctx, catalog.Record{
		SourceURL: "http://x/a.mp4", SourceFingerprint: "src-a",
		ContentFingerprint: recordedFP, StoragePath: recordedPath,
	})
	require.NoError(t, err)
	orphanFP, _ := f.store(t, "B2", ".mp4")
	// 相同内容、不同扩展名的副本
	_, copyPath := f.store(t, "B1", ".webm")
	// 不是内容寻址的文件不参与比对
	require.NoError(t, os.WriteFile(filepath.Join(f.layout.Root, "README.txt"), []byte("x"), 0o640))
	require.NoError(t, os.WriteFile(f.layout.FinalPath("deadbeef", ".mp4"), []byte("x"), 0o640))

	orphans, err := f.scanner.Orphans(ctx)
	require.NoError(t, err)
	require.Len(t, orphans, 2)

	byPath := map[string]Orphan{}
	for _, o := range orphans {
		byPath[o.Path] = o
	}
	assert.Equal(t, recordedPath, byPath[copyPath].RecordedPath)
	assert.Contains(t, byPath, f.layout.FinalPath(orphanFP, ".mp4"))
}

func TestReinsertRestoresRecord(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)
	fp, path := f.store(t, "B2", ".mp4")

	rec, err := f.scanner.Reinsert(ctx, fp, "http://x/b.mp4", 1)
	require.NoError(t, err)
	assert.Equal(t, path, rec.StoragePath)
	assert.Equal(t, f.fp.Bytes([]byte("http://x/b.mp4")), rec.SourceFingerprint)
	assert.Equal(t, 1, rec.Platform)

	orphans, err := f.scanner.Orphans(ctx)
	require.NoError(t, err)
	assert.Empty(t, orphans)

	_, err = f.scanner.Reinsert(ctx, fp, "http://x/b.mp4", 1)
	assert.ErrorIs(t, err, ErrNotOrphan)
}

func TestReinsertRejectsMissingOrCorruptFiles(t *testing.T) {
	ctx := context.Background()
	f := newFixture(t)

	bogus := strings.Repeat("d", f.fp.HexLen())
	_, err := f.scanner.Reinsert(ctx, bogus, "http://x/a.mp4", 1)
	assert.ErrorIs(t, err, ErrFileNotFound)

	require.NoError(t, os.WriteFile(f.layout.FinalPath(bogus, ".mp4"), []byte("not matching"), 0o640))
	_, err = f.scanner.Reinsert(ctx, bogus, "http://x/a.mp4", 1)
	assert.ErrorIs(t, err, ErrFingerprintMismatch)
	assert.Zero(t, f.cat.Len())
}
