package backup

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/tis24dev/dbsave/internal/archive"
	"github.com/tis24dev/dbsave/internal/engine"
	"github.com/tis24dev/dbsave/internal/logging"
	"github.com/tis24dev/dbsave/internal/types"
)

func testCoordinator(cfg Config) *Coordinator {
	if cfg.Logger == nil {
		cfg.Logger = logging.New(types.LogLevelNone, false)
	}
	return New(cfg)
}

func openTestEngine(t *testing.T) *engine.Engine {
	t.Helper()
	e, err := engine.Open(filepath.Join(t.TempDir(), "mydb"))
	if err != nil {
		t.Fatalf("open engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func sourceFor(e *engine.Engine) Source {
	src := Source{
		Path:       e.Path(),
		Persistent: e.IsPersistent(),
		LobLock:    e.LobLock(),
		Flush:      e.Flush,
	}
	if ps := e.PageStore(); ps != nil {
		src.Pages = ps
	}
	if log := e.AppendStore(); log != nil {
		src.Log = log
	}
	return src
}

func readEntry(t *testing.T, archivePath, entryName string) []byte {
	t.Helper()
	zr, err := zip.OpenReader(archivePath)
	if err != nil {
		t.Fatalf("open archive %s: %v", archivePath, err)
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.Name != entryName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open entry %s: %v", entryName, err)
		}
		defer rc.Close()
		data, err := io.ReadAll(rc)
		if err != nil {
			t.Fatalf("read entry %s: %v", entryName, err)
		}
		return data
	}
	t.Fatalf("entry %s not found in %s", entryName, archivePath)
	return nil
}

func TestRunFailsForNonPersistentDatabase(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{})

	err := c.Run(context.Background(), dest, Source{Path: "mem", Persistent: false})
	if !errors.Is(err, ErrNotPersistent) {
		t.Fatalf("expected ErrNotPersistent, got %v", err)
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Error("no destination file may be created for a non-persistent database")
	}
	if _, serr := os.Stat(dest + ".partial"); !os.IsNotExist(serr) {
		t.Error("no partial file may be created for a non-persistent database")
	}
}

func TestRunDeniedByAuthorizer(t *testing.T) {
	e := openTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{Authorizer: denyingAuthorizer{}})

	err := c.Run(context.Background(), dest, sourceFor(e))
	var perr *PermissionError
	if !errors.As(err, &perr) {
		t.Fatalf("expected PermissionError, got %v", err)
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Error("no destination file may be created for a denied caller")
	}
}

type denyingAuthorizer struct{}

func (denyingAuthorizer) CheckAdmin() error { return errors.New("admin rights required") }

func TestBackupScenarioThreeEntries(t *testing.T) {
	e := openTestEngine(t)

	idx, err := e.PageStore().AllocatePage()
	if err != nil {
		t.Fatalf("allocate page: %v", err)
	}
	if err := e.PageStore().WritePage(idx, []byte("row data")); err != nil {
		t.Fatalf("write page: %v", err)
	}
	if _, err := e.AppendStore().Append([]byte("log record")); err != nil {
		t.Fatalf("append: %v", err)
	}
	if _, err := e.AddBlob([]byte("blob payload")); err != nil {
		t.Fatalf("add blob: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{})
	if err := c.Run(context.Background(), dest, sourceFor(e)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()

	want := map[string]bool{
		"mydb" + types.SuffixPageFile:   false,
		"mydb" + types.SuffixAppendFile: false,
		"mydb.1" + types.SuffixBlobFile: false,
	}
	if len(zr.File) != len(want) {
		names := make([]string, 0, len(zr.File))
		for _, f := range zr.File {
			names = append(names, f.Name)
		}
		t.Fatalf("expected %d entries, got %v", len(want), names)
	}
	if zr.File[0].Name != "mydb"+types.SuffixPageFile {
		t.Errorf("first entry must be the fixed-page store, got %q", zr.File[0].Name)
	}
	for _, f := range zr.File {
		if _, ok := want[f.Name]; !ok {
			t.Errorf("unexpected entry %q", f.Name)
		}
		want[f.Name] = true
	}
	for name, seen := range want {
		if !seen {
			t.Errorf("missing entry %q", name)
		}
	}
}

func TestBackupPageEntryMatchesStoreImage(t *testing.T) {
	e := openTestEngine(t)
	for i := 0; i < 30; i++ {
		idx, err := e.PageStore().AllocatePage()
		if err != nil {
			t.Fatalf("allocate page: %v", err)
		}
		if err := e.PageStore().WritePage(idx, bytes.Repeat([]byte{byte(i + 1)}, 64)); err != nil {
			t.Fatalf("write page: %v", err)
		}
	}

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{})
	if err := c.Run(context.Background(), dest, sourceFor(e)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	archived := readEntry(t, dest, "mydb"+types.SuffixPageFile)
	onDisk, err := os.ReadFile(e.Path() + types.SuffixPageFile)
	if err != nil {
		t.Fatalf("read page store file: %v", err)
	}
	if !bytes.Equal(archived, onDisk) {
		t.Error("archived fixed-page entry differs from the store image at the flush point")
	}
}

// churningLog injects appends at the exact moment the guarded window
// opens: InputStream runs with the space-reuse guard already engaged,
// so these writes must land past the committed image. If the guard
// failed to disable reuse, the small records would rewrite the freed
// regions inside the committed image and tear the archived copy.
type churningLog struct {
	*engine.AppendStore
}

func (l churningLog) InputStream() (io.ReadCloser, error) {
	for i := 0; i < 50; i++ {
		if _, err := l.AppendStore.Append([]byte("tiny")); err != nil {
			return nil, err
		}
	}
	return l.AppendStore.InputStream()
}

func TestBackupAppendEntryValidUnderConcurrentAppends(t *testing.T) {
	e := openTestEngine(t)

	payload := []byte("record of a fixed size")
	var released []int64
	for i := 0; i < 20; i++ {
		off, err := e.AppendStore().Append(payload)
		if err != nil {
			t.Fatalf("append: %v", err)
		}
		if i%4 == 0 {
			released = append(released, off)
		}
	}
	for _, off := range released {
		e.AppendStore().Release(off, int64(8+len(payload)))
	}
	e.AppendStore().SetReuseSpace(true)

	src := sourceFor(e)
	src.Log = churningLog{e.AppendStore()}

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{})
	if err := c.Run(context.Background(), dest, src); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	logEntry := readEntry(t, dest, "mydb"+types.SuffixAppendFile)
	if _, verr := engine.VerifyImage(bytes.NewReader(logEntry)); verr != nil {
		t.Errorf("archived append store image is not valid: %v", verr)
	}

	if !e.AppendStore().ReuseSpace() {
		t.Error("reuse-space flag must be restored after the backup")
	}
}

type failingLog struct {
	*engine.AppendStore
}

func (failingLog) InputStream() (io.ReadCloser, error) {
	return nil, errors.New("injected stream failure")
}

func TestReuseSpaceFlagRestoredOnFailure(t *testing.T) {
	e := openTestEngine(t)
	e.AppendStore().SetReuseSpace(true)

	src := sourceFor(e)
	src.Log = failingLog{e.AppendStore()}

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{})
	err := c.Run(context.Background(), dest, src)
	if err == nil {
		t.Fatal("expected Run to fail with the injected stream failure")
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected IOError, got %v", err)
	}

	if !e.AppendStore().ReuseSpace() {
		t.Error("reuse-space flag must be restored after a failed backup")
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Error("failed backup must not leave a destination file")
	}
	if _, serr := os.Stat(dest + ".partial"); !os.IsNotExist(serr) {
		t.Error("failed backup must not leave a partial file")
	}
}

type fixedLister struct {
	files []string
	err   error
}

func (l fixedLister) DatabaseFiles(context.Context, string, string) ([]string, error) {
	return l.files, l.err
}

func TestContainmentViolationAbortsRun(t *testing.T) {
	e := openTestEngine(t)

	outsideDir := t.TempDir()
	outside := filepath.Join(outsideDir, "mydb.9"+types.SuffixBlobFile)
	if err := os.WriteFile(outside, []byte("escaped"), 0644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{Lister: fixedLister{files: []string{outside}}})

	err := c.Run(context.Background(), dest, sourceFor(e))
	var cerr *ContainmentError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ContainmentError, got %v", err)
	}
	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Error("aborted backup must not leave a destination file")
	}
}

func TestContainmentViolationViaSymlink(t *testing.T) {
	e := openTestEngine(t)

	outside := filepath.Join(t.TempDir(), "real"+types.SuffixBlobFile)
	if err := os.WriteFile(outside, []byte("escaped"), 0644); err != nil {
		t.Fatalf("write outside file: %v", err)
	}
	link := filepath.Join(e.Dir(), "mydb.7"+types.SuffixBlobFile)
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks not supported: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{})

	err := c.Run(context.Background(), dest, sourceFor(e))
	var cerr *ContainmentError
	if !errors.As(err, &cerr) {
		t.Fatalf("expected ContainmentError, got %v", err)
	}
}

func TestBackupWritesManifest(t *testing.T) {
	e := openTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{Manifest: true})

	if err := c.Run(context.Background(), dest, sourceFor(e)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	m, err := archive.LoadManifest(archive.ManifestPath(dest))
	if err != nil {
		t.Fatalf("load manifest: %v", err)
	}
	if m.Database != "mydb" {
		t.Errorf("manifest database %q", m.Database)
	}
	if len(m.Entries) == 0 || m.Entries[0] != "mydb"+types.SuffixPageFile {
		t.Errorf("manifest entries %v", m.Entries)
	}
	if m.SHA256 == "" {
		t.Error("manifest missing checksum")
	}
}

func TestManifestFailureLeavesNoArchive(t *testing.T) {
	e := openTestEngine(t)
	dest := filepath.Join(t.TempDir(), "out.zip")

	// A directory squatting on the sidecar path makes the manifest
	// write fail after the container itself succeeded.
	if err := os.Mkdir(archive.ManifestPath(dest), 0755); err != nil {
		t.Fatalf("block manifest path: %v", err)
	}

	c := testCoordinator(Config{Manifest: true})
	err := c.Run(context.Background(), dest, sourceFor(e))
	if err == nil {
		t.Fatal("expected Run to fail when the manifest cannot be written")
	}

	if _, serr := os.Stat(dest); !os.IsNotExist(serr) {
		t.Error("manifest failure must not leave an archive under the destination")
	}
	if _, serr := os.Stat(dest + ".partial"); !os.IsNotExist(serr) {
		t.Error("manifest failure must not leave a partial file")
	}
}

func TestBackupProgressEvents(t *testing.T) {
	e := openTestEngine(t)
	for i := 0; i < 40; i++ {
		if _, err := e.PageStore().AllocatePage(); err != nil {
			t.Fatalf("allocate page: %v", err)
		}
	}

	var mu sync.Mutex
	var events []string
	listener := ListenerFunc(func(state, name string, current, total int) {
		mu.Lock()
		defer mu.Unlock()
		if state != StateBackupFile {
			t.Errorf("unexpected progress state %q", state)
		}
		events = append(events, name)
		if current < 0 || current > total {
			t.Errorf("inconsistent progress %d/%d for %s", current, total, name)
		}
	})

	dest := filepath.Join(t.TempDir(), "out.zip")
	c := testCoordinator(Config{Progress: listener})
	if err := c.Run(context.Background(), dest, sourceFor(e)); err != nil {
		t.Fatalf("Run failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	pageEvents := 0
	for _, name := range events {
		if name == "mydb"+types.SuffixPageFile {
			pageEvents++
		}
	}
	if pageEvents < 2 {
		t.Errorf("expected multiple page-range progress events, got %d", pageEvents)
	}
}
