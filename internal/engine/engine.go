// Package engine implements the file-backed storage engine the backup
// coordinator runs against: a fixed-page store, an append store and
// immutable blob files, all belonging to one named database.
package engine

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/tis24dev/dbsave/internal/types"
)

// Engine is one open database instance. Its stores keep accepting
// reads and writes while a backup runs; the backup coordinator only
// borrows the store handles and the large-object lock.
type Engine struct {
	path       string // directory + logical name, no suffix
	persistent bool

	pages *PageStore
	log   *AppendStore

	// lobLock serializes blob temp-file creation/deletion against
	// the backup's enumerate+copy window.
	lobLock sync.Mutex

	blobMu  sync.Mutex
	blobSeq int
}

// Open opens or creates the database at the given path prefix
// (directory + logical name, no suffix).
func Open(path string) (*Engine, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0750); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}

	pages, err := OpenPageStore(path+types.SuffixPageFile, DefaultPageSize)
	if err != nil {
		return nil, err
	}
	log, err := OpenAppendStore(path + types.SuffixAppendFile)
	if err != nil {
		pages.Close()
		return nil, err
	}

	e := &Engine{
		path:       path,
		persistent: true,
		pages:      pages,
		log:        log,
	}
	e.blobSeq = e.scanBlobSeq()
	return e, nil
}

// OpenMemory creates an in-memory database: no file backing, so a
// backup of it must fail without touching the filesystem.
func OpenMemory(name string) *Engine {
	return &Engine{path: name}
}

// IsPersistent reports whether the database has file backing.
func (e *Engine) IsPersistent() bool {
	return e.persistent
}

// Path returns the database path prefix (directory + logical name).
func (e *Engine) Path() string {
	return e.path
}

// Name returns the logical database name.
func (e *Engine) Name() string {
	return filepath.Base(e.path)
}

// Dir returns the database's base directory.
func (e *Engine) Dir() string {
	return filepath.Dir(e.path)
}

// PageStore returns the fixed-page store, or nil for an in-memory
// database.
func (e *Engine) PageStore() *PageStore {
	return e.pages
}

// AppendStore returns the append store, or nil for an in-memory
// database.
func (e *Engine) AppendStore() *AppendStore {
	return e.log
}

// LobLock returns the lock shared between blob temp-file handling and
// the backup's companion-file window.
func (e *Engine) LobLock() *sync.Mutex {
	return &e.lobLock
}

// Flush persists in-memory state to the fixed-page store.
func (e *Engine) Flush() error {
	if e.pages == nil {
		return nil
	}
	return e.pages.Sync()
}

// Close closes both stores.
func (e *Engine) Close() error {
	var firstErr error
	if e.pages != nil {
		if err := e.pages.Close(); err != nil {
			firstErr = err
		}
	}
	if e.log != nil {
		if err := e.log.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (e *Engine) scanBlobSeq() int {
	entries, err := os.ReadDir(e.Dir())
	if err != nil {
		return 0
	}
	max := 0
	prefix := e.Name() + "."
	for _, entry := range entries {
		name := entry.Name()
		if !entry.Type().IsRegular() {
			continue
		}
		if types.KindOf(name) != types.FileKindBlob {
			continue
		}
		if len(name) <= len(prefix) || name[:len(prefix)] != prefix {
			continue
		}
		var seq int
		if _, err := fmt.Sscanf(name[len(prefix):], "%d", &seq); err == nil && seq > max {
			max = seq
		}
	}
	return max
}

// blobPath returns the path of the blob with the given sequence
// number.
func (e *Engine) blobPath(seq int) string {
	return fmt.Sprintf("%s.%d%s", e.path, seq, types.SuffixBlobFile)
}

// AddBlob writes a new immutable blob file. The data is staged into a
// temp file and renamed under the large-object lock, the same lock a
// concurrent backup holds across its enumerate+copy window, so the
// backup never sees a half-renamed blob.
func (e *Engine) AddBlob(data []byte) (string, error) {
	if !e.persistent {
		return "", fmt.Errorf("in-memory database cannot store blobs")
	}

	e.blobMu.Lock()
	e.blobSeq++
	seq := e.blobSeq
	e.blobMu.Unlock()

	e.lobLock.Lock()
	defer e.lobLock.Unlock()

	tempPath := e.path + types.SuffixTempFile
	if err := os.WriteFile(tempPath, data, 0640); err != nil {
		return "", fmt.Errorf("stage blob: %w", err)
	}
	finalPath := e.blobPath(seq)
	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("publish blob: %w", err)
	}
	return finalPath, nil
}

// RemoveBlob deletes a blob file under the large-object lock.
func (e *Engine) RemoveBlob(path string) error {
	e.lobLock.Lock()
	defer e.lobLock.Unlock()
	if err := os.Remove(path); err != nil {
		return fmt.Errorf("remove blob: %w", err)
	}
	return nil
}
