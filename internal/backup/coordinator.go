// Package backup implements the online backup coordinator: it copies
// a live database's fixed-page store, append store and blob files
// into one consistent zip archive while the engine keeps serving
// reads and writes.
package backup

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"

	"github.com/tis24dev/dbsave/internal/archive"
	"github.com/tis24dev/dbsave/internal/logging"
	"github.com/tis24dev/dbsave/internal/safefs"
	"github.com/tis24dev/dbsave/internal/types"
)

// AppendStore is the slice of the append store the coordinator copies
// through: flush, the reuse-space flag and a stable read view of the
// committed image.
type AppendStore interface {
	ReuseSpaceStore
	Flush() error
	InputStream() (io.ReadCloser, error)
}

// Authorizer decides whether the caller may run a backup. A nil
// authorizer on the coordinator means the caller is trusted (library
// embedding).
type Authorizer interface {
	CheckAdmin() error
}

// Source bundles the engine resources one backup run reads from. The
// engine-wide reuse-space flag and the shared large-object lock are
// passed in explicitly rather than reached as ambient globals.
type Source struct {
	// Path is the database path prefix: directory + logical name,
	// no suffix.
	Path string

	// Persistent reports whether the database has file backing.
	Persistent bool

	// Pages is the fixed-page store.
	Pages PageStore

	// Log is the append store; nil when the engine has none.
	Log AppendStore

	// LobLock is the lock shared with the engine's blob temp-file
	// create/delete paths; nil when the engine has no blobs.
	LobLock sync.Locker

	// Flush persists the engine's in-memory state to the
	// fixed-page store before the copy starts.
	Flush func() error
}

// Config configures a Coordinator.
type Config struct {
	Logger     *logging.Logger
	Progress   Listener
	Lister     FileLister
	Authorizer Authorizer

	// Recipients encrypt the archive stream when non-empty.
	Recipients []age.Recipient

	// Manifest writes a checksum sidecar next to the archive on
	// success.
	Manifest bool
}

// Coordinator runs online backups. It owns the archive writer and the
// coordination lock for the duration of one Run call; it does not own
// the engine, which continues to exist and mutate afterwards.
type Coordinator struct {
	logger     *logging.Logger
	progress   Listener
	lister     FileLister
	auth       Authorizer
	recipients []age.Recipient
	manifest   bool
}

// New creates a Coordinator.
func New(cfg Config) *Coordinator {
	c := &Coordinator{
		logger:     cfg.Logger,
		progress:   cfg.Progress,
		lister:     cfg.Lister,
		auth:       cfg.Authorizer,
		recipients: cfg.Recipients,
		manifest:   cfg.Manifest,
	}
	if c.logger == nil {
		c.logger = logging.New(types.LogLevelNone, false)
	}
	if c.progress == nil {
		c.progress = NopListener()
	}
	if c.lister == nil {
		c.lister = DirLister{}
	}
	return c
}

// Run performs one backup of src into the archive at dest. Any
// failure aborts the whole run; there is no partial-success mode. The
// archive is built at a temporary path and renamed over dest only on
// success, so a failed run leaves nothing behind under dest.
func (c *Coordinator) Run(ctx context.Context, dest string, src Source) (err error) {
	if c.auth != nil {
		if aerr := c.auth.CheckAdmin(); aerr != nil {
			return &PermissionError{Err: aerr}
		}
	}
	if !src.Persistent {
		return ErrNotPersistent
	}
	if src.Pages == nil {
		return fmt.Errorf("internal: persistent database without a fixed-page store")
	}

	name := filepath.Base(src.Path)
	base := filepath.Dir(src.Path)
	c.logger.Info("Starting backup of %s to %s", name, dest)

	// Flush the append store first so its header reflects all
	// committed data, then the engine's general in-memory state.
	if src.Log != nil {
		if ferr := src.Log.Flush(); ferr != nil {
			return &IOError{Path: src.Path + types.SuffixAppendFile, Err: ferr}
		}
	}
	if src.Flush != nil {
		if ferr := src.Flush(); ferr != nil {
			return &IOError{Path: src.Path + types.SuffixPageFile, Err: ferr}
		}
	}

	w, aerr := archive.Create(dest, c.recipients...)
	if aerr != nil {
		return &IOError{Path: dest, Err: aerr}
	}
	defer func() {
		if err != nil {
			w.Abort()
			if c.manifest {
				os.Remove(archive.ManifestPath(dest))
			}
		}
	}()

	pageEntry := name + types.SuffixPageFile
	out, eerr := w.CreateEntry(pageEntry)
	if eerr != nil {
		return &IOError{Path: dest, Err: eerr}
	}
	if cerr := copyPageStore(src.Pages, pageEntry, out, c.progress); cerr != nil {
		return &IOError{Path: src.Path + types.SuffixPageFile, Err: cerr}
	}
	c.logger.Debug("Fixed-page store copied (%d pages)", src.Pages.PageCount())

	// Companion files are enumerated and copied under the
	// large-object lock, so a blob temp-file rename cannot slip
	// between enumeration and copy.
	if err := c.copyCompanionFiles(ctx, w, base, name, src); err != nil {
		return err
	}

	// The manifest is written while the archive still sits at its
	// temporary path: if either step fails, nothing appears under
	// dest.
	if cerr := w.Finalize(); cerr != nil {
		return &IOError{Path: dest, Err: cerr}
	}
	if c.manifest {
		if merr := c.writeManifest(ctx, w, name); merr != nil {
			return merr
		}
	}
	if cerr := w.Publish(); cerr != nil {
		return &IOError{Path: dest, Err: cerr}
	}
	c.logger.Info("Backup of %s completed (%d entries)", name, len(w.EntryNames()))
	return nil
}

func (c *Coordinator) copyCompanionFiles(ctx context.Context, w *archive.Writer, base, name string, src Source) error {
	if src.LobLock != nil {
		src.LobLock.Lock()
		defer src.LobLock.Unlock()
	}

	files, err := c.lister.DatabaseFiles(ctx, base, name)
	if err != nil {
		return &IOError{Path: base, Err: err}
	}

	for _, fn := range files {
		switch types.KindOf(fn) {
		case types.FileKindBlob:
			// Blob files are immutable once written; a plain
			// verbatim copy is safe.
			if err := c.backupFile(w, base, fn, nil); err != nil {
				return err
			}
		case types.FileKindAppend:
			if src.Log == nil {
				c.logger.Warning("Skipping %s: engine exposes no append store", fn)
				continue
			}
			err := WithReuseDisabled(src.Log, func() error {
				in, serr := src.Log.InputStream()
				if serr != nil {
					return &IOError{Path: fn, Err: serr}
				}
				return c.backupFile(w, base, fn, in)
			})
			if err != nil {
				return err
			}
		}
	}
	return nil
}

// backupFile copies one companion file into the archive. With in nil
// the file is read from disk; otherwise the given stream is used (the
// append store provides its own stable view). The containment check
// runs before the entry name is derived.
func (c *Coordinator) backupFile(w *archive.Writer, base, fn string, in io.ReadCloser) error {
	inside, err := safefs.Within(base, fn)
	if err != nil {
		if in != nil {
			in.Close()
		}
		return &IOError{Path: fn, Err: err}
	}
	if !inside {
		if in != nil {
			in.Close()
		}
		return &ContainmentError{Path: fn, Base: base}
	}

	rel, err := filepath.Rel(base, fn)
	if err != nil {
		if in != nil {
			in.Close()
		}
		return &IOError{Path: fn, Err: err}
	}
	entryName := archive.NormalizeEntryName(rel)

	if in == nil {
		f, oerr := os.Open(fn)
		if oerr != nil {
			return &IOError{Path: fn, Err: oerr}
		}
		in = f
	}

	out, err := w.CreateEntry(entryName)
	if err != nil {
		in.Close()
		return &IOError{Path: fn, Err: err}
	}
	if err := copyStream(in, out); err != nil {
		return &IOError{Path: fn, Err: err}
	}
	c.progress.Progress(StateBackupFile, entryName, 1, 1)
	c.logger.Debug("Archived %s", entryName)
	return nil
}

func (c *Coordinator) writeManifest(ctx context.Context, w *archive.Writer, name string) error {
	_, err := archive.WriteManifest(ctx, c.logger, &archive.Manifest{
		ArchivePath: w.Path(),
		Database:    name,
		Encrypted:   len(c.recipients) > 0,
		Entries:     w.EntryNames(),
	}, w.TempPath())
	if err != nil {
		return &IOError{Path: archive.ManifestPath(w.Path()), Err: err}
	}
	return nil
}
