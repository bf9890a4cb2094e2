// Package archive writes the backup container: a zip file with one
// entry per logical database file, optionally encrypted end-to-end
// with age.
package archive

import (
	"archive/zip"
	"fmt"
	"io"
	"os"
	"strings"

	"filippo.io/age"
)

// Writer writes a sequential zip container. The container is built at
// "<path>.partial" and renamed over the destination only by a
// successful Close, so a failed backup never leaves a half-written
// archive under the destination name.
type Writer struct {
	finalPath string
	tempPath  string
	file      *os.File
	enc       io.WriteCloser // age stream, nil when not encrypting
	zip       *zip.Writer
	names     []string
	seen      map[string]struct{}
	finalized bool
	closed    bool
}

// Create opens a new archive targeting path. The destination must not
// exist as a directory; an existing file is replaced on successful
// Close. With recipients the whole container stream is encrypted via
// age before it reaches the file.
func Create(path string, recipients ...age.Recipient) (*Writer, error) {
	if info, err := os.Stat(path); err == nil && info.IsDir() {
		return nil, fmt.Errorf("destination %s is a directory", path)
	}

	tempPath := path + ".partial"
	file, err := os.OpenFile(tempPath, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0640)
	if err != nil {
		return nil, fmt.Errorf("create archive file: %w", err)
	}

	w := &Writer{
		finalPath: path,
		tempPath:  tempPath,
		file:      file,
		seen:      make(map[string]struct{}),
	}

	var sink io.Writer = file
	if len(recipients) > 0 {
		enc, err := age.Encrypt(file, recipients...)
		if err != nil {
			file.Close()
			os.Remove(tempPath)
			return nil, fmt.Errorf("initialize age encryption: %w", err)
		}
		w.enc = enc
		sink = enc
	}
	w.zip = zip.NewWriter(sink)
	return w, nil
}

// Path returns the final destination path.
func (w *Writer) Path() string {
	return w.finalPath
}

// TempPath returns the path the container is built at before Publish
// renames it over the destination.
func (w *Writer) TempPath() string {
	return w.tempPath
}

// EntryNames returns the normalized names written so far, in order.
func (w *Writer) EntryNames() []string {
	out := make([]string, len(w.names))
	copy(out, w.names)
	return out
}

// CreateEntry starts a new entry under the normalized form of name
// and returns the writer for its content. Entry names must be unique
// within one archive.
func (w *Writer) CreateEntry(name string) (io.Writer, error) {
	entryName := NormalizeEntryName(name)
	if entryName == "" {
		return nil, fmt.Errorf("empty archive entry name (from %q)", name)
	}
	if _, dup := w.seen[entryName]; dup {
		return nil, fmt.Errorf("duplicate archive entry %q", entryName)
	}

	out, err := w.zip.Create(entryName)
	if err != nil {
		return nil, fmt.Errorf("create archive entry %q: %w", entryName, err)
	}
	w.seen[entryName] = struct{}{}
	w.names = append(w.names, entryName)
	return out, nil
}

// Finalize flushes and closes the container streams, leaving the
// finished bytes at the temporary path. No entries can be added
// afterwards; callers that want to inspect or hash the finished
// container before it becomes visible do so between Finalize and
// Publish.
func (w *Writer) Finalize() error {
	if w.finalized || w.closed {
		return nil
	}
	w.finalized = true

	err := w.zip.Close()
	if w.enc != nil {
		if cerr := w.enc.Close(); err == nil && cerr != nil {
			err = fmt.Errorf("finalize encrypted archive: %w", cerr)
		}
	}
	if serr := w.file.Sync(); err == nil && serr != nil {
		err = serr
	}
	if cerr := w.file.Close(); err == nil && cerr != nil {
		err = cerr
	}
	if err != nil {
		w.closed = true
		os.Remove(w.tempPath)
		return err
	}
	return nil
}

// Publish renames the finalized container over the destination.
func (w *Writer) Publish() error {
	if w.closed {
		return nil
	}
	if !w.finalized {
		return fmt.Errorf("archive published before being finalized")
	}
	w.closed = true
	if err := os.Rename(w.tempPath, w.finalPath); err != nil {
		os.Remove(w.tempPath)
		return fmt.Errorf("publish archive: %w", err)
	}
	return nil
}

// Close finalizes the container and renames it into place.
func (w *Writer) Close() error {
	if err := w.Finalize(); err != nil {
		return err
	}
	return w.Publish()
}

// Abort discards the partial container. Calling Abort after a
// successful Close or Publish is a no-op.
func (w *Writer) Abort() {
	if w.closed {
		return
	}
	w.closed = true
	if !w.finalized {
		w.file.Close()
	}
	w.finalized = true
	os.Remove(w.tempPath)
}

// NormalizeEntryName converts a file path into its archive entry
// name: backslashes become forward slashes and leading separators are
// stripped, so entries are always relative.
func NormalizeEntryName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	return strings.TrimLeft(name, "/")
}
