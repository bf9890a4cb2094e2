package backup

import (
	"context"
	"path/filepath"
	"strings"
	"time"

	"github.com/tis24dev/dbsave/internal/safefs"
	"github.com/tis24dev/dbsave/internal/types"
)

// FileLister enumerates the files belonging to one database. It runs
// while the coordinator holds the large-object lock, so temp-file
// churn cannot race the enumerate-then-copy window.
type FileLister interface {
	DatabaseFiles(ctx context.Context, dir, name string) ([]string, error)
}

// DirLister lists database files straight from the filesystem,
// matching the engine's known suffixes. Temp and lock files are never
// part of a database's file set.
type DirLister struct {
	// Timeout bounds each directory read; zero means no bound.
	Timeout time.Duration
}

// DatabaseFiles implements FileLister.
func (l DirLister) DatabaseFiles(ctx context.Context, dir, name string) ([]string, error) {
	entries, err := safefs.ReadDir(ctx, dir, l.Timeout)
	if err != nil {
		return nil, err
	}

	var files []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		base := entry.Name()
		if !belongsTo(base, name) {
			continue
		}
		switch types.KindOf(base) {
		case types.FileKindFixedPage, types.FileKindAppend, types.FileKindBlob:
			files = append(files, filepath.Join(dir, base))
		}
	}
	return files, nil
}

// belongsTo reports whether a file name belongs to the database with
// the given logical name: "mydb" + suffix, or "mydb." + sequence +
// suffix for blobs.
func belongsTo(fileName, dbName string) bool {
	if !strings.HasPrefix(fileName, dbName) {
		return false
	}
	rest := fileName[len(dbName):]
	return strings.HasPrefix(rest, ".")
}
