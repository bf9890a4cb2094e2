package backup

import "github.com/tis24dev/dbsave/internal/logging"

// StateBackupFile is the progress state emitted while a file is being
// copied into the archive.
const StateBackupFile = "BACKUP_FILE"

// Listener receives progress events. Purely observational: it has no
// control influence over the run and must not block for long.
type Listener interface {
	Progress(state, name string, current, total int)
}

// ListenerFunc adapts a function to the Listener interface.
type ListenerFunc func(state, name string, current, total int)

// Progress implements Listener.
func (f ListenerFunc) Progress(state, name string, current, total int) {
	f(state, name, current, total)
}

type nopListener struct{}

func (nopListener) Progress(string, string, int, int) {}

// NopListener returns a listener that discards all events.
func NopListener() Listener {
	return nopListener{}
}

// LogListener forwards progress events to the debug log.
type LogListener struct {
	Logger *logging.Logger
}

// Progress implements Listener.
func (l *LogListener) Progress(state, name string, current, total int) {
	if l.Logger == nil {
		return
	}
	l.Logger.Debug("%s %s %d/%d", state, name, current, total)
}
