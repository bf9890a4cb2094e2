// Package types defines shared application data types.
package types

import "strings"

// File suffixes used by the storage engine. Every persistent file of a
// database named "mydb" is "mydb" + one of these, or "mydb.<seq>" + the
// blob suffix.
const (
	// SuffixPageFile - the fixed-page store.
	SuffixPageFile = ".page.db"

	// SuffixAppendFile - the append (log-structured) store.
	SuffixAppendFile = ".log.db"

	// SuffixBlobFile - an immutable large-object file.
	SuffixBlobFile = ".lob.db"

	// SuffixTempFile - a temporary file (blob staging), never archived.
	SuffixTempFile = ".temp.db"

	// SuffixLockFile - the database lock file, never archived.
	SuffixLockFile = ".lock.db"
)

// FileKind classifies the on-disk files that belong to a database.
type FileKind int

const (
	// FileKindFixedPage - the fixed-page store file.
	FileKindFixedPage FileKind = iota

	// FileKindAppend - the append (log-structured) store file.
	FileKindAppend

	// FileKindBlob - an immutable large-object file.
	FileKindBlob

	// FileKindTemp - a temporary file, never archived.
	FileKindTemp

	// FileKindUnknown - a file that does not belong to the database.
	FileKindUnknown
)

// String returns the string representation of the file kind.
func (k FileKind) String() string {
	switch k {
	case FileKindFixedPage:
		return "fixed-page"
	case FileKindAppend:
		return "append"
	case FileKindBlob:
		return "blob"
	case FileKindTemp:
		return "temp"
	default:
		return "unknown"
	}
}

// KindOf classifies a file name by its suffix.
func KindOf(name string) FileKind {
	switch {
	case strings.HasSuffix(name, SuffixPageFile):
		return FileKindFixedPage
	case strings.HasSuffix(name, SuffixAppendFile):
		return FileKindAppend
	case strings.HasSuffix(name, SuffixBlobFile):
		return FileKindBlob
	case strings.HasSuffix(name, SuffixTempFile):
		return FileKindTemp
	default:
		return FileKindUnknown
	}
}

// LogLevel represents the logging level.
type LogLevel int

const (
	// LogLevelDebug - Debug logs (maximum detail)
	LogLevelDebug LogLevel = 5

	// LogLevelInfo - General information
	LogLevelInfo LogLevel = 4

	// LogLevelWarning - Warnings
	LogLevelWarning LogLevel = 3

	// LogLevelError - Errors
	LogLevelError LogLevel = 2

	// LogLevelCritical - Critical errors
	LogLevelCritical LogLevel = 1

	// LogLevelNone - No logs
	LogLevelNone LogLevel = 0
)

// String returns the string representation of the log level.
func (l LogLevel) String() string {
	switch l {
	case LogLevelDebug:
		return "DEBUG"
	case LogLevelInfo:
		return "INFO"
	case LogLevelWarning:
		return "WARNING"
	case LogLevelError:
		return "ERROR"
	case LogLevelCritical:
		return "CRITICAL"
	case LogLevelNone:
		return "NONE"
	default:
		return "UNKNOWN"
	}
}

// ParseLogLevel converts a string to a LogLevel. Unrecognized values
// fall back to LogLevelInfo.
func ParseLogLevel(s string) LogLevel {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return LogLevelDebug
	case "info":
		return LogLevelInfo
	case "warning", "warn":
		return LogLevelWarning
	case "error":
		return LogLevelError
	case "critical":
		return LogLevelCritical
	case "none", "off":
		return LogLevelNone
	default:
		return LogLevelInfo
	}
}
