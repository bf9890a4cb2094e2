package types

// ExitCode represents the application's exit codes.
type ExitCode int

const (
	// ExitSuccess - Execution completed successfully.
	ExitSuccess ExitCode = 0

	// ExitGenericError - Unspecified generic error.
	ExitGenericError ExitCode = 1

	// ExitUsageError - Invalid command-line usage.
	ExitUsageError ExitCode = 2

	// ExitNotPersistentError - The database has no file backing.
	ExitNotPersistentError ExitCode = 3

	// ExitBackupError - Error during the backup operation (generic).
	ExitBackupError ExitCode = 4

	// ExitArchiveError - Error while creating the archive.
	ExitArchiveError ExitCode = 5

	// ExitPermissionError - Permission error.
	ExitPermissionError ExitCode = 6

	// ExitEncryptionError - Error preparing archive encryption.
	ExitEncryptionError ExitCode = 7

	// ExitPanicError - Unhandled panic caught.
	ExitPanicError ExitCode = 8
)

// String returns a human-readable description of the exit code.
func (e ExitCode) String() string {
	switch e {
	case ExitSuccess:
		return "success"
	case ExitGenericError:
		return "generic error"
	case ExitUsageError:
		return "usage error"
	case ExitNotPersistentError:
		return "database not persistent"
	case ExitBackupError:
		return "backup error"
	case ExitArchiveError:
		return "archive error"
	case ExitPermissionError:
		return "permission error"
	case ExitEncryptionError:
		return "encryption error"
	case ExitPanicError:
		return "panic error"
	default:
		return "unknown error"
	}
}

// Int returns the exit code as an integer.
func (e ExitCode) Int() int {
	return int(e)
}
