// Package cli parses command-line arguments for dbsave.
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/tis24dev/dbsave/internal/types"
)

// Args holds the parsed command-line arguments.
type Args struct {
	DatabasePath string
	OutputPath   string
	LogLevel     types.LogLevel
	LogFile      string
	Recipients   []string
	Passphrase   bool
	Manifest     bool
	UseTUI       bool
	ShowVersion  bool
	ShowHelp     bool
}

type stringListFlag struct {
	values *[]string
}

func (f stringListFlag) String() string {
	if f.values == nil {
		return ""
	}
	return strings.Join(*f.values, ",")
}

func (f stringListFlag) Set(value string) error {
	*f.values = append(*f.values, value)
	return nil
}

// Parse parses os.Args and returns the Args struct.
func Parse() (*Args, error) {
	return parseArgs(flag.NewFlagSet("dbsave", flag.ContinueOnError), os.Args[1:])
}

func parseArgs(fs *flag.FlagSet, arguments []string) (*Args, error) {
	args := &Args{}

	fs.StringVar(&args.DatabasePath, "db", "",
		"Database path prefix (directory + logical name, no suffix)")
	fs.StringVar(&args.DatabasePath, "d", "",
		"Database path prefix (shorthand)")

	fs.StringVar(&args.OutputPath, "output", "",
		"Destination archive path")
	fs.StringVar(&args.OutputPath, "o", "",
		"Destination archive path (shorthand)")

	var logLevelStr string
	fs.StringVar(&logLevelStr, "log-level", "",
		"Log level (debug|info|warning|error|critical)")
	fs.StringVar(&logLevelStr, "l", "",
		"Log level (shorthand)")

	fs.StringVar(&args.LogFile, "log-file", "",
		"Also write logs to this file")

	fs.Var(stringListFlag{&args.Recipients}, "recipient",
		"Encrypt the archive for this age recipient (repeatable)")
	fs.BoolVar(&args.Passphrase, "passphrase", false,
		"Encrypt the archive with an interactively prompted passphrase")

	fs.BoolVar(&args.Manifest, "manifest", false,
		"Write a checksum manifest sidecar next to the archive")

	fs.BoolVar(&args.UseTUI, "tui", false,
		"Show backup progress in a full-screen TUI")

	fs.BoolVar(&args.ShowVersion, "version", false,
		"Show version information")
	fs.BoolVar(&args.ShowVersion, "v", false,
		"Show version information (shorthand)")

	fs.BoolVar(&args.ShowHelp, "help", false,
		"Show help message")
	fs.BoolVar(&args.ShowHelp, "h", false,
		"Show help message (shorthand)")

	if err := fs.Parse(arguments); err != nil {
		return nil, err
	}

	args.LogLevel = types.LogLevelInfo
	if logLevelStr != "" {
		args.LogLevel = types.ParseLogLevel(logLevelStr)
	}
	return args, nil
}

// Validate checks that the arguments describe a runnable backup.
func (a *Args) Validate() error {
	if a.ShowVersion || a.ShowHelp {
		return nil
	}
	if a.DatabasePath == "" {
		return fmt.Errorf("missing required -db flag")
	}
	if a.OutputPath == "" {
		return fmt.Errorf("missing required -output flag")
	}
	if a.Passphrase && len(a.Recipients) > 0 {
		return fmt.Errorf("-passphrase and -recipient are mutually exclusive")
	}
	return nil
}

// ShowHelp prints usage information.
func ShowHelp(w io.Writer) {
	fmt.Fprintln(w, "Usage: dbsave -db <path-prefix> -output <archive.zip> [options]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Creates a consistent online backup of a running database: the")
	fmt.Fprintln(w, "fixed-page store, the append store and all blob files end up in")
	fmt.Fprintln(w, "one zip archive while the engine keeps serving traffic.")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Options:")
	fmt.Fprintln(w, "  -db, -d <path>       Database path prefix (no suffix)")
	fmt.Fprintln(w, "  -output, -o <path>   Destination archive path")
	fmt.Fprintln(w, "  -log-level, -l <lvl> debug|info|warning|error|critical")
	fmt.Fprintln(w, "  -log-file <path>     Also write logs to a file")
	fmt.Fprintln(w, "  -recipient <age1..>  Encrypt for an age recipient (repeatable)")
	fmt.Fprintln(w, "  -passphrase          Encrypt with a prompted passphrase")
	fmt.Fprintln(w, "  -manifest            Write a checksum manifest sidecar")
	fmt.Fprintln(w, "  -tui                 Full-screen progress display")
	fmt.Fprintln(w, "  -version, -v         Show version information")
	fmt.Fprintln(w, "  -help, -h            Show this help")
}
