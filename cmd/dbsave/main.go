package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime/debug"
	"strings"
	"syscall"
	"time"

	"filippo.io/age"
	"golang.org/x/term"

	"github.com/tis24dev/dbsave/internal/archive"
	"github.com/tis24dev/dbsave/internal/backup"
	"github.com/tis24dev/dbsave/internal/cli"
	"github.com/tis24dev/dbsave/internal/engine"
	"github.com/tis24dev/dbsave/internal/logging"
	"github.com/tis24dev/dbsave/internal/tui"
	"github.com/tis24dev/dbsave/internal/types"
	"github.com/tis24dev/dbsave/pkg/utils"
)

const version = "0.3.0"

// Build-time variables (injected via ldflags)
var (
	buildTime = "" // -ldflags "-X main.buildTime=..."
)

func main() {
	os.Exit(run())
}

func run() int {
	defer func() {
		if r := recover(); r != nil {
			fmt.Fprintf(os.Stderr, "panic: %v\n%s\n", r, debug.Stack())
			os.Exit(types.ExitPanicError.Int())
		}
	}()

	// Handle SIGINT (Ctrl+C) and SIGTERM
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	args, err := cli.Parse()
	if err != nil {
		return types.ExitUsageError.Int()
	}
	if args.ShowHelp {
		cli.ShowHelp(os.Stdout)
		return types.ExitSuccess.Int()
	}
	if args.ShowVersion {
		showVersion()
		return types.ExitSuccess.Int()
	}
	if err := args.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "dbsave: %v\n\n", err)
		cli.ShowHelp(os.Stderr)
		return types.ExitUsageError.Int()
	}

	logger := logging.New(args.LogLevel, term.IsTerminal(int(os.Stdout.Fd())))
	if args.LogFile != "" {
		if err := logger.OpenLogFile(args.LogFile); err != nil {
			logger.Error("%v", err)
			return types.ExitGenericError.Int()
		}
		defer logger.CloseLogFile()
	}

	recipients, err := resolveRecipients(args)
	if err != nil {
		logger.Error("Encryption setup failed: %v", err)
		return types.ExitEncryptionError.Int()
	}

	if dir := filepath.Dir(args.OutputPath); dir != "." {
		if err := utils.EnsureDir(dir); err != nil {
			logger.Error("Cannot create output directory %s: %v", dir, err)
			return types.ExitArchiveError.Int()
		}
	}
	if utils.FileExists(args.OutputPath) {
		logger.Warning("Overwriting existing archive %s", args.OutputPath)
	}

	eng, err := engine.Open(args.DatabasePath)
	if err != nil {
		logger.Error("Cannot open database %s: %v", args.DatabasePath, err)
		return types.ExitGenericError.Int()
	}
	defer eng.Close()

	src := backup.Source{
		Path:       eng.Path(),
		Persistent: eng.IsPersistent(),
		LobLock:    eng.LobLock(),
		Flush:      eng.Flush,
	}
	if ps := eng.PageStore(); ps != nil {
		src.Pages = ps
	}
	if log := eng.AppendStore(); log != nil {
		src.Log = log
	}

	useTUI := args.UseTUI && term.IsTerminal(int(os.Stdout.Fd()))
	started := time.Now()

	var runErr error
	if useTUI {
		runErr = runWithTUI(ctx, args, logger, recipients, src)
	} else {
		coord := backup.New(backup.Config{
			Logger:     logger,
			Progress:   &backup.LogListener{Logger: logger},
			Recipients: recipients,
			Manifest:   args.Manifest,
		})
		runErr = coord.Run(ctx, args.OutputPath, src)
	}
	if runErr != nil {
		logger.Error("Backup failed: %v", runErr)
		return exitCodeFor(runErr, args.OutputPath).Int()
	}

	printSummary(logger, args, started)
	return types.ExitSuccess.Int()
}

// runWithTUI runs the backup on a worker goroutine while the progress
// view owns the terminal.
func runWithTUI(ctx context.Context, args *cli.Args, logger *logging.Logger, recipients []age.Recipient, src backup.Source) error {
	app := tui.NewApp()
	view := tui.NewProgressView(app, "dbsave "+filepath.Base(args.DatabasePath))

	// The logger would scribble over the TUI; keep its output away
	// from the screen while the app runs.
	logger.SetOutput(io.Discard)
	coord := backup.New(backup.Config{
		Logger:     logger,
		Progress:   view,
		Recipients: recipients,
		Manifest:   args.Manifest,
	})

	errCh := make(chan error, 1)
	go func() {
		err := coord.Run(ctx, args.OutputPath, src)
		view.Finish(err)
		time.Sleep(time.Second)
		app.Stop()
		errCh <- err
	}()

	if err := app.Run(); err != nil {
		return fmt.Errorf("terminal UI: %w", err)
	}
	err := <-errCh
	logger.SetOutput(os.Stdout)
	return err
}

func resolveRecipients(args *cli.Args) ([]age.Recipient, error) {
	if args.Passphrase {
		pass, err := readPassphrase()
		if err != nil {
			return nil, err
		}
		rec, err := backup.RecipientFromPassphrase(pass)
		if err != nil {
			return nil, err
		}
		return []age.Recipient{rec}, nil
	}
	if len(args.Recipients) > 0 {
		return backup.ParseRecipients(args.Recipients)
	}
	return nil, nil
}

// exitCodeFor maps a backup failure onto the process exit code. IO
// failures on the destination archive are distinguished from failures
// reading the source database.
func exitCodeFor(err error, dest string) types.ExitCode {
	if errors.Is(err, backup.ErrNotPersistent) {
		return types.ExitNotPersistentError
	}
	var perm *backup.PermissionError
	if errors.As(err, &perm) {
		return types.ExitPermissionError
	}
	var cont *backup.ContainmentError
	if errors.As(err, &cont) {
		return types.ExitBackupError
	}
	var ioe *backup.IOError
	if errors.As(err, &ioe) {
		if ioe.Path == dest || strings.HasPrefix(ioe.Path, dest+".") {
			return types.ExitArchiveError
		}
		return types.ExitBackupError
	}
	return types.ExitGenericError
}

func printSummary(logger *logging.Logger, args *cli.Args, started time.Time) {
	size := int64(0)
	if info, err := os.Stat(args.OutputPath); err == nil {
		size = info.Size()
	}
	logger.Info("Archive %s written (%s) in %s",
		args.OutputPath, utils.FormatBytes(size), time.Since(started).Round(time.Millisecond))
	if args.Manifest {
		logger.Info("Manifest written to %s", archive.ManifestPath(args.OutputPath))
	}
	if warnings, _ := logger.Counters(); warnings > 0 {
		logger.Warning("Completed with %d warning(s)", warnings)
	}
}

func showVersion() {
	fmt.Printf("dbsave %s\n", version)
	if buildTime != "" {
		fmt.Printf("built %s\n", buildTime)
	}
}
