package backup

import "io"

// PageStore is the capability the fixed-page store exposes for
// copying itself safely under concurrent mutation: the store alone
// knows which page ranges are stable enough to copy, so the copy
// contract is delegated to it rather than derived from file size.
type PageStore interface {
	// SetBackup toggles backup mode, a hint that pauses internal
	// page recycling.
	SetBackup(on bool)

	// PageCount returns the current number of pages.
	PageCount() int

	// CopyDirect copies a page range starting at pos into out and
	// returns the next cursor position, or a negative value once
	// the copy is complete.
	CopyDirect(pos int, out io.Writer) (int, error)
}

// copyPageStore drains the store page range by page range into the
// already-open archive entry, reporting progress after each step.
// Backup mode is cleared on every exit path.
func copyPageStore(store PageStore, entryName string, out io.Writer, progress Listener) error {
	store.SetBackup(true)
	defer store.SetBackup(false)

	pos := 0
	for {
		next, err := store.CopyDirect(pos, out)
		if err != nil {
			return err
		}
		if next < 0 {
			return nil
		}
		pos = next
		progress.Progress(StateBackupFile, entryName, pos, store.PageCount())
	}
}
