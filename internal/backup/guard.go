package backup

// ReuseSpaceStore is the slice of the append store the space-reuse
// guard needs: the process-wide flag that allows the store to rewrite
// previously freed regions.
type ReuseSpaceStore interface {
	ReuseSpace() bool
	SetReuseSpace(on bool)
}

// WithReuseDisabled runs body with space reuse switched off, so the
// store is strictly append-only for the duration and any byte range a
// copier has observed stays valid until body returns. The previous
// flag value is restored on every exit path, including panic;
// permanently disabling reuse would leak space indefinitely.
func WithReuseDisabled(store ReuseSpaceStore, body func() error) error {
	before := store.ReuseSpace()
	store.SetReuseSpace(false)
	defer store.SetReuseSpace(before)
	return body()
}
