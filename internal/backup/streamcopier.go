package backup

import "io"

// copyStream fully drains in into the current archive entry and
// closes in. There is no partial-entry retry: a read failure
// mid-stream aborts the whole backup.
func copyStream(in io.ReadCloser, out io.Writer) error {
	_, err := io.Copy(out, in)
	if cerr := in.Close(); err == nil {
		err = cerr
	}
	return err
}
