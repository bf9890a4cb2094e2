package archive

import (
	"archive/zip"
	"bytes"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"filippo.io/age"
)

func TestNormalizeEntryName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"mydb.page.db", "mydb.page.db"},
		{"/mydb.page.db", "mydb.page.db"},
		{"\\mydb.page.db", "mydb.page.db"},
		{"sub\\dir\\mydb.lob.db", "sub/dir/mydb.lob.db"},
		{"//double/lead", "double/lead"},
		{"a\\b/c", "a/b/c"},
	}
	for _, tc := range cases {
		got := NormalizeEntryName(tc.in)
		if got != tc.want {
			t.Errorf("NormalizeEntryName(%q) = %q, want %q", tc.in, got, tc.want)
		}
		if strings.HasPrefix(got, "/") || strings.Contains(got, "\\") {
			t.Errorf("normalized name %q still absolute or backslashed", got)
		}
	}
}

func TestWriterRoundTrip(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")

	w, err := Create(dest)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	entry, err := w.CreateEntry("mydb.page.db")
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if _, err := entry.Write([]byte("page image")); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	zr, err := zip.OpenReader(dest)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer zr.Close()
	if len(zr.File) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(zr.File))
	}
	if zr.File[0].Name != "mydb.page.db" {
		t.Errorf("unexpected entry name %q", zr.File[0].Name)
	}
	rc, err := zr.File[0].Open()
	if err != nil {
		t.Fatalf("open entry: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read entry: %v", err)
	}
	if string(data) != "page image" {
		t.Error("entry content mismatch")
	}
}

func TestWriterRejectsDuplicateEntries(t *testing.T) {
	w, err := Create(filepath.Join(t.TempDir(), "out.zip"))
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	defer w.Abort()

	if _, err := w.CreateEntry("mydb.lob.db"); err != nil {
		t.Fatalf("first CreateEntry failed: %v", err)
	}
	// Same name after normalization.
	if _, err := w.CreateEntry("/mydb.lob.db"); err == nil {
		t.Fatal("expected duplicate entry name to be rejected")
	}
}

func TestWriterFinalizeHoldsBackPublish(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	w, err := Create(dest)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.CreateEntry("mydb.page.db"); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}

	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination must not exist before Publish")
	}
	// The finalized container is a complete zip at the temp path.
	if _, err := zip.OpenReader(w.TempPath()); err != nil {
		t.Fatalf("finalized temp container is not a valid zip: %v", err)
	}

	if err := w.Publish(); err != nil {
		t.Fatalf("Publish failed: %v", err)
	}
	if _, err := os.Stat(dest); err != nil {
		t.Errorf("destination missing after Publish: %v", err)
	}
	if _, err := os.Stat(w.TempPath()); !os.IsNotExist(err) {
		t.Error("temp file should be gone after Publish")
	}
}

func TestWriterAbortAfterFinalizeRemovesTemp(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	w, err := Create(dest)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.CreateEntry("mydb.page.db"); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if err := w.Finalize(); err != nil {
		t.Fatalf("Finalize failed: %v", err)
	}
	w.Abort()

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination should not exist after abort")
	}
	if _, err := os.Stat(w.TempPath()); !os.IsNotExist(err) {
		t.Error("temp file should be removed by abort")
	}
}

func TestWriterRejectsDirectoryDestination(t *testing.T) {
	dir := t.TempDir()
	if _, err := Create(dir); err == nil {
		t.Fatal("expected directory destination to be rejected")
	}
}

func TestWriterAbortLeavesNoFiles(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	w, err := Create(dest)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.CreateEntry("mydb.page.db"); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	w.Abort()

	if _, err := os.Stat(dest); !os.IsNotExist(err) {
		t.Error("destination should not exist after abort")
	}
	if _, err := os.Stat(dest + ".partial"); !os.IsNotExist(err) {
		t.Error("partial file should be removed by abort")
	}
}

func TestWriterReplacesExistingFile(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "out.zip")
	if err := os.WriteFile(dest, []byte("stale"), 0644); err != nil {
		t.Fatalf("seed destination: %v", err)
	}

	w, err := Create(dest)
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := w.CreateEntry("mydb.page.db"); err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	if _, err := zip.OpenReader(dest); err != nil {
		t.Fatalf("destination should be a fresh archive: %v", err)
	}
}

func TestWriterEncryptedRoundTrip(t *testing.T) {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		t.Fatalf("generate identity: %v", err)
	}

	dest := filepath.Join(t.TempDir(), "out.zip")
	w, err := Create(dest, identity.Recipient())
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	entry, err := w.CreateEntry("mydb.page.db")
	if err != nil {
		t.Fatalf("CreateEntry failed: %v", err)
	}
	if _, err := entry.Write([]byte("secret pages")); err != nil {
		t.Fatalf("write entry: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	// The raw file must not be a readable zip.
	if _, err := zip.OpenReader(dest); err == nil {
		t.Fatal("encrypted archive should not open as a plain zip")
	}

	ciphertext, err := os.Open(dest)
	if err != nil {
		t.Fatalf("open archive: %v", err)
	}
	defer ciphertext.Close()
	plain, err := age.Decrypt(ciphertext, identity)
	if err != nil {
		t.Fatalf("age decrypt: %v", err)
	}
	decrypted, err := io.ReadAll(plain)
	if err != nil {
		t.Fatalf("read decrypted stream: %v", err)
	}
	zr, err := zip.NewReader(bytes.NewReader(decrypted), int64(len(decrypted)))
	if err != nil {
		t.Fatalf("decrypted stream is not a zip: %v", err)
	}
	if len(zr.File) != 1 || zr.File[0].Name != "mydb.page.db" {
		t.Error("decrypted archive content mismatch")
	}
}
