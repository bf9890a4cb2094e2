package archive

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/tis24dev/dbsave/internal/logging"
)

// Manifest records metadata about a finished backup archive.
type Manifest struct {
	ArchivePath string    `json:"archive_path"`
	ArchiveSize int64     `json:"archive_size"`
	SHA256      string    `json:"sha256"`
	CreatedAt   time.Time `json:"created_at"`
	Database    string    `json:"database"`
	Encrypted   bool      `json:"encrypted,omitempty"`
	Entries     []string  `json:"entries"`
}

// ManifestPath returns the sidecar path for an archive.
func ManifestPath(archivePath string) string {
	return archivePath + ".manifest.json"
}

// GenerateChecksum calculates the SHA256 checksum of a file.
func GenerateChecksum(ctx context.Context, logger *logging.Logger, filePath string) (string, error) {
	logger.Debug("Generating SHA256 checksum for: %s", filePath)

	file, err := os.Open(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to open file: %w", err)
	}
	defer file.Close()

	hash := sha256.New()
	buf := make([]byte, 32*1024)
	for {
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		default:
		}

		n, err := file.Read(buf)
		if n > 0 {
			if _, werr := hash.Write(buf[:n]); werr != nil {
				return "", fmt.Errorf("failed to write to hash: %w", werr)
			}
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", fmt.Errorf("failed to read file: %w", err)
		}
	}

	checksum := hex.EncodeToString(hash.Sum(nil))
	logger.Debug("Generated checksum: %s", checksum)
	return checksum, nil
}

// WriteManifest sizes and hashes the archive bytes at dataPath and
// writes the manifest sidecar next to m.ArchivePath. The two paths
// differ when the manifest is written before the archive is renamed
// into place; an empty dataPath means the archive already sits at its
// final path.
func WriteManifest(ctx context.Context, logger *logging.Logger, m *Manifest, dataPath string) (string, error) {
	if dataPath == "" {
		dataPath = m.ArchivePath
	}
	info, err := os.Stat(dataPath)
	if err != nil {
		return "", fmt.Errorf("stat archive: %w", err)
	}
	m.ArchiveSize = info.Size()

	checksum, err := GenerateChecksum(ctx, logger, dataPath)
	if err != nil {
		return "", err
	}
	m.SHA256 = checksum
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}

	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal manifest: %w", err)
	}

	path := ManifestPath(m.ArchivePath)
	if err := os.WriteFile(path, data, 0644); err != nil {
		return "", fmt.Errorf("failed to write manifest file: %w", err)
	}

	logger.Debug("Manifest created: %s", path)
	return path, nil
}

// LoadManifest reads a manifest sidecar.
func LoadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}
	var m Manifest
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &m, nil
}

// VerifyChecksum recomputes a file's checksum and compares it to the
// expected value.
func VerifyChecksum(ctx context.Context, logger *logging.Logger, filePath, expected string) (bool, error) {
	actual, err := GenerateChecksum(ctx, logger, filePath)
	if err != nil {
		return false, err
	}
	return actual == expected, nil
}
