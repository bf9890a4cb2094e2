package engine

import (
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"os"
	"sync"
)

const (
	appendStoreMagic   = 0x44424C47 // "DBLG"
	appendStoreVersion = 1

	appendHeaderSize = 16
	recordHeaderSize = 8
)

// ErrCorruptImage reports that an append-store image failed
// validation (bad magic, truncated record, or CRC mismatch).
var ErrCorruptImage = errors.New("corrupt append store image")

type region struct {
	off  int64
	size int64
}

// AppendStore is a log-structured store: framed records appended to a
// single file behind a 16-byte header carrying the committed length.
// Freed regions may be rewritten by later appends when the
// reuse-space flag is on; with the flag off the store is strictly
// append-only, which is what the backup guard relies on.
type AppendStore struct {
	mu           sync.Mutex
	file         *os.File
	path         string
	writeOff     int64
	committedLen int64
	reuseSpace   bool
	freeRegions  []region
}

// OpenAppendStore opens or creates the append store at path.
func OpenAppendStore(path string) (*AppendStore, error) {
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, fmt.Errorf("open append store: %w", err)
	}

	s := &AppendStore{
		file:       file,
		path:       path,
		reuseSpace: true,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat append store: %w", err)
	}
	if info.Size() == 0 {
		s.writeOff = appendHeaderSize
		s.committedLen = appendHeaderSize
		if err := s.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		return s, nil
	}

	header := make([]byte, appendHeaderSize)
	if _, err := io.ReadFull(io.NewSectionReader(file, 0, appendHeaderSize), header); err != nil {
		file.Close()
		return nil, fmt.Errorf("read append store header: %w", err)
	}
	if binary.BigEndian.Uint32(header[0:4]) != appendStoreMagic {
		file.Close()
		return nil, fmt.Errorf("%s: not an append store file", path)
	}
	s.committedLen = int64(binary.BigEndian.Uint64(header[8:16]))
	if s.committedLen < appendHeaderSize {
		s.committedLen = appendHeaderSize
	}
	s.writeOff = info.Size()
	if s.writeOff < s.committedLen {
		s.writeOff = s.committedLen
	}
	return s, nil
}

func (s *AppendStore) writeHeader() error {
	header := make([]byte, appendHeaderSize)
	binary.BigEndian.PutUint32(header[0:4], appendStoreMagic)
	binary.BigEndian.PutUint32(header[4:8], appendStoreVersion)
	binary.BigEndian.PutUint64(header[8:16], uint64(s.committedLen))
	if _, err := s.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("write append store header: %w", err)
	}
	return nil
}

// Path returns the file path of the store.
func (s *AppendStore) Path() string {
	return s.path
}

// ReuseSpace reports whether freed regions may be rewritten.
func (s *AppendStore) ReuseSpace() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.reuseSpace
}

// SetReuseSpace toggles rewriting of freed regions.
func (s *AppendStore) SetReuseSpace(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reuseSpace = on
}

// Append writes one framed record and returns its file offset. A
// freed region large enough for the record is rewritten when the
// reuse-space flag is on; otherwise the record goes past the current
// end of the log. A smaller record taking over a larger region gets a
// filler record written across the remainder, so the frame chain
// inside the committed image never breaks; the remainder stays free
// for later appends.
func (s *AppendStore) Append(payload []byte) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	size := int64(recordHeaderSize + len(payload))
	off := s.writeOff
	reused := false
	var filler int64
	if s.reuseSpace {
		for i, r := range s.freeRegions {
			rest := r.size - size
			// A remainder too small to hold a record frame
			// would be unframeable garbage; leave such
			// regions alone.
			if rest < 0 || (rest > 0 && rest < recordHeaderSize) {
				continue
			}
			off = r.off
			reused = true
			if rest == 0 {
				s.freeRegions = append(s.freeRegions[:i], s.freeRegions[i+1:]...)
			} else {
				s.freeRegions[i] = region{off: r.off + size, size: rest}
				filler = rest
			}
			break
		}
	}

	rec := make([]byte, size)
	binary.BigEndian.PutUint32(rec[0:4], uint32(len(payload)))
	binary.BigEndian.PutUint32(rec[4:8], crc32.ChecksumIEEE(payload))
	copy(rec[recordHeaderSize:], payload)
	if _, err := s.file.WriteAt(rec, off); err != nil {
		return 0, fmt.Errorf("append record: %w", err)
	}
	if filler > 0 {
		pad := make([]byte, filler)
		binary.BigEndian.PutUint32(pad[0:4], uint32(filler-recordHeaderSize))
		binary.BigEndian.PutUint32(pad[4:8], crc32.ChecksumIEEE(pad[recordHeaderSize:]))
		if _, err := s.file.WriteAt(pad, off+size); err != nil {
			return 0, fmt.Errorf("write filler record: %w", err)
		}
	}
	if !reused {
		s.writeOff += size
	}
	return off, nil
}

// Release marks the record at off as dead so a later append may
// rewrite its bytes (once the reuse-space flag allows it).
func (s *AppendStore) Release(off, size int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if off >= appendHeaderSize && size > 0 {
		s.freeRegions = append(s.freeRegions, region{off: off, size: size})
	}
}

// Flush commits everything appended so far: the header's committed
// length is advanced to the current end of the log and the file is
// synced.
func (s *AppendStore) Flush() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.committedLen = s.writeOff
	if err := s.writeHeader(); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync append store: %w", err)
	}
	return nil
}

// CommittedLen returns the committed length recorded by the last
// flush.
func (s *AppendStore) CommittedLen() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committedLen
}

// InputStream returns a reader over the committed image of the store.
// The reader is bounded at the committed length, so appends happening
// after this call are not observed; with reuse disabled the bytes it
// covers cannot be rewritten either, so the stream stays valid for
// its whole lifetime. Closing the reader does not close the store.
func (s *AppendStore) InputStream() (io.ReadCloser, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil, fmt.Errorf("%s: append store is closed", s.path)
	}
	return io.NopCloser(io.NewSectionReader(s.file, 0, s.committedLen)), nil
}

// Close flushes and closes the store file.
func (s *AppendStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	s.committedLen = s.writeOff
	if err := s.writeHeader(); err != nil {
		s.file.Close()
		s.file = nil
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}

// VerifyImage checks that r carries a well-formed append store image:
// valid magic, and every record inside the committed length intact
// with a matching CRC. It returns the number of records verified.
func VerifyImage(r io.Reader) (int, error) {
	header := make([]byte, appendHeaderSize)
	if _, err := io.ReadFull(r, header); err != nil {
		return 0, fmt.Errorf("%w: short header", ErrCorruptImage)
	}
	if binary.BigEndian.Uint32(header[0:4]) != appendStoreMagic {
		return 0, fmt.Errorf("%w: bad magic", ErrCorruptImage)
	}
	committed := int64(binary.BigEndian.Uint64(header[8:16]))
	if committed < appendHeaderSize {
		return 0, fmt.Errorf("%w: committed length %d below header size", ErrCorruptImage, committed)
	}

	records := 0
	remaining := committed - appendHeaderSize
	recHeader := make([]byte, recordHeaderSize)
	for remaining > 0 {
		if remaining < recordHeaderSize {
			return records, fmt.Errorf("%w: trailing %d bytes", ErrCorruptImage, remaining)
		}
		if _, err := io.ReadFull(r, recHeader); err != nil {
			return records, fmt.Errorf("%w: truncated record header", ErrCorruptImage)
		}
		length := int64(binary.BigEndian.Uint32(recHeader[0:4]))
		sum := binary.BigEndian.Uint32(recHeader[4:8])
		if length > remaining-recordHeaderSize {
			return records, fmt.Errorf("%w: record length %d exceeds image", ErrCorruptImage, length)
		}
		payload := make([]byte, length)
		if _, err := io.ReadFull(r, payload); err != nil {
			return records, fmt.Errorf("%w: truncated record payload", ErrCorruptImage)
		}
		if crc32.ChecksumIEEE(payload) != sum {
			return records, fmt.Errorf("%w: CRC mismatch in record %d", ErrCorruptImage, records)
		}
		records++
		remaining -= recordHeaderSize + length
	}
	return records, nil
}
