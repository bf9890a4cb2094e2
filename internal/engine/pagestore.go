package engine

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"sync"
)

const (
	// DefaultPageSize is the page size used for new page stores.
	DefaultPageSize = 4096

	// copyPagesPerStep bounds how many pages one CopyDirect call
	// copies, so backup progress events stay meaningful.
	copyPagesPerStep = 16

	pageStoreMagic   = 0x44425350 // "DBSP"
	pageStoreVersion = 1
)

// PageStore is a file-backed fixed-page store. Page 0 is the header
// page; data pages follow. All access is serialized by an internal
// mutex, which is what makes the CopyDirect cursor safe to run while
// other goroutines allocate and write pages.
type PageStore struct {
	mu         sync.Mutex
	file       *os.File
	path       string
	pageSize   int
	pageCount  int
	freePages  []int
	backupMode bool
}

// OpenPageStore opens or creates the page store at path.
func OpenPageStore(path string, pageSize int) (*PageStore, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	file, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0640)
	if err != nil {
		return nil, fmt.Errorf("open page store: %w", err)
	}

	s := &PageStore{
		file:     file,
		path:     path,
		pageSize: pageSize,
	}

	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("stat page store: %w", err)
	}
	if info.Size() == 0 {
		s.pageCount = 1
		if err := s.writeHeader(); err != nil {
			file.Close()
			return nil, err
		}
		return s, nil
	}
	if err := s.readHeader(); err != nil {
		file.Close()
		return nil, err
	}
	return s, nil
}

func (s *PageStore) writeHeader() error {
	header := make([]byte, s.pageSize)
	binary.BigEndian.PutUint32(header[0:4], pageStoreMagic)
	binary.BigEndian.PutUint32(header[4:8], pageStoreVersion)
	binary.BigEndian.PutUint32(header[8:12], uint32(s.pageSize))
	binary.BigEndian.PutUint32(header[12:16], uint32(s.pageCount))
	if _, err := s.file.WriteAt(header, 0); err != nil {
		return fmt.Errorf("write page store header: %w", err)
	}
	return nil
}

func (s *PageStore) readHeader() error {
	header := make([]byte, 16)
	if _, err := io.ReadFull(io.NewSectionReader(s.file, 0, 16), header); err != nil {
		return fmt.Errorf("read page store header: %w", err)
	}
	if binary.BigEndian.Uint32(header[0:4]) != pageStoreMagic {
		return fmt.Errorf("%s: not a page store file", s.path)
	}
	size := int(binary.BigEndian.Uint32(header[8:12]))
	if size <= 0 {
		return fmt.Errorf("%s: invalid page size %d", s.path, size)
	}
	s.pageSize = size
	s.pageCount = int(binary.BigEndian.Uint32(header[12:16]))
	if s.pageCount < 1 {
		s.pageCount = 1
	}
	return nil
}

// Path returns the file path of the store.
func (s *PageStore) Path() string {
	return s.path
}

// PageSize returns the page size in bytes.
func (s *PageStore) PageSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageSize
}

// PageCount returns the number of pages including the header page.
func (s *PageStore) PageCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pageCount
}

// AllocatePage returns the index of a writable page. Freed pages are
// recycled unless backup mode is set, in which case the store only
// grows, so a concurrent CopyDirect never observes a page changing
// underneath a position it has already passed.
func (s *PageStore) AllocatePage() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.backupMode && len(s.freePages) > 0 {
		idx := s.freePages[len(s.freePages)-1]
		s.freePages = s.freePages[:len(s.freePages)-1]
		return idx, nil
	}

	idx := s.pageCount
	zero := make([]byte, s.pageSize)
	if _, err := s.file.WriteAt(zero, int64(idx)*int64(s.pageSize)); err != nil {
		return 0, fmt.Errorf("extend page store: %w", err)
	}
	s.pageCount++
	return idx, nil
}

// FreePage marks a page as reusable.
func (s *PageStore) FreePage(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if idx > 0 && idx < s.pageCount {
		s.freePages = append(s.freePages, idx)
	}
}

// WritePage writes data into page idx. Data longer than a page is an
// error; shorter data is zero-padded.
func (s *PageStore) WritePage(idx int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 1 || idx >= s.pageCount {
		return fmt.Errorf("page %d out of range (count %d)", idx, s.pageCount)
	}
	if len(data) > s.pageSize {
		return fmt.Errorf("page data %d bytes exceeds page size %d", len(data), s.pageSize)
	}
	page := make([]byte, s.pageSize)
	copy(page, data)
	if _, err := s.file.WriteAt(page, int64(idx)*int64(s.pageSize)); err != nil {
		return fmt.Errorf("write page %d: %w", idx, err)
	}
	return nil
}

// ReadPage reads page idx.
func (s *PageStore) ReadPage(idx int) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if idx < 0 || idx >= s.pageCount {
		return nil, fmt.Errorf("page %d out of range (count %d)", idx, s.pageCount)
	}
	page := make([]byte, s.pageSize)
	if _, err := s.file.ReadAt(page, int64(idx)*int64(s.pageSize)); err != nil {
		return nil, fmt.Errorf("read page %d: %w", idx, err)
	}
	return page, nil
}

// SetBackup toggles backup mode. While set, freed pages are not
// recycled.
func (s *PageStore) SetBackup(on bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.backupMode = on
}

// CopyDirect copies a bounded page range starting at page pos to out
// and returns the next position, or -1 once every page has been
// copied. The store's mutex serializes the copy step against
// concurrent page writes, so each returned range is a stable image.
func (s *PageStore) CopyDirect(pos int, out io.Writer) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if pos < 0 || pos >= s.pageCount {
		return -1, nil
	}
	n := copyPagesPerStep
	if pos+n > s.pageCount {
		n = s.pageCount - pos
	}
	buf := make([]byte, n*s.pageSize)
	if _, err := s.file.ReadAt(buf, int64(pos)*int64(s.pageSize)); err != nil {
		return 0, fmt.Errorf("copy pages %d..%d: %w", pos, pos+n-1, err)
	}
	if _, err := out.Write(buf); err != nil {
		return 0, err
	}
	return pos + n, nil
}

// Sync persists the header and flushes the file to disk.
func (s *PageStore) Sync() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.writeHeader(); err != nil {
		return err
	}
	if err := s.file.Sync(); err != nil {
		return fmt.Errorf("sync page store: %w", err)
	}
	return nil
}

// Close syncs and closes the store file.
func (s *PageStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.file == nil {
		return nil
	}
	if err := s.writeHeader(); err != nil {
		s.file.Close()
		s.file = nil
		return err
	}
	err := s.file.Close()
	s.file = nil
	return err
}
