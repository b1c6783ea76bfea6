package storage

import (
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/tuannm99/novabuf/internal/bx"
)

const (
	magicU32   uint32 = 0x4655424E // "NBUF"
	versionU16 uint16 = 1

	// Header page layout (page 0, little-endian):
	//
	//   +--------+---------+----------+----------+------------+-----------+----------------+
	//   | magic  | version | reserved | pageSize | nextPageID | freeCount | freeIDs ...    |
	//   | u32    | u16     | u16      | u32      | u64        | u32       | u64 each       |
	//   +--------+---------+----------+----------+------------+-----------+----------------+
	//   0        4         6          8          12           20          24
	headerFixed = 24

	// Free ids live inline in the header page; once it is full,
	// further deallocations are dropped and those pages are never reused.
	maxFreeIDs = (PageSize - headerFixed) / 8
)

// FileManager stores fixed-size pages in a single database file.
// Page 0 holds the header (allocation watermark + free list); data
// pages start at id 1.
type FileManager struct {
	mu     sync.Mutex
	f      *os.File
	path   string
	next   PageID   // next never-used page id, starts at 1
	free   []PageID // deallocated ids available for reuse, LIFO
	closed bool
}

// Open opens or creates the database file at path.
func Open(path string) (*FileManager, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, FileMode0644)
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageIO, path, err)
	}

	info, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%w: stat %s: %v", ErrStorageIO, path, err)
	}

	m := &FileManager{f: f, path: path, next: 1}

	if info.Size() == 0 {
		// Fresh file: materialize the header page.
		if err := m.writeHeader(); err != nil {
			_ = f.Close()
			return nil, err
		}
		return m, nil
	}

	if err := m.readHeader(); err != nil {
		_ = f.Close()
		return nil, err
	}
	return m, nil
}

func (m *FileManager) Path() string { return m.path }

// ReadPage reads page id into buf. Pages that were allocated but never
// written read back as zeroes.
func (m *FileManager) ReadPage(id PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("%w: got %d bytes", ErrWrongPageSize, len(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if !m.allocated(id) {
		return fmt.Errorf("%w: page %d", ErrPageNotFound, id)
	}

	n, err := m.f.ReadAt(buf, int64(id)*PageSize)
	if err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			// Allocated past the physical end of file.
			for i := n; i < PageSize; i++ {
				buf[i] = 0
			}
			return nil
		}
		return fmt.Errorf("%w: read page %d: %v", ErrStorageIO, id, err)
	}
	return nil
}

// WritePage writes buf as page id.
func (m *FileManager) WritePage(id PageID, buf []byte) error {
	if len(buf) != PageSize {
		return fmt.Errorf("%w: got %d bytes", ErrWrongPageSize, len(buf))
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if !m.allocated(id) {
		return fmt.Errorf("%w: page %d", ErrPageNotFound, id)
	}

	if _, err := m.f.WriteAt(buf, int64(id)*PageSize); err != nil {
		return fmt.Errorf("%w: write page %d: %v", ErrStorageIO, id, err)
	}
	return nil
}

// AllocatePage hands out a page id, reusing the most recently freed one
// when available.
func (m *FileManager) AllocatePage() (PageID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return InvalidPageID, ErrClosed
	}

	var id PageID
	fromFree := false
	if n := len(m.free); n > 0 {
		id = m.free[n-1]
		m.free = m.free[:n-1]
		fromFree = true
	} else {
		id = m.next
		m.next++
	}

	if err := m.writeHeader(); err != nil {
		// Roll back so the id is not leaked.
		if fromFree {
			m.free = append(m.free, id)
		} else {
			m.next--
		}
		return InvalidPageID, err
	}
	return id, nil
}

// DeallocatePage marks id reusable. Unknown or already-freed ids are a no-op.
func (m *FileManager) DeallocatePage(id PageID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if id == InvalidPageID || id >= m.next || m.isFree(id) {
		return nil
	}
	if len(m.free) >= maxFreeIDs {
		// Header page is full; the id is leaked rather than tracked elsewhere.
		return nil
	}

	m.free = append(m.free, id)
	if err := m.writeHeader(); err != nil {
		m.free = m.free[:len(m.free)-1]
		return err
	}
	return nil
}

// NumAllocated reports how many data pages are currently allocated.
func (m *FileManager) NumAllocated() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return int(m.next) - 1 - len(m.free)
}

func (m *FileManager) Sync() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return ErrClosed
	}
	if err := m.f.Sync(); err != nil {
		return fmt.Errorf("%w: sync: %v", ErrStorageIO, err)
	}
	return nil
}

func (m *FileManager) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.closed {
		return nil
	}
	m.closed = true

	if err := m.f.Sync(); err != nil {
		_ = m.f.Close()
		return fmt.Errorf("%w: sync on close: %v", ErrStorageIO, err)
	}
	if err := m.f.Close(); err != nil {
		return fmt.Errorf("%w: close: %v", ErrStorageIO, err)
	}
	return nil
}

// allocated reports whether id maps to a live data page.
// Callers must hold m.mu.
func (m *FileManager) allocated(id PageID) bool {
	return id != InvalidPageID && id < m.next && !m.isFree(id)
}

func (m *FileManager) isFree(id PageID) bool {
	for _, fid := range m.free {
		if fid == id {
			return true
		}
	}
	return false
}

func (m *FileManager) writeHeader() error {
	buf := make([]byte, PageSize)
	bx.PutU32At(buf, 0, magicU32)
	bx.PutU16At(buf, 4, versionU16)
	bx.PutU16At(buf, 6, 0)
	bx.PutU32At(buf, 8, PageSize)
	bx.PutU64At(buf, 12, uint64(m.next))
	bx.PutU32At(buf, 20, uint32(len(m.free)))
	for i, id := range m.free {
		bx.PutU64At(buf, headerFixed+i*8, uint64(id))
	}

	if _, err := m.f.WriteAt(buf, 0); err != nil {
		return fmt.Errorf("%w: write header: %v", ErrStorageIO, err)
	}
	return nil
}

func (m *FileManager) readHeader() error {
	buf := make([]byte, PageSize)
	if _, err := io.ReadFull(io.NewSectionReader(m.f, 0, PageSize), buf); err != nil {
		return fmt.Errorf("%w: header truncated: %v", ErrBadHeader, err)
	}

	if got := bx.U32At(buf, 0); got != magicU32 {
		return fmt.Errorf("%w: magic %#x", ErrBadHeader, got)
	}
	if got := bx.U16At(buf, 4); got != versionU16 {
		return fmt.Errorf("%w: version %d", ErrBadHeader, got)
	}
	if got := bx.U32At(buf, 8); got != PageSize {
		return fmt.Errorf("%w: page size %d, built with %d", ErrBadHeader, got, PageSize)
	}

	m.next = PageID(bx.U64At(buf, 12))
	if m.next == 0 {
		return fmt.Errorf("%w: zero watermark", ErrBadHeader)
	}

	count := int(bx.U32At(buf, 20))
	if count > maxFreeIDs {
		return fmt.Errorf("%w: free count %d", ErrBadHeader, count)
	}
	m.free = make([]PageID, 0, count)
	for i := 0; i < count; i++ {
		m.free = append(m.free, PageID(bx.U64At(buf, headerFixed+i*8)))
	}
	return nil
}
