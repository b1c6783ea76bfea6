package wal

import (
	"bufio"
	"errors"
	"hash/crc32"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/tuannm99/novabuf/internal/bx"
)

var (
	ErrBadMagic  = errors.New("wal: bad magic")
	ErrBadCRC    = errors.New("wal: bad crc")
	ErrBadRecord = errors.New("wal: bad record")
	ErrShortRead = errors.New("wal: short read")
	ErrNoWALFile = errors.New("wal: wal file not found")
)

const (
	magicU32   uint32 = 0x4C415742 // "BWAL"
	versionU16        = 1

	recPageWrite uint8 = 1

	// Keep WAL independent from storage package.
	PageSize = 4096

	// fixed fields:
	// magic(4) ver(2) typ(1) rsv(1) totalLen(4) crc(4) lsn(8) pageID(8)
	recFixed = 4 + 2 + 1 + 1 + 4 + 4 + 8 + 8
)

// Manager is an append-only page-image log. Records carry a monotonic
// LSN; Sync makes everything appended so far durable.
type Manager struct {
	mu      sync.Mutex
	f       *os.File
	path    string
	lsn     uint64
	flushed uint64
}

func Open(dir string) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	path := filepath.Join(dir, "wal.log")
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_APPEND, 0o644)
	if err != nil {
		return nil, err
	}
	m := &Manager{f: f, path: path}
	_ = m.initLastLSN()
	return m, nil
}

func (m *Manager) Close() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return nil
	}
	err := m.f.Close()
	m.f = nil
	return err
}

// AppendPageWrite logs a full page image for pageID and returns its LSN.
func (m *Manager) AppendPageWrite(pageID uint64, pageBytes []byte) (uint64, error) {
	if len(pageBytes) != PageSize {
		return 0, ErrBadRecord
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if m.f == nil {
		return 0, ErrNoWALFile
	}

	m.lsn++
	lsn := m.lsn

	totalLen := recFixed + PageSize

	buf := make([]byte, totalLen)
	off := 0

	putU32 := func(v uint32) { bx.PutU32(buf[off:off+4], v); off += 4 }
	putU16 := func(v uint16) { bx.PutU16(buf[off:off+2], v); off += 2 }
	putU64 := func(v uint64) { bx.PutU64(buf[off:off+8], v); off += 8 }
	putU8 := func(v uint8) { buf[off] = v; off++ }

	putU32(magicU32)
	putU16(versionU16)
	putU8(recPageWrite)
	putU8(0)

	putU32(uint32(totalLen))

	crcOff := off
	putU32(0) // placeholder

	putU64(lsn)
	putU64(pageID)

	copy(buf[off:], pageBytes)
	off += PageSize

	if off != totalLen {
		return 0, ErrBadRecord
	}

	crc := crc32.ChecksumIEEE(buf[crcOff+4:])
	bx.PutU32(buf[crcOff:crcOff+4], crc)

	if _, err := m.f.Write(buf); err != nil {
		return 0, err
	}
	return lsn, nil
}

// Sync makes every appended record durable. A no-op when nothing new was
// appended since the last call.
func (m *Manager) Sync() error {
	if m == nil {
		return nil
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.f == nil {
		return ErrNoWALFile
	}
	if m.lsn <= m.flushed {
		return nil
	}
	if err := m.f.Sync(); err != nil {
		return err
	}
	m.flushed = m.lsn
	return nil
}

// LastLSN returns the LSN of the most recently appended record.
func (m *Manager) LastLSN() uint64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lsn
}

type decodedRecord struct {
	typ    uint8
	lsn    uint64
	pageID uint64
	page   []byte
}

func readOne(r *bufio.Reader) (*decodedRecord, error) {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return nil, err
	}
	magic := bx.U32(hdr[:])
	if magic != magicU32 {
		return nil, ErrBadMagic
	}

	var verB [2]byte
	if _, err := io.ReadFull(r, verB[:]); err != nil {
		return nil, err
	}
	ver := bx.U16(verB[:])
	if ver != versionU16 {
		return nil, ErrBadRecord
	}

	tp, err := r.ReadByte()
	if err != nil {
		return nil, err
	}
	if _, err := r.ReadByte(); err != nil { // reserved
		return nil, err
	}

	var lenB [4]byte
	if _, err := io.ReadFull(r, lenB[:]); err != nil {
		return nil, err
	}
	totalLen := bx.U32(lenB[:])
	if totalLen != uint32(recFixed+PageSize) {
		return nil, ErrBadRecord
	}

	var crcB [4]byte
	if _, err := io.ReadFull(r, crcB[:]); err != nil {
		return nil, err
	}
	wantCRC := bx.U32(crcB[:])

	restLen := int(totalLen) - (4 + 2 + 1 + 1 + 4 + 4)
	rest := make([]byte, restLen)
	if _, err := io.ReadFull(r, rest); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrShortRead
		}
		return nil, err
	}
	gotCRC := crc32.ChecksumIEEE(rest)
	if gotCRC != wantCRC {
		return nil, ErrBadCRC
	}

	lsn := bx.U64(rest[0:8])
	pageID := bx.U64(rest[8:16])

	page := make([]byte, PageSize)
	copy(page, rest[16:16+PageSize])

	return &decodedRecord{
		typ:    tp,
		lsn:    lsn,
		pageID: pageID,
		page:   page,
	}, nil
}

// initLastLSN scans the log forward to find the highest LSN. A torn or
// corrupt tail ends the scan; everything before it counts.
func (m *Manager) initLastLSN() error {
	f, err := os.Open(m.path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	r := bufio.NewReaderSize(f, 1<<20)
	var last uint64

	for {
		rec, err := readOne(r)
		if err != nil {
			break
		}
		if rec.lsn > last {
			last = rec.lsn
		}
	}

	if last > 0 {
		m.lsn = last
		m.flushed = last
	}
	return nil
}
