package storage

import "errors"

// PageID identifies a page inside a database file. Page 0 is the file
// header, so InvalidPageID doubles as the zero value.
type PageID uint64

const InvalidPageID PageID = 0

const (
	OneB  = 1 << 0  // 1
	OneKB = 1 << 10 // 1,024
	OneMB = 1 << 20 // 1,048,576

	PageSize = 1 << 12 // 4,096 (4 KiB)
)

const (
	FileMode0644 = 0o644
	FileMode0664 = 0o664
	FileMode0755 = 0o755
)

var (
	ErrPageNotFound  = errors.New("storage: page not found")
	ErrWrongPageSize = errors.New("storage: buffer size does not match page size")
	ErrBadHeader     = errors.New("storage: bad file header")
	ErrStorageIO     = errors.New("storage: I/O error")
	ErrClosed        = errors.New("storage: file manager is closed")
)
