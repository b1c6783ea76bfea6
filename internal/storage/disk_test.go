package storage

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

// newTestFile opens a FileManager backed by a temp database file.
func newTestFile(t *testing.T) *FileManager {
	t.Helper()

	path := filepath.Join(t.TempDir(), "test.db")
	m, err := Open(path)
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Close() })
	return m
}

func TestOpen_FreshFileHasNoDataPages(t *testing.T) {
	m := newTestFile(t)

	require.Equal(t, 0, m.NumAllocated())

	// Header page is materialized on creation.
	info, err := os.Stat(m.Path())
	require.NoError(t, err)
	require.Equal(t, int64(PageSize), info.Size())
}

func TestFileManager_AllocateWriteRead(t *testing.T) {
	m := newTestFile(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, PageID(1), id)

	out := make([]byte, PageSize)
	out[0] = 0xAB
	out[PageSize-1] = 0xCD
	require.NoError(t, m.WritePage(id, out))

	in := make([]byte, PageSize)
	require.NoError(t, m.ReadPage(id, in))
	require.Equal(t, out, in)
}

func TestFileManager_ReadNeverWrittenPage_Zeroes(t *testing.T) {
	m := newTestFile(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)

	buf := make([]byte, PageSize)
	for i := range buf {
		buf[i] = 0xFF
	}
	require.NoError(t, m.ReadPage(id, buf))

	for i, b := range buf {
		require.Zerof(t, b, "byte %d", i)
	}
}

func TestFileManager_UnallocatedIDs_Rejected(t *testing.T) {
	m := newTestFile(t)

	buf := make([]byte, PageSize)

	require.ErrorIs(t, m.ReadPage(InvalidPageID, buf), ErrPageNotFound)
	require.ErrorIs(t, m.ReadPage(1, buf), ErrPageNotFound)
	require.ErrorIs(t, m.WritePage(7, buf), ErrPageNotFound)
}

func TestFileManager_WrongBufferSize(t *testing.T) {
	m := newTestFile(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)

	short := make([]byte, PageSize-1)
	require.ErrorIs(t, m.ReadPage(id, short), ErrWrongPageSize)
	require.ErrorIs(t, m.WritePage(id, short), ErrWrongPageSize)
}

func TestFileManager_DeallocateThenReuse(t *testing.T) {
	m := newTestFile(t)

	a, err := m.AllocatePage()
	require.NoError(t, err)
	b, err := m.AllocatePage()
	require.NoError(t, err)
	require.NotEqual(t, a, b)
	require.Equal(t, 2, m.NumAllocated())

	require.NoError(t, m.DeallocatePage(a))
	require.Equal(t, 1, m.NumAllocated())

	// Freed id comes back before the watermark grows.
	c, err := m.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, a, c)
	require.Equal(t, 2, m.NumAllocated())
}

func TestFileManager_DeallocateUnknown_NoOp(t *testing.T) {
	m := newTestFile(t)

	require.NoError(t, m.DeallocatePage(InvalidPageID))
	require.NoError(t, m.DeallocatePage(99))

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m.DeallocatePage(id))
	// Second deallocation of the same id is a no-op.
	require.NoError(t, m.DeallocatePage(id))
	require.Equal(t, 0, m.NumAllocated())
}

func TestFileManager_FreedPageNotReadable(t *testing.T) {
	m := newTestFile(t)

	id, err := m.AllocatePage()
	require.NoError(t, err)
	require.NoError(t, m.DeallocatePage(id))

	buf := make([]byte, PageSize)
	require.ErrorIs(t, m.ReadPage(id, buf), ErrPageNotFound)
}

func TestFileManager_HeaderSurvivesReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reopen.db")

	m, err := Open(path)
	require.NoError(t, err)

	a, err := m.AllocatePage()
	require.NoError(t, err)
	b, err := m.AllocatePage()
	require.NoError(t, err)
	_, err = m.AllocatePage()
	require.NoError(t, err)

	out := make([]byte, PageSize)
	out[42] = 42
	require.NoError(t, m.WritePage(b, out))
	require.NoError(t, m.DeallocatePage(a))
	require.NoError(t, m.Close())

	m2, err := Open(path)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()

	require.Equal(t, 2, m2.NumAllocated())

	in := make([]byte, PageSize)
	require.NoError(t, m2.ReadPage(b, in))
	require.Equal(t, byte(42), in[42])

	// The freed id survives the reopen and is reused first.
	c, err := m2.AllocatePage()
	require.NoError(t, err)
	require.Equal(t, a, c)
}

func TestOpen_RejectsForeignFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "garbage.db")
	require.NoError(t, os.WriteFile(path, make([]byte, PageSize), FileMode0644))

	_, err := Open(path)
	require.ErrorIs(t, err, ErrBadHeader)
}

func TestFileManager_ClosedOperationsFail(t *testing.T) {
	m := newTestFile(t)
	require.NoError(t, m.Close())
	// Close is idempotent.
	require.NoError(t, m.Close())

	buf := make([]byte, PageSize)
	require.ErrorIs(t, m.ReadPage(1, buf), ErrClosed)
	require.ErrorIs(t, m.WritePage(1, buf), ErrClosed)

	_, err := m.AllocatePage()
	require.ErrorIs(t, err, ErrClosed)
	require.ErrorIs(t, m.DeallocatePage(1), ErrClosed)
	require.ErrorIs(t, m.Sync(), ErrClosed)
}
