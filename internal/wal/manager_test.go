package wal

import (
	"os"
	"testing"

	"github.com/stretchr/testify/require"
)

func newTestWAL(t *testing.T) *Manager {
	t.Helper()

	m, err := Open(t.TempDir())
	require.NoError(t, err)

	t.Cleanup(func() { _ = m.Close() })
	return m
}

func pageImage(fill byte) []byte {
	p := make([]byte, PageSize)
	for i := range p {
		p[i] = fill
	}
	return p
}

func TestOpen_FreshLog(t *testing.T) {
	m := newTestWAL(t)
	require.Equal(t, uint64(0), m.LastLSN())
}

func TestManager_Append_AssignsMonotonicLSNs(t *testing.T) {
	m := newTestWAL(t)

	for want := uint64(1); want <= 3; want++ {
		lsn, err := m.AppendPageWrite(want*10, pageImage(byte(want)))
		require.NoError(t, err)
		require.Equal(t, want, lsn)
	}
	require.Equal(t, uint64(3), m.LastLSN())
}

func TestManager_Append_RejectsWrongImageSize(t *testing.T) {
	m := newTestWAL(t)

	_, err := m.AppendPageWrite(1, make([]byte, PageSize-1))
	require.ErrorIs(t, err, ErrBadRecord)
	require.Equal(t, uint64(0), m.LastLSN())
}

func TestManager_Sync_AdvancesWatermark(t *testing.T) {
	m := newTestWAL(t)

	_, err := m.AppendPageWrite(1, pageImage(1))
	require.NoError(t, err)
	require.Less(t, m.flushed, m.lsn)

	require.NoError(t, m.Sync())
	require.Equal(t, m.lsn, m.flushed)

	// Nothing new appended: Sync is a no-op.
	require.NoError(t, m.Sync())
}

func TestManager_Reopen_RecoversLastLSN(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir)
	require.NoError(t, err)

	_, err = m.AppendPageWrite(5, pageImage(1))
	require.NoError(t, err)
	_, err = m.AppendPageWrite(6, pageImage(2))
	require.NoError(t, err)
	require.NoError(t, m.Sync())
	require.NoError(t, m.Close())

	m2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()

	require.Equal(t, uint64(2), m2.LastLSN())

	lsn, err := m2.AppendPageWrite(7, pageImage(3))
	require.NoError(t, err)
	require.Equal(t, uint64(3), lsn)
}

func TestManager_Reopen_ToleratesTornTail(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir)
	require.NoError(t, err)

	_, err = m.AppendPageWrite(1, pageImage(1))
	require.NoError(t, err)
	_, err = m.AppendPageWrite(2, pageImage(2))
	require.NoError(t, err)
	path := m.path
	require.NoError(t, m.Close())

	// Chop into the second record to simulate a crash mid-append.
	info, err := os.Stat(path)
	require.NoError(t, err)
	require.NoError(t, os.Truncate(path, info.Size()-10))

	m2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()

	require.Equal(t, uint64(1), m2.LastLSN())
}

func TestManager_Reopen_StopsAtCorruptRecord(t *testing.T) {
	dir := t.TempDir()

	m, err := Open(dir)
	require.NoError(t, err)

	_, err = m.AppendPageWrite(1, pageImage(1))
	require.NoError(t, err)
	_, err = m.AppendPageWrite(2, pageImage(2))
	require.NoError(t, err)
	path := m.path
	require.NoError(t, m.Close())

	// Flip one payload byte inside the first record.
	f, err := os.OpenFile(path, os.O_RDWR, 0o644)
	require.NoError(t, err)
	_, err = f.WriteAt([]byte{0xFF}, int64(recFixed+100))
	require.NoError(t, err)
	require.NoError(t, f.Close())

	m2, err := Open(dir)
	require.NoError(t, err)
	defer func() { _ = m2.Close() }()

	require.Equal(t, uint64(0), m2.LastLSN())
}

func TestManager_AppendAfterClose(t *testing.T) {
	m, err := Open(t.TempDir())
	require.NoError(t, err)
	require.NoError(t, m.Close())

	_, err = m.AppendPageWrite(1, pageImage(1))
	require.ErrorIs(t, err, ErrNoWALFile)
	require.ErrorIs(t, m.Sync(), ErrNoWALFile)
}
