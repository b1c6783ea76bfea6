package buffer

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/tuannm99/novabuf/internal/storage"
)

func TestNewMetrics_RegistersAllInstruments(t *testing.T) {
	met, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	require.NotNil(t, met.HitsCounter)
	require.NotNil(t, met.MissesCounter)
	require.NotNil(t, met.EvictionsCounter)
	require.NotNil(t, met.WriteBacksCounter)
	require.NotNil(t, met.PinnedUpDownCount)
}

func TestPool_OperationsWithMetricsAttached(t *testing.T) {
	fm, err := storage.Open(filepath.Join(t.TempDir(), "metrics.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = fm.Close() })

	met, err := NewMetrics(noop.NewMeterProvider().Meter("test"))
	require.NoError(t, err)

	pool := New(1, fm, nil, nil, met)
	ids := allocPages(t, fm, 2)

	// Miss, hit, dirty unpin, eviction with write-back: every counter
	// path runs.
	h, err := pool.Fetch(ids[0])
	require.NoError(t, err)
	_, err = pool.Fetch(ids[0])
	require.NoError(t, err)
	h.Data()[0] = 1
	require.NoError(t, pool.Unpin(ids[0], true))
	require.NoError(t, pool.Unpin(ids[0], false))

	_, err = pool.Fetch(ids[1])
	require.NoError(t, err)
	require.NoError(t, pool.Close())
}
