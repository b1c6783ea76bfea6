package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"math/rand"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tuannm99/novabuf/internal"
	"github.com/tuannm99/novabuf/internal/buffer"
	"github.com/tuannm99/novabuf/internal/bx"
	"github.com/tuannm99/novabuf/internal/storage"
	"github.com/tuannm99/novabuf/internal/wal"
	"github.com/tuannm99/novabuf/pkg/logger"
	"github.com/tuannm99/novabuf/pkg/telemetry"
)

func main() {
	cfgPath := flag.String("config", "", "Path to a yaml config file (optional)")
	flag.Parse()

	cfg, err := internal.LoadConfig(*cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	lg, err := logger.New(logger.Config{
		Level:      cfg.Log.Level,
		Format:     cfg.Log.Format,
		OutputFile: cfg.Log.OutputFile,
	})
	if err != nil {
		log.Fatalf("Failed to build logger: %v", err)
	}
	defer func() { _ = lg.Sync() }()

	tel, telShutdown, err := telemetry.New(telemetry.Config{
		Enabled:          cfg.Telemetry.Enabled,
		ServiceName:      cfg.Telemetry.ServiceName,
		PrometheusPort:   cfg.Telemetry.PrometheusPort,
		TraceSampleRatio: cfg.Telemetry.TraceSampleRatio,
	})
	if err != nil {
		lg.Fatal("telemetry init failed", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = telShutdown(ctx)
	}()

	met, err := buffer.NewMetrics(tel.Meter)
	if err != nil {
		lg.Warn("metrics init failed, continuing without", zap.Error(err))
		met = nil
	}

	if err := os.MkdirAll(cfg.Storage.Workdir, storage.FileMode0755); err != nil {
		lg.Fatal("create workdir failed", zap.Error(err))
	}

	fm, err := storage.Open(filepath.Join(cfg.Storage.Workdir, cfg.Storage.File))
	if err != nil {
		lg.Fatal("open page file failed", zap.Error(err))
	}
	defer func() { _ = fm.Close() }()

	var (
		walMgr *wal.Manager
		logMgr buffer.LogManager
	)
	if cfg.WAL.Enabled {
		walMgr, err = wal.Open(cfg.WAL.Dir)
		if err != nil {
			lg.Fatal("open wal failed", zap.Error(err))
		}
		defer func() { _ = walMgr.Close() }()
		logMgr = walMgr
	}

	pool := buffer.New(cfg.Buffer.Capacity, fm, logMgr, lg.Named("buffer"), met)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st := runWorkload(ctx, cfg, pool, walMgr, lg)

	resident := pool.Len()
	if err := pool.Close(); err != nil {
		lg.Error("pool close failed", zap.Error(err))
	}

	fields := []zap.Field{
		zap.Int("creates", st.creates),
		zap.Int("reads", st.reads),
		zap.Int("writes", st.writes),
		zap.Int("deletes", st.deletes),
		zap.Int("flushes", st.flushes),
		zap.Int("verify_errors", st.verifyErrors),
		zap.Int("resident_at_close", resident),
		zap.Int("allocated_pages", fm.NumAllocated()),
	}
	if walMgr != nil {
		fields = append(fields, zap.Uint64("wal_last_lsn", walMgr.LastLSN()))
	}
	lg.Info("workload finished", fields...)
}

type workloadStats struct {
	creates      int
	reads        int
	writes       int
	deletes      int
	flushes      int
	verifyErrors int
}

var errStampMismatch = errors.New("main: page stamp does not match its id")

// runWorkload drives a mixed create/read/write/delete/flush load through
// the pool. Each page carries its own id at offset 0 and a write counter
// at offset 8, so reads can verify that eviction and reload round-trip.
func runWorkload(ctx context.Context, cfg *internal.NovaBufConfig, pool *buffer.Pool, walMgr *wal.Manager, lg *zap.Logger) workloadStats {
	var st workloadStats

	var limiter *rate.Limiter
	if cfg.Workload.RatePerSec > 0 {
		burst := cfg.Workload.Burst
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.Workload.RatePerSec), burst)
	}

	rng := rand.New(rand.NewSource(time.Now().UnixNano()))
	var pages []storage.PageID

	lg.Info("workload starting",
		zap.Int("ops", cfg.Workload.Ops),
		zap.Int("max_pages", cfg.Workload.Pages),
		zap.Float64("rate_per_sec", cfg.Workload.RatePerSec),
		zap.Float64("write_ratio", cfg.Workload.WriteRatio),
	)

	for i := 0; i < cfg.Workload.Ops; i++ {
		select {
		case <-ctx.Done():
			lg.Info("workload interrupted", zap.Int("completed_ops", i))
			return st
		default:
		}

		if limiter != nil {
			if err := limiter.Wait(ctx); err != nil {
				lg.Info("workload interrupted", zap.Int("completed_ops", i))
				return st
			}
		}

		switch {
		case len(pages) == 0 || (len(pages) < cfg.Workload.Pages && rng.Intn(8) == 0):
			id, err := createPage(pool, walMgr)
			if err != nil {
				lg.Error("new page failed", zap.Error(err))
				continue
			}
			pages = append(pages, id)
			st.creates++

		case rng.Intn(97) == 0:
			j := rng.Intn(len(pages))
			id := pages[j]
			if err := deletePage(pool, id); err != nil {
				lg.Error("delete page failed", zap.Uint64("page_id", uint64(id)), zap.Error(err))
				continue
			}
			pages[j] = pages[len(pages)-1]
			pages = pages[:len(pages)-1]
			st.deletes++

		case rng.Intn(64) == 0:
			id := pages[rng.Intn(len(pages))]
			switch err := pool.Flush(id); {
			case err == nil:
				st.flushes++
			case errors.Is(err, buffer.ErrPageNotResident):
				// already evicted, nothing to flush
			default:
				lg.Error("flush failed", zap.Uint64("page_id", uint64(id)), zap.Error(err))
			}

		default:
			id := pages[rng.Intn(len(pages))]
			write := rng.Float64() < cfg.Workload.WriteRatio
			if err := touchPage(pool, walMgr, id, write); err != nil {
				if errors.Is(err, errStampMismatch) {
					st.verifyErrors++
					lg.Error("page stamp mismatch", zap.Uint64("page_id", uint64(id)))
					continue
				}
				lg.Error("page op failed",
					zap.Uint64("page_id", uint64(id)),
					zap.Bool("write", write),
					zap.Error(err),
				)
				continue
			}
			if write {
				st.writes++
			} else {
				st.reads++
			}
		}
	}
	return st
}

func createPage(pool *buffer.Pool, walMgr *wal.Manager) (storage.PageID, error) {
	h, err := pool.NewPage()
	if err != nil {
		return storage.InvalidPageID, err
	}
	id := h.PageID()

	bx.PutU64(h.Data(), uint64(id))
	if walMgr != nil {
		if _, err := walMgr.AppendPageWrite(uint64(id), h.Data()); err != nil {
			_ = pool.Unpin(id, true)
			return storage.InvalidPageID, err
		}
	}
	if err := pool.Unpin(id, true); err != nil {
		return storage.InvalidPageID, err
	}
	return id, nil
}

func touchPage(pool *buffer.Pool, walMgr *wal.Manager, id storage.PageID, write bool) error {
	h, err := pool.Fetch(id)
	if err != nil {
		return err
	}

	if got := bx.U64(h.Data()); got != uint64(id) {
		_ = pool.Unpin(id, false)
		return errStampMismatch
	}

	if !write {
		return pool.Unpin(id, false)
	}

	n := bx.U64At(h.Data(), 8)
	bx.PutU64At(h.Data(), 8, n+1)
	if walMgr != nil {
		if _, err := walMgr.AppendPageWrite(uint64(id), h.Data()); err != nil {
			_ = pool.Unpin(id, true)
			return err
		}
	}
	return pool.Unpin(id, true)
}

// deletePage makes the page resident first so the delete also frees the
// on-disk id, then drops it from the pool.
func deletePage(pool *buffer.Pool, id storage.PageID) error {
	h, err := pool.Fetch(id)
	if err != nil {
		return err
	}
	if err := pool.Unpin(h.PageID(), false); err != nil {
		return err
	}
	return pool.DeletePage(id)
}
