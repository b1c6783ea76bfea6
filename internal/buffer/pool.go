package buffer

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/tuannm99/novabuf/internal/storage"
	"github.com/tuannm99/novabuf/pkg/clockhand"
)

var (
	DefaultCapacity = 128

	ErrPoolExhausted   = errors.New("buffer: no evictable frame available (all pinned)")
	ErrPageNotResident = errors.New("buffer: page is not resident")
	ErrPageInUse       = errors.New("buffer: page is pinned")
	ErrDoubleUnpin     = errors.New("buffer: unpin on zero pin count")
	ErrPoolClosed      = errors.New("buffer: pool is closed")
)

// DiskManager is the page store the pool loads from and writes back to.
type DiskManager interface {
	ReadPage(id storage.PageID, buf []byte) error
	WritePage(id storage.PageID, buf []byte) error
	AllocatePage() (storage.PageID, error)
	DeallocatePage(id storage.PageID) error
}

// LogManager orders log durability ahead of page write-back. Pools built
// without one skip the call.
type LogManager interface {
	Sync() error
}

// Replacer decides which unpinned frame to reclaim when the free list is
// empty. clockhand.Clock is the production implementation.
type Replacer interface {
	Pin(frameID int)
	Unpin(frameID int)
	Victim() (frameID int, ok bool)
	Size() int
}

var _ Replacer = (*clockhand.Clock)(nil)

// Pool caches fixed-size pages in a set of in-memory frames backed by a
// single contiguous arena.
//
// Lock ordering: p.mu first, the replacer's internal lock second (taken
// inside Replacer calls). Disk I/O happens under p.mu, one read or write
// per operation.
type Pool struct {
	disk DiskManager
	log  LogManager
	lg   *zap.Logger
	met  *Metrics

	mu        sync.Mutex
	frames    []frame
	pageTable map[storage.PageID]int // PageID -> frame index
	freeList  []int                  // free frame indices, popped from the tail
	replacer  Replacer
	closed    bool
}

// New builds a pool with capacity frames over disk. log, lg and met may
// be nil.
func New(capacity int, disk DiskManager, log LogManager, lg *zap.Logger, met *Metrics) *Pool {
	if disk == nil {
		panic("buffer: nil DiskManager")
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	if lg == nil {
		lg = zap.NewNop()
	}

	arena := make([]byte, capacity*storage.PageSize)
	frames := make([]frame, capacity)
	freeList := make([]int, 0, capacity)
	// Seeded in reverse so frames are handed out in index order.
	for i := capacity - 1; i >= 0; i-- {
		frames[i].data = arena[i*storage.PageSize : (i+1)*storage.PageSize]
		freeList = append(freeList, i)
	}

	lg.Info("buffer pool initialized", zap.Int("capacity", capacity))

	return &Pool{
		disk:      disk,
		log:       log,
		lg:        lg,
		met:       met,
		frames:    frames,
		pageTable: make(map[storage.PageID]int, capacity),
		freeList:  freeList,
		replacer:  clockhand.New(capacity),
	}
}

// Fetch pins page id, loading it from storage on a miss. Every successful
// Fetch must be balanced by an Unpin.
func (p *Pool) Fetch(id storage.PageID) (*PageHandle, error) {
	ctx := context.Background()

	if id == storage.InvalidPageID {
		return nil, fmt.Errorf("%w: page %d", storage.ErrPageNotFound, id)
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	// HIT
	if idx, ok := p.pageTable[id]; ok {
		f := &p.frames[idx]
		f.pin++
		if f.pin == 1 {
			p.replacer.Pin(idx)
			if p.met != nil {
				p.met.PinnedUpDownCount.Add(ctx, 1)
			}
		}
		if p.met != nil {
			p.met.HitsCounter.Add(ctx, 1)
		}
		return p.handle(idx), nil
	}

	// MISS
	if p.met != nil {
		p.met.MissesCounter.Add(ctx, 1)
	}

	idx, err := p.reserveFrame()
	if err != nil {
		return nil, err
	}

	f := &p.frames[idx]
	if err := p.disk.ReadPage(id, f.data); err != nil {
		// The load failed: the reserved frame goes back to the free
		// list and the pool is otherwise unchanged.
		f.reset()
		p.freeList = append(p.freeList, idx)
		return nil, err
	}

	f.id = id
	f.pin = 1
	f.dirty = false
	p.pageTable[id] = idx
	p.replacer.Pin(idx)
	if p.met != nil {
		p.met.PinnedUpDownCount.Add(ctx, 1)
	}

	return p.handle(idx), nil
}

// Unpin releases one pin on page id. The dirty flag is monotonic: once a
// holder reports modifications, later clean unpins do not clear it.
func (p *Pool) Unpin(id storage.PageID, dirty bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	idx, ok := p.pageTable[id]
	if !ok {
		return fmt.Errorf("%w: page %d", ErrPageNotResident, id)
	}

	f := &p.frames[idx]
	if dirty {
		f.dirty = true
	}
	if f.pin == 0 {
		p.lg.Warn("unpin on zero pin count", zap.Uint64("page_id", uint64(id)))
		return fmt.Errorf("%w: page %d", ErrDoubleUnpin, id)
	}

	f.pin--
	if f.pin == 0 {
		p.replacer.Unpin(idx)
		if p.met != nil {
			p.met.PinnedUpDownCount.Add(context.Background(), -1)
		}
	}
	return nil
}

// Flush writes page id back to storage regardless of its dirty flag and
// clears the flag. The page stays resident and keeps its pin count.
func (p *Pool) Flush(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	idx, ok := p.pageTable[id]
	if !ok {
		return fmt.Errorf("%w: page %d", ErrPageNotResident, id)
	}
	return p.writeBack(&p.frames[idx])
}

// NewPage allocates a fresh page id from storage and pins a zeroed frame
// for it. The new page starts dirty: it exists only in memory until the
// first write-back.
func (p *Pool) NewPage() (*PageHandle, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil, ErrPoolClosed
	}

	// Reserve the frame before allocating the id so a failed allocation
	// never leaks a frame or an id.
	idx, err := p.reserveFrame()
	if err != nil {
		return nil, err
	}

	id, err := p.disk.AllocatePage()
	if err != nil {
		p.freeList = append(p.freeList, idx)
		return nil, err
	}

	f := &p.frames[idx]
	f.id = id
	f.pin = 1
	f.dirty = true
	p.pageTable[id] = idx
	p.replacer.Pin(idx)
	if p.met != nil {
		p.met.PinnedUpDownCount.Add(context.Background(), 1)
	}

	return p.handle(idx), nil
}

// DeletePage drops page id from the pool and deallocates it in storage.
// A page that is not resident is trivially deleted.
func (p *Pool) DeletePage(id storage.PageID) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}

	idx, ok := p.pageTable[id]
	if !ok {
		return nil
	}

	f := &p.frames[idx]
	if f.pin != 0 {
		return fmt.Errorf("%w: page %d", ErrPageInUse, id)
	}

	if err := p.disk.DeallocatePage(id); err != nil {
		return err
	}

	delete(p.pageTable, id)
	p.replacer.Pin(idx) // out of candidacy
	f.reset()
	p.freeList = append(p.freeList, idx)
	return nil
}

// FlushAll writes every resident page back to storage. It is best-effort:
// the sweep continues past individual failures and the first error is
// returned.
func (p *Pool) FlushAll() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return ErrPoolClosed
	}
	return p.flushLocked(false)
}

// Close flushes all dirty frames and shuts the pool down. Further
// operations fail with ErrPoolClosed. Close is idempotent.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return nil
	}
	err := p.flushLocked(true)
	p.closed = true
	p.lg.Info("buffer pool closed", zap.Int("resident", len(p.pageTable)))
	return err
}

// Len returns the number of resident pages.
func (p *Pool) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.pageTable)
}

func (p *Pool) Capacity() int { return len(p.frames) }

// PinCount reports the pin count of page id and whether it is resident.
func (p *Pool) PinCount(id storage.PageID) (int, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return 0, false
	}
	return int(p.frames[idx].pin), true
}

// IsDirty reports the dirty flag of page id and whether it is resident.
func (p *Pool) IsDirty(id storage.PageID) (dirty, resident bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	idx, ok := p.pageTable[id]
	if !ok {
		return false, false
	}
	return p.frames[idx].dirty, true
}

// reserveFrame returns the index of a reset, unmapped frame, drawing from
// the free list before evicting. Callers must hold p.mu.
func (p *Pool) reserveFrame() (int, error) {
	if n := len(p.freeList); n > 0 {
		idx := p.freeList[n-1]
		p.freeList = p.freeList[:n-1]
		return idx, nil
	}

	idx, ok := p.replacer.Victim()
	if !ok {
		return -1, ErrPoolExhausted
	}

	f := &p.frames[idx]
	if f.id == storage.InvalidPageID || f.pin != 0 {
		panic(fmt.Sprintf("buffer: replacer chose unusable frame %d (page %d, pin %d)", idx, f.id, f.pin))
	}

	if f.dirty {
		if err := p.writeBack(f); err != nil {
			// The victim stays cached; put it back in candidacy.
			p.replacer.Unpin(idx)
			return -1, err
		}
	}

	if p.met != nil {
		p.met.EvictionsCounter.Add(context.Background(), 1)
	}
	p.lg.Debug("evicted page",
		zap.Uint64("page_id", uint64(f.id)),
		zap.Int("frame_id", idx),
	)

	delete(p.pageTable, f.id)
	f.reset()
	return idx, nil
}

// writeBack persists one frame, syncing the log first so no page image
// reaches storage ahead of its log records. Callers must hold p.mu.
func (p *Pool) writeBack(f *frame) error {
	if p.log != nil {
		if err := p.log.Sync(); err != nil {
			return err
		}
	}
	if err := p.disk.WritePage(f.id, f.data); err != nil {
		return err
	}
	f.dirty = false
	if p.met != nil {
		p.met.WriteBacksCounter.Add(context.Background(), 1)
	}
	return nil
}

// flushLocked sweeps the frames, writing back every resident page (or
// only the dirty ones). Callers must hold p.mu.
func (p *Pool) flushLocked(onlyDirty bool) error {
	var firstErr error
	for i := range p.frames {
		f := &p.frames[i]
		if f.id == storage.InvalidPageID {
			continue
		}
		if onlyDirty && !f.dirty {
			continue
		}
		if err := p.writeBack(f); err != nil {
			p.lg.Warn("write-back failed",
				zap.Uint64("page_id", uint64(f.id)),
				zap.Error(err),
			)
			if firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}

func (p *Pool) handle(idx int) *PageHandle {
	f := &p.frames[idx]
	return &PageHandle{id: f.id, frameID: idx, data: f.data}
}
