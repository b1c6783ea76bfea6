package buffer

import "github.com/tuannm99/novabuf/internal/storage"

// frame is one slot of the pool's page arena. A frame with
// id == InvalidPageID is free.
type frame struct {
	id    storage.PageID
	data  []byte // PageSize view into the pool arena
	pin   int32
	dirty bool
}

func (f *frame) reset() {
	f.id = storage.InvalidPageID
	f.pin = 0
	f.dirty = false
	for i := range f.data {
		f.data[i] = 0
	}
}

// PageHandle is a pinned view of a cached page. It is valid from the
// Fetch/NewPage that produced it until the matching Unpin; afterwards the
// underlying frame may be reused for another page.
type PageHandle struct {
	id      storage.PageID
	frameID int
	data    []byte
}

func (h *PageHandle) PageID() storage.PageID { return h.id }

func (h *PageHandle) FrameID() int { return h.frameID }

// Data returns the frame's byte slice. Mutations must be followed by an
// Unpin with dirty=true to survive eviction.
func (h *PageHandle) Data() []byte { return h.data }
