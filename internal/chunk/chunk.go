// Package chunk implements the MemoryChunk of SPEC_FULL.md §3: a
// reference-counted byte range with two provenances, fixed (a borrowed
// view into a driver mmap region, valid only until commit) and pooled (an
// owned buffer drawn from a pool).
//
// The pooling idiom is grounded on
// agalue-sherpa-voice-assistant/internal/audio/capture.go's float32Pool /
// bytesToFloat32 / returnFloat32Buffer trio: a sync.Pool sized for the
// common chunk size, with explicit get/return around the hot capture path.
package chunk

import "sync"

// Provenance distinguishes a borrowed mmap view from an owned pool buffer.
type Provenance int

const (
	Pooled Provenance = iota
	Fixed
)

// Chunk is a reference-counted byte range posted downstream. Fixed chunks
// must not be retained by a consumer past the release that accompanies the
// driver's commit call — a consumer that needs the bytes longer must copy
// them first, per the design note on fixed-region chunks.
type Chunk struct {
	Data       []byte
	Provenance Provenance

	pool *Pool
	refs int
	mu   sync.Mutex
}

// Ref increments the reference count and returns the chunk for chaining.
func (c *Chunk) Ref() *Chunk {
	c.mu.Lock()
	c.refs++
	c.mu.Unlock()
	return c
}

// Unref decrements the reference count, returning the buffer to its pool
// (for Pooled chunks) once it reaches zero. Fixed chunks have no pool and
// simply drop their reference — the backing mmap region outlives the Go
// slice header regardless.
func (c *Chunk) Unref() {
	c.mu.Lock()
	c.refs--
	done := c.refs <= 0
	c.mu.Unlock()
	if done && c.pool != nil {
		c.pool.put(c)
	}
}

// Pool is a thread-safe allocator for Pooled chunks, sized to the memory
// pool's configured maximum block size (§4.6's "cap frames by the
// memory-pool's maximum block size").
type Pool struct {
	blockSize int
	sp        sync.Pool
}

// NewPool creates a pool whose chunks are at most blockSize bytes.
func NewPool(blockSize int) *Pool {
	p := &Pool{blockSize: blockSize}
	p.sp.New = func() any {
		buf := make([]byte, blockSize)
		return &buf
	}
	return p
}

// MaxBlockSize returns the pool's configured maximum chunk size in bytes.
func (p *Pool) MaxBlockSize() int { return p.blockSize }

// Get returns a new Pooled chunk with length n (n must be <= MaxBlockSize).
func (p *Pool) Get(n int) *Chunk {
	bufp := p.sp.Get().(*[]byte)
	buf := *bufp
	if cap(buf) < n {
		buf = make([]byte, n)
	}
	c := &Chunk{
		Data:       buf[:n],
		Provenance: Pooled,
		pool:       p,
		refs:       1,
	}
	return c
}

func (p *Pool) put(c *Chunk) {
	buf := c.Data[:cap(c.Data)]
	p.sp.Put(&buf)
}

// NewFixed wraps a borrowed mmap view. It starts with one reference and has
// no backing pool: Unref simply drops the reference.
func NewFixed(data []byte) *Chunk {
	return &Chunk{Data: data, Provenance: Fixed, refs: 1}
}
