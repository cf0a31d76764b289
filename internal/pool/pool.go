// Package pool recycles the fixed-size datagram buffers a worker's reader
// goroutines read UDP packets into, so the read/accept/obtain hot path
// doesn't allocate one buffer per packet under load.
package pool

import "sync"

// BufferPool hands out []byte buffers of a single fixed size. Every buffer
// Put back must have been obtained from Get on the same pool: sync.Pool
// makes no guarantee about which goroutine's discard a Get returns, so a
// buffer of the wrong size could otherwise leak into a reader that assumes
// a specific capacity.
type BufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool constructs a pool of buffers of the given size.
func NewBufferPool(size int) *BufferPool {
	return &BufferPool{
		size: size,
		pool: sync.Pool{
			New: func() any {
				return make([]byte, size)
			},
		},
	}
}

// Get returns a buffer of this pool's configured size, full length
// (reader goroutines read into buf[:n], not append to it).
func (p *BufferPool) Get() []byte {
	buf := p.pool.Get().([]byte)
	if len(buf) != p.size {
		return make([]byte, p.size)
	}
	return buf
}

// Put returns buf to the pool for reuse. A buffer of the wrong length is
// dropped rather than pooled, since a later Get must be able to trust the
// size it asked for.
func (p *BufferPool) Put(buf []byte) {
	if len(buf) != p.size {
		return
	}
	p.pool.Put(buf)
}
