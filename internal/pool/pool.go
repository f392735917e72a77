// Package pool recycles packet buffers and destination lists between the network and consumer goroutines.
package pool

import (
	"sync"

	"github.com/dkeye/VoiceMux/internal/core"
)

type slab struct {
	data []byte
	gen  uint64
}

// Buffer is a checked-out byte buffer. Copies of a Buffer share one lease:
// once any copy is returned with Put, every copy panics on use.
type Buffer struct {
	s   *slab
	gen uint64
}

func (b Buffer) live() bool { return b.s != nil && b.s.gen == b.gen }

func (b Buffer) check() {
	if !b.live() {
		core.Fatal("1d1f7a9e-8c3b-4f55-a2f4-0b9b0f3c6e21", "buffer used after being returned to the pool")
	}
}

// Valid reports whether the lease is still held.
func (b Buffer) Valid() bool { return b.live() }

func (b Buffer) Bytes() []byte {
	b.check()
	return b.s.data
}

func (b Buffer) Len() int {
	b.check()
	return len(b.s.data)
}

// Fill replaces the contents with whatever fn appends to an empty slice.
func (b Buffer) Fill(fn func(dst []byte) []byte) {
	b.check()
	b.s.data = fn(b.s.data[:0])
}

// Set copies p into the buffer.
func (b Buffer) Set(p []byte) {
	b.Fill(func(dst []byte) []byte { return append(dst, p...) })
}

// Bytes is a mutex-guarded free list of byte buffers.
type Bytes struct {
	mu          sync.Mutex
	free        []*slab
	size        int
	outstanding int
}

func NewBytes(size int) *Bytes {
	return &Bytes{size: size}
}

func (p *Bytes) Get() Buffer {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.outstanding++
	if n := len(p.free); n > 0 {
		s := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return Buffer{s: s, gen: s.gen}
	}
	s := &slab{data: make([]byte, 0, p.size)}
	return Buffer{s: s, gen: s.gen}
}

// Put returns the buffer. Returning the same lease twice is a bug.
func (p *Bytes) Put(b Buffer) {
	if !b.live() {
		core.Fatal("6a5d2c10-44b7-4c0e-9f63-2c8f1e7d5b90", "buffer returned to the pool twice")
	}
	b.s.gen++
	b.s.data = b.s.data[:0]

	p.mu.Lock()
	defer p.mu.Unlock()
	p.outstanding--
	p.free = append(p.free, b.s)
}

// Outstanding is the number of buffers currently checked out.
func (p *Bytes) Outstanding() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.outstanding
}

// Lists recycles slices so per-frame destination and channel lists do not allocate.
type Lists[T any] struct {
	mu   sync.Mutex
	free [][]T
}

func NewLists[T any]() *Lists[T] {
	return &Lists[T]{}
}

// Get returns an empty slice, possibly with spare capacity.
func (p *Lists[T]) Get() []T {
	p.mu.Lock()
	defer p.mu.Unlock()
	if n := len(p.free); n > 0 {
		l := p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		return l
	}
	return make([]T, 0, 8)
}

func (p *Lists[T]) Put(l []T) {
	if l == nil {
		return
	}
	clear(l)
	p.mu.Lock()
	defer p.mu.Unlock()
	p.free = append(p.free, l[:0])
}
