package proxy

import (
	"net/http/httputil"
	"sync"
)

type bufferPool struct {
	size int
	pool sync.Pool
}

// NewBufferPool returns a pool of size byte buffers shared by the HTTP
// reverse proxy and the tunnel copies.
func NewBufferPool(size int) httputil.BufferPool {
	bp := &bufferPool{size: size}
	bp.pool.New = func() any {
		b := make([]byte, size)
		return &b
	}

	return bp
}

func (p *bufferPool) Get() []byte {
	b := p.pool.Get().(*[]byte)
	return *b
}

func (p *bufferPool) Put(b []byte) {
	if cap(b) < p.size {
		return
	}
	b = b[:p.size]
	p.pool.Put(&b)
}
