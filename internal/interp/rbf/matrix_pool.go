package rbf

import "sync"

// maxPooledBuffers caps pool retention so a burst of very large fits does not
// pin memory for the life of the process.
const maxPooledBuffers = 8

// bufferPool recycles the flat augmented-system buffers between fits to
// reduce allocation churn. Returned buffers are not zeroed; buildSystem
// overwrites every element.
type bufferPool struct {
	mu   sync.Mutex
	bufs [][]float64
}

var systemPool = &bufferPool{}

// Get returns a buffer with exactly size elements, reusing a pooled buffer
// when one is large enough.
func (p *bufferPool) Get(size int) []float64 {
	p.mu.Lock()
	for i := len(p.bufs) - 1; i >= 0; i-- {
		if cap(p.bufs[i]) >= size {
			buf := p.bufs[i]
			p.bufs = append(p.bufs[:i], p.bufs[i+1:]...)
			p.mu.Unlock()
			return buf[:size]
		}
	}
	p.mu.Unlock()
	return make([]float64, size)
}

// Put returns a buffer to the pool for reuse.
func (p *bufferPool) Put(buf []float64) {
	if buf == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.bufs) < maxPooledBuffers {
		p.bufs = append(p.bufs, buf)
	}
}
