package bufpool

import "sync"

// Size classes tailored to the streaming fetcher's reassembly buffer
// (internal/tekhsi/stream): a control-sized reply, one shallow-memory
// acquisition, and one deep-memory acquisition. A chunk assembler requests
// len(buf)==0 up front and grows it via append, so Get's job is really
// picking a starting capacity that avoids a second allocation for the
// common case.
const (
	sizeClassControl     = 128
	sizeClassAcquisition = 4096
	sizeClassDeepMemory  = 65536
)

var sizeClasses = []int{sizeClassControl, sizeClassAcquisition, sizeClassDeepMemory}

type classPool struct {
	size int
	pool *sync.Pool
}

// Pool hands out reusable byte slices sized for waveform chunk reassembly,
// to reduce GC churn from one allocation per acquisition per symbol. A
// buffer obtained from Get is caller-owned until passed to Put; callers
// that need the bytes to outlive the call that released the buffer (as
// internal/tekhsi/waveform.Build's Analog/Digital paths do) must copy
// before releasing, since Put zeroes and recycles the backing array.
type Pool struct {
	pools []classPool
}

var defaultPool = New()

// Get acquires a buffer from the package-level default pool.
func Get(size int) []byte {
	return defaultPool.Get(size)
}

// Put releases a buffer back to the package-level default pool.
func Put(buf []byte) {
	defaultPool.Put(buf)
}

// New creates a buffer pool with the size classes above.
func New() *Pool {
	pools := make([]classPool, len(sizeClasses))
	for i, classSize := range sizeClasses {
		size := classSize
		pools[i] = classPool{
			size: size,
			pool: &sync.Pool{
				New: func() any {
					return make([]byte, size)
				},
			},
		}
	}
	return &Pool{pools: pools}
}

// Get returns a byte slice whose length matches the requested size and whose capacity is the
// nearest predefined size class that can accommodate the request. Requests larger than the
// maximum size class allocate a fresh slice without pooling.
func (p *Pool) Get(size int) []byte {
	if p == nil || size <= 0 {
		return nil
	}

	for i := range p.pools {
		class := &p.pools[i]
		if size <= class.size {
			buf := class.pool.Get().([]byte)
			return buf[:size]
		}
	}

	return make([]byte, size)
}

// Put returns the provided buffer to the pool if its capacity matches a predefined size class.
// Buffers that do not match any class are discarded. The buffer is zeroed before reuse to avoid
// leaking data across callers. The caller must not read or write buf after calling Put.
func (p *Pool) Put(buf []byte) {
	if p == nil || buf == nil {
		return
	}

	capBuf := cap(buf)
	for i := range p.pools {
		class := &p.pools[i]
		if capBuf == class.size {
			full := buf[:class.size]
			clear(full)
			class.pool.Put(full)
			return
		}
	}
}
