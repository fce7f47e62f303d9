package audio

import "sync"

// Ring is a fixed-capacity buffer of mono samples that keeps only the most
// recent audio. Writers append captured samples; readers take a copy of the
// newest window. It is safe for concurrent use.
type Ring struct {
	mu    sync.Mutex
	buf   []float32
	start int
	size  int
}

// NewRing returns a Ring that retains up to capacity samples.
func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = 1
	}
	return &Ring{buf: make([]float32, capacity)}
}

// Write appends samples, overwriting the oldest ones once the ring is full.
func (r *Ring) Write(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := len(r.buf)
	if len(samples) >= c {
		copy(r.buf, samples[len(samples)-c:])
		r.start = 0
		r.size = c
		return
	}
	for _, s := range samples {
		r.buf[(r.start+r.size)%c] = s
		if r.size < c {
			r.size++
		} else {
			r.start = (r.start + 1) % c
		}
	}
}

// Drain returns up to n of the newest samples and empties the ring, so the
// next call only sees audio captured afterwards.
func (r *Ring) Drain(n int) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if n > r.size {
		n = r.size
	}
	out := make([]float32, n)
	c := len(r.buf)
	first := r.start + r.size - n
	for i := range n {
		out[i] = r.buf[(first+i)%c]
	}
	r.start = 0
	r.size = 0
	return out
}

// Len returns the number of buffered samples.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}
