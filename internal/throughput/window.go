package throughput

// Sample is an instantaneous rate in KB/s.
type Sample float64

// Unavailable marks a tick without a usable rate. It is never a measurement.
const Unavailable Sample = -1

func (s Sample) Valid() bool {
	return s >= 0
}

// Window is a fixed-capacity sample buffer that evicts the oldest entry once
// full. Not concurrency-safe; it is owned by the poll loop.
type Window struct {
	buf   []Sample
	start int
	n     int
}

func NewWindow(capacity int) *Window {
	if capacity < 1 {
		capacity = 1
	}
	return &Window{buf: make([]Sample, capacity)}
}

// Push appends s, dropping the oldest sample when the window is full.
func (w *Window) Push(s Sample) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = s
		w.n++
		return
	}
	w.buf[w.start] = s
	w.start = (w.start + 1) % len(w.buf)
}

func (w *Window) Len() int { return w.n }

func (w *Window) Cap() int { return len(w.buf) }

// Last returns the newest sample, or Unavailable when empty.
func (w *Window) Last() Sample {
	if w.n == 0 {
		return Unavailable
	}
	return w.buf[(w.start+w.n-1)%len(w.buf)]
}

// Samples returns a copy ordered oldest to newest.
func (w *Window) Samples() []Sample {
	return w.AppendTo(make([]Sample, 0, w.n))
}

// AppendTo appends the window contents to dst, oldest first.
func (w *Window) AppendTo(dst []Sample) []Sample {
	for i := 0; i < w.n; i++ {
		dst = append(dst, w.buf[(w.start+i)%len(w.buf)])
	}
	return dst
}

// Pair keeps the download and upload windows in lockstep. Push is the only
// mutator, so both series always have the same length and alignment.
type Pair struct {
	Down *Window
	Up   *Window
}

func NewPair(capacity int) *Pair {
	return &Pair{
		Down: NewWindow(capacity),
		Up:   NewWindow(capacity),
	}
}

func (p *Pair) Push(down, up Sample) {
	p.Down.Push(down)
	p.Up.Push(up)
}

func (p *Pair) Len() int { return p.Down.Len() }
