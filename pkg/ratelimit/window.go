package ratelimit

import "time"

// window is a FIFO of admission timestamps. Timestamps are appended in
// non-decreasing order, so expiry is always a prefix trim.
type window struct {
	ts   []time.Time
	head int
}

func (w *window) len() int {
	return len(w.ts) - w.head
}

// prune evicts every timestamp strictly older than cutoff.
func (w *window) prune(cutoff time.Time) {
	for w.head < len(w.ts) && w.ts[w.head].Before(cutoff) {
		w.ts[w.head] = time.Time{}
		w.head++
	}
	switch {
	case w.head == len(w.ts):
		w.ts = w.ts[:0]
		w.head = 0
	case w.head > len(w.ts)/2:
		// Reclaim the dead prefix once it dominates the backing array.
		n := copy(w.ts, w.ts[w.head:])
		clear(w.ts[n:])
		w.ts = w.ts[:n]
		w.head = 0
	}
}

func (w *window) push(t time.Time) {
	w.ts = append(w.ts, t)
}

func (w *window) oldest() (time.Time, bool) {
	if w.len() == 0 {
		return time.Time{}, false
	}
	return w.ts[w.head], true
}
