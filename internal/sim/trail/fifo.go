package trail

import "time"

type fifoEntry struct {
	Key      CellKey
	PlacedAt time.Time
}

// fifo is a slice-backed deque; the consumed prefix is compacted lazily.
type fifo struct {
	items []fifoEntry
	head  int
}

func (q *fifo) push(e fifoEntry) { q.items = append(q.items, e) }

func (q *fifo) len() int { return len(q.items) - q.head }

func (q *fifo) peek() (fifoEntry, bool) {
	if q.head >= len(q.items) {
		return fifoEntry{}, false
	}
	return q.items[q.head], true
}

func (q *fifo) pop() {
	if q.head >= len(q.items) {
		return
	}
	q.items[q.head] = fifoEntry{}
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		return
	}
	if q.head >= 64 && q.head*2 >= len(q.items) {
		n := copy(q.items, q.items[q.head:])
		q.items = q.items[:n]
		q.head = 0
	}
}

func (q *fifo) entries() []fifoEntry { return q.items[q.head:] }
