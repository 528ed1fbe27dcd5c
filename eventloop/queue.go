package eventloop

const (
	defaultQueueCap     = 16
	compactMinCap       = 64 // Don't compact if capacity is less than this
	compactShrinkFactor = 4  // Trigger compaction when len < cap/4
)

// funcQueue is a FIFO of callbacks. It is not synchronized; the loop guards it
// with its own mutex.
type funcQueue struct {
	items []func()
	head  int
}

func newFuncQueue() *funcQueue {
	return &funcQueue{items: make([]func(), 0, defaultQueueCap)}
}

func (q *funcQueue) push(fn func()) {
	q.items = append(q.items, fn)
}

func (q *funcQueue) pop() (func(), bool) {
	if q.head >= len(q.items) {
		return nil, false
	}
	fn := q.items[q.head]
	// Zero out the slot to prevent memory leak
	q.items[q.head] = nil
	q.head++
	if q.head == len(q.items) {
		q.items = q.items[:0]
		q.head = 0
		q.maybeCompact()
	}
	return fn, true
}

// drain removes and returns every queued callback.
func (q *funcQueue) drain() []func() {
	n := q.len()
	if n == 0 {
		return nil
	}
	batch := make([]func(), n)
	copy(batch, q.items[q.head:])
	clear(q.items)
	q.items = q.items[:0]
	q.head = 0
	q.maybeCompact()
	return batch
}

func (q *funcQueue) len() int {
	return len(q.items) - q.head
}

func (q *funcQueue) reset() {
	q.items = make([]func(), 0, defaultQueueCap)
	q.head = 0
}

// maybeCompact releases storage left over from a burst once the queue is
// mostly empty.
func (q *funcQueue) maybeCompact() {
	n := q.len()
	c := cap(q.items)

	if c < compactMinCap {
		return
	}
	if n == 0 {
		q.reset()
		return
	}
	if n*compactShrinkFactor >= c {
		return
	}

	newCap := max(max(c/2, defaultQueueCap), n)
	newSlice := make([]func(), n, newCap)
	copy(newSlice, q.items[q.head:])
	q.items = newSlice
	q.head = 0
}
