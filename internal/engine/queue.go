package engine

// queue is an unbounded FIFO. It is not safe for concurrent use.
type queue[T any] struct {
	items []T
}

func (q *queue[T]) push(v T) {
	q.items = append(q.items, v)
}

func (q *queue[T]) peek() (T, bool) {
	if len(q.items) == 0 {
		var zero T
		return zero, false
	}
	return q.items[0], true
}

func (q *queue[T]) pop() (T, bool) {
	var zero T
	if len(q.items) == 0 {
		return zero, false
	}

	v := q.items[0]
	// Zero the slot so the backing array does not retain popped values.
	q.items[0] = zero
	if len(q.items) == 1 {
		q.items = q.items[:0]
	} else {
		q.items = q.items[1:]
	}
	return v, true
}

func (q *queue[T]) len() int {
	return len(q.items)
}

func (q *queue[T]) drain() []T {
	out := q.items
	q.items = nil
	return out
}

// EventQueue accumulates the events emitted by hooks until the host
// consumes them. Events are returned in emission order.
type EventQueue[E any] struct {
	q queue[E]
}

// Push appends ev.
func (q *EventQueue[E]) Push(ev E) {
	q.q.push(ev)
}

// Len returns the number of queued events.
func (q *EventQueue[E]) Len() int {
	return q.q.len()
}

// Peek returns the oldest event without removing it.
func (q *EventQueue[E]) Peek() (E, bool) {
	return q.q.peek()
}

// Pop removes and returns the oldest event.
func (q *EventQueue[E]) Pop() (E, bool) {
	return q.q.pop()
}

// Drain removes and returns every queued event, oldest first.
func (q *EventQueue[E]) Drain() []E {
	return q.q.drain()
}
