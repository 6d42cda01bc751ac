package ledger

// waitQueue is the FIFO waitlist of a single session.  Members are
// promoted strictly in the order they were pushed; a member appears at
// most once.
type waitQueue struct {
	order  []uint64
	member map[uint64]struct{}
}

func newWaitQueue(members []uint64) *waitQueue {
	q := &waitQueue{member: make(map[uint64]struct{}, len(members))}
	for _, m := range members {
		q.push(m)
	}
	return q
}

// push appends m to the tail and reports whether it was added.
func (q *waitQueue) push(m uint64) bool {
	if _, ok := q.member[m]; ok {
		return false
	}
	q.member[m] = struct{}{}
	q.order = append(q.order, m)
	return true
}

func (q *waitQueue) head() (uint64, bool) {
	if len(q.order) == 0 {
		return 0, false
	}
	return q.order[0], true
}

func (q *waitQueue) pop() (uint64, bool) {
	m, ok := q.head()
	if !ok {
		return 0, false
	}
	q.order[0] = 0
	q.order = q.order[1:]
	delete(q.member, m)
	return m, true
}

// remove drops m wherever it sits in the queue.
func (q *waitQueue) remove(m uint64) bool {
	if _, ok := q.member[m]; !ok {
		return false
	}
	delete(q.member, m)
	for i, v := range q.order {
		if v == m {
			q.order = append(q.order[:i], q.order[i+1:]...)
			break
		}
	}
	return true
}

// position returns the 1-based position of m, or 0 when m is not queued.
func (q *waitQueue) position(m uint64) int {
	if _, ok := q.member[m]; !ok {
		return 0
	}
	for i, v := range q.order {
		if v == m {
			return i + 1
		}
	}
	return 0
}

func (q *waitQueue) contains(m uint64) bool {
	_, ok := q.member[m]
	return ok
}

func (q *waitQueue) len() int { return len(q.order) }
