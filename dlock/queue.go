package dlock

import "sort"

// requestEntry is one outstanding acquisition request, ordered
// lexicographically by (time, pid) per spec: ties between distinct
// participants are broken by pid, giving a total order across the
// whole distributed queue.
type requestEntry struct {
	time uint32
	pid  uint32
}

func less(a, b requestEntry) bool {
	if a.time != b.time {
		return a.time < b.time
	}
	return a.pid < b.pid
}

// requestQueue is the lock's local view of the distributed priority
// queue: a sorted slice, grounded in the same "small N, insert at the
// bisection point" description the spec gives for this structure —
// container/heap (used by loop.timerQueue for a similar ordered
// multiset) would also fit, but the spec names binary-search insertion
// specifically, and removal here is by pid rather than by the heap's
// natural deadline-ordered pop, so a sorted slice searched with the
// standard library's sort.Search matches the described shape most
// directly.
type requestQueue struct {
	entries []requestEntry
}

// insert places e at its bisection point, maintaining sort order.
func (q *requestQueue) insert(e requestEntry) {
	i := sort.Search(len(q.entries), func(i int) bool {
		return less(e, q.entries[i])
	})
	q.entries = append(q.entries, requestEntry{})
	copy(q.entries[i+1:], q.entries[i:])
	q.entries[i] = e
}

// removePID removes the entry for pid, if any. wasHead reports whether
// the removed entry was at the head of the queue.
func (q *requestQueue) removePID(pid uint32) (wasHead, found bool) {
	for i, e := range q.entries {
		if e.pid == pid {
			wasHead = i == 0
			q.entries = append(q.entries[:i], q.entries[i+1:]...)
			return wasHead, true
		}
	}
	return false, false
}

// headPID reports the pid at the head of the queue, if any.
func (q *requestQueue) headPID() (uint32, bool) {
	if len(q.entries) == 0 {
		return 0, false
	}
	return q.entries[0].pid, true
}
