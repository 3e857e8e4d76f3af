package cas

// entry holds the metadata the cache keeps for a single stored blob.
// Entries with a reference count of zero are linked into the owning
// lruList in least-recently-used order; entries with a positive
// reference count are unlinked and may not be evicted.
type entry struct {
	key       string
	sizeBytes int64
	refCount  int32

	// onExpiration, if non-nil, is invoked once when this entry is
	// evicted. Set by Put's on_expiration parameter.
	onExpiration func()

	prev, next *entry
}

// lruList is a sentinel-anchored circular doubly-linked list of
// zero-reference entries. Walking from header.next to header.prev
// visits entries in least-recently-used-first order. Only entry
// objects obtained through newLRUList's own header may appear as
// header; calling the list operations on the header itself is a
// programming error and will corrupt the list.
type lruList struct {
	header entry
}

func newLRUList() *lruList {
	l := &lruList{}
	l.header.prev = &l.header
	l.header.next = &l.header
	return l
}

// linkAtMostRecentlyUsed inserts e immediately before the header,
// making it the most recently used entry in the list. e must not
// currently be linked.
func (l *lruList) linkAtMostRecentlyUsed(e *entry) {
	if e == &l.header {
		panic("attempted to link the sentinel header into the LRU list")
	}
	e.prev = l.header.prev
	e.next = &l.header
	e.prev.next = e
	e.next.prev = e
}

// unlink removes e from the list. e must currently be linked.
func (l *lruList) unlink(e *entry) {
	if e == &l.header {
		panic("attempted to unlink the sentinel header from the LRU list")
	}
	e.prev.next = e.next
	e.next.prev = e.prev
	e.prev = nil
	e.next = nil
}

// empty returns true if no zero-reference entries remain.
func (l *lruList) empty() bool {
	return l.header.next == &l.header
}

// leastRecentlyUsed returns the entry that should be evicted next. It
// may only be called on a non-empty list.
func (l *lruList) leastRecentlyUsed() *entry {
	return l.header.next
}

// incrementReference bumps e's reference count, unlinking it from the
// LRU list the moment it transitions away from zero.
func (l *lruList) incrementReference(e *entry) {
	if e.refCount == 0 {
		l.unlink(e)
	}
	e.refCount++
}

// decrementReference drops e's reference count by one, relinking it at
// the most-recently-used position the moment it reaches zero. Panics
// if the reference count would go negative, as that indicates a
// double-release bug in the caller.
func (l *lruList) decrementReference(e *entry) {
	if e.refCount <= 0 {
		panic("attempted to decrement a reference count that is already zero")
	}
	e.refCount--
	if e.refCount == 0 {
		l.linkAtMostRecentlyUsed(e)
	}
}

// touch moves e to the most-recently-used position without changing
// its reference count. Referenced entries (refCount > 0) are not on
// the list at all, so accessing one is a no-op here: it will take up
// the most-recently-used position automatically once its reference
// count drops back to zero (see decrementReference).
func (l *lruList) touch(e *entry) {
	if e.refCount != 0 {
		return
	}
	l.unlink(e)
	l.linkAtMostRecentlyUsed(e)
}
