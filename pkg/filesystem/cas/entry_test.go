package cas

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLRUListOrderingFollowsInsertionAndTouch(t *testing.T) {
	l := newLRUList()
	a := &entry{key: "a"}
	b := &entry{key: "b"}
	c := &entry{key: "c"}

	l.linkAtMostRecentlyUsed(a)
	l.linkAtMostRecentlyUsed(b)
	l.linkAtMostRecentlyUsed(c)

	require.Equal(t, a, l.leastRecentlyUsed())

	l.touch(a)
	// a is now the most recently used; b is the new least recently used.
	require.Equal(t, b, l.leastRecentlyUsed())

	l.unlink(b)
	require.Equal(t, c, l.leastRecentlyUsed())
}

func TestLRUListEmpty(t *testing.T) {
	l := newLRUList()
	require.True(t, l.empty())

	e := &entry{key: "a"}
	l.linkAtMostRecentlyUsed(e)
	require.False(t, l.empty())

	l.unlink(e)
	require.True(t, l.empty())
}

func TestLRUListIncrementReferenceUnlinksEntry(t *testing.T) {
	l := newLRUList()
	e := &entry{key: "a"}
	l.linkAtMostRecentlyUsed(e)

	l.incrementReference(e)
	require.Equal(t, int32(1), e.refCount)
	require.True(t, l.empty(), "referenced entries must not remain on the LRU list")

	// A second increment on an already-referenced entry must not
	// attempt to unlink it again.
	l.incrementReference(e)
	require.Equal(t, int32(2), e.refCount)
}

func TestLRUListDecrementReferenceRelinksAtZero(t *testing.T) {
	l := newLRUList()
	e := &entry{key: "a"}
	l.linkAtMostRecentlyUsed(e)
	l.incrementReference(e)
	l.incrementReference(e)
	require.Equal(t, int32(2), e.refCount)

	l.decrementReference(e)
	require.True(t, l.empty(), "entry with a remaining reference must not be relinked")

	l.decrementReference(e)
	require.Equal(t, int32(0), e.refCount)
	require.False(t, l.empty())
	require.Equal(t, e, l.leastRecentlyUsed())
}

func TestLRUListDecrementReferencePanicsOnDoubleRelease(t *testing.T) {
	l := newLRUList()
	e := &entry{key: "a", refCount: 0}
	l.linkAtMostRecentlyUsed(e)

	require.Panics(t, func() {
		l.decrementReference(e)
	})
}

func TestLRUListTouchIsNoOpForReferencedEntries(t *testing.T) {
	l := newLRUList()
	a := &entry{key: "a"}
	b := &entry{key: "b"}
	l.linkAtMostRecentlyUsed(a)
	l.linkAtMostRecentlyUsed(b)
	l.incrementReference(a)

	// a is unlinked (referenced); touching it must not panic or
	// otherwise corrupt the list that b is still part of.
	l.touch(a)
	require.Equal(t, b, l.leastRecentlyUsed())
}
