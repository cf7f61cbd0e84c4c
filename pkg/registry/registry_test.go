package registry

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

type fakeConn struct {
	id string
}

func (f *fakeConn) Send(payload []byte) bool { return true }

func TestRegistry_AnnounceAndResolve(t *testing.T) {
	r := New()
	a := &fakeConn{id: "a"}

	r.Announce("u1", a)

	require.Equal(t, []Conn{a}, r.Resolve("u1"))
	require.Equal(t, []string{"u1"}, r.Snapshot())
}

func TestRegistry_AnnounceIsIdempotent(t *testing.T) {
	r := New()
	a := &fakeConn{id: "a"}

	r.Announce("u1", a)
	r.Announce("u1", a)

	require.Len(t, r.Resolve("u1"), 1)
	require.Equal(t, []string{"u1"}, r.Snapshot())
}

func TestRegistry_SecondHandleJoinsSet(t *testing.T) {
	r := New()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	r.Announce("u7", a)
	r.Announce("u7", b)

	require.Len(t, r.Resolve("u7"), 2)
	require.Equal(t, []string{"u7"}, r.Snapshot())
}

func TestRegistry_RemoveLastHandleDeletesEntry(t *testing.T) {
	r := New()
	a := &fakeConn{id: "a"}
	b := &fakeConn{id: "b"}

	r.Announce("u7", a)
	r.Announce("u7", b)

	r.Remove(a)
	require.Equal(t, []Conn{b}, r.Resolve("u7"))
	require.Equal(t, []string{"u7"}, r.Snapshot())

	r.Remove(b)
	require.Empty(t, r.Resolve("u7"))
	require.Empty(t, r.Snapshot())
}

func TestRegistry_RemoveUnknownHandleIsNoop(t *testing.T) {
	r := New()
	a := &fakeConn{id: "a"}

	r.Announce("u1", a)
	r.Remove(&fakeConn{id: "ghost"})
	r.Remove(a)
	r.Remove(a) // already removed

	require.Empty(t, r.Resolve("u1"))
}

func TestRegistry_SnapshotKeepsFirstSeenOrder(t *testing.T) {
	r := New()

	r.Announce("u3", &fakeConn{id: "a"})
	r.Announce("u1", &fakeConn{id: "b"})
	r.Announce("u2", &fakeConn{id: "c"})
	// re-announcing an online user must not reorder
	r.Announce("u3", &fakeConn{id: "d"})

	require.Equal(t, []string{"u3", "u1", "u2"}, r.Snapshot())
}

func TestRegistry_ResolveMatchesAnnouncedMinusRemoved(t *testing.T) {
	r := New()
	conns := make([]*fakeConn, 6)
	for i := range conns {
		conns[i] = &fakeConn{id: fmt.Sprintf("c%d", i)}
		r.Announce("u1", conns[i])
	}
	for _, c := range conns[:4] {
		r.Remove(c)
	}

	got := r.Resolve("u1")
	require.Len(t, got, 2)
	require.ElementsMatch(t, []Conn{conns[4], conns[5]}, got)
}

func TestRegistry_ConcurrentAnnounceRemove(t *testing.T) {
	r := New()
	var wg sync.WaitGroup

	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				c := &fakeConn{id: fmt.Sprintf("c%d-%d", i, j)}
				r.Announce(fmt.Sprintf("u%d", i%4), c)
				r.Resolve(fmt.Sprintf("u%d", i%4))
				r.Snapshot()
				r.Remove(c)
			}
		}(i)
	}
	wg.Wait()

	require.Empty(t, r.Snapshot())
	require.Empty(t, r.Connections())
}
