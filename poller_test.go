package netpoll

import (
	"testing"

	"github.com/corofd/netpoll/internal/pollset"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testWaiter is a minimal Waiter recording resumptions for assertions,
// standing in for the out-of-scope coroutine scheduler.
type testWaiter struct {
	name    string
	resumed []Events
}

func (w *testWaiter) Resume(events Events) {
	w.resumed = append(w.resumed, events)
}

func (w *testWaiter) resumedOnce(t *testing.T) Events {
	t.Helper()
	require.Len(t, w.resumed, 1, "waiter %s", w.name)
	return w.resumed[0]
}

// newTestPoller builds a Poller wired to the scanned Wait Table and a
// pollset.Mock backend, so the reconciliation/dispatch logic can be
// exercised deterministically regardless of host OS.
func newTestPoller() (*Poller, *pollset.Mock) {
	mock := pollset.NewMock()
	p := &Poller{
		log:      zap.NewNop(),
		backend:  mock,
		table:    newScannedWaitTable(),
		eventBuf: make([]pollset.Event, 0, 128),
	}
	return p, mock
}

// scenario 1: single reader, readable event.
func TestWait_SingleReaderReadable(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	p.Add(5, Read, a)

	mock.Push(pollset.Event{Fd: 5, Events: pollset.Read})
	resumed, err := p.Wait(0)
	require.NoError(t, err)
	require.True(t, resumed)
	require.Equal(t, Read, a.resumedOnce(t))

	resumed, err = p.Wait(0)
	require.NoError(t, err)
	require.False(t, resumed)
}

// scenario 2: reader and writer share a descriptor, split resumption.
func TestWait_ReaderWriterSplit(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	b := &testWaiter{name: "B"}
	p.Add(5, Read, a)
	p.Add(5, Write, b)

	mock.Push(pollset.Event{Fd: 5, Events: pollset.Read})
	resumed, err := p.Wait(0)
	require.NoError(t, err)
	require.True(t, resumed)
	require.Equal(t, Read, a.resumedOnce(t))
	require.Empty(t, b.resumed, "B must still be suspended")

	// dispatch's poller_rm(fd, READ) only enqueues the change; per
	// spec.md §4.1, reconciliation happens on the *next* Wait call.
	resumed, err = p.Wait(0)
	require.NoError(t, err)
	require.False(t, resumed)
	s := p.table.slot(5)
	require.Equal(t, Write, s.installedMask, "installed mask must drop to write-only after reconciling A's removal")
}

// scenario 3: same coroutine waits on both directions, coalesced resumption.
func TestWait_CoalescedResumption(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	p.Add(5, Read|Write, a)

	mock.Push(pollset.Event{Fd: 5, Events: pollset.Read | pollset.Write})
	resumed, err := p.Wait(0)
	require.NoError(t, err)
	require.True(t, resumed)
	require.Len(t, a.resumed, 1, "coalesced waiter must be resumed exactly once")
	require.Equal(t, Read|Write, a.resumed[0])
}

// scenario 4: error fan-out to both waiters in the same Wait call.
func TestWait_ErrorFanOut(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	b := &testWaiter{name: "B"}
	p.Add(5, Read, a)
	p.Add(5, Write, b)

	mock.Push(pollset.Event{Fd: 5, Events: pollset.Err})
	resumed, err := p.Wait(0)
	require.NoError(t, err)
	require.True(t, resumed)
	require.Equal(t, Err, a.resumedOnce(t))
	require.Equal(t, Err, b.resumedOnce(t))
}

// scenario 6: reconciliation coalescing — add/rm/add before the next
// Wait must produce exactly one kernel operation, not three.
func TestWait_ReconciliationCoalescing(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	b := &testWaiter{name: "B"}

	p.Add(5, Read, a)
	p.Remove(5, Read)
	p.Add(5, Write, b)

	_, err := p.Wait(0)
	require.NoError(t, err)

	require.Len(t, mock.Ops, 1, "expected exactly one kernel op, got %v", mock.Ops)
	require.Equal(t, pollset.MockOp{Kind: "install", Fd: 5, Events: pollset.Write}, mock.Ops[0])
}

// mask mirror: after Wait returns, every slot with a non-empty installed
// mask must match what the mock backend believes is installed.
func TestWait_MaskMirror(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	p.Add(5, Read, a)
	p.Add(9, Write, a)

	_, err := p.Wait(0)
	require.NoError(t, err)

	p.table.forEach(func(s *WaitSlot) {
		installed, ok := mock.Installed[s.fd]
		require.True(t, ok, "fd %d should be installed in the mock kernel", s.fd)
		require.Equal(t, toPollsetEvents(s.installedMask), installed)
	})
}

// round-trip: add(fd, E); rm(fd, E) settles back to the pre-add mask.
func TestWait_RoundTrip(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}

	p.Add(5, Read, a)
	p.Remove(5, Read)
	_, err := p.Wait(0)
	require.NoError(t, err)

	_, installed := mock.Installed[5]
	require.False(t, installed, "fd 5 must have no kernel registration after add;rm round-trip")
}

// unique-waiter invariant: a second Add on the same direction panics.
func TestAdd_DuplicateWaiterPanics(t *testing.T) {
	p, _ := newTestPoller()
	a := &testWaiter{name: "A"}
	b := &testWaiter{name: "B"}
	p.Add(5, Read, a)
	require.Panics(t, func() { p.Add(5, Read, b) })
}

// Clean with attached waiters is a programmer error.
func TestClean_WaitersAttachedPanics(t *testing.T) {
	p, _ := newTestPoller()
	a := &testWaiter{name: "A"}
	p.Add(5, Read, a)
	require.Panics(t, func() { _ = p.Clean(5) })
}

// Clean tolerates an already-removed kernel registration.
func TestClean_TolerantOfNotFound(t *testing.T) {
	p, mock := newTestPoller()
	a := &testWaiter{name: "A"}
	p.Add(5, Read, a)
	_, err := p.Wait(0)
	require.NoError(t, err)

	// Simulate the descriptor already having been dropped by the kernel
	// out from under us (closed elsewhere).
	delete(mock.Installed, 5)

	require.NotPanics(t, func() {
		p.Remove(5, Read)
		err := p.Clean(5)
		require.NoError(t, err)
	})
}

// no-duplicate-on-change-list: enqueueing the same fd twice before
// draining must not create a second list entry.
func TestChangeList_NoDuplicateEnqueue(t *testing.T) {
	var c changeList
	s := &WaitSlot{fd: 5}
	c.enqueue(s)
	c.enqueue(s)

	count := 0
	c.drain(func(got *WaitSlot) {
		count++
		require.Same(t, s, got)
	})
	require.Equal(t, 1, count)
}

// spurious wakeup: an event for a slot with no waiters takes no action.
func TestDispatch_NoWaitersIsNoOp(t *testing.T) {
	p, mock := newTestPoller()
	s := p.table.slot(5)
	s.installedMask = Read
	mock.Installed[5] = toPollsetEvents(Read)

	mock.Push(pollset.Event{Fd: 5, Events: pollset.Read})
	resumed, err := p.Wait(0)
	require.NoError(t, err)
	require.False(t, resumed)
}
