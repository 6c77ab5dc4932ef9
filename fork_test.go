package netpoll

import (
	"testing"

	"github.com/corofd/netpoll/internal/pollset"
	"github.com/stretchr/testify/require"
)

// TestFork_ChildRebuildsPollsetFromWaitTable exercises the Fork Adapter's
// child-side path (spec.md §4.4) without an actual OS fork: rawFork and
// openDefaultBackend are swapped for deterministic fakes, so the test
// only verifies the rebuild logic — close the old handle, open a fresh
// one, reinstall every non-empty slot — not the OS fork syscall itself.
func TestFork_ChildRebuildsPollsetFromWaitTable(t *testing.T) {
	oldFork, oldOpen := rawFork, openDefaultBackend
	defer func() { rawFork, openDefaultBackend = oldFork, oldOpen }()

	parentMock := pollset.NewMock()
	childMock := pollset.NewMock()
	opened := 0
	openDefaultBackend = func() (pollset.Backend, error) {
		opened++
		return childMock, nil
	}
	rawFork = func() (int, error) { return 0, nil } // pretend to be the child

	p := &Poller{backend: parentMock, table: newScannedWaitTable()}
	a := &testWaiter{name: "A"}
	p.Add(5, Read, a)
	_, err := p.Wait(0) // installs fd 5 into parentMock
	require.NoError(t, err)

	pid, err := p.Fork()
	require.NoError(t, err)
	require.Equal(t, 0, pid)

	require.True(t, parentMock.Closed(), "child must close the inherited pollset handle")
	require.Equal(t, 1, opened, "child must open exactly one fresh pollset")
	require.Same(t, childMock, p.backend)
	require.Equal(t, pollset.Read, childMock.Installed[5], "child must reinstall fd 5 with the same mask")
}

// TestFork_ParentUntouched verifies the parent branch never closes or
// rebuilds anything.
func TestFork_ParentUntouched(t *testing.T) {
	oldFork := rawFork
	defer func() { rawFork = oldFork }()

	parentMock := pollset.NewMock()
	rawFork = func() (int, error) { return 42, nil } // pretend to be the parent

	p := &Poller{backend: parentMock, table: newScannedWaitTable()}
	pid, err := p.Fork()
	require.NoError(t, err)
	require.Equal(t, 42, pid)
	require.False(t, parentMock.Closed())
}
