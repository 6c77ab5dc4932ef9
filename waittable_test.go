package netpoll

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestIndexedWaitTable_SlotStableAcrossGrowth(t *testing.T) {
	tb := newIndexedWaitTable(4)
	s := tb.slot(2)
	s.installedMask = Read

	// Requesting an fd beyond the initial size must grow in place
	// without losing existing slots.
	grown := tb.slot(10)
	require.Equal(t, 10, grown.fd)
	require.Equal(t, Read, tb.slot(2).installedMask)
}

func TestIndexedWaitTable_ReleaseIsNoOp(t *testing.T) {
	tb := newIndexedWaitTable(4)
	s := tb.slot(1)
	s.inWaiter = &testWaiter{}
	tb.release(1)
	// Indexed slots live for the fd's numeric lifetime regardless of
	// release calls (spec.md §3 Lifecycle).
	require.Same(t, s, tb.slot(1))
	require.NotNil(t, tb.slot(1).inWaiter)
}

func TestScannedWaitTable_ReleaseDropsEmptySlot(t *testing.T) {
	tb := newScannedWaitTable()
	s := tb.slot(7)
	require.Len(t, tb.slots, 1)

	s.installedMask = Read
	tb.release(7) // not empty yet
	require.Len(t, tb.slots, 1)

	s.installedMask = 0
	tb.release(7)
	require.Len(t, tb.slots, 0)
}

func TestScannedWaitTable_ReleaseRefusedWhileOnChangeList(t *testing.T) {
	tb := newScannedWaitTable()
	s := tb.slot(7)
	s.nextChange = changeListEnd // pretend it's enqueued
	tb.release(7)
	require.Len(t, tb.slots, 1, "release must not drop a slot still linked on the change list")
}

func TestScannedWaitTable_SwapRemoveKeepsIndexConsistent(t *testing.T) {
	tb := newScannedWaitTable()
	tb.slot(1)
	tb.slot(2)
	three := tb.slot(3)

	tb.release(1) // fd 1 is empty; swap-remove moves fd 3 into its slot
	require.Len(t, tb.slots, 2)
	require.Same(t, three, tb.slot(3), "fd 3's slot identity must survive the swap")
	require.Equal(t, 0, tb.index[3], "fd 3 must be reindexed to the vacated position")
}

func TestForEach_OnlyVisitsInstalledSlots(t *testing.T) {
	tb := newScannedWaitTable()
	tb.slot(1).installedMask = Read
	tb.slot(2) // never installed

	seen := map[int]bool{}
	tb.forEach(func(s *WaitSlot) { seen[s.fd] = true })
	require.Equal(t, map[int]bool{1: true}, seen)
}
