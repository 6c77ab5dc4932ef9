package netpoll

import (
	"fmt"
	"syscall"

	"github.com/corofd/netpoll/internal/pollset"
)

// forker is the raw fork(2) primitive, supplied per-platform so Fork can
// stay platform-agnostic. rawFork is implemented in fork_linux.go /
// fork_bsd.go; it returns the child's pid in the parent (0 in the
// child), mirroring fork(2) itself.
var rawFork func() (int, error)

// Fork wraps the OS fork primitive (spec.md §4.4 Fork Adapter). The
// indexed back-ends (epoll/kqueue) share their kernel pollset handle
// across fork, which is intolerable — modifications in either process
// would affect the other — so in the child only, Fork closes the
// inherited handle, opens a fresh one, and re-installs every slot whose
// installedMask is non-empty with the same mask. The Change List is not
// replayed; reconciliation happens lazily on the child's next Wait. For
// the scanned back-end there is no kernel-side pollset state to
// reconcile, so the rebuild is a no-op there. rawFork is set only on
// Linux, darwin and the BSDs; on any other platform, which includes
// every target of the scanned back-end, Fork returns an error without
// forking.
//
// Failures during the child's rebuild are fatal to the child, per
// spec.md §4.4 — this matches the single-threaded cooperative runtime's
// assumption that a child which cannot re-establish its pollset has no
// way to make forward progress anyway.
//
// Forking a Go process is never fully safe without an immediate exec:
// the runtime's own threads (GC, sysmon) keep running in the parent and
// vanish in the child mid-operation, so the child can inherit a
// runtime lock held by a thread that no longer exists. syscall.ForkLock
// is held across the raw syscall below — the same lock the standard
// library's os.StartProcess takes — which at least serializes against
// the runtime's own fd-table-affecting fork use, but it is not a
// general guarantee. Callers MUST ensure no other goroutine is
// concurrently allocating, running GC-sensitive code, or touching this
// Poller when Fork is called; the only supported use is calling it
// once, early, before any other goroutine has been started.
func (p *Poller) Fork() (int, error) {
	if rawFork == nil {
		return 0, fmt.Errorf("netpoll: fork is not supported on this platform")
	}
	syscall.ForkLock.Lock()
	pid, err := rawFork()
	syscall.ForkLock.Unlock()
	if err != nil {
		return 0, err
	}
	if pid != 0 {
		// Parent: its kernel pollset and Wait Table are untouched.
		return pid, nil
	}

	// Child.
	if !pollset.Indexed {
		return 0, nil
	}
	if err := p.backend.Close(); err != nil {
		panic(fmt.Sprintf("netpoll: fork child failed to close inherited pollset: %v", err))
	}
	backend, err := openDefaultBackend()
	if err != nil {
		panic(fmt.Sprintf("netpoll: fork child failed to open fresh pollset: %v", err))
	}
	p.backend = backend
	p.table.forEach(func(s *WaitSlot) {
		if err := p.backend.Install(s.fd, toPollsetEvents(s.installedMask)); err != nil {
			panic(fmt.Sprintf("netpoll: fork child failed to reinstall fd=%d: %v", s.fd, err))
		}
	})
	return 0, nil
}
