package netpoll

import (
	"fmt"

	"github.com/corofd/netpoll/internal/pollset"
	"go.uber.org/zap"
)

// Wait is the heart of the Poller Core (spec.md §4.1 poller_wait):
// reconcile the Change List against the kernel, block for readiness up
// to timeoutMS (0 = non-blocking probe, -1 = indefinite), and dispatch
// reported events to waiters. It returns true if at least one coroutine
// was resumed, false on timeout. EINTR is retried transparently inside
// the backend; it never surfaces here. Any other failure of the kernel
// wait call is treated as fatal and panics, so the returned error is
// always nil.
func (p *Poller) Wait(timeoutMS int) (bool, error) {
	p.reconcile()

	events, err := p.backend.Wait(p.eventBuf[:0], timeoutMS)
	if err != nil {
		p.log.Error("netpoll: kernel wait failed", zap.Int("timeoutMS", timeoutMS), zap.Error(err))
		panic(fmt.Sprintf("netpoll: kernel wait failed: %v", err))
	}
	p.eventBuf = events

	resumed := false
	for _, ev := range events {
		if p.dispatch(ev) {
			resumed = true
		}
	}
	return resumed, nil
}

// reconcile walks the Change List head to END (spec.md §4.1 step 1).
// For each slot it computes the desired mask from waiter presence; if it
// already matches installedMask the slot is simply unlinked (tolerating
// redundant enqueues per invariant 3). Otherwise the minimal kernel
// operation — INSTALL, MODIFY, or REMOVE — is issued and installedMask
// is updated to match. A kernel failure on INSTALL/MODIFY is treated as
// fatal: it indicates the in-memory table and the kernel have
// desynchronized, which spec.md §7 classifies as a programmer/runtime
// error, not a recoverable one.
func (p *Poller) reconcile() {
	p.changes.drain(func(s *WaitSlot) {
		desired := s.desiredMask()
		if desired != s.installedMask {
			var err error
			switch {
			case s.installedMask == 0 && desired != 0:
				err = p.backend.Install(s.fd, toPollsetEvents(desired))
			case s.installedMask != 0 && desired == 0:
				err = p.backend.Remove(s.fd)
				if err == pollset.ErrNotFound {
					err = nil
				}
			default:
				err = p.backend.Modify(s.fd, toPollsetEvents(desired))
			}
			if err != nil {
				p.log.Error("netpoll: kernel desynchronization during reconciliation",
					zap.Int("fd", s.fd), zap.Stringer("desired", desired), zap.Error(err))
				panic(fmt.Sprintf("netpoll: kernel operation failed reconciling fd=%d: %v", s.fd, err))
			}
			s.installedMask = desired
		}
		if s.empty() {
			p.table.release(s.fd)
		}
	})
}

// dispatch resolves one kernel-reported event against its slot
// (spec.md §4.1 step 3) and resumes the appropriate waiter(s). It
// returns true if a resumption happened.
func (p *Poller) dispatch(ev pollset.Event) bool {
	s := p.table.slot(ev.Fd)

	// Error/hangup is folded into BOTH directions regardless of which
	// one the kernel tagged it on (spec.md §3 Readiness flags).
	errFlag := ev.Events&pollset.Err != 0
	var inFlags, outFlags Events
	if ev.Events&pollset.Read != 0 {
		inFlags |= Read
	}
	if ev.Events&pollset.Write != 0 {
		outFlags |= Write
	}
	if errFlag {
		inFlags |= Err
		outFlags |= Err
	}

	// Coalesced case: one coroutine occupies both directions. Resume it
	// once with the union of flags and clear both via Remove.
	if s.inWaiter != nil && s.inWaiter == s.outWaiter {
		flags := inFlags | outFlags
		if flags == 0 {
			return false
		}
		w := s.inWaiter
		p.Remove(s.fd, Read|Write)
		w.Resume(flags)
		return true
	}

	resumed := false
	// Split case: in- and out-waiters (if any) are independent
	// coroutines, each resumed with only their own direction's flags.
	if s.inWaiter != nil && inFlags != 0 {
		w := s.inWaiter
		p.Remove(s.fd, Read)
		w.Resume(inFlags)
		resumed = true
	}
	if s.outWaiter != nil && outFlags != 0 {
		w := s.outWaiter
		p.Remove(s.fd, Write)
		w.Resume(outFlags)
		resumed = true
	}
	return resumed
}
