package netpoll

import "github.com/corofd/netpoll/internal/pollset"

// Events is a bitmask over the readiness directions a waiter can
// subscribe to, and the directions a resumption can report. It is the
// same shape as pollset.Events; the two stay in lockstep by construction
// (see toPollsetEvents/fromPollsetEvents) so the poller core never
// leaks the backend's wire representation to callers.
type Events uint8

const (
	// Read is requested by a coroutine waiting for a descriptor to
	// become readable, and reported when the kernel confirms it.
	Read Events = 1 << iota
	// Write is requested by a coroutine waiting for a descriptor to
	// become writable, and reported when the kernel confirms it.
	Write
	// Err is never requested; the poller core sets it on resumption
	// when the kernel reports hangup or error, delivered to both
	// directions regardless of which one a waiter subscribed to.
	Err
)

func (e Events) String() string {
	s := ""
	if e&Read != 0 {
		s += "R"
	}
	if e&Write != 0 {
		s += "W"
	}
	if e&Err != 0 {
		s += "E"
	}
	if s == "" {
		return "-"
	}
	return s
}

func toPollsetEvents(e Events) pollset.Events {
	var p pollset.Events
	if e&Read != 0 {
		p |= pollset.Read
	}
	if e&Write != 0 {
		p |= pollset.Write
	}
	return p
}

func fromPollsetEvents(p pollset.Events) Events {
	var e Events
	if p&pollset.Read != 0 {
		e |= Read
	}
	if p&pollset.Write != 0 {
		e |= Write
	}
	if p&pollset.Err != 0 {
		e |= Err
	}
	return e
}

// Waiter is the non-owning reference the Wait Table holds to a suspended
// coroutine. The poller never allocates, schedules, or deallocates the
// thing behind this interface — it only ever calls Resume, exactly once
// per registered direction (or once total, for a coalesced resumption).
type Waiter interface {
	Resume(events Events)
}

// WaitSlot is the per-descriptor record of spec.md §3: at most one
// read-waiter, at most one write-waiter, and the mask currently mirrored
// in the kernel. nextChange threads the slot onto the Change List; nil
// means "not enqueued", and the package-level changeListEnd sentinel
// means "enqueued, last in line" — the two are never confused, which is
// the Go realization of the NIL/END sentinel distinction in spec.md §9.
type WaitSlot struct {
	fd            int
	inWaiter      Waiter
	outWaiter     Waiter
	installedMask Events
	nextChange    *WaitSlot
}

// changeListEnd is a distinguished non-nil sentinel marking the tail of
// the Change List. It is never dereferenced as a real slot.
var changeListEnd = &WaitSlot{fd: -1}

// onChangeList reports whether the slot is currently linked into the
// Change List (invariant 5: no descriptor appears twice simultaneously).
func (s *WaitSlot) onChangeList() bool {
	return s.nextChange != nil
}

// desiredMask computes the mask spec.md §4.1 step 1 reconciles toward:
// READ iff inWaiter is present, WRITE iff outWaiter is present.
func (s *WaitSlot) desiredMask() Events {
	var m Events
	if s.inWaiter != nil {
		m |= Read
	}
	if s.outWaiter != nil {
		m |= Write
	}
	return m
}

// empty reports whether the slot has no waiters and no kernel
// registration — the condition under which a scanned-backend slot may be
// dropped from its parallel array entirely (spec.md §3 Lifecycle).
func (s *WaitSlot) empty() bool {
	return s.inWaiter == nil && s.outWaiter == nil && s.installedMask == 0
}
