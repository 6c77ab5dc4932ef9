// Package netpoll implements a file-descriptor readiness poller: the
// bridge between a level-triggered OS readiness primitive (epoll/kqueue-
// class or poll-class) and a user-space cooperative runtime. Coroutines
// register intent via Add and suspend; the scheduler calls Wait when it
// has nothing runnable; Wait resumes exactly the waiters the kernel
// reports ready, with flags indicating which directions fired or
// errored. The scheduler, coroutine stacks, and ready-queue ordering are
// out of scope — see SPEC_FULL.md §1.
package netpoll

import (
	"fmt"
	"sync"

	"github.com/corofd/netpoll/internal/pollset"
	"go.uber.org/zap"
)

// Poller is the Poller Core of spec.md §4.1. The zero value is not
// usable; construct one with New or the package-level Init/Default.
type Poller struct {
	mu        sync.Mutex // not locked anywhere: Init's singleton handoff uses defaultOnce, and Add/Remove/Clean/Wait are single-threaded by contract (spec.md §5)
	backend   pollset.Backend
	table     waitTable
	changes   changeList
	log       *zap.Logger
	maxFDHint int
	eventBuf  []pollset.Event
}

// New constructs and initializes a Poller: allocates the Wait Table and
// acquires the kernel pollset handle. This is poller_init() of spec.md
// §4.1; it is not idempotent by itself (idempotency is the package-level
// Init's job) because a fresh *Poller is a fresh set of kernel state.
func New(opts ...Option) (*Poller, error) {
	p := &Poller{log: zap.NewNop()}
	for _, opt := range opts {
		opt(p)
	}

	backend, err := openDefaultBackend()
	if err != nil {
		return nil, wrapInitError(err)
	}
	p.backend = backend

	if pollset.Indexed {
		maxFD := p.maxFDHint
		if maxFD <= 0 {
			maxFD, err = pollset.MaxFD()
			if err != nil {
				_ = backend.Close()
				return nil, wrapInitError(err)
			}
		}
		table, allocErr := allocIndexedWaitTable(maxFD)
		if allocErr != nil {
			_ = backend.Close()
			return nil, allocErr
		}
		p.table = table
	} else {
		p.table = newScannedWaitTable()
	}

	p.eventBuf = make([]pollset.Event, 0, 128)
	return p, nil
}

var (
	defaultOnce sync.Once
	defaultP    *Poller
	defaultErr  error
)

// Init performs idempotent process-wide initialization (spec.md §4.1):
// the first call constructs the singleton Poller returned by Default;
// subsequent calls are no-ops that return the first call's error, if
// any. Failure leaves the poller inert — callers must not invoke
// Add/Remove/Clean/Wait on it.
func Init(opts ...Option) error {
	defaultOnce.Do(func() {
		defaultP, defaultErr = New(opts...)
	})
	return defaultErr
}

// Default returns the process-wide Poller established by Init. It
// panics if Init has not been called successfully — calling it on an
// inert poller is explicitly undefined behavior per spec.md §7.
func Default() *Poller {
	if defaultP == nil {
		panic("netpoll: Default() called before a successful Init()")
	}
	return defaultP
}

// Add registers waiter as the sole waiter for each direction in events
// on fd (poller_add of spec.md §4.1). events must be a non-empty subset
// of {Read, Write}. If a waiter already occupies a requested direction,
// this is a programmer error per spec.md §4.1 and the process panics —
// it is never returned as an error. Add makes no kernel call; the
// descriptor is queued for reconciliation on the next Wait.
func (p *Poller) Add(fd int, events Events, waiter Waiter) {
	if events == 0 || events&^(Read|Write) != 0 {
		panic(fmt.Sprintf("netpoll: Add(fd=%d): events must be a non-empty subset of {Read, Write}, got %s", fd, events))
	}
	if waiter == nil {
		panic(fmt.Sprintf("netpoll: Add(fd=%d): waiter must not be nil", fd))
	}
	s := p.table.slot(fd)
	if events&Read != 0 {
		if s.inWaiter != nil {
			panic(fmt.Sprintf("netpoll: multiple coroutines waiting for a single file descriptor (fd=%d, direction=read)", fd))
		}
		s.inWaiter = waiter
	}
	if events&Write != 0 {
		if s.outWaiter != nil {
			panic(fmt.Sprintf("netpoll: multiple coroutines waiting for a single file descriptor (fd=%d, direction=write)", fd))
		}
		s.outWaiter = waiter
	}
	p.changes.enqueue(s)
}

// Remove clears the named directions from fd's waiter fields
// (poller_rm of spec.md §4.1). It is called on cancellation, timeout, or
// after a resumption has consumed a direction. No kernel call is made;
// reconciliation is deferred to the next Wait.
func (p *Poller) Remove(fd int, events Events) {
	s := p.table.slot(fd)
	if events&Read != 0 {
		s.inWaiter = nil
	}
	if events&Write != 0 {
		s.outWaiter = nil
	}
	p.changes.enqueue(s)
	p.table.release(fd)
}

// Clean releases fd ahead of the application closing it (poller_clean of
// spec.md §4.1). Both waiter fields must already be empty — the runtime
// is required to cancel waits first — or this panics. If the kernel
// still has a registration, it is removed; ErrNotFound from that removal
// is tolerated (the descriptor may already have been closed elsewhere).
func (p *Poller) Clean(fd int) error {
	s := p.table.slot(fd)
	if s.inWaiter != nil || s.outWaiter != nil {
		panic(fmt.Sprintf("netpoll: Clean(fd=%d) called with waiters still attached", fd))
	}
	if s.installedMask != 0 {
		if err := p.backend.Remove(fd); err != nil && err != pollset.ErrNotFound {
			p.log.Error("netpoll: kernel remove failed during Clean", zap.Int("fd", fd), zap.Error(err))
			panic(fmt.Sprintf("netpoll: kernel desynchronization removing fd=%d: %v", fd, err))
		}
		s.installedMask = 0
	}
	p.changes.enqueue(s)
	p.table.release(fd)
	return nil
}
