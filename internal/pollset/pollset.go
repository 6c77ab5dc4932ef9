// Package pollset abstracts the OS-level readiness primitive consumed by
// the poller core. Two concrete backends exist: an indexed, epoll/kqueue-class
// backend (O(1) install/modify/remove, only ready descriptors returned) and a
// scanned, poll-class backend (flat array scanned by the kernel on every
// call). Both satisfy Backend so the core never branches on which is in use.
package pollset

import "errors"

// ErrNotFound is returned by Remove when the kernel has no registration for
// the given descriptor. The poller core tolerates this during Clean.
var ErrNotFound = errors.New("pollset: descriptor not registered")

// Events is a bitmask over the readiness directions the kernel can report.
type Events uint8

const (
	// Read is set when a descriptor is readable (or a listener has a
	// pending connection).
	Read Events = 1 << iota
	// Write is set when a descriptor is writable.
	Write
	// Err is set on hangup or error; it is folded into both directions
	// by the poller core regardless of which one it arrives tagged on.
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

// Event is one readiness report from Wait, matched back to a Wait Table
// slot by Fd.
type Event struct {
	Fd     int
	Events Events
}

// Backend is the capability set a Kernel Pollset Adapter exposes to the
// poller core: install, modify, remove and wait, keyed by raw fd. It
// deliberately does not expose anything about how registrations are
// stored internally (flat array vs scanned slice) — that is a Wait Table
// concern, not a Backend concern.
type Backend interface {
	// Install registers fd for the given (non-empty) event mask. It is
	// called only when the descriptor currently has no kernel
	// registration.
	Install(fd int, events Events) error
	// Modify changes the event mask of an already-installed fd.
	Modify(fd int, events Events) error
	// Remove drops the kernel registration for fd. ErrNotFound is
	// tolerated by callers during Clean.
	Remove(fd int) error
	// Wait blocks up to timeoutMS (0 = non-blocking poll, -1 = indefinite)
	// and appends ready events to dst, returning the extended slice.
	// EINTR is retried internally; Wait never returns it.
	Wait(dst []Event, timeoutMS int) ([]Event, error)
	// Close releases the kernel handle. Used by tests, by the fork
	// adapter, which replaces the handle wholesale, and by the poller's
	// New when initialization fails after the handle was opened.
	Close() error
}
