//go:build !linux && !darwin && !netbsd && !freebsd && !openbsd && !dragonfly && !windows

package pollset

import (
	"golang.org/x/sys/unix"
)

// pollBackend is the scanned, poll-class Kernel Pollset Adapter (Back-end
// B). The kernel primitive here takes an array of (fd, events) pairs and
// fills in revents for all of them on every call, so there is no O(1)
// lookup by fd to lean on; registrations live in a parallel-array pair
// grown geometrically, doubling from 64, matching the array-growth idiom
// of a scanned poll loop (see widaT/netpoll's defaultPoll.Reset).
type pollBackend struct {
	fds   []unix.PollFd
	index map[int]int // fd -> position in fds, for O(1) modify/remove lookup
}

const pollBackendInitialCap = 64

// Indexed reports whether this platform's default backend is the
// indexed kind (epoll/kqueue), as opposed to the scanned poll-class one.
const Indexed = false

// Open instantiates the platform's default backend (Back-end B, poll) on
// targets without an indexed kernel primitive.
func Open() (Backend, error) {
	return OpenPoll()
}

// OpenPoll instantiates Back-end B.
func OpenPoll() (Backend, error) {
	return &pollBackend{
		fds:   make([]unix.PollFd, 0, pollBackendInitialCap),
		index: make(map[int]int, pollBackendInitialCap),
	}, nil
}

func (b *pollBackend) Close() error {
	return nil
}

func toPollEvents(events Events) int16 {
	var e int16
	if events&Read != 0 {
		e |= unix.POLLIN
	}
	if events&Write != 0 {
		e |= unix.POLLOUT
	}
	return e
}

func (b *pollBackend) Install(fd int, events Events) error {
	if _, ok := b.index[fd]; ok {
		return b.Modify(fd, events)
	}
	if len(b.fds) == cap(b.fds) {
		grown := make([]unix.PollFd, len(b.fds), growPollCap(cap(b.fds)))
		copy(grown, b.fds)
		b.fds = grown
	}
	b.index[fd] = len(b.fds)
	b.fds = append(b.fds, unix.PollFd{Fd: int32(fd), Events: toPollEvents(events)})
	return nil
}

func growPollCap(c int) int {
	if c == 0 {
		return pollBackendInitialCap
	}
	return c * 2
}

func (b *pollBackend) Modify(fd int, events Events) error {
	i, ok := b.index[fd]
	if !ok {
		return b.Install(fd, events)
	}
	b.fds[i].Events = toPollEvents(events)
	return nil
}

// Remove swaps the last element into the removed slot to keep the array
// dense, as a scanned back-end must to avoid dispatch cost growing with
// the high-water mark of descriptors ever registered.
func (b *pollBackend) Remove(fd int) error {
	i, ok := b.index[fd]
	if !ok {
		return ErrNotFound
	}
	last := len(b.fds) - 1
	if i != last {
		b.fds[i] = b.fds[last]
		b.index[int(b.fds[i].Fd)] = i
	}
	b.fds = b.fds[:last]
	delete(b.index, fd)
	return nil
}

func (b *pollBackend) Wait(dst []Event, timeoutMS int) ([]Event, error) {
	for {
		n, err := unix.Poll(b.fds, timeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, err
		}
		if n == 0 {
			return dst, nil
		}
		for i := range b.fds {
			revents := b.fds[i].Revents
			if revents == 0 {
				continue
			}
			var got Events
			if revents&unix.POLLIN != 0 {
				got |= Read
			}
			if revents&unix.POLLOUT != 0 {
				got |= Write
			}
			// NVAL is mapped to ERR in addition to ERR|HUP, per spec.
			if revents&(unix.POLLERR|unix.POLLHUP|unix.POLLNVAL) != 0 {
				got |= Err
			}
			b.fds[i].Revents = 0
			if got == 0 {
				continue
			}
			dst = append(dst, Event{Fd: int(b.fds[i].Fd), Events: got})
		}
		return dst, nil
	}
}
