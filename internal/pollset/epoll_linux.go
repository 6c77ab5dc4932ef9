// Copyright 2019 Andy Pan. All rights reserved.
// Use of this source code is governed by an MIT-style
// license that can be found in the LICENSE file.

package pollset

import (
	"golang.org/x/sys/unix"
)

// readEvents/writeEvents mirror the teacher's epoll constant split: PRI is
// folded into the read direction, HUP/ERR are requested implicitly by the
// kernel and surfaced regardless of the subscribed mask.
const (
	readEvents      = unix.EPOLLPRI | unix.EPOLLIN
	writeEvents     = unix.EPOLLOUT
	readWriteEvents = readEvents | writeEvents
)

// epollBackend is the indexed, epoll-class Kernel Pollset Adapter
// (Back-end A on Linux).
type epollBackend struct {
	fd int
}

// Indexed reports whether this platform's default backend is the
// indexed kind (epoll/kqueue), as opposed to the scanned poll-class one.
const Indexed = true

// Open instantiates the platform's default backend (Back-end A, epoll) on
// Linux.
func Open() (Backend, error) {
	return OpenEpoll()
}

// OpenEpoll instantiates Back-end A on Linux.
func OpenEpoll() (Backend, error) {
	fd, err := unix.EpollCreate1(unix.EPOLL_CLOEXEC)
	if err != nil {
		return nil, err
	}
	return &epollBackend{fd: fd}, nil
}

func (b *epollBackend) Close() error {
	return unix.Close(b.fd)
}

func toEpollEvents(events Events) uint32 {
	var e uint32
	if events&Read != 0 {
		e |= readEvents
	}
	if events&Write != 0 {
		e |= writeEvents
	}
	return e
}

func (b *epollBackend) Install(fd int, events Events) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: toEpollEvents(events)}
	return unix.EpollCtl(b.fd, unix.EPOLL_CTL_ADD, fd, &ev)
}

func (b *epollBackend) Modify(fd int, events Events) error {
	ev := unix.EpollEvent{Fd: int32(fd), Events: toEpollEvents(events)}
	return unix.EpollCtl(b.fd, unix.EPOLL_CTL_MOD, fd, &ev)
}

func (b *epollBackend) Remove(fd int) error {
	err := unix.EpollCtl(b.fd, unix.EPOLL_CTL_DEL, fd, nil)
	if err == unix.ENOENT {
		return ErrNotFound
	}
	return err
}

// Wait blocks in epoll_wait up to timeoutMS, retrying transparently on
// EINTR, and maps the bounded 128-event buffer into dst. Unconsumed
// events resurface on the next call because epoll is level-triggered
// here (no EPOLLET is ever requested).
func (b *epollBackend) Wait(dst []Event, timeoutMS int) ([]Event, error) {
	var raw [128]unix.EpollEvent
	for {
		n, err := unix.EpollWait(b.fd, raw[:], timeoutMS)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, err
		}
		for i := 0; i < n; i++ {
			ev := raw[i]
			var got Events
			if ev.Events&(unix.EPOLLIN|unix.EPOLLPRI) != 0 {
				got |= Read
			}
			if ev.Events&unix.EPOLLOUT != 0 {
				got |= Write
			}
			if ev.Events&(unix.EPOLLERR|unix.EPOLLHUP|unix.EPOLLRDHUP) != 0 {
				got |= Err
			}
			if got == 0 {
				continue
			}
			dst = append(dst, Event{Fd: int(ev.Fd), Events: got})
		}
		return dst, nil
	}
}
