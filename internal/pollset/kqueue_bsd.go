// Copyright 2019 Andy Pan. All rights reserved.
// Copyright 2017 Joshua J Baker. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package pollset

import (
	"golang.org/x/sys/unix"
)

// kqueueBackend is the indexed, kqueue-class Kernel Pollset Adapter
// (Back-end A on darwin/bsd). Unlike epoll, kqueue has independent
// per-direction filters rather than a single combined mask, so syncing
// to a desired mask is expressed as add-present/delete-absent rather
// than a single MOD call.
type kqueueBackend struct {
	fd int
}

// Indexed reports whether this platform's default backend is the
// indexed kind (epoll/kqueue), as opposed to the scanned poll-class one.
const Indexed = true

// Open instantiates the platform's default backend (Back-end A, kqueue)
// on darwin/bsd.
func Open() (Backend, error) {
	return OpenKqueue()
}

// OpenKqueue instantiates Back-end A on darwin/bsd.
func OpenKqueue() (Backend, error) {
	fd, err := unix.Kqueue()
	if err != nil {
		return nil, err
	}
	return &kqueueBackend{fd: fd}, nil
}

func (b *kqueueBackend) Close() error {
	return unix.Close(b.fd)
}

// applyOne issues a single kevent change, one filter at a time. It is
// called once per filter rather than batching both filters into one
// changelist: kqueue(2) aborts processing of the remaining entries in a
// changelist on the first error when no eventlist is given to receive
// per-entry EV_ERROR receipts, so a batched READ-then-WRITE call can
// silently drop the second entry whenever the first one is a DELETE
// against a filter that was never installed. It reports unix.ENOENT
// back to the caller (rather than swallowing it here) so Remove can
// tell "nothing was registered for this filter" apart from "something
// was, and is now gone".
func (b *kqueueBackend) applyOne(fd int, filter int16, flag uint16) error {
	change := unix.Kevent_t{Ident: uint64(fd), Filter: filter, Flags: flag}
	_, err := unix.Kevent(b.fd, []unix.Kevent_t{change}, nil, nil)
	return err
}

func (b *kqueueBackend) sync(fd int, events Events) error {
	readFlag := uint16(unix.EV_DELETE)
	if events&Read != 0 {
		readFlag = unix.EV_ADD
	}
	if err := b.applyOne(fd, unix.EVFILT_READ, readFlag); err != nil && err != unix.ENOENT {
		return err
	}
	writeFlag := uint16(unix.EV_DELETE)
	if events&Write != 0 {
		writeFlag = unix.EV_ADD
	}
	if err := b.applyOne(fd, unix.EVFILT_WRITE, writeFlag); err != nil && err != unix.ENOENT {
		return err
	}
	return nil
}

func (b *kqueueBackend) Install(fd int, events Events) error {
	return b.sync(fd, events)
}

func (b *kqueueBackend) Modify(fd int, events Events) error {
	return b.sync(fd, events)
}

// Remove deletes both filters independently so an ENOENT on one (the
// direction that was never installed) cannot abort the delete of the
// other. ErrNotFound is returned only when neither filter was
// registered at all; if exactly one was, that one's successful delete
// is enough to report success.
func (b *kqueueBackend) Remove(fd int) error {
	readErr := b.applyOne(fd, unix.EVFILT_READ, unix.EV_DELETE)
	if readErr != nil && readErr != unix.ENOENT {
		return readErr
	}
	writeErr := b.applyOne(fd, unix.EVFILT_WRITE, unix.EV_DELETE)
	if writeErr != nil && writeErr != unix.ENOENT {
		return writeErr
	}
	if readErr == unix.ENOENT && writeErr == unix.ENOENT {
		return ErrNotFound
	}
	return nil
}

func (b *kqueueBackend) Wait(dst []Event, timeoutMS int) ([]Event, error) {
	var raw [128]unix.Kevent_t
	var ts *unix.Timespec
	for {
		if timeoutMS >= 0 {
			t := unix.NsecToTimespec(int64(timeoutMS) * 1e6)
			ts = &t
		} else {
			ts = nil
		}
		n, err := unix.Kevent(b.fd, nil, raw[:], ts)
		if err != nil {
			if err == unix.EINTR {
				continue
			}
			return dst, err
		}
		for i := 0; i < n; i++ {
			ev := raw[i]
			var got Events
			switch ev.Filter {
			case unix.EVFILT_READ:
				got |= Read
			case unix.EVFILT_WRITE:
				got |= Write
			}
			if ev.Flags&(unix.EV_EOF|unix.EV_ERROR) != 0 {
				got |= Err
			}
			if got == 0 {
				continue
			}
			dst = append(dst, Event{Fd: int(ev.Ident), Events: got})
		}
		return dst, nil
	}
}
