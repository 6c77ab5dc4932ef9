package netpoll

import "github.com/pkg/errors"

// ErrOutOfMemory and ErrKernelResourceExhausted are the two recoverable
// Init failure categories of spec.md §4.1: allocation of the Wait Table
// or acquisition of the kernel pollset handle. Both leave the poller
// inert; callers must not call Add/Remove/Clean/Wait on an inert poller.
var (
	ErrOutOfMemory             = errors.New("netpoll: out of memory allocating wait table")
	ErrKernelResourceExhausted = errors.New("netpoll: kernel pollset resource exhausted")
)

// wrapInitError classifies a low-level kernel-handle acquisition failure
// into the ErrKernelResourceExhausted category: errors.Cause of the
// result is ErrKernelResourceExhausted, and the original error is kept
// only as the wrapping message text.
func wrapInitError(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(ErrKernelResourceExhausted, err.Error())
}
