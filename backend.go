package netpoll

import "github.com/corofd/netpoll/internal/pollset"

// openDefaultBackend picks the platform's Kernel Pollset Adapter at
// compile time (spec.md §4.3: "Choice is a compile-time/build-time
// selection"). pollset.Open resolves to the indexed epoll/kqueue
// backend on Linux/darwin/bsd and to the scanned poll-class backend on
// the remaining non-Windows targets, via build-tagged files in
// internal/pollset (which has no Windows backend).
var openDefaultBackend = func() (pollset.Backend, error) {
	return pollset.Open()
}
