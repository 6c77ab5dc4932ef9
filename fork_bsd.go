//go:build darwin || netbsd || freebsd || openbsd || dragonfly

package netpoll

import "golang.org/x/sys/unix"

func init() {
	rawFork = forkBSD
}

// forkBSD issues a raw fork(2), bypassing os/exec and the runtime's own
// fork+exec path. See forkLinux's doc comment and Poller.Fork in
// fork.go for the caller obligations this creates.
func forkBSD() (int, error) {
	pid, _, errno := unix.RawSyscall(unix.SYS_FORK, 0, 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(pid), nil
}
