package netpoll

import "golang.org/x/sys/unix"

func init() {
	rawFork = forkLinux
}

// forkLinux issues a raw fork via clone(2) with SIGCHLD (equivalent to
// fork(2) on Linux; arm64 has no fork syscall number at all, so clone is
// the portable choice across architectures). This bypasses os/exec and
// the runtime's own fork+exec path (which quiesces other threads before
// forking) entirely, per spec.md §4.4's "raw fork, no exec" contract.
// That means none of the usual thread-quiescence protections apply; see
// Poller.Fork's doc comment in fork.go for the caller obligations this
// creates.
func forkLinux() (int, error) {
	pid, _, errno := unix.RawSyscall(unix.SYS_CLONE, uintptr(unix.SIGCHLD), 0, 0)
	if errno != 0 {
		return 0, errno
	}
	return int(pid), nil
}
