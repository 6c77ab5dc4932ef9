//go:build !windows

package pollset

import "golang.org/x/sys/unix"

// MaxFD returns the process's current soft file-descriptor limit, used to
// size the indexed Wait Table at startup.
func MaxFD() (int, error) {
	var rlim unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_NOFILE, &rlim); err != nil {
		return 0, err
	}
	return int(rlim.Cur), nil
}
