//go:build linux

package netpoll

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

// TestIntegration_PipeReadable exercises the real epoll backend end to
// end: a pipe write must wake a waiter registered for Read within a
// bounded timeout.
func TestIntegration_PipeReadable(t *testing.T) {
	r, w, err := os.Pipe()
	require.NoError(t, err)
	defer r.Close()
	defer w.Close()

	p, err := New(WithMaxFD(64))
	require.NoError(t, err)

	a := &testWaiter{name: "A"}
	p.Add(int(r.Fd()), Read, a)

	go func() {
		time.Sleep(20 * time.Millisecond)
		_, _ = w.Write([]byte("x"))
	}()

	deadline := time.Now().Add(2 * time.Second)
	for len(a.resumed) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("timed out waiting for readiness resumption")
		}
		_, err := p.Wait(200)
		require.NoError(t, err)
	}

	require.Len(t, a.resumed, 1)
	require.True(t, a.resumed[0]&Read != 0)
}
