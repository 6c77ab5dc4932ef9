// Command pollerdemo is a thin length-framed TCP echo server that drives
// github.com/corofd/netpoll over real sockets. It is not part of the
// poller's public contract (the surrounding coroutine scheduler is out
// of scope per SPEC_FULL.md §1) — it exists to give every teacher
// dependency a runnable home: go-reuseport for the listener, ants as a
// worker pool standing in for coroutine dispatch, bytebufferpool for
// buffer reuse, and goframe for the wire framing.
//
// All calls into the poller (Add/Remove/Wait) happen on a single
// goroutine, the "scheduler loop" below, matching spec.md §5's
// single-thread-owns-the-poller contract; the ants pool only ever does
// application-level work (parsing a frame, echoing it back), never
// touches the poller.
package main

import (
	"encoding/binary"
	"flag"
	"net"
	"time"

	"github.com/libp2p/go-reuseport"
	"github.com/panjf2000/ants/v2"
	"github.com/smallnest/goframe"
	"github.com/valyala/bytebufferpool"
	"go.uber.org/zap"

	"github.com/corofd/netpoll"
)

var frameCodec = goframe.NewLengthFieldBasedFrameConn

func encoderConfig() goframe.EncoderConfig {
	return goframe.EncoderConfig{
		ByteOrder:                       binary.BigEndian,
		LengthFieldLength:               4,
		LengthAdjustment:                0,
		LengthIncludesLengthFieldLength: false,
	}
}

func decoderConfig() goframe.DecoderConfig {
	return goframe.DecoderConfig{
		ByteOrder:           binary.BigEndian,
		LengthFieldOffset:   0,
		LengthFieldLength:   4,
		LengthAdjustment:    0,
		InitialBytesToStrip: 4,
	}
}

// demoConn is one accepted connection, its raw fd (for poller
// registration) and its frame codec (for actual reads/writes).
type demoConn struct {
	fd    int
	conn  net.Conn
	frame goframe.FrameConn
}

// connWaiter implements netpoll.Waiter. Resume runs synchronously on the
// scheduler goroutine (inside Poller.Wait's dispatch), so it must not
// block: it hands a readable connection to the worker pool, or queues
// an errored one on the drops channel.
type connWaiter struct {
	c      *demoConn
	server *server
}

func (w *connWaiter) Resume(events netpoll.Events) {
	if events&netpoll.Err != 0 {
		w.server.drop(w.c)
		return
	}
	_ = w.server.pool.Submit(func() {
		w.server.handleReadable(w.c)
	})
}

// server owns the poller, the listener, and the rearm channel workers
// use to ask the scheduler goroutine to re-register a connection.
type server struct {
	poller *netpoll.Poller
	ln     net.Listener
	pool   *ants.Pool
	log    *zap.Logger
	rearm  chan *demoConn
	drops  chan *demoConn
}

// newServer opens the listener and the poller only. It deliberately
// does not start the worker pool or any goroutine: callers that want to
// exercise Fork must do so before anything else in the process is
// running concurrently (see Poller.Fork's doc comment), and
// startWorkers below is the point after which that is no longer true.
func newServer(addr string, log *zap.Logger) (*server, error) {
	ln, err := reuseport.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}
	if err := netpoll.Init(netpoll.WithLogger(log)); err != nil {
		return nil, err
	}
	return &server{
		poller: netpoll.Default(),
		ln:     ln,
		log:    log,
		rearm:  make(chan *demoConn, 256),
		drops:  make(chan *demoConn, 256),
	}, nil
}

// startWorkers creates the worker pool and launches the scheduler and
// accept loops. Must only be called once, and only after any Fork call
// has already returned in this process.
func (s *server) startWorkers() error {
	pool, err := ants.NewPool(256)
	if err != nil {
		return err
	}
	s.pool = pool
	go s.schedulerLoop()
	s.acceptLoop()
	return nil
}

// fdOf extracts the raw file descriptor backing a *net.TCPConn, so it
// can be handed to the poller directly. Using the conn's own blocking
// Read/Write elsewhere (via the frame codec) and the raw fd here for
// readiness registration means both Go's runtime netpoller and ours
// are watching the same fd; harmless for a demo, but not how a real
// coroutine runtime would be wired (it would dup and detach the fd).
func fdOf(conn *net.TCPConn) (int, error) {
	raw, err := conn.SyscallConn()
	if err != nil {
		return 0, err
	}
	var fd int
	if err := raw.Control(func(p uintptr) { fd = int(p) }); err != nil {
		return 0, err
	}
	return fd, nil
}

// acceptLoop accepts new connections and hands each to the scheduler
// goroutine (via rearm) for Read registration. Only the scheduler
// goroutine ever calls Add/Remove/Wait on the poller.
func (s *server) acceptLoop() {
	for {
		conn, err := s.ln.Accept()
		if err != nil {
			return
		}
		tc, ok := conn.(*net.TCPConn)
		if !ok {
			s.log.Warn("pollerdemo: accepted non-TCP connection")
			_ = conn.Close()
			continue
		}
		fd, err := fdOf(tc)
		if err != nil {
			s.log.Warn("pollerdemo: could not obtain raw fd", zap.Error(err))
			_ = conn.Close()
			continue
		}
		fc := frameCodec(encoderConfig(), decoderConfig(), conn)
		dc := &demoConn{fd: fd, conn: conn, frame: fc}
		s.rearm <- dc
	}
}

// schedulerLoop is the only goroutine that ever calls Add/Remove/Wait.
func (s *server) schedulerLoop() {
	for {
		select {
		case dc := <-s.rearm:
			s.poller.Add(dc.fd, netpoll.Read, &connWaiter{c: dc, server: s})
		case dc := <-s.drops:
			s.poller.Remove(dc.fd, netpoll.Read|netpoll.Write)
			_ = s.poller.Clean(dc.fd)
			_ = dc.conn.Close()
		default:
		}
		// A short bounded timeout lets the rearm/drops channels drain
		// promptly without needing a wake primitive (gnet's eventfd
		// Trigger) for this demo's modest connection counts.
		if _, err := s.poller.Wait(50); err != nil {
			s.log.Error("pollerdemo: poller wait failed", zap.Error(err))
			return
		}
	}
}

// handleReadable runs on an ants worker: read one frame, echo it back,
// then ask the scheduler to re-arm the connection for the next one.
func (s *server) handleReadable(dc *demoConn) {
	data, err := dc.frame.ReadFrame()
	if err != nil {
		s.drop(dc)
		return
	}
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)
	_, _ = buf.Write(data)

	if err := dc.frame.WriteFrame(buf.B); err != nil {
		s.drop(dc)
		return
	}
	s.rearm <- dc
}

func (s *server) drop(dc *demoConn) {
	select {
	case s.drops <- dc:
	case <-time.After(time.Second):
	}
}

func main() {
	addr := flag.String("addr", ":9000", "listen address")
	fork := flag.Bool("fork", false, "call Poller.Fork once at startup, before serving begins, to exercise the Fork Adapter")
	flag.Parse()

	log, _ := zap.NewProduction()
	defer log.Sync()

	srv, err := newServer(*addr, log)
	if err != nil {
		log.Fatal("pollerdemo: startup failed", zap.Error(err))
	}

	if *fork {
		// Nothing else in this process is running yet — no worker
		// pool, no scheduler goroutine, no accept loop — so this is
		// the only point at which Fork's single-caller requirement
		// (see fork.go) actually holds. Both the parent and the
		// child fall through to startWorkers and go on serving the
		// same SO_REUSEPORT listener (spec.md §8 scenario 5).
		pid, err := srv.poller.Fork()
		if err != nil {
			log.Fatal("pollerdemo: fork failed", zap.Error(err))
		}
		if pid == 0 {
			log.Info("pollerdemo: running as forked child, pollset rebuilt")
		} else {
			log.Info("pollerdemo: forked child", zap.Int("child_pid", pid))
		}
	}

	if err := srv.startWorkers(); err != nil {
		log.Fatal("pollerdemo: startup failed", zap.Error(err))
	}
}
