package netpoll

import "go.uber.org/zap"

// Option configures a Poller at Init time, in the teacher's
// functional-options idiom (gnet's Serve(handler, options...)).
type Option func(*Poller)

// WithLogger attaches a structured logger for fatal invariant violations
// and kernel-desync diagnostics. The default is a no-op logger, so a
// library consumer never gets unsolicited output.
func WithLogger(l *zap.Logger) Option {
	return func(p *Poller) {
		if l != nil {
			p.log = l
		}
	}
}

// WithMaxFD overrides the indexed Wait Table's initial size instead of
// querying RLIMIT_NOFILE. Mainly useful for tests, which would otherwise
// allocate one slot per real descriptor limit.
func WithMaxFD(n int) Option {
	return func(p *Poller) {
		p.maxFDHint = n
	}
}
