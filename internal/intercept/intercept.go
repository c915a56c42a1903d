package intercept

import (
	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/log"
)

// ConnectFunc is the real connection primitive. It receives the final,
// possibly rewritten, destination.
type ConnectFunc func(dst Destination) error

// Pipeline runs the interception steps for one connection attempt at a
// time. The zero value logs through the default logger. A Pipeline holds
// no per-call state and is safe for concurrent use.
type Pipeline struct {
	Log *log.Logger
}

func (p *Pipeline) logger() *log.Logger {
	if p == nil || p.Log == nil {
		return log.Default()
	}
	return p.Log
}

// Decision is the outcome of classifying, rewriting and filtering a
// destination.
type Decision struct {
	Original    Destination
	Destination Destination
	Rewritten   bool
	Excluded    bool
	ExcludedBy  string
}

// Decide applies the DNS override and the exclusion filter to dst.
func (p *Pipeline) Decide(dst Destination, cfg config.Snapshot) (Decision, error) {
	return p.DecideFor(dst, dst.Family, cfg)
}

// DecideFor is Decide for an endpoint of family f that has not been
// created yet; see FamilyFor. Original keeps dst as given.
func (p *Pipeline) DecideFor(dst Destination, f Family, cfg config.Snapshot) (Decision, error) {
	l := p.logger()
	d := Decision{Original: dst, Destination: dst}

	rewritten, ok, err := RewriteFor(dst, f, cfg)
	if err != nil {
		return d, &Error{Step: StepRewrite, Err: err}
	}
	if ok {
		l.Infof("DNS query to %s, overriding with %s", dst, rewritten)
		d.Destination = rewritten
		d.Rewritten = true
	}
	l.Debugf("connecting to %s", d.Destination)

	if prefix, ok := Excluded(d.Destination, ExclusionList(cfg.BindExclude)); ok {
		l.Infof("%s excluded by %s entry %q, not binding to interface %q", d.Destination.Text(), config.EnvBindExclude, prefix, cfg.BindInterface)
		d.Excluded = true
		d.ExcludedBy = prefix
	}
	return d, nil
}

// Connect runs the full pipeline against ep and, unless a step fails,
// delegates to next with the final destination and returns its result.
// Pipeline failures are returned as *Error without calling next.
func (p *Pipeline) Connect(ep Endpoint, dst Destination, cfg config.Snapshot, next ConnectFunc) error {
	d, err := p.Decide(dst, cfg)
	if err == nil && !d.Excluded {
		err = p.Bind(ep, d.Destination, cfg)
	}
	if err != nil {
		p.logger().Errorf("connect %s: %v", d.Destination, err)
		return err
	}
	return next(d.Destination)
}
