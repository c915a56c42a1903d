package preflight

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/miekg/dns"
	"github.com/vishvananda/netlink"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/dialer"
	"github.com/die-net/egressbind/internal/log"
)

const (
	DefaultProbeName   = "example.com."
	DefaultProbeServer = "1.1.1.1:53"

	defaultTimeout = 5 * time.Second
)

var (
	ErrLinkNotFound = errors.New("interface not found")
	ErrProbeFailed  = errors.New("dns probe failed")
)

// Links is the subset of netlink used to inspect the bound interface.
type Links interface {
	LinkByName(name string) (netlink.Link, error)
	AddrList(link netlink.Link, family int) ([]netlink.Addr, error)
}

type Checker struct {
	// Dialer carries the DNS probe. It should be the binding dialer built
	// from the same configuration.
	Dialer dialer.Dialer

	// Links defaults to the host's netlink.
	Links Links

	// ProbeName and ProbeServer default to DefaultProbeName and
	// DefaultProbeServer.
	ProbeName   string
	ProbeServer string

	Timeout time.Duration
	Log     *log.Logger
}

func (c *Checker) logger() *log.Logger {
	if c.Log == nil {
		return log.Default()
	}
	return c.Log
}

// Run checks snap and returns every failure joined. Warnings are logged
// and do not fail the run.
func (c *Checker) Run(ctx context.Context, snap config.Snapshot) error {
	l := c.logger()

	if err := snap.Validate(); err != nil {
		return err
	}
	l.Infof("configuration: %s", describe(snap))

	var errs []error
	if snap.BindInterface != "" {
		if err := c.checkInterface(snap); err != nil {
			errs = append(errs, err)
		}
	}

	if snap.DNSOverrideIP != "" {
		if err := c.probe(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// probe sends an A query to the probe server through the dialer. The
// server is on port 53, so the dialer rewrites it to the override.
func (c *Checker) probe(ctx context.Context) error {
	l := c.logger()

	name := c.ProbeName
	if name == "" {
		name = DefaultProbeName
	}
	server := c.ProbeServer
	if server == "" {
		server = DefaultProbeServer
	}
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	conn, err := c.Dialer.DialContext(ctx, "udp", server)
	if err != nil {
		return fmt.Errorf("%w: dial %s: %w", ErrProbeFailed, server, err)
	}
	co := &dns.Conn{Conn: conn}
	defer co.Close()

	req := new(dns.Msg)
	req.SetQuestion(dns.Fqdn(name), dns.TypeA)

	client := &dns.Client{Net: "udp", Timeout: timeout}
	resp, rtt, err := client.ExchangeWithConnContext(ctx, req, co)
	if err != nil {
		return fmt.Errorf("%w: query %s: %w", ErrProbeFailed, req.Question[0].Name, err)
	}

	l.Infof("dns probe %s via %s (overridden by %s): %s, %d answers in %s",
		req.Question[0].Name, server, conn.RemoteAddr(), dns.RcodeToString[resp.Rcode], len(resp.Answer), rtt)
	if resp.Rcode == dns.RcodeServerFailure || resp.Rcode == dns.RcodeRefused {
		return fmt.Errorf("%w: %s answered %s", ErrProbeFailed, conn.RemoteAddr(), dns.RcodeToString[resp.Rcode])
	}
	return nil
}

func describe(s config.Snapshot) string {
	out := ""
	for _, kv := range []struct{ k, v string }{
		{config.EnvDNSOverrideIP, s.DNSOverrideIP},
		{config.EnvDNSOverridePort, s.DNSOverridePort},
		{config.EnvBindInterface, s.BindInterface},
		{config.EnvBindSourceIPv4, s.BindSourceIPv4},
		{config.EnvBindSourceIPv6, s.BindSourceIPv6},
		{config.EnvBindExclude, s.BindExclude},
	} {
		if kv.v == "" {
			continue
		}
		if out != "" {
			out += " "
		}
		out += fmt.Sprintf("%s=%q", kv.k, kv.v)
	}
	if out == "" {
		return "empty"
	}
	return out
}
