package main

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	_ "net/http/pprof" //nolint:gosec // Intentionally exposed on debug port.
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/pflag"
	"golang.org/x/sync/errgroup"

	"github.com/die-net/egressbind/internal/config"
	"github.com/die-net/egressbind/internal/dialer"
	"github.com/die-net/egressbind/internal/log"
	"github.com/die-net/egressbind/internal/preflight"
	"github.com/die-net/egressbind/internal/proxy"
	"github.com/die-net/egressbind/internal/socks5"
	"github.com/die-net/egressbind/internal/sockopt"
	"github.com/die-net/egressbind/internal/tproxy"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run() error {
	var (
		httpListen   = pflag.String("http-listen", "", "HTTP proxy listen address (e.g. 127.0.0.1:8080). Empty disables.")
		socksListen  = pflag.String("socks5-listen", "", "SOCKS5 proxy listen address (e.g. 127.0.0.1:1080). Empty disables.")
		tproxyListen = pflag.String("tproxy-listen", "", "Transparent proxy listen address (e.g. 127.0.0.1:1234). Empty disables.")

		dnsOverrideIP   = pflag.String("dns-override-ip", "", "Address port-53 connections are redirected to, if "+config.EnvDNSOverrideIP+" is unset")
		dnsOverridePort = pflag.String("dns-override-port", "", "Port port-53 connections are redirected to, if "+config.EnvDNSOverridePort+" is unset (default: unchanged)")
		bindInterface   = pflag.String("bind-interface", "", "Interface outbound connections are bound to, if "+config.EnvBindInterface+" is unset")
		bindSourceIPv4  = pflag.String("bind-source-ipv4", "", "Source address for IPv4 connections, if "+config.EnvBindSourceIPv4+" is unset")
		bindSourceIPv6  = pflag.String("bind-source-ipv6", "", "Source address for IPv6 connections, if "+config.EnvBindSourceIPv6+" is unset")
		bindExclude     = pflag.String("bind-exclude", "", "Comma-separated destination prefixes that skip binding, if "+config.EnvBindExclude+" is unset")

		socksUsername = pflag.String("socks5-username", "", "Require this SOCKS5 username. Empty allows unauthenticated clients.")
		socksPassword = pflag.String("socks5-password", "", "SOCKS5 password for --socks5-username")

		debugListen        = pflag.String("debug-listen", "", "Debug HTTP listen address exposing /debug/pprof (e.g. 127.0.0.1:6060). Empty disables.")
		dialTimeout        = pflag.Duration("dial-timeout", 10*time.Second, "Timeout for outbound DNS lookup and TCP connect")
		httpIdleTimeout    = pflag.Duration("http-idle-timeout", 4*time.Minute, "Timeout for idle HTTP proxy connections")
		httpMaxIdleConns   = pflag.Int("http-max-idle-conns", 100, "Maximum number of idle HTTP proxy connections")
		negotiationTimeout = pflag.Duration("negotiation-timeout", 10*time.Second, "Timeout for protocol negotiation to set up connection")
		tcpKeepAlive       = pflag.String("tcp-keepalive", "45:45:3", "TCP keepalive: on|off|keepidle:keepintvl:keepcnt")

		check     = pflag.Bool("check", false, "Check the configuration, the bound interface and the DNS override, then exit")
		probeName = pflag.String("probe-name", preflight.DefaultProbeName, "Name queried by --check through the DNS override")
		verbose   = pflag.Bool("verbose", false, "Enable debug output and per-connection error logging")
	)

	if !tproxy.IsSupported {
		_ = pflag.CommandLine.MarkHidden("tproxy-listen")
	}

	pflag.CommandLine.SortFlags = false
	pflag.Parse()

	log.SetVerbose(*verbose)

	fallback := config.Snapshot{
		DNSOverrideIP:   *dnsOverrideIP,
		DNSOverridePort: *dnsOverridePort,
		BindInterface:   *bindInterface,
		BindSourceIPv4:  *bindSourceIPv4,
		BindSourceIPv6:  *bindSourceIPv6,
		BindExclude:     *bindExclude,
	}
	if err := fallback.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	source := config.WithFallback(fallback)

	snap := source()
	if err := snap.Validate(); err != nil {
		return err
	}
	if !sockopt.IsSupported && (snap.BindInterface != "" || snap.BindSourceIPv4 != "" || snap.BindSourceIPv6 != "") {
		log.Warnf("interface and source binding are not supported on this platform, bound connections will fail")
	}

	ka, err := parseTCPKeepAlive(*tcpKeepAlive)
	if err != nil {
		return fmt.Errorf("invalid --tcp-keepalive: %w", err)
	}

	d := dialer.New(dialer.Config{
		DialTimeout: *dialTimeout,
		KeepAlive:   ka,
		Source:      source,
	})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *check {
		c := &preflight.Checker{Dialer: d, ProbeName: *probeName, Timeout: *dialTimeout}
		if err := c.Run(ctx, snap); err != nil {
			return fmt.Errorf("check failed: %w", err)
		}
		log.Infof("check passed")
		return nil
	}

	if *httpListen == "" && *socksListen == "" && *tproxyListen == "" {
		return errors.New("no listeners enabled (set at least one of --http-listen, --socks5-listen, --tproxy-listen)")
	}

	cfg := proxy.Config{
		NegotiationTimeout: *negotiationTimeout,
		HTTPIdleTimeout:    *httpIdleTimeout,
		HTTPMaxIdleConns:   *httpMaxIdleConns,
		KeepAlive:          ka,
		SOCKS5Auth:         socks5.Auth{Username: *socksUsername, Password: *socksPassword},
		Dialer:             d,
	}

	g, ctx := errgroup.WithContext(ctx)

	if *debugListen != "" {
		debugSrv := &http.Server{Handler: http.DefaultServeMux} //nolint:gosec // Not concerned about timeouts on debug port.
		lc := net.ListenConfig{KeepAliveConfig: cfg.KeepAlive}
		debugLn, err := lc.Listen(ctx, "tcp", *debugListen)
		if err != nil {
			return fmt.Errorf("debug listen: %w", err)
		}
		context.AfterFunc(ctx, func() {
			_ = debugSrv.Close()
			_ = debugLn.Close()
		})

		g.Go(func() error {
			if err := debugSrv.Serve(debugLn); err != nil {
				return fmt.Errorf("debug serve: %w", err)
			}
			return nil
		})
		log.Infof("debug listening on %s", *debugListen)
	}

	if *httpListen != "" {
		ln, err := proxy.ListenTCP(ctx, "tcp", *httpListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("http listen: %w", err)
		}
		srv := proxy.NewHTTPProxyServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = srv.Close()
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := srv.Serve(ln); err != nil {
				return fmt.Errorf("http proxy serve: %w", err)
			}
			return nil
		})
		log.Infof("http proxy listening on %s", *httpListen)
	}

	if *socksListen != "" {
		ln, err := proxy.ListenTCP(ctx, "tcp", *socksListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("socks5 listen: %w", err)
		}
		s5 := proxy.NewSOCKS5Server(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := s5.Serve(ln); err != nil {
				return fmt.Errorf("socks5 serve: %w", err)
			}
			return nil
		})

		log.Infof("socks5 proxy listening on %s", *socksListen)
	}

	if *tproxyListen != "" {
		ln, err := tproxy.ListenTransparentTCP(ctx, *tproxyListen, cfg.KeepAlive)
		if err != nil {
			return fmt.Errorf("tproxy listen: %w", err)
		}
		tsrv := tproxy.NewServer(ctx, cfg)
		context.AfterFunc(ctx, func() {
			_ = ln.Close()
		})

		g.Go(func() error {
			if err := tsrv.Serve(ln); err != nil {
				return fmt.Errorf("tproxy serve: %w", err)
			}
			return nil
		})
		log.Infof("tproxy listening on %s", *tproxyListen)
	}

	err = g.Wait()
	if errors.Is(err, http.ErrServerClosed) {
		err = nil
	}

	log.Infof("shutting down")
	return err
}

func parseTCPKeepAlive(s string) (net.KeepAliveConfig, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if s == "" {
		return net.KeepAliveConfig{}, errors.New("empty")
	}
	if s == "on" {
		return net.KeepAliveConfig{Enable: true}, nil
	}
	if s == "off" {
		return net.KeepAliveConfig{Enable: false}, nil
	}

	parts := strings.Split(s, ":")
	if len(parts) != 3 {
		return net.KeepAliveConfig{}, errors.New("expected on|off|keepidle:keepintvl:keepcnt")
	}
	keepIdle, err := parsePositiveSeconds(parts[0])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepidle: %w", err)
	}
	keepIntvl, err := parsePositiveSeconds(parts[1])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepintvl: %w", err)
	}
	keepCnt, err := parsePositiveInt(parts[2])
	if err != nil {
		return net.KeepAliveConfig{}, fmt.Errorf("keepcnt: %w", err)
	}

	return net.KeepAliveConfig{
		Enable:   true,
		Idle:     keepIdle,
		Interval: keepIntvl,
		Count:    keepCnt,
	}, nil
}

func parsePositiveSeconds(s string) (time.Duration, error) {
	n, err := parsePositiveInt(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(n) * time.Second, nil
}

func parsePositiveInt(s string) (int, error) {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, err
	}
	if n <= 0 {
		return 0, errors.New("must be > 0")
	}
	return n, nil
}
