package dnsutil

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/url"
	"os/exec"
	"runtime"
	"strings"
	"time"

	"github.com/miekg/dns"
)

// DefaultResolvConf is where the upstream resolver is read from when none is configured.
const DefaultResolvConf = "/etc/resolv.conf"

// DefaultFlushCommand returns the platform command that drops the local resolver cache.
func DefaultFlushCommand() []string {
	if runtime.GOOS == "windows" {
		return []string{"ipconfig", "/flushdns"}
	}
	return []string{"resolvectl", "flush-caches"}
}

// Flusher drops the host's DNS cache and then re-resolves a name straight against
// the upstream resolver, so the next connection attempt does not reuse a stale answer.
type Flusher struct {
	// Command is run to flush the OS cache. Empty skips the flush.
	Command []string
	// Resolver is the host:port queried after the flush. Empty reads ResolvConf.
	Resolver   string
	ResolvConf string

	Client *dns.Client
	log    *slog.Logger
	exec   func(ctx context.Context, name string, args ...string) error
}

// NewFlusher creates a flusher using command and resolver; either may be empty.
func NewFlusher(command []string, resolver string, log *slog.Logger) *Flusher {
	return &Flusher{
		Command:    command,
		Resolver:   resolver,
		ResolvConf: DefaultResolvConf,
		Client:     &dns.Client{Timeout: 5 * time.Second},
		log:        log,
		exec:       runCommand,
	}
}

func runCommand(ctx context.Context, name string, args ...string) error {
	out, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s: %w: %s", name, err, strings.TrimSpace(string(out)))
	}
	return nil
}

// Flush runs the flush command and re-resolves host. Both steps are attempted;
// their errors are joined.
func (f *Flusher) Flush(ctx context.Context, host string) error {
	var errs []error

	if len(f.Command) > 0 {
		if err := f.exec(ctx, f.Command[0], f.Command[1:]...); err != nil {
			errs = append(errs, fmt.Errorf("could not flush dns cache: %w", err))
		}
	}

	if host != "" && net.ParseIP(host) == nil {
		addrs, err := f.Resolve(ctx, host)
		if err != nil {
			errs = append(errs, err)
		} else {
			f.log.Debug("Re-resolved host after dns flush",
				slog.String("host", host),
				slog.Any("addrs", addrs))
		}
	}

	return errors.Join(errs...)
}

// BeforeRetry flushes DNS for the host of sourceURI. It matches the downloader's
// pre-retry hook and only logs failures.
func (f *Flusher) BeforeRetry(ctx context.Context, sourceURI string, attempt int, _ error) {
	host := ""
	if u, err := url.Parse(sourceURI); err == nil {
		host = u.Hostname()
	}

	if err := f.Flush(ctx, host); err != nil {
		f.log.Warn("DNS flush before retry failed",
			slog.String("host", host),
			slog.Int("attempt", attempt),
			"err", err)
	}
}

// Resolve queries the upstream resolver for A records of host, bypassing the local cache.
func (f *Flusher) Resolve(ctx context.Context, host string) ([]string, error) {
	server, err := f.resolverAddr()
	if err != nil {
		return nil, err
	}

	m := new(dns.Msg)
	m.Id = dns.Id()
	m.RecursionDesired = true
	m.SetQuestion(dns.Fqdn(host), dns.TypeA)

	client := f.Client
	if client == nil {
		client = new(dns.Client)
	}

	in, _, err := client.ExchangeContext(ctx, m, server)
	if err != nil {
		return nil, fmt.Errorf("could not resolve %s via %s: %w", host, server, err)
	}
	if in.Rcode != dns.RcodeSuccess {
		return nil, fmt.Errorf("could not resolve %s via %s: %s", host, server, dns.RcodeToString[in.Rcode])
	}

	addrs := make([]string, 0, len(in.Answer))
	for _, answer := range in.Answer {
		if a, ok := answer.(*dns.A); ok {
			addrs = append(addrs, a.A.String())
		}
	}

	return addrs, nil
}

func (f *Flusher) resolverAddr() (string, error) {
	if f.Resolver != "" {
		return f.Resolver, nil
	}

	resolvConf := f.ResolvConf
	if resolvConf == "" {
		resolvConf = DefaultResolvConf
	}
	cfg, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return "", fmt.Errorf("could not read resolver config: %w", err)
	}
	if len(cfg.Servers) == 0 {
		return "", errors.New("no dns servers configured")
	}
	return net.JoinHostPort(cfg.Servers[0], cfg.Port), nil
}
