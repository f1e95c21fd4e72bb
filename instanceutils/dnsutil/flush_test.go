package dnsutil

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"testing"

	"github.com/miekg/dns"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func startTestResolver(t *testing.T, records map[string]string) string {
	t.Helper()

	pc, err := net.ListenPacket("udp", "127.0.0.1:0")
	require.NoError(t, err)

	mux := dns.NewServeMux()
	mux.HandleFunc(".", func(w dns.ResponseWriter, r *dns.Msg) {
		m := new(dns.Msg)
		m.SetReply(r)
		ip, ok := records[r.Question[0].Name]
		if !ok {
			m.Rcode = dns.RcodeNameError
		} else {
			m.Answer = append(m.Answer, &dns.A{
				Hdr: dns.RR_Header{Name: r.Question[0].Name, Rrtype: dns.TypeA, Class: dns.ClassINET, Ttl: 60},
				A:   net.ParseIP(ip),
			})
		}
		_ = w.WriteMsg(m)
	})

	started := make(chan struct{})
	server := &dns.Server{PacketConn: pc, Handler: mux, NotifyStartedFunc: func() { close(started) }}
	go func() { _ = server.ActivateAndServe() }()
	<-started
	t.Cleanup(func() { _ = server.Shutdown() })

	return pc.LocalAddr().String()
}

func testFlusher(resolver string) (*Flusher, *[][]string) {
	var calls [][]string
	f := NewFlusher([]string{"flush", "--all"}, resolver, slog.New(slog.NewTextHandler(io.Discard, nil)))
	f.exec = func(_ context.Context, name string, args ...string) error {
		calls = append(calls, append([]string{name}, args...))
		return nil
	}
	return f, &calls
}

func TestResolve(t *testing.T) {
	addr := startTestResolver(t, map[string]string{"storage.example.net.": "10.1.2.3"})
	f, _ := testFlusher(addr)

	addrs, err := f.Resolve(context.Background(), "storage.example.net")
	require.NoError(t, err)
	assert.Equal(t, []string{"10.1.2.3"}, addrs)

	_, err = f.Resolve(context.Background(), "missing.example.net")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NXDOMAIN")
}

func TestFlush(t *testing.T) {
	addr := startTestResolver(t, map[string]string{"storage.example.net.": "10.1.2.3"})

	t.Run("runs command and resolves", func(t *testing.T) {
		f, calls := testFlusher(addr)
		require.NoError(t, f.Flush(context.Background(), "storage.example.net"))
		assert.Equal(t, [][]string{{"flush", "--all"}}, *calls)
	})

	t.Run("ip literal is not resolved", func(t *testing.T) {
		f, calls := testFlusher("127.0.0.1:1")
		require.NoError(t, f.Flush(context.Background(), "192.168.0.1"))
		assert.Len(t, *calls, 1)
	})

	t.Run("command failure is returned", func(t *testing.T) {
		f, _ := testFlusher(addr)
		f.exec = func(context.Context, string, ...string) error { return errors.New("not found") }
		err := f.Flush(context.Background(), "")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not found")
	})

	t.Run("empty command skips flush", func(t *testing.T) {
		f, calls := testFlusher(addr)
		f.Command = nil
		require.NoError(t, f.Flush(context.Background(), "storage.example.net"))
		assert.Empty(t, *calls)
	})
}

func TestBeforeRetryUsesURIHost(t *testing.T) {
	addr := startTestResolver(t, map[string]string{})
	f, calls := testFlusher(addr)

	// resolution fails with NXDOMAIN; BeforeRetry only logs
	f.BeforeRetry(context.Background(), "https://nowhere.example.net/c/s.sh?sv=1", 3, errors.New("timeout"))
	assert.Len(t, *calls, 1)
}

func TestResolverFromResolvConf(t *testing.T) {
	dir := t.TempDir()
	conf := filepath.Join(dir, "resolv.conf")
	require.NoError(t, os.WriteFile(conf, []byte("nameserver 10.0.0.53\n"), 0o644))

	f, _ := testFlusher("")
	f.ResolvConf = conf
	server, err := f.resolverAddr()
	require.NoError(t, err)
	assert.Equal(t, "10.0.0.53:53", server)

	f.ResolvConf = filepath.Join(dir, "missing")
	_, err = f.resolverAddr()
	assert.Error(t, err)
}
