package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net"
	"time"

	shell "github.com/ipfs/go-ipfs-api"
)

// IPFSSink mirrors log artifacts into an IPFS node through its HTTP API.
// Artifacts are added and pinned; the returned CID is logged per blob path.
type IPFSSink struct {
	shell       *shell.Shell
	host        string
	port        string
	log         *slog.Logger
	locationURI string
}

// NewIPFSSink creates a sink talking to the IPFS API at host:port.
func NewIPFSSink(host, port string, timeout time.Duration, log *slog.Logger) *IPFSSink {
	apiURL := net.JoinHostPort(host, port)

	sh := shell.NewShell(apiURL)
	if timeout > 0 {
		sh.SetTimeout(timeout)
	}

	return &IPFSSink{
		shell:       sh,
		host:        host,
		port:        port,
		log:         log,
		locationURI: fmt.Sprintf("ipfs://%s/?timeout=%s", apiURL, timeout),
	}
}

// Put adds data to IPFS and pins it. The shell does not take a context for adds,
// so a started add is bounded by the sink timeout; ctx is checked before it starts.
func (b *IPFSSink) Put(ctx context.Context, blobPath string, data []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	start := time.Now()

	cid, err := b.shell.Add(bytes.NewReader(data), shell.Pin(true))
	if err != nil {
		return fmt.Errorf("failed to add data to IPFS: %w", err)
	}

	b.log.Info("Mirrored log artifact to IPFS",
		slog.String("blob", TrimBlobPath(blobPath)),
		slog.String("ipfsCID", cid),
		slog.Int("size", len(data)),
		slog.Duration("duration", time.Since(start)))

	return nil
}

// Name returns a unique identifier for this sink.
func (b *IPFSSink) Name() string {
	return fmt.Sprintf("ipfs-%s-%s", b.host, b.port)
}

// LocationURI returns the URI that identifies this sink.
func (b *IPFSSink) LocationURI() string {
	return b.locationURI
}
