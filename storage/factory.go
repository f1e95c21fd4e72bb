package storage

import (
	"fmt"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

// SinkFactory creates log mirror sinks from URI strings.
type SinkFactory struct {
	log *slog.Logger
}

// NewSinkFactory creates a new factory instance.
func NewSinkFactory(logger *slog.Logger) *SinkFactory {
	return &SinkFactory{
		log: logger,
	}
}

// SinkFor creates a sink from a location URI.
//
// Supported schemes:
//   - file:///var/log/provisioning-archive
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-east-1&endpoint=http://minio:9000
//   - ipfs://host:port/?timeout=30s
func (sf *SinkFactory) SinkFor(locationURI string) (interfaces.LogSink, error) {
	u, err := url.Parse(locationURI)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", interfaces.ErrInvalidLocationURI, err)
	}

	switch strings.ToLower(u.Scheme) {
	case "s3":
		return sf.createS3Sink(u)
	case "file":
		return sf.createFileSink(u)
	case "ipfs":
		return sf.createIPFSSink(u)
	default:
		return nil, fmt.Errorf("%w: unsupported sink scheme %q", interfaces.ErrInvalidLocationURI, u.Scheme)
	}
}

// CreateMultiSink creates a sink for every URI. Invalid URIs are logged and skipped.
func (sf *SinkFactory) CreateMultiSink(locationURIs []string) *MultiSink {
	sinks := make([]interfaces.LogSink, 0, len(locationURIs))

	for _, uri := range locationURIs {
		sink, err := sf.SinkFor(uri)
		if err != nil {
			sf.log.Warn("Failed to create log sink",
				"err", err,
				slog.String("locationURI", uri))
			continue
		}
		sinks = append(sinks, sink)
	}

	return NewMultiSink(sinks, sf.log)
}

// createS3Sink parses s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=...&endpoint=...
func (sf *SinkFactory) createS3Sink(u *url.URL) (interfaces.LogSink, error) {
	sf.log.Debug("Creating S3 sink", slog.String("bucket", u.Host))

	bucketName := u.Host
	if bucketName == "" {
		return nil, fmt.Errorf("%w: missing bucket in s3 URI", interfaces.ErrInvalidLocationURI)
	}

	query := u.Query()
	region := query.Get("region")
	if region == "" {
		region = "us-east-1" // Default region
	}

	var accessKey, secretKey string
	if u.User != nil {
		accessKey = u.User.Username()
		secretKey, _ = u.User.Password()
	}

	return NewS3Sink(bucketName, strings.TrimPrefix(u.Path, "/"), region, query.Get("endpoint"), accessKey, secretKey, sf.log)
}

// createIPFSSink parses ipfs://host:port/?timeout=30s
func (sf *SinkFactory) createIPFSSink(u *url.URL) (interfaces.LogSink, error) {
	host := u.Hostname()
	if host == "" {
		return nil, fmt.Errorf("%w: missing host in ipfs URI", interfaces.ErrInvalidLocationURI)
	}

	port := u.Port()
	if port == "" {
		port = "5001" // Default IPFS API port
	}

	var timeout time.Duration
	if t := u.Query().Get("timeout"); t != "" {
		var err error
		timeout, err = time.ParseDuration(t)
		if err != nil {
			return nil, fmt.Errorf("%w: invalid ipfs timeout: %v", interfaces.ErrInvalidLocationURI, err)
		}
	}

	sf.log.Debug("Creating IPFS sink", slog.String("host", host), slog.String("port", port))
	return NewIPFSSink(host, port, timeout, sf.log), nil
}

// createFileSink parses file:///absolute/path or file://./relative/path
func (sf *SinkFactory) createFileSink(u *url.URL) (interfaces.LogSink, error) {
	sf.log.Debug("Creating file sink", slog.String("uri", u.String()))

	path := u.Path
	if u.Host != "" {
		path = u.Host + "/" + strings.TrimPrefix(path, "/")
	}

	if path == "" {
		return nil, fmt.Errorf("%w: empty path in file URI %s", interfaces.ErrInvalidLocationURI, u.String())
	}

	return NewFileSink(path, sf.log)
}
