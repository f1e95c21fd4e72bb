package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"slices"
	"strings"
	"syscall"

	"github.com/ruteri/script-provisioning-agent/cmd/flags"
	"github.com/ruteri/script-provisioning-agent/cryptoutils"
	"github.com/ruteri/script-provisioning-agent/httpserver"
	"github.com/ruteri/script-provisioning-agent/instanceutils/configresolver"
	"github.com/ruteri/script-provisioning-agent/instanceutils/dnsutil"
	"github.com/ruteri/script-provisioning-agent/instanceutils/downloader"
	"github.com/ruteri/script-provisioning-agent/instanceutils/guide"
	"github.com/ruteri/script-provisioning-agent/instanceutils/provisioner"
	"github.com/ruteri/script-provisioning-agent/instanceutils/scriptrunner"
	"github.com/ruteri/script-provisioning-agent/storage"
	"github.com/urfave/cli/v2"
)

// TranscriptFileName is the agent's own log inside the work dir; it is uploaded with the other logs.
const TranscriptFileName = "transcript.log"

var settingsFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "settings-file",
		Usage:   "path to the handler settings file with public and protected settings",
		EnvVars: []string{"SETTINGS_FILE"},
	},
	&cli.StringFlag{
		Name:    "cert-dir",
		Value:   "/var/lib/script-agent/certs",
		Usage:   "directory holding <thumbprint>.crt/.prv or <thumbprint>.pfx for protected settings decryption",
		EnvVars: []string{"CERT_DIR"},
	},
}

var filesFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "work-dir",
		Value:   "/var/lib/script-agent/work",
		Usage:   "directory the script and its dependencies are downloaded to and run in",
		EnvVars: []string{"WORK_DIR"},
	},
	&cli.StringFlag{
		Name:    "lock-dir",
		Value:   "/var/lib/script-agent/lock",
		Usage:   "directory holding the lock markers of scripts that already ran",
		EnvVars: []string{"LOCK_DIR"},
	},
	&cli.StringFlag{
		Name:    "sentinel-config-file",
		Value:   "/var/lib/script-agent/sentinel/config.json",
		Usage:   "path the sentinel config is written to when a sentinel file name is set",
		EnvVars: []string{"SENTINEL_CONFIG_FILE"},
	},
}

var downloadFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "blob-endpoint-suffix",
		Value:   storage.DefaultEndpointSuffix,
		Usage:   "blob service domain, the account name is prepended",
		EnvVars: []string{"BLOB_ENDPOINT_SUFFIX"},
	},
	&cli.IntFlag{
		Name:    "download-attempts",
		Value:   downloader.DefaultAttempts,
		Usage:   "attempts per downloaded file",
		EnvVars: []string{"DOWNLOAD_ATTEMPTS"},
	},
	&cli.DurationFlag{
		Name:    "download-retry-delay",
		Value:   downloader.DefaultRetryDelay,
		Usage:   "delay between download attempts",
		EnvVars: []string{"DOWNLOAD_RETRY_DELAY"},
	},
	&cli.StringFlag{
		Name:    "dns-flush-command",
		Usage:   "command flushing the dns cache between download attempts. Defaults to the platform command, 'none' disables",
		EnvVars: []string{"DNS_FLUSH_COMMAND"},
	},
	&cli.StringFlag{
		Name:    "dns-resolver",
		Usage:   "resolver (host:port) queried after a flush. Defaults to the first nameserver in /etc/resolv.conf",
		EnvVars: []string{"DNS_RESOLVER"},
	},
}

var guideFlags []cli.Flag = []cli.Flag{
	&cli.StringFlag{
		Name:    "guide-installer",
		Usage:   "command installing the guide application; the guide config path is appended as last argument",
		EnvVars: []string{"GUIDE_INSTALLER"},
	},
	&cli.StringFlag{
		Name:    "guide-config-file",
		Value:   "/var/lib/script-agent/guide/config.json",
		Usage:   "path the guide config is written to",
		EnvVars: []string{"GUIDE_CONFIG_FILE"},
	},
}

var logUploadFlags []cli.Flag = []cli.Flag{
	&cli.StringSliceFlag{
		Name:    "log-pattern",
		Value:   cli.NewStringSlice(provisioner.DefaultLogPatterns...),
		Usage:   "file name patterns of work dir files uploaded as logs",
		EnvVars: []string{"LOG_PATTERN"},
	},
	&cli.StringSliceFlag{
		Name:    "log-mirror",
		Usage:   "additional log destination, file:///path, s3://[key:secret@]bucket/prefix?region=... or ipfs://host:port",
		EnvVars: []string{"LOG_MIRROR"},
	},
	&cli.StringFlag{
		Name:    "status-listen-addr",
		Usage:   "if set, serve /livez, /readyz and /status on this address",
		EnvVars: []string{"STATUS_LISTEN_ADDR"},
	},
}

const usage string = `Script provisioning agent
Runs the provisioning script named in the handler settings at most once per machine:
* Protected settings are decrypted with the installed certificate
* The script and its dependencies are downloaded with retries
* The script is executed once; a lock marker prevents re-runs
* Logs are uploaded to the blob store whatever the outcome`

func main() {
	app := &cli.App{
		Name:  "autoprovision",
		Usage: usage,
		Flags: slices.Concat(settingsFlags, filesFlags, downloadFlags, guideFlags, logUploadFlags,
			flags.CommonFlags, []cli.Flag{flags.LogServiceFlagFn("script-provisioning-agent")}),
		Action:   runAgent,
		Commands: []*cli.Command{blobctlCommand},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func runAgent(cCtx *cli.Context) error {
	if cCtx.String("settings-file") == "" {
		return errors.New("--settings-file is required")
	}

	workDir := cCtx.String("work-dir")
	if err := os.MkdirAll(workDir, 0o755); err != nil {
		return fmt.Errorf("failed to create work directory: %w", err)
	}

	transcript, err := os.OpenFile(filepath.Join(workDir, TranscriptFileName), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open transcript: %w", err)
	}
	defer transcript.Close()

	logger := flags.SetupLogger(cCtx, io.MultiWriter(os.Stdout, transcript))

	p := NewAgent(cCtx, logger)

	if addr := cCtx.String("status-listen-addr"); addr != "" {
		statusServer := httpserver.New(flags.ConfigureServer(cCtx, logger, addr), p)
		if err := statusServer.Start(); err != nil {
			return fmt.Errorf("could not start status server: %w", err)
		}
		defer statusServer.Shutdown()
	}

	ctx, stop := signal.NotifyContext(cCtx.Context, os.Interrupt, syscall.SIGTERM)
	defer stop()

	return p.Run(ctx)
}

// NewAgent wires the provisioner from the command line.
func NewAgent(cCtx *cli.Context, logger *slog.Logger) *provisioner.Provisioner {
	p := provisioner.NewProvisioner(provisioner.Config{
		WorkDir:            cCtx.String("work-dir"),
		LockDir:            cCtx.String("lock-dir"),
		SentinelConfigFile: cCtx.String("sentinel-config-file"),
		LogPatterns:        cCtx.StringSlice("log-pattern"),
	}, logger)

	decryptor := &cryptoutils.CertStoreDecryptor{Store: &cryptoutils.CertStore{Dir: cCtx.String("cert-dir")}}
	p.Loader = configresolver.NewLoader(cCtx.String("settings-file"), decryptor, logger)

	var beforeRetry func(ctx context.Context, sourceURI string, attempt int, err error)
	if flushCommand := dnsFlushCommand(cCtx.String("dns-flush-command")); flushCommand != nil || cCtx.String("dns-resolver") != "" {
		beforeRetry = dnsutil.NewFlusher(flushCommand, cCtx.String("dns-resolver"), logger).BeforeRetry
	}
	policy := downloader.DefaultRetryPolicy(beforeRetry)
	policy.Attempts = cCtx.Int("download-attempts")
	policy.Delay = cCtx.Duration("download-retry-delay")
	p.Downloader = downloader.NewDownloader(policy, downloader.NewHTTPFetcher(nil), logger)

	p.Runner = scriptrunner.NewRunner(logger)
	p.Uploader = storage.NewBlobClient(cCtx.String("blob-endpoint-suffix"), logger)

	if installer := strings.Fields(cCtx.String("guide-installer")); len(installer) > 0 {
		p.Guide = guide.NewCommandInstaller(installer, cCtx.String("guide-config-file"), logger)
	}

	if mirrors := cCtx.StringSlice("log-mirror"); len(mirrors) > 0 {
		if multi := storage.NewSinkFactory(logger).CreateMultiSink(mirrors); multi.Len() > 0 {
			p.Mirror = multi
		}
	}

	return p
}

func dnsFlushCommand(flag string) []string {
	switch strings.TrimSpace(flag) {
	case "":
		return dnsutil.DefaultFlushCommand()
	case "none":
		return nil
	default:
		return strings.Fields(flag)
	}
}
