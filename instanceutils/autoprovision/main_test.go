package main

import (
	"io"
	"log/slog"
	"slices"
	"testing"

	"github.com/ruteri/script-provisioning-agent/cmd/flags"
	"github.com/ruteri/script-provisioning-agent/instanceutils/dnsutil"
	"github.com/ruteri/script-provisioning-agent/instanceutils/guide"
	"github.com/ruteri/script-provisioning-agent/instanceutils/provisioner"
	"github.com/ruteri/script-provisioning-agent/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

func buildAgent(t *testing.T, args ...string) *provisioner.Provisioner {
	t.Helper()

	var p *provisioner.Provisioner
	app := &cli.App{
		Name:  "autoprovision",
		Flags: slices.Concat(settingsFlags, filesFlags, downloadFlags, guideFlags, logUploadFlags, flags.CommonFlags),
		Action: func(cCtx *cli.Context) error {
			p = NewAgent(cCtx, slog.New(slog.NewTextHandler(io.Discard, nil)))
			return nil
		},
	}
	require.NoError(t, app.Run(append([]string{"autoprovision"}, args...)))
	require.NotNil(t, p)
	return p
}

func TestNewAgentDefaults(t *testing.T) {
	p := buildAgent(t, "--settings-file", "/tmp/0.settings")

	assert.Equal(t, "/var/lib/script-agent/work", p.Config.WorkDir)
	assert.Equal(t, "/var/lib/script-agent/lock", p.Config.LockDir)
	assert.Equal(t, []string{"*.log"}, p.Config.LogPatterns)
	assert.Nil(t, p.Guide)
	assert.Nil(t, p.Mirror)
	assert.Equal(t, provisioner.StateInit, p.State())

	blobs, ok := p.Uploader.(*storage.BlobClient)
	require.True(t, ok)
	assert.Equal(t, storage.DefaultEndpointSuffix, blobs.EndpointSuffix)
}

func TestNewAgentOptionalParts(t *testing.T) {
	mirrorDir := t.TempDir()
	p := buildAgent(t,
		"--settings-file", "/tmp/0.settings",
		"--guide-installer", "/opt/guide/install --quiet",
		"--log-mirror", "file://"+mirrorDir,
		"--log-mirror", "gopher://unsupported",
		"--blob-endpoint-suffix", "blob.core.chinacloudapi.cn",
	)

	installer, ok := p.Guide.(*guide.CommandInstaller)
	require.True(t, ok)
	assert.Equal(t, []string{"/opt/guide/install", "--quiet"}, installer.Command)

	multi, ok := p.Mirror.(*storage.MultiSink)
	require.True(t, ok)
	assert.Equal(t, 1, multi.Len())

	assert.Equal(t, "blob.core.chinacloudapi.cn", p.Uploader.(*storage.BlobClient).EndpointSuffix)
}

func TestDNSFlushCommand(t *testing.T) {
	assert.Equal(t, dnsutil.DefaultFlushCommand(), dnsFlushCommand(""))
	assert.Nil(t, dnsFlushCommand("none"))
	assert.Equal(t, []string{"systemd-resolve", "--flush-caches"}, dnsFlushCommand("systemd-resolve --flush-caches"))
}
