package provisioner

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/ruteri/script-provisioning-agent/interfaces"
	"go.uber.org/atomic"
)

// LogBlobPrefix is the blob directory log artifacts are uploaded under.
const LogBlobPrefix = "assets/logs"

// DefaultLogPatterns matches the script output and the logs it writes, but not
// downloaded dependencies that share the work dir.
var DefaultLogPatterns = []string{"*.log"}

// Config holds the local paths a run works with.
type Config struct {
	WorkDir            string
	LockDir            string
	SentinelConfigFile string
	// LogPatterns selects which files in WorkDir are uploaded, matched against
	// the base name. Empty uploads every file.
	LogPatterns []string
}

// Provisioner runs the provisioning sequence once per script URI.
type Provisioner struct {
	Config Config

	Loader     interfaces.SettingsLoader
	Downloader interfaces.Downloader
	Runner     interfaces.ScriptRunner
	Guide      interfaces.GuideInstaller
	Uploader   interfaces.BlobUploader
	// Mirror receives the same log artifacts as the blob store. Optional.
	Mirror interfaces.LogSink

	log   *slog.Logger
	state *atomic.String
}

func NewProvisioner(config Config, log *slog.Logger) *Provisioner {
	return &Provisioner{
		Config: config,
		log:    log,
		state:  atomic.NewString(string(StateInit)),
	}
}

// State returns the current state. Safe for concurrent use.
func (p *Provisioner) State() State {
	return State(p.state.Load())
}

func (p *Provisioner) transition(s State) {
	prev := p.state.Swap(string(s))
	p.log.Info("Provisioning state changed",
		slog.String("from", prev),
		slog.String("to", string(s)))
}

// Run executes the provisioning sequence. Once the settings are loaded, the
// work dir logs are uploaded on every path except SkippedAlreadyRun, and the
// run's own error is returned unchanged regardless of upload results.
func (p *Provisioner) Run(ctx context.Context) (err error) {
	p.transition(StateInit)

	cfg, err := p.Loader.Load()
	if err != nil {
		p.transition(StateFailed)
		return err
	}
	p.transition(StateConfigLoaded)

	skipped := false
	defer func() {
		if skipped {
			p.transition(StateSkippedAlreadyRun)
			return
		}

		// uploads still run after the run context was cancelled
		p.uploadLogs(context.WithoutCancel(ctx), cfg)

		if err != nil {
			p.transition(StateFailed)
			return
		}
		p.transition(StateLogsUploaded)
		p.transition(StateDone)
	}()

	skipped, err = p.execute(ctx, cfg)
	if err != nil {
		p.log.Error("Provisioning failed", slog.String("state", string(p.State())), "err", err)
	}
	return err
}

func (p *Provisioner) execute(ctx context.Context, cfg *interfaces.ProvisioningConfig) (bool, error) {
	scriptURI := cfg.Public.ScriptFileURI

	exists, err := LockMarkerExists(p.Config.LockDir, scriptURI)
	if err != nil {
		return false, err
	}
	p.transition(StateLockChecked)
	if exists {
		p.log.Info("Script already ran on this machine, skipping",
			slog.String("lock", interfaces.NewScriptKey(scriptURI).String()))
		return true, nil
	}

	if err := os.MkdirAll(p.Config.WorkDir, 0o755); err != nil {
		return false, fmt.Errorf("failed to create work directory: %w", err)
	}

	for _, uri := range cfg.Public.DependencyFileURIs {
		if strings.TrimSpace(uri) == "" {
			continue
		}
		if _, err := p.Downloader.Fetch(ctx, p.Config.WorkDir, uri); err != nil {
			return false, fmt.Errorf("failed to fetch dependency: %w", err)
		}
	}
	p.transition(StateDependenciesFetched)

	scriptPath, err := p.Downloader.Fetch(ctx, p.Config.WorkDir, scriptURI)
	if err != nil {
		return false, fmt.Errorf("failed to fetch script: %w", err)
	}
	p.transition(StateScriptDownloaded)

	cred, _ := cfg.Credential()

	if cfg.Public.SentinelFileName != "" {
		if err := p.writeSentinelConfig(cred, cfg.Public.SentinelFileName); err != nil {
			return false, err
		}
		p.transition(StateSentinelConfigWritten)
	}

	if cfg.Public.InstallGuide {
		if p.Guide == nil {
			return false, errors.New("guide installation requested but no installer is configured")
		}
		if err := p.Guide.Install(ctx, cred); err != nil {
			return false, fmt.Errorf("failed to install guide: %w", err)
		}
		p.transition(StateGuideInstalled)
	}

	if err := WriteLockMarker(p.Config.LockDir, scriptURI); err != nil {
		if errors.Is(err, interfaces.ErrLockExists) {
			p.log.Warn("Another invocation claimed the script first, skipping")
			return true, nil
		}
		return false, err
	}
	p.transition(StateLockWritten)

	if err := p.Runner.Run(ctx, scriptPath, cfg.Public.ScriptArguments, p.Config.WorkDir); err != nil {
		if !errors.Is(err, interfaces.ErrScriptExecution) {
			err = fmt.Errorf("%w: %w", interfaces.ErrScriptExecution, err)
		}
		return false, err
	}
	p.transition(StateScriptExecuted)

	return false, nil
}

func (p *Provisioner) writeSentinelConfig(cred interfaces.StorageCredential, sentinelFileName string) error {
	if p.Config.SentinelConfigFile == "" {
		return errors.New("sentinel config path is not configured")
	}

	data, err := json.Marshal(interfaces.SentinelConfig{
		PrimaryStorageAccountName: cred.AccountName,
		PrimaryStorageAccountKey:  cred.AccountKey,
		ScriptSentinelFileName:    sentinelFileName,
	})
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(p.Config.SentinelConfigFile), 0o700); err != nil {
		return fmt.Errorf("failed to create sentinel config directory: %w", err)
	}
	if err := os.WriteFile(p.Config.SentinelConfigFile, data, 0o600); err != nil {
		return fmt.Errorf("failed to write sentinel config: %w", err)
	}
	return nil
}

// uploadLogs sends every log file in the work dir to the blob store and the
// mirror. Failures are logged per file and never returned.
func (p *Provisioner) uploadLogs(ctx context.Context, cfg *interfaces.ProvisioningConfig) {
	files, err := p.logFiles()
	if err != nil {
		p.log.Warn("Could not enumerate log files", "err", err)
		return
	}

	cred, hasCred := cfg.Credential()
	if !hasCred {
		p.log.Warn("No storage credential, skipping log upload to blob store")
	}
	if !hasCred && p.Mirror == nil {
		return
	}

	uploaded, failed := 0, 0
	for _, file := range files {
		blobPath := LogBlobPath(p.Config.WorkDir, file)

		if hasCred && p.Uploader != nil {
			if err := p.Uploader.UploadFile(ctx, cred, blobPath, file); err != nil {
				failed++
				p.log.Warn("Log upload failed",
					slog.String("blob", blobPath),
					"err", fmt.Errorf("%w: %w", interfaces.ErrLogUpload, err))
			} else {
				uploaded++
			}
		}

		if p.Mirror != nil {
			data, err := os.ReadFile(file)
			if err == nil {
				err = p.Mirror.Put(ctx, blobPath, data)
			}
			if err != nil {
				p.log.Warn("Log mirror failed",
					slog.String("blob", blobPath),
					slog.String("mirror", p.Mirror.Name()),
					"err", err)
			}
		}
	}

	p.log.Info("Log upload finished",
		slog.Int("files", len(files)),
		slog.Int("uploaded", uploaded),
		slog.Int("failed", failed))
}

func (p *Provisioner) logFiles() ([]string, error) {
	var files []string
	err := filepath.WalkDir(p.Config.WorkDir, func(file string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() || !p.matchesLogPattern(d.Name()) {
			return nil
		}
		files = append(files, file)
		return nil
	})
	return files, err
}

func (p *Provisioner) matchesLogPattern(name string) bool {
	if len(p.Config.LogPatterns) == 0 {
		return true
	}
	for _, pattern := range p.Config.LogPatterns {
		if ok, _ := filepath.Match(pattern, name); ok {
			return true
		}
	}
	return false
}

// LogBlobPath maps a log file under root to assets/logs/<relative path>.
// Both separator styles are accepted and duplicate separators are collapsed.
// A file outside root keeps only its base name.
func LogBlobPath(root string, file string) string {
	r := normalizeSeparators(root)
	f := normalizeSeparators(file)

	rel := path.Base(f)
	switch {
	case r == "":
		rel = f
	case strings.HasPrefix(f, r+"/"):
		rel = f[len(r)+1:]
	}

	rel = strings.TrimLeft(rel, "/")
	if rel == "" || rel == "." {
		return LogBlobPrefix
	}
	return LogBlobPrefix + "/" + rel
}

func normalizeSeparators(p string) string {
	p = strings.ReplaceAll(p, `\`, "/")
	for strings.Contains(p, "//") {
		p = strings.ReplaceAll(p, "//", "/")
	}
	return strings.TrimRight(p, "/")
}
