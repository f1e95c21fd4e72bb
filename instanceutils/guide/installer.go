package guide

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

// ErrNoInstaller is returned when the guide is requested but no installer command is configured.
var ErrNoInstaller = errors.New("no guide installer configured")

// CommandInstaller installs the guide application by running an external
// installer. The credential is handed over in a JSON config file whose path
// is passed as the installer's last argument.
type CommandInstaller struct {
	Command    []string
	ConfigPath string

	log  *slog.Logger
	exec func(ctx context.Context, name string, args ...string) ([]byte, error)
}

func NewCommandInstaller(command []string, configPath string, log *slog.Logger) *CommandInstaller {
	return &CommandInstaller{
		Command:    command,
		ConfigPath: configPath,
		log:        log,
		exec: func(ctx context.Context, name string, args ...string) ([]byte, error) {
			return exec.CommandContext(ctx, name, args...).CombinedOutput()
		},
	}
}

// Install writes the guide config and runs the installer.
func (g *CommandInstaller) Install(ctx context.Context, cred interfaces.StorageCredential) error {
	if len(g.Command) == 0 {
		return ErrNoInstaller
	}
	if !cred.Valid() {
		return errors.New("guide installation requires a storage credential")
	}

	if err := WriteConfig(g.ConfigPath, interfaces.GuideConfig{
		StorageAccountName: cred.AccountName,
		StorageAccountKey:  cred.AccountKey,
	}); err != nil {
		return err
	}

	args := append(append([]string{}, g.Command[1:]...), g.ConfigPath)
	output, err := g.exec(ctx, g.Command[0], args...)
	if err != nil {
		return fmt.Errorf("guide installer failed: %w: %s", err, strings.TrimSpace(string(output)))
	}

	g.log.Info("Installed guide application", slog.String("installer", g.Command[0]))
	return nil
}

// WriteConfig writes cfg as JSON readable by the owner only.
func WriteConfig(path string, cfg interfaces.GuideConfig) error {
	data, err := json.Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return fmt.Errorf("failed to create guide config directory: %w", err)
	}
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
