package configresolver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

// HandlerSettingsFile is the on-disk layout written by the host agent.
type HandlerSettingsFile struct {
	RuntimeSettings []RuntimeSettings `json:"runtimeSettings"`
}

type RuntimeSettings struct {
	HandlerSettings HandlerSettings `json:"handlerSettings"`
}

type HandlerSettings struct {
	PublicSettings                  json.RawMessage `json:"publicSettings"`
	ProtectedSettings               string          `json:"protectedSettings,omitempty"`
	ProtectedSettingsCertThumbprint string          `json:"protectedSettingsCertThumbprint,omitempty"`
}

// Loader reads and decrypts the handler settings file.
type Loader struct {
	Path      string
	Decryptor interfaces.Decryptor

	log *slog.Logger
}

func NewLoader(path string, decryptor interfaces.Decryptor, log *slog.Logger) *Loader {
	return &Loader{
		Path:      path,
		Decryptor: decryptor,
		log:       log,
	}
}

// Load parses the settings file, decrypts the protected settings when present
// and validates the result. Every error wraps interfaces.ErrConfigLoad.
func (l *Loader) Load() (*interfaces.ProvisioningConfig, error) {
	cfg, err := l.load()
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrConfigLoad, err)
	}

	_, hasCred := cfg.Credential()
	l.log.Info("Loaded provisioning settings",
		slog.String("settings_file", l.Path),
		slog.Int("dependencies", len(cfg.Public.DependencyFileURIs)),
		slog.Bool("install_guide", cfg.Public.InstallGuide),
		slog.Bool("sentinel", cfg.Public.SentinelFileName != ""),
		slog.Bool("credential", hasCred))

	return cfg, nil
}

func (l *Loader) load() (*interfaces.ProvisioningConfig, error) {
	raw, err := os.ReadFile(l.Path)
	if err != nil {
		return nil, fmt.Errorf("could not read settings file: %w", err)
	}

	var file HandlerSettingsFile
	if err := json.Unmarshal(raw, &file); err != nil {
		return nil, fmt.Errorf("could not parse settings file: %w", err)
	}
	if len(file.RuntimeSettings) == 0 {
		return nil, errors.New("settings file has no runtime settings")
	}

	handler := file.RuntimeSettings[0].HandlerSettings
	if len(handler.PublicSettings) == 0 || string(handler.PublicSettings) == "null" {
		return nil, errors.New("settings file has no public settings")
	}

	cfg := &interfaces.ProvisioningConfig{}
	if err := json.Unmarshal(handler.PublicSettings, &cfg.Public); err != nil {
		return nil, fmt.Errorf("could not parse public settings: %w", err)
	}

	if strings.TrimSpace(handler.ProtectedSettings) != "" {
		private, err := l.decryptProtected(handler.ProtectedSettings, handler.ProtectedSettingsCertThumbprint)
		if err != nil {
			return nil, err
		}
		cfg.Private = private
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (l *Loader) decryptProtected(encoded string, thumbprint string) (*interfaces.PrivateSettings, error) {
	if l.Decryptor == nil {
		return nil, fmt.Errorf("%w: no decryptor configured", interfaces.ErrDecryption)
	}

	ciphertext, err := base64.StdEncoding.DecodeString(strings.TrimSpace(encoded))
	if err != nil {
		return nil, fmt.Errorf("%w: protected settings are not base64: %v", interfaces.ErrDecryption, err)
	}

	plaintext, err := l.Decryptor.Decrypt(ciphertext, thumbprint)
	if err != nil {
		if errors.Is(err, interfaces.ErrDecryption) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", interfaces.ErrDecryption, err)
	}

	var private interfaces.PrivateSettings
	if err := json.Unmarshal(plaintext, &private); err != nil {
		return nil, fmt.Errorf("%w: protected settings are not valid json: %v", interfaces.ErrDecryption, err)
	}

	return &private, nil
}

// Validate checks the invariants a run depends on.
func Validate(cfg *interfaces.ProvisioningConfig) error {
	if strings.TrimSpace(cfg.Public.ScriptFileURI) == "" {
		return errors.New("scriptFileUri is required")
	}

	_, hasCred := cfg.Credential()
	if cfg.Public.SentinelFileName != "" && !hasCred {
		return errors.New("sentinelFileName requires a storage credential")
	}
	if cfg.Public.InstallGuide && !hasCred {
		return errors.New("installGuide requires a storage credential")
	}

	return nil
}
