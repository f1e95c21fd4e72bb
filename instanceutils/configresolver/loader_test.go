package configresolver

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/script-provisioning-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockDecryptor struct {
	mock.Mock
}

func (m *MockDecryptor) Decrypt(ciphertext []byte, thumbprint string) ([]byte, error) {
	args := m.Called(ciphertext, thumbprint)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

func writeSettings(t *testing.T, public map[string]any, protected string, thumbprint string) string {
	t.Helper()

	publicJSON, err := json.Marshal(public)
	require.NoError(t, err)

	file := HandlerSettingsFile{RuntimeSettings: []RuntimeSettings{{HandlerSettings: HandlerSettings{
		PublicSettings:                  publicJSON,
		ProtectedSettings:               protected,
		ProtectedSettingsCertThumbprint: thumbprint,
	}}}}
	raw, err := json.Marshal(file)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "0.settings")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestLoadWithProtectedSettings(t *testing.T) {
	ciphertext := []byte("enveloped")
	path := writeSettings(t, map[string]any{
		"scriptFileUri":      "https://acct.blob.core.windows.net/c/setup.sh",
		"dependencyFileUris": []string{"https://acct.blob.core.windows.net/c/dep.zip"},
		"scriptArguments":    []string{"-Verbose"},
		"installGuide":       true,
		"sentinelFileName":   "done.txt",
	}, base64.StdEncoding.EncodeToString(ciphertext), "AB12")

	decryptor := &MockDecryptor{}
	decryptor.On("Decrypt", ciphertext, "AB12").
		Return([]byte(`{"storageAccountName":"acct","storageAccountKey":"a2V5"}`), nil).Once()

	cfg, err := NewLoader(path, decryptor, testLogger()).Load()
	require.NoError(t, err)
	decryptor.AssertExpectations(t)

	assert.Equal(t, "https://acct.blob.core.windows.net/c/setup.sh", cfg.Public.ScriptFileURI)
	assert.Equal(t, []string{"https://acct.blob.core.windows.net/c/dep.zip"}, cfg.Public.DependencyFileURIs)
	assert.Equal(t, []string{"-Verbose"}, cfg.Public.ScriptArguments)
	assert.True(t, cfg.Public.InstallGuide)
	assert.Equal(t, "done.txt", cfg.Public.SentinelFileName)

	cred, ok := cfg.Credential()
	require.True(t, ok)
	assert.Equal(t, interfaces.StorageCredential{AccountName: "acct", AccountKey: "a2V5"}, cred)
}

func TestLoadPublicOnly(t *testing.T) {
	path := writeSettings(t, map[string]any{"scriptFileUri": "https://example.com/s.sh"}, "", "")

	decryptor := &MockDecryptor{}
	cfg, err := NewLoader(path, decryptor, testLogger()).Load()
	require.NoError(t, err)
	assert.Nil(t, cfg.Private)
	_, ok := cfg.Credential()
	assert.False(t, ok)
	decryptor.AssertNotCalled(t, "Decrypt", mock.Anything, mock.Anything)
}

func TestLoadErrors(t *testing.T) {
	validProtected := base64.StdEncoding.EncodeToString([]byte("x"))

	tests := []struct {
		name       string
		path       func(t *testing.T) string
		decrypt    []byte
		decryptErr error
		decryption bool
	}{
		{
			name: "missing file",
			path: func(t *testing.T) string { return filepath.Join(t.TempDir(), "nope.settings") },
		},
		{
			name: "malformed json",
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "bad.settings")
				require.NoError(t, os.WriteFile(p, []byte("{not json"), 0o600))
				return p
			},
		},
		{
			name: "no runtime settings",
			path: func(t *testing.T) string {
				p := filepath.Join(t.TempDir(), "empty.settings")
				require.NoError(t, os.WriteFile(p, []byte(`{"runtimeSettings":[]}`), 0o600))
				return p
			},
		},
		{
			name: "missing script uri",
			path: func(t *testing.T) string {
				return writeSettings(t, map[string]any{"dependencyFileUris": []string{"a"}}, "", "")
			},
		},
		{
			name: "sentinel without credential",
			path: func(t *testing.T) string {
				return writeSettings(t, map[string]any{"scriptFileUri": "https://e/s.sh", "sentinelFileName": "x"}, "", "")
			},
		},
		{
			name: "guide without credential",
			path: func(t *testing.T) string {
				return writeSettings(t, map[string]any{"scriptFileUri": "https://e/s.sh", "installGuide": true}, "", "")
			},
		},
		{
			name: "protected not base64",
			path: func(t *testing.T) string {
				return writeSettings(t, map[string]any{"scriptFileUri": "https://e/s.sh"}, "%%%", "AB")
			},
			decryption: true,
		},
		{
			name: "decryptor fails",
			path: func(t *testing.T) string {
				return writeSettings(t, map[string]any{"scriptFileUri": "https://e/s.sh"}, validProtected, "AB")
			},
			decryptErr: errors.New("no certificate"),
			decryption: true,
		},
		{
			name: "decrypted payload not json",
			path: func(t *testing.T) string {
				return writeSettings(t, map[string]any{"scriptFileUri": "https://e/s.sh"}, validProtected, "AB")
			},
			decrypt:    []byte("garbage"),
			decryption: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			decryptor := &MockDecryptor{}
			decryptor.On("Decrypt", mock.Anything, mock.Anything).Return(tt.decrypt, tt.decryptErr).Maybe()

			_, err := NewLoader(tt.path(t), decryptor, testLogger()).Load()
			require.Error(t, err)
			assert.ErrorIs(t, err, interfaces.ErrConfigLoad)
			if tt.decryption {
				assert.ErrorIs(t, err, interfaces.ErrDecryption)
			}
		})
	}
}
