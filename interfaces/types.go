package interfaces

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// StorageCredential identifies a storage account and carries its base64 shared key.
// It is only ever held in memory for the duration of a signing or transfer call.
type StorageCredential struct {
	AccountName string
	AccountKey  string
}

// Valid reports whether both the account name and key are set.
func (c StorageCredential) Valid() bool {
	return c.AccountName != "" && c.AccountKey != ""
}

// SigningRequest is the subset of an HTTP request covered by a SharedKeyLite signature.
// Header names are compared case-insensitively.
type SigningRequest struct {
	Method  string
	URI     string
	Headers map[string]string
}

// PublicSettings is the plaintext part of the host-supplied handler settings.
type PublicSettings struct {
	ScriptFileURI      string   `json:"scriptFileUri"`
	DependencyFileURIs []string `json:"dependencyFileUris,omitempty"`
	ScriptArguments    []string `json:"scriptArguments,omitempty"`
	InstallGuide       bool     `json:"installGuide,omitempty"`
	SentinelFileName   string   `json:"sentinelFileName,omitempty"`
}

// PrivateSettings is the decrypted protected part of the handler settings.
type PrivateSettings struct {
	StorageAccountName string `json:"storageAccountName"`
	StorageAccountKey  string `json:"storageAccountKey"`
}

// ProvisioningConfig is built once per run and treated as read-only afterwards.
// Private is nil when the host did not supply protected settings.
type ProvisioningConfig struct {
	Public  PublicSettings
	Private *PrivateSettings
}

// Credential returns the storage credential from the private settings, if any.
func (c *ProvisioningConfig) Credential() (StorageCredential, bool) {
	if c == nil || c.Private == nil {
		return StorageCredential{}, false
	}
	cred := StorageCredential{
		AccountName: c.Private.StorageAccountName,
		AccountKey:  c.Private.StorageAccountKey,
	}
	return cred, cred.Valid()
}

// ScriptKey is the lock key of a script: upper-case hex SHA-256 of its URI.
// The key covers the URI only, so new content served at the same URI is treated as already run.
type ScriptKey string

// NewScriptKey computes the lock key for a script URI.
func NewScriptKey(scriptURI string) ScriptKey {
	sum := sha256.Sum256([]byte(scriptURI))
	return ScriptKey(strings.ToUpper(hex.EncodeToString(sum[:])))
}

// String returns the hex representation.
func (k ScriptKey) String() string {
	return string(k)
}

// SentinelConfig is the scratch file consumed by the deployment completion step.
type SentinelConfig struct {
	PrimaryStorageAccountName string
	PrimaryStorageAccountKey  string
	ScriptSentinelFileName    string
}

// GuideConfig is handed to the guide application installer.
type GuideConfig struct {
	StorageAccountName string
	StorageAccountKey  string
}
