package interfaces

import (
	"context"
	"errors"
)

var (
	// ErrConfigLoad is returned when the handler settings are missing, malformed or invalid.
	ErrConfigLoad = errors.New("config load failed")

	// ErrDecryption is returned when the protected settings cannot be decrypted,
	// including when no certificate matches the requested thumbprint.
	ErrDecryption = errors.New("protected settings decryption failed")

	// ErrInvalidKey is returned when a storage account key is not valid base64.
	ErrInvalidKey = errors.New("invalid storage account key")

	// ErrBlobRequest is returned when the blob endpoint answers with a non-2xx status.
	ErrBlobRequest = errors.New("blob request failed")

	// ErrDownloadExhausted is returned when every download attempt failed.
	ErrDownloadExhausted = errors.New("download attempts exhausted")

	// ErrScriptExecution is returned when the provisioning script exits with a failure.
	ErrScriptExecution = errors.New("script execution failed")

	// ErrLogUpload marks a single log artifact that could not be uploaded.
	// It is logged and never returned from a run.
	ErrLogUpload = errors.New("log upload failed")

	// ErrLockExists is returned when the lock marker for a script is already present.
	ErrLockExists = errors.New("lock marker already exists")

	// ErrInvalidLocationURI is returned when a log mirror URI is malformed or unsupported.
	ErrInvalidLocationURI = errors.New("invalid storage location URI")
)

// BlobUploader uploads a single local file to the blob store under blobPath.
type BlobUploader interface {
	UploadFile(ctx context.Context, cred StorageCredential, blobPath string, filePath string) error
}

// LogSink receives log artifacts in addition to the primary blob store.
type LogSink interface {
	// Put stores data under the given blob path.
	Put(ctx context.Context, blobPath string, data []byte) error

	// Name returns identifier for logging.
	Name() string
}

// Decryptor decrypts an enveloped payload with the certificate matching thumbprint.
type Decryptor interface {
	Decrypt(ciphertext []byte, thumbprint string) ([]byte, error)
}

// SettingsLoader produces the provisioning configuration for a run.
type SettingsLoader interface {
	Load() (*ProvisioningConfig, error)
}

// Downloader fetches sourceURI into targetDir and returns the local file path.
type Downloader interface {
	Fetch(ctx context.Context, targetDir string, sourceURI string) (string, error)
}

// ScriptRunner executes a downloaded provisioning script.
type ScriptRunner interface {
	Run(ctx context.Context, scriptPath string, args []string, workDir string) error
}

// GuideInstaller installs the guide application with the given storage credential.
type GuideInstaller interface {
	Install(ctx context.Context, cred StorageCredential) error
}
