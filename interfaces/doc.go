// Package interfaces defines the core types, sentinel errors and component
// contracts of the script provisioning agent.
//
// # Types
//
// StorageCredential: Account name and base64 shared key used to sign blob requests.
//
// ProvisioningConfig: Public handler settings plus the optional decrypted private
// settings, built once per run.
//
// ScriptKey: Upper-case hex SHA-256 of a script URI, used to name the lock marker
// that guarantees a script runs at most once per host.
//
// # Component Interfaces
//
// SettingsLoader, Decryptor, Downloader, ScriptRunner, GuideInstaller, BlobUploader
// and LogSink decouple the provisioner from the host so each step can be replaced
// with a test double.
//
// # Errors
//
// Fatal errors (ErrConfigLoad, ErrDownloadExhausted, ErrScriptExecution) abort a run
// after logs are uploaded. ErrLogUpload is per artifact and only ever logged.
package interfaces
