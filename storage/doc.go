// Package storage moves provisioning artifacts to and from object storage.
//
// # Blob Client
//
// BlobClient issues single signed PUT and GET requests against
// https://{account}.blob.core.windows.net/{path}. Every request carries
// x-ms-version and x-ms-date headers (plus x-ms-blob-type on uploads) and an
// Authorization header computed by cryptoutils.SignSharedKeyLite. The client
// never retries; a non-2xx response is returned as interfaces.ErrBlobRequest.
//
//	client := storage.NewBlobClient("", logger)
//	err := client.UploadFile(ctx, cred, "assets/logs/run.log", "/var/lib/agent/run.log")
//
// # Log Mirrors
//
// Log artifacts can additionally be mirrored to sinks created from URIs:
//
//   - file:///var/log/provisioning-archive
//   - s3://[ACCESS_KEY:SECRET_KEY@]bucket/prefix?region=us-west-2&endpoint=...
//   - ipfs://host:5001/?timeout=30s (artifacts are added and pinned, CIDs are logged)
//
// MultiSink writes to all configured sinks and joins their errors; a failing
// sink never prevents the others from receiving the artifact.
package storage
