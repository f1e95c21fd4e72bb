// Package downloader fetches provisioning scripts and their dependencies.
//
// Transfers are retried with a fixed delay and no backoff growth. Between
// attempts an optional hook runs, by default the DNS cache flush from dnsutil.
// Once every attempt has failed the error wraps interfaces.ErrDownloadExhausted
// together with the last transfer error.
package downloader
