// Package dnsutil flushes the local DNS cache between download attempts.
//
// A failed dependency download is often caused by a stale resolver answer
// right after boot. The Flusher runs the platform cache flush command and then
// queries the upstream resolver directly with miekg/dns, so the next attempt
// picks up a fresh record. Flusher.BeforeRetry has the signature of the
// downloader's pre-retry hook.
package dnsutil
