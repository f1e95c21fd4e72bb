// Package cryptoutils signs blob requests and decrypts protected settings.
//
// # SharedKeyLite
//
// SignSharedKeyLite produces the Authorization header value for a blob
// request. The string to sign is
//
//	METHOD\n\n\n\n<canonicalized x-ms- headers>\n/<account><path>
//
// where the headers are lower-cased, sorted and written as name:value lines.
// The signature is base64(HMAC-SHA256(base64decode(key), string to sign)) and
// the header reads "SharedKeyLite <account>:<signature>".
//
// # Protected settings
//
// Protected settings arrive as a PKCS#7 enveloped-data payload addressed to a
// certificate installed on the machine. CertStore looks the certificate up by
// its SHA-1 thumbprint in a directory holding either <THUMB>.crt and
// <THUMB>.prv PEM files or a <THUMB>.pfx bundle, and CertStoreDecryptor
// opens the envelope with the matching private key.
package cryptoutils
