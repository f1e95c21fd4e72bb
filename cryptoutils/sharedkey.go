package cryptoutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"github.com/ruteri/script-provisioning-agent/interfaces"
)

// SharedKeyLiteScheme is the authorization scheme name placed in front of the signature.
const SharedKeyLiteScheme = "SharedKeyLite"

// SignSharedKeyLite computes the Authorization header value for a blob request.
//
// The signed payload is:
//
//	METHOD \n Content-MD5 \n Content-Type \n Date \n CanonicalizedHeaders \n CanonicalizedResource
//
// Content-MD5, Content-Type and Date are always empty; the request time travels in the
// x-ms-date header, which is part of the canonicalized headers. The result is a pure
// function of its inputs.
func SignSharedKeyLite(cred interfaces.StorageCredential, method string, targetURI string, headers map[string]string) (string, error) {
	key, err := base64.StdEncoding.DecodeString(cred.AccountKey)
	if err != nil {
		return "", fmt.Errorf("%w: %v", interfaces.ErrInvalidKey, err)
	}

	resource, err := CanonicalizedResource(cred.AccountName, targetURI)
	if err != nil {
		return "", err
	}

	payload := StringToSign(method, CanonicalizedHeaders(headers), resource)

	mac := hmac.New(sha256.New, key)
	mac.Write([]byte(payload))
	signature := base64.StdEncoding.EncodeToString(mac.Sum(nil))

	return fmt.Sprintf("%s %s:%s", SharedKeyLiteScheme, cred.AccountName, signature), nil
}

// Sign is SignSharedKeyLite for a prepared SigningRequest.
func Sign(cred interfaces.StorageCredential, req interfaces.SigningRequest) (string, error) {
	return SignSharedKeyLite(cred, req.Method, req.URI, req.Headers)
}

// StringToSign joins the signature fields in the fixed SharedKeyLite order.
func StringToSign(method, canonicalizedHeaders, canonicalizedResource string) string {
	return strings.Join([]string{
		strings.ToUpper(method),
		"", // Content-MD5
		"", // Content-Type
		"", // Date
		canonicalizedHeaders,
		canonicalizedResource,
	}, "\n")
}

// CanonicalizedHeaders lower-cases header names, sorts them in byte order and
// emits name:value lines. Names that only differ in case are merged into one
// line with their values joined by commas, ordered by the original spelling.
func CanonicalizedHeaders(headers map[string]string) string {
	originals := make([]string, 0, len(headers))
	for name := range headers {
		originals = append(originals, name)
	}
	sort.Strings(originals)

	merged := make(map[string][]string, len(headers))
	names := make([]string, 0, len(headers))
	for _, name := range originals {
		lower := strings.ToLower(strings.TrimSpace(name))
		if _, seen := merged[lower]; !seen {
			names = append(names, lower)
		}
		merged[lower] = append(merged[lower], strings.TrimSpace(headers[name]))
	}
	sort.Strings(names)

	lines := make([]string, 0, len(names))
	for _, name := range names {
		lines = append(lines, name+":"+strings.Join(merged[name], ","))
	}
	return strings.Join(lines, "\n")
}

// CanonicalizedResource returns "/" + account + the URI path, without the query string.
func CanonicalizedResource(accountName string, targetURI string) (string, error) {
	u, err := url.Parse(targetURI)
	if err != nil {
		return "", fmt.Errorf("invalid target URI: %w", err)
	}

	resourcePath := u.EscapedPath()
	if resourcePath == "" {
		resourcePath = "/"
	}
	return "/" + accountName + resourcePath, nil
}
