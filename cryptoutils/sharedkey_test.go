package cryptoutils

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"math/rand"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/ruteri/script-provisioning-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testCredential = interfaces.StorageCredential{
	AccountName: "myaccount",
	AccountKey:  base64.StdEncoding.EncodeToString([]byte("0123456789abcdef0123456789abcdef")),
}

func TestSignSharedKeyLite_KnownPayload(t *testing.T) {
	headers := map[string]string{
		"x-ms-version":   "2019-12-12",
		"X-Ms-Date":      "Mon, 02 Jan 2006 15:04:05 GMT",
		"x-ms-blob-type": "BlockBlob",
	}

	token, err := SignSharedKeyLite(testCredential, "PUT", "https://myaccount.blob.core.windows.net/assets/logs/a.log?comp=x", headers)
	require.NoError(t, err)

	payload := "PUT\n\n\n\n" +
		"x-ms-blob-type:BlockBlob\n" +
		"x-ms-date:Mon, 02 Jan 2006 15:04:05 GMT\n" +
		"x-ms-version:2019-12-12\n" +
		"/myaccount/assets/logs/a.log"
	mac := hmac.New(sha256.New, []byte("0123456789abcdef0123456789abcdef"))
	mac.Write([]byte(payload))
	expected := "SharedKeyLite myaccount:" + base64.StdEncoding.EncodeToString(mac.Sum(nil))

	assert.Equal(t, expected, token)
}

func TestSignSharedKeyLite_InvalidKey(t *testing.T) {
	cred := interfaces.StorageCredential{AccountName: "myaccount", AccountKey: "not base64!!"}
	_, err := SignSharedKeyLite(cred, "GET", "https://myaccount.blob.core.windows.net/a", nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, interfaces.ErrInvalidKey)
}

func TestCanonicalizedHeaders(t *testing.T) {
	tests := []struct {
		name     string
		headers  map[string]string
		expected string
	}{
		{
			name:     "empty",
			headers:  map[string]string{},
			expected: "",
		},
		{
			name:     "lower-cased and sorted in byte order",
			headers:  map[string]string{"X-MS-Version": "1", "x-ms-date": "d", "X-MS-B": "b"},
			expected: "x-ms-b:b\nx-ms-date:d\nx-ms-version:1",
		},
		{
			name:     "case-only duplicates are merged",
			headers:  map[string]string{"X-Ms-Meta": "upper", "x-ms-meta": "lower"},
			expected: "x-ms-meta:upper,lower",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, CanonicalizedHeaders(tt.headers))
		})
	}
}

func TestCanonicalizedResource(t *testing.T) {
	resource, err := CanonicalizedResource("acct", "https://acct.blob.core.windows.net/c/d/e.txt?sv=1&sig=2")
	require.NoError(t, err)
	assert.Equal(t, "/acct/c/d/e.txt", resource)

	resource, err = CanonicalizedResource("acct", "https://acct.blob.core.windows.net")
	require.NoError(t, err)
	assert.Equal(t, "/acct/", resource)
}

func TestSignSharedKeyLite_Properties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("header insertion order does not change the token", prop.ForAll(
		func(names []string, values []string, seed int64) bool {
			set := map[string]string{}
			for i, name := range names {
				set["x-ms-"+name] = values[i%len(values)]
			}
			ordered := make([]string, 0, len(set))
			for name := range set {
				ordered = append(ordered, name)
			}

			first := map[string]string{}
			for _, name := range ordered {
				first[name] = set[name]
			}
			second := map[string]string{}
			for _, i := range rand.New(rand.NewSource(seed)).Perm(len(ordered)) {
				second[ordered[i]] = set[ordered[i]]
			}

			a, errA := SignSharedKeyLite(testCredential, "PUT", "https://myaccount.blob.core.windows.net/x/y", first)
			b, errB := SignSharedKeyLite(testCredential, "PUT", "https://myaccount.blob.core.windows.net/x/y", second)
			return errA == nil && errB == nil && a == b
		},
		gen.SliceOfN(6, gen.Identifier()),
		gen.SliceOfN(3, gen.AlphaString()),
		gen.Int64(),
	))

	properties.Property("signing is deterministic for any valid key", prop.ForAll(
		func(key []uint8, blobPath string) bool {
			cred := interfaces.StorageCredential{
				AccountName: "acct",
				AccountKey:  base64.StdEncoding.EncodeToString(key),
			}
			headers := map[string]string{"x-ms-date": "Mon, 02 Jan 2006 15:04:05 GMT", "x-ms-version": "2019-12-12"}
			uri := "https://acct.blob.core.windows.net/" + blobPath

			a, errA := SignSharedKeyLite(cred, "GET", uri, headers)
			b, errB := SignSharedKeyLite(cred, "GET", uri, headers)
			return errA == nil && errB == nil && a == b
		},
		gen.SliceOfN(64, gen.UInt8()),
		gen.Identifier(),
	))

	properties.TestingRun(t)
}
