package cryptoutils

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ruteri/script-provisioning-agent/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mozilla.org/pkcs7"
)

// writeTestCertificate creates a self-signed RSA certificate in dir and returns it.
func writeTestCertificate(t *testing.T, dir string) (*x509.Certificate, *rsa.PrivateKey) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject:      pkix.Name{CommonName: "settings-encryption"},
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(time.Hour),
		KeyUsage:     x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment,
	}
	der, err := x509.CreateCertificate(rand.Reader, template, template, &key.PublicKey, key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	thumbprint := Thumbprint(cert)
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(key)})
	require.NoError(t, os.WriteFile(filepath.Join(dir, thumbprint+".crt"), certPEM, 0600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, thumbprint+".prv"), keyPEM, 0600))

	return cert, key
}

func TestCertStore_Find(t *testing.T) {
	dir := t.TempDir()
	cert, _ := writeTestCertificate(t, dir)
	store := &CertStore{Dir: dir}

	found, key, err := store.Find(strings.ToLower(Thumbprint(cert)))
	require.NoError(t, err)
	assert.Equal(t, cert.Raw, found.Raw)
	assert.IsType(t, &rsa.PrivateKey{}, key)

	_, _, err = store.Find("00112233445566778899AABBCCDDEEFF00112233")
	assert.ErrorIs(t, err, ErrCertificateNotFound)

	_, _, err = store.Find("")
	assert.ErrorIs(t, err, ErrCertificateNotFound)
}

func TestNormalizeThumbprint(t *testing.T) {
	assert.Equal(t, "AABBCC", NormalizeThumbprint(" aa:bb cc "))
	assert.Equal(t, "AABB", NormalizeThumbprint("\u200eaabb"))
}

func TestCertStoreDecryptor(t *testing.T) {
	dir := t.TempDir()
	cert, _ := writeTestCertificate(t, dir)
	decryptor := &CertStoreDecryptor{Store: &CertStore{Dir: dir}}

	secret := []byte(`{"storageAccountName":"acct","storageAccountKey":"a2V5"}`)
	envelope, err := pkcs7.Encrypt(secret, []*x509.Certificate{cert})
	require.NoError(t, err)

	t.Run("matching certificate", func(t *testing.T) {
		plaintext, err := decryptor.Decrypt(envelope, Thumbprint(cert))
		require.NoError(t, err)
		assert.Equal(t, secret, plaintext)
	})

	t.Run("unknown thumbprint", func(t *testing.T) {
		_, err := decryptor.Decrypt(envelope, "00112233445566778899AABBCCDDEEFF00112233")
		assert.ErrorIs(t, err, interfaces.ErrDecryption)
		assert.ErrorIs(t, err, ErrCertificateNotFound)
	})

	t.Run("garbage payload", func(t *testing.T) {
		_, err := decryptor.Decrypt([]byte("not a pkcs7 envelope"), Thumbprint(cert))
		assert.ErrorIs(t, err, interfaces.ErrDecryption)
	})
}
