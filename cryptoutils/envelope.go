package cryptoutils

import (
	"crypto"
	"crypto/x509"
	"fmt"

	"github.com/ruteri/script-provisioning-agent/interfaces"
	"go.mozilla.org/pkcs7"
)

// CertStoreDecryptor decrypts PKCS#7 enveloped-data payloads with the private key
// of the host certificate named by the payload's thumbprint.
type CertStoreDecryptor struct {
	Store *CertStore
}

// Decrypt implements interfaces.Decryptor. All failures wrap interfaces.ErrDecryption.
func (d *CertStoreDecryptor) Decrypt(ciphertext []byte, thumbprint string) ([]byte, error) {
	cert, key, err := d.Store.Find(thumbprint)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrDecryption, err)
	}
	return DecryptEnvelope(ciphertext, cert, key)
}

// DecryptEnvelope opens a DER encoded PKCS#7 enveloped-data payload addressed to cert.
func DecryptEnvelope(ciphertext []byte, cert *x509.Certificate, key crypto.PrivateKey) ([]byte, error) {
	p7, err := pkcs7.Parse(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("%w: could not parse envelope: %w", interfaces.ErrDecryption, err)
	}

	plaintext, err := p7.Decrypt(cert, key)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", interfaces.ErrDecryption, err)
	}
	return plaintext, nil
}
