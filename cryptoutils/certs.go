package cryptoutils

import (
	"crypto"
	"crypto/rsa"
	"crypto/sha1"
	"crypto/x509"
	"encoding/hex"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/crypto/pkcs12"
)

// ErrCertificateNotFound is returned when no certificate in the store matches a thumbprint.
var ErrCertificateNotFound = errors.New("certificate not found")

// Thumbprint returns the upper-case hex SHA-1 digest of the certificate's DER encoding.
func Thumbprint(cert *x509.Certificate) string {
	sum := sha1.Sum(cert.Raw)
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// NormalizeThumbprint strips separators and upper-cases a thumbprint.
func NormalizeThumbprint(thumbprint string) string {
	clean := strings.NewReplacer(" ", "", ":", "", "\u200e", "").Replace(strings.TrimSpace(thumbprint))
	return strings.ToUpper(clean)
}

// CertStore is a directory of host-installed certificates named by thumbprint.
//
// For a thumbprint T the store looks for either a PEM pair (T.crt + T.prv) or a
// PKCS#12 bundle (T.pfx) with an empty password, trying upper- and lower-case names.
type CertStore struct {
	Dir string
}

// Find returns the certificate and private key stored under the given thumbprint.
// The loaded certificate's own thumbprint must match.
func (s *CertStore) Find(thumbprint string) (*x509.Certificate, crypto.PrivateKey, error) {
	want := NormalizeThumbprint(thumbprint)
	if want == "" {
		return nil, nil, fmt.Errorf("%w: empty thumbprint", ErrCertificateNotFound)
	}

	for _, name := range []string{want, strings.ToLower(want)} {
		cert, key, err := s.loadPEMPair(name)
		if err == nil {
			return checkThumbprint(cert, key, want)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}

		cert, key, err = s.loadPKCS12(name)
		if err == nil {
			return checkThumbprint(cert, key, want)
		}
		if !errors.Is(err, os.ErrNotExist) {
			return nil, nil, err
		}
	}

	return nil, nil, fmt.Errorf("%w: %s in %s", ErrCertificateNotFound, want, s.Dir)
}

func checkThumbprint(cert *x509.Certificate, key crypto.PrivateKey, want string) (*x509.Certificate, crypto.PrivateKey, error) {
	if got := Thumbprint(cert); got != want {
		return nil, nil, fmt.Errorf("%w: stored certificate has thumbprint %s, expected %s", ErrCertificateNotFound, got, want)
	}
	return cert, key, nil
}

func (s *CertStore) loadPEMPair(name string) (*x509.Certificate, crypto.PrivateKey, error) {
	certPEM, err := os.ReadFile(filepath.Join(s.Dir, name+".crt"))
	if err != nil {
		return nil, nil, err
	}
	keyPEM, err := os.ReadFile(filepath.Join(s.Dir, name+".prv"))
	if err != nil {
		return nil, nil, err
	}

	certBlock, _ := pem.Decode(certPEM)
	if certBlock == nil || certBlock.Type != "CERTIFICATE" {
		return nil, nil, errors.New("failed to decode certificate PEM block")
	}
	cert, err := x509.ParseCertificate(certBlock.Bytes)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse certificate: %w", err)
	}

	key, err := ParsePrivateKeyPEM(keyPEM)
	if err != nil {
		return nil, nil, err
	}
	return cert, key, nil
}

func (s *CertStore) loadPKCS12(name string) (*x509.Certificate, crypto.PrivateKey, error) {
	data, err := os.ReadFile(filepath.Join(s.Dir, name+".pfx"))
	if err != nil {
		return nil, nil, err
	}

	key, cert, err := pkcs12.Decode(data, "")
	if err != nil {
		return nil, nil, fmt.Errorf("failed to decode pkcs12 bundle: %w", err)
	}
	return cert, key, nil
}

// ParsePrivateKeyPEM parses a PKCS#8 or PKCS#1 RSA private key in PEM format.
func ParsePrivateKeyPEM(keyPEM []byte) (crypto.PrivateKey, error) {
	keyBlock, _ := pem.Decode(keyPEM)
	if keyBlock == nil {
		return nil, errors.New("failed to decode private key PEM block")
	}

	privateKey, err := x509.ParsePKCS8PrivateKey(keyBlock.Bytes)
	if err != nil {
		// Try PKCS#1 format if PKCS#8 fails
		rsaKey, err := x509.ParsePKCS1PrivateKey(keyBlock.Bytes)
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		return rsaKey, nil
	}

	if _, ok := privateKey.(*rsa.PrivateKey); !ok {
		return nil, errors.New("unsupported private key type, expected RSA")
	}
	return privateKey, nil
}
