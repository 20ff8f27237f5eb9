// Package testtls generates throwaway self-signed certificates for
// tests; the TLS listener tests use it. It is not imported by any
// production code path.
package testtls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/tls"
	"crypto/x509"
	"crypto/x509/pkix"
	"math/big"
	"time"
)

// CA is a self-signed certificate usable both as a TLS server
// identity and as a CAPF issuer/trust-anchor.
type CA struct {
	Certificate *x509.Certificate
	DER         []byte
	PrivateKey  any
}

// NewRSACA returns a self-signed RSA CA certificate with the given
// subject common name.
func NewRSACA(commonName string) (*CA, error) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		return nil, err
	}

	return newCA(commonName, key, &key.PublicKey)
}

// NewECDSACA returns a self-signed ECDSA (P-256) CA certificate.
func NewECDSACA(commonName string) (*CA, error) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		return nil, err
	}

	return newCA(commonName, key, &key.PublicKey)
}

func newCA(commonName string, priv any, pub any) (*CA, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:         commonName,
			Organization:       []string{"Test Org"},
			OrganizationalUnit: []string{"Test Unit"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(24 * time.Hour * 365),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, pub, priv)
	if err != nil {
		return nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, err
	}

	return &CA{Certificate: cert, DER: der, PrivateKey: priv}, nil
}

// ServerTLSConfig returns a tls.Config presenting ca as the server
// identity, with peer verification disabled (matching §4.6: TLS peer
// verification is off at the transport layer for both daemons).
func (ca *CA) ServerTLSConfig() (*tls.Config, error) {
	cert := tls.Certificate{
		Certificate: [][]byte{ca.DER},
		PrivateKey:  ca.PrivateKey,
		Leaf:        ca.Certificate,
	}

	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		ClientAuth:   tls.NoClientCert,
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// IssueLeaf signs a leaf certificate for pub under ca, for tests
// needing a phone-style device certificate.
func (ca *CA) IssueLeaf(commonName string, pub any, validity time.Duration) (*x509.Certificate, []byte, error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return nil, nil, err
	}

	tmpl := &x509.Certificate{
		SerialNumber: serial,
		Subject:      pkix.Name{CommonName: commonName},
		Issuer:       ca.Certificate.Issuer,
		NotBefore:    time.Now().Add(-time.Hour),
		NotAfter:     time.Now().Add(validity),
		KeyUsage:     x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
	}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, ca.Certificate, pub, ca.PrivateKey)
	if err != nil {
		return nil, nil, err
	}

	cert, err := x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, err
	}

	return cert, der, nil
}
