// Package issuer builds and signs CAPF's leaf X.509 certificates
// (spec.md §4.3) off the operator-supplied CA certificate and key.
package issuer

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"encoding/pem"
	"fmt"
	"math/big"
	"net/url"
	"os"
	"time"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// serialBits is the width of the random serial number: 128
// cryptographically-random bits, treated as a positive big-endian
// integer.
const serialBits = 128

// copiedSubjectOIDs are the issuer Subject attribute types copied
// verbatim onto every issued leaf, alongside the device-name CN.
var copiedSubjectOIDs = map[string]bool{
	"2.5.4.10": true, // O
	"2.5.4.11": true, // OU
	"2.5.4.7":  true, // L
	"2.5.4.8":  true, // ST
	"2.5.4.6":  true, // C
}

// Material is the process-wide, immutable-after-startup issuer
// certificate and private key (spec.md §3 "Issuer material").
type Material struct {
	Certificate *x509.Certificate
	PrivateKey  crypto.Signer
}

// LoadMaterial reads a PEM file containing the issuer certificate and
// private key (possibly concatenated, in either order) and returns the
// parsed Material.
func LoadMaterial(path string) (*Material, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewConfigError("issuer-cert", err)
	}

	var (
		cert *x509.Certificate
		key  crypto.Signer
	)

	rest := raw

	for {
		var block *pem.Block

		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		switch block.Type {
		case "CERTIFICATE":
			c, err := x509.ParseCertificate(block.Bytes)
			if err != nil {
				return nil, apperr.NewConfigError("issuer-cert", fmt.Errorf("parse certificate: %w", err))
			}

			cert = c
		default:
			k, err := parsePrivateKey(block)
			if err == nil {
				key = k
			}
		}
	}

	if cert == nil {
		return nil, apperr.NewConfigError("issuer-cert", fmt.Errorf("no certificate found in %s", path))
	}

	if key == nil {
		return nil, apperr.NewConfigError("issuer-cert", fmt.Errorf("no private key found in %s", path))
	}

	return &Material{Certificate: cert, PrivateKey: key}, nil
}

// LoadCertificates reads every CERTIFICATE block from a PEM file and
// returns them in file order. Used for the additional verify-cert
// trust-anchor files, which carry no private key; the issuer's own
// certificate is loaded by LoadMaterial.
func LoadCertificates(path string) ([]*x509.Certificate, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, apperr.NewConfigError("verify-cert", err)
	}

	var certs []*x509.Certificate

	rest := raw

	for {
		var block *pem.Block

		block, rest = pem.Decode(rest)
		if block == nil {
			break
		}

		if block.Type != "CERTIFICATE" {
			continue
		}

		cert, err := x509.ParseCertificate(block.Bytes)
		if err != nil {
			return nil, apperr.NewConfigError("verify-cert", fmt.Errorf("parse certificate in %s: %w", path, err))
		}

		certs = append(certs, cert)
	}

	if len(certs) == 0 {
		return nil, apperr.NewConfigError("verify-cert", fmt.Errorf("no certificate found in %s", path))
	}

	return certs, nil
}

func parsePrivateKey(block *pem.Block) (crypto.Signer, error) {
	if key, err := x509.ParsePKCS8PrivateKey(block.Bytes); err == nil {
		signer, ok := key.(crypto.Signer)
		if !ok {
			return nil, fmt.Errorf("PKCS8 key is not a signer")
		}

		return signer, nil
	}

	if key, err := x509.ParsePKCS1PrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	if key, err := x509.ParseECPrivateKey(block.Bytes); err == nil {
		return key, nil
	}

	return nil, fmt.Errorf("unrecognized private key PEM block %q", block.Type)
}

// Issuer signs leaf certificates off one Material, for a configured
// validity period.
type Issuer struct {
	material     *Material
	validityDays int
}

// New returns an Issuer that signs leaves valid for validityDays days
// (spec.md §6: 1-3560).
func New(material *Material, validityDays int) (*Issuer, error) {
	if material == nil {
		return nil, apperr.NewConfigError("issuer-cert", fmt.Errorf("issuer material is required"))
	}

	if validityDays < 1 || validityDays > 3560 {
		return nil, apperr.NewConfigError("validity-days", fmt.Errorf("must be in [1, 3560]"))
	}

	return &Issuer{material: material, validityDays: validityDays}, nil
}

// oidIPsecEndSystem is the "IPsec End System" extended key usage OID
// (1.3.6.1.5.5.7.3.5).
var oidIPsecEndSystem = asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 5}

// IssueLeaf signs a new leaf certificate for pub, for the named
// device, per spec.md §4.3: Subject CN=<device_name> plus copied
// O/OU/L/ST/C attributes (in source order, duplicates preserved);
// Issuer is the issuer certificate's own Issuer DN (not its Subject —
// preserved deliberately per spec.md §9); validity
// [now, now+validityDays]; BasicConstraints{CA=false} critical,
// KeyUsage{digitalSignature,keyEncipherment} critical,
// ExtKeyUsage{serverAuth,clientAuth,IPsec End System} non-critical,
// SAN{URI=device_name} non-critical; signed SHA-256 with the issuer
// key's own algorithm.
func (iss *Issuer) IssueLeaf(pub crypto.PublicKey, deviceName string) (der []byte, cert *x509.Certificate, err error) {
	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), serialBits))
	if err != nil {
		return nil, nil, fmt.Errorf("generate serial: %w", err)
	}

	notBefore := time.Now().UTC()
	notAfter := notBefore.AddDate(0, 0, iss.validityDays)

	sanURI, err := url.Parse(deviceName)
	if err != nil {
		return nil, nil, apperr.NewProtocolError(fmt.Sprintf("device name %q is not a valid SAN URI: %v", deviceName, err))
	}

	template := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               buildSubject(deviceName, iss.material.Certificate.Subject),
		NotBefore:             notBefore,
		NotAfter:              notAfter,
		BasicConstraintsValid: true,
		IsCA:                  false,
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		UnknownExtKeyUsage:    []asn1.ObjectIdentifier{oidIPsecEndSystem},
		URIs:                  []*url.URL{sanURI},
		SignatureAlgorithm:    signatureAlgorithmFor(iss.material.PrivateKey),
	}

	// The leaf's Issuer field is the issuer certificate's own Issuer
	// DN, not its Subject: construct a synthetic "parent" whose
	// Subject equals that DN so x509.CreateCertificate copies it in
	// verbatim, then sign with the real issuer key.
	parent := &x509.Certificate{Subject: iss.material.Certificate.Issuer}

	der, err = x509.CreateCertificate(rand.Reader, template, parent, pub, iss.material.PrivateKey)
	if err != nil {
		return nil, nil, fmt.Errorf("sign leaf certificate: %w", err)
	}

	cert, err = x509.ParseCertificate(der)
	if err != nil {
		return nil, nil, fmt.Errorf("parse signed leaf: %w", err)
	}

	return der, cert, nil
}

// buildSubject returns CN=deviceName followed by every O/OU/L/ST/C
// attribute copied verbatim, in source order (duplicates preserved),
// from issuerSubject.
func buildSubject(deviceName string, issuerSubject pkix.Name) pkix.Name {
	subject := pkix.Name{CommonName: deviceName}

	for _, atv := range issuerSubject.Names {
		if !copiedSubjectOIDs[atv.Type.String()] {
			continue
		}

		subject.ExtraNames = append(subject.ExtraNames, atv)
	}

	return subject
}

func signatureAlgorithmFor(key crypto.Signer) x509.SignatureAlgorithm {
	switch key.(type) {
	case *rsa.PrivateKey:
		return x509.SHA256WithRSA
	case *ecdsa.PrivateKey:
		return x509.ECDSAWithSHA256
	default:
		return x509.UnknownSignatureAlgorithm
	}
}

// PEMEncode returns the PEM encoding of a DER certificate.
func PEMEncode(der []byte) []byte {
	return pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
}
