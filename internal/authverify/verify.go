// Package authverify implements CAPF's phone-side authentication
// checks (spec.md §4.4): trust-anchor chain verification, the manual
// raw-RSA/ECDSA signature checks over the phone's auth data, and the
// optional Cisco SUDI attestation check.
package authverify

import (
	"bytes"
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // required by the phone's signature scheme, not used for security here
	"crypto/sha512"
	"crypto/x509"
	"encoding/binary"
	"fmt"

	"github.com/usecallmanagernz/daemons/internal/apperr"
	"github.com/usecallmanagernz/daemons/internal/tlv"
)

// Hash algorithm codes carried in SHA2_SIGNED_DATA and SUDI segments
// (spec.md §6).
const (
	HashSHA1   byte = 1
	HashSHA256 byte = 2
	HashSHA512 byte = 3
)

// SUDI segment tags (spec.md §4.4): the cert, then its SHA-1 and
// SHA-512 signatures over the SUDI auth_data.
const (
	sudiTagCert         tlv.Tag = 0x00
	sudiTagSignedSHA1   tlv.Tag = 0x01
	sudiTagSignedSHA512 tlv.Tag = 0x03
)

// Verifier holds the ordered trust anchors used both for phone
// certificate chain checks and for SUDI chain checks: the CAPF issuer
// certificate first, then any configured additional verify-certificate
// files, in configuration order.
type Verifier struct {
	anchors []*x509.Certificate
}

// NewVerifier returns a Verifier trusting anchors, in the given order.
func NewVerifier(anchors []*x509.Certificate) *Verifier {
	return &Verifier{anchors: anchors}
}

// VerifyChain implements spec.md §4.4's chain check: the first anchor
// whose Subject equals cert's Issuer, and whose public key validates
// cert's signature over its TBSCertificate. Deliberately not
// cert.Verify(): no expiry or name-constraint enforcement is wanted.
func (v *Verifier) VerifyChain(cert *x509.Certificate) error {
	for _, anchor := range v.anchors {
		if !bytes.Equal(anchor.RawSubject, cert.RawIssuer) {
			continue
		}

		if err := anchor.CheckSignature(cert.SignatureAlgorithm, cert.RawTBSCertificate, cert.Signature); err != nil {
			continue
		}

		return nil
	}

	return apperr.NewAuthError("unknown certificate issuer")
}

// PhoneAuthInput carries the elements spec.md §4.4 reads out of a
// CAPF AUTH_RESPONSE when the device's authentication mode is
// certificate.
type PhoneAuthInput struct {
	SessionID      uint32
	DeviceName     string
	CertificateDER []byte
	SignedData     []byte // SIGNED_DATA: raw signature, SHA-1
	SHA2HashAlgo   byte   // SHA2_SIGNED_DATA hash_algo byte; must be HashSHA512
	SHA2Signature  []byte // SHA2_SIGNED_DATA signature
	SUDIData       []byte // optional; nil/empty if absent
}

// VerifyPhoneAuth runs the full certificate-mode authentication check:
// chain verification, then the SHA-1 and SHA-512 signature checks over
// auth_data = device_name || 0x00 || cert_DER, then (if present) the
// SUDI check.
func (v *Verifier) VerifyPhoneAuth(in PhoneAuthInput) error {
	cert, err := x509.ParseCertificate(in.CertificateDER)
	if err != nil {
		return apperr.WrapAuthError("malformed phone certificate", err)
	}

	if err := v.VerifyChain(cert); err != nil {
		return err
	}

	if in.SHA2HashAlgo != HashSHA512 {
		return apperr.NewAuthError("invalid SHA2 hash-algorithm")
	}

	authData := buildAuthData(in.DeviceName, in.CertificateDER)
	sha1Sum := sha1.Sum(authData) //nolint:gosec // phone-mandated, see package doc
	sha512Sum := sha512.Sum512(authData)

	if err := verifySignaturePair(cert.PublicKey, in.SignedData, sha1Sum[:], in.SHA2Signature, sha512Sum[:]); err != nil {
		return err
	}

	if len(in.SUDIData) == 0 {
		return nil
	}

	return v.verifySUDI(in.SessionID, in.SUDIData)
}

// buildAuthData concatenates the device name, a NUL separator, and
// the certificate DER, per spec.md §4.4.
func buildAuthData(deviceName string, certDER []byte) []byte {
	data := make([]byte, 0, len(deviceName)+1+len(certDER))
	data = append(data, deviceName...)
	data = append(data, 0x00)
	data = append(data, certDER...)

	return data
}

// verifySignaturePair checks both the SHA-1 and SHA-512 signatures
// against pub, using raw-RSA "public decrypt" for RSA keys and
// standard ECDSA verification for EC keys.
func verifySignaturePair(pub any, sig1 []byte, hash1 []byte, sig2 []byte, hash2 []byte) error {
	switch key := pub.(type) {
	case *rsa.PublicKey:
		if !verifyRawRSA(key, sig1, hash1) {
			return apperr.NewAuthError("bad SIGNED_DATA signature")
		}

		if !verifyRawRSA(key, sig2, hash2) {
			return apperr.NewAuthError("bad SHA2_SIGNED_DATA signature")
		}
	case *ecdsa.PublicKey:
		if !ecdsa.VerifyASN1(key, hash1, sig1) {
			return apperr.NewAuthError("bad SIGNED_DATA signature")
		}

		if !ecdsa.VerifyASN1(key, hash2, sig2) {
			return apperr.NewAuthError("bad SHA2_SIGNED_DATA signature")
		}
	default:
		return apperr.NewAuthError(fmt.Sprintf("unsupported phone public key type %T", pub))
	}

	return nil
}

// verifySUDI implements spec.md §4.4's optional SUDI check: parse the
// three length-tagged segments (sharing the wire TLV's
// tag(u8)|length(u16)|value shape), chain-verify the SUDI certificate,
// and — only if its key is RSA — verify both raw-RSA signatures over
// auth_data = session_id_le(u32) || sudi_cert_DER.
func (v *Verifier) verifySUDI(sessionID uint32, sudiData []byte) error {
	segments, err := tlv.ParseElements(sudiData)
	if err != nil {
		return apperr.WrapAuthError("malformed SUDI data", err)
	}

	sudiCertDER, ok := segments.Bytes(sudiTagCert)
	if !ok {
		return apperr.NewAuthError("SUDI data missing certificate segment")
	}

	signedSHA1, ok := segments.Bytes(sudiTagSignedSHA1)
	if !ok {
		return apperr.NewAuthError("SUDI data missing SHA-1 signature segment")
	}

	signedSHA512, ok := segments.Bytes(sudiTagSignedSHA512)
	if !ok {
		return apperr.NewAuthError("SUDI data missing SHA-512 signature segment")
	}

	sudiCert, err := x509.ParseCertificate(sudiCertDER)
	if err != nil {
		return apperr.WrapAuthError("malformed SUDI certificate", err)
	}

	if err := v.VerifyChain(sudiCert); err != nil {
		return err
	}

	rsaPub, ok := sudiCert.PublicKey.(*rsa.PublicKey)
	if !ok {
		// Non-RSA SUDI keys are skipped per spec.md §4.4.
		return nil
	}

	authData := make([]byte, 4+len(sudiCertDER))
	binary.LittleEndian.PutUint32(authData[:4], sessionID)
	copy(authData[4:], sudiCertDER)

	sha1Sum := sha1.Sum(authData) //nolint:gosec // phone-mandated, see package doc
	sha512Sum := sha512.Sum512(authData)

	if !verifyRawRSA(rsaPub, signedSHA1, sha1Sum[:]) {
		return apperr.NewAuthError("bad SUDI SHA-1 signature")
	}

	if !verifyRawRSA(rsaPub, signedSHA512, sha512Sum[:]) {
		return apperr.NewAuthError("bad SUDI SHA-512 signature")
	}

	return nil
}
