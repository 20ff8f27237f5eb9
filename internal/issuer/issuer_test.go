package issuer_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/asn1"
	"math/big"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/usecallmanagernz/daemons/internal/issuer"
)

var oidBasicConstraints = asn1.ObjectIdentifier{2, 5, 29, 19}
var oidKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 15}
var oidExtKeyUsage = asn1.ObjectIdentifier{2, 5, 29, 37}
var oidSAN = asn1.ObjectIdentifier{2, 5, 29, 17}

func newIssuerMaterial(t *testing.T) *issuer.Material {
	t.Helper()

	caKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	require.NoError(t, err)

	// Give the operator CA a Subject *and* a distinct Issuer DN (as if
	// it were itself issued by some root), with duplicate OU values in
	// a specific order, so the copy-order/duplicate-preservation
	// behavior and the Issuer-from-Issuer behavior are both exercised.
	issuerDN := pkix.Name{
		CommonName:         "Operator Root",
		Organization:       []string{"Example Corp"},
		OrganizationalUnit: []string{"Unit A", "Unit B"},
		Country:            []string{"NZ"},
	}

	// The OU values go in ExtraNames so each is its own RDN: values
	// given via OrganizationalUnit share one multi-valued RDN, a DER
	// SET whose members are sorted on encoding, losing the order.
	caSubject := pkix.Name{
		CommonName:   "Operator CAPF CA",
		Organization: []string{"Example Corp"},
		Locality:     []string{"Auckland"},
		ExtraNames: []pkix.AttributeTypeAndValue{
			{Type: asn1.ObjectIdentifier{2, 5, 4, 11}, Value: "Unit B"},
			{Type: asn1.ObjectIdentifier{2, 5, 4, 11}, Value: "Unit A"},
		},
	}

	tmpl := &x509.Certificate{
		SerialNumber:          serial,
		Subject:               caSubject,
		Issuer:                issuerDN,
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:               time.Now().Add(24 * time.Hour * 365 * 10),
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		BasicConstraintsValid: true,
		IsCA:                  true,
	}

	// Self-signed for test purposes but with a forced Issuer field
	// different from Subject, matching how a real intermediate CA
	// certificate looks.
	parent := &x509.Certificate{Subject: issuerDN}

	der, err := x509.CreateCertificate(rand.Reader, tmpl, parent, &caKey.PublicKey, caKey)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &issuer.Material{Certificate: cert, PrivateKey: caKey}
}

func findExtension(cert *x509.Certificate, oid asn1.ObjectIdentifier) (pkix.Extension, bool) {
	for _, ext := range cert.Extensions {
		if ext.Id.Equal(oid) {
			return ext, true
		}
	}

	return pkix.Extension{}, false
}

func TestIssueLeaf_IssuerIsIssuerDNNotSubject(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)
	iss, err := issuer.New(material, 365)
	require.NoError(t, err)

	devKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, cert, err := iss.IssueLeaf(&devKey.PublicKey, "SEP001122334455")
	require.NoError(t, err)

	require.Equal(t, material.Certificate.Issuer.String(), cert.Issuer.String())
	require.NotEqual(t, material.Certificate.Subject.String(), cert.Issuer.String())
}

func TestIssueLeaf_SubjectCopiesOrderAndDuplicates(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)
	iss, err := issuer.New(material, 365)
	require.NoError(t, err)

	devKey, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	_, cert, err := iss.IssueLeaf(&devKey.PublicKey, "SEP001122334455")
	require.NoError(t, err)

	require.Equal(t, "SEP001122334455", cert.Subject.CommonName)

	// The CA Subject has OU=[Unit B, Unit A] (reversed vs the Issuer
	// DN's OU=[Unit A, Unit B]) plus Locality, but no Country; the
	// leaf's copied attributes must follow the CA's Subject order
	// exactly, including the duplicate OU values, and must not
	// contain Country (since the CA Subject has none).
	require.Equal(t, []string{"Unit B", "Unit A"}, cert.Subject.OrganizationalUnit)
	require.Equal(t, []string{"Auckland"}, cert.Subject.Locality)
	require.Empty(t, cert.Subject.Country)
}

func TestIssueLeaf_ValidityWindow(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)
	iss, err := issuer.New(material, 30)
	require.NoError(t, err)

	devKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	before := time.Now().UTC()
	_, cert, err := iss.IssueLeaf(&devKey.PublicKey, "SEP001122334455")
	require.NoError(t, err)
	after := time.Now().UTC()

	require.WithinDuration(t, before, cert.NotBefore, 2*time.Second)
	require.WithinDuration(t, before.AddDate(0, 0, 30), cert.NotAfter, 2*time.Second)
	require.True(t, !cert.NotAfter.Before(after.AddDate(0, 0, 30).Add(-2*time.Second)))
}

func TestIssueLeaf_ExtensionsPresentAndCriticality(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)
	iss, err := issuer.New(material, 365)
	require.NoError(t, err)

	devKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, cert, err := iss.IssueLeaf(&devKey.PublicKey, "SEP001122334455")
	require.NoError(t, err)

	bc, ok := findExtension(cert, oidBasicConstraints)
	require.True(t, ok, "BasicConstraints extension present")
	require.True(t, bc.Critical)
	require.False(t, cert.IsCA)

	ku, ok := findExtension(cert, oidKeyUsage)
	require.True(t, ok, "KeyUsage extension present")
	require.True(t, ku.Critical)
	require.Equal(t, x509.KeyUsageDigitalSignature|x509.KeyUsageKeyEncipherment, cert.KeyUsage)

	eku, ok := findExtension(cert, oidExtKeyUsage)
	require.True(t, ok, "ExtKeyUsage extension present")
	require.False(t, eku.Critical)
	require.Contains(t, cert.ExtKeyUsage, x509.ExtKeyUsageServerAuth)
	require.Contains(t, cert.ExtKeyUsage, x509.ExtKeyUsageClientAuth)
	require.Len(t, cert.UnknownExtKeyUsage, 1)
	require.True(t, cert.UnknownExtKeyUsage[0].Equal(asn1.ObjectIdentifier{1, 3, 6, 1, 5, 5, 7, 3, 5}))

	san, ok := findExtension(cert, oidSAN)
	require.True(t, ok, "SubjectAltName extension present")
	require.False(t, san.Critical)
	require.Len(t, cert.URIs, 1)
	require.Equal(t, "SEP001122334455", cert.URIs[0].String())
}

func TestIssueLeaf_SignatureAlgorithmMatchesIssuerKeyWithSHA256(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t) // ECDSA issuer key
	iss, err := issuer.New(material, 365)
	require.NoError(t, err)

	devKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	_, cert, err := iss.IssueLeaf(&devKey.PublicKey, "SEP001122334455")
	require.NoError(t, err)

	require.Equal(t, x509.ECDSAWithSHA256, cert.SignatureAlgorithm)
}

func TestNew_RejectsOutOfRangeValidity(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)

	_, err := issuer.New(material, 0)
	require.Error(t, err)

	_, err = issuer.New(material, 3561)
	require.Error(t, err)
}
