// Package capf implements the CAPF (Certificate Authority Proxy
// Function) enrollment protocol: the per-connection session state
// machine of spec.md §4.2, its gorm-backed device store, and the
// server wiring that hands accepted connections to that engine.
package capf

import "github.com/usecallmanagernz/daemons/internal/tlv"

// Commands. The distilled specification names these by role
// (AUTH_REQUEST, KEY_GEN_RESPONSE, ...) without fixing wire byte
// values, so this package assigns its own internally-consistent
// numbering, grouped in protocol order.
const (
	cmdAuthRequest       byte = 1
	cmdAuthResponse      byte = 2
	cmdKeyGenRequest     byte = 3
	cmdKeyGenResponse    byte = 4
	cmdRequestInProgress byte = 5
	cmdStoreCertRequest  byte = 6
	cmdStoreCertResponse byte = 7
	cmdFetchCertRequest  byte = 8
	cmdFetchCertResponse byte = 9
	cmdDeleteCertRequest byte = 10
	cmdDeleteCertResponse byte = 11
	cmdEndSession        byte = 12
)

// Element tags.
const (
	tagVersion        tlv.Tag = 1
	tagAuthType       tlv.Tag = 2
	tagDeviceName     tlv.Tag = 3
	tagPassword       tlv.Tag = 4
	tagCertificate    tlv.Tag = 5
	tagSignedData     tlv.Tag = 6
	tagSHA2SignedData tlv.Tag = 7
	tagSUDIData       tlv.Tag = 8
	tagReason         tlv.Tag = 9
	tagKeyType        tlv.Tag = 10
	tagKeySize        tlv.Tag = 11
	tagCurve          tlv.Tag = 12
	tagPublicKey      tlv.Tag = 13
	tagCertType       tlv.Tag = 14
)

// protocolVersion is the only VERSION value this implementation
// accepts (spec.md §4.2).
const protocolVersion = 3

// REASON values (spec.md §6).
const (
	reasonNoAction          byte = 0
	reasonUpdateCertificate byte = 1
	reasonInvalidElement    byte = 7
	reasonUnknownDevice     byte = 9
)

// AUTH_TYPE values (spec.md §6).
const (
	authTypeNone     byte = 0
	authTypePassword byte = 1
)

// CERTIFICATE_TYPE values (spec.md §6).
const (
	certTypeLSC byte = 1
	certTypeMIC byte = 2
)

// KEY_TYPE values (spec.md §6).
const (
	keyTypeRSA byte = 0
	keyTypeEC  byte = 1
)

// CURVE values (spec.md §6).
const (
	curveSecp256r1 byte = 0
	curveSecp384r1 byte = 1
	curveSecp521r1 byte = 2
)

var curveNames = map[byte]string{
	curveSecp256r1: "secp256r1",
	curveSecp384r1: "secp384r1",
	curveSecp521r1: "secp521r1",
}

var authResponseSchema = tlv.Schema{
	Required: []tlv.Tag{tagVersion, tagDeviceName},
	Allowed: []tlv.Tag{
		tagVersion, tagDeviceName, tagPassword,
		tagCertificate, tagSignedData, tagSHA2SignedData, tagSUDIData,
	},
}

var keyGenResponseSchema = tlv.Schema{
	Allowed: []tlv.Tag{tagPublicKey},
}

var storeCertResponseSchema = tlv.Schema{
	Allowed: []tlv.Tag{tagReason},
}

var fetchCertResponseSchema = tlv.Schema{
	Allowed: []tlv.Tag{tagReason, tagCertificate},
}

var deleteCertResponseSchema = tlv.Schema{
	Allowed: []tlv.Tag{tagReason},
}
