// Package tvs implements the TVS (Trust Verification Service) single
// request/response certificate-lookup protocol: spec.md §4.5's session
// engine, its gorm-backed trust-record store, and server wiring.
package tvs

import "github.com/usecallmanagernz/daemons/internal/tlv"

// Commands (spec.md §6).
const (
	cmdVerifyRequest  byte = 1
	cmdVerifyResponse byte = 2
)

// Element tags (spec.md §6).
const (
	tagDeviceName  tlv.Tag = 1
	tagCertificate tlv.Tag = 2
	tagStatus      tlv.Tag = 7
	tagRoles       tlv.Tag = 8
	tagTTL         tlv.Tag = 9
)

// STATUS values.
const (
	statusInvalid byte = 0
	statusValid   byte = 1
)

// Role codes (spec.md §4.5), in the canonical order roles are packed
// and the order the roles column lists them.
const (
	RoleSAST      = "SAST"
	RoleCCM       = "CCM"
	RoleCCMTFTP   = "CCM+TFTP"
	RoleTFTP      = "TFTP"
	RoleCAPF      = "CAPF"
	RoleAppServer = "APP-SERVER"
	RoleTVS       = "TVS"
)

var roleCodes = map[string]byte{
	RoleSAST:      0,
	RoleCCM:       1,
	RoleCCMTFTP:   2,
	RoleTFTP:      3,
	RoleCAPF:      4,
	RoleAppServer: 7,
	RoleTVS:       21,
}

// canonicalRoleOrder is the order spec.md §3 mandates for a
// comma-joined roles string.
var canonicalRoleOrder = []string{
	RoleSAST, RoleCCM, RoleCCMTFTP, RoleTFTP, RoleCAPF, RoleAppServer, RoleTVS,
}

// CanonicalRoleOrder returns the canonical role ordering spec.md §3
// mandates for the roles column.
func CanonicalRoleOrder() []string {
	order := make([]string, len(canonicalRoleOrder))
	copy(order, canonicalRoleOrder)

	return order
}

var verifyRequestSchema = tlv.Schema{
	Required: []tlv.Tag{tagDeviceName, tagCertificate},
	Allowed:  []tlv.Tag{tagDeviceName, tagCertificate},
}
