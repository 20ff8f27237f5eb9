package tvs

import (
	"fmt"
	"strings"

	"github.com/usecallmanagernz/daemons/internal/apperr"
)

// ParseRolesCSV splits a trust record's stored roles column into the
// ordered role-name slice it represents. An empty string yields no
// roles.
func ParseRolesCSV(csv string) ([]string, error) {
	if csv == "" {
		return nil, nil
	}

	parts := strings.Split(csv, ",")

	for _, role := range parts {
		if _, ok := roleCodes[role]; !ok {
			return nil, apperr.NewStoreError("parse_roles", fmt.Errorf("unknown role %q", role))
		}
	}

	return parts, nil
}

// PackRoles encodes roles, in the given order, as their packed u8
// role codes (spec.md §4.5).
func PackRoles(roles []string) ([]byte, error) {
	packed := make([]byte, len(roles))

	for i, role := range roles {
		code, ok := roleCodes[role]
		if !ok {
			return nil, apperr.NewStoreError("pack_roles", fmt.Errorf("unknown role %q", role))
		}

		packed[i] = code
	}

	return packed, nil
}

// EncodeRolesCSV joins roles (expected already in canonical order) for
// storage, primarily useful to tests seeding a trust record.
func EncodeRolesCSV(roles []string) string {
	return strings.Join(roles, ",")
}
