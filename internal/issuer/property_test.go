package issuer_test

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/require"

	"github.com/usecallmanagernz/daemons/internal/issuer"
)

// TestIssueLeaf_ValidityWindowProperty quantifies the validity-window
// invariant spec.md §4.3 states (NotBefore ~ now, NotAfter = NotBefore
// + validityDays) over arbitrary valid validityDays, rather than the
// single fixed value TestIssueLeaf_ValidityWindow checks. Key
// generation is expensive, so the issuer material and device key are
// built once and reused across iterations; only validityDays varies.
func TestIssueLeaf_ValidityWindowProperty(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)

	devKey, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 30
	properties := gopter.NewProperties(params)

	properties.Property("NotAfter is exactly NotBefore plus validityDays, for any valid validityDays", prop.ForAll(
		func(validityDays int) bool {
			iss, err := issuer.New(material, validityDays)
			if err != nil {
				return false
			}

			before := time.Now().UTC()

			_, cert, err := iss.IssueLeaf(&devKey.PublicKey, "SEP001122334455")
			if err != nil {
				return false
			}

			after := time.Now().UTC()

			if cert.NotBefore.Before(before.Add(-2*time.Second)) || cert.NotBefore.After(after.Add(2*time.Second)) {
				return false
			}

			wantNotAfter := cert.NotBefore.AddDate(0, 0, validityDays)

			return cert.NotAfter.Equal(wantNotAfter)
		},
		gen.IntRange(1, 3560),
	))

	properties.TestingRun(t)
}

// TestNew_ValidityRangeProperty quantifies the boundary check itself:
// any validityDays outside [1, 3560] must be rejected, any value
// inside must be accepted.
func TestNew_ValidityRangeProperty(t *testing.T) {
	t.Parallel()

	material := newIssuerMaterial(t)

	params := gopter.DefaultTestParameters()
	params.MinSuccessfulTests = 50
	properties := gopter.NewProperties(params)

	properties.Property("validityDays outside [1, 3560] is always rejected", prop.ForAll(
		func(validityDays int) bool {
			_, err := issuer.New(material, validityDays)

			return err != nil
		},
		gen.OneGenOf(gen.IntRange(-1000, 0), gen.IntRange(3561, 10000)),
	))

	properties.Property("validityDays inside [1, 3560] is always accepted", prop.ForAll(
		func(validityDays int) bool {
			_, err := issuer.New(material, validityDays)

			return err == nil
		},
		gen.IntRange(1, 3560),
	))

	properties.TestingRun(t)
}
