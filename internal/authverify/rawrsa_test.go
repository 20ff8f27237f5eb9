package authverify

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha1" //nolint:gosec // test fixture, matches production hash choice
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"
)

// signRaw computes the phone-style "private encrypt": m^d mod n. m
// must already have the target hash in its trailing bytes; this
// mirrors what a real phone's signature formatter produces, without
// this test reimplementing PKCS#1 padding.
func signRaw(t *testing.T, priv *rsa.PrivateKey, m *big.Int) []byte {
	t.Helper()

	s := new(big.Int).Exp(m, priv.D, priv.N)

	return s.Bytes()
}

// messageWithTrailingHash builds an RSA-modulus-sized big.Int whose
// low-order bytes are hash, with arbitrary non-zero filler bytes
// ahead of it (standing in for whatever prefix the phone's formatter
// uses — verifyRawRSA never looks at it).
func messageWithTrailingHash(keySize int, hash []byte) *big.Int {
	buf := make([]byte, keySize)
	for i := range buf {
		buf[i] = 0x01
	}

	copy(buf[keySize-len(hash):], hash)
	buf[0] = 0x00 // keep the integer below the modulus

	return new(big.Int).SetBytes(buf)
}

func TestVerifyRawRSA(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	hash := sha1.Sum([]byte("auth data"))
	m := messageWithTrailingHash(priv.Size(), hash[:])
	validSig := signRaw(t, priv, m)

	cases := []struct {
		name string
		pub  *rsa.PublicKey
		sig  []byte
		hash []byte
		want bool
	}{
		{"valid", &priv.PublicKey, validSig, hash[:], true},
		{"wrong hash", &priv.PublicKey, validSig, sha1.New().Sum(nil), false},
		{"empty signature", &priv.PublicKey, nil, hash[:], false},
		{"empty hash", &priv.PublicKey, validSig, nil, false},
		{"nil key", nil, validSig, hash[:], false},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			got := verifyRawRSA(tc.pub, tc.sig, tc.hash)
			require.Equal(t, tc.want, got)
		})
	}
}

func TestVerifyRawRSA_SignatureNotLessThanModulusRejected(t *testing.T) {
	t.Parallel()

	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)

	oversized := new(big.Int).Add(priv.N, big.NewInt(1)).Bytes()

	require.False(t, verifyRawRSA(&priv.PublicKey, oversized, []byte("hash")))
}
