package authverify

import (
	"crypto/rsa"
	"crypto/subtle"
	"math/big"
)

// verifyRawRSA implements the phone's "public decrypt" check: treat
// signed as a big-endian integer s, compute s^e mod n, and compare the
// trailing len(hash) bytes of the result to hash. This deliberately
// does not use a padded PKCS#1 v1.5 verifier: the phone's signature
// formatter omits the DigestInfo prefix a standard verifier expects,
// so decoding it with crypto/rsa.VerifyPKCS1v15 would always fail.
func verifyRawRSA(pub *rsa.PublicKey, signed []byte, hash []byte) bool {
	if pub == nil || len(signed) == 0 || len(hash) == 0 {
		return false
	}

	n := pub.N

	s := new(big.Int).SetBytes(signed)
	if s.Sign() < 0 || s.Cmp(n) >= 0 {
		return false
	}

	e := big.NewInt(int64(pub.E))

	decrypted := new(big.Int).Exp(s, e, n)

	decBytes := decrypted.Bytes()
	if len(decBytes) < len(hash) {
		return false
	}

	tail := decBytes[len(decBytes)-len(hash):]

	return subtle.ConstantTimeCompare(tail, hash) == 1
}
