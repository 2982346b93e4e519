// Package bdhke implements the Blind Diffie-Hellman Key Exchange signing
// discipline used to issue and verify tokens: HashToCurve, Blind, Sign,
// Unblind and Verify over secp256k1.
package bdhke

import (
	"crypto/sha256"
	"encoding/binary"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// domainSeparator is prepended to every HashToCurve input so the mapping
// cannot collide with an unrelated use of SHA-256 over the same bytes.
var domainSeparator = []byte("Secp256k1_HashToCurve_Cashu_")

// maxHashToCurveIterations bounds the counter loop; with a 256-bit digest
// the probability of never landing on a valid x-coordinate within this
// many tries is negligible, so exceeding it indicates a construction bug
// rather than bad luck.
const maxHashToCurveIterations = 1 << 16

// HashToCurve deterministically maps an arbitrary message to a secp256k1
// point. It computes msgHash = SHA-256(domainSeparator || message), then,
// for counter = 0, 1, ..., hashes domainSeparator || msgHash ||
// counter(4 bytes LE) and returns the first digest that, prefixed with
// 0x02, parses as a valid compressed point.
func HashToCurve(message []byte) (*secp256k1.PublicKey, error) {
	h := sha256.New()
	h.Write(domainSeparator)
	h.Write(message)
	msgHash := h.Sum(nil)

	var counter uint32
	for i := 0; i < maxHashToCurveIterations; i++ {
		h := sha256.New()
		h.Write(domainSeparator)
		h.Write(msgHash)

		var counterBytes [4]byte
		binary.LittleEndian.PutUint32(counterBytes[:], counter)
		h.Write(counterBytes[:])

		candidate := h.Sum(nil)
		compressed := append([]byte{0x02}, candidate...)
		if point, err := secp256k1.ParsePubKey(compressed); err == nil && point.IsOnCurve() {
			return point, nil
		}
		counter++
	}
	return nil, errHashToCurveExhausted
}

var errHashToCurveExhausted = hashToCurveError{}

type hashToCurveError struct{}

func (hashToCurveError) Error() string { return "hash to curve did not converge" }

// Blind computes B_ = Y + rG for Y = HashToCurve(secret), returning the
// blinded point and the blinding scalar r (freshly generated if
// blindingFactor is nil, otherwise derived from the given bytes — used by
// callers that need a deterministic r, e.g. DLEQ verification replay).
func Blind(secret []byte, blindingFactor []byte) (B_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, err error) {
	Y, err := HashToCurve(secret)
	if err != nil {
		return nil, nil, err
	}

	var yPoint, rPoint, blinded secp256k1.JacobianPoint
	Y.AsJacobian(&yPoint)

	var rPriv *secp256k1.PrivateKey
	var rPub *secp256k1.PublicKey
	if blindingFactor == nil {
		rPriv, err = secp256k1.GeneratePrivateKey()
		if err != nil {
			return nil, nil, err
		}
		rPub = rPriv.PubKey()
	} else {
		rPriv, rPub = btcec.PrivKeyFromBytes(blindingFactor)
	}
	rPub.AsJacobian(&rPoint)

	secp256k1.AddNonConst(&yPoint, &rPoint, &blinded)
	blinded.ToAffine()
	return secp256k1.NewPublicKey(&blinded.X, &blinded.Y), rPriv, nil
}

// Sign computes C_ = k * B_, the signer's blind signature over a blinded
// message using the per-amount secret scalar k.
func Sign(B_ *secp256k1.PublicKey, k *secp256k1.PrivateKey) *secp256k1.PublicKey {
	var bPoint, result secp256k1.JacobianPoint
	B_.AsJacobian(&bPoint)
	secp256k1.ScalarMultNonConst(&k.Key, &bPoint, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// Unblind computes C = C_ - r*K, recovering the wallet-visible signature
// over the original (unblinded) secret.
func Unblind(C_ *secp256k1.PublicKey, r *secp256k1.PrivateKey, K *secp256k1.PublicKey) *secp256k1.PublicKey {
	var kPoint, rKPoint, cPoint, result secp256k1.JacobianPoint
	K.AsJacobian(&kPoint)

	var rNeg secp256k1.ModNScalar
	rNeg.NegateVal(&r.Key)
	secp256k1.ScalarMultNonConst(&rNeg, &kPoint, &rKPoint)

	C_.AsJacobian(&cPoint)
	secp256k1.AddNonConst(&cPoint, &rKPoint, &result)
	result.ToAffine()
	return secp256k1.NewPublicKey(&result.X, &result.Y)
}

// Verify checks that k * HashToCurve(secret) == C, the signer-side proof
// verification rule.
func Verify(secret []byte, k *secp256k1.PrivateKey, C *secp256k1.PublicKey) (bool, error) {
	Y, err := HashToCurve(secret)
	if err != nil {
		return false, err
	}
	var yPoint, result secp256k1.JacobianPoint
	Y.AsJacobian(&yPoint)
	secp256k1.ScalarMultNonConst(&k.Key, &yPoint, &result)
	result.ToAffine()
	expected := secp256k1.NewPublicKey(&result.X, &result.Y)
	return C.IsEqual(expected), nil
}
