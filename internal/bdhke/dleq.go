package bdhke

import (
	"crypto/sha256"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"
)

// DLEQ is a discrete-log-equality proof binding a blind signature C_ to the
// signer's committed public key A without revealing the secret scalar k.
// Supplements the base signing path: the signer always attaches one, and a
// wallet may verify it instead of trusting the signer blindly.
type DLEQ struct {
	E *secp256k1.PrivateKey
	S *secp256k1.PrivateKey
}

func hashDLEQ(points ...*secp256k1.PublicKey) *secp256k1.PrivateKey {
	h := sha256.New()
	for _, p := range points {
		h.Write(p.SerializeCompressed())
	}
	sum := h.Sum(nil)
	scalar := secp256k1.PrivKeyFromBytes(sum)
	return scalar
}

// GenerateDLEQ produces a proof that C_ = k*B_ under the public commitment
// A = k*G, without revealing k beyond what the signature already implies.
func GenerateDLEQ(k *secp256k1.PrivateKey, A *secp256k1.PublicKey, B_, C_ *secp256k1.PublicKey) (*DLEQ, error) {
	p, err := secp256k1.GeneratePrivateKey()
	if err != nil {
		return nil, err
	}

	R1 := p.PubKey()
	R2 := Sign(B_, p)

	e := hashDLEQ(R1, R2, A, C_, B_)

	var s secp256k1.ModNScalar
	s.Mul2(&e.Key, &k.Key).Add(&p.Key)
	sKey := secp256k1.NewPrivateKey(&s)

	return &DLEQ{E: e, S: sKey}, nil
}

// VerifyDLEQ checks a signer-produced DLEQ proof over (A, B_, C_).
func VerifyDLEQ(dleq *DLEQ, A, B_, C_ *secp256k1.PublicKey) bool {
	// R1 = sG - eA
	sG := dleq.S.PubKey()
	eA := Sign(A, dleq.E)
	var sGPoint, eAPoint, eANeg, r1Point secp256k1.JacobianPoint
	sG.AsJacobian(&sGPoint)
	eA.AsJacobian(&eAPoint)
	eANeg = eAPoint
	eANeg.Y.Negate(1)
	eANeg.Y.Normalize()
	secp256k1.AddNonConst(&sGPoint, &eANeg, &r1Point)
	r1Point.ToAffine()
	R1 := secp256k1.NewPublicKey(&r1Point.X, &r1Point.Y)

	// R2 = sB_ - eC_
	sB_ := Sign(B_, dleq.S)
	eC_ := Sign(C_, dleq.E)
	var sBPoint, eCPoint, eCNeg, r2Point secp256k1.JacobianPoint
	sB_.AsJacobian(&sBPoint)
	eC_.AsJacobian(&eCPoint)
	eCNeg = eCPoint
	eCNeg.Y.Negate(1)
	eCNeg.Y.Normalize()
	secp256k1.AddNonConst(&sBPoint, &eCNeg, &r2Point)
	r2Point.ToAffine()
	R2 := secp256k1.NewPublicKey(&r2Point.X, &r2Point.Y)

	expected := hashDLEQ(R1, R2, A, C_, B_)
	return expected.Key.Equals(&dleq.E.Key)
}
