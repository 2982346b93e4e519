package starknet

import (
	"crypto/sha256"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// DeriveInvoiceId computes spec.md §4.6 step 3's invoice id for the
// Starknet liquidity source: invoice_id = Poseidon(quote_hash_felt,
// expiry, 2)[0], where quote_hash = SHA256(quote_id). The trailing 2
// domain-separates this call shape from other Poseidon uses in the
// contract the cashier withdraws against.
func DeriveInvoiceId(quoteId string, expiry int64) (Felt, error) {
	sum := sha256.Sum256([]byte(quoteId))
	quoteHash := FeltFromBytes(sum[:])

	inputs := []*big.Int{
		quoteHash.BigInt(),
		new(big.Int).SetInt64(expiry),
		big.NewInt(2),
	}
	h, err := poseidon.Hash(inputs)
	if err != nil {
		return Felt{}, err
	}
	return FeltFromBytes(h.Bytes()), nil
}
