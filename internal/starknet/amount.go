package starknet

import "math/big"

// unitScale is the on-chain-to-mint-unit conversion factor of spec.md
// §6: "amount is in on-chain units (u256); conversion to mint units is
// amount_on_chain / 10^15".
var unitScale = big.NewInt(1_000_000_000_000_000)

// OnChainToMintUnits converts a u256 on-chain amount to mint units,
// rounding any remainder up into an extra unit (spec.md §4.7 step 2).
func OnChainToMintUnits(onChain *big.Int) uint64 {
	q, r := new(big.Int).QuoRem(onChain, unitScale, new(big.Int))
	if r.Sign() != 0 {
		q.Add(q, big.NewInt(1))
	}
	return q.Uint64()
}

// MintUnitsToOnChain converts mint units back to a u256 on-chain amount,
// the inverse direction used when constructing a payment payload for a
// quote's expected_amount.
func MintUnitsToOnChain(units uint64) *big.Int {
	return new(big.Int).Mul(new(big.Int).SetUint64(units), unitScale)
}

// SplitU256 splits a big.Int into its low and high 128-bit felt halves,
// the representation Starknet's Cairo u256 type and this package's Call
// calldata expect.
func SplitU256(v *big.Int) (low, high Felt) {
	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	lowBig := new(big.Int).And(v, mask)
	highBig := new(big.Int).Rsh(v, 128)
	return FeltFromBytes(lowBig.Bytes()), FeltFromBytes(highBig.Bytes())
}

// CombineU128 reassembles a 128-bit amount from its low and high uint64
// halves — the split a Remittance event's amount_low/amount_high carry
// on the wire (spec.md §4.8), distinct from the felt-pair split of
// SplitU256 used for outgoing calldata.
func CombineU128(low, high uint64) *big.Int {
	v := new(big.Int).Lsh(new(big.Int).SetUint64(high), 64)
	return v.Or(v, new(big.Int).SetUint64(low))
}
