// Package starknet implements the Starknet liquidity source's wire-level
// primitives: field elements, Poseidon-based invoice id derivation,
// payment payload construction, and on-chain/mint unit conversion
// (spec.md §4.6, §6 "Payment-request payload (Starknet)").
package starknet

import (
	"encoding/hex"
	"fmt"
	"math/big"
)

// Felt is a Starknet field element: an integer reduced modulo the
// Stark prime, serialized as 32 bytes big-endian on the wire.
type Felt struct {
	v *big.Int
}

// starkPrime is 2^251 + 17*2^192 + 1, the modulus of the Stark field.
var starkPrime = func() *big.Int {
	p := new(big.Int).Lsh(big.NewInt(1), 251)
	term := new(big.Int).Lsh(big.NewInt(17), 192)
	p.Add(p, term)
	p.Add(p, big.NewInt(1))
	return p
}()

func FeltFromUint64(v uint64) Felt {
	return Felt{v: new(big.Int).SetUint64(v)}
}

// FeltFromBytes reduces a big-endian byte string modulo the Stark prime.
func FeltFromBytes(b []byte) Felt {
	v := new(big.Int).SetBytes(b)
	v.Mod(v, starkPrime)
	return Felt{v: v}
}

// FeltFromHex parses a "0x"-prefixed or bare hex string.
func FeltFromHex(s string) (Felt, error) {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		s = s[2:]
	}
	v, ok := new(big.Int).SetString(s, 16)
	if !ok {
		return Felt{}, fmt.Errorf("invalid felt hex %q", s)
	}
	v.Mod(v, starkPrime)
	return Felt{v: v}, nil
}

func (f Felt) BigInt() *big.Int { return new(big.Int).Set(f.v) }

// Bytes32 serializes f as 32 bytes big-endian, zero-padded.
func (f Felt) Bytes32() [32]byte {
	var out [32]byte
	b := f.v.Bytes()
	copy(out[32-len(b):], b)
	return out
}

func (f Felt) String() string {
	return "0x" + hex.EncodeToString(f.v.Bytes())
}

func (f Felt) MarshalJSON() ([]byte, error) {
	return []byte(`"` + f.String() + `"`), nil
}

func (f *Felt) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("felt: invalid json %s", data)
	}
	parsed, err := FeltFromHex(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*f = parsed
	return nil
}
