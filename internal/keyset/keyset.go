// Package keyset implements keyset derivation: the BIP32 path walk from a
// root extended key down to a per-amount secp256k1 keypair, and the
// deterministic KeysetId computed from the resulting public material.
package keyset

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paynet-mint/node/internal/cashu"
)

// MaxOrder bounds max_order per spec.md §3: amounts 2^0..2^(max_order-1).
const MaxOrder = 64

// KeyPair is a derived (secret, public) pair serving one denomination.
type KeyPair struct {
	PrivateKey *secp256k1.PrivateKey
	PublicKey  *secp256k1.PublicKey
}

// Keyset is a family of per-amount signing keys under one derivation path,
// owned exclusively by the Signer (holds private material) or replicated
// read-only as public material by the Keyset Registry/Cache.
type Keyset struct {
	Id                cashu.KeysetId
	Unit              cashu.Unit
	Active            bool
	DerivationPathIdx uint32
	MaxOrder          uint32
	Keys              map[uint64]KeyPair
}

// PublicKeys is the amount -> public key map exported by a keyset, the
// shape stored in the cache and returned by Keys().
type PublicKeys map[uint64]*secp256k1.PublicKey

// DerivePath walks m/0'/unit_idx'/index' from the root extended key.
func DerivePath(root *hdkeychain.ExtendedKey, unit cashu.Unit, index uint32) (*hdkeychain.ExtendedKey, error) {
	purpose, err := root.Derive(hdkeychain.HardenedKeyStart + 0)
	if err != nil {
		return nil, fmt.Errorf("deriving purpose level: %w", err)
	}

	unitKey, err := purpose.Derive(hdkeychain.HardenedKeyStart + unit.UnitIndex())
	if err != nil {
		return nil, fmt.Errorf("deriving unit level: %w", err)
	}

	indexKey, err := unitKey.Derive(hdkeychain.HardenedKeyStart + index)
	if err != nil {
		return nil, fmt.Errorf("deriving index level: %w", err)
	}

	return indexKey, nil
}

// Generate derives a full keyset of maxOrder denominations (2^0..2^(maxOrder-1))
// under m/0'/unit_idx'/index', and computes its KeysetId.
func Generate(root *hdkeychain.ExtendedKey, unit cashu.Unit, index uint32, maxOrder uint32) (*Keyset, error) {
	if maxOrder == 0 || maxOrder > MaxOrder {
		return nil, fmt.Errorf("max_order must be in [1,%d], got %d", MaxOrder, maxOrder)
	}

	keysetPath, err := DerivePath(root, unit, index)
	if err != nil {
		return nil, err
	}

	keys := make(map[uint64]KeyPair, maxOrder)
	pubkeys := make(PublicKeys, maxOrder)
	for i := uint32(0); i < maxOrder; i++ {
		amount := uint64(1) << i
		amountKey, err := keysetPath.Derive(hdkeychain.HardenedKeyStart + i)
		if err != nil {
			return nil, fmt.Errorf("deriving amount level %d: %w", i, err)
		}

		priv, err := amountKey.ECPrivKey()
		if err != nil {
			return nil, err
		}
		pub, err := amountKey.ECPubKey()
		if err != nil {
			return nil, err
		}

		keys[amount] = KeyPair{PrivateKey: priv, PublicKey: pub}
		pubkeys[amount] = pub
	}

	return &Keyset{
		Id:                DeriveId(pubkeys),
		Unit:              unit,
		Active:             true,
		DerivationPathIdx: index,
		MaxOrder:          maxOrder,
		Keys:              keys,
	}, nil
}

// PublicKeys exports a keyset's public material.
func (ks *Keyset) PublicKeys() PublicKeys {
	pk := make(PublicKeys, len(ks.Keys))
	for amount, kp := range ks.Keys {
		pk[amount] = kp.PublicKey
	}
	return pk
}

// DeriveId computes the 8-byte KeysetId: sort public keys by amount
// ascending, concatenate their compressed encodings, SHA-256, prefix
// version byte "00" + first 14 hex chars.
func DeriveId(keys PublicKeys) cashu.KeysetId {
	type entry struct {
		amount uint64
		pub    *secp256k1.PublicKey
	}
	entries := make([]entry, 0, len(keys))
	for amount, pub := range keys {
		entries = append(entries, entry{amount, pub})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].amount < entries[j].amount })

	h := sha256.New()
	for _, e := range entries {
		h.Write(e.pub.SerializeCompressed())
	}

	return cashu.KeysetId("00" + hex.EncodeToString(h.Sum(nil))[:14])
}

// AmountForOrder returns the denomination served by derivation row k.
func AmountForOrder(k uint32) uint64 {
	return uint64(1) << k
}

// MaxAmount returns the largest single denomination a keyset of the given
// max_order can sign, i.e. 2^(max_order-1) — the upper bound enforced on
// individual proof/output amounts (spec.md §4.5).
func MaxAmount(maxOrder uint32) uint64 {
	if maxOrder == 0 {
		return 0
	}
	return uint64(1) << (maxOrder - 1)
}
