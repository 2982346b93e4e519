// Package cashu holds the core wire and domain types shared by the signer,
// the mint engines and the Request API: units, amounts, keyset identifiers,
// blinded messages/signatures and proofs.
package cashu

import (
	"encoding/hex"
	"fmt"
)

// Unit is the enumerated currency tag a keyset and its proofs are
// denominated in. The initial deployment carries a single tag.
type Unit int

const (
	MilliStrk Unit = iota
)

func (u Unit) String() string {
	switch u {
	case MilliStrk:
		return "millistrk"
	default:
		return "unknown"
	}
}

func ParseUnit(s string) (Unit, error) {
	switch s {
	case "millistrk":
		return MilliStrk, nil
	default:
		return 0, fmt.Errorf("unknown unit %q", s)
	}
}

// UnitIndex returns the hardened BIP32 derivation index reserved for this
// unit, used as the second path component (m/0'/unit_idx'/index').
func (u Unit) UnitIndex() uint32 {
	return uint32(u)
}

const (
	// StarknetMethod is the only payment method this deployment enables.
	StarknetMethod = "starknet"
)

// KeysetId is the 8-byte identifier derived from a keyset's sorted
// amount->pubkey map (stored and transmitted hex-encoded, "00" + 14 hex
// chars of a SHA-256 digest per spec).
type KeysetId string

func (k KeysetId) String() string { return string(k) }

func (k KeysetId) Bytes() ([]byte, error) {
	return hex.DecodeString(string(k))
}

// AmountSplit returns the list of powers of two summing to amount, e.g.
// 13 -> [1, 4, 8]; used to build output denominations for mint/swap.
func AmountSplit(amount uint64) []uint64 {
	rv := make([]uint64, 0)
	for pos := 0; amount > 0; pos++ {
		if amount&1 == 1 {
			rv = append(rv, 1<<pos)
		}
		amount >>= 1
	}
	return rv
}

// BlindedMessage is the wallet's blinded secret submitted for signing,
// scoped to a keyset and an amount.
type BlindedMessage struct {
	Amount   uint64   `json:"amount"`
	Id       KeysetId `json:"id"`
	B_       string   `json:"B_"`
}

type BlindedMessages []BlindedMessage

func (bm BlindedMessages) Amount() uint64 {
	var total uint64
	for _, m := range bm {
		total += m.Amount
	}
	return total
}

// DLEQProof is the discrete-log-equality proof attached to a blind
// signature (supplemented feature, see DESIGN.md).
type DLEQProof struct {
	E string `json:"e"`
	S string `json:"s"`
}

// BlindedSignature is the signer's response to a BlindedMessage.
type BlindedSignature struct {
	Amount uint64     `json:"amount"`
	Id     KeysetId   `json:"id"`
	C_     string     `json:"C_"`
	DLEQ   *DLEQProof `json:"dleq,omitempty"`
}

type BlindedSignatures []BlindedSignature

func (bs BlindedSignatures) Amount() uint64 {
	var total uint64
	for _, s := range bs {
		total += s.Amount
	}
	return total
}

// Proof is the unblinded token: the bearer asset of the system. Identity
// for spend/dedup purposes is Y = HashToCurve(Secret), computed by callers
// rather than stored redundantly here.
type Proof struct {
	Amount uint64   `json:"amount"`
	Id     KeysetId `json:"id"`
	Secret string   `json:"secret"`
	C      string   `json:"C"`
}

type Proofs []Proof

func (p Proofs) Amount() uint64 {
	var total uint64
	for _, proof := range p {
		total += proof.Amount
	}
	return total
}

// ProofState is the lifecycle state of a proof's secret Y, as returned by
// CheckState.
type ProofState int

const (
	Unspent ProofState = iota
	Pending
	Spent
)

func (s ProofState) String() string {
	switch s {
	case Unspent:
		return "UNSPENT"
	case Pending:
		return "PENDING"
	case Spent:
		return "SPENT"
	default:
		return "UNKNOWN"
	}
}
