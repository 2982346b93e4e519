// Package signer implements the remote, stateless (beyond its in-process
// cache) key-holding oracle: it derives keysets on request, signs blinded
// messages, and verifies spent proofs. It never persists secret material;
// the root seed and any declared keyset live only in process memory.
package signer

import (
	"encoding/hex"
	"fmt"
	"sync"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paynet-mint/node/internal/bdhke"
	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/keyset"
	"github.com/paynet-mint/node/internal/obs"
)

// Signer holds the master private key and a process-local cache of every
// keyset it has been asked to declare this run. Safe for concurrent use.
type Signer struct {
	root   *hdkeychain.ExtendedKey
	log    obs.Logger
	mu     sync.RWMutex
	byId   map[cashu.KeysetId]*keyset.Keyset
}

func New(root *hdkeychain.ExtendedKey, log obs.Logger) *Signer {
	return &Signer{
		root: root,
		log:  log,
		byId: make(map[cashu.KeysetId]*keyset.Keyset),
	}
}

// DeclaredKeyset is the public view of a keyset this Signer has derived:
// its id and the sorted amount->pubkey map, never secret material.
type DeclaredKeyset struct {
	Id       cashu.KeysetId
	Unit     cashu.Unit
	Index    uint32
	MaxOrder uint32
	Keys     keyset.PublicKeys
}

// DeclareKeyset derives the BIP32 path m/0'/unit_idx'/index' and the
// max_order child keys under it, caches the full keyset (including secret
// material) in process memory, and returns its public view.
func (s *Signer) DeclareKeyset(unit cashu.Unit, index uint32, maxOrder uint32) (*DeclaredKeyset, error) {
	ks, err := keyset.Generate(s.root, unit, index, maxOrder)
	if err != nil {
		return nil, cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.HashToCurveFailedCode,
			"deriving keyset unit=%v index=%d: %v", unit, index, err)
	}

	s.mu.Lock()
	s.byId[ks.Id] = ks
	s.mu.Unlock()

	s.log.Infof("declared keyset %s unit=%v index=%d max_order=%d", ks.Id, unit, index, maxOrder)

	return &DeclaredKeyset{
		Id:       ks.Id,
		Unit:     ks.Unit,
		Index:    ks.DerivationPathIdx,
		MaxOrder: ks.MaxOrder,
		Keys:     ks.PublicKeys(),
	}, nil
}

// Rederive recomputes a previously-declared keyset from its persisted
// coordinates without requiring a prior DeclareKeyset call in this
// process — the path the Keyset Cache uses on a cold-start miss
// (spec.md §4.3).
func (s *Signer) Rederive(unit cashu.Unit, index, maxOrder uint32) (*DeclaredKeyset, error) {
	return s.DeclareKeyset(unit, index, maxOrder)
}

// SignRequest asks the signer to blind-sign B_ under (KeysetId, Amount).
type SignRequest struct {
	KeysetId cashu.KeysetId
	Amount   uint64
	B_       string
}

// SignBlindedMessages looks up the per-amount secret scalar for each
// request's keyset and signs it: C_ = k*B_, attaching a DLEQ proof.
func (s *Signer) SignBlindedMessages(reqs []SignRequest) (cashu.BlindedSignatures, error) {
	out := make(cashu.BlindedSignatures, 0, len(reqs))
	for _, r := range reqs {
		ks, kp, err := s.lookupAmountKey(r.KeysetId, r.Amount)
		if err != nil {
			return nil, err
		}

		bBytes, err := hex.DecodeString(r.B_)
		if err != nil {
			return nil, cashuerr.Buildf(cashuerr.Validation, cashuerr.StandardErrCode, "invalid B_: %v", err)
		}
		B_, err := secp256k1.ParsePubKey(bBytes)
		if err != nil {
			return nil, cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.InvalidSignatureErrCode, "invalid B_ point: %v", err)
		}

		C_ := bdhke.Sign(B_, kp.PrivateKey)

		dleq, err := bdhke.GenerateDLEQ(kp.PrivateKey, kp.PublicKey, B_, C_)
		if err != nil {
			return nil, cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.InvalidSignatureErrCode, "generating dleq: %v", err)
		}

		out = append(out, cashu.BlindedSignature{
			Amount: r.Amount,
			Id:     r.KeysetId,
			C_:     hex.EncodeToString(C_.SerializeCompressed()),
			DLEQ: &cashu.DLEQProof{
				E: hex.EncodeToString(dleq.E.Serialize()),
				S: hex.EncodeToString(dleq.S.Serialize()),
			},
		})
		_ = ks
	}
	return out, nil
}

// VerifyRequest asks the signer to check a proof against its keyset.
type VerifyRequest struct {
	KeysetId cashu.KeysetId
	Amount   uint64
	Secret   string
	C        string
}

// VerifyProofs checks k*HashToCurve(secret) == C for every request,
// returning the first failure it encounters.
func (s *Signer) VerifyProofs(reqs []VerifyRequest) error {
	for _, r := range reqs {
		_, kp, err := s.lookupAmountKey(r.KeysetId, r.Amount)
		if err != nil {
			return err
		}

		cBytes, err := hex.DecodeString(r.C)
		if err != nil {
			return cashuerr.Buildf(cashuerr.Validation, cashuerr.StandardErrCode, "invalid C: %v", err)
		}
		C, err := secp256k1.ParsePubKey(cBytes)
		if err != nil {
			return cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.InvalidProofErrCode, "invalid C point: %v", err)
		}

		ok, err := bdhke.Verify([]byte(r.Secret), kp.PrivateKey, C)
		if err != nil {
			return cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.HashToCurveFailedCode, "verifying proof: %v", err)
		}
		if !ok {
			return cashuerr.InvalidProof
		}
	}
	return nil
}

func (s *Signer) lookupAmountKey(id cashu.KeysetId, amount uint64) (*keyset.Keyset, keyset.KeyPair, error) {
	s.mu.RLock()
	ks, ok := s.byId[id]
	s.mu.RUnlock()
	if !ok {
		return nil, keyset.KeyPair{}, cashuerr.Buildf(cashuerr.Validation, cashuerr.UnknownKeysetErrCode, "unknown keyset %s", id)
	}

	kp, ok := ks.Keys[amount]
	if !ok {
		return nil, keyset.KeyPair{}, cashuerr.Buildf(cashuerr.Validation, cashuerr.UnknownKeysetIdBlindCode, "no key for amount %d in keyset %s", amount, id)
	}

	return ks, kp, nil
}

// GetRootPubkey returns the master extended public key, a diagnostic
// endpoint proving which seed this signer instance holds without
// revealing it.
func (s *Signer) GetRootPubkey() (string, error) {
	neutered, err := s.root.Neuter()
	if err != nil {
		return "", fmt.Errorf("neutering root key: %w", err)
	}
	pub, err := neutered.ECPubKey()
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(pub.SerializeCompressed()), nil
}
