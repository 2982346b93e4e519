// Package ledger implements the Proof Ledger's verification and
// accounting rules shared by the Swap, Mint and Melt flows (spec.md
// §4.4, and the "inputs pass"/"outputs pass" of §4.5): duplicate
// detection, keyset lookups, binary-denomination and overflow-checked
// per-unit accumulation, and the Signer round trips those passes need.
package ledger

import (
	"context"
	"encoding/hex"
	"math/bits"

	"github.com/paynet-mint/node/internal/bdhke"
	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/keyset"
	"github.com/paynet-mint/node/internal/keysetcache"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/storage"
)

// SignerClient is the subset of *signer.Client the ledger needs to
// verify spent inputs and sign new outputs.
type SignerClient interface {
	VerifyProofs(ctx context.Context, req *signer.VerifyProofsRequest) (*signer.VerifyProofsResponse, error)
	SignBlindedMessages(ctx context.Context, req *signer.SignBlindedMessagesRequest) (*signer.SignBlindedMessagesResponse, error)
}

// Ledger performs the shared proof-ledger bookkeeping on top of the
// Keyset Cache and the Signer; it holds no storage.Tx itself — callers
// run it inside their own WithSerializableTx body so it composes with
// the Swap/Mint/Melt flows' own transaction boundaries.
type Ledger struct {
	cache  *keysetcache.Cache
	signer SignerClient
}

func New(cache *keysetcache.Cache, signerClient SignerClient) *Ledger {
	return &Ledger{cache: cache, signer: signerClient}
}

// InputsResult is the verified outcome of one inputs pass (spec.md
// §4.5 step 2): the computed y for each input in request order, and
// the checked per-unit sum.
type InputsResult struct {
	Ys             []string
	AmountsPerUnit map[cashu.Unit]uint64
}

// VerifyInputs runs the inputs pass: duplicate detection, keyset
// lookup (active or inactive — spec.md S3 "inactive keysets may be
// spent but not issued against"), binary-denomination and per-unit
// overflow-checked accumulation, then asks the Signer to verify every
// proof in one batched call. It does not touch storage; the caller is
// responsible for the at-most-once spend insert afterward.
func (l *Ledger) VerifyInputs(ctx context.Context, proofs cashu.Proofs) (*InputsResult, error) {
	seen := make(map[string]struct{}, len(proofs))
	ys := make([]string, len(proofs))
	amountsPerUnit := make(map[cashu.Unit]uint64)
	verifyItems := make([]signer.VerifyItem, len(proofs))

	for i, p := range proofs {
		y, err := hashToCurveHex(p.Secret)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[y]; dup {
			return nil, cashuerr.DuplicateInput
		}
		seen[y] = struct{}{}
		ys[i] = y

		info, err := l.cache.Info(ctx, p.Id)
		if err != nil {
			return nil, cashuerr.UnknownKeyset
		}
		if !isBinaryDenomination(p.Amount, info.MaxOrder) {
			return nil, cashuerr.Buildf(cashuerr.Validation, cashuerr.InsufficientAmountCode,
				"amount %d is not a valid denomination for keyset %s (max_order=%d)", p.Amount, p.Id, info.MaxOrder)
		}

		sum, overflowed := addChecked(amountsPerUnit[info.Unit], p.Amount)
		if overflowed {
			return nil, cashuerr.TotalAmountTooBig
		}
		amountsPerUnit[info.Unit] = sum

		verifyItems[i] = signer.VerifyItem{KeysetId: string(p.Id), Amount: p.Amount, Secret: p.Secret, C: p.C}
	}

	resp, err := l.signer.VerifyProofs(ctx, &signer.VerifyProofsRequest{Items: verifyItems})
	if err != nil {
		return nil, err
	}
	if !resp.Valid {
		return nil, cashuerr.InvalidProof
	}

	return &InputsResult{Ys: ys, AmountsPerUnit: amountsPerUnit}, nil
}

// OutputsResult is the verified outcome of one outputs pass.
type OutputsResult struct {
	AmountsPerUnit map[cashu.Unit]uint64
}

// ValidateOutputs runs the outputs pass: duplicate blinded-secret
// detection, keyset lookup requiring active (spec.md §4.5 step 3), and
// per-unit overflow-checked accumulation. It also cross-checks the
// ledger for an existing signature on each blinded secret
// (AlreadySigned) — callers pass the in-flight tx for this check.
func (l *Ledger) ValidateOutputs(ctx context.Context, tx storage.Tx, outputs cashu.BlindedMessages) (*OutputsResult, error) {
	seen := make(map[string]struct{}, len(outputs))
	amountsPerUnit := make(map[cashu.Unit]uint64)

	for _, o := range outputs {
		if _, dup := seen[o.B_]; dup {
			return nil, cashuerr.DuplicateOutput
		}
		seen[o.B_] = struct{}{}

		info, err := l.cache.Info(ctx, o.Id)
		if err != nil {
			return nil, cashuerr.UnknownKeyset
		}
		if !info.Active {
			return nil, cashuerr.InactiveKeyset
		}
		if !isBinaryDenomination(o.Amount, info.MaxOrder) {
			return nil, cashuerr.Buildf(cashuerr.Validation, cashuerr.InsufficientAmountCode,
				"amount %d is not a valid denomination for keyset %s (max_order=%d)", o.Amount, o.Id, info.MaxOrder)
		}

		sum, overflowed := addChecked(amountsPerUnit[info.Unit], o.Amount)
		if overflowed {
			return nil, cashuerr.TotalAmountTooBig
		}
		amountsPerUnit[info.Unit] = sum

		exists, err := tx.BlindSignatureExists(ctx, o.B_)
		if err != nil {
			return nil, err
		}
		if exists {
			return nil, cashuerr.AlreadySigned
		}
	}

	return &OutputsResult{AmountsPerUnit: amountsPerUnit}, nil
}

// SignOutputs asks the Signer to blind-sign every output and records
// the resulting signatures in the ledger, keyed by blinded secret.
func (l *Ledger) SignOutputs(ctx context.Context, tx storage.Tx, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	items := make([]signer.SignItem, len(outputs))
	for i, o := range outputs {
		items[i] = signer.SignItem{KeysetId: string(o.Id), Amount: o.Amount, B_: o.B_}
	}

	resp, err := l.signer.SignBlindedMessages(ctx, &signer.SignBlindedMessagesRequest{Items: items})
	if err != nil {
		return nil, err
	}
	if len(resp.Signatures) != len(outputs) {
		return nil, cashuerr.Buildf(cashuerr.Fatal, cashuerr.SchemaMismatchCode,
			"signer returned %d signatures for %d outputs", len(resp.Signatures), len(outputs))
	}

	for i, sig := range resp.Signatures {
		exists, err := tx.InsertBlindSignature(ctx, outputs[i].B_, sig)
		if err != nil {
			return nil, err
		}
		if exists {
			// Lost a race against a concurrent identical request that
			// committed first — treat it the same as a pre-check hit.
			return nil, cashuerr.AlreadySigned
		}
	}

	return resp.Signatures, nil
}

// SpendInputs inserts the at-most-once spend row for every input
// (spec.md §4.4) in the given state — Spent for Swap/Mint, Pending for
// a Melt quote's inputs while its withdrawal is in flight — failing
// with ProofAlreadyUsed on the first one that loses the race.
func (l *Ledger) SpendInputs(ctx context.Context, tx storage.Tx, proofs cashu.Proofs, ys []string, state cashu.ProofState) error {
	for i, p := range proofs {
		won, err := tx.InsertSpentProof(ctx, ys[i], p.Amount, p.Id, p.Secret, p.C, state)
		if err != nil {
			return err
		}
		if !won {
			return cashuerr.ProofAlreadyUsed
		}
	}
	return nil
}

func isBinaryDenomination(amount uint64, maxOrder uint32) bool {
	if amount == 0 || amount&(amount-1) != 0 {
		return false
	}
	return amount <= keyset.MaxAmount(maxOrder)
}

func addChecked(a, b uint64) (uint64, bool) {
	sum, carry := bits.Add64(a, b, 0)
	return sum, carry != 0
}

func hashToCurveHex(secret string) (string, error) {
	y, err := bdhke.HashToCurve([]byte(secret))
	if err != nil {
		return "", cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.HashToCurveFailedCode, "hash to curve: %v", err)
	}
	return hex.EncodeToString(y.SerializeCompressed()), nil
}
