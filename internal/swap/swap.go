// Package swap implements the Swap Engine of spec.md §4.5: given
// inputs and outputs, atomically verify the inputs, mark them spent,
// sign the outputs, and record the new blind signatures, inside one
// SERIALIZABLE transaction.
package swap

import (
	"context"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/storage"
)

// Engine drives one Swap request's transaction per spec.md §4.5. It is
// oblivious to which keysets mix in a request — balance is enforced per
// unit, never per keyset.
type Engine struct {
	store  storage.Store
	ledger *ledger.Ledger
	log    obs.Logger
}

func New(store storage.Store, ledger *ledger.Ledger, log obs.Logger) *Engine {
	return &Engine{store: store, ledger: ledger, log: log}
}

// Swap runs the full algorithm of spec.md §4.5 steps 1-8 inside one
// serializable transaction, retried by the store on conflict.
func (e *Engine) Swap(ctx context.Context, inputs cashu.Proofs, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	var sigs cashu.BlindedSignatures

	err := e.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		inResult, err := e.ledger.VerifyInputs(ctx, inputs)
		if err != nil {
			return err
		}

		outResult, err := e.ledger.ValidateOutputs(ctx, tx, outputs)
		if err != nil {
			return err
		}

		if err := checkBalanced(inResult.AmountsPerUnit, outResult.AmountsPerUnit); err != nil {
			return err
		}

		if err := e.ledger.SpendInputs(ctx, tx, inputs, inResult.Ys, cashu.Spent); err != nil {
			return err
		}

		sigs, err = e.ledger.SignOutputs(ctx, tx, outputs)
		return err
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("swap settled: %d inputs -> %d outputs", len(inputs), len(outputs))
	return sigs, nil
}

// checkBalanced enforces spec.md §4.5 step 4: for every unit appearing
// on either side, sum(outputs) must equal sum(inputs). Swap carries no
// fee, so the equation never has slack. A unit present only on one side
// fails the same way as a mismatched sum — its implicit total on the
// other side is zero.
func checkBalanced(inputs, outputs map[cashu.Unit]uint64) error {
	units := make(map[cashu.Unit]struct{}, len(inputs)+len(outputs))
	for u := range inputs {
		units[u] = struct{}{}
	}
	for u := range outputs {
		units[u] = struct{}{}
	}

	for u := range units {
		in, out := inputs[u], outputs[u]
		if in != out {
			return cashuerr.TransactionUnbalanced(u.String(), in, out)
		}
	}
	return nil
}
