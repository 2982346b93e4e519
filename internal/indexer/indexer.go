// Package indexer implements the Deposit Indexer of spec.md §4.8: it
// consumes an ordered stream of on-chain Remittance events scoped to
// the cashier account, records each as a mint_payment_event row, and
// recomputes the matching mint quote's state from the accumulated
// total. It also handles the stream's reorg-invalidation signal,
// discarding events above a height and recomputing every quote those
// events could have affected.
package indexer

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage"
)

// Event is a single Remittance observation: asset, payer, payee,
// invoice id and the u128 amount split into low/high halves (spec.md
// §4.8).
type Event struct {
	BlockId    uint64
	TxHash     string
	EventIndex uint32
	Asset      string
	Payer      string
	Payee      string
	InvoiceId  string
	AmountLow  uint64
	AmountHigh uint64
}

// Invalidation signals a block reorg: every event observed above
// Height never happened and must be discarded.
type Invalidation struct {
	Height uint64
}

// Source streams a cashier account's Remittance events and reorg
// invalidations. Exactly one of the two return values is non-nil per
// call; Next blocks until a message is available or ctx is done.
type Source interface {
	Next(ctx context.Context) (*Event, *Invalidation, error)
}

// Indexer applies a Source's stream to the mint's store.
type Indexer struct {
	store storage.Store
	liq   liquidity.Source
	log   obs.Logger
}

func New(store storage.Store, liq liquidity.Source, log obs.Logger) *Indexer {
	return &Indexer{store: store, liq: liq, log: log}
}

// Run drains src until ctx is cancelled or the stream itself errors.
// A context cancellation is reported as a clean return, not an error.
func (ix *Indexer) Run(ctx context.Context, src Source) error {
	for {
		ev, inv, err := src.Next(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return err
		}
		switch {
		case ev != nil:
			if err := ix.ApplyEvent(ctx, *ev); err != nil {
				return err
			}
		case inv != nil:
			if err := ix.Invalidate(ctx, inv.Height); err != nil {
				return err
			}
		}
	}
}

// ApplyEvent runs spec.md §4.8 steps 1-4 in a single transaction:
// insert the event (ON CONFLICT DO NOTHING via InsertPaymentEvent's
// inserted flag, re-delivery safe), then recompute the matching
// quote's state from the new accumulated total.
func (ix *Indexer) ApplyEvent(ctx context.Context, ev Event) error {
	return ix.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		inserted, err := tx.InsertPaymentEvent(ctx, storage.PaymentEvent{
			BlockId:    ev.BlockId,
			TxHash:     ev.TxHash,
			EventIndex: ev.EventIndex,
			Asset:      ev.Asset,
			Payer:      ev.Payer,
			Payee:      ev.Payee,
			InvoiceId:  ev.InvoiceId,
			AmountLow:  ev.AmountLow,
			AmountHigh: ev.AmountHigh,
		})
		if err != nil {
			return err
		}
		if !inserted {
			return nil
		}
		return ix.recomputeQuote(ctx, tx, ev.InvoiceId)
	})
}

// Invalidate handles a block reorg at height: delete every event above
// it and recompute every quote that any of those events could have
// affected. A quote that reached PAID may revert to UNPAID; ISSUED is
// terminal and is never touched (spec.md §4.8).
func (ix *Indexer) Invalidate(ctx context.Context, height uint64) error {
	var affected []string
	err := ix.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		ids, err := tx.ListAffectedInvoicesAboveHeight(ctx, height)
		if err != nil {
			return err
		}
		affected = ids
		return tx.DeletePaymentEventsAboveHeight(ctx, height)
	})
	if err != nil {
		return err
	}
	if len(affected) == 0 {
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, invoiceId := range affected {
		invoiceId := invoiceId
		g.Go(func() error {
			return ix.store.WithSerializableTx(gctx, func(ctx context.Context, tx storage.Tx) error {
				return ix.recomputeQuote(ctx, tx, invoiceId)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	ix.log.Infof("reorg invalidation at height %d recomputed %d quotes", height, len(affected))
	return nil
}

// recomputeQuote sums every observed payment for invoiceId and
// transitions the matching quote between UNPAID and PAID accordingly.
// An invoice id with no matching quote is logged and ignored: the
// cashier account may receive Remittances this mint never quoted.
func (ix *Indexer) recomputeQuote(ctx context.Context, tx storage.Tx, invoiceId string) error {
	q, err := tx.FindMintQuoteByInvoiceId(ctx, invoiceId)
	if err != nil {
		if err == storage.ErrNotFound {
			ix.log.Debugf("payment event for unknown invoice id %s, ignoring", invoiceId)
			return nil
		}
		return err
	}
	if q.State == cashu.MintIssued {
		return nil
	}

	low, high, overflow, err := tx.SumPaymentsForInvoice(ctx, invoiceId)
	if err != nil {
		return err
	}
	if overflow {
		return cashuerr.OverflowErr
	}

	accumulated := ix.liq.ConvertOnChainAmount(starknet.CombineU128(low, high))

	target := cashu.MintUnpaid
	if accumulated >= q.Amount {
		target = cashu.MintPaid
	}
	if target == q.State {
		return nil
	}
	return tx.UpdateMintQuoteState(ctx, q.Id, target)
}
