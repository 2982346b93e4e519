// Package meltquote implements the Melt-Quote Engine and Melt operation
// of spec.md §4.7: quoting a withdrawal request in mint units, spending
// the wallet's inputs, and delegating the actual payout to the liquidity
// source's Cashier once the inputs are committed.
package meltquote

import (
	"context"
	"encoding/hex"
	"time"

	"github.com/google/uuid"

	"github.com/paynet-mint/node/internal/bdhke"
	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/storage"
)

// Limits bounds the amount (in mint units, after conversion) a single
// melt quote may request (spec.md §4.7 step 3).
type Limits struct {
	Min uint64
	Max uint64
	// Fee is the flat fee added on top of the requested amount, e.g. 1
	// unit on Starknet (spec.md §4.7 step 3).
	Fee uint64
}

// Engine drives CreateMeltQuote and Melt for the mint's single enabled
// (method, unit) pair.
type Engine struct {
	store     storage.Store
	ledger    *ledger.Ledger
	liquidity liquidity.Source
	log       obs.Logger

	unit     cashu.Unit
	limits   Limits
	quoteTTL time.Duration
}

func New(store storage.Store, ledger *ledger.Ledger, source liquidity.Source, log obs.Logger, unit cashu.Unit, limits Limits, quoteTTL time.Duration) *Engine {
	return &Engine{
		store:     store,
		ledger:    ledger,
		liquidity: source,
		log:       log,
		unit:      unit,
		limits:    limits,
		quoteTTL:  quoteTTL,
	}
}

// Quote is what CreateMeltQuote returns.
type Quote struct {
	Id     string
	Amount uint64
	Fee    uint64
	Expiry int64
	State  cashu.MeltQuoteState
}

// CreateMeltQuote runs spec.md §4.7's CreateMeltQuote: parse the
// request, convert its on-chain amount to mint units (rounding up),
// enforce limits, add the flat fee, and persist UNPAID.
func (e *Engine) CreateMeltQuote(ctx context.Context, method string, unit cashu.Unit, request string) (Quote, error) {
	if method != cashu.StarknetMethod {
		return Quote{}, cashuerr.MethodNotSupported
	}
	if unit != e.unit {
		return Quote{}, cashuerr.UnitNotSupported
	}

	parsed, err := e.liquidity.ParseRequest(request)
	if err != nil {
		return Quote{}, cashuerr.Buildf(cashuerr.Validation, cashuerr.StandardErrCode, "invalid melt request: %v", err)
	}
	if parsed.Asset != "strk" {
		return Quote{}, cashuerr.UnitNotSupported
	}

	amount := e.liquidity.ConvertOnChainAmount(parsed.Amount)
	if amount == 0 || (e.limits.Max > 0 && amount > e.limits.Max) || amount < e.limits.Min {
		return Quote{}, cashuerr.AmountOutOfRange
	}

	quoteId := uuid.NewString()
	expiry := time.Now().Add(e.quoteTTL).Unix()

	invoiceId, err := e.liquidity.DeriveInvoiceId(quoteId, expiry)
	if err != nil {
		return Quote{}, err
	}

	row := storage.MeltQuote{
		Id:        quoteId,
		Unit:      unit,
		Amount:    amount,
		Fee:       e.limits.Fee,
		InvoiceId: invoiceId,
		Request:   request,
		Expiry:    expiry,
		State:     cashu.MeltUnpaid,
	}

	if err := e.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertMeltQuote(ctx, row)
	}); err != nil {
		return Quote{}, err
	}

	return Quote{Id: quoteId, Amount: amount, Fee: e.limits.Fee, Expiry: expiry, State: cashu.MeltUnpaid}, nil
}

// GetMeltQuoteState serves spec.md §6's MeltQuoteState query.
func (e *Engine) GetMeltQuoteState(ctx context.Context, method string, quoteId string) (storage.MeltQuote, error) {
	if method != cashu.StarknetMethod {
		return storage.MeltQuote{}, cashuerr.MethodNotSupported
	}
	q, err := e.store.GetMeltQuote(ctx, quoteId)
	if err != nil {
		if err == storage.ErrNotFound {
			return storage.MeltQuote{}, cashuerr.QuoteNotFound
		}
		return storage.MeltQuote{}, err
	}
	return q, nil
}

// Melt runs spec.md §4.7's Melt operation state machine: UNPAID spends
// the wallet's inputs as Pending and advances to PENDING; PENDING and
// PAID are idempotent continuations past the inputs pass. The Cashier
// withdrawal itself runs outside the main transaction, with a fresh
// transaction flipping the quote to PAID and the spent proofs from
// Pending to Spent once it succeeds.
func (e *Engine) Melt(ctx context.Context, method string, quoteId string, inputs cashu.Proofs) (storage.MeltQuote, error) {
	if method != cashu.StarknetMethod {
		return storage.MeltQuote{}, cashuerr.MethodNotSupported
	}

	var q storage.MeltQuote
	err := e.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		q, err = tx.GetMeltQuoteForUpdate(ctx, quoteId)
		if err != nil {
			if err == storage.ErrNotFound {
				return cashuerr.QuoteNotFound
			}
			return err
		}

		switch q.State {
		case cashu.MeltPaid:
			return nil // idempotent success
		case cashu.MeltPending:
			return nil // already committed; proceed to (re-)attempt withdrawal
		case cashu.MeltUnpaid:
			inResult, err := e.ledger.VerifyInputs(ctx, inputs)
			if err != nil {
				return err
			}
			if len(inResult.AmountsPerUnit) != 1 {
				return cashuerr.UnitNotSupported
			}
			total, ok := inResult.AmountsPerUnit[q.Unit]
			if !ok {
				return cashuerr.UnitNotSupported
			}
			if total < q.Amount+q.Fee {
				return cashuerr.InsufficientAmount
			}
			if err := e.ledger.SpendInputs(ctx, tx, inputs, inResult.Ys, cashu.Pending); err != nil {
				return err
			}
			return tx.UpdateMeltQuoteState(ctx, quoteId, cashu.MeltPending, nil)
		default:
			return cashuerr.InvalidQuoteState
		}
	})
	if err != nil {
		return storage.MeltQuote{}, err
	}
	if q.State == cashu.MeltPaid {
		return q, nil
	}

	parsed, err := e.liquidity.ParseRequest(q.Request)
	if err != nil {
		return storage.MeltQuote{}, err
	}

	transferIds, err := e.liquidity.Withdraw(ctx, q.InvoiceId, "strk", q.Amount, parsed.Payee.String())
	if err != nil {
		e.log.Errorf("melt quote %s: cashier withdrawal failed, quote remains PENDING: %v", quoteId, err)
		q.State = cashu.MeltPending
		return q, nil
	}

	ys := make([]string, len(inputs))
	for i, p := range inputs {
		y, err := hashToCurveHex(p.Secret)
		if err != nil {
			return storage.MeltQuote{}, err
		}
		ys[i] = y
	}

	err = e.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		if err := tx.MarkProofsSpent(ctx, ys); err != nil {
			return err
		}
		return tx.UpdateMeltQuoteState(ctx, quoteId, cashu.MeltPaid, transferIds)
	})
	if err != nil {
		return storage.MeltQuote{}, err
	}

	e.log.Infof("melt quote %s settled: transfer_ids=%v", quoteId, transferIds)
	q.State = cashu.MeltPaid
	q.TransferIds = transferIds
	return q, nil
}

// hashToCurveHex mirrors internal/ledger's unexported helper of the same
// name: the hex-encoded compressed Y point a proof's secret hashes to,
// used here to identify which proof rows to flip from Pending to Spent.
func hashToCurveHex(secret string) (string, error) {
	y, err := bdhke.HashToCurve([]byte(secret))
	if err != nil {
		return "", cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.HashToCurveFailedCode, "hash to curve: %v", err)
	}
	return hex.EncodeToString(y.SerializeCompressed()), nil
}
