// Package mintquote implements the Mint-Quote Engine and Mint operation
// of spec.md §4.6: creating a payable invoice for a unit/amount, and
// issuing blind signatures once that invoice is observed paid.
package mintquote

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage"
)

// Limits bounds the amount a single mint quote may request, per unit
// (spec.md §4.6 step 1). A zero Max means no upper bound is enforced.
type Limits struct {
	Min uint64
	Max uint64
}

// Engine drives CreateMintQuote and Mint for the mint's single enabled
// (method, unit) pair — cashu.StarknetMethod over cashu.MilliStrk — the
// same one-backend shape the teacher's Mint type enforces for bolt11/sat.
type Engine struct {
	store     storage.Store
	ledger    *ledger.Ledger
	liquidity liquidity.Source
	log       obs.Logger

	unit     cashu.Unit
	limits   Limits
	payee    starknet.Felt
	quoteTTL time.Duration
}

func New(store storage.Store, ledger *ledger.Ledger, source liquidity.Source, log obs.Logger, unit cashu.Unit, limits Limits, payee starknet.Felt, quoteTTL time.Duration) *Engine {
	return &Engine{
		store:     store,
		ledger:    ledger,
		liquidity: source,
		log:       log,
		unit:      unit,
		limits:    limits,
		payee:     payee,
		quoteTTL:  quoteTTL,
	}
}

// Quote is what CreateMintQuote returns: the pieces the wallet needs to
// pay and later poll the quote.
type Quote struct {
	Id             string
	PaymentPayload string
	Expiry         int64
	State          cashu.MintQuoteState
}

// CreateMintQuote runs spec.md §4.6's CreateMintQuote: validate (method,
// unit, amount), derive an invoice id and payment payload from the
// liquidity source, and persist the quote UNPAID.
func (e *Engine) CreateMintQuote(ctx context.Context, method string, unit cashu.Unit, amount uint64) (Quote, error) {
	if method != cashu.StarknetMethod {
		return Quote{}, cashuerr.MethodNotSupported
	}
	if unit != e.unit {
		return Quote{}, cashuerr.UnitNotSupported
	}
	if amount == 0 || (e.limits.Max > 0 && amount > e.limits.Max) || amount < e.limits.Min {
		return Quote{}, cashuerr.AmountOutOfRange
	}

	quoteId := uuid.NewString()
	expiry := time.Now().Add(e.quoteTTL).Unix()

	invoice, err := e.liquidity.CreateInvoice(quoteId, expiry, e.payee, amount)
	if err != nil {
		return Quote{}, err
	}

	row := storage.MintQuote{
		Id:             quoteId,
		Unit:           unit,
		Amount:         amount,
		InvoiceId:      invoice.InvoiceId,
		PaymentPayload: invoice.PaymentPayload,
		Expiry:         expiry,
		State:          cashu.MintUnpaid,
	}

	if err := e.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.InsertMintQuote(ctx, row)
	}); err != nil {
		return Quote{}, err
	}

	return Quote{Id: quoteId, PaymentPayload: invoice.PaymentPayload, Expiry: expiry, State: cashu.MintUnpaid}, nil
}

// GetMintQuoteState serves spec.md §6's MintQuoteState query: a plain
// read, since the Deposit Indexer (not this call) is what transitions a
// quote from UNPAID to PAID.
func (e *Engine) GetMintQuoteState(ctx context.Context, method string, quoteId string) (storage.MintQuote, error) {
	if method != cashu.StarknetMethod {
		return storage.MintQuote{}, cashuerr.MethodNotSupported
	}
	q, err := e.store.GetMintQuote(ctx, quoteId)
	if err != nil {
		if err == storage.ErrNotFound {
			return storage.MintQuote{}, cashuerr.QuoteNotFound
		}
		return storage.MintQuote{}, err
	}
	return q, nil
}

// Mint runs spec.md §4.6's Mint operation: require the quote has
// reached PAID, validate the outputs as a single-unit batch, assert
// their total matches the quote's amount exactly, sign, and mark the
// quote ISSUED — all inside one serializable transaction.
func (e *Engine) Mint(ctx context.Context, method string, quoteId string, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	if method != cashu.StarknetMethod {
		return nil, cashuerr.MethodNotSupported
	}

	var sigs cashu.BlindedSignatures
	err := e.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		q, err := tx.GetMintQuoteForUpdate(ctx, quoteId)
		if err != nil {
			if err == storage.ErrNotFound {
				return cashuerr.QuoteNotFound
			}
			return err
		}
		if q.State != cashu.MintPaid {
			return cashuerr.InvalidQuoteState
		}

		outResult, err := e.ledger.ValidateOutputs(ctx, tx, outputs)
		if err != nil {
			return err
		}
		if len(outResult.AmountsPerUnit) != 1 {
			return cashuerr.UnitNotSupported
		}
		total, ok := outResult.AmountsPerUnit[q.Unit]
		if !ok {
			return cashuerr.UnitNotSupported
		}
		if total != q.Amount {
			return cashuerr.Buildf(cashuerr.Validation, cashuerr.InsufficientAmountCode,
				"mint outputs total %d does not match quote amount %d", total, q.Amount)
		}

		sigs, err = e.ledger.SignOutputs(ctx, tx, outputs)
		if err != nil {
			return err
		}

		return tx.UpdateMintQuoteState(ctx, quoteId, cashu.MintIssued)
	})
	if err != nil {
		return nil, err
	}

	e.log.Infof("mint quote %s issued: %d outputs", quoteId, len(outputs))
	return sigs, nil
}
