// Package liquidity implements the mint's liquidity source: the thing
// that turns a Mint quote into a payable invoice and a Melt quote into
// an executed withdrawal. spec.md §9's "Dynamic polymorphism" design
// note calls for a closed tagged-variant dispatch here rather than a Go
// interface with arbitrary implementations — Starknet and a mock are
// the only two sources this mint ever needs, and a switch over a Kind
// makes that closure visible at the call site instead of hidden behind
// an interface table.
package liquidity

import (
	"context"
	"fmt"
	"math/big"

	"github.com/paynet-mint/node/internal/starknet"
)

// Kind identifies which of the closed set of liquidity sources a
// Source value is.
type Kind int

const (
	Starknet Kind = iota
	Mock
)

func (k Kind) String() string {
	switch k {
	case Starknet:
		return "starknet"
	case Mock:
		return "mock"
	default:
		return "unknown"
	}
}

// Invoice is what CreateInvoice returns for a new Mint quote: the
// derived invoice id the Deposit Indexer will later match deposits
// against, and the serialized payment payload handed back to the
// wallet.
type Invoice struct {
	InvoiceId      string
	PaymentPayload string
}

// StarknetConfig holds the on-chain addresses a Starknet source needs to
// build payment payloads (spec.md §6 Environment config).
type StarknetConfig struct {
	TokenAddress   starknet.Felt
	CashierAddress starknet.Felt
}

// Source is a closed tagged union over the mint's liquidity backends.
// Exactly one of the Kind-specific fields is meaningful for a given
// Kind; callers never type-switch on an interface, they dispatch on
// Kind inside this package's methods.
type Source struct {
	kind     Kind
	starknet StarknetConfig
	cashier  Cashier
}

// NewStarknet builds a Source backed by the Starknet chain: invoices
// are priced and shaped per spec.md §4.6, and withdrawals are delegated
// to cashier (spec.md §4.7 step 5 and §9's Cashier abstraction).
func NewStarknet(cfg StarknetConfig, cashier Cashier) Source {
	return Source{kind: Starknet, starknet: cfg, cashier: cashier}
}

// NewMock builds a Source that derives invoice ids the same way as the
// Starknet variant, returns a placeholder payment payload, and never
// performs a real withdrawal — used in tests and local
// development where no Starknet RPC or cashier is reachable.
func NewMock() Source {
	return Source{kind: Mock}
}

func (s Source) Kind() Kind { return s.kind }

// DeriveInvoiceId derives the invoice id a quote is tagged with (spec.md
// §4.6 step 3), shared by both Mint and Melt quotes and by both
// variants: Mock exists to exercise control flow without a live chain,
// not to redefine how a quote is identified.
func (s Source) DeriveInvoiceId(quoteId string, expiry int64) (string, error) {
	id, err := starknet.DeriveInvoiceId(quoteId, expiry)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

// CreateInvoice produces the (invoice_id, payment_payload) pair for a
// new Mint quote (spec.md §4.6 step 3).
func (s Source) CreateInvoice(quoteId string, expiry int64, payee starknet.Felt, amountMintUnits uint64) (Invoice, error) {
	invoiceId, err := starknet.DeriveInvoiceId(quoteId, expiry)
	if err != nil {
		return Invoice{}, err
	}

	switch s.kind {
	case Starknet:
		payload := starknet.BuildPaymentPayload(s.starknet.TokenAddress, s.starknet.CashierAddress, payee, invoiceId, amountMintUnits)
		serialized, err := payload.Serialize()
		if err != nil {
			return Invoice{}, err
		}
		return Invoice{InvoiceId: invoiceId.String(), PaymentPayload: serialized}, nil

	case Mock:
		return Invoice{InvoiceId: invoiceId.String(), PaymentPayload: fmt.Sprintf(`{"mock":true,"invoice_id":%q,"amount":%d}`, invoiceId.String(), amountMintUnits)}, nil

	default:
		return Invoice{}, fmt.Errorf("liquidity: unknown source kind %v", s.kind)
	}
}

// ConvertOnChainAmount converts a request's on-chain amount to mint
// units, rounding remainders up (spec.md §4.7 step 2). Both variants
// share the Starknet unit scale: the mock exists to exercise the mint's
// control flow without a live chain, not to redefine the asset's
// denomination.
func (s Source) ConvertOnChainAmount(onChain *big.Int) uint64 {
	return starknet.OnChainToMintUnits(onChain)
}

// ParseRequest deserializes a Melt quote's request payload into its
// payee and asset (spec.md §6).
func (s Source) ParseRequest(raw string) (starknet.PaymentRequest, error) {
	return starknet.ParsePaymentRequest(raw)
}

// Withdraw executes a Melt quote's withdrawal (spec.md §4.7 step 5),
// delegating to the configured Cashier for the Starknet variant and
// synthesizing a deterministic success for Mock.
func (s Source) Withdraw(ctx context.Context, invoiceId, asset string, amountMintUnits uint64, payee string) ([]string, error) {
	switch s.kind {
	case Starknet:
		return s.cashier.Withdraw(ctx, invoiceId, asset, amountMintUnits, payee)
	case Mock:
		return []string{"mock-transfer-" + invoiceId}, nil
	default:
		return nil, fmt.Errorf("liquidity: unknown source kind %v", s.kind)
	}
}
