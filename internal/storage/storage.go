// Package storage defines the persistence contract for the mint: keyset
// metadata, the proof and blind-signature ledgers, mint/melt quotes and
// on-chain payment events, plus the serializable-transaction boundary
// every state-mutating operation runs inside (spec.md §5).
package storage

import (
	"context"
	"errors"

	"github.com/paynet-mint/node/internal/cashu"
)

// ErrNotFound is returned by Store/Tx lookups when no row matches.
// Implementations that sit on top of database/sql (internal/storage/postgres)
// map sql.ErrNoRows to this sentinel so callers never need to depend on a
// specific driver's not-found signal.
var ErrNotFound = errors.New("storage: not found")

// Keyset is the persisted row backing a keyset's metadata — the Keyset
// Registry's owned representation (spec.md §3 "Keyset").
type Keyset struct {
	Id                cashu.KeysetId
	Unit              cashu.Unit
	Active            bool
	DerivationPathIdx uint32
	MaxOrder          uint32
}

// MintQuote is the persisted row for a mint quote.
type MintQuote struct {
	Id             string
	Unit           cashu.Unit
	Amount         uint64
	InvoiceId      string
	PaymentPayload string
	Expiry         int64
	State          cashu.MintQuoteState
}

// MeltQuote is the persisted row for a melt quote.
type MeltQuote struct {
	Id          string
	Unit        cashu.Unit
	Amount      uint64
	Fee         uint64
	InvoiceId   string
	Request     string
	Expiry      int64
	State       cashu.MeltQuoteState
	TransferIds []string
}

// PaymentEvent is an on-chain observation ingested by the Deposit Indexer.
type PaymentEvent struct {
	BlockId     uint64
	TxHash      string
	EventIndex  uint32
	Asset       string
	Payer       string
	Payee       string
	InvoiceId   string
	AmountLow   uint64
	AmountHigh  uint64
}

// BlindSignatureRow is a persisted, issued blind signature keyed by the
// blinded secret B_, used to serve Restore.
type BlindSignatureRow struct {
	B_        string
	Signature cashu.BlindedSignature
}

// Store is the top-level handle: process-singleton connection pool plus
// the serializable-transaction entry point. Non-transactional methods
// serve reads that do not need to participate in an atomic state
// transition (e.g. the Keyset Cache's warm-up load).
type Store interface {
	GetKeyset(ctx context.Context, id cashu.KeysetId) (Keyset, error)
	ListKeysets(ctx context.Context) ([]Keyset, error)
	ListActiveKeysets(ctx context.Context) ([]Keyset, error)

	GetMintQuote(ctx context.Context, id string) (MintQuote, error)
	GetMeltQuote(ctx context.Context, id string) (MeltQuote, error)

	CheckState(ctx context.Context, ys []string) (map[string]cashu.ProofState, error)
	Restore(ctx context.Context, blindedSecrets []string) ([]BlindSignatureRow, error)

	GetEcashIssued(ctx context.Context) (map[cashu.KeysetId]uint64, error)
	GetEcashRedeemed(ctx context.Context) (map[cashu.KeysetId]uint64, error)

	// WithSerializableTx opens a SERIALIZABLE transaction, invokes fn, and
	// commits on success. Serialization-failure errors from the driver are
	// retried internally up to a small bound (spec.md §5); any other error
	// rolls back and is returned to the caller unchanged.
	WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error

	Close() error
}

// Tx is the set of operations available to a body running inside a
// SERIALIZABLE transaction opened by WithSerializableTx.
type Tx interface {
	SaveKeyset(ctx context.Context, ks Keyset) error
	DeactivateKeyset(ctx context.Context, id cashu.KeysetId) error
	GetActiveKeysets(ctx context.Context) ([]Keyset, error)

	// InsertSpentProof performs the at-most-once spend insert of
	// spec.md §4.4: a proof row is created only once, directly in the
	// given state (Spent for Swap/Mint-consumed inputs, Pending for a
	// Melt quote's inputs while the cashier withdrawal is in flight).
	// won reports whether this call is the one that created the row
	// (false means a row already existed for y — a double-spend
	// attempt).
	InsertSpentProof(ctx context.Context, y string, amount uint64, keysetId cashu.KeysetId, secret, c string, state cashu.ProofState) (won bool, err error)

	// MarkProofsSpent transitions previously-PENDING proof rows to
	// SPENT once a Melt quote's withdrawal is confirmed (spec.md §4.7
	// step 5, run in the fresh transaction that also sets the quote to
	// PAID).
	MarkProofsSpent(ctx context.Context, ys []string) error

	// BlindSignatureExists is a read-only pre-check used by the Swap/Mint
	// outputs pass (spec.md §4.5 step 3's AlreadySigned cross-check) before
	// any signing has happened, distinct from InsertBlindSignature's
	// check-and-record at the end of the same transaction.
	BlindSignatureExists(ctx context.Context, b_ string) (bool, error)

	// InsertBlindSignature records an issued signature keyed by its
	// blinded secret. exists reports whether a row for B_ already existed
	// (AlreadySigned, spec.md §4.5).
	InsertBlindSignature(ctx context.Context, b_ string, sig cashu.BlindedSignature) (exists bool, err error)

	InsertMintQuote(ctx context.Context, q MintQuote) error
	GetMintQuoteForUpdate(ctx context.Context, id string) (MintQuote, error)
	FindMintQuoteByInvoiceId(ctx context.Context, invoiceId string) (MintQuote, error)
	UpdateMintQuoteState(ctx context.Context, id string, state cashu.MintQuoteState) error

	InsertMeltQuote(ctx context.Context, q MeltQuote) error
	GetMeltQuoteForUpdate(ctx context.Context, id string) (MeltQuote, error)
	UpdateMeltQuoteState(ctx context.Context, id string, state cashu.MeltQuoteState, transferIds []string) error

	InsertPaymentEvent(ctx context.Context, ev PaymentEvent) (inserted bool, err error)

	// SumPaymentsForInvoice accumulates every observed payment for an
	// invoice_id as a checked 128-bit add across (amount_low, amount_high)
	// pairs (spec.md §4.8: "256-bit add; overflow ⇒ fatal" — the mint's
	// on-wire amounts split into two uint64 halves, so the accumulator
	// is widened the same way). overflow reports a carry out of the
	// high half, which the caller must treat as fatal.
	SumPaymentsForInvoice(ctx context.Context, invoiceId string) (low, high uint64, overflow bool, err error)

	DeletePaymentEventsAboveHeight(ctx context.Context, height uint64) error
	ListAffectedInvoicesAboveHeight(ctx context.Context, height uint64) ([]string, error)
}
