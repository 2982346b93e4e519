// Package memstore is an in-memory storage.Store used by unit tests for
// the packages that depend on storage.Store/Tx. It is never the
// production store — Postgres (internal/storage/postgres) is.
package memstore

import (
	"context"
	"math/bits"
	"sort"
	"sync"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/storage"
)

type proofRow struct {
	amount   uint64
	keysetId cashu.KeysetId
	secret   string
	c        string
	state    cashu.ProofState
}

// Store is a mutex-guarded in-memory implementation of storage.Store.
// WithSerializableTx takes the single lock for its whole body, which
// gives callers the same atomicity guarantee Postgres' SERIALIZABLE
// isolation provides without needing a real conflict-retry loop.
type Store struct {
	mu sync.Mutex

	keysets        map[cashu.KeysetId]storage.Keyset
	proofs         map[string]proofRow
	blindSigs      map[string]cashu.BlindedSignature
	mintQuotes     map[string]storage.MintQuote
	meltQuotes     map[string]storage.MeltQuote
	paymentEvents  map[[2]string]storage.PaymentEvent // (tx_hash, event_index)
}

// New returns an empty Store.
func New() *Store {
	return &Store{
		keysets:       make(map[cashu.KeysetId]storage.Keyset),
		proofs:        make(map[string]proofRow),
		blindSigs:     make(map[string]cashu.BlindedSignature),
		mintQuotes:    make(map[string]storage.MintQuote),
		meltQuotes:    make(map[string]storage.MeltQuote),
		paymentEvents: make(map[[2]string]storage.PaymentEvent),
	}
}

func (s *Store) Close() error { return nil }

func (s *Store) GetKeyset(_ context.Context, id cashu.KeysetId) (storage.Keyset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ks, ok := s.keysets[id]
	if !ok {
		return storage.Keyset{}, storage.ErrNotFound
	}
	return ks, nil
}

func (s *Store) ListKeysets(_ context.Context) ([]storage.Keyset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeysets(s.keysets, false), nil
}

func (s *Store) ListActiveKeysets(_ context.Context) ([]storage.Keyset, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeysets(s.keysets, true), nil
}

func sortedKeysets(m map[cashu.KeysetId]storage.Keyset, activeOnly bool) []storage.Keyset {
	out := make([]storage.Keyset, 0, len(m))
	for _, ks := range m {
		if activeOnly && !ks.Active {
			continue
		}
		out = append(out, ks)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].DerivationPathIdx < out[j].DerivationPathIdx })
	return out
}

func (s *Store) GetMintQuote(_ context.Context, id string) (storage.MintQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.mintQuotes[id]
	if !ok {
		return storage.MintQuote{}, storage.ErrNotFound
	}
	return q, nil
}

func (s *Store) GetMeltQuote(_ context.Context, id string) (storage.MeltQuote, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	q, ok := s.meltQuotes[id]
	if !ok {
		return storage.MeltQuote{}, storage.ErrNotFound
	}
	return q, nil
}

func (s *Store) CheckState(_ context.Context, ys []string) (map[string]cashu.ProofState, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	result := make(map[string]cashu.ProofState, len(ys))
	for _, y := range ys {
		if row, ok := s.proofs[y]; ok {
			result[y] = row.state
		} else {
			result[y] = cashu.Unspent
		}
	}
	return result, nil
}

func (s *Store) Restore(_ context.Context, blindedSecrets []string) ([]storage.BlindSignatureRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []storage.BlindSignatureRow
	for _, b_ := range blindedSecrets {
		if sig, ok := s.blindSigs[b_]; ok {
			out = append(out, storage.BlindSignatureRow{B_: b_, Signature: sig})
		}
	}
	return out, nil
}

func (s *Store) GetEcashIssued(_ context.Context) (map[cashu.KeysetId]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[cashu.KeysetId]uint64)
	for _, sig := range s.blindSigs {
		out[sig.Id] += sig.Amount
	}
	return out, nil
}

func (s *Store) GetEcashRedeemed(_ context.Context) (map[cashu.KeysetId]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[cashu.KeysetId]uint64)
	for _, row := range s.proofs {
		if row.state == cashu.Spent {
			out[row.keysetId] += row.amount
		}
	}
	return out, nil
}

// WithSerializableTx holds the store's single lock for fn's entire
// duration, which is strictly stronger than Postgres SERIALIZABLE
// isolation (no two bodies ever interleave at all) and therefore a
// sound stand-in for it in unit tests.
func (s *Store) WithSerializableTx(ctx context.Context, fn func(ctx context.Context, tx storage.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return fn(ctx, &tx{s: s})
}

type tx struct {
	s *Store
}

func (t *tx) SaveKeyset(_ context.Context, ks storage.Keyset) error {
	t.s.keysets[ks.Id] = ks
	return nil
}

func (t *tx) DeactivateKeyset(_ context.Context, id cashu.KeysetId) error {
	ks, ok := t.s.keysets[id]
	if !ok {
		return storage.ErrNotFound
	}
	ks.Active = false
	t.s.keysets[id] = ks
	return nil
}

func (t *tx) GetActiveKeysets(_ context.Context) ([]storage.Keyset, error) {
	return sortedKeysets(t.s.keysets, true), nil
}

func (t *tx) InsertSpentProof(_ context.Context, y string, amount uint64, keysetId cashu.KeysetId, secret, c string, state cashu.ProofState) (bool, error) {
	if _, exists := t.s.proofs[y]; exists {
		return false, nil
	}
	t.s.proofs[y] = proofRow{amount: amount, keysetId: keysetId, secret: secret, c: c, state: state}
	return true, nil
}

func (t *tx) MarkProofsSpent(_ context.Context, ys []string) error {
	for _, y := range ys {
		row, ok := t.s.proofs[y]
		if !ok || row.state != cashu.Pending {
			continue
		}
		row.state = cashu.Spent
		t.s.proofs[y] = row
	}
	return nil
}

func (t *tx) BlindSignatureExists(_ context.Context, b_ string) (bool, error) {
	_, exists := t.s.blindSigs[b_]
	return exists, nil
}

func (t *tx) InsertBlindSignature(_ context.Context, b_ string, sig cashu.BlindedSignature) (bool, error) {
	if _, exists := t.s.blindSigs[b_]; exists {
		return true, nil
	}
	t.s.blindSigs[b_] = sig
	return false, nil
}

func (t *tx) InsertMintQuote(_ context.Context, q storage.MintQuote) error {
	t.s.mintQuotes[q.Id] = q
	return nil
}

func (t *tx) GetMintQuoteForUpdate(_ context.Context, id string) (storage.MintQuote, error) {
	q, ok := t.s.mintQuotes[id]
	if !ok {
		return storage.MintQuote{}, storage.ErrNotFound
	}
	return q, nil
}

func (t *tx) FindMintQuoteByInvoiceId(_ context.Context, invoiceId string) (storage.MintQuote, error) {
	for _, q := range t.s.mintQuotes {
		if q.InvoiceId == invoiceId {
			return q, nil
		}
	}
	return storage.MintQuote{}, storage.ErrNotFound
}

func (t *tx) UpdateMintQuoteState(_ context.Context, id string, state cashu.MintQuoteState) error {
	q, ok := t.s.mintQuotes[id]
	if !ok {
		return storage.ErrNotFound
	}
	q.State = state
	t.s.mintQuotes[id] = q
	return nil
}

func (t *tx) InsertMeltQuote(_ context.Context, q storage.MeltQuote) error {
	t.s.meltQuotes[q.Id] = q
	return nil
}

func (t *tx) GetMeltQuoteForUpdate(_ context.Context, id string) (storage.MeltQuote, error) {
	q, ok := t.s.meltQuotes[id]
	if !ok {
		return storage.MeltQuote{}, storage.ErrNotFound
	}
	return q, nil
}

func (t *tx) UpdateMeltQuoteState(_ context.Context, id string, state cashu.MeltQuoteState, transferIds []string) error {
	q, ok := t.s.meltQuotes[id]
	if !ok {
		return storage.ErrNotFound
	}
	q.State = state
	q.TransferIds = transferIds
	t.s.meltQuotes[id] = q
	return nil
}

func (t *tx) InsertPaymentEvent(_ context.Context, ev storage.PaymentEvent) (bool, error) {
	key := [2]string{ev.TxHash, itoa(ev.EventIndex)}
	if _, exists := t.s.paymentEvents[key]; exists {
		return false, nil
	}
	t.s.paymentEvents[key] = ev
	return true, nil
}

func (t *tx) SumPaymentsForInvoice(_ context.Context, invoiceId string) (uint64, uint64, bool, error) {
	var low, high uint64
	for _, ev := range t.s.paymentEvents {
		if ev.InvoiceId != invoiceId {
			continue
		}
		var carry uint64
		low, carry = bits.Add64(low, ev.AmountLow, 0)
		var overflow uint64
		high, overflow = bits.Add64(high, ev.AmountHigh, carry)
		if overflow != 0 {
			return low, high, true, nil
		}
	}
	return low, high, false, nil
}

func (t *tx) DeletePaymentEventsAboveHeight(_ context.Context, height uint64) error {
	for key, ev := range t.s.paymentEvents {
		if ev.BlockId > height {
			delete(t.s.paymentEvents, key)
		}
	}
	return nil
}

func (t *tx) ListAffectedInvoicesAboveHeight(_ context.Context, height uint64) ([]string, error) {
	seen := make(map[string]struct{})
	for _, ev := range t.s.paymentEvents {
		if ev.BlockId > height {
			seen[ev.InvoiceId] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out, nil
}

func itoa(n uint32) string {
	if n == 0 {
		return "0"
	}
	var buf [10]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	return string(buf[i:])
}
