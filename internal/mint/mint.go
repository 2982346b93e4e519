// Package mint wires the Keyset Registry, the proof Ledger and the swap,
// mint-quote and melt-quote engines into the single orchestrator that
// sits behind both the wallet-facing Request API and the admin RPC
// (spec.md §6). It owns nothing those packages don't already own — its
// job is routing, idempotency and the mint-info surface NUT-06 callers
// expect.
package mint

import (
	"context"
	"time"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/keyset"
	"github.com/paynet-mint/node/internal/keysetcache"
	"github.com/paynet-mint/node/internal/keysetregistry"
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/meltquote"
	"github.com/paynet-mint/node/internal/metrics"
	"github.com/paynet-mint/node/internal/mintquote"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/responsecache"
	"github.com/paynet-mint/node/internal/storage"
	"github.com/paynet-mint/node/internal/swap"
)

// MethodInfo describes one supported (method, unit) pair's mint/melt
// bounds, the per-unit slice of nut06.NutSetting's "4"/"5" method lists.
type MethodInfo struct {
	Method        string
	Unit          cashu.Unit
	MintMinAmount uint64
	MintMaxAmount uint64
	MeltMinAmount uint64
	MeltMaxAmount uint64
}

// Info is the wallet-facing mint description served by GetMintInfo —
// a deliberately smaller cousin of the teacher's nut06.MintInfo with
// just the fields this deployment actually has an answer for.
type Info struct {
	Name        string
	Description string
	Pubkey      string
	Methods     []MethodInfo
}

// KeysetKeys is the public response shape for a single keyset: its
// metadata joined with its current derived public keys.
type KeysetKeys struct {
	Id     cashu.KeysetId
	Unit   cashu.Unit
	Active bool
	Keys   keyset.PublicKeys
}

// KeysetSummary is the response shape for Keysets: metadata only, no
// keys, so a full listing doesn't force-derive every keyset on the spot.
type KeysetSummary struct {
	Id     cashu.KeysetId
	Unit   cashu.Unit
	Active bool
}

// Mint is the orchestrator: every wallet-facing and admin operation of
// spec.md §6 is a method on it.
type Mint struct {
	store    storage.Store
	cache    *keysetcache.Cache
	registry *keysetregistry.Registry
	ledger   *ledger.Ledger
	swapEng  *swap.Engine
	mintEng  *mintquote.Engine
	meltEng  *meltquote.Engine
	log      obs.Logger

	mintCache *responsecache.Cache
	swapCache *responsecache.Cache
	meltCache *responsecache.Cache

	gauges *metrics.Gauges
	info   Info
}

// Config bundles everything New needs besides the already-constructed
// engines, so callers don't have to remember cache sizes/TTLs at every
// call site.
type Config struct {
	ResponseCacheSize int
	ResponseCacheTTL  time.Duration
	Info              Info
}

func New(
	store storage.Store,
	cache *keysetcache.Cache,
	registry *keysetregistry.Registry,
	ldg *ledger.Ledger,
	swapEng *swap.Engine,
	mintEng *mintquote.Engine,
	meltEng *meltquote.Engine,
	gauges *metrics.Gauges,
	log obs.Logger,
	cfg Config,
) *Mint {
	return &Mint{
		store:     store,
		cache:     cache,
		registry:  registry,
		ledger:    ldg,
		swapEng:   swapEng,
		mintEng:   mintEng,
		meltEng:   meltEng,
		log:       log,
		mintCache: responsecache.New(cfg.ResponseCacheSize, cfg.ResponseCacheTTL),
		swapCache: responsecache.New(cfg.ResponseCacheSize, cfg.ResponseCacheTTL),
		meltCache: responsecache.New(cfg.ResponseCacheSize, cfg.ResponseCacheTTL),
		gauges:    gauges,
		info:      cfg.Info,
	}
}

// Keys returns the public keys for a single keyset, active or not, or
// for every active keyset when id is nil (the NUT-01 "/v1/keys" shape).
func (m *Mint) Keys(ctx context.Context, id *cashu.KeysetId) ([]KeysetKeys, error) {
	if id != nil {
		info, err := m.cache.Info(ctx, *id)
		if err != nil {
			if err == storage.ErrNotFound {
				return nil, cashuerr.UnknownKeyset
			}
			return nil, err
		}
		keys, err := m.cache.Keys(ctx, *id)
		if err != nil {
			return nil, err
		}
		return []KeysetKeys{{Id: *id, Unit: info.Unit, Active: info.Active, Keys: keys}}, nil
	}

	active := m.cache.ListActive()
	out := make([]KeysetKeys, 0, len(active))
	for ksId, info := range active {
		keys, err := m.cache.Keys(ctx, ksId)
		if err != nil {
			return nil, err
		}
		out = append(out, KeysetKeys{Id: ksId, Unit: info.Unit, Active: info.Active, Keys: keys})
	}
	return out, nil
}

// Keysets lists every keyset's metadata, active and retired alike (the
// NUT-02 "/v1/keysets" shape) — unlike Keys/ListActive, this reads
// straight through to storage so a retired keyset still shows up.
func (m *Mint) Keysets(ctx context.Context) ([]KeysetSummary, error) {
	rows, err := m.store.ListKeysets(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]KeysetSummary, len(rows))
	for i, r := range rows {
		out[i] = KeysetSummary{Id: r.Id, Unit: r.Unit, Active: r.Active}
	}
	return out, nil
}

// MintQuote creates a new mint quote for amount units of unit, via method.
func (m *Mint) MintQuote(ctx context.Context, method string, unit cashu.Unit, amount uint64) (mintquote.Quote, error) {
	return m.mintEng.CreateMintQuote(ctx, method, unit, amount)
}

// MintQuoteState reports a mint quote's current state.
func (m *Mint) MintQuoteState(ctx context.Context, method, quoteId string) (storage.MintQuote, error) {
	return m.mintEng.GetMintQuoteState(ctx, method, quoteId)
}

type mintFingerprint struct {
	Method  string
	QuoteId string
	Outputs cashu.BlindedMessages
}

// Mint redeems a paid mint quote for blind signatures over outputs,
// idempotently: a retried call with the same quote and outputs is
// served the first call's signatures (or error) rather than re-running
// the redemption.
func (m *Mint) Mint(ctx context.Context, method, quoteId string, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	fp, err := responsecache.Fingerprint(mintFingerprint{Method: method, QuoteId: quoteId, Outputs: outputs})
	if err != nil {
		return nil, err
	}
	v, err := m.mintCache.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return m.mintEng.Mint(ctx, method, quoteId, outputs)
	})
	if err != nil {
		return nil, err
	}
	return v.(cashu.BlindedSignatures), nil
}

// MeltQuote creates a new melt quote paying request via method.
func (m *Mint) MeltQuote(ctx context.Context, method string, unit cashu.Unit, request string) (meltquote.Quote, error) {
	return m.meltEng.CreateMeltQuote(ctx, method, unit, request)
}

// MeltQuoteState reports a melt quote's current state.
func (m *Mint) MeltQuoteState(ctx context.Context, method, quoteId string) (storage.MeltQuote, error) {
	return m.meltEng.GetMeltQuoteState(ctx, method, quoteId)
}

type meltFingerprint struct {
	Method  string
	QuoteId string
	Inputs  cashu.Proofs
}

// Melt spends inputs to settle a melt quote, idempotently per (method,
// quote, inputs).
func (m *Mint) Melt(ctx context.Context, method, quoteId string, inputs cashu.Proofs) (storage.MeltQuote, error) {
	fp, err := responsecache.Fingerprint(meltFingerprint{Method: method, QuoteId: quoteId, Inputs: inputs})
	if err != nil {
		return storage.MeltQuote{}, err
	}
	v, err := m.meltCache.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return m.meltEng.Melt(ctx, method, quoteId, inputs)
	})
	if err != nil {
		return storage.MeltQuote{}, err
	}
	return v.(storage.MeltQuote), nil
}

type swapFingerprint struct {
	Inputs  cashu.Proofs
	Outputs cashu.BlindedMessages
}

// Swap exchanges inputs for outputs of equal balanced value, idempotently
// per (inputs, outputs) pair.
func (m *Mint) Swap(ctx context.Context, inputs cashu.Proofs, outputs cashu.BlindedMessages) (cashu.BlindedSignatures, error) {
	fp, err := responsecache.Fingerprint(swapFingerprint{Inputs: inputs, Outputs: outputs})
	if err != nil {
		return nil, err
	}
	v, err := m.swapCache.Do(ctx, fp, func(ctx context.Context) (any, error) {
		return m.swapEng.Swap(ctx, inputs, outputs)
	})
	if err != nil {
		return nil, err
	}
	return v.(cashu.BlindedSignatures), nil
}

// CheckState reports the spend state of each Y value in ys.
func (m *Mint) CheckState(ctx context.Context, ys []string) (map[string]cashu.ProofState, error) {
	return m.store.CheckState(ctx, ys)
}

// Restore returns the issued blind signatures for any of blindedSecrets
// this mint has signed before, for wallet recovery from seed.
func (m *Mint) Restore(ctx context.Context, blindedSecrets []string) ([]storage.BlindSignatureRow, error) {
	return m.store.Restore(ctx, blindedSecrets)
}

// RotateKeysets retires the active keyset per unit in favor of a freshly
// derived successor. Admin-only: exposed over the hand-built RPC in
// adminrpc.go, not the wallet-facing Request API.
func (m *Mint) RotateKeysets(ctx context.Context) ([]cashu.KeysetId, error) {
	return m.registry.RotateKeysets(ctx)
}

// GetMintInfo returns this deployment's static NUT-06-style description.
func (m *Mint) GetMintInfo() Info {
	return m.info
}
