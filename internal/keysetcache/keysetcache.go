// Package keysetcache implements the read-through Keyset Cache of
// spec.md §4.3: a process-wide map of KeysetId to its (unit, active,
// max_order) info and its sorted amount->pubkey material, backed by the
// store on a cache miss and verified against the Signer's recomputed
// KeysetId.
package keysetcache

import (
	"context"
	"encoding/hex"
	"strconv"
	"sync"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/cashuerr"
	"github.com/paynet-mint/node/internal/keyset"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/storage"
)

// Info is the cache's per-keyset metadata entry.
type Info struct {
	Unit     cashu.Unit
	Active   bool
	Index    uint32
	MaxOrder uint32
}

// SignerClient is the subset of *signer.Client this cache needs to
// re-derive public material on a cold-start miss.
type SignerClient interface {
	DeclareKeyset(ctx context.Context, req *signer.DeclareKeysetRequest) (*signer.DeclareKeysetResponse, error)
}

// Cache is the process-wide Keyset Cache. Readers never block on writers
// after warm-up; every mutating path (warm-up load, miss-fill, rotation
// update) takes the single write lock (spec.md §4.3, §5).
type Cache struct {
	store  storage.Store
	signer SignerClient
	log    obs.Logger

	mu   sync.RWMutex
	info map[cashu.KeysetId]Info
	keys map[cashu.KeysetId]keyset.PublicKeys
}

func New(store storage.Store, signerClient SignerClient, log obs.Logger) *Cache {
	return &Cache{
		store:  store,
		signer: signerClient,
		log:    log,
		info:   make(map[cashu.KeysetId]Info),
		keys:   make(map[cashu.KeysetId]keyset.PublicKeys),
	}
}

// Warm loads every persisted keyset's info into the cache without
// fetching public key material — keys are filled lazily on first use
// by Keys, which re-derives and verifies them.
func (c *Cache) Warm(ctx context.Context) error {
	rows, err := c.store.ListKeysets(ctx)
	if err != nil {
		return err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for _, row := range rows {
		c.info[row.Id] = Info{Unit: row.Unit, Active: row.Active, Index: row.DerivationPathIdx, MaxOrder: row.MaxOrder}
	}
	return nil
}

// Info returns the cached metadata for a keyset, loading it from the
// store on a miss.
func (c *Cache) Info(ctx context.Context, id cashu.KeysetId) (Info, error) {
	c.mu.RLock()
	info, ok := c.info[id]
	c.mu.RUnlock()
	if ok {
		return info, nil
	}

	row, err := c.store.GetKeyset(ctx, id)
	if err != nil {
		return Info{}, err
	}
	info = Info{Unit: row.Unit, Active: row.Active, Index: row.DerivationPathIdx, MaxOrder: row.MaxOrder}

	c.mu.Lock()
	c.info[id] = info
	c.mu.Unlock()
	return info, nil
}

// Keys returns the amount->pubkey map for a keyset, loading and
// verifying it from the Signer on a miss (spec.md §4.3's
// GeneratedKeysetIdIsDifferentFromOriginal check).
func (c *Cache) Keys(ctx context.Context, id cashu.KeysetId) (keyset.PublicKeys, error) {
	c.mu.RLock()
	keys, ok := c.keys[id]
	c.mu.RUnlock()
	if ok {
		return keys, nil
	}

	info, err := c.Info(ctx, id)
	if err != nil {
		return nil, err
	}

	keys, recomputed, err := c.rederive(ctx, info.Unit, info.Index, info.MaxOrder)
	if err != nil {
		return nil, err
	}
	if recomputed != id {
		return nil, cashuerr.Buildf(cashuerr.Integrity, cashuerr.GeneratedKeysetIdDifferentCode,
			"keyset %s recomputed as %s", id, recomputed)
	}

	c.mu.Lock()
	c.keys[id] = keys
	c.mu.Unlock()
	return keys, nil
}

// Insert idempotently installs a freshly-rotated keyset's info and keys
// directly, bypassing the signer round trip RotateKeysets already did.
func (c *Cache) Insert(id cashu.KeysetId, info Info, keys keyset.PublicKeys) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.info[id] = info
	c.keys[id] = keys
}

// Deactivate marks a cached keyset inactive in place — called only after
// a RotateKeysets transaction committed (spec.md §4.2 step 6).
func (c *Cache) Deactivate(id cashu.KeysetId) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if info, ok := c.info[id]; ok {
		info.Active = false
		c.info[id] = info
	}
}

// ListActive returns every keyset currently marked active in the cache.
func (c *Cache) ListActive() map[cashu.KeysetId]Info {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make(map[cashu.KeysetId]Info)
	for id, info := range c.info {
		if info.Active {
			out[id] = info
		}
	}
	return out
}

func (c *Cache) rederive(ctx context.Context, unit cashu.Unit, index, maxOrder uint32) (keyset.PublicKeys, cashu.KeysetId, error) {
	resp, err := c.signer.DeclareKeyset(ctx, &signer.DeclareKeysetRequest{Unit: int(unit), Index: index, MaxOrder: maxOrder})
	if err != nil {
		return nil, "", err
	}

	keys := make(keyset.PublicKeys, len(resp.Keys))
	for amountStr, pubHex := range resp.Keys {
		amount, err := strconv.ParseUint(amountStr, 10, 64)
		if err != nil {
			return nil, "", cashuerr.Buildf(cashuerr.Fatal, cashuerr.SchemaMismatchCode, "signer returned non-numeric amount %q", amountStr)
		}
		pubBytes, err := hex.DecodeString(pubHex)
		if err != nil {
			return nil, "", cashuerr.Buildf(cashuerr.Fatal, cashuerr.SchemaMismatchCode, "signer returned undecodable pubkey: %v", err)
		}
		pub, err := secp256k1.ParsePubKey(pubBytes)
		if err != nil {
			return nil, "", cashuerr.Buildf(cashuerr.Cryptographic, cashuerr.InvalidSignatureErrCode, "signer returned invalid pubkey: %v", err)
		}
		keys[amount] = pub
	}

	return keys, keyset.DeriveId(keys), nil
}
