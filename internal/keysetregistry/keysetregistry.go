// Package keysetregistry owns keyset rotation (spec.md §4.2): the
// atomic, per-unit replacement of active keysets with freshly-declared
// successors, and the first-boot bootstrap that seeds one keyset per
// configured unit.
package keysetregistry

import (
	"context"
	"encoding/hex"
	"fmt"
	"strconv"

	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/keyset"
	"github.com/paynet-mint/node/internal/keysetcache"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/storage"
)

// DefaultBootstrapMaxOrder is the max_order a first-ever boot declares
// for each configured unit (spec.md §4.2: "call DeclareKeyset(unit, 0, 32)").
const DefaultBootstrapMaxOrder = 32

// Registry drives rotation and bootstrap on top of the store's
// serializable-transaction boundary, keeping the Keyset Cache consistent
// with what actually committed.
type Registry struct {
	store  storage.Store
	signer keysetcache.SignerClient
	cache  *keysetcache.Cache
	log    obs.Logger
}

func New(store storage.Store, signerClient keysetcache.SignerClient, cache *keysetcache.Cache, log obs.Logger) *Registry {
	return &Registry{store: store, signer: signerClient, cache: cache, log: log}
}

// Bootstrap declares and persists one active keyset per unit if and only
// if the store currently has none — spec.md §4.2's "first-ever boot"
// case. It is safe to call on every startup.
func (r *Registry) Bootstrap(ctx context.Context, units []cashu.Unit) error {
	existing, err := r.store.ListKeysets(ctx)
	if err != nil {
		return fmt.Errorf("listing keysets: %w", err)
	}
	if len(existing) > 0 {
		return nil
	}

	for _, unit := range units {
		decl, err := r.signer.DeclareKeyset(ctx, &signer.DeclareKeysetRequest{
			Unit:     int(unit),
			Index:    0,
			MaxOrder: DefaultBootstrapMaxOrder,
		})
		if err != nil {
			return fmt.Errorf("declaring bootstrap keyset for unit %v: %w", unit, err)
		}

		id := cashu.KeysetId(decl.Id)
		err = r.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
			return tx.SaveKeyset(ctx, storage.Keyset{
				Id: id, Unit: unit, Active: true, DerivationPathIdx: decl.Index, MaxOrder: decl.MaxOrder,
			})
		})
		if err != nil {
			return fmt.Errorf("persisting bootstrap keyset for unit %v: %w", unit, err)
		}

		r.log.Infof("bootstrapped keyset %s for unit %v max_order=%d", id, unit, decl.MaxOrder)
	}
	return nil
}

// RotateKeysets implements spec.md §4.2 end to end: declare a successor
// for every active keyset (index+1, same unit/max_order), persist and
// deactivate within one serializable transaction, and only on commit
// success fold the change into the cache.
func (r *Registry) RotateKeysets(ctx context.Context) ([]cashu.KeysetId, error) {
	active := r.cache.ListActive()
	if len(active) == 0 {
		return nil, nil
	}

	type plan struct {
		oldId cashu.KeysetId
		unit  cashu.Unit
		decl  *signer.DeclareKeysetResponse
	}
	plans := make([]plan, 0, len(active))
	for oldId, info := range active {
		decl, err := r.signer.DeclareKeyset(ctx, &signer.DeclareKeysetRequest{
			Unit:     int(info.Unit),
			Index:    info.Index + 1,
			MaxOrder: info.MaxOrder,
		})
		if err != nil {
			return nil, fmt.Errorf("declaring successor for keyset %s: %w", oldId, err)
		}
		plans = append(plans, plan{oldId: oldId, unit: info.Unit, decl: decl})
	}

	newIds := make([]cashu.KeysetId, 0, len(plans))
	err := r.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		for _, p := range plans {
			newId := cashu.KeysetId(p.decl.Id)
			if err := tx.SaveKeyset(ctx, storage.Keyset{
				Id: newId, Unit: p.unit, Active: true,
				DerivationPathIdx: p.decl.Index, MaxOrder: p.decl.MaxOrder,
			}); err != nil {
				return fmt.Errorf("saving rotated keyset for unit %v: %w", p.unit, err)
			}
			if err := tx.DeactivateKeyset(ctx, p.oldId); err != nil {
				return fmt.Errorf("deactivating keyset %s: %w", p.oldId, err)
			}
			newIds = append(newIds, newId)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	// Commit succeeded: fold the transition into the cache exactly as
	// committed, never from pre-commit state (spec.md §4.2 step 6).
	for i, p := range plans {
		newId := newIds[i]
		keys, err := declaredPublicKeys(p.decl)
		if err != nil {
			// The transaction already committed; a malformed signer
			// response here is a cache-consistency bug, not a reason to
			// pretend rotation failed. Leave the cache cold for newId —
			// the next Keys() call re-derives and verifies it.
			r.log.Errorf("rotated keyset %s has unparseable key material, cache left cold: %v", newId, err)
			r.cache.Deactivate(p.oldId)
			continue
		}
		r.cache.Insert(newId, keysetcache.Info{Unit: p.unit, Active: true, Index: p.decl.Index, MaxOrder: p.decl.MaxOrder}, keys)
		r.cache.Deactivate(p.oldId)
	}

	return newIds, nil
}

func declaredPublicKeys(decl *signer.DeclareKeysetResponse) (keyset.PublicKeys, error) {
	keys := make(keyset.PublicKeys, len(decl.Keys))
	for amountStr, pubHex := range decl.Keys {
		amount, pub, err := parseAmountPubkey(amountStr, pubHex)
		if err != nil {
			return nil, err
		}
		keys[amount] = pub
	}
	return keys, nil
}

func parseAmountPubkey(amountStr, pubHex string) (uint64, *secp256k1.PublicKey, error) {
	amount, err := strconv.ParseUint(amountStr, 10, 64)
	if err != nil {
		return 0, nil, fmt.Errorf("non-numeric amount %q: %w", amountStr, err)
	}
	pubBytes, err := hex.DecodeString(pubHex)
	if err != nil {
		return 0, nil, fmt.Errorf("undecodable pubkey: %w", err)
	}
	pub, err := secp256k1.ParsePubKey(pubBytes)
	if err != nil {
		return 0, nil, fmt.Errorf("invalid pubkey: %w", err)
	}
	return amount, pub, nil
}
