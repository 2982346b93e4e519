package keysetcache

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"strconv"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/storage"
	"github.com/paynet-mint/node/internal/storage/memstore"
)

// localSigner adapts the in-process *signer.Signer to the ctx-shaped
// SignerClient interface this cache depends on, so tests do not need a
// real gRPC server/client pair.
type localSigner struct {
	s *signer.Signer
}

func (l *localSigner) DeclareKeyset(_ context.Context, req *signer.DeclareKeysetRequest) (*signer.DeclareKeysetResponse, error) {
	decl, err := l.s.DeclareKeyset(cashu.Unit(req.Unit), req.Index, req.MaxOrder)
	if err != nil {
		return nil, err
	}
	keys := make(map[string]string, len(decl.Keys))
	for amount, pub := range decl.Keys {
		keys[strconv.FormatUint(amount, 10)] = hex.EncodeToString(pub.SerializeCompressed())
	}
	return &signer.DeclareKeysetResponse{
		Id: decl.Id.String(), Unit: int(decl.Unit), Index: decl.Index, MaxOrder: decl.MaxOrder, Keys: keys,
	}, nil
}

func testSigner(t *testing.T) *signer.Signer {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("generating seed: %v", err)
	}
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("building master key: %v", err)
	}
	log := obs.Wrap(slog.New(slog.NewTextHandler(io.Discard, nil)))
	return signer.New(root, log)
}

func TestKeysCacheMissRederivesAndVerifies(t *testing.T) {
	ctx := context.Background()
	sgnr := testSigner(t)
	ls := &localSigner{s: sgnr}
	store := memstore.New()

	decl, err := sgnr.DeclareKeyset(cashu.MilliStrk, 0, 4)
	if err != nil {
		t.Fatalf("DeclareKeyset: %v", err)
	}
	err = store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveKeyset(ctx, storage.Keyset{Id: decl.Id, Unit: cashu.MilliStrk, Active: true, DerivationPathIdx: 0, MaxOrder: 4})
	})
	if err != nil {
		t.Fatalf("SaveKeyset: %v", err)
	}

	cache := New(store, ls, obs.Wrap(slog.New(slog.NewTextHandler(io.Discard, nil))))

	keys, err := cache.Keys(ctx, decl.Id)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(keys) != 4 {
		t.Fatalf("len(keys) = %d, want 4", len(keys))
	}
	for amount := uint64(1); amount <= 8; amount *= 2 {
		if _, ok := keys[amount]; !ok {
			t.Fatalf("missing key for amount %d", amount)
		}
	}

	// Second call must hit the warm cache, not re-derive.
	again, err := cache.Keys(ctx, decl.Id)
	if err != nil {
		t.Fatalf("Keys (warm): %v", err)
	}
	if len(again) != len(keys) {
		t.Fatalf("warm cache returned a different key set")
	}
}

func TestInfoCacheMissLoadsFromStore(t *testing.T) {
	ctx := context.Background()
	store := memstore.New()
	id := cashu.KeysetId("00aabbccddeeff00")
	err := store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveKeyset(ctx, storage.Keyset{Id: id, Unit: cashu.MilliStrk, Active: true, DerivationPathIdx: 2, MaxOrder: 8})
	})
	if err != nil {
		t.Fatalf("SaveKeyset: %v", err)
	}

	cache := New(store, &localSigner{s: testSigner(t)}, obs.Wrap(slog.New(slog.NewTextHandler(io.Discard, nil))))
	info, err := cache.Info(ctx, id)
	if err != nil {
		t.Fatalf("Info: %v", err)
	}
	if info.MaxOrder != 8 || info.Index != 2 || !info.Active {
		t.Fatalf("unexpected info: %+v", info)
	}
}
