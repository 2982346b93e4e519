package mint

import (
	"context"
	"encoding/hex"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/paynet-mint/node/internal/bdhke"
	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/keysetcache"
	"github.com/paynet-mint/node/internal/keysetregistry"
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/meltquote"
	"github.com/paynet-mint/node/internal/metrics"
	"github.com/paynet-mint/node/internal/mintquote"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage"
	"github.com/paynet-mint/node/internal/storage/memstore"
	"github.com/paynet-mint/node/internal/swap"
)

type stubCashier struct{ transferIds []string }

func (s *stubCashier) Withdraw(_ context.Context, invoiceId, asset string, amount uint64, payee string) ([]string, error) {
	return s.transferIds, nil
}

type harness struct {
	store  *memstore.Store
	signer *signer.Signer
	ksId   cashu.KeysetId
	mint   *Mint
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	store := memstore.New()
	log := obs.Wrap(obs.NewLogger(io.Discard, slog.LevelError))

	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatalf("generating seed: %v", err)
	}
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatalf("building master key: %v", err)
	}
	sgnr := signer.New(root, log)
	client := signer.NewServer(sgnr)

	cache := keysetcache.New(store, client, log)
	registry := keysetregistry.New(store, client, cache, log)
	ctx := context.Background()
	if err := registry.Bootstrap(ctx, []cashu.Unit{cashu.MilliStrk}); err != nil {
		t.Fatalf("Bootstrap: %v", err)
	}
	if err := cache.Warm(ctx); err != nil {
		t.Fatalf("Warm: %v", err)
	}
	active := cache.ListActive()
	var ksId cashu.KeysetId
	for id := range active {
		ksId = id
	}

	l := ledger.New(cache, client)
	swapEng := swap.New(store, l, log)

	mintSrc := liquidity.NewMock()
	meltSrc := liquidity.NewStarknet(liquidity.StarknetConfig{
		TokenAddress:   starknet.FeltFromUint64(1),
		CashierAddress: starknet.FeltFromUint64(2),
	}, &stubCashier{transferIds: []string{"0xabc"}})

	mintEng := mintquote.New(store, l, mintSrc, log, cashu.MilliStrk, mintquote.Limits{Min: 1, Max: 1000}, starknet.FeltFromUint64(1), time.Hour)
	meltEng := meltquote.New(store, l, meltSrc, log, cashu.MilliStrk, meltquote.Limits{Min: 1, Max: 1000, Fee: 1}, time.Hour)

	gauges := metrics.New(store, log)

	m := New(store, cache, registry, l, swapEng, mintEng, meltEng, gauges, log, Config{
		ResponseCacheSize: 64,
		ResponseCacheTTL:  time.Minute,
		Info: Info{
			Name:        "test mint",
			Description: "test fixture",
			Methods: []MethodInfo{
				{Method: cashu.StarknetMethod, Unit: cashu.MilliStrk, MintMinAmount: 1, MintMaxAmount: 1000, MeltMinAmount: 1, MeltMaxAmount: 1000},
			},
		},
	})

	return &harness{store: store, signer: sgnr, ksId: ksId, mint: m}
}

func (h *harness) blindedMessage(t *testing.T, amount uint64, secret string) cashu.BlindedMessage {
	t.Helper()
	B_, _, err := bdhke.Blind([]byte(secret), nil)
	if err != nil {
		t.Fatalf("Blind: %v", err)
	}
	return cashu.BlindedMessage{Id: h.ksId, Amount: amount, B_: hex.EncodeToString(B_.SerializeCompressed())}
}

func TestKeysReturnsRequestedKeyset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.mint.Keys(ctx, &h.ksId)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(got) != 1 || got[0].Id != h.ksId || !got[0].Active {
		t.Fatalf("Keys = %+v, want one active entry for %s", got, h.ksId)
	}
	if len(got[0].Keys) == 0 {
		t.Fatal("expected non-empty derived keys")
	}
}

func TestKeysWithNoIdListsAllActive(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.mint.Keys(ctx, nil)
	if err != nil {
		t.Fatalf("Keys: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("Keys = %d entries, want 1", len(got))
	}
}

func TestKeysUnknownIdReturnsUnknownKeysetError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	bogus := cashu.KeysetId("deadbeefdeadbeef")
	if _, err := h.mint.Keys(ctx, &bogus); err == nil {
		t.Fatal("expected an error for an unknown keyset id")
	}
}

func TestKeysetsListsMetadataOnly(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	got, err := h.mint.Keysets(ctx)
	if err != nil {
		t.Fatalf("Keysets: %v", err)
	}
	if len(got) != 1 || got[0].Id != h.ksId {
		t.Fatalf("Keysets = %+v, want one entry for %s", got, h.ksId)
	}
}

func TestMintQuoteThenMintIsIdempotent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	quote, err := h.mint.MintQuote(ctx, cashu.StarknetMethod, cashu.MilliStrk, 4)
	if err != nil {
		t.Fatalf("MintQuote: %v", err)
	}

	if err := h.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateMintQuoteState(ctx, quote.Id, cashu.MintPaid)
	}); err != nil {
		t.Fatalf("marking quote paid: %v", err)
	}

	outputs := cashu.BlindedMessages{h.blindedMessage(t, 4, "secret-1")}

	sigs1, err := h.mint.Mint(ctx, cashu.StarknetMethod, quote.Id, outputs)
	if err != nil {
		t.Fatalf("Mint (first call): %v", err)
	}
	if len(sigs1) != 1 {
		t.Fatalf("Mint returned %d signatures, want 1", len(sigs1))
	}

	sigs2, err := h.mint.Mint(ctx, cashu.StarknetMethod, quote.Id, outputs)
	if err != nil {
		t.Fatalf("Mint (retried call): %v", err)
	}
	if sigs2[0].C_ != sigs1[0].C_ {
		t.Fatalf("retried Mint returned a different signature: %+v vs %+v", sigs2, sigs1)
	}

	state, err := h.mint.MintQuoteState(ctx, cashu.StarknetMethod, quote.Id)
	if err != nil {
		t.Fatalf("MintQuoteState: %v", err)
	}
	if state.State != cashu.MintIssued {
		t.Fatalf("quote state = %v, want Issued", state.State)
	}
}

func TestRotateKeysetsRetiresOldAndActivatesNew(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	newIds, err := h.mint.RotateKeysets(ctx)
	if err != nil {
		t.Fatalf("RotateKeysets: %v", err)
	}
	if len(newIds) != 1 {
		t.Fatalf("RotateKeysets returned %d ids, want 1", len(newIds))
	}

	sets, err := h.mint.Keysets(ctx)
	if err != nil {
		t.Fatalf("Keysets: %v", err)
	}
	var sawOldInactive, sawNewActive bool
	for _, ks := range sets {
		if ks.Id == h.ksId && !ks.Active {
			sawOldInactive = true
		}
		if ks.Id == newIds[0] && ks.Active {
			sawNewActive = true
		}
	}
	if !sawOldInactive || !sawNewActive {
		t.Fatalf("Keysets = %+v, want old keyset inactive and new keyset active", sets)
	}
}

func TestGetMintInfoReturnsConfiguredInfo(t *testing.T) {
	h := newHarness(t)
	info := h.mint.GetMintInfo()
	if info.Name != "test mint" || len(info.Methods) != 1 {
		t.Fatalf("GetMintInfo = %+v, unexpected", info)
	}
}

func TestCheckStateDelegatesToStore(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	states, err := h.mint.CheckState(ctx, []string{"nonexistent-y"})
	if err != nil {
		t.Fatalf("CheckState: %v", err)
	}
	if states["nonexistent-y"] != cashu.Unspent {
		t.Fatalf("CheckState = %v, want Unspent for an unseen Y", states["nonexistent-y"])
	}
}
