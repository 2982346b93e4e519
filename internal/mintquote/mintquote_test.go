package mintquote

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
	"github.com/paynet-mint/node/internal/ledger"
	"github.com/paynet-mint/node/internal/liquidity"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage"
	"github.com/paynet-mint/node/internal/storage/memstore"
)

type harness struct {
	store  *memstore.Store
	ksId   cashu.KeysetId
	engine *Engine
}

func newHarness(t *testing.T, limits Limits) *harness {
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
	declared, err := sgnr.DeclareKeyset(cashu.MilliStrk, 0, 4)
	if err != nil {
		t.Fatalf("DeclareKeyset: %v", err)
	}

	ctx := context.Background()
	if err := store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.SaveKeyset(ctx, storage.Keyset{
			Id: declared.Id, Unit: cashu.MilliStrk, Active: true, DerivationPathIdx: 0, MaxOrder: 4,
		})
	}); err != nil {
		t.Fatalf("SaveKeyset: %v", err)
	}

	client := signer.NewServer(sgnr)
	cache := keysetcache.New(store, client, log)
	l := ledger.New(cache, client)
	src := liquidity.NewMock()

	engine := New(store, l, src, log, cashu.MilliStrk, limits, starknet.FeltFromUint64(1), time.Hour)
	return &harness{store: store, ksId: declared.Id, engine: engine}
}

func (h *harness) blindedMessage(t *testing.T, amount uint64, secret string) cashu.BlindedMessage {
	t.Helper()
	B_, _, err := bdhke.Blind([]byte(secret), nil)
	if err != nil {
		t.Fatalf("Blind: %v", err)
	}
	return cashu.BlindedMessage{Id: h.ksId, Amount: amount, B_: hex.EncodeToString(B_.SerializeCompressed())}
}

func TestCreateMintQuoteThenMintRoundTrip(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Limits{Min: 1, Max: 1000})

	quote, err := h.engine.CreateMintQuote(ctx, cashu.StarknetMethod, cashu.MilliStrk, 4)
	if err != nil {
		t.Fatalf("CreateMintQuote: %v", err)
	}
	if quote.PaymentPayload == "" {
		t.Fatal("expected a non-empty payment payload")
	}

	if err := h.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateMintQuoteState(ctx, quote.Id, cashu.MintPaid)
	}); err != nil {
		t.Fatalf("UpdateMintQuoteState: %v", err)
	}

	outputs := cashu.BlindedMessages{h.blindedMessage(t, 4, "out-1")}
	sigs, err := h.engine.Mint(ctx, cashu.StarknetMethod, quote.Id, outputs)
	if err != nil {
		t.Fatalf("Mint: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("len(sigs) = %d, want 1", len(sigs))
	}

	q, err := h.store.GetMintQuote(ctx, quote.Id)
	if err != nil {
		t.Fatalf("GetMintQuote: %v", err)
	}
	if q.State != cashu.MintIssued {
		t.Fatalf("quote state = %v, want ISSUED", q.State)
	}
}

func TestMintRejectsUnpaidQuote(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Limits{Min: 1, Max: 1000})

	quote, err := h.engine.CreateMintQuote(ctx, cashu.StarknetMethod, cashu.MilliStrk, 4)
	if err != nil {
		t.Fatalf("CreateMintQuote: %v", err)
	}

	outputs := cashu.BlindedMessages{h.blindedMessage(t, 4, "out-1")}
	_, err = h.engine.Mint(ctx, cashu.StarknetMethod, quote.Id, outputs)
	if err == nil {
		t.Fatal("expected Mint on an UNPAID quote to fail")
	}
}

func TestCreateMintQuoteRejectsAmountOutOfRange(t *testing.T) {
	ctx := context.Background()
	h := newHarness(t, Limits{Min: 10, Max: 100})

	_, err := h.engine.CreateMintQuote(ctx, cashu.StarknetMethod, cashu.MilliStrk, 1)
	if err == nil {
		t.Fatal("expected amount below minimum to fail")
	}
}
