package mintapi

import (
	"bytes"
	"context"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
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
	"github.com/paynet-mint/node/internal/mint"
	"github.com/paynet-mint/node/internal/mintquote"
	"github.com/paynet-mint/node/internal/obs"
	"github.com/paynet-mint/node/internal/signer"
	"github.com/paynet-mint/node/internal/starknet"
	"github.com/paynet-mint/node/internal/storage"
	"github.com/paynet-mint/node/internal/storage/memstore"
	"github.com/paynet-mint/node/internal/swap"
)

type harness struct {
	store *memstore.Store
	ksId  cashu.KeysetId
	srv   *Server
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
	var ksId cashu.KeysetId
	for id := range cache.ListActive() {
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

	m := mint.New(store, cache, registry, l, swapEng, mintEng, meltEng, gauges, log, mint.Config{
		ResponseCacheSize: 64,
		ResponseCacheTTL:  time.Minute,
		Info: mint.Info{
			Name: "test mint",
			Methods: []mint.MethodInfo{
				{Method: cashu.StarknetMethod, Unit: cashu.MilliStrk, MintMinAmount: 1, MintMaxAmount: 1000, MeltMinAmount: 1, MeltMaxAmount: 1000},
			},
		},
	})

	return &harness{store: store, ksId: ksId, srv: NewServer(m, log)}
}

type stubCashier struct{ transferIds []string }

func (s *stubCashier) Withdraw(_ context.Context, invoiceId, asset string, amount uint64, payee string) ([]string, error) {
	return s.transferIds, nil
}

func TestGetKeysReturnsActiveKeyset(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/keys", nil)
	w := httptest.NewRecorder()

	h.srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var resp keysResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Keysets) != 1 || resp.Keysets[0].Id != h.ksId {
		t.Fatalf("keys response = %+v, want one entry for %s", resp, h.ksId)
	}
}

func TestGetKeysetsListsMetadata(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodGet, "/v1/keysets", nil)
	w := httptest.NewRecorder()

	h.srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var resp keysetsResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.Keysets) != 1 || !resp.Keysets[0].Active {
		t.Fatalf("keysets response = %+v, want one active entry", resp)
	}
}

func TestMintQuoteThenMintRoundTrip(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	quoteBody, _ := json.Marshal(mintQuoteRequest{Unit: "millistrk", Amount: 4})
	req := httptest.NewRequest(http.MethodPost, "/v1/mint/quote/"+cashu.StarknetMethod, bytes.NewReader(quoteBody))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("mint quote status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var quoteResp mintQuoteResponse
	if err := json.Unmarshal(w.Body.Bytes(), &quoteResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}

	if _, err := h.srv.mint.MintQuoteState(ctx, cashu.StarknetMethod, quoteResp.QuoteId); err != nil {
		t.Fatalf("sanity GetMintQuoteState: %v", err)
	}
	if err := h.store.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.UpdateMintQuoteState(ctx, quoteResp.QuoteId, cashu.MintPaid)
	}); err != nil {
		t.Fatalf("marking quote paid: %v", err)
	}

	B_, _, err := bdhke.Blind([]byte("api-test-secret"), nil)
	if err != nil {
		t.Fatalf("Blind: %v", err)
	}
	mintBody, _ := json.Marshal(mintRequest{
		Quote: quoteResp.QuoteId,
		Outputs: cashu.BlindedMessages{
			{Id: h.ksId, Amount: 4, B_: hex.EncodeToString(B_.SerializeCompressed())},
		},
	})
	req = httptest.NewRequest(http.MethodPost, "/v1/mint/"+cashu.StarknetMethod, bytes.NewReader(mintBody))
	req.Header.Set("Content-Type", "application/json")
	w = httptest.NewRecorder()
	h.srv.Router().ServeHTTP(w, req)
	if w.Code != http.StatusOK {
		t.Fatalf("mint status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var mintResp signaturesResponse
	if err := json.Unmarshal(w.Body.Bytes(), &mintResp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(mintResp.Signatures) != 1 {
		t.Fatalf("signatures = %+v, want 1", mintResp.Signatures)
	}
}

func TestCheckStateReportsUnspentForUnseenY(t *testing.T) {
	h := newHarness(t)
	body, _ := json.Marshal(checkStateRequest{Ys: []string{"unseen"}})
	req := httptest.NewRequest(http.MethodPost, "/v1/checkstate", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()

	h.srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200; body=%s", w.Code, w.Body.String())
	}
	var resp checkStateResponse
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(resp.States) != 1 || resp.States[0].State != cashu.Unspent.String() {
		t.Fatalf("check state response = %+v, want unspent", resp)
	}
}

func TestPostMintRejectsNonJsonContentType(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodPost, "/v1/mint/"+cashu.StarknetMethod, bytes.NewReader([]byte("{}")))
	req.Header.Set("Content-Type", "text/plain")
	w := httptest.NewRecorder()

	h.srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400; body=%s", w.Code, w.Body.String())
	}
}

func TestOptionsRequestShortCircuitsWithCorsHeaders(t *testing.T) {
	h := newHarness(t)
	req := httptest.NewRequest(http.MethodOptions, "/v1/keys", nil)
	w := httptest.NewRecorder()

	h.srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	if w.Body.Len() != 0 {
		t.Fatalf("expected empty body for OPTIONS, got %q", w.Body.String())
	}
	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("Access-Control-Allow-Origin = %q, want *", got)
	}
}
