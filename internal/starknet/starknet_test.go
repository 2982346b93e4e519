package starknet

import (
	"math/big"
	"testing"
)

func TestFeltHexRoundTrip(t *testing.T) {
	f, err := FeltFromHex("0x1a2b3c")
	if err != nil {
		t.Fatalf("FeltFromHex: %v", err)
	}
	if got, want := f.String(), "0x1a2b3c"; got != want {
		t.Fatalf("String() = %s, want %s", got, want)
	}
}

func TestDeriveInvoiceIdDeterministic(t *testing.T) {
	a, err := DeriveInvoiceId("quote-1", 1234)
	if err != nil {
		t.Fatalf("DeriveInvoiceId: %v", err)
	}
	b, err := DeriveInvoiceId("quote-1", 1234)
	if err != nil {
		t.Fatalf("DeriveInvoiceId: %v", err)
	}
	if a.String() != b.String() {
		t.Fatal("DeriveInvoiceId must be deterministic for identical inputs")
	}

	c, err := DeriveInvoiceId("quote-2", 1234)
	if err != nil {
		t.Fatalf("DeriveInvoiceId: %v", err)
	}
	if a.String() == c.String() {
		t.Fatal("different quote ids must derive different invoice ids")
	}
}

func TestOnChainToMintUnitsRoundsUp(t *testing.T) {
	exact := MintUnitsToOnChain(5)
	if got := OnChainToMintUnits(exact); got != 5 {
		t.Fatalf("exact conversion = %d, want 5", got)
	}

	withRemainder := new(big.Int).Add(exact, big.NewInt(1))
	if got := OnChainToMintUnits(withRemainder); got != 6 {
		t.Fatalf("remainder conversion = %d, want 6 (round up)", got)
	}
}

func TestSplitU256RoundTrip(t *testing.T) {
	v := new(big.Int).Lsh(big.NewInt(1), 200)
	v.Add(v, big.NewInt(42))

	low, high := SplitU256(v)

	mask := new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 128), big.NewInt(1))
	wantLow := new(big.Int).And(v, mask)
	wantHigh := new(big.Int).Rsh(v, 128)

	if low.BigInt().Cmp(wantLow) != 0 {
		t.Fatalf("low = %s, want %s", low.BigInt(), wantLow)
	}
	if high.BigInt().Cmp(wantHigh) != 0 {
		t.Fatalf("high = %s, want %s", high.BigInt(), wantHigh)
	}
}

func TestBuildPaymentPayloadSerializesTwoCalls(t *testing.T) {
	token := FeltFromUint64(1)
	cashier := FeltFromUint64(2)
	payee := FeltFromUint64(3)
	invoiceId, err := DeriveInvoiceId("quote-1", 1234)
	if err != nil {
		t.Fatalf("DeriveInvoiceId: %v", err)
	}

	payload := BuildPaymentPayload(token, cashier, payee, invoiceId, 10)
	if len(payload.Calls) != 2 {
		t.Fatalf("len(Calls) = %d, want 2", len(payload.Calls))
	}
	if payload.Calls[0].To.String() != token.String() {
		t.Fatal("first call must target the token contract (approve)")
	}
	if payload.Calls[1].To.String() != cashier.String() {
		t.Fatal("second call must target the cashier contract (invoice-pay)")
	}

	serialized, err := payload.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	if len(serialized) == 0 {
		t.Fatal("serialized payload must not be empty")
	}
}

func TestParsePaymentRequest(t *testing.T) {
	req, err := ParsePaymentRequest(`{"payee":"0x1a2b","asset":"strk","amount":"5000000000000000"}`)
	if err != nil {
		t.Fatalf("ParsePaymentRequest: %v", err)
	}
	if req.Asset != "strk" {
		t.Fatalf("Asset = %q, want strk", req.Asset)
	}
	if req.Payee.String() != "0x1a2b" {
		t.Fatalf("Payee = %s, want 0x1a2b", req.Payee.String())
	}
	if OnChainToMintUnits(req.Amount) != 5 {
		t.Fatalf("converted amount = %d, want 5", OnChainToMintUnits(req.Amount))
	}
}
