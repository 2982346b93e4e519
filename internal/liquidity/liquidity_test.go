package liquidity

import (
	"context"
	"math/big"
	"testing"

	"github.com/paynet-mint/node/internal/starknet"
)

type stubCashier struct {
	transferIds []string
	err         error
	called      bool
}

func (s *stubCashier) Withdraw(_ context.Context, invoiceId, asset string, amount uint64, payee string) ([]string, error) {
	s.called = true
	return s.transferIds, s.err
}

func TestMockSourceCreateInvoice(t *testing.T) {
	src := NewMock()
	if src.Kind() != Mock {
		t.Fatalf("Kind() = %v, want Mock", src.Kind())
	}

	inv, err := src.CreateInvoice("quote-1", 1000, starknet.FeltFromUint64(7), 5)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.InvoiceId == "" {
		t.Fatal("expected non-empty invoice id")
	}
	if inv.PaymentPayload == "" {
		t.Fatal("expected non-empty payment payload")
	}
}

func TestMockSourceWithdrawDoesNotCallCashier(t *testing.T) {
	src := NewMock()
	ids, err := src.Withdraw(context.Background(), "inv-1", "strk", 5, "payee")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if len(ids) == 0 {
		t.Fatal("expected a synthesized transfer id")
	}
}

func TestStarknetSourceCreateInvoiceBuildsPayload(t *testing.T) {
	cfg := StarknetConfig{
		TokenAddress:   starknet.FeltFromUint64(1),
		CashierAddress: starknet.FeltFromUint64(2),
	}
	cashier := &stubCashier{transferIds: []string{"0xabc"}}
	src := NewStarknet(cfg, cashier)

	inv, err := src.CreateInvoice("quote-1", 1000, starknet.FeltFromUint64(9), 10)
	if err != nil {
		t.Fatalf("CreateInvoice: %v", err)
	}
	if inv.InvoiceId == "" || inv.PaymentPayload == "" {
		t.Fatal("expected populated invoice")
	}
}

func TestStarknetSourceWithdrawDelegatesToCashier(t *testing.T) {
	cashier := &stubCashier{transferIds: []string{"0xdef"}}
	src := NewStarknet(StarknetConfig{}, cashier)

	ids, err := src.Withdraw(context.Background(), "inv-1", "strk", 5, "payee")
	if err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if !cashier.called {
		t.Fatal("expected Withdraw to delegate to the configured Cashier")
	}
	if len(ids) != 1 || ids[0] != "0xdef" {
		t.Fatalf("ids = %v, want [0xdef]", ids)
	}
}

func TestConvertOnChainAmountRoundsUp(t *testing.T) {
	src := NewMock()
	exact := starknet.MintUnitsToOnChain(3)
	if got := src.ConvertOnChainAmount(exact); got != 3 {
		t.Fatalf("exact = %d, want 3", got)
	}

	withRemainder := new(big.Int).Add(exact, big.NewInt(1))
	if got := src.ConvertOnChainAmount(withRemainder); got != 4 {
		t.Fatalf("remainder = %d, want 4", got)
	}
}
