package memstore

import (
	"context"
	"errors"
	"testing"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/storage"
)

func TestInsertSpentProofAtMostOnce(t *testing.T) {
	s := New()
	ctx := context.Background()

	var firstWon, secondWon bool
	err := s.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		firstWon, err = tx.InsertSpentProof(ctx, "y1", 4, "00aabbccddeeff00", "secret", "c", cashu.Spent)
		if err != nil {
			return err
		}
		secondWon, err = tx.InsertSpentProof(ctx, "y1", 4, "00aabbccddeeff00", "secret", "c", cashu.Spent)
		return err
	})
	if err != nil {
		t.Fatalf("WithSerializableTx: %v", err)
	}
	if !firstWon {
		t.Fatal("first InsertSpentProof should win")
	}
	if secondWon {
		t.Fatal("second InsertSpentProof of the same y must not win")
	}

	states, err := s.CheckState(ctx, []string{"y1", "y2"})
	if err != nil {
		t.Fatalf("CheckState: %v", err)
	}
	if states["y1"] != cashu.Spent {
		t.Fatalf("y1 state = %v, want Spent", states["y1"])
	}
	if states["y2"] != cashu.Unspent {
		t.Fatalf("y2 state = %v, want Unspent", states["y2"])
	}
}

func TestGetMintQuoteNotFound(t *testing.T) {
	s := New()
	_, err := s.GetMintQuote(context.Background(), "missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
}

func TestSumPaymentsForInvoiceAccumulates(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		events := []storage.PaymentEvent{
			{BlockId: 10, TxHash: "0x1", EventIndex: 0, InvoiceId: "inv", AmountLow: 3},
			{BlockId: 11, TxHash: "0x2", EventIndex: 0, InvoiceId: "inv", AmountLow: 5},
			{BlockId: 12, TxHash: "0x3", EventIndex: 0, InvoiceId: "other", AmountLow: 100},
		}
		for _, ev := range events {
			if _, err := tx.InsertPaymentEvent(ctx, ev); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("WithSerializableTx: %v", err)
	}

	var low, high uint64
	var overflow bool
	err = s.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		var err error
		low, high, overflow, err = tx.SumPaymentsForInvoice(ctx, "inv")
		return err
	})
	if err != nil {
		t.Fatalf("SumPaymentsForInvoice: %v", err)
	}
	if overflow {
		t.Fatal("unexpected overflow")
	}
	if low != 8 || high != 0 {
		t.Fatalf("sum = (%d, %d), want (8, 0)", low, high)
	}
}

func TestMarkProofsSpentTransitionsFromPending(t *testing.T) {
	s := New()
	ctx := context.Background()

	err := s.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		_, err := tx.InsertSpentProof(ctx, "y-pending", 4, "00aabbccddeeff00", "secret", "c", cashu.Pending)
		return err
	})
	if err != nil {
		t.Fatalf("insert pending: %v", err)
	}

	states, err := s.CheckState(ctx, []string{"y-pending"})
	if err != nil {
		t.Fatalf("CheckState: %v", err)
	}
	if states["y-pending"] != cashu.Pending {
		t.Fatalf("state = %v, want Pending", states["y-pending"])
	}

	err = s.WithSerializableTx(ctx, func(ctx context.Context, tx storage.Tx) error {
		return tx.MarkProofsSpent(ctx, []string{"y-pending"})
	})
	if err != nil {
		t.Fatalf("MarkProofsSpent: %v", err)
	}

	states, err = s.CheckState(ctx, []string{"y-pending"})
	if err != nil {
		t.Fatalf("CheckState: %v", err)
	}
	if states["y-pending"] != cashu.Spent {
		t.Fatalf("state = %v, want Spent after MarkProofsSpent", states["y-pending"])
	}
}

func TestDeactivateKeysetUnknown(t *testing.T) {
	s := New()
	err := s.WithSerializableTx(context.Background(), func(ctx context.Context, tx storage.Tx) error {
		return tx.DeactivateKeyset(ctx, "nope")
	})
	if !errors.Is(err, storage.ErrNotFound) {
		t.Fatalf("err = %v, want storage.ErrNotFound", err)
	}
}
