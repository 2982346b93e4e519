package keyset

import (
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"

	"github.com/paynet-mint/node/internal/cashu"
)

func testRoot(t *testing.T) *hdkeychain.ExtendedKey {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatal(err)
	}
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	return root
}

func TestGenerateDeterministic(t *testing.T) {
	root := testRoot(t)

	ks1, err := Generate(root, cashu.MilliStrk, 0, 8)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	ks2, err := Generate(root, cashu.MilliStrk, 0, 8)
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}

	if ks1.Id != ks2.Id {
		t.Errorf("expected same KeysetId for same root/unit/index, got %v vs %v", ks1.Id, ks2.Id)
	}
	if len(ks1.Keys) != 8 {
		t.Errorf("expected 8 denominations, got %d", len(ks1.Keys))
	}
}

func TestGenerateDistinctIndices(t *testing.T) {
	root := testRoot(t)

	ks0, err := Generate(root, cashu.MilliStrk, 0, 4)
	if err != nil {
		t.Fatal(err)
	}
	ks1, err := Generate(root, cashu.MilliStrk, 1, 4)
	if err != nil {
		t.Fatal(err)
	}

	if ks0.Id == ks1.Id {
		t.Error("expected distinct indices to produce distinct KeysetIds")
	}
}

func TestMaxAmount(t *testing.T) {
	if got := MaxAmount(4); got != 8 {
		t.Errorf("MaxAmount(4) = %d, want 8", got)
	}
	if got := MaxAmount(1); got != 1 {
		t.Errorf("MaxAmount(1) = %d, want 1", got)
	}
}

func TestGenerateRejectsOutOfRangeMaxOrder(t *testing.T) {
	root := testRoot(t)
	if _, err := Generate(root, cashu.MilliStrk, 0, 0); err == nil {
		t.Error("expected error for max_order=0")
	}
	if _, err := Generate(root, cashu.MilliStrk, 0, MaxOrder+1); err == nil {
		t.Error("expected error for max_order > MaxOrder")
	}
}
