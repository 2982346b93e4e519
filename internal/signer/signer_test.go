package signer

import (
	"encoding/hex"
	"log/slog"
	"testing"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/decred/dcrd/dcrec/secp256k1/v4"

	"github.com/paynet-mint/node/internal/bdhke"
	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/obs"
)

func hexPub(pub *secp256k1.PublicKey) string {
	return hex.EncodeToString(pub.SerializeCompressed())
}

func mustDecodeHex(t *testing.T, s string) []byte {
	t.Helper()
	b, err := hex.DecodeString(s)
	if err != nil {
		t.Fatal(err)
	}
	return b
}

func parsePub(b []byte) (*secp256k1.PublicKey, error) {
	return secp256k1.ParsePubKey(b)
}

func testSigner(t *testing.T) *Signer {
	t.Helper()
	seed, err := hdkeychain.GenerateSeed(hdkeychain.RecommendedSeedLen)
	if err != nil {
		t.Fatal(err)
	}
	root, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		t.Fatal(err)
	}
	log := obs.Wrap(slog.New(slog.NewTextHandler(discard{}, nil)))
	return New(root, log)
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

func TestSignVerifyRoundTrip(t *testing.T) {
	s := testSigner(t)

	decl, err := s.DeclareKeyset(cashu.MilliStrk, 0, 4)
	if err != nil {
		t.Fatalf("DeclareKeyset: %v", err)
	}

	secret := "test-secret"
	B_, r, err := bdhke.Blind([]byte(secret), nil)
	if err != nil {
		t.Fatal(err)
	}

	sigs, err := s.SignBlindedMessages([]SignRequest{
		{KeysetId: decl.Id, Amount: 1, B_: hexPub(B_)},
	})
	if err != nil {
		t.Fatalf("SignBlindedMessages: %v", err)
	}
	if len(sigs) != 1 {
		t.Fatalf("expected 1 signature, got %d", len(sigs))
	}
	if sigs[0].DLEQ == nil {
		t.Error("expected DLEQ proof attached to signature")
	}

	C_bytes := mustDecodeHex(t, sigs[0].C_)
	C_, err := parsePub(C_bytes)
	if err != nil {
		t.Fatal(err)
	}
	K := decl.Keys[1]
	C := bdhke.Unblind(C_, r, K)

	err = s.VerifyProofs([]VerifyRequest{
		{KeysetId: decl.Id, Amount: 1, Secret: secret, C: hexPub(C)},
	})
	if err != nil {
		t.Errorf("expected verification to succeed, got %v", err)
	}
}

func TestSignBlindedMessagesUnknownAmountRejected(t *testing.T) {
	s := testSigner(t)
	decl, err := s.DeclareKeyset(cashu.MilliStrk, 0, 2)
	if err != nil {
		t.Fatal(err)
	}

	B_, _, err := bdhke.Blind([]byte("x"), nil)
	if err != nil {
		t.Fatal(err)
	}

	_, err = s.SignBlindedMessages([]SignRequest{
		{KeysetId: decl.Id, Amount: 64, B_: hexPub(B_)},
	})
	if err == nil {
		t.Error("expected error for amount not covered by max_order")
	}
}
