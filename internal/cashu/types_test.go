package cashu

import "testing"

func TestAmountSplit(t *testing.T) {
	tests := []struct {
		amount   uint64
		expected []uint64
	}{
		{0, []uint64{}},
		{1, []uint64{1}},
		{13, []uint64{1, 4, 8}},
		{3, []uint64{1, 2}},
	}

	for _, test := range tests {
		got := AmountSplit(test.amount)
		if len(got) != len(test.expected) {
			t.Fatalf("AmountSplit(%d) = %v, want %v", test.amount, got, test.expected)
		}
		for i := range got {
			if got[i] != test.expected[i] {
				t.Errorf("AmountSplit(%d) = %v, want %v", test.amount, got, test.expected)
			}
		}
	}
}

func TestMintQuoteStateRoundTrip(t *testing.T) {
	for _, s := range []MintQuoteState{MintUnpaid, MintPaid, MintIssued} {
		data, err := s.MarshalJSON()
		if err != nil {
			t.Fatalf("MarshalJSON: %v", err)
		}
		var got MintQuoteState
		if err := got.UnmarshalJSON(data); err != nil {
			t.Fatalf("UnmarshalJSON: %v", err)
		}
		if got != s {
			t.Errorf("round trip mismatch: got %v want %v", got, s)
		}
	}
}

func TestParseUnit(t *testing.T) {
	u, err := ParseUnit("millistrk")
	if err != nil || u != MilliStrk {
		t.Fatalf("ParseUnit(millistrk) = %v, %v", u, err)
	}
	if _, err := ParseUnit("bogus"); err == nil {
		t.Error("expected error for unknown unit")
	}
}
