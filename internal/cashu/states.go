package cashu

import "encoding/json"

// MintQuoteState is the lifecycle of a mint quote: UNPAID -> PAID -> ISSUED.
// Encoded as a textual enum on the wire and in storage (Open Question
// resolution, see DESIGN.md): the pack carries both an integer and a
// string encoding for quote state across its two parallel module copies,
// and the string form is canonical here.
type MintQuoteState int

const (
	MintUnpaid MintQuoteState = iota
	MintPaid
	MintIssued
)

func (s MintQuoteState) String() string {
	switch s {
	case MintUnpaid:
		return "UNPAID"
	case MintPaid:
		return "PAID"
	case MintIssued:
		return "ISSUED"
	default:
		return "UNKNOWN"
	}
}

func MintStateFromString(s string) (MintQuoteState, bool) {
	switch s {
	case "UNPAID":
		return MintUnpaid, true
	case "PAID":
		return MintPaid, true
	case "ISSUED":
		return MintIssued, true
	default:
		return 0, false
	}
}

func (s MintQuoteState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *MintQuoteState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state, ok := MintStateFromString(str)
	if !ok {
		return &unknownStateError{str}
	}
	*s = state
	return nil
}

// MeltQuoteState is the lifecycle of a melt quote: UNPAID -> PENDING -> PAID.
type MeltQuoteState int

const (
	MeltUnpaid MeltQuoteState = iota
	MeltPending
	MeltPaid
)

func (s MeltQuoteState) String() string {
	switch s {
	case MeltUnpaid:
		return "UNPAID"
	case MeltPending:
		return "PENDING"
	case MeltPaid:
		return "PAID"
	default:
		return "UNKNOWN"
	}
}

func MeltStateFromString(s string) (MeltQuoteState, bool) {
	switch s {
	case "UNPAID":
		return MeltUnpaid, true
	case "PENDING":
		return MeltPending, true
	case "PAID":
		return MeltPaid, true
	default:
		return 0, false
	}
}

func (s MeltQuoteState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

func (s *MeltQuoteState) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err != nil {
		return err
	}
	state, ok := MeltStateFromString(str)
	if !ok {
		return &unknownStateError{str}
	}
	*s = state
	return nil
}

type unknownStateError struct{ value string }

func (e *unknownStateError) Error() string { return "unknown state: " + e.value }
