package starknet

import (
	"encoding/json"
	"fmt"
	"math/big"
)

// PaymentRequest is the deserialized form of a Melt quote's request
// payload (spec.md §6 "Payment-request payload (Starknet)"): {payee:
// felt, asset: "strk", amount}. Amount travels on the wire as a decimal
// string — a u256 does not fit losslessly in a JSON number.
type PaymentRequest struct {
	Payee  Felt
	Asset  string
	Amount *big.Int
}

type paymentRequestWire struct {
	Payee  string `json:"payee"`
	Asset  string `json:"asset"`
	Amount string `json:"amount"`
}

// ParsePaymentRequest deserializes a Melt quote request body.
func ParsePaymentRequest(raw string) (PaymentRequest, error) {
	var wire paymentRequestWire
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return PaymentRequest{}, fmt.Errorf("starknet: invalid payment request: %w", err)
	}

	payee, err := FeltFromHex(wire.Payee)
	if err != nil {
		return PaymentRequest{}, fmt.Errorf("starknet: invalid payee: %w", err)
	}

	amount, ok := new(big.Int).SetString(wire.Amount, 10)
	if !ok {
		return PaymentRequest{}, fmt.Errorf("starknet: invalid amount %q", wire.Amount)
	}

	return PaymentRequest{Payee: payee, Asset: wire.Asset, Amount: amount}, nil
}

// PaymentPayload is the Mint quote's invoice: a two-call multicall
// (ERC-20 approve, then invoice-pay) the payer's wallet must execute to
// settle the quote (spec.md §4.6 step 3).
type PaymentPayload struct {
	InvoiceId Felt   `json:"invoice_id"`
	Calls     []Call `json:"calls"`
}

type callWire struct {
	To       string   `json:"to"`
	Selector string   `json:"selector"`
	Calldata []string `json:"calldata"`
}

type payloadWire struct {
	InvoiceId string     `json:"invoice_id"`
	Calls     []callWire `json:"calls"`
}

// Serialize renders the payload as the JSON string persisted in
// storage.MintQuote.PaymentPayload and returned to wallets as `request`.
func (p PaymentPayload) Serialize() (string, error) {
	wire := payloadWire{InvoiceId: p.InvoiceId.String(), Calls: make([]callWire, len(p.Calls))}
	for i, c := range p.Calls {
		calldata := make([]string, len(c.Calldata))
		for j, f := range c.Calldata {
			calldata[j] = f.String()
		}
		wire.Calls[i] = callWire{To: c.To.String(), Selector: c.Selector.String(), Calldata: calldata}
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// BuildPaymentPayload assembles the Mint quote's invoice: an approve
// call authorizing the cashier to move amount of the strk token,
// followed by the invoice-pay call tagged with invoiceId.
func BuildPaymentPayload(tokenAddress, cashierAddress, payee, invoiceId Felt, amountMintUnits uint64) PaymentPayload {
	onChain := MintUnitsToOnChain(amountMintUnits)
	low, high := SplitU256(onChain)

	return PaymentPayload{
		InvoiceId: invoiceId,
		Calls: []Call{
			BuildApproveCall(tokenAddress, cashierAddress, low, high),
			BuildPayInvoiceCall(cashierAddress, payee, invoiceId, low, high),
		},
	}
}
