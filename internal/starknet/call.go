package starknet

// Call is one entry of a Starknet multicall: a contract address, an
// entrypoint selector, and ABI-encoded calldata, all as field elements.
type Call struct {
	To       Felt
	Selector Felt
	Calldata []Felt
}

// Precomputed entrypoint selectors (starknet_keccak of the Cairo
// function name, truncated to 250 bits) for the two calls a Starknet
// payment payload bundles. Computed offline rather than at runtime: the
// pack carries no Keccak implementation, and these values are fixed by
// the target contracts' ABIs.
var (
	selectorApprove    = mustFeltFromHex("0x219209e083275171774dab1df80982e9df2096516f06319c5c6d71ae0a8480")
	selectorPayInvoice = mustFeltFromHex("0x2f0b3c5710379609eb5495f1ecd348cb28167711b73609fe565a72734550354")
)

func mustFeltFromHex(s string) Felt {
	f, err := FeltFromHex(s)
	if err != nil {
		panic(err)
	}
	return f
}

// BuildApproveCall constructs the ERC-20 `approve(spender, amount)` call
// against the strk token contract, authorizing the cashier to pull
// amount (a u256, low/high felts) for the invoice payment that follows
// in the same multicall.
func BuildApproveCall(tokenAddress, spender Felt, amountLow, amountHigh Felt) Call {
	return Call{
		To:       tokenAddress,
		Selector: selectorApprove,
		Calldata: []Felt{spender, amountLow, amountHigh},
	}
}

// BuildPayInvoiceCall constructs the cashier contract's invoice-pay
// call: it transfers amount from the caller to payee, tagged with
// invoiceId so the Deposit Indexer can match the resulting Remittance
// event back to its MintQuote.
func BuildPayInvoiceCall(cashierAddress, payee, invoiceId Felt, amountLow, amountHigh Felt) Call {
	return Call{
		To:       cashierAddress,
		Selector: selectorPayInvoice,
		Calldata: []Felt{payee, invoiceId, amountLow, amountHigh},
	}
}
