package liquidity

import "context"

// Cashier is the external service that actually broadcasts Starknet
// transactions on the mint's behalf (spec.md's Non-goals: "no on-chain
// smart-contract logic" in this process — execution is delegated). The
// mint only needs to ask it to withdraw and learn the resulting
// transfer ids; signing and submission are the cashier's concern.
type Cashier interface {
	// Withdraw pays amount (in mint units) of asset to payee against
	// invoiceId, returning the on-chain transfer ids once the cashier
	// has submitted the transaction. A non-nil error leaves the calling
	// Melt quote PENDING for operational retry (spec.md §4.7).
	Withdraw(ctx context.Context, invoiceId, asset string, amountMintUnits uint64, payee string) ([]string, error)
}
