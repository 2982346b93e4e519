package postgres

import (
	"database/sql"
	"errors"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/storage"
)

type rowScanner interface {
	Scan(dest ...any) error
}

// wrapNotFound maps the database/sql not-found signal to the package-
// agnostic storage.ErrNotFound so callers never depend on sql directly.
func wrapNotFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return storage.ErrNotFound
	}
	return err
}

func scanKeyset(row rowScanner) (storage.Keyset, error) {
	var ks storage.Keyset
	var id string
	var unit int
	err := row.Scan(&id, &unit, &ks.Active, &ks.MaxOrder, &ks.DerivationPathIdx)
	if err != nil {
		return storage.Keyset{}, wrapNotFound(err)
	}
	ks.Id = cashu.KeysetId(id)
	ks.Unit = cashu.Unit(unit)
	return ks, nil
}

func scanKeysets(rows *sql.Rows) ([]storage.Keyset, error) {
	var out []storage.Keyset
	for rows.Next() {
		ks, err := scanKeyset(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ks)
	}
	return out, rows.Err()
}

func scanMintQuote(row rowScanner) (storage.MintQuote, error) {
	var q storage.MintQuote
	var id string
	var unit int
	err := row.Scan(&id, &unit, &q.Amount, &q.PaymentPayload, &q.Expiry, &q.State, &q.InvoiceId)
	if err != nil {
		return storage.MintQuote{}, wrapNotFound(err)
	}
	q.Id = id
	q.Unit = cashu.Unit(unit)
	return q, nil
}

func scanMeltQuote(row rowScanner) (storage.MeltQuote, error) {
	var q storage.MeltQuote
	var id string
	var unit int
	var transferIds string
	err := row.Scan(&id, &unit, &q.Amount, &q.Fee, &q.Request, &q.Expiry, &q.State, &q.InvoiceId, &transferIds)
	if err != nil {
		return storage.MeltQuote{}, wrapNotFound(err)
	}
	q.Id = id
	q.Unit = cashu.Unit(unit)
	q.TransferIds = splitTransferIds(transferIds)
	return q, nil
}

func splitTransferIds(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	start := 0
	for i := 0; i < len(s); i++ {
		if s[i] == ',' {
			out = append(out, s[start:i])
			start = i + 1
		}
	}
	out = append(out, s[start:])
	return out
}

func joinTransferIds(ids []string) string {
	out := ""
	for i, id := range ids {
		if i != 0 {
			out += ","
		}
		out += id
	}
	return out
}
