package postgres

import (
	"context"
	"database/sql"
	"errors"
	"math/bits"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/paynet-mint/node/internal/cashu"
	"github.com/paynet-mint/node/internal/storage"
)

// uniqueViolationSQLState is Postgres' SQLSTATE for a unique-constraint
// violation — the signal that a concurrent InsertSpentProof lost the race
// for a given y (spec.md §4.4, §8 invariant 2: at most one SPENT row per y).
const uniqueViolationSQLState = "23505"

type pgTx struct {
	tx *sql.Tx
}

func (t *pgTx) SaveKeyset(ctx context.Context, ks storage.Keyset) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO keyset (id, unit, active, max_order, derivation_path_index) VALUES ($1,$2,$3,$4,$5)`,
		string(ks.Id), int(ks.Unit), ks.Active, ks.MaxOrder, ks.DerivationPathIdx)
	return err
}

func (t *pgTx) DeactivateKeyset(ctx context.Context, id cashu.KeysetId) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE keyset SET active = false WHERE id = $1`, string(id))
	return err
}

func (t *pgTx) GetActiveKeysets(ctx context.Context) ([]storage.Keyset, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT id, unit, active, max_order, derivation_path_index FROM keyset WHERE active = true`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanKeysets(rows)
}

// InsertSpentProof implements the canonical at-most-once spend rule of
// spec.md §4.4: a proof row is created only at spend time, directly in
// its final or in-flight state, and y is the table's primary key. A
// concurrent second spend of the same y therefore always loses to a
// unique-constraint violation on y rather than racing through a
// conditional update.
func (t *pgTx) InsertSpentProof(ctx context.Context, y string, amount uint64, keysetId cashu.KeysetId, secret, c string, state cashu.ProofState) (bool, error) {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO proof (y, amount, keyset_id, secret, c, state) VALUES ($1,$2,$3,$4,$5,$6)`,
		y, amount, string(keysetId), secret, c, int(state))
	if err == nil {
		return true, nil
	}
	if isUniqueViolation(err) {
		return false, nil
	}
	return false, err
}

// MarkProofsSpent flips previously-PENDING rows to SPENT once a Melt
// quote's withdrawal is confirmed (spec.md §4.7 step 5).
func (t *pgTx) MarkProofsSpent(ctx context.Context, ys []string) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE proof SET state = $1 WHERE y = ANY($2) AND state = $3`,
		int(cashu.Spent), pq.Array(ys), int(cashu.Pending))
	return err
}

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == uniqueViolationSQLState
	}
	return false
}

func (t *pgTx) BlindSignatureExists(ctx context.Context, b_ string) (bool, error) {
	var existing int
	err := t.tx.QueryRowContext(ctx, `SELECT 1 FROM blind_signature WHERE b_ = $1`, b_).Scan(&existing)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return false, err
}

func (t *pgTx) InsertBlindSignature(ctx context.Context, b_ string, sig cashu.BlindedSignature) (bool, error) {
	exists, err := t.BlindSignatureExists(ctx, b_)
	if err != nil {
		return false, err
	}
	if exists {
		return true, nil
	}

	var dleqE, dleqS sql.NullString
	if sig.DLEQ != nil {
		dleqE = sql.NullString{String: sig.DLEQ.E, Valid: true}
		dleqS = sql.NullString{String: sig.DLEQ.S, Valid: true}
	}

	_, err = t.tx.ExecContext(ctx,
		`INSERT INTO blind_signature (b_, amount, keyset_id, c_, dleq_e, dleq_s) VALUES ($1,$2,$3,$4,$5,$6)`,
		b_, sig.Amount, string(sig.Id), sig.C_, dleqE, dleqS)
	if err != nil {
		return false, err
	}
	return false, nil
}

func (t *pgTx) InsertMintQuote(ctx context.Context, q storage.MintQuote) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO mint_quote (id, unit, amount, request, expiry, state, invoice_id) VALUES ($1,$2,$3,$4,$5,$6,$7)`,
		q.Id, int(q.Unit), q.Amount, q.PaymentPayload, q.Expiry, q.State, q.InvoiceId)
	return err
}

func (t *pgTx) GetMintQuoteForUpdate(ctx context.Context, id string) (storage.MintQuote, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, unit, amount, request, expiry, state, invoice_id FROM mint_quote WHERE id = $1 FOR UPDATE`, id)
	return scanMintQuote(row)
}

func (t *pgTx) FindMintQuoteByInvoiceId(ctx context.Context, invoiceId string) (storage.MintQuote, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, unit, amount, request, expiry, state, invoice_id FROM mint_quote WHERE invoice_id = $1 FOR UPDATE`, invoiceId)
	return scanMintQuote(row)
}

func (t *pgTx) UpdateMintQuoteState(ctx context.Context, id string, state cashu.MintQuoteState) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE mint_quote SET state = $1 WHERE id = $2`, state, id)
	return err
}

func (t *pgTx) InsertMeltQuote(ctx context.Context, q storage.MeltQuote) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO melt_quote (id, unit, amount, fee, request, expiry, state, invoice_id, transfer_ids) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
		q.Id, int(q.Unit), q.Amount, q.Fee, q.Request, q.Expiry, q.State, q.InvoiceId, joinTransferIds(q.TransferIds))
	return err
}

func (t *pgTx) GetMeltQuoteForUpdate(ctx context.Context, id string) (storage.MeltQuote, error) {
	row := t.tx.QueryRowContext(ctx,
		`SELECT id, unit, amount, fee, request, expiry, state, invoice_id, transfer_ids FROM melt_quote WHERE id = $1 FOR UPDATE`, id)
	return scanMeltQuote(row)
}

func (t *pgTx) UpdateMeltQuoteState(ctx context.Context, id string, state cashu.MeltQuoteState, transferIds []string) error {
	_, err := t.tx.ExecContext(ctx, `UPDATE melt_quote SET state = $1, transfer_ids = $2 WHERE id = $3`,
		state, joinTransferIds(transferIds), id)
	return err
}

func (t *pgTx) InsertPaymentEvent(ctx context.Context, ev storage.PaymentEvent) (bool, error) {
	res, err := t.tx.ExecContext(ctx,
		`INSERT INTO mint_payment_event (block_id, tx_hash, event_index, payee, asset, invoice_id, payer, amount_low, amount_high)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9) ON CONFLICT (tx_hash, event_index) DO NOTHING`,
		ev.BlockId, ev.TxHash, ev.EventIndex, ev.Payee, ev.Asset, ev.InvoiceId, ev.Payer, ev.AmountLow, ev.AmountHigh)
	if err != nil {
		return false, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return affected > 0, nil
}

// SumPaymentsForInvoice widens the accumulator across rows with
// math/bits.Add64 rather than delegating to SQL SUM, so a carry out of
// the high half is observable as an overflow rather than silently
// wrapping (spec.md §4.8, §7 Fatal category "impossible overflow").
func (t *pgTx) SumPaymentsForInvoice(ctx context.Context, invoiceId string) (uint64, uint64, bool, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT amount_low, amount_high FROM mint_payment_event WHERE invoice_id = $1`, invoiceId)
	if err != nil {
		return 0, 0, false, err
	}
	defer rows.Close()

	var low, high uint64
	for rows.Next() {
		var evLow, evHigh uint64
		if err := rows.Scan(&evLow, &evHigh); err != nil {
			return 0, 0, false, err
		}
		var carry uint64
		low, carry = bits.Add64(low, evLow, 0)
		var overflow uint64
		high, overflow = bits.Add64(high, evHigh, carry)
		if overflow != 0 {
			return low, high, true, nil
		}
	}
	return low, high, false, rows.Err()
}

func (t *pgTx) DeletePaymentEventsAboveHeight(ctx context.Context, height uint64) error {
	_, err := t.tx.ExecContext(ctx, `DELETE FROM mint_payment_event WHERE block_id > $1`, height)
	return err
}

func (t *pgTx) ListAffectedInvoicesAboveHeight(ctx context.Context, height uint64) ([]string, error) {
	rows, err := t.tx.QueryContext(ctx,
		`SELECT DISTINCT invoice_id FROM mint_payment_event WHERE block_id > $1`, height)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}
