// Package anchor implements the block-anchor store (C1): durable claim and
// settlement records keyed by height, with idempotent upserts and
// cascade-pruning above a given height.
package anchor

import (
	"context"
	"database/sql"
	"encoding/json"

	_ "modernc.org/sqlite"

	"github.com/animicaorg/animica/internal/common"
)

const schema = `
CREATE TABLE IF NOT EXISTS block_claims (
	height      INTEGER NOT NULL,
	job_id      TEXT NOT NULL,
	provider_id TEXT NOT NULL,
	amount      INTEGER NOT NULL,
	meta        TEXT NOT NULL DEFAULT '{}',
	updated_at  INTEGER NOT NULL,
	PRIMARY KEY (height, job_id)
);

CREATE INDEX IF NOT EXISTS idx_block_claims_height ON block_claims(height);

CREATE TABLE IF NOT EXISTS settlements (
	settlement_id TEXT PRIMARY KEY,
	height        INTEGER NOT NULL,
	epoch         INTEGER NOT NULL,
	batch_id      TEXT NOT NULL,
	total_amount  INTEGER NOT NULL,
	meta          TEXT NOT NULL DEFAULT '{}',
	updated_at    INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_settlements_height ON settlements(height);

CREATE TABLE IF NOT EXISTS settlement_items (
	payout_id     TEXT PRIMARY KEY,
	settlement_id TEXT NOT NULL,
	provider_id   TEXT NOT NULL,
	amount        INTEGER NOT NULL,
	FOREIGN KEY (settlement_id) REFERENCES settlements(settlement_id) ON DELETE CASCADE
);

CREATE INDEX IF NOT EXISTS idx_settlement_items_settlement ON settlement_items(settlement_id);
`

// Claim is one block-anchor proof claim.
type Claim struct {
	Height     uint64
	JobID      string
	ProviderID string
	Amount     uint64
	Meta       map[string]any
}

// Payout is one settlement line item.
type Payout struct {
	PayoutID   string
	ProviderID string
	Amount     uint64
}

// Settlement is a batch of payouts anchored at a height.
type Settlement struct {
	SettlementID string
	Height       uint64
	Epoch        uint64
	BatchID      string
	TotalAmount  uint64
	Payouts      []Payout
	Meta         map[string]any
}

// Store is a single-writer, serializable sqlite-backed block-anchor store.
type Store struct {
	db *sql.DB
}

// Open opens (creating if absent) a sqlite database at path and applies the
// schema. The connection pool is capped at 1 so every write is serialized
// by the standard library's own connection mutex, giving a single-writer
// lock model.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, common.NewInternalError("anchor.Open", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA foreign_keys = ON;"); err != nil {
		return nil, common.NewInternalError("anchor.Open", err)
	}
	if _, err := db.Exec(schema); err != nil {
		return nil, common.NewInternalError("anchor.Open", err)
	}
	return &Store{db: db}, nil
}

// Close releases the underlying connection.
func (s *Store) Close() error { return s.db.Close() }

func isBusy(err error) bool {
	if err == nil {
		return false
	}
	// modernc.org/sqlite reports SQLITE_BUSY/SQLITE_LOCKED in the error
	// string; a driver-specific sentinel type is avoided here to keep this
	// store portable across sqlite driver swaps.
	msg := err.Error()
	return contains(msg, "SQLITE_BUSY") || contains(msg, "SQLITE_LOCKED") || contains(msg, "database is locked")
}

func contains(s, substr string) bool {
	return len(s) >= len(substr) && indexOf(s, substr) >= 0
}

func indexOf(s, substr string) int {
	n, m := len(s), len(substr)
	for i := 0; i+m <= n; i++ {
		if s[i:i+m] == substr {
			return i
		}
	}
	return -1
}

// RecordProofClaim upserts a claim keyed by (height, job_id); a repeat
// insert with different fields is last-write-wins.
func (s *Store) RecordProofClaim(ctx context.Context, c Claim, now int64) error {
	meta, err := json.Marshal(c.Meta)
	if err != nil {
		return common.NewValidationError("anchor.RecordProofClaim", err)
	}
	return common.Retry(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO block_claims (height, job_id, provider_id, amount, meta, updated_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT (height, job_id) DO UPDATE SET
				provider_id = excluded.provider_id,
				amount = excluded.amount,
				meta = excluded.meta,
				updated_at = excluded.updated_at
		`, c.Height, c.JobID, c.ProviderID, c.Amount, string(meta), now)
		if err != nil {
			if isBusy(err) {
				return common.NewTransientError("anchor.RecordProofClaim", err)
			}
			return common.NewInternalError("anchor.RecordProofClaim", err)
		}
		return nil
	})
}

// RecordSettlement upserts a settlement and its payout items. Each item is
// upserted keyed by payout_id, independent of the settlement-level upsert.
func (s *Store) RecordSettlement(ctx context.Context, st Settlement, now int64) error {
	meta, err := json.Marshal(st.Meta)
	if err != nil {
		return common.NewValidationError("anchor.RecordSettlement", err)
	}
	return common.Retry(ctx, func() error {
		tx, err := s.db.BeginTx(ctx, nil)
		if err != nil {
			if isBusy(err) {
				return common.NewTransientError("anchor.RecordSettlement", err)
			}
			return common.NewInternalError("anchor.RecordSettlement", err)
		}
		defer tx.Rollback()

		if _, err := tx.ExecContext(ctx, `
			INSERT INTO settlements (settlement_id, height, epoch, batch_id, total_amount, meta, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT (settlement_id) DO UPDATE SET
				height = excluded.height,
				epoch = excluded.epoch,
				batch_id = excluded.batch_id,
				total_amount = excluded.total_amount,
				meta = excluded.meta,
				updated_at = excluded.updated_at
		`, st.SettlementID, st.Height, st.Epoch, st.BatchID, st.TotalAmount, string(meta), now); err != nil {
			return wrapSQLErr("anchor.RecordSettlement", err)
		}

		for _, p := range st.Payouts {
			if _, err := tx.ExecContext(ctx, `
				INSERT INTO settlement_items (payout_id, settlement_id, provider_id, amount)
				VALUES (?, ?, ?, ?)
				ON CONFLICT (payout_id) DO UPDATE SET
					settlement_id = excluded.settlement_id,
					provider_id = excluded.provider_id,
					amount = excluded.amount
			`, p.PayoutID, st.SettlementID, p.ProviderID, p.Amount); err != nil {
				return wrapSQLErr("anchor.RecordSettlement", err)
			}
		}

		if err := tx.Commit(); err != nil {
			return wrapSQLErr("anchor.RecordSettlement", err)
		}
		return nil
	})
}

func wrapSQLErr(op string, err error) error {
	if isBusy(err) {
		return common.NewTransientError(op, err)
	}
	return common.NewInternalError(op, err)
}

// ListClaimsInRange returns claims with height in [lo, hi], ordered by
// height then job_id.
func (s *Store) ListClaimsInRange(ctx context.Context, lo, hi uint64) ([]Claim, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT height, job_id, provider_id, amount, meta FROM block_claims
		WHERE height >= ? AND height <= ?
		ORDER BY height, job_id
	`, lo, hi)
	if err != nil {
		return nil, common.NewInternalError("anchor.ListClaimsInRange", err)
	}
	defer rows.Close()

	var out []Claim
	for rows.Next() {
		var c Claim
		var metaJSON string
		if err := rows.Scan(&c.Height, &c.JobID, &c.ProviderID, &c.Amount, &metaJSON); err != nil {
			return nil, common.NewInternalError("anchor.ListClaimsInRange", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &c.Meta)
		out = append(out, c)
	}
	return out, rows.Err()
}

// ListSettlementsAtHeight returns settlements recorded at exactly h, each
// with its payout items populated.
func (s *Store) ListSettlementsAtHeight(ctx context.Context, h uint64) ([]Settlement, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT settlement_id, height, epoch, batch_id, total_amount, meta FROM settlements
		WHERE height = ?
	`, h)
	if err != nil {
		return nil, common.NewInternalError("anchor.ListSettlementsAtHeight", err)
	}
	defer rows.Close()

	var out []Settlement
	for rows.Next() {
		var st Settlement
		var metaJSON string
		if err := rows.Scan(&st.SettlementID, &st.Height, &st.Epoch, &st.BatchID, &st.TotalAmount, &metaJSON); err != nil {
			return nil, common.NewInternalError("anchor.ListSettlementsAtHeight", err)
		}
		_ = json.Unmarshal([]byte(metaJSON), &st.Meta)
		out = append(out, st)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewInternalError("anchor.ListSettlementsAtHeight", err)
	}

	for i := range out {
		payouts, err := s.payoutsFor(ctx, out[i].SettlementID)
		if err != nil {
			return nil, err
		}
		out[i].Payouts = payouts
	}
	return out, nil
}

// FindSettlementByPayout returns the settlement owning payoutID, if any.
func (s *Store) FindSettlementByPayout(ctx context.Context, payoutID string) (Settlement, bool, error) {
	var settlementID string
	err := s.db.QueryRowContext(ctx, `SELECT settlement_id FROM settlement_items WHERE payout_id = ?`, payoutID).Scan(&settlementID)
	if err == sql.ErrNoRows {
		return Settlement{}, false, nil
	}
	if err != nil {
		return Settlement{}, false, common.NewInternalError("anchor.FindSettlementByPayout", err)
	}

	var st Settlement
	var metaJSON string
	err = s.db.QueryRowContext(ctx, `
		SELECT settlement_id, height, epoch, batch_id, total_amount, meta FROM settlements WHERE settlement_id = ?
	`, settlementID).Scan(&st.SettlementID, &st.Height, &st.Epoch, &st.BatchID, &st.TotalAmount, &metaJSON)
	if err != nil {
		return Settlement{}, false, common.NewInternalError("anchor.FindSettlementByPayout", err)
	}
	_ = json.Unmarshal([]byte(metaJSON), &st.Meta)

	payouts, err := s.payoutsFor(ctx, settlementID)
	if err != nil {
		return Settlement{}, false, err
	}
	st.Payouts = payouts
	return st, true, nil
}

func (s *Store) payoutsFor(ctx context.Context, settlementID string) ([]Payout, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT payout_id, provider_id, amount FROM settlement_items WHERE settlement_id = ?
	`, settlementID)
	if err != nil {
		return nil, common.NewInternalError("anchor.payoutsFor", err)
	}
	defer rows.Close()

	var out []Payout
	for rows.Next() {
		var p Payout
		if err := rows.Scan(&p.PayoutID, &p.ProviderID, &p.Amount); err != nil {
			return nil, common.NewInternalError("anchor.payoutsFor", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// PruneAbove deletes claims and settlements with height strictly above h,
// cascading to settlement_items, and returns the counts deleted.
func (s *Store) PruneAbove(ctx context.Context, h uint64) (claimsDeleted, settlementsDeleted int64, err error) {
	err = common.Retry(ctx, func() error {
		tx, txErr := s.db.BeginTx(ctx, nil)
		if txErr != nil {
			return wrapSQLErr("anchor.PruneAbove", txErr)
		}
		defer tx.Rollback()

		res, execErr := tx.ExecContext(ctx, `DELETE FROM block_claims WHERE height > ?`, h)
		if execErr != nil {
			return wrapSQLErr("anchor.PruneAbove", execErr)
		}
		claimsDeleted, _ = res.RowsAffected()

		res, execErr = tx.ExecContext(ctx, `DELETE FROM settlements WHERE height > ?`, h)
		if execErr != nil {
			return wrapSQLErr("anchor.PruneAbove", execErr)
		}
		settlementsDeleted, _ = res.RowsAffected()

		if commitErr := tx.Commit(); commitErr != nil {
			return wrapSQLErr("anchor.PruneAbove", commitErr)
		}
		return nil
	})
	return claimsDeleted, settlementsDeleted, err
}
