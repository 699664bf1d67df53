package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"

	"github.com/jmoiron/sqlx"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
)

func (d *DB) Ledger() storage.LedgerRepository       { return &ledgerRepo{d.db} }
func (d *DB) Prices() storage.PriceRepository        { return &priceRepo{d.db} }
func (d *DB) Rewards() storage.RewardRepository      { return &rewardRepo{d.db} }
func (d *DB) Txs() storage.TxRepository              { return &txRepo{d.db} }
func (d *DB) Hashes() storage.HashRepository         { return &hashRepo{d.db} }
func (d *DB) Windows() storage.WindowRepository      { return &windowRepo{d.db} }
func (d *DB) Snapshots() storage.SnapshotRepository  { return &snapshotRepo{d.db} }
func (d *DB) Mismatches() storage.MismatchRepository { return &mismatchRepo{d.db} }
func (d *DB) Position() storage.PositionRepository   { return &positionRepo{d.db} }
func (d *DB) Totals() storage.TotalsRepository       { return &totalsRepo{d.db} }

func getJSON(ctx context.Context, db *sqlx.DB, query string, v any, args ...any) error {
	var raw []byte
	if err := db.GetContext(ctx, &raw, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return storage.ErrNotFound
		}
		return err
	}
	return json.Unmarshal(raw, v)
}

// -----------------------------------------------------------------------------
// Ledger
// -----------------------------------------------------------------------------

type ledgerRepo struct{ db *sqlx.DB }

func (r *ledgerRepo) Save(ctx context.Context, rec *domain.LedgerRecord) error {
	return r.SaveBatch(ctx, []*domain.LedgerRecord{rec})
}

func (r *ledgerRepo) SaveBatch(ctx context.Context, recs []*domain.LedgerRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const q = `
		INSERT INTO ledger_records (height, block_timestamp, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (height) DO UPDATE SET
			block_timestamp = EXCLUDED.block_timestamp,
			data = EXCLUDED.data
	`
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal ledger record %d: %w", rec.BlockHeight, err)
		}
		if _, err := tx.ExecContext(ctx, q, rec.BlockHeight, rec.BlockTimestamp, raw); err != nil {
			return fmt.Errorf("save ledger record %d: %w", rec.BlockHeight, err)
		}
	}
	return tx.Commit()
}

func (r *ledgerRepo) Get(ctx context.Context, height uint64) (*domain.LedgerRecord, error) {
	var rec domain.LedgerRecord
	err := getJSON(ctx, r.db, `SELECT data FROM ledger_records WHERE height = $1`, &rec, height)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ledgerRepo) Latest(ctx context.Context, maxHeight uint64) (*domain.LedgerRecord, error) {
	var rec domain.LedgerRecord
	err := getJSON(ctx, r.db,
		`SELECT data FROM ledger_records WHERE height <= $1 ORDER BY height DESC LIMIT 1`,
		&rec, maxHeight)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ledgerRepo) Range(ctx context.Context, startTS, endTS, maxHeight uint64) ([]*domain.LedgerRecord, error) {
	var raws [][]byte
	err := r.db.SelectContext(ctx, &raws, `
		SELECT data FROM ledger_records
		WHERE block_timestamp >= $1 AND block_timestamp < $2 AND height <= $3
		ORDER BY block_timestamp, height
	`, startTS, endTS, maxHeight)
	if err != nil {
		return nil, fmt.Errorf("range ledger records: %w", err)
	}
	out := make([]*domain.LedgerRecord, 0, len(raws))
	for _, raw := range raws {
		var rec domain.LedgerRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, err
		}
		out = append(out, &rec)
	}
	return out, nil
}

func (r *ledgerRepo) DeleteAbove(ctx context.Context, height uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM ledger_records WHERE height > $1`, height)
	return err
}

// -----------------------------------------------------------------------------
// Prices
// -----------------------------------------------------------------------------

type priceRepo struct{ db *sqlx.DB }

func (r *priceRepo) SaveBatch(ctx context.Context, recs []*domain.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const q = `
		INSERT INTO pricing_records (height, data) VALUES ($1, $2)
		ON CONFLICT (height) DO UPDATE SET data = EXCLUDED.data
	`
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal price record %d: %w", rec.BlockHeight, err)
		}
		if _, err := tx.ExecContext(ctx, q, rec.BlockHeight, raw); err != nil {
			return fmt.Errorf("save price record %d: %w", rec.BlockHeight, err)
		}
	}
	return tx.Commit()
}

func (r *priceRepo) Get(ctx context.Context, height uint64) (*domain.PriceRecord, error) {
	var rec domain.PriceRecord
	err := getJSON(ctx, r.db, `SELECT data FROM pricing_records WHERE height = $1`, &rec, height)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *priceRepo) DeleteAbove(ctx context.Context, height uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pricing_records WHERE height > $1`, height)
	return err
}

// -----------------------------------------------------------------------------
// Rewards
// -----------------------------------------------------------------------------

type rewardRepo struct{ db *sqlx.DB }

func (r *rewardRepo) SaveBatch(ctx context.Context, infos []*domain.BlockRewardInfo) error {
	if len(infos) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const q = `
		INSERT INTO block_rewards (height, data) VALUES ($1, $2)
		ON CONFLICT (height) DO UPDATE SET data = EXCLUDED.data
	`
	for _, info := range infos {
		raw, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal reward info %d: %w", info.Height, err)
		}
		if _, err := tx.ExecContext(ctx, q, info.Height, raw); err != nil {
			return fmt.Errorf("save reward info %d: %w", info.Height, err)
		}
	}
	return tx.Commit()
}

func (r *rewardRepo) Get(ctx context.Context, height uint64) (*domain.BlockRewardInfo, error) {
	var info domain.BlockRewardInfo
	err := getJSON(ctx, r.db, `SELECT data FROM block_rewards WHERE height = $1`, &info, height)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *rewardRepo) GetRange(ctx context.Context, from, to uint64) ([]*domain.BlockRewardInfo, error) {
	var raws [][]byte
	err := r.db.SelectContext(ctx, &raws,
		`SELECT data FROM block_rewards WHERE height BETWEEN $1 AND $2 ORDER BY height`,
		from, to)
	if err != nil {
		return nil, fmt.Errorf("range block rewards: %w", err)
	}
	out := make([]*domain.BlockRewardInfo, 0, len(raws))
	for _, raw := range raws {
		var info domain.BlockRewardInfo
		if err := json.Unmarshal(raw, &info); err != nil {
			return nil, err
		}
		out = append(out, &info)
	}
	return out, nil
}

func (r *rewardRepo) DeleteAbove(ctx context.Context, height uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM block_rewards WHERE height > $1`, height)
	return err
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

type txRepo struct{ db *sqlx.DB }

func (r *txRepo) SaveBlock(ctx context.Context, height uint64, txs []*domain.ConversionTransaction) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const q = `
		INSERT INTO conversion_txs (hash, height, data) VALUES ($1, $2, $3)
		ON CONFLICT (hash) DO UPDATE SET height = EXCLUDED.height, data = EXCLUDED.data
	`
	for _, t := range txs {
		raw, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("marshal tx %s: %w", t.Hash, err)
		}
		if _, err := tx.ExecContext(ctx, q, t.Hash, height, raw); err != nil {
			return fmt.Errorf("save tx %s: %w", t.Hash, err)
		}
	}
	// Record the block as scanned even when it carried no conversions.
	if _, err := tx.ExecContext(ctx,
		`INSERT INTO scanned_blocks (height) VALUES ($1) ON CONFLICT DO NOTHING`,
		height); err != nil {
		return fmt.Errorf("mark block %d scanned: %w", height, err)
	}
	return tx.Commit()
}

func (r *txRepo) GetByBlock(ctx context.Context, height uint64) ([]*domain.ConversionTransaction, error) {
	var scanned bool
	if err := r.db.GetContext(ctx, &scanned,
		`SELECT EXISTS (SELECT 1 FROM scanned_blocks WHERE height = $1)`, height); err != nil {
		return nil, err
	}
	if !scanned {
		return nil, storage.ErrNotFound
	}
	var raws [][]byte
	err := r.db.SelectContext(ctx, &raws,
		`SELECT data FROM conversion_txs WHERE height = $1 ORDER BY hash`, height)
	if err != nil {
		return nil, fmt.Errorf("txs by block %d: %w", height, err)
	}
	out := make([]*domain.ConversionTransaction, 0, len(raws))
	for _, raw := range raws {
		var t domain.ConversionTransaction
		if err := json.Unmarshal(raw, &t); err != nil {
			return nil, err
		}
		out = append(out, &t)
	}
	return out, nil
}

func (r *txRepo) GetByHash(ctx context.Context, hash string) (*domain.ConversionTransaction, error) {
	var t domain.ConversionTransaction
	err := getJSON(ctx, r.db, `SELECT data FROM conversion_txs WHERE hash = $1`, &t, hash)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

func (r *txRepo) DeleteAbove(ctx context.Context, height uint64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM conversion_txs WHERE height > $1`, height); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM scanned_blocks WHERE height > $1`, height); err != nil {
		return err
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Block hashes
// -----------------------------------------------------------------------------

type hashRepo struct{ db *sqlx.DB }

func (r *hashRepo) SaveBatch(ctx context.Context, hashes map[uint64]string) error {
	if len(hashes) == 0 {
		return nil
	}
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	const q = `
		INSERT INTO block_hashes (height, hash) VALUES ($1, $2)
		ON CONFLICT (height) DO UPDATE SET hash = EXCLUDED.hash
	`
	for h, hash := range hashes {
		if _, err := tx.ExecContext(ctx, q, h, hash); err != nil {
			return fmt.Errorf("save block hash %d: %w", h, err)
		}
	}
	return tx.Commit()
}

func (r *hashRepo) Get(ctx context.Context, height uint64) (string, error) {
	var hash string
	err := r.db.GetContext(ctx, &hash, `SELECT hash FROM block_hashes WHERE height = $1`, height)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", err
	}
	return hash, nil
}

func (r *hashRepo) DeleteAbove(ctx context.Context, height uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM block_hashes WHERE height > $1`, height)
	return err
}

// -----------------------------------------------------------------------------
// Windows
// -----------------------------------------------------------------------------

type windowRepo struct{ db *sqlx.DB }

func (r *windowRepo) SaveSealed(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal window aggregate: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO window_aggregates (granularity, window_start, data)
		VALUES ($1, $2, $3)
		ON CONFLICT (granularity, window_start) DO UPDATE SET data = EXCLUDED.data
	`, string(g), agg.WindowStart, raw)
	return err
}

func (r *windowRepo) SavePending(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal pending aggregate: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pending_aggregates (granularity, data) VALUES ($1, $2)
		ON CONFLICT (granularity) DO UPDATE SET data = EXCLUDED.data
	`, string(g), raw)
	return err
}

func (r *windowRepo) GetPending(ctx context.Context, g domain.Granularity) (*domain.WindowAggregate, error) {
	var agg domain.WindowAggregate
	err := getJSON(ctx, r.db,
		`SELECT data FROM pending_aggregates WHERE granularity = $1`, &agg, string(g))
	if err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *windowRepo) GetSealedRange(ctx context.Context, g domain.Granularity, startTS, endTS uint64) ([]*domain.WindowAggregate, error) {
	var raws [][]byte
	err := r.db.SelectContext(ctx, &raws, `
		SELECT data FROM window_aggregates
		WHERE granularity = $1 AND window_start BETWEEN $2 AND $3
		ORDER BY window_start
	`, string(g), startTS, endTS)
	if err != nil {
		return nil, fmt.Errorf("range window aggregates: %w", err)
	}
	out := make([]*domain.WindowAggregate, 0, len(raws))
	for _, raw := range raws {
		var agg domain.WindowAggregate
		if err := json.Unmarshal(raw, &agg); err != nil {
			return nil, err
		}
		out = append(out, &agg)
	}
	return out, nil
}

func (r *windowRepo) DeleteFrom(ctx context.Context, g domain.Granularity, ts uint64) error {
	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM window_aggregates WHERE granularity = $1 AND window_start >= $2`,
		string(g), ts); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx,
		`DELETE FROM pending_aggregates WHERE granularity = $1`, string(g)); err != nil {
		return err
	}
	return tx.Commit()
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

type snapshotRepo struct{ db *sqlx.DB }

func (r *snapshotRepo) Save(ctx context.Context, snap *domain.ReserveSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reserve_snapshots (previous_height, data) VALUES ($1, $2)
		ON CONFLICT (previous_height) DO UPDATE SET data = EXCLUDED.data
	`, snap.PreviousHeight, raw)
	return err
}

func (r *snapshotRepo) GetByPreviousHeight(ctx context.Context, height uint64) (*domain.ReserveSnapshot, error) {
	var snap domain.ReserveSnapshot
	err := getJSON(ctx, r.db,
		`SELECT data FROM reserve_snapshots WHERE previous_height = $1`, &snap, height)
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *snapshotRepo) LastPreviousHeight(ctx context.Context) (uint64, error) {
	var h sql.NullInt64
	err := r.db.GetContext(ctx, &h, `SELECT MAX(previous_height) FROM reserve_snapshots`)
	if err != nil {
		return 0, err
	}
	if !h.Valid {
		return 0, nil
	}
	return uint64(h.Int64), nil
}

func (r *snapshotRepo) PruneBefore(ctx context.Context, height uint64) error {
	_, err := r.db.ExecContext(ctx,
		`DELETE FROM reserve_snapshots WHERE previous_height < $1`, height)
	return err
}

// -----------------------------------------------------------------------------
// Mismatches
// -----------------------------------------------------------------------------

type mismatchRepo struct{ db *sqlx.DB }

func (r *mismatchRepo) Record(ctx context.Context, height uint64, report *domain.ReserveDiffReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal diff report: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO reserve_mismatches (height, data) VALUES ($1, $2)
		ON CONFLICT (height) DO UPDATE SET data = EXCLUDED.data
	`, height, raw)
	return err
}

func (r *mismatchRepo) Clear(ctx context.Context, height uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM reserve_mismatches WHERE height = $1`, height)
	return err
}

func (r *mismatchRepo) All(ctx context.Context) (map[uint64]*domain.ReserveDiffReport, error) {
	rows, err := r.db.QueryxContext(ctx, `SELECT height, data FROM reserve_mismatches`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[uint64]*domain.ReserveDiffReport)
	for rows.Next() {
		var height uint64
		var raw []byte
		if err := rows.Scan(&height, &raw); err != nil {
			return nil, err
		}
		var rep domain.ReserveDiffReport
		if err := json.Unmarshal(raw, &rep); err != nil {
			return nil, err
		}
		out[height] = &rep
	}
	return out, rows.Err()
}

// -----------------------------------------------------------------------------
// Position
// -----------------------------------------------------------------------------

const (
	posAggregator   = "height_aggregator"
	posPrices       = "height_prs"
	posTxs          = "height_txs"
	posTSHourly     = "timestamp_aggregator_hourly"
	posTSDaily      = "timestamp_aggregator_daily"
	posState        = "scanner_state"
	posRollingBack  = "scanner_rolling_back"
	posPausedFlag   = "scanner_paused"
)

type positionRepo struct{ db *sqlx.DB }

func (r *positionRepo) get(ctx context.Context, name string) (string, error) {
	var v string
	err := r.db.GetContext(ctx, &v, `SELECT value FROM scanner_position WHERE name = $1`, name)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return v, nil
}

func (r *positionRepo) set(ctx context.Context, name, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO scanner_position (name, value) VALUES ($1, $2)
		ON CONFLICT (name) DO UPDATE SET value = EXCLUDED.value
	`, name, value)
	return err
}

func (r *positionRepo) getUint(ctx context.Context, name string) (uint64, error) {
	v, err := r.get(ctx, name)
	if err != nil || v == "" {
		return 0, err
	}
	return strconv.ParseUint(v, 10, 64)
}

func (r *positionRepo) Get(ctx context.Context) (*domain.ScannerPosition, error) {
	var pos domain.ScannerPosition
	var err error
	if pos.AggregatorHeight, err = r.getUint(ctx, posAggregator); err != nil {
		return nil, err
	}
	if pos.PriceHeight, err = r.getUint(ctx, posPrices); err != nil {
		return nil, err
	}
	if pos.TxHeight, err = r.getUint(ctx, posTxs); err != nil {
		return nil, err
	}
	if pos.HourlySealedUntil, err = r.getUint(ctx, posTSHourly); err != nil {
		return nil, err
	}
	if pos.DailySealedUntil, err = r.getUint(ctx, posTSDaily); err != nil {
		return nil, err
	}
	state, err := r.get(ctx, posState)
	if err != nil {
		return nil, err
	}
	if state == "" {
		pos.State = domain.ScannerStateInit
	} else {
		pos.State = domain.ScannerState(state)
	}
	return &pos, nil
}

func (r *positionRepo) SetAggregatorHeight(ctx context.Context, height uint64) error {
	return r.set(ctx, posAggregator, strconv.FormatUint(height, 10))
}

func (r *positionRepo) SetPriceHeight(ctx context.Context, height uint64) error {
	return r.set(ctx, posPrices, strconv.FormatUint(height, 10))
}

func (r *positionRepo) SetTxHeight(ctx context.Context, height uint64) error {
	return r.set(ctx, posTxs, strconv.FormatUint(height, 10))
}

func (r *positionRepo) SetSealedUntil(ctx context.Context, g domain.Granularity, ts uint64) error {
	name := posTSHourly
	if g == domain.GranularityDay {
		name = posTSDaily
	}
	return r.set(ctx, name, strconv.FormatUint(ts, 10))
}

func (r *positionRepo) SetState(ctx context.Context, state domain.ScannerState) error {
	stored, err := r.get(ctx, posState)
	if err != nil {
		return err
	}
	cur := domain.ScannerStateInit
	if stored != "" {
		cur = domain.ScannerState(stored)
	}
	if cur == state {
		return nil
	}
	if !(&domain.ScannerPosition{State: cur}).CanTransition(state) {
		return fmt.Errorf("illegal state transition %s -> %s", cur, state)
	}
	return r.set(ctx, posState, string(state))
}

func (r *positionRepo) Reset(ctx context.Context, height, windowTS uint64) error {
	h := strconv.FormatUint(height, 10)
	ts := strconv.FormatUint(windowTS, 10)
	for name, value := range map[string]string{
		posAggregator: h,
		posPrices:     h,
		posTxs:        h,
		posTSHourly:   ts,
		posTSDaily:    ts,
	} {
		if err := r.set(ctx, name, value); err != nil {
			return fmt.Errorf("reset %s: %w", name, err)
		}
	}
	return nil
}

func (r *positionRepo) setFlag(ctx context.Context, name string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	return r.set(ctx, name, v)
}

func (r *positionRepo) getFlag(ctx context.Context, name string) (bool, error) {
	v, err := r.get(ctx, name)
	if err != nil {
		return false, err
	}
	return v == "1" || v == "true", nil
}

func (r *positionRepo) SetRollingBack(ctx context.Context, on bool) error {
	return r.setFlag(ctx, posRollingBack, on)
}

func (r *positionRepo) RollingBack(ctx context.Context) (bool, error) {
	return r.getFlag(ctx, posRollingBack)
}

func (r *positionRepo) SetPaused(ctx context.Context, on bool) error {
	return r.setFlag(ctx, posPausedFlag, on)
}

func (r *positionRepo) Paused(ctx context.Context) (bool, error) {
	return r.getFlag(ctx, posPausedFlag)
}

// -----------------------------------------------------------------------------
// Totals
// -----------------------------------------------------------------------------

type totalsRepo struct{ db *sqlx.DB }

func (r *totalsRepo) Save(ctx context.Context, t *domain.Totals) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO totals (id, data) VALUES (1, $1)
		ON CONFLICT (id) DO UPDATE SET data = EXCLUDED.data
	`, raw)
	return err
}

func (r *totalsRepo) Get(ctx context.Context) (*domain.Totals, error) {
	var t domain.Totals
	err := getJSON(ctx, r.db, `SELECT data FROM totals WHERE id = 1`, &t)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
