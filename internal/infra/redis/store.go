package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
)

// fetchChunk bounds HMGET batch size when walking height ranges.
const fetchChunk = 512

func (c *Client) Ledger() storage.LedgerRepository       { return &ledgerRepo{c.rdb} }
func (c *Client) Prices() storage.PriceRepository        { return &priceRepo{c.rdb} }
func (c *Client) Rewards() storage.RewardRepository      { return &rewardRepo{c.rdb} }
func (c *Client) Txs() storage.TxRepository              { return &txRepo{c.rdb} }
func (c *Client) Hashes() storage.HashRepository         { return &hashRepo{c.rdb} }
func (c *Client) Windows() storage.WindowRepository      { return &windowRepo{c.rdb} }
func (c *Client) Snapshots() storage.SnapshotRepository  { return &snapshotRepo{c.rdb} }
func (c *Client) Mismatches() storage.MismatchRepository { return &mismatchRepo{c.rdb} }
func (c *Client) Position() storage.PositionRepository   { return &positionRepo{c.rdb} }
func (c *Client) Totals() storage.TotalsRepository       { return &totalsRepo{c.rdb} }

func heightField(h uint64) string { return strconv.FormatUint(h, 10) }

func hashGetJSON(ctx context.Context, rdb *redis.Client, key, field string, v any) error {
	raw, err := rdb.HGet(ctx, key, field).Result()
	if err == redis.Nil {
		return storage.ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("hget %s/%s: %w", key, field, err)
	}
	return json.Unmarshal([]byte(raw), v)
}

// deleteHashAbove removes hash fields with numeric field > height. Walks
// the hash with HSCAN so huge maps don't block the server.
func deleteHashAbove(ctx context.Context, rdb *redis.Client, key string, height uint64) error {
	var cursor uint64
	for {
		fields, next, err := rdb.HScan(ctx, key, cursor, "*", 1000).Result()
		if err != nil {
			return fmt.Errorf("hscan %s: %w", key, err)
		}
		var doomed []string
		for i := 0; i < len(fields); i += 2 {
			h, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil {
				continue
			}
			if h > height {
				doomed = append(doomed, fields[i])
			}
		}
		if len(doomed) > 0 {
			if err := rdb.HDel(ctx, key, doomed...).Err(); err != nil {
				return fmt.Errorf("hdel %s: %w", key, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// -----------------------------------------------------------------------------
// Ledger
// -----------------------------------------------------------------------------

type ledgerRepo struct{ rdb *redis.Client }

func (r *ledgerRepo) Save(ctx context.Context, rec *domain.LedgerRecord) error {
	return r.SaveBatch(ctx, []*domain.LedgerRecord{rec})
}

func (r *ledgerRepo) SaveBatch(ctx context.Context, recs []*domain.LedgerRecord) error {
	if len(recs) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(recs)*2)
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal ledger record %d: %w", rec.BlockHeight, err)
		}
		pairs = append(pairs, heightField(rec.BlockHeight), raw)
	}
	if err := r.rdb.HSet(ctx, keyLedger, pairs...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", keyLedger, err)
	}
	return nil
}

func (r *ledgerRepo) Get(ctx context.Context, height uint64) (*domain.LedgerRecord, error) {
	var rec domain.LedgerRecord
	if err := hashGetJSON(ctx, r.rdb, keyLedger, heightField(height), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *ledgerRepo) Latest(ctx context.Context, maxHeight uint64) (*domain.LedgerRecord, error) {
	// Records are dense once aggregation has passed a height, so walk
	// down in chunks until one is found.
	for high := maxHeight; ; {
		low := uint64(0)
		if high >= fetchChunk {
			low = high - fetchChunk + 1
		}
		fields := make([]string, 0, high-low+1)
		for h := high; ; h-- {
			fields = append(fields, heightField(h))
			if h == low {
				break
			}
		}
		vals, err := r.rdb.HMGet(ctx, keyLedger, fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("hmget %s: %w", keyLedger, err)
		}
		for _, v := range vals {
			if v == nil {
				continue
			}
			var rec domain.LedgerRecord
			if err := json.Unmarshal([]byte(v.(string)), &rec); err != nil {
				return nil, err
			}
			return &rec, nil
		}
		if low == 0 {
			return nil, storage.ErrNotFound
		}
		high = low - 1
	}
}

func (r *ledgerRepo) Range(ctx context.Context, startTS, endTS, maxHeight uint64) ([]*domain.LedgerRecord, error) {
	// Walk heights downward; timestamps are monotonic in height, so the
	// walk stops at the first record older than startTS.
	var collected []*domain.LedgerRecord
	high := maxHeight
	for {
		low := uint64(0)
		if high >= fetchChunk {
			low = high - fetchChunk + 1
		}
		fields := make([]string, 0, high-low+1)
		for h := high; ; h-- {
			fields = append(fields, heightField(h))
			if h == low {
				break
			}
		}
		vals, err := r.rdb.HMGet(ctx, keyLedger, fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("hmget %s: %w", keyLedger, err)
		}
		done := false
		for _, v := range vals {
			if v == nil {
				continue
			}
			var rec domain.LedgerRecord
			if err := json.Unmarshal([]byte(v.(string)), &rec); err != nil {
				return nil, err
			}
			if rec.BlockTimestamp < startTS {
				done = true
				break
			}
			if rec.BlockTimestamp < endTS {
				collected = append(collected, &rec)
			}
		}
		if done || low == 0 {
			break
		}
		high = low - 1
	}
	// Reverse into ascending timestamp order.
	for i, j := 0, len(collected)-1; i < j; i, j = i+1, j-1 {
		collected[i], collected[j] = collected[j], collected[i]
	}
	return collected, nil
}

func (r *ledgerRepo) DeleteAbove(ctx context.Context, height uint64) error {
	return deleteHashAbove(ctx, r.rdb, keyLedger, height)
}

// -----------------------------------------------------------------------------
// Prices
// -----------------------------------------------------------------------------

type priceRepo struct{ rdb *redis.Client }

func (r *priceRepo) SaveBatch(ctx context.Context, recs []*domain.PriceRecord) error {
	if len(recs) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(recs)*2)
	for _, rec := range recs {
		raw, err := json.Marshal(rec)
		if err != nil {
			return fmt.Errorf("marshal price record %d: %w", rec.BlockHeight, err)
		}
		pairs = append(pairs, heightField(rec.BlockHeight), raw)
	}
	if err := r.rdb.HSet(ctx, keyPricingRecords, pairs...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", keyPricingRecords, err)
	}
	return nil
}

func (r *priceRepo) Get(ctx context.Context, height uint64) (*domain.PriceRecord, error) {
	var rec domain.PriceRecord
	if err := hashGetJSON(ctx, r.rdb, keyPricingRecords, heightField(height), &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

func (r *priceRepo) DeleteAbove(ctx context.Context, height uint64) error {
	return deleteHashAbove(ctx, r.rdb, keyPricingRecords, height)
}

// -----------------------------------------------------------------------------
// Rewards
// -----------------------------------------------------------------------------

type rewardRepo struct{ rdb *redis.Client }

func (r *rewardRepo) SaveBatch(ctx context.Context, infos []*domain.BlockRewardInfo) error {
	if len(infos) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(infos)*2)
	for _, info := range infos {
		raw, err := json.Marshal(info)
		if err != nil {
			return fmt.Errorf("marshal reward info %d: %w", info.Height, err)
		}
		pairs = append(pairs, heightField(info.Height), raw)
	}
	if err := r.rdb.HSet(ctx, keyBlockRewards, pairs...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", keyBlockRewards, err)
	}
	return nil
}

func (r *rewardRepo) Get(ctx context.Context, height uint64) (*domain.BlockRewardInfo, error) {
	var info domain.BlockRewardInfo
	if err := hashGetJSON(ctx, r.rdb, keyBlockRewards, heightField(height), &info); err != nil {
		return nil, err
	}
	return &info, nil
}

func (r *rewardRepo) GetRange(ctx context.Context, from, to uint64) ([]*domain.BlockRewardInfo, error) {
	var out []*domain.BlockRewardInfo
	for low := from; low <= to; low += fetchChunk {
		high := low + fetchChunk - 1
		if high > to {
			high = to
		}
		fields := make([]string, 0, high-low+1)
		for h := low; h <= high; h++ {
			fields = append(fields, heightField(h))
		}
		vals, err := r.rdb.HMGet(ctx, keyBlockRewards, fields...).Result()
		if err != nil {
			return nil, fmt.Errorf("hmget %s: %w", keyBlockRewards, err)
		}
		for _, v := range vals {
			if v == nil {
				continue
			}
			var info domain.BlockRewardInfo
			if err := json.Unmarshal([]byte(v.(string)), &info); err != nil {
				return nil, err
			}
			out = append(out, &info)
		}
	}
	return out, nil
}

func (r *rewardRepo) DeleteAbove(ctx context.Context, height uint64) error {
	return deleteHashAbove(ctx, r.rdb, keyBlockRewards, height)
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

type txRepo struct{ rdb *redis.Client }

func (r *txRepo) SaveBlock(ctx context.Context, height uint64, txs []*domain.ConversionTransaction) error {
	hashes := make([]string, 0, len(txs))
	pipe := r.rdb.Pipeline()
	for _, tx := range txs {
		raw, err := json.Marshal(tx)
		if err != nil {
			return fmt.Errorf("marshal tx %s: %w", tx.Hash, err)
		}
		pipe.HSet(ctx, keyTxs, tx.Hash, raw)
		hashes = append(hashes, tx.Hash)
	}
	idx, err := json.Marshal(hashes)
	if err != nil {
		return err
	}
	pipe.HSet(ctx, keyTxsByBlock, heightField(height), idx)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save txs for block %d: %w", height, err)
	}
	return nil
}

func (r *txRepo) GetByBlock(ctx context.Context, height uint64) ([]*domain.ConversionTransaction, error) {
	var hashes []string
	if err := hashGetJSON(ctx, r.rdb, keyTxsByBlock, heightField(height), &hashes); err != nil {
		return nil, err
	}
	if len(hashes) == 0 {
		return nil, nil
	}
	vals, err := r.rdb.HMGet(ctx, keyTxs, hashes...).Result()
	if err != nil {
		return nil, fmt.Errorf("hmget %s: %w", keyTxs, err)
	}
	out := make([]*domain.ConversionTransaction, 0, len(vals))
	for _, v := range vals {
		if v == nil {
			continue
		}
		var tx domain.ConversionTransaction
		if err := json.Unmarshal([]byte(v.(string)), &tx); err != nil {
			return nil, err
		}
		out = append(out, &tx)
	}
	return out, nil
}

func (r *txRepo) GetByHash(ctx context.Context, hash string) (*domain.ConversionTransaction, error) {
	var tx domain.ConversionTransaction
	if err := hashGetJSON(ctx, r.rdb, keyTxs, hash, &tx); err != nil {
		return nil, err
	}
	return &tx, nil
}

func (r *txRepo) DeleteAbove(ctx context.Context, height uint64) error {
	var cursor uint64
	for {
		fields, next, err := r.rdb.HScan(ctx, keyTxsByBlock, cursor, "*", 1000).Result()
		if err != nil {
			return fmt.Errorf("hscan %s: %w", keyTxsByBlock, err)
		}
		for i := 0; i < len(fields); i += 2 {
			h, err := strconv.ParseUint(fields[i], 10, 64)
			if err != nil || h <= height {
				continue
			}
			var hashes []string
			if err := json.Unmarshal([]byte(fields[i+1]), &hashes); err == nil && len(hashes) > 0 {
				if err := r.rdb.HDel(ctx, keyTxs, hashes...).Err(); err != nil {
					return fmt.Errorf("hdel %s: %w", keyTxs, err)
				}
			}
			if err := r.rdb.HDel(ctx, keyTxsByBlock, fields[i]).Err(); err != nil {
				return fmt.Errorf("hdel %s: %w", keyTxsByBlock, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// -----------------------------------------------------------------------------
// Block hashes
// -----------------------------------------------------------------------------

type hashRepo struct{ rdb *redis.Client }

func (r *hashRepo) SaveBatch(ctx context.Context, hashes map[uint64]string) error {
	if len(hashes) == 0 {
		return nil
	}
	pairs := make([]any, 0, len(hashes)*2)
	for h, hash := range hashes {
		pairs = append(pairs, heightField(h), hash)
	}
	if err := r.rdb.HSet(ctx, keyBlockHashes, pairs...).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", keyBlockHashes, err)
	}
	return nil
}

func (r *hashRepo) Get(ctx context.Context, height uint64) (string, error) {
	hash, err := r.rdb.HGet(ctx, keyBlockHashes, heightField(height)).Result()
	if err == redis.Nil {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("hget %s: %w", keyBlockHashes, err)
	}
	return hash, nil
}

func (r *hashRepo) DeleteAbove(ctx context.Context, height uint64) error {
	return deleteHashAbove(ctx, r.rdb, keyBlockHashes, height)
}

// -----------------------------------------------------------------------------
// Windows
// -----------------------------------------------------------------------------

type windowRepo struct{ rdb *redis.Client }

func sealedKey(g domain.Granularity) string {
	if g == domain.GranularityDay {
		return keyDaily
	}
	return keyHourly
}

func pendingKey(g domain.Granularity) string {
	if g == domain.GranularityDay {
		return keyDailyPending
	}
	return keyHourlyPending
}

func (r *windowRepo) SaveSealed(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal window aggregate: %w", err)
	}
	key := sealedKey(g)
	pipe := r.rdb.Pipeline()
	// A resealed window replaces its previous member rather than adding
	// a duplicate at the same score.
	pipe.ZRemRangeByScore(ctx, key,
		strconv.FormatUint(agg.WindowStart, 10),
		strconv.FormatUint(agg.WindowStart, 10))
	pipe.ZAdd(ctx, key, redis.Z{Score: float64(agg.WindowStart), Member: raw})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("zadd %s: %w", key, err)
	}
	return nil
}

func (r *windowRepo) SavePending(ctx context.Context, g domain.Granularity, agg *domain.WindowAggregate) error {
	raw, err := json.Marshal(agg)
	if err != nil {
		return fmt.Errorf("marshal pending aggregate: %w", err)
	}
	if err := r.rdb.Set(ctx, pendingKey(g), raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", pendingKey(g), err)
	}
	return nil
}

func (r *windowRepo) GetPending(ctx context.Context, g domain.Granularity) (*domain.WindowAggregate, error) {
	raw, err := r.rdb.Get(ctx, pendingKey(g)).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", pendingKey(g), err)
	}
	var agg domain.WindowAggregate
	if err := json.Unmarshal([]byte(raw), &agg); err != nil {
		return nil, err
	}
	return &agg, nil
}

func (r *windowRepo) GetSealedRange(ctx context.Context, g domain.Granularity, startTS, endTS uint64) ([]*domain.WindowAggregate, error) {
	vals, err := r.rdb.ZRangeByScore(ctx, sealedKey(g), &redis.ZRangeBy{
		Min: strconv.FormatUint(startTS, 10),
		Max: strconv.FormatUint(endTS, 10),
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("zrangebyscore %s: %w", sealedKey(g), err)
	}
	out := make([]*domain.WindowAggregate, 0, len(vals))
	for _, v := range vals {
		var agg domain.WindowAggregate
		if err := json.Unmarshal([]byte(v), &agg); err != nil {
			return nil, err
		}
		out = append(out, &agg)
	}
	return out, nil
}

func (r *windowRepo) DeleteFrom(ctx context.Context, g domain.Granularity, ts uint64) error {
	pipe := r.rdb.Pipeline()
	pipe.ZRemRangeByScore(ctx, sealedKey(g), strconv.FormatUint(ts, 10), "+inf")
	pipe.Del(ctx, pendingKey(g))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("truncate %s: %w", sealedKey(g), err)
	}
	return nil
}

// -----------------------------------------------------------------------------
// Snapshots
// -----------------------------------------------------------------------------

type snapshotRepo struct{ rdb *redis.Client }

func (r *snapshotRepo) Save(ctx context.Context, snap *domain.ReserveSnapshot) error {
	raw, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := r.rdb.Pipeline()
	pipe.HSet(ctx, keySnapshots, heightField(snap.PreviousHeight), raw)
	pipe.Set(ctx, keyLastSnapshot, heightField(snap.PreviousHeight), 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("save snapshot %d: %w", snap.PreviousHeight, err)
	}
	return nil
}

func (r *snapshotRepo) GetByPreviousHeight(ctx context.Context, height uint64) (*domain.ReserveSnapshot, error) {
	var snap domain.ReserveSnapshot
	if err := hashGetJSON(ctx, r.rdb, keySnapshots, heightField(height), &snap); err != nil {
		return nil, err
	}
	return &snap, nil
}

func (r *snapshotRepo) LastPreviousHeight(ctx context.Context) (uint64, error) {
	raw, err := r.rdb.Get(ctx, keyLastSnapshot).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", keyLastSnapshot, err)
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (r *snapshotRepo) PruneBefore(ctx context.Context, height uint64) error {
	var cursor uint64
	for {
		fields, next, err := r.rdb.HScan(ctx, keySnapshots, cursor, "*", 1000).Result()
		if err != nil {
			return fmt.Errorf("hscan %s: %w", keySnapshots, err)
		}
		var doomed []string
		for i := 0; i < len(fields); i += 2 {
			h, err := strconv.ParseUint(fields[i], 10, 64)
			if err == nil && h < height {
				doomed = append(doomed, fields[i])
			}
		}
		if len(doomed) > 0 {
			if err := r.rdb.HDel(ctx, keySnapshots, doomed...).Err(); err != nil {
				return fmt.Errorf("hdel %s: %w", keySnapshots, err)
			}
		}
		cursor = next
		if cursor == 0 {
			return nil
		}
	}
}

// -----------------------------------------------------------------------------
// Mismatches
// -----------------------------------------------------------------------------

type mismatchRepo struct{ rdb *redis.Client }

func (r *mismatchRepo) Record(ctx context.Context, height uint64, report *domain.ReserveDiffReport) error {
	raw, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("marshal diff report: %w", err)
	}
	if err := r.rdb.HSet(ctx, keyMismatches, heightField(height), raw).Err(); err != nil {
		return fmt.Errorf("hset %s: %w", keyMismatches, err)
	}
	return nil
}

func (r *mismatchRepo) Clear(ctx context.Context, height uint64) error {
	if err := r.rdb.HDel(ctx, keyMismatches, heightField(height)).Err(); err != nil {
		return fmt.Errorf("hdel %s: %w", keyMismatches, err)
	}
	return nil
}

func (r *mismatchRepo) All(ctx context.Context) (map[uint64]*domain.ReserveDiffReport, error) {
	raw, err := r.rdb.HGetAll(ctx, keyMismatches).Result()
	if err != nil {
		return nil, fmt.Errorf("hgetall %s: %w", keyMismatches, err)
	}
	out := make(map[uint64]*domain.ReserveDiffReport, len(raw))
	for field, val := range raw {
		h, err := strconv.ParseUint(field, 10, 64)
		if err != nil {
			continue
		}
		var rep domain.ReserveDiffReport
		if err := json.Unmarshal([]byte(val), &rep); err != nil {
			return nil, err
		}
		out[h] = &rep
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Position
// -----------------------------------------------------------------------------

type positionRepo struct{ rdb *redis.Client }

func (r *positionRepo) getUint(ctx context.Context, key string) (uint64, error) {
	raw, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("get %s: %w", key, err)
	}
	return strconv.ParseUint(raw, 10, 64)
}

func (r *positionRepo) setUint(ctx context.Context, key string, v uint64) error {
	if err := r.rdb.Set(ctx, key, strconv.FormatUint(v, 10), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *positionRepo) Get(ctx context.Context) (*domain.ScannerPosition, error) {
	var pos domain.ScannerPosition
	var err error
	if pos.AggregatorHeight, err = r.getUint(ctx, keyHeightAgg); err != nil {
		return nil, err
	}
	if pos.PriceHeight, err = r.getUint(ctx, keyHeightPrices); err != nil {
		return nil, err
	}
	if pos.TxHeight, err = r.getUint(ctx, keyHeightTxs); err != nil {
		return nil, err
	}
	if pos.HourlySealedUntil, err = r.getUint(ctx, keyTSHourly); err != nil {
		return nil, err
	}
	if pos.DailySealedUntil, err = r.getUint(ctx, keyTSDaily); err != nil {
		return nil, err
	}
	state, err := r.rdb.Get(ctx, keyScannerState).Result()
	if err == redis.Nil || state == "" {
		pos.State = domain.ScannerStateInit
	} else if err != nil {
		return nil, fmt.Errorf("get %s: %w", keyScannerState, err)
	} else {
		pos.State = domain.ScannerState(state)
	}
	return &pos, nil
}

func (r *positionRepo) SetAggregatorHeight(ctx context.Context, height uint64) error {
	return r.setUint(ctx, keyHeightAgg, height)
}

func (r *positionRepo) SetPriceHeight(ctx context.Context, height uint64) error {
	return r.setUint(ctx, keyHeightPrices, height)
}

func (r *positionRepo) SetTxHeight(ctx context.Context, height uint64) error {
	return r.setUint(ctx, keyHeightTxs, height)
}

func (r *positionRepo) SetSealedUntil(ctx context.Context, g domain.Granularity, ts uint64) error {
	if g == domain.GranularityDay {
		return r.setUint(ctx, keyTSDaily, ts)
	}
	return r.setUint(ctx, keyTSHourly, ts)
}

func (r *positionRepo) SetState(ctx context.Context, state domain.ScannerState) error {
	cur := domain.ScannerStateInit
	stored, err := r.rdb.Get(ctx, keyScannerState).Result()
	if err != nil && err != redis.Nil {
		return fmt.Errorf("get %s: %w", keyScannerState, err)
	}
	if err == nil && stored != "" {
		cur = domain.ScannerState(stored)
	}
	if cur == state {
		return nil
	}
	if !(&domain.ScannerPosition{State: cur}).CanTransition(state) {
		return fmt.Errorf("illegal state transition %s -> %s", cur, state)
	}
	if err := r.rdb.Set(ctx, keyScannerState, string(state), 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", keyScannerState, err)
	}
	return nil
}

func (r *positionRepo) Reset(ctx context.Context, height, windowTS uint64) error {
	h := strconv.FormatUint(height, 10)
	ts := strconv.FormatUint(windowTS, 10)
	pipe := r.rdb.Pipeline()
	pipe.Set(ctx, keyHeightAgg, h, 0)
	pipe.Set(ctx, keyHeightPrices, h, 0)
	pipe.Set(ctx, keyHeightTxs, h, 0)
	pipe.Set(ctx, keyTSHourly, ts, 0)
	pipe.Set(ctx, keyTSDaily, ts, 0)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("reset position: %w", err)
	}
	return nil
}

func (r *positionRepo) setFlag(ctx context.Context, key string, on bool) error {
	v := "0"
	if on {
		v = "1"
	}
	if err := r.rdb.Set(ctx, key, v, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", key, err)
	}
	return nil
}

func (r *positionRepo) getFlag(ctx context.Context, key string) (bool, error) {
	raw, err := r.rdb.Get(ctx, key).Result()
	if err == redis.Nil {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", key, err)
	}
	return raw == "1" || raw == "true", nil
}

func (r *positionRepo) SetRollingBack(ctx context.Context, on bool) error {
	return r.setFlag(ctx, keyRollingBack, on)
}

func (r *positionRepo) RollingBack(ctx context.Context) (bool, error) {
	return r.getFlag(ctx, keyRollingBack)
}

func (r *positionRepo) SetPaused(ctx context.Context, on bool) error {
	return r.setFlag(ctx, keyPaused, on)
}

func (r *positionRepo) Paused(ctx context.Context) (bool, error) {
	return r.getFlag(ctx, keyPaused)
}

// -----------------------------------------------------------------------------
// Totals
// -----------------------------------------------------------------------------

type totalsRepo struct{ rdb *redis.Client }

func (r *totalsRepo) Save(ctx context.Context, t *domain.Totals) error {
	raw, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("marshal totals: %w", err)
	}
	if err := r.rdb.Set(ctx, keyTotals, raw, 0).Err(); err != nil {
		return fmt.Errorf("set %s: %w", keyTotals, err)
	}
	return nil
}

func (r *totalsRepo) Get(ctx context.Context) (*domain.Totals, error) {
	raw, err := r.rdb.Get(ctx, keyTotals).Result()
	if err == redis.Nil {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get %s: %w", keyTotals, err)
	}
	var t domain.Totals
	if err := json.Unmarshal([]byte(raw), &t); err != nil {
		return nil, err
	}
	return &t, nil
}
