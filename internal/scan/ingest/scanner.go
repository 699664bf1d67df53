// Package ingest pulls raw chain data into the store: block hashes,
// per-block oracle price records, reward splits and classified
// conversion transactions. Everything downstream aggregates from what
// this package writes.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
)

// Default fetch tuning, sized for a daemon on the same network segment.
const (
	DefaultConcurrency = 10
	DefaultChunkSize   = 500
)

// Config tunes the block fetch pattern.
type Config struct {
	// Concurrency is the number of in-flight block fetches. Defaults to
	// DefaultConcurrency.
	Concurrency int

	// ChunkSize is how many blocks are fetched per batch. Defaults to
	// DefaultChunkSize.
	ChunkSize uint64
}

// Scanner ingests chain data block by block.
type Scanner struct {
	store  storage.Store
	source rpc.ChainSource
	cfg    Config
}

// New creates a Scanner.
func New(store storage.Store, source rpc.ChainSource, cfg Config) *Scanner {
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.ChunkSize == 0 {
		cfg.ChunkSize = DefaultChunkSize
	}
	return &Scanner{store: store, source: source, cfg: cfg}
}

// ScanPrices ingests block hashes and price records for [from, to],
// advancing the price position marker chunk by chunk. Heights before
// the oracle went live get a zero-valued record so the aggregation gate
// can still pass.
func (s *Scanner) ScanPrices(ctx context.Context, from, to uint64) error {
	for chunkStart := from; chunkStart <= to; chunkStart += s.cfg.ChunkSize {
		chunkEnd := chunkStart + s.cfg.ChunkSize - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		blocks, err := rpc.FetchBlocks(ctx, s.source, chunkStart, chunkEnd, s.cfg.Concurrency)
		if err != nil {
			return fmt.Errorf("fetch blocks [%d, %d]: %w", chunkStart, chunkEnd, err)
		}

		hashes := make(map[uint64]string, len(blocks))
		prices := make([]*domain.PriceRecord, 0, len(blocks))
		for _, blk := range blocks {
			hashes[blk.Height] = blk.Hash
			prices = append(prices, priceRecordOf(blk))
		}

		if err := s.store.Hashes().SaveBatch(ctx, hashes); err != nil {
			return fmt.Errorf("save hashes: %w", err)
		}
		if err := s.store.Prices().SaveBatch(ctx, prices); err != nil {
			return fmt.Errorf("save price records: %w", err)
		}
		if err := s.store.Position().SetPriceHeight(ctx, chunkEnd); err != nil {
			return err
		}
		metrics.PriceHeight.Set(float64(chunkEnd))
	}
	return nil
}

// ScanTxs ingests reward splits and conversion transactions for
// [from, to]. The transaction position marker advances per block so an
// interrupted run resumes exactly where it stopped.
func (s *Scanner) ScanTxs(ctx context.Context, from, to uint64) error {
	for chunkStart := from; chunkStart <= to; chunkStart += s.cfg.ChunkSize {
		chunkEnd := chunkStart + s.cfg.ChunkSize - 1
		if chunkEnd > to {
			chunkEnd = to
		}

		blocks, err := rpc.FetchBlocks(ctx, s.source, chunkStart, chunkEnd, s.cfg.Concurrency)
		if err != nil {
			return fmt.Errorf("fetch blocks [%d, %d]: %w", chunkStart, chunkEnd, err)
		}

		// Blocks arrive height-ordered; pricing records from this chunk
		// may not be queryable yet, so keep them at hand for fee rating.
		chunkPrices := make(map[uint64]*domain.PriceRecord, len(blocks))
		for _, blk := range blocks {
			chunkPrices[blk.Height] = priceRecordOf(blk)
		}

		for _, blk := range blocks {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := s.scanBlockTxs(ctx, blk, chunkPrices); err != nil {
				return fmt.Errorf("block %d: %w", blk.Height, err)
			}
			if err := s.store.Position().SetTxHeight(ctx, blk.Height); err != nil {
				return err
			}
			metrics.TxHeight.Set(float64(blk.Height))
		}
	}
	return nil
}

func (s *Scanner) scanBlockTxs(ctx context.Context, blk *rpc.Block, chunkPrices map[uint64]*domain.PriceRecord) error {
	// Genesis carries the treasury pre-mine, not a mining reward.
	if blk.Height == 0 {
		if err := s.store.Rewards().SaveBatch(ctx, []*domain.BlockRewardInfo{zeroRewardInfo(0)}); err != nil {
			return err
		}
		return s.store.Txs().SaveBlock(ctx, 0, nil)
	}

	hashes := make([]string, 0, len(blk.TxHashes)+1)
	hashes = append(hashes, blk.TxHashes...)
	if blk.MinerTxHash != "" {
		hashes = append(hashes, blk.MinerTxHash)
	}

	raws, err := s.source.GetTransactions(ctx, hashes)
	if err != nil {
		return fmt.Errorf("fetch transactions: %w", err)
	}
	byHash := make(map[string]*rpc.RawTransaction, len(raws))
	for _, raw := range raws {
		byHash[raw.Hash] = raw
	}

	// Non-miner transactions first: their ZEPH fees ride on the miner
	// payout and must be known before the reward can be solved.
	blockFees := new(big.Int)
	var convs []*domain.ConversionTransaction
	for _, hash := range blk.TxHashes {
		raw, ok := byHash[hash]
		if !ok {
			return fmt.Errorf("transaction %s missing from daemon response", hash)
		}
		conv, feeAtoms := s.processTx(ctx, blk, raw, chunkPrices)
		blockFees.Add(blockFees, feeAtoms)
		if conv != nil {
			convs = append(convs, conv)
		}
	}

	var reward *domain.BlockRewardInfo
	if miner, ok := byHash[blk.MinerTxHash]; ok && miner.Vout0Amount > 0 {
		reward = buildRewardInfo(blk.Height, new(big.Int).SetUint64(miner.Vout0Amount), blockFees)
	} else {
		slog.Warn("no miner payout found, storing zero reward", "height", blk.Height)
		reward = zeroRewardInfo(blk.Height)
	}

	if err := s.store.Rewards().SaveBatch(ctx, []*domain.BlockRewardInfo{reward}); err != nil {
		return err
	}
	// The index entry is written even with no conversions so the
	// aggregator can tell a scanned block from an unscanned one.
	return s.store.Txs().SaveBlock(ctx, blk.Height, convs)
}

// processTx classifies one raw transaction. Returns the conversion
// record when it is a real conversion, and the transaction's
// ZEPH-denominated fee contribution to the block either way.
func (s *Scanner) processTx(ctx context.Context, blk *rpc.Block, raw *rpc.RawTransaction, chunkPrices map[uint64]*domain.PriceRecord) (*domain.ConversionTransaction, *big.Int) {
	fee := new(big.Int)
	if raw.InputAssetType == "ZEPH" || raw.InputAssetType == "ZPH" {
		fee.SetUint64(raw.TxnFee)
	}

	// Plain transfers burn and mint nothing.
	if raw.AmountBurnt == 0 || raw.AmountMinted == 0 {
		return nil, fee
	}

	kind, audit := classifyConversion(raw.InputAssetType, raw.OutputAssetTypes)
	if audit || (raw.PricingRecordHeight == 0 && raw.AmountBurnt == raw.AmountMinted) {
		return nil, fee
	}
	if kind == domain.ConversionNone {
		slog.Warn("unclassifiable conversion",
			"tx", raw.Hash, "input", raw.InputAssetType, "outputs", raw.OutputAssetTypes)
		return nil, fee
	}
	if raw.PricingRecordHeight == 0 {
		slog.Error("conversion without pricing record", "tx", raw.Hash, "height", blk.Height)
		return nil, fee
	}

	pr, ok := chunkPrices[raw.PricingRecordHeight]
	if !ok {
		stored, err := s.store.Prices().Get(ctx, raw.PricingRecordHeight)
		if err != nil {
			slog.Error("pricing record unavailable for conversion",
				"tx", raw.Hash, "pricing_height", raw.PricingRecordHeight, "error", err)
			return nil, fee
		}
		pr = stored
	}

	fromAsset, toAsset, rate := conversionAssets(kind, pr)

	fromAmount := float64(raw.AmountBurnt) / float64(domain.AtomicUnits)
	toAmount := float64(raw.AmountMinted) / float64(domain.AtomicUnits)

	// The daemon reports the post-fee amount; the protocol fee is
	// back-computed from the rate schedule.
	feeRate := conversionFeeRate(kind, blk.Height)
	convFee := (toAmount / (1 - feeRate)) * feeRate

	return &domain.ConversionTransaction{
		Hash:           raw.Hash,
		BlockHeight:    blk.Height,
		BlockTimestamp: blk.Timestamp,

		ConversionType: kind,
		ConversionRate: rate,

		FromAsset:       fromAsset,
		FromAmount:      fromAmount,
		FromAmountAtoms: new(big.Int).SetUint64(raw.AmountBurnt).String(),
		ToAsset:         toAsset,
		ToAmount:        toAmount,
		ToAmountAtoms:   new(big.Int).SetUint64(raw.AmountMinted).String(),

		ConversionFeeAsset:  toAsset,
		ConversionFeeAmount: convFee,

		TxFeeAsset:  fromAsset,
		TxFeeAmount: float64(raw.TxnFee) / float64(domain.AtomicUnits),
		TxFeeAtoms:  new(big.Int).SetUint64(raw.TxnFee).String(),
	}, fee
}

// priceRecordOf returns the block's pricing record, or a zero-valued
// one for pre-oracle heights.
func priceRecordOf(blk *rpc.Block) *domain.PriceRecord {
	if blk.PricingRecord != nil {
		pr := *blk.PricingRecord
		if pr.BlockTimestamp == 0 {
			pr.BlockTimestamp = blk.Timestamp
		}
		return &pr
	}
	return &domain.PriceRecord{
		BlockHeight:    blk.Height,
		BlockTimestamp: blk.Timestamp,
	}
}
