package rpc

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
)

// ChainSource is the read interface the scanner needs from the daemon.
type ChainSource interface {
	GetHeight(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, height uint64) (*Block, error)
	GetTransactions(ctx context.Context, hashes []string) ([]*RawTransaction, error)
	GetReserveInfo(ctx context.Context) (*domain.ReserveInfo, error)
}

// Block is one block header plus the hashes of its transactions.
type Block struct {
	Height        uint64
	Hash          string
	PrevHash      string
	Timestamp     uint64
	PricingRecord *domain.PriceRecord
	MinerTxHash   string
	TxHashes      []string
}

// RawTransaction is one decoded daemon transaction.
type RawTransaction struct {
	Hash           string
	BlockHeight    uint64
	BlockTimestamp uint64

	AmountBurnt  uint64
	AmountMinted uint64

	// Asset type of the first input and of each output. Conversions are
	// classified from these.
	InputAssetType   string
	OutputAssetTypes []string

	// Plain transfer amount of the first output, nonzero only on miner
	// reward transactions.
	Vout0Amount uint64

	PricingRecordHeight uint64
	TxnFee              uint64
}

type blockHeader struct {
	Hash          string         `json:"hash"`
	Height        uint64         `json:"height"`
	PrevHash      string         `json:"prev_hash"`
	Timestamp     uint64         `json:"timestamp"`
	MinerTxHash   string         `json:"miner_tx_hash"`
	Reward        uint64         `json:"reward"`
	PricingRecord *pricingRecord `json:"pricing_record"`
}

type pricingRecord struct {
	Spot          float64 `json:"spot"`
	MovingAverage float64 `json:"moving_average"`
	Reserve       float64 `json:"reserve"`
	ReserveMA     float64 `json:"reserve_ma"`
	Stable        float64 `json:"stable"`
	StableMA      float64 `json:"stable_ma"`
	YieldPrice    float64 `json:"yield_price"`
	Timestamp     uint64  `json:"timestamp"`
}

// GetHeight returns the daemon's current chain height.
func (c *Client) GetHeight(ctx context.Context) (uint64, error) {
	var resp struct {
		Height uint64 `json:"height"`
	}
	metrics.RPCCallsTotal.WithLabelValues("get_height").Inc()
	if err := c.post(ctx, "/get_height", struct{}{}, &resp); err != nil {
		metrics.RPCErrorsTotal.WithLabelValues("get_height").Inc()
		return 0, fmt.Errorf("get_height: %w", err)
	}
	return resp.Height, nil
}

// GetBlock fetches one block by height.
func (c *Client) GetBlock(ctx context.Context, height uint64) (*Block, error) {
	var result struct {
		BlockHeader blockHeader `json:"block_header"`
		MinerTxHash string      `json:"miner_tx_hash"`
		TxHashes    []string    `json:"tx_hashes"`
	}
	if err := c.call(ctx, "get_block", map[string]uint64{"height": height}, &result); err != nil {
		return nil, fmt.Errorf("get_block %d: %w", height, err)
	}

	hdr := result.BlockHeader
	blk := &Block{
		Height:      hdr.Height,
		Hash:        hdr.Hash,
		PrevHash:    hdr.PrevHash,
		Timestamp:   hdr.Timestamp,
		MinerTxHash: hdr.MinerTxHash,
		TxHashes:    result.TxHashes,
	}
	if blk.MinerTxHash == "" {
		blk.MinerTxHash = result.MinerTxHash
	}
	if pr := hdr.PricingRecord; pr != nil {
		blk.PricingRecord = deatomizePricingRecord(hdr.Height, pr)
	}
	return blk, nil
}

// deatomizePricingRecord converts the daemon's atom-denominated oracle
// values to whole units.
func deatomizePricingRecord(height uint64, pr *pricingRecord) *domain.PriceRecord {
	const deatomize = 1.0 / float64(domain.AtomicUnits)
	return &domain.PriceRecord{
		BlockHeight:    height,
		BlockTimestamp: pr.Timestamp,
		Spot:           pr.Spot * deatomize,
		MovingAverage:  pr.MovingAverage * deatomize,
		ReservePrice:   pr.Reserve * deatomize,
		ReserveMA:      pr.ReserveMA * deatomize,
		StablePrice:    pr.Stable * deatomize,
		StableMA:       pr.StableMA * deatomize,
		YieldPrice:     pr.YieldPrice * deatomize,
	}
}

type txEntry struct {
	TxHash         string `json:"tx_hash"`
	AsJSON         string `json:"as_json"`
	BlockHeight    uint64 `json:"block_height"`
	BlockTimestamp uint64 `json:"block_timestamp"`
}

type txJSON struct {
	AmountBurnt  uint64 `json:"amount_burnt"`
	AmountMinted uint64 `json:"amount_minted"`
	Vin          []struct {
		Key struct {
			AssetType string `json:"asset_type"`
		} `json:"key"`
	} `json:"vin"`
	Vout []struct {
		Amount uint64 `json:"amount"`
		Target struct {
			TaggedKey struct {
				AssetType string `json:"asset_type"`
			} `json:"tagged_key"`
		} `json:"target"`
	} `json:"vout"`
	RctSignatures struct {
		TxnFee uint64 `json:"txnFee"`
	} `json:"rct_signatures"`
	PricingRecordHeight uint64 `json:"pricing_record_height"`
}

// GetTransactions fetches and decodes the given transactions.
func (c *Client) GetTransactions(ctx context.Context, hashes []string) ([]*RawTransaction, error) {
	if len(hashes) == 0 {
		return nil, nil
	}
	req := map[string]any{
		"txs_hashes":     hashes,
		"decode_as_json": true,
	}
	var resp struct {
		Txs    []txEntry `json:"txs"`
		Status string    `json:"status"`
	}
	metrics.RPCCallsTotal.WithLabelValues("get_transactions").Inc()
	if err := c.post(ctx, "/get_transactions", req, &resp); err != nil {
		metrics.RPCErrorsTotal.WithLabelValues("get_transactions").Inc()
		return nil, fmt.Errorf("get_transactions: %w", err)
	}

	out := make([]*RawTransaction, 0, len(resp.Txs))
	for i, entry := range resp.Txs {
		if entry.AsJSON == "" {
			continue
		}
		var decoded txJSON
		if err := json.Unmarshal([]byte(entry.AsJSON), &decoded); err != nil {
			return nil, fmt.Errorf("decode tx %s: %w", entry.TxHash, err)
		}
		raw := &RawTransaction{
			Hash:                entry.TxHash,
			BlockHeight:         entry.BlockHeight,
			BlockTimestamp:      entry.BlockTimestamp,
			AmountBurnt:         decoded.AmountBurnt,
			AmountMinted:        decoded.AmountMinted,
			PricingRecordHeight: decoded.PricingRecordHeight,
			TxnFee:              decoded.RctSignatures.TxnFee,
		}
		if raw.Hash == "" && i < len(hashes) {
			raw.Hash = hashes[i]
		}
		if len(decoded.Vin) > 0 {
			raw.InputAssetType = decoded.Vin[0].Key.AssetType
		}
		for _, v := range decoded.Vout {
			if t := v.Target.TaggedKey.AssetType; t != "" {
				raw.OutputAssetTypes = append(raw.OutputAssetTypes, t)
			}
		}
		if len(decoded.Vout) > 0 {
			raw.Vout0Amount = decoded.Vout[0].Amount
		}
		out = append(out, raw)
	}
	return out, nil
}

// GetReserveInfo fetches the node's live reserve state.
func (c *Client) GetReserveInfo(ctx context.Context) (*domain.ReserveInfo, error) {
	var result struct {
		Height         uint64         `json:"height"`
		HFVersion      uint64         `json:"hf_version"`
		ZephReserve    string         `json:"zeph_reserve"`
		NumStables     string         `json:"num_stables"`
		NumReserves    string         `json:"num_reserves"`
		NumZyield      string         `json:"num_zyield"`
		ZyieldReserve  string         `json:"zyield_reserve"`
		ReserveRatio   string         `json:"reserve_ratio"`
		ReserveRatioMA string         `json:"reserve_ratio_ma"`
		PR             *pricingRecord `json:"pr"`
	}
	if err := c.call(ctx, "get_reserve_info", struct{}{}, &result); err != nil {
		return nil, fmt.Errorf("get_reserve_info: %w", err)
	}

	info := &domain.ReserveInfo{
		Height:               result.Height,
		HFVersion:            result.HFVersion,
		ZephReserveAtoms:     result.ZephReserve,
		ZsdCircAtoms:         result.NumStables,
		ZrsCircAtoms:         result.NumReserves,
		ZyieldCircAtoms:      result.NumZyield,
		ZsdYieldReserveAtoms: result.ZyieldReserve,
		ReserveRatioAtoms:    result.ReserveRatio,
		ReserveRatioMAAtoms:  result.ReserveRatioMA,
	}
	if pr := result.PR; pr != nil {
		info.PriceRecord = deatomizePricingRecord(info.PreviousHeight(), pr)
	}
	return info, nil
}
