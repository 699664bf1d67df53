package ingest

import (
	"math/big"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
)

// rewardSplits is one block's emission divided by protocol rule.
type rewardSplits struct {
	base       *big.Int
	miner      *big.Int
	governance *big.Int
	reserve    *big.Int
	yield      *big.Int
}

// computeRewardSplits divides a base reward by the split schedule in
// force at the height. The miner takes whatever remains after the
// fixed shares, so the parts always sum exactly to the base.
func computeRewardSplits(base *big.Int, height uint64) rewardSplits {
	s := rewardSplits{
		base:       new(big.Int).Set(base),
		governance: new(big.Int),
		reserve:    new(big.Int),
		yield:      new(big.Int),
	}

	switch {
	case height >= domain.Version2Height:
		s.reserve.Quo(new(big.Int).Mul(base, big.NewInt(3)), big.NewInt(10))
		s.yield.Quo(base, big.NewInt(20))
	case height >= domain.HFVersion1Height:
		s.reserve.Quo(base, big.NewInt(5))
		s.governance.Quo(base, big.NewInt(20))
	default:
		s.governance.Quo(base, big.NewInt(20))
	}

	s.miner = new(big.Int).Set(base)
	s.miner.Sub(s.miner, s.reserve)
	s.miner.Sub(s.miner, s.governance)
	s.miner.Sub(s.miner, s.yield)
	return s
}

// solveBaseRewardFromMinerShare inverts computeRewardSplits by binary
// search: only the miner's share is visible on chain, and integer
// truncation in the split rules makes a closed-form inverse unreliable
// at the boundaries.
func solveBaseRewardFromMinerShare(minerShare *big.Int, height uint64) *big.Int {
	if minerShare == nil || minerShare.Sign() <= 0 {
		return new(big.Int)
	}

	lower := new(big.Int).Set(minerShare)
	upper := new(big.Int).Mul(minerShare, big.NewInt(100))
	switch {
	case height >= domain.Version2Height:
		upper.Quo(upper, big.NewInt(65))
	case height >= domain.HFVersion1Height:
		upper.Quo(upper, big.NewInt(75))
	default:
		upper.Quo(upper, big.NewInt(95))
	}
	upper.Add(upper, big.NewInt(10))

	one := big.NewInt(1)
	for lower.Cmp(upper) < 0 {
		mid := new(big.Int).Add(lower, upper)
		mid.Quo(mid, big.NewInt(2))

		computed := computeRewardSplits(mid, height).miner
		switch computed.Cmp(minerShare) {
		case 0:
			return mid
		case -1:
			lower.Add(mid, one)
		default:
			upper.Set(mid)
		}
	}
	return lower
}

// buildRewardInfo derives the stored reward record from the miner
// transaction's visible payout. feeAdjustment is the block's total
// ZEPH-denominated transaction fees, which ride on top of the miner's
// protocol share and must be stripped before solving for the base.
func buildRewardInfo(height uint64, minerPayout, feeAdjustment *big.Int) *domain.BlockRewardInfo {
	minerExFees := new(big.Int).Sub(minerPayout, feeAdjustment)
	if minerExFees.Sign() < 0 {
		minerExFees.SetInt64(0)
	}

	base := solveBaseRewardFromMinerShare(minerExFees, height)
	splits := computeRewardSplits(base, height)

	return &domain.BlockRewardInfo{
		Height: height,

		MinerReward:      domain.AtomsToFloat(minerPayout),
		GovernanceReward: domain.AtomsToFloat(splits.governance),
		ReserveReward:    domain.AtomsToFloat(splits.reserve),
		YieldReward:      domain.AtomsToFloat(splits.yield),

		MinerRewardAtoms:      minerPayout.String(),
		GovernanceRewardAtoms: splits.governance.String(),
		ReserveRewardAtoms:    splits.reserve.String(),
		YieldRewardAtoms:      splits.yield.String(),
		BaseRewardAtoms:       base.String(),
		FeeAdjustmentAtoms:    feeAdjustment.String(),
	}
}

// zeroRewardInfo is stored for heights with no protocol emission, so
// the aggregator always finds a record. The genesis treasury pre-mine
// is handled by the ledger seed, not as a mining reward.
func zeroRewardInfo(height uint64) *domain.BlockRewardInfo {
	return &domain.BlockRewardInfo{
		Height:                height,
		MinerRewardAtoms:      "0",
		GovernanceRewardAtoms: "0",
		ReserveRewardAtoms:    "0",
		YieldRewardAtoms:      "0",
		BaseRewardAtoms:       "0",
		FeeAdjustmentAtoms:    "0",
	}
}
