package domain

// BlockRewardInfo is the split of one block's emission. Atom strings are
// authoritative. Immutable once written.
type BlockRewardInfo struct {
	Height uint64 `json:"height"`

	MinerReward      float64 `json:"miner_reward"`
	GovernanceReward float64 `json:"governance_reward"`
	ReserveReward    float64 `json:"reserve_reward"`
	YieldReward      float64 `json:"yield_reward"`

	MinerRewardAtoms      string `json:"miner_reward_atoms"`
	GovernanceRewardAtoms string `json:"governance_reward_atoms"`
	ReserveRewardAtoms    string `json:"reserve_reward_atoms"`
	YieldRewardAtoms      string `json:"yield_reward_atoms"`
	BaseRewardAtoms       string `json:"base_reward_atoms"`
	FeeAdjustmentAtoms    string `json:"fee_adjustment_atoms"`
}
