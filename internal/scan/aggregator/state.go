package aggregator

import (
	"math/big"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
)

// ledgerState carries the running ledger in atoms while one block is
// processed. Every mutation happens here; the record's float mirrors are
// recomputed from these integers at commit so rounding error cannot
// compound across blocks.
type ledgerState struct {
	reserve      *big.Int
	yieldReserve *big.Int
	zephCirc     *big.Int
	zsdCirc      *big.Int
	zrsCirc      *big.Int
	zyieldCirc   *big.Int
	yieldAccrued *big.Int
}

// balanceAtoms reads an atom string, falling back to the float mirror
// for records written before atom fields existed.
func balanceAtoms(atoms string, mirror float64) (*big.Int, error) {
	if atoms != "" {
		return domain.ParseAtoms(atoms)
	}
	return domain.FloatToAtoms(mirror), nil
}

// newLedgerState seeds the running ledger from the previous record, or
// from the launch seed when prev is nil.
func newLedgerState(prev *domain.LedgerRecord) (*ledgerState, error) {
	if prev == nil {
		seed, err := domain.ParseAtoms(domain.SeedZephCirc)
		if err != nil {
			return nil, err
		}
		return &ledgerState{
			reserve:      new(big.Int),
			yieldReserve: new(big.Int),
			zephCirc:     seed,
			zsdCirc:      new(big.Int),
			zrsCirc:      new(big.Int),
			zyieldCirc:   new(big.Int),
			yieldAccrued: new(big.Int),
		}, nil
	}

	st := &ledgerState{}
	var err error
	if st.reserve, err = balanceAtoms(prev.ZephInReserveAtoms, prev.ZephInReserve); err != nil {
		return nil, err
	}
	if st.yieldReserve, err = balanceAtoms(prev.ZsdInYieldReserveAtoms, prev.ZsdInYieldReserve); err != nil {
		return nil, err
	}
	if st.zephCirc, err = balanceAtoms(prev.ZephCircAtoms, prev.ZephCirc); err != nil {
		return nil, err
	}
	if st.zsdCirc, err = balanceAtoms(prev.ZephusdCircAtoms, prev.ZephusdCirc); err != nil {
		return nil, err
	}
	if st.zrsCirc, err = balanceAtoms(prev.ZephrsvCircAtoms, prev.ZephrsvCirc); err != nil {
		return nil, err
	}
	if st.zyieldCirc, err = balanceAtoms(prev.ZyieldCircAtoms, prev.ZyieldCirc); err != nil {
		return nil, err
	}
	if st.yieldAccrued, err = balanceAtoms(prev.ZsdAccruedFromYieldRewardAtoms, prev.ZsdAccruedFromYieldReward); err != nil {
		return nil, err
	}
	return st, nil
}

// applyAudit overwrites the circulating supplies with the published
// audit results.
func (st *ledgerState) applyAudit() error {
	var err error
	if st.zephCirc, err = domain.ParseAtoms(domain.AuditedZephCirc); err != nil {
		return err
	}
	if st.zsdCirc, err = domain.ParseAtoms(domain.AuditedZephusdCirc); err != nil {
		return err
	}
	if st.zrsCirc, err = domain.ParseAtoms(domain.AuditedZephrsvCirc); err != nil {
		return err
	}
	if st.zyieldCirc, err = domain.ParseAtoms(domain.AuditedZyieldCirc); err != nil {
		return err
	}
	return nil
}

// clampSub subtracts delta from balance, clamping at zero. Returns true
// when the clamp fired.
func clampSub(balance, delta *big.Int) bool {
	if balance.Cmp(delta) < 0 {
		balance.SetInt64(0)
		return true
	}
	balance.Sub(balance, delta)
	return false
}

// writeTo copies the atom balances into the record, deriving the float
// mirrors.
func (st *ledgerState) writeTo(rec *domain.LedgerRecord) {
	rec.ZephInReserveAtoms = domain.FormatAtoms(st.reserve)
	rec.ZephInReserve = domain.AtomsToFloat(st.reserve)
	rec.ZsdInYieldReserveAtoms = domain.FormatAtoms(st.yieldReserve)
	rec.ZsdInYieldReserve = domain.AtomsToFloat(st.yieldReserve)
	rec.ZephCircAtoms = domain.FormatAtoms(st.zephCirc)
	rec.ZephCirc = domain.AtomsToFloat(st.zephCirc)
	rec.ZephusdCircAtoms = domain.FormatAtoms(st.zsdCirc)
	rec.ZephusdCirc = domain.AtomsToFloat(st.zsdCirc)
	rec.ZephrsvCircAtoms = domain.FormatAtoms(st.zrsCirc)
	rec.ZephrsvCirc = domain.AtomsToFloat(st.zrsCirc)
	rec.ZyieldCircAtoms = domain.FormatAtoms(st.zyieldCirc)
	rec.ZyieldCirc = domain.AtomsToFloat(st.zyieldCirc)
	rec.ZsdAccruedFromYieldRewardAtoms = domain.FormatAtoms(st.yieldAccrued)
	rec.ZsdAccruedFromYieldReward = domain.AtomsToFloat(st.yieldAccrued)
}

// validate checks the running-ledger invariant: every balance must be
// non-negative. The solvency ratio is exempt; NaN there is a legitimate
// zero-liability state.
func (st *ledgerState) validate(height uint64) error {
	checks := []struct {
		name string
		v    *big.Int
	}{
		{"zeph_in_reserve", st.reserve},
		{"zsd_in_yield_reserve", st.yieldReserve},
		{"zeph_circ", st.zephCirc},
		{"zephusd_circ", st.zsdCirc},
		{"zephrsv_circ", st.zrsCirc},
		{"zyield_circ", st.zyieldCirc},
		{"zsd_accrued_in_yield_reserve_from_yield_reward", st.yieldAccrued},
	}
	for _, c := range checks {
		if c.v.Sign() < 0 {
			return &ValidationError{Height: height, Field: c.name, Value: c.v.String()}
		}
	}
	return nil
}
