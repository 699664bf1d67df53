package domain

// Hard-fork heights of the Zephyr chain. Several ledger rules switch at
// these boundaries.
const (
	// HFVersion1Height is the protocol launch: conversions activate and
	// the reserve reward share begins.
	HFVersion1Height uint64 = 89300

	// HFVersion1Timestamp is the timestamp of the launch block.
	HFVersion1Timestamp uint64 = 1696152427

	// ArtemisHeight switches the conversion fee schedule and the yield
	// auto-mint fee divisor.
	ArtemisHeight uint64 = 295000

	// Version2Height activates the yield asset and changes reward splits.
	Version2Height uint64 = 360000

	// Version2Timestamp is the timestamp of the yield activation block.
	Version2Timestamp uint64 = 1728817200

	// AuditHeight is the fork whose successor block (AuditHeight+1)
	// overwrites the running ledger with externally audited supplies.
	AuditHeight uint64 = 536000
)

// Audited circulating supplies applied wholesale at AuditHeight+1. These
// are published audit results, not derived values.
const (
	AuditedZephCirc    = "7828285273529857474"
	AuditedZephusdCirc = "370722218621489316"
	AuditedZephrsvCirc = "1023512020210500202"
	AuditedZyieldCirc  = "185474354977384066"
)

// SeedZephCirc is the ZEPH circulating supply at HFVersion1Height-1, used
// to seed the first aggregated record. It folds in the genesis treasury
// pre-mine and emission up to launch.
const SeedZephCirc = "1965112770283450000"

// InitialTreasuryZeph is the genesis pre-mine in whole ZEPH, carried as
// a constant offset by the totals rebuild.
const InitialTreasuryZeph = 500000

// UnauditableZephMint is early emission that cannot be attributed
// per-block, in whole ZEPH. Carried as a constant offset by the totals
// rebuild.
const UnauditableZephMint = 1921650
