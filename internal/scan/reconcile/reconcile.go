// Package reconcile checks the cached ledger against on-chain ground
// truth and repairs drift.
//
// Ground truth comes from the daemon's reserve-info call when its
// implied height lines up with the height under comparison, and from a
// stored snapshot otherwise. Both operands of every comparison are
// quantized to atoms first, so float noise below one atom never
// registers as divergence. Divergence beyond tolerance is healed by
// overwriting the diverged fields with the on-chain values; cached
// drift is expected to happen occasionally and must not halt ingestion.
package reconcile

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/big"
	"time"

	"github.com/google/uuid"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
	"github.com/zephyrprotocol/zephscan/internal/infra/rpc"
	"github.com/zephyrprotocol/zephscan/internal/infra/storage"
	"github.com/zephyrprotocol/zephscan/internal/scan/metrics"
)

// Default tuning. One atom of tolerance absorbs the daemon's own
// truncation behavior; snapshots land every 100 blocks.
const (
	DefaultToleranceAtoms   = 1
	DefaultSnapshotInterval = 100
)

// Config tunes the reconciliation engine.
type Config struct {
	// ToleranceAtoms is the largest atom difference that still counts as
	// in sync. Defaults to DefaultToleranceAtoms.
	ToleranceAtoms int64

	// SnapshotInterval is the block spacing of snapshot capture.
	// Defaults to DefaultSnapshotInterval.
	SnapshotInterval uint64

	// SnapshotStart is the first height eligible for snapshot capture.
	// Defaults to the protocol launch fork.
	SnapshotStart uint64

	// DisableSnapshotFallback restricts ground truth to the live RPC.
	DisableSnapshotFallback bool
}

// Engine compares cached ledger state against the chain.
type Engine struct {
	store  storage.Store
	source rpc.ChainSource
	cfg    Config
}

// New creates a reconciliation Engine.
func New(store storage.Store, source rpc.ChainSource, cfg Config) *Engine {
	if cfg.ToleranceAtoms <= 0 {
		cfg.ToleranceAtoms = DefaultToleranceAtoms
	}
	if cfg.SnapshotInterval == 0 {
		cfg.SnapshotInterval = DefaultSnapshotInterval
	}
	if cfg.SnapshotStart == 0 {
		cfg.SnapshotStart = domain.HFVersion1Height
	}
	return &Engine{store: store, source: source, cfg: cfg}
}

// truth is the normalized ground-truth view, whichever source it came
// from.
type truth struct {
	height uint64
	source domain.TruthSource

	reserveAtoms      string
	zsdCircAtoms      string
	zrsCircAtoms      string
	zyieldCircAtoms   string
	yieldReserveAtoms string
	ratio             float64
}

// Reconcile compares the ledger record at targetHeight against ground
// truth and returns the diff report. A report with Mismatch set means
// no usable truth source existed for that exact height.
func (e *Engine) Reconcile(ctx context.Context, targetHeight uint64) (*domain.ReserveDiffReport, error) {
	info, err := e.source.GetReserveInfo(ctx)
	if err != nil {
		slog.Warn("reserve info unavailable, falling back to snapshots", "error", err)
		info = nil
	}
	return e.reconcileWith(ctx, targetHeight, info)
}

func (e *Engine) reconcileWith(ctx context.Context, targetHeight uint64, info *domain.ReserveInfo) (*domain.ReserveDiffReport, error) {
	report := &domain.ReserveDiffReport{
		ID:           uuid.NewString(),
		TargetHeight: targetHeight,
		Source:       domain.TruthSourceNone,
	}

	tr, err := e.selectTruth(ctx, targetHeight, info)
	if err != nil {
		return nil, err
	}
	if tr == nil {
		report.Mismatch = true
		return report, nil
	}
	report.Source = tr.source
	report.TruthHeight = tr.height

	rec, err := e.store.Ledger().Get(ctx, targetHeight)
	if errors.Is(err, storage.ErrNotFound) {
		report.Mismatch = true
		return report, nil
	}
	if err != nil {
		return nil, err
	}

	fields := []struct {
		name        string
		truthAtoms  string
		cachedAtoms string
		cached      float64
	}{
		{"zeph_in_reserve", tr.reserveAtoms, rec.ZephInReserveAtoms, rec.ZephInReserve},
		{"zephusd_circ", tr.zsdCircAtoms, rec.ZephusdCircAtoms, rec.ZephusdCirc},
		{"zephrsv_circ", tr.zrsCircAtoms, rec.ZephrsvCircAtoms, rec.ZephrsvCirc},
		{"zyield_circ", tr.zyieldCircAtoms, rec.ZyieldCircAtoms, rec.ZyieldCirc},
		{"zsd_in_yield_reserve", tr.yieldReserveAtoms, rec.ZsdInYieldReserveAtoms, rec.ZsdInYieldReserve},
	}
	for _, f := range fields {
		entry, err := diffAtoms(f.name, f.truthAtoms, f.cachedAtoms, f.cached)
		if err != nil {
			return nil, fmt.Errorf("diff %s at height %d: %w", f.name, targetHeight, err)
		}
		report.Entries = append(report.Entries, entry)
	}
	if entry, ok := diffRatio(tr.ratio, float64(rec.ReserveRatio)); ok {
		report.Entries = append(report.Entries, entry)
	}
	return report, nil
}

// selectTruth picks the ground-truth source for targetHeight. The live
// info describes state after Height-1, so it is only usable when that
// implied height is exactly the target.
func (e *Engine) selectTruth(ctx context.Context, targetHeight uint64, info *domain.ReserveInfo) (*truth, error) {
	if info != nil && info.PreviousHeight() == targetHeight {
		return &truth{
			height:            targetHeight,
			source:            domain.TruthSourceRPC,
			reserveAtoms:      info.ZephReserveAtoms,
			zsdCircAtoms:      info.ZsdCircAtoms,
			zrsCircAtoms:      info.ZrsCircAtoms,
			zyieldCircAtoms:   info.ZyieldCircAtoms,
			yieldReserveAtoms: info.ZsdYieldReserveAtoms,
			ratio:             atomsRatio(info.ReserveRatioAtoms),
		}, nil
	}
	if e.cfg.DisableSnapshotFallback {
		return nil, nil
	}
	snap, err := e.store.Snapshots().GetByPreviousHeight(ctx, targetHeight)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &truth{
		height:            snap.PreviousHeight,
		source:            domain.TruthSourceSnapshot,
		reserveAtoms:      snap.ZephReserveAtoms,
		zsdCircAtoms:      snap.ZsdCircAtoms,
		zrsCircAtoms:      snap.ZrsCircAtoms,
		zyieldCircAtoms:   snap.ZyieldCircAtoms,
		yieldReserveAtoms: snap.ZsdYieldReserveAtoms,
		ratio:             float64(snap.ReserveRatio),
	}, nil
}

// HandleIntegrity is the once-per-cycle driver: capture a snapshot when
// due, reconcile the newest aggregated record, and self-heal divergence
// beyond tolerance.
func (e *Engine) HandleIntegrity(ctx context.Context, latestHeight uint64) error {
	info, err := e.source.GetReserveInfo(ctx)
	if err != nil {
		slog.Warn("skipping integrity pass, reserve info unavailable", "error", err)
		return nil
	}

	// Snapshots are captured only in lockstep, when the aggregated
	// height is exactly the height the node is describing. Anything else
	// would file truth under the wrong height.
	if info.PreviousHeight() == latestHeight && e.snapshotDue(latestHeight) {
		if err := e.captureSnapshot(ctx, info); err != nil {
			slog.Error("snapshot capture failed", "height", latestHeight, "error", err)
		}
	}

	report, err := e.reconcileWith(ctx, latestHeight, info)
	if err != nil {
		return err
	}

	if report.Mismatch {
		metrics.ReserveMismatches.Inc()
		slog.Warn("no ground truth for reconciliation",
			"height", latestHeight, "node_height", info.Height)
		return e.store.Mismatches().Record(ctx, latestHeight, report)
	}

	diverged := report.Diverged(e.cfg.ToleranceAtoms)
	if len(diverged) == 0 {
		return e.store.Mismatches().Clear(ctx, latestHeight)
	}

	metrics.ReserveMismatches.Inc()
	if err := e.store.Mismatches().Record(ctx, latestHeight, report); err != nil {
		return err
	}
	if err := e.forceReconcile(ctx, latestHeight, diverged); err != nil {
		return err
	}
	return e.store.Mismatches().Clear(ctx, latestHeight)
}

func (e *Engine) snapshotDue(height uint64) bool {
	if height < e.cfg.SnapshotStart {
		return false
	}
	return (height-e.cfg.SnapshotStart)%e.cfg.SnapshotInterval == 0
}

func (e *Engine) captureSnapshot(ctx context.Context, info *domain.ReserveInfo) error {
	snap := &domain.ReserveSnapshot{
		CapturedAt:     time.Now().UTC(),
		ReserveHeight:  info.Height,
		PreviousHeight: info.PreviousHeight(),
		HFVersion:      info.HFVersion,

		ZephReserveAtoms:     info.ZephReserveAtoms,
		ZsdCircAtoms:         info.ZsdCircAtoms,
		ZrsCircAtoms:         info.ZrsCircAtoms,
		ZyieldCircAtoms:      info.ZyieldCircAtoms,
		ZsdYieldReserveAtoms: info.ZsdYieldReserveAtoms,
		ReserveRatioAtoms:    info.ReserveRatioAtoms,
	}
	snap.ZephReserve = floatFromAtoms(info.ZephReserveAtoms)
	snap.ZsdCirc = floatFromAtoms(info.ZsdCircAtoms)
	snap.ZrsCirc = floatFromAtoms(info.ZrsCircAtoms)
	snap.ZyieldCirc = floatFromAtoms(info.ZyieldCircAtoms)
	snap.ZsdYieldReserve = floatFromAtoms(info.ZsdYieldReserveAtoms)
	snap.ReserveRatio = domain.Ratio(atomsRatio(info.ReserveRatioAtoms))

	if err := e.store.Snapshots().Save(ctx, snap); err != nil {
		return err
	}
	slog.Info("captured reserve snapshot",
		"previous_height", snap.PreviousHeight, "reserve", snap.ZephReserve)
	return nil
}

// forceReconcile overwrites the diverged fields of the cached record
// with the on-chain values and persists it.
func (e *Engine) forceReconcile(ctx context.Context, height uint64, diverged []domain.ReserveDiffEntry) error {
	rec, err := e.store.Ledger().Get(ctx, height)
	if err != nil {
		return err
	}

	for _, d := range diverged {
		slog.Warn("forcing cached field to on-chain value",
			"height", height, "field", d.Field, "cached", d.Cached, "on_chain", d.OnChain)
		switch d.Field {
		case "zeph_in_reserve":
			rec.ZephInReserve = d.OnChain
			rec.ZephInReserveAtoms = domain.FormatAtoms(domain.QuantizeToAtoms(d.OnChain))
		case "zephusd_circ":
			rec.ZephusdCirc = d.OnChain
			rec.ZephusdCircAtoms = domain.FormatAtoms(domain.QuantizeToAtoms(d.OnChain))
		case "zephrsv_circ":
			rec.ZephrsvCirc = d.OnChain
			rec.ZephrsvCircAtoms = domain.FormatAtoms(domain.QuantizeToAtoms(d.OnChain))
		case "zyield_circ":
			rec.ZyieldCirc = d.OnChain
			rec.ZyieldCircAtoms = domain.FormatAtoms(domain.QuantizeToAtoms(d.OnChain))
		case "zsd_in_yield_reserve":
			rec.ZsdInYieldReserve = d.OnChain
			rec.ZsdInYieldReserveAtoms = domain.FormatAtoms(domain.QuantizeToAtoms(d.OnChain))
		case "reserve_ratio":
			rec.ReserveRatio = domain.Ratio(d.OnChain)
		}
	}

	if err := e.store.Ledger().Save(ctx, rec); err != nil {
		return err
	}
	metrics.SelfHeals.Inc()
	return nil
}

// diffAtoms compares one balance in atoms. The cached atom string is
// authoritative for the cached side; the float mirror is only carried
// into the report for readability.
func diffAtoms(field, truthAtoms, cachedAtoms string, cachedMirror float64) (domain.ReserveDiffEntry, error) {
	tn, err := domain.ParseAtoms(truthAtoms)
	if err != nil {
		return domain.ReserveDiffEntry{}, err
	}
	cn, err := domain.ParseAtoms(cachedAtoms)
	if err != nil {
		return domain.ReserveDiffEntry{}, err
	}
	diff := new(big.Int).Sub(tn, cn)
	return domain.ReserveDiffEntry{
		Field:     field,
		OnChain:   domain.AtomsToFloat(tn),
		Cached:    cachedMirror,
		Diff:      domain.AtomsToFloat(diff),
		DiffAtoms: new(big.Int).Abs(diff).String(),
	}, nil
}

// diffRatio compares the solvency ratio, quantizing both sides to atoms
// first. A NaN on both sides is agreement; NaN on one side only is full
// divergence of the defined side.
func diffRatio(truthRatio, cachedRatio float64) (domain.ReserveDiffEntry, bool) {
	tFinite := !math.IsNaN(truthRatio) && !math.IsInf(truthRatio, 0)
	cFinite := !math.IsNaN(cachedRatio) && !math.IsInf(cachedRatio, 0)
	if !tFinite && !cFinite {
		return domain.ReserveDiffEntry{}, false
	}

	tn := new(big.Int)
	cn := new(big.Int)
	if tFinite {
		tn = domain.QuantizeToAtoms(truthRatio)
	}
	if cFinite {
		cn = domain.QuantizeToAtoms(cachedRatio)
	}
	diff := new(big.Int).Sub(tn, cn)
	return domain.ReserveDiffEntry{
		Field:     "reserve_ratio",
		OnChain:   truthRatio,
		Cached:    cachedRatio,
		Diff:      domain.AtomsToFloat(diff),
		DiffAtoms: new(big.Int).Abs(diff).String(),
	}, true
}

func atomsRatio(atoms string) float64 {
	n, err := domain.ParseAtoms(atoms)
	if err != nil {
		return math.NaN()
	}
	return domain.AtomsToFloat(n)
}

func floatFromAtoms(atoms string) float64 {
	n, err := domain.ParseAtoms(atoms)
	if err != nil {
		return 0
	}
	return domain.AtomsToFloat(n)
}
