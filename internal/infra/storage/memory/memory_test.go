package memory

import (
	"context"
	"testing"

	"github.com/zephyrprotocol/zephscan/internal/core/domain"
)

func TestPositionStateTransitions(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := store.Position()

	pos, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pos.State != domain.ScannerStateInit {
		t.Fatalf("initial state = %s, want init", pos.State)
	}

	// The legal path through one detection and rollback.
	for _, next := range []domain.ScannerState{
		domain.ScannerStateScanning,
		domain.ScannerStateDetecting,
		domain.ScannerStateRollingBack,
		domain.ScannerStateScanning,
	} {
		if err := repo.SetState(ctx, next); err != nil {
			t.Fatalf("transition to %s: %v", next, err)
		}
	}

	// Setting the current state again is a no-op, not an error.
	if err := repo.SetState(ctx, domain.ScannerStateScanning); err != nil {
		t.Errorf("same-state set failed: %v", err)
	}

	// Scanning cannot jump back to init, and a rollback cannot pause.
	if err := repo.SetState(ctx, domain.ScannerStateInit); err == nil {
		t.Error("scanning -> init accepted")
	}
	if err := repo.SetState(ctx, domain.ScannerStateRollingBack); err != nil {
		t.Fatalf("scanning -> rolling_back: %v", err)
	}
	if err := repo.SetState(ctx, domain.ScannerStatePaused); err == nil {
		t.Error("rolling_back -> paused accepted")
	}

	pos, err = repo.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if pos.State != domain.ScannerStateRollingBack {
		t.Errorf("state = %s after rejected transitions, want rolling_back", pos.State)
	}
}

func TestPositionIngestedHeight(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	repo := store.Position()

	if err := repo.SetPriceHeight(ctx, 120); err != nil {
		t.Fatalf("set price height: %v", err)
	}
	if err := repo.SetTxHeight(ctx, 118); err != nil {
		t.Fatalf("set tx height: %v", err)
	}

	pos, err := repo.Get(ctx)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if got := pos.IngestedHeight(); got != 118 {
		t.Errorf("ingested height = %d, want the lower pipeline at 118", got)
	}
}
