package app

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/personahire/tokenmeter/adapters/clock"
	"github.com/personahire/tokenmeter/adapters/idgen"
	"github.com/personahire/tokenmeter/adapters/memory"
	"github.com/personahire/tokenmeter/domain/policy"
	"github.com/personahire/tokenmeter/domain/pricing"
	"github.com/personahire/tokenmeter/domain/usage"
)

func testPolicy(t *testing.T, th policy.Thresholds) (*PolicyService, *LedgerService, *clock.Fake) {
	t.Helper()
	store := memory.NewKVStore()
	gw := NewGateway(store, zerolog.Nop(), nil)
	fc := clock.NewFake(time.Date(2026, 3, 15, 10, 0, 0, 0, time.UTC))
	ledger := NewLedgerService(gw, fc, idgen.NewSequential("evt-"), pricing.Default(), zerolog.Nop(), nil)
	return NewPolicyService(ledger, th, zerolog.Nop(), nil), ledger, fc
}

func TestPolicyService_BlocksOnDailyCap(t *testing.T) {
	svc, ledger, _ := testPolicy(t, policy.Thresholds{DailyUnits: 1000})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 600, 300, 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	if d := svc.Check(usage.CategoryChatCompletion, 100); !d.Allowed() {
		t.Errorf("expected call reaching the cap exactly to be allowed, got %+v", d)
	}
	d := svc.Check(usage.CategoryChatCompletion, 101)
	if d.Allowed() || d.Code != policy.CodeDailyLimitExceeded {
		t.Errorf("expected daily-limit block, got %+v", d)
	}
}

func TestPolicyService_WindowUsesRecentEventsOnly(t *testing.T) {
	svc, ledger, fc := testPolicy(t, policy.Thresholds{
		ShortWindowUnits: 500,
		ShortWindow:      5 * time.Minute,
	})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 400, 0, 0, 0, ""); err != nil {
		t.Fatal(err)
	}

	d := svc.Check(usage.CategoryChatCompletion, 200)
	if d.Outcome != policy.Warn || d.Code != policy.CodeHighFrequency {
		t.Errorf("expected high-frequency warn inside window, got %+v", d)
	}
	if !d.Allowed() {
		t.Error("warn must still permit the call")
	}

	// Once the burst ages out of the window the same call is clean.
	fc.Advance(6 * time.Minute)
	if d := svc.Check(usage.CategoryChatCompletion, 200); d.Outcome != policy.Allow {
		t.Errorf("expected allow after window elapsed, got %+v", d)
	}
}

func TestPolicyService_CostLevels(t *testing.T) {
	svc, ledger, _ := testPolicy(t, policy.Thresholds{CostWarning: 1.0, CostLimit: 5.0})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 0, 0, 2.0, 0, ""); err != nil {
		t.Fatal(err)
	}
	d := svc.Check(usage.CategoryChatCompletion, 10)
	if d.Outcome != policy.Warn || d.Code != policy.CodeCostWarning {
		t.Errorf("expected cost warning, got %+v", d)
	}

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 0, 0, 3.5, 0, ""); err != nil {
		t.Fatal(err)
	}
	d = svc.Check(usage.CategoryChatCompletion, 10)
	if d.Outcome != policy.Block || d.Code != policy.CodeCostLimitExceeded {
		t.Errorf("expected cost block past limit, got %+v", d)
	}
}

func TestPolicyService_SetThresholdsTakesEffect(t *testing.T) {
	svc, _, _ := testPolicy(t, policy.Thresholds{PerRequestUnits: 100})

	if d := svc.Check(usage.CategoryChatCompletion, 200); d.Allowed() {
		t.Fatalf("expected oversized request blocked, got %+v", d)
	}

	svc.SetThresholds(policy.Thresholds{PerRequestUnits: 1000})
	if d := svc.Check(usage.CategoryChatCompletion, 200); !d.Allowed() {
		t.Errorf("expected request allowed after threshold raise, got %+v", d)
	}
}

func TestPolicyService_ZeroThresholdsAllowEverything(t *testing.T) {
	svc, ledger, _ := testPolicy(t, policy.Thresholds{})
	ctx := context.Background()

	if _, err := ledger.Record(ctx, usage.CategoryChatCompletion, 1_000_000, 0, 99.0, 0, ""); err != nil {
		t.Fatal(err)
	}
	if d := svc.Check(usage.CategoryChatCompletion, 1_000_000); d.Outcome != policy.Allow {
		t.Errorf("expected zero thresholds to disable all checks, got %+v", d)
	}
}

func TestPolicyService_CheckDoesNotMutateLedger(t *testing.T) {
	svc, ledger, _ := testPolicy(t, policy.Thresholds{DailyUnits: 1000})

	for i := 0; i < 5; i++ {
		svc.Check(usage.CategoryChatCompletion, 100)
	}
	if got := ledger.Totals().TotalCalls; got != 0 {
		t.Errorf("expected checks to leave the ledger untouched, got %d calls", got)
	}
}
