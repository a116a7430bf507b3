package memory_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/artpar/bundlekeeper/adapters/memory"
	"github.com/artpar/bundlekeeper/domain/audit"
	"github.com/artpar/bundlekeeper/domain/bundle"
	"github.com/artpar/bundlekeeper/domain/usage"
	"github.com/artpar/bundlekeeper/ports"
)

var base = time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)

// StateStore tests

func TestStateStore_SeedAndLoad(t *testing.T) {
	store := memory.NewStateStore()
	ctx := context.Background()

	if _, err := store.LoadConfig(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Fatalf("LoadConfig before seed: err = %v, want ErrNotFound", err)
	}

	if err := store.Seed(ctx, bundle.Defaults(), bundle.State{RemainingMB: 5}); err != nil {
		t.Fatalf("Seed failed: %v", err)
	}
	if err := store.Seed(ctx, bundle.Config{}, bundle.State{RemainingMB: 99}); err != nil {
		t.Fatalf("second Seed failed: %v", err)
	}

	cfg, _ := store.LoadConfig(ctx)
	if cfg != bundle.Defaults() {
		t.Errorf("config overwritten by second seed: %+v", cfg)
	}
	st, _ := store.LoadState(ctx)
	if st.RemainingMB != 5 {
		t.Errorf("RemainingMB = %v, want 5", st.RemainingMB)
	}
}

func TestStateStore_FailSaves(t *testing.T) {
	store := memory.NewStateStore()
	ctx := context.Background()
	boom := errors.New("disk full")

	store.FailSaves(boom)
	if err := store.SaveState(ctx, bundle.State{RemainingMB: 1}); !errors.Is(err, boom) {
		t.Fatalf("SaveState err = %v, want %v", err, boom)
	}
	if _, err := store.LoadState(ctx); !errors.Is(err, ports.ErrNotFound) {
		t.Error("failed save must not store the state")
	}

	store.FailSaves(nil)
	if err := store.SaveState(ctx, bundle.State{RemainingMB: 1}); err != nil {
		t.Fatalf("SaveState failed: %v", err)
	}
	if store.Saves() != 1 {
		t.Errorf("Saves() = %d, want 1", store.Saves())
	}
}

// UsageStore tests

func TestUsageStore_RecordSinceRecent(t *testing.T) {
	store := memory.NewUsageStore()
	ctx := context.Background()

	for i, mb := range []float64{1, 2, 3} {
		e, err := store.Record(ctx, usage.NewEvent(base.Add(time.Duration(i)*time.Minute), mb))
		if err != nil {
			t.Fatalf("Record failed: %v", err)
		}
		if e.ID != int64(i+1) {
			t.Errorf("ID = %d, want %d", e.ID, i+1)
		}
	}

	since, _ := store.Since(ctx, base.Add(time.Minute))
	if len(since) != 2 || since[0].AmountMB != 3 || since[1].AmountMB != 2 {
		t.Errorf("Since = %+v", since)
	}

	recent, _ := store.Recent(ctx, 1)
	if len(recent) != 1 || recent[0].AmountMB != 3 {
		t.Errorf("Recent = %+v", recent)
	}

	n, _ := store.Prune(ctx, base.Add(90*time.Second))
	if n != 2 {
		t.Errorf("Prune removed %d, want 2", n)
	}
	all, _ := store.Recent(ctx, 10)
	if len(all) != 1 {
		t.Errorf("len after prune = %d, want 1", len(all))
	}
}

func TestUsageStore_Delete(t *testing.T) {
	store := memory.NewUsageStore()
	ctx := context.Background()

	first, _ := store.Record(ctx, usage.NewEvent(base, 1))
	second, _ := store.Record(ctx, usage.NewEvent(base, 2))

	if err := store.Delete(ctx, first.ID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, 99); err != nil {
		t.Errorf("Delete of missing id: %v", err)
	}
	all, _ := store.Recent(ctx, 10)
	if len(all) != 1 || all[0].ID != second.ID {
		t.Errorf("Recent after delete = %+v", all)
	}
}

// AuditStore tests

func TestAuditStore(t *testing.T) {
	store := memory.NewAuditStore()
	ctx := context.Background()

	_ = store.Append(ctx, audit.Entry{Timestamp: base, Level: audit.LevelInfo, Message: "a"})
	_ = store.Append(ctx, audit.Entry{Timestamp: base, Level: audit.LevelInfo, Message: "b"})
	_ = store.Append(ctx, audit.Entry{Timestamp: base.Add(-time.Hour), Level: audit.LevelError, Message: "old"})

	recent, _ := store.Recent(ctx, 2)
	if len(recent) != 2 || recent[0].Message != "b" || recent[1].Message != "a" {
		t.Errorf("Recent = %+v", recent)
	}

	if msgs := store.Messages("old"); len(msgs) != 1 {
		t.Errorf("Messages(old) = %v", msgs)
	}

	n, _ := store.Prune(ctx, base)
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
}

// IdempotencyStore tests

func TestIdempotencyStore(t *testing.T) {
	store := memory.NewIdempotencyStore()
	ctx := context.Background()

	inserted, _ := store.Register(ctx, "k1", "manual_add", base)
	if !inserted {
		t.Fatal("first Register should insert")
	}
	inserted, _ = store.Register(ctx, "k1", "manual_add", base)
	if inserted {
		t.Fatal("second Register should not insert")
	}
	if ok, _ := store.Exists(ctx, "k1"); !ok {
		t.Error("k1 should exist")
	}

	n, _ := store.Prune(ctx, base.Add(time.Second))
	if n != 1 {
		t.Errorf("Prune removed %d, want 1", n)
	}
	if ok, _ := store.Exists(ctx, "k1"); ok {
		t.Error("k1 should be pruned")
	}
}
