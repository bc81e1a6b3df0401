package core

import (
	"context"
	"testing"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

func TestRepairMovesReferenceOntoMedianBoundary(t *testing.T) {
	ctx := context.Background()
	d, bad := segmentedDataset(t, 5)

	res, err := NewRepairer().RepairDataset(ctx, d)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if res.Initial.OK {
		t.Fatalf("expected initial validation to fail")
	}
	if got := res.Initial.Counts[CheckReferenceBoundary]; got != 1 {
		t.Fatalf("expected 1 rp_boundary finding, got %d", got)
	}
	if !res.OK || !res.Final.OK {
		t.Fatalf("expected repaired dataset to validate, final report:\n%s", res.Final)
	}
	if res.Repaired != 1 || len(res.Changes) != 1 {
		t.Fatalf("expected one repaired nucleus, got %d (%d changes)", res.Repaired, len(res.Changes))
	}
	idx, err := bad.PrimaryNucleus().LandmarkIndex(profile.LandmarkReferencePoint)
	if err != nil || idx != 3 {
		t.Fatalf("expected RP moved to 3, got %d (%v)", idx, err)
	}

	change := res.Changes[0]
	if change.Entity != domain.EntityNucleus || change.EntityID != bad.PrimaryNucleus().ID().String() {
		t.Fatalf("unexpected change target %+v", change)
	}
	before, err := domain.DecodeChangePayload[domain.LandmarkPosition](change.Before)
	if err != nil {
		t.Fatalf("before payload: %v", err)
	}
	after, err := domain.DecodeChangePayload[domain.LandmarkPosition](change.After)
	if err != nil {
		t.Fatalf("after payload: %v", err)
	}
	if before.Index != 5 || after.Index != 3 {
		t.Fatalf("expected change 5 -> 3, got %d -> %d", before.Index, after.Index)
	}
}

func TestRepairIsIdempotent(t *testing.T) {
	ctx := context.Background()
	d, _ := segmentedDataset(t, 5)
	r := NewRepairer()
	if _, err := r.RepairDataset(ctx, d); err != nil {
		t.Fatalf("first repair: %v", err)
	}
	res, err := r.RepairDataset(ctx, d)
	if err != nil {
		t.Fatalf("second repair: %v", err)
	}
	if !res.OK || !res.Initial.OK || res.Repaired != 0 || len(res.Changes) != 0 {
		t.Fatalf("expected no-op second repair, got %+v", res)
	}
}

func TestRepairValidDatasetIsNoop(t *testing.T) {
	d, _ := segmentedDataset(t, 3)
	res, err := NewRepairer().RepairDataset(context.Background(), d)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !res.OK || res.Repaired != 0 {
		t.Fatalf("expected clean dataset untouched, got %+v", res)
	}
}

func TestRepairRestoresLockState(t *testing.T) {
	d, bad := segmentedDataset(t, 5, Locked())
	res, err := NewRepairer().RepairDataset(context.Background(), d)
	if err != nil {
		t.Fatalf("repair: %v", err)
	}
	if !res.OK {
		t.Fatalf("expected repaired dataset to validate:\n%s", res.Final)
	}
	n := bad.PrimaryNucleus()
	if !n.IsLocked() {
		t.Fatalf("expected nucleus to stay locked")
	}
	if idx, _ := n.LandmarkIndex(profile.LandmarkReferencePoint); idx != 3 {
		t.Fatalf("expected locked nucleus moved to 3, got %d", idx)
	}
}

func TestRepairSkipsNucleusWithoutMedianSegment(t *testing.T) {
	ctx := context.Background()
	d, bad := segmentedDataset(t, 5)
	n := bad.PrimaryNucleus()
	def, err := profile.NewDefaultSegment(100)
	if err != nil {
		t.Fatalf("default segment: %v", err)
	}
	if err := n.SetSegments([]*profile.Segment{def}); err != nil {
		t.Fatalf("set segments: %v", err)
	}

	res, err := NewRepairer().RepairDataset(ctx, d)
	if err != nil {
		t.Fatalf("repair returned error for unrepairable dataset: %v", err)
	}
	if res.OK {
		t.Fatalf("expected residual failure")
	}
	if res.Skipped[SkipMissingSegment] != 1 || res.Repaired != 0 {
		t.Fatalf("expected one skipped nucleus, got skipped=%v repaired=%d", res.Skipped, res.Repaired)
	}
	if !res.Final.HasErrorCell(bad.ID()) {
		t.Fatalf("expected cell %s still in error", bad.ID())
	}
	if idx, _ := n.LandmarkIndex(profile.LandmarkReferencePoint); idx != 5 {
		t.Fatalf("expected skipped nucleus untouched, got RP %d", idx)
	}
}

func TestRepairCancelledContext(t *testing.T) {
	d, _ := segmentedDataset(t, 5)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := NewRepairer().RepairDataset(ctx, d); err == nil {
		t.Fatalf("expected error for cancelled context")
	}
}
