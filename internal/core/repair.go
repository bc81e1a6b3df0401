package core

import (
	"context"
	"log/slog"
	"time"

	"nucleicore/pkg/domain"
	"nucleicore/pkg/profile"
)

// SkipCause says why repair left a nucleus untouched.
type SkipCause string

const (
	SkipMissingLandmark SkipCause = "missing_landmark"
	SkipMissingProfile  SkipCause = "missing_profile"
	SkipMissingSegment  SkipCause = "missing_segment"
)

// RepairResult describes one repair pass. OK reports whether the dataset
// validated after the pass.
type RepairResult struct {
	OK       bool
	Repaired int
	Skipped  map[SkipCause]int
	Changes  []domain.Change
	Initial  Report
	Final    Report
}

// Repairer moves misplaced reference landmarks back onto the segment boundary
// the population median places at index 0.
type Repairer struct {
	validator *Validator
	settings  settings
}

// NewRepairer constructs a repairer.
func NewRepairer(opts ...Option) *Repairer {
	s := newSettings(opts)
	return &Repairer{validator: &Validator{settings: s}, settings: s}
}

// RepairDataset validates d and, when it fails, relocates the reference
// landmark of every nucleus in an error cell. Member segmentation is never
// changed. Residual failure is reported through the result, not as an error.
func (r *Repairer) RepairDataset(ctx context.Context, d *Dataset) (RepairResult, error) {
	start := time.Now()
	initial, err := r.validator.ValidateDataset(ctx, d)
	if err != nil {
		return RepairResult{}, err
	}
	result := RepairResult{Skipped: make(map[SkipCause]int), Initial: initial, Final: initial}
	if initial.OK {
		result.OK = true
		return result, nil
	}
	logger := r.settings.logger.With(slog.String("dataset", d.ID().String()))

	rs := d.Collection().RuleSet()
	ref, err := rs.ReferenceLandmark()
	if err != nil {
		return RepairResult{}, err
	}
	segType := segmentationType(rs)
	median, err := d.Collection().ProfileCollection().SegmentedProfile(segType, ref, profile.Median)
	if err != nil {
		logger.Warn("could not repair dataset: median profile unavailable", slog.Any("error", err))
		r.settings.metrics.Observe(ctx, "repair_dataset", false, time.Since(start))
		return result, nil
	}
	target, err := median.SegmentContaining(0)
	if err != nil {
		logger.Warn("could not repair dataset: no median segment at index 0", slog.Any("error", err))
		r.settings.metrics.Observe(ctx, "repair_dataset", false, time.Since(start))
		return result, nil
	}

	for _, id := range initial.ErrorCells {
		if err := ctx.Err(); err != nil {
			return RepairResult{}, err
		}
		cell, err := d.Collection().Cell(id)
		if err != nil {
			continue
		}
		for _, n := range cell.nuclei {
			change, cause, moved := r.repairNucleus(n, ref, segType, target, logger)
			switch {
			case cause != "":
				result.Skipped[cause]++
				r.settings.metrics.skippedNucleus(cause)
			case moved:
				result.Repaired++
				result.Changes = append(result.Changes, change)
				r.settings.metrics.repairedNucleus()
			}
		}
	}

	root, err := d.Root()
	if err != nil {
		root = d
	}
	for _, x := range root.family() {
		x.Collection().ProfileCollection().InvalidateProfiles()
		x.Collection().InvalidateStatistics()
	}

	final, err := r.validator.ValidateDataset(ctx, d)
	if err != nil {
		return RepairResult{}, err
	}
	result.Final = final
	result.OK = final.OK
	r.settings.metrics.Observe(ctx, "repair_dataset", final.OK, time.Since(start))
	if final.OK {
		logger.Info("repaired dataset", slog.Int("repaired", result.Repaired))
	} else {
		logger.Warn("could not repair dataset",
			slog.Int("repaired", result.Repaired),
			slog.Int("error_cells", len(final.ErrorCells)))
	}
	return result, nil
}

func (r *Repairer) repairNucleus(n *Nucleus, ref profile.Landmark, segType profile.Type, target *profile.Segment, logger *slog.Logger) (domain.Change, SkipCause, bool) {
	nlog := logger.With(slog.String("nucleus", n.id.String()))
	before, err := n.LandmarkIndex(ref)
	if err != nil {
		nlog.Info("skipping nucleus without reference landmark", slog.String("landmark", string(ref)))
		return domain.Change{}, SkipMissingLandmark, false
	}
	if !n.HasProfile(segType) {
		nlog.Info("skipping nucleus without profile", slog.String("type", string(segType)))
		return domain.Change{}, SkipMissingProfile, false
	}
	seg, err := n.Segment(target.ID())
	if err != nil {
		nlog.Info("skipping nucleus without median segment", slog.String("segment", target.ID().String()))
		return domain.Change{}, SkipMissingSegment, false
	}
	after := seg.Start()
	if after == before {
		return domain.Change{}, "", false
	}
	locked := n.IsLocked()
	n.SetLocked(false)
	err = n.SetLandmark(ref, after)
	n.SetLocked(locked)
	if err != nil {
		nlog.Warn("could not move reference landmark", slog.Any("error", err))
		return domain.Change{}, "", false
	}
	nlog.Debug("moved reference landmark", slog.Int("from", before), slog.Int("to", after))
	change := domain.Change{Entity: domain.EntityNucleus, EntityID: n.id.String(), Action: domain.ActionUpdate}
	change.Before, _ = domain.EncodeChangePayload(domain.LandmarkPosition{Landmark: string(ref), Index: before, Locked: locked})
	change.After, _ = domain.EncodeChangePayload(domain.LandmarkPosition{Landmark: string(ref), Index: after, Locked: locked})
	return change, "", true
}
