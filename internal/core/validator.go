package core

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"nucleicore/pkg/domain"
)

// Report is the immutable outcome of one validation run.
type Report struct {
	OK bool
	// Summary holds one line per failing check followed by the overall verdict.
	Summary []string
	// Errors holds every finding message in the order found.
	Errors []string
	// ErrorCells holds the ids of cells with at least one blocking finding,
	// in ascending order.
	ErrorCells []uuid.UUID
	Counts     map[string]int
	Violations []domain.Violation
	// Total is the number of cells inspected.
	Total int
}

// ErrorCount returns the number of checks that failed.
func (r Report) ErrorCount() int {
	n := 0
	for _, c := range r.Counts {
		if c > 0 {
			n++
		}
	}
	return n
}

// HasErrorCell reports whether the cell had a blocking finding.
func (r Report) HasErrorCell(id uuid.UUID) bool {
	_, ok := slices.BinarySearchFunc(r.ErrorCells, id, compareIDs)
	return ok
}

func (r Report) String() string {
	var b strings.Builder
	b.WriteString("Validator:\nSummary:\n")
	for _, s := range r.Summary {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	b.WriteString("Errors:\n")
	for _, s := range r.Errors {
		b.WriteString(s)
		b.WriteByte('\n')
	}
	return b.String()
}

// Validator checks that landmarks, profiles and segmentation agree across a
// dataset tree. Each call runs an independent session; a Validator holds no
// state between calls.
type Validator struct {
	settings settings
}

// NewValidator constructs a validator.
func NewValidator(opts ...Option) *Validator {
	return &Validator{settings: newSettings(opts)}
}

func datasetEngine() *domain.RulesEngine[*validationView] {
	e := domain.NewRulesEngine[*validationView]()
	e.Register(referenceLandmarkRule{})
	e.Register(profilesRule{})
	e.Register(childProfilesRule{})
	e.Register(segmentIDsRule{})
	e.Register(childLandmarksRule{})
	e.Register(cellSegmentationRule{})
	e.Register(referenceBoundaryRule{})
	return e
}

func collectionEngine() *domain.RulesEngine[*validationView] {
	e := domain.NewRulesEngine[*validationView]()
	e.Register(referenceLandmarkRule{})
	e.Register(profilesRule{})
	e.Register(cellSegmentationRule{})
	e.Register(referenceBoundaryRule{})
	return e
}

// ValidateDataset runs every check against the dataset, its descendants and
// their consensus shapes.
func (v *Validator) ValidateDataset(ctx context.Context, d *Dataset) (Report, error) {
	view, err := newValidationView(d.Collection(), d)
	if err != nil {
		return Report{}, err
	}
	return v.run(ctx, "validate_dataset", "Dataset", datasetEngine(), view)
}

// ValidateCollection runs the member checks against a bare collection.
func (v *Validator) ValidateCollection(ctx context.Context, c Collection) (Report, error) {
	view, err := newValidationView(c, nil)
	if err != nil {
		return Report{}, err
	}
	return v.run(ctx, "validate_collection", "Collection", collectionEngine(), view)
}

// ValidateCell checks the primary nucleus of a cell in c for a reference
// landmark placed on a segment boundary.
func (v *Validator) ValidateCell(ctx context.Context, c Collection, cell *Cell) (Report, error) {
	view, err := newValidationView(c, nil)
	if err != nil {
		return Report{}, err
	}
	view.cells = []*Cell{cell}
	n := cell.PrimaryNucleus()
	res := domain.Result{}
	if !n.HasLandmark(view.reference) {
		res.Add(cellViolation(CheckReferenceLandmark, cell.id, "Nucleus %s does not have RP", n.id))
	} else if msg, ok := referenceOnBoundary(n, view); !ok {
		res.Add(cellViolation(CheckReferenceBoundary, cell.id, "%s", msg))
	}
	if err := ctx.Err(); err != nil {
		return Report{}, err
	}
	r := buildReport(res, nil, 1)
	r.Summary = []string{"Cell OK"}
	if !r.OK {
		r.Summary = []string{fmt.Sprintf("Cell %s failed validation", cell.id)}
	}
	return r, nil
}

func (v *Validator) run(ctx context.Context, op, kind string, engine *domain.RulesEngine[*validationView], view *validationView) (Report, error) {
	start := time.Now()
	res, err := engine.Evaluate(ctx, view)
	if err != nil {
		v.settings.metrics.Observe(ctx, op, false, time.Since(start))
		return Report{}, err
	}
	names := make([]string, 0, len(engine.Rules()))
	for _, rule := range engine.Rules() {
		names = append(names, rule.Name())
	}
	r := buildReport(res, names, len(view.cells))
	for _, name := range names {
		if n := r.Counts[name]; n > 0 {
			r.Summary = append(r.Summary, fmt.Sprintf(checkSummaries[name], n))
			v.settings.metrics.finding(name, n)
		}
	}
	if r.OK {
		r.Summary = append(r.Summary, kind+" OK")
	} else {
		r.Summary = append(r.Summary, fmt.Sprintf("%s failed validation: %d out of %d cells have errors",
			kind, len(r.ErrorCells), r.Total))
	}
	v.settings.metrics.Observe(ctx, op, r.OK, time.Since(start))
	v.settings.logger.Info("validation finished",
		slog.String("collection", view.collection.ID().String()),
		slog.Bool("ok", r.OK),
		slog.Int("findings", len(r.Errors)),
		slog.Int("error_cells", len(r.ErrorCells)),
		slog.Int("cells", r.Total))
	return r, nil
}

func buildReport(res domain.Result, checks []string, total int) Report {
	r := Report{
		Counts:     make(map[string]int, len(checks)),
		Violations: append([]domain.Violation(nil), res.Violations...),
		Total:      total,
	}
	for _, name := range checks {
		r.Counts[name] = 0
	}
	for _, viol := range res.Violations {
		r.Errors = append(r.Errors, viol.Message)
		if viol.Severity == domain.SeverityBlock {
			r.Counts[viol.Rule]++
		}
	}
	for _, id := range res.EntityIDs(domain.EntityCell) {
		if parsed, err := uuid.Parse(id); err == nil {
			r.ErrorCells = append(r.ErrorCells, parsed)
		}
	}
	slices.SortFunc(r.ErrorCells, compareIDs)
	r.OK = !res.HasBlocking()
	return r
}
