package core

import (
	"context"
	"fmt"

	"pbxcore/pkg/domain"
)

// StepSequenceRule enforces the ordering invariants on dialplan steps: every
// sequence is positive and no two live steps of the same master share one.
// The store rejects these inline as well; the rule is the commit-time
// backstop covering multi-step transactions.
func StepSequenceRule() domain.Rule {
	return stepSequenceRule{}
}

type stepSequenceRule struct{}

func (stepSequenceRule) Name() string { return "step_sequence" }

func (stepSequenceRule) Evaluate(_ context.Context, view domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}

	touched := false
	for _, change := range changes {
		if change.Family != FamilyDialplanStep {
			continue
		}
		touched = true
		step, ok := change.After.(DialplanStep)
		if !ok {
			continue
		}
		if step.Live() && step.Sequence <= 0 {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "step_sequence",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("step %s has non-positive sequence %d", step.ID, step.Sequence),
				Family:   FamilyDialplanStep,
				EntityID: step.ID,
			})
		}
	}
	if !touched {
		return res, nil
	}

	type slot struct {
		master   string
		sequence int
	}
	seen := make(map[slot]string)
	for _, step := range view.ListDialplanSteps() {
		key := slot{master: step.DialplanID, sequence: step.Sequence}
		if firstID, dup := seen[key]; dup {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "step_sequence",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("steps %s and %s of dialplan %s share sequence %d", firstID, step.ID, step.DialplanID, step.Sequence),
				Family:   FamilyDialplanStep,
				EntityID: step.ID,
			})
			continue
		}
		seen[key] = step.ID
	}
	return res, nil
}
