package core

import (
	"context"
	"fmt"

	"pbxcore/pkg/domain"
)

// LivenessTransitionRule blocks illegal liveness transitions. Retirement is
// terminal: a retired record never becomes active again, and no mutation
// other than a retire may flip the liveness flag.
func LivenessTransitionRule() domain.Rule {
	return livenessTransitionRule{}
}

type livenessTransitionRule struct{}

func (livenessTransitionRule) Name() string { return "liveness_transition" }

func (livenessTransitionRule) Evaluate(_ context.Context, _ domain.RuleView, changes []domain.Change) (domain.Result, error) {
	res := domain.Result{}
	for _, change := range changes {
		after, ok := baseOf(change.After)
		if !ok {
			continue
		}
		if after.Liveness != LivenessActive && after.Liveness != LivenessRetired {
			res.Violations = append(res.Violations, domain.Violation{
				Rule:     "liveness_transition",
				Severity: SeverityBlock,
				Message:  fmt.Sprintf("%s %s is set to unknown liveness %q", change.Family, after.ID, after.Liveness),
				Family:   change.Family,
				EntityID: after.ID,
			})
			continue
		}

		switch change.Action {
		case ActionCreate:
			if after.Liveness != LivenessActive {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "liveness_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("%s %s must be created active", change.Family, after.ID),
					Family:   change.Family,
					EntityID: after.ID,
				})
			}
		case ActionUpdate:
			before, ok := baseOf(change.Before)
			if !ok {
				continue
			}
			if before.Liveness != after.Liveness {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "liveness_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("update may not change liveness of %s %s", change.Family, after.ID),
					Family:   change.Family,
					EntityID: after.ID,
				})
			}
		case ActionRetire:
			before, ok := baseOf(change.Before)
			if !ok {
				continue
			}
			if before.Liveness != LivenessActive || after.Liveness != LivenessRetired {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "liveness_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("cannot retire %s %s from state %s", change.Family, after.ID, before.Liveness),
					Family:   change.Family,
					EntityID: after.ID,
				})
			}
			if after.RetiredAt == nil {
				res.Violations = append(res.Violations, domain.Violation{
					Rule:     "liveness_transition",
					Severity: SeverityBlock,
					Message:  fmt.Sprintf("retired %s %s is missing a retirement timestamp", change.Family, after.ID),
					Family:   change.Family,
					EntityID: after.ID,
				})
			}
		}
	}
	return res, nil
}
