// Package checks holds the named test steps a scan runs against a target
// page and the plans that order them.
package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/raysh454/webaudit/internal/model"
	"github.com/raysh454/webaudit/internal/webclient"
)

// Check is one named test step. Run returns nil when the step passes and
// an error describing the failure otherwise.
type Check struct {
	Name string
	Run  func(ctx context.Context, s *Session) error
}

// Result runs the check and converts its outcome to a step result.
func (c Check) Result(ctx context.Context, s *Session) model.TestStepResult {
	if err := c.Run(ctx, s); err != nil {
		return model.TestStepResult{Name: c.Name, Status: model.StatusFailed, Error: err.Error()}
	}
	return model.TestStepResult{Name: c.Name, Status: model.StatusPassed}
}

// Plan is an ordered list of checks.
type Plan struct {
	Name   string
	Checks []Check
}

const (
	PlanFunctional = "functional"
	PlanSecurity   = "security"
	PlanFull       = "full"
)

var plans = map[string]func() Plan{
	PlanFunctional: Functional,
	PlanSecurity:   Security,
	PlanFull:       Full,
}

// ByName looks up a plan. An empty name selects the functional plan.
func ByName(name string) (Plan, error) {
	name = strings.ToLower(strings.TrimSpace(name))
	if name == "" {
		name = PlanFunctional
	}
	ctor, ok := plans[name]
	if !ok {
		return Plan{}, fmt.Errorf("unknown plan %q: available plans=%v", name, Names())
	}
	return ctor(), nil
}

// Names returns the sorted plan names.
func Names() []string {
	out := make([]string, 0, len(plans))
	for k := range plans {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Len is the number of steps the plan produces.
func (p Plan) Len() int { return len(p.Checks) }

// Run executes every check in order against target, calling onStep after
// each one. A failing check never stops the plan; only ctx does.
func (p Plan) Run(ctx context.Context, client webclient.WebClient, target string, onStep func(model.TestStepResult)) ([]model.TestStepResult, error) {
	s := NewSession(target, client)
	results := make([]model.TestStepResult, 0, len(p.Checks))
	for _, c := range p.Checks {
		if err := ctx.Err(); err != nil {
			return results, err
		}
		r := c.Result(ctx, s)
		results = append(results, r)
		if onStep != nil {
			onStep(r)
		}
	}
	return results, nil
}

// Full is the functional plan followed by the security plan.
func Full() Plan {
	f, s := Functional(), Security()
	return Plan{
		Name:   PlanFull,
		Checks: append(f.Checks, s.Checks...),
	}
}
