package conformance

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"
	"time"

	"github.com/Swind/go-asap/core"
)

// Result is the outcome of one scenario in one environment.
type Result struct {
	Scenario    string        `json:"scenario" yaml:"scenario"`
	Environment string        `json:"environment" yaml:"environment"`
	Passed      bool          `json:"passed" yaml:"passed"`
	Error       string        `json:"error,omitempty" yaml:"error,omitempty"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Report collects the results of a run.
type Report struct {
	Results []Result `json:"results" yaml:"results"`
}

// Failed returns the failing results.
func (r Report) Failed() []Result {
	var failed []Result
	for _, res := range r.Results {
		if !res.Passed {
			failed = append(failed, res)
		}
	}
	return failed
}

// Passed reports whether every result passed.
func (r Report) Passed() bool {
	return len(r.Failed()) == 0
}

// Runner runs scenarios across a matrix of environments.
type Runner struct {
	logger    core.Logger
	scenarios []Scenario
}

// NewRunner creates a runner for every known scenario.
func NewRunner(logger core.Logger) *Runner {
	if logger == nil {
		logger = core.NewNoOpLogger()
	}
	return &Runner{logger: logger, scenarios: Scenarios()}
}

// Select keeps only the scenarios whose name contains one of names.
// An empty list keeps everything.
func (r *Runner) Select(names ...string) *Runner {
	if len(names) == 0 {
		return r
	}
	var kept []Scenario
	for _, sc := range r.scenarios {
		for _, name := range names {
			if strings.Contains(sc.Name, name) {
				kept = append(kept, sc)
				break
			}
		}
	}
	return &Runner{logger: r.logger, scenarios: kept}
}

// ScenarioNames returns the names of the selected scenarios.
func (r *Runner) ScenarioNames() []string {
	names := make([]string, 0, len(r.scenarios))
	for _, sc := range r.scenarios {
		names = append(names, sc.Name)
	}
	return names
}

// Run executes every selected scenario in every environment of m. Each
// scenario gets a fresh loop. Run stops early when ctx is done.
func (r *Runner) Run(ctx context.Context, m Matrix) (Report, error) {
	if err := m.Validate(); err != nil {
		return Report{}, err
	}

	var report Report
	for _, env := range m.Environments {
		for _, sc := range r.scenarios {
			if err := ctx.Err(); err != nil {
				return report, err
			}

			res := r.runOne(sc, env)
			report.Results = append(report.Results, res)

			fields := []core.Field{
				core.F("scenario", res.Scenario),
				core.F("environment", res.Environment),
				core.F("duration", res.Duration.String()),
			}
			if res.Passed {
				r.logger.Debug("scenario passed", fields...)
			} else {
				r.logger.Error("scenario failed", append(fields, core.F("error", res.Error))...)
			}
		}
	}
	return report, nil
}

func (r *Runner) runOne(sc Scenario, env Environment) (res Result) {
	res = Result{Scenario: sc.Name, Environment: env.Name}
	h := newHarness(env)
	start := time.Now()

	defer func() {
		res.Duration = time.Since(start)
		h.loop.Stop()
		if rec := recover(); rec != nil {
			res.Passed = false
			res.Error = fmt.Sprintf("panic: %v\n%s", rec, debug.Stack())
		}
	}()

	if err := sc.Run(h); err != nil {
		res.Error = err.Error()
		return res
	}
	res.Passed = true
	return res
}
