// Package chaos runs fault-injection experiments against the booking core.
package chaos

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"gymbooking/internal/pkg/logger"
)

// Experiment describes one chaos experiment.
type Experiment struct {
	Name        string
	Hypothesis  string
	SteadyState []Probe
	Method      []Action
	Rollback    []Action
	Validation  []Assertion
}

// Probe measures one property of the system.
type Probe struct {
	Name      string
	Query     func(context.Context) (float64, error)
	Threshold Threshold
}

type Threshold struct {
	Operator string // >, <, >=, <=, ==
	Value    float64
}

func (t Threshold) holds(v float64) bool {
	switch t.Operator {
	case ">":
		return v > t.Value
	case "<":
		return v < t.Value
	case ">=":
		return v >= t.Value
	case "<=":
		return v <= t.Value
	case "==":
		return v == t.Value
	default:
		return false
	}
}

// Action is a fault injection, a workload or a recovery step.
type Action struct {
	Type    string
	Target  string
	Execute func(context.Context) error
}

// Assertion checks the final value of a probe.
type Assertion struct {
	Probe     string
	Condition func(float64) bool
	Message   string
}

type Violation struct {
	Probe     string    `json:"probe"`
	Expected  float64   `json:"expected"`
	Actual    float64   `json:"actual"`
	Timestamp time.Time `json:"timestamp"`
}

type ErrorEvent struct {
	Timestamp time.Time `json:"timestamp"`
	Error     string    `json:"error"`
	Component string    `json:"component"`
}

// Result captures one experiment run.
type Result struct {
	Experiment       string             `json:"experiment"`
	StartTime        time.Time          `json:"start_time"`
	EndTime          time.Time          `json:"end_time"`
	Duration         time.Duration      `json:"duration"`
	HypothesisHeld   bool               `json:"hypothesis_held"`
	SteadyStateValid bool               `json:"steady_state_valid"`
	Violations       []Violation        `json:"violations,omitempty"`
	Observations     map[string]float64 `json:"observations"`
	ErrorEvents      []ErrorEvent       `json:"error_events,omitempty"`
	Failed           []string           `json:"failed_assertions,omitempty"`
}

var ErrSteadyStateInvalid = errors.New("steady state invalid, aborting experiment")

// Engine runs experiments in order.
type Engine struct {
	tracer      trace.Tracer
	log         *logger.Logger
	mu          sync.Mutex
	experiments []Experiment
	results     []Result
}

func NewEngine(log *logger.Logger) *Engine {
	if log == nil {
		log = logger.NewNop()
	}
	return &Engine{
		tracer: otel.Tracer("gymbooking/chaos"),
		log:    log,
	}
}

func (e *Engine) Register(exp Experiment) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.experiments = append(e.experiments, exp)
}

func (e *Engine) Experiments() []Experiment {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Experiment, len(e.experiments))
	copy(out, e.experiments)
	return out
}

func (e *Engine) Results() []Result {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Result, len(e.results))
	copy(out, e.results)
	return out
}

// Run checks the steady state, injects the method, samples every probe,
// rolls back and evaluates the assertions. Rollback actions run even when the
// method fails.
func (e *Engine) Run(ctx context.Context, exp Experiment) (*Result, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.run_experiment",
		trace.WithAttributes(attribute.String("experiment.name", exp.Name)),
	)
	defer span.End()

	result := &Result{
		Experiment:   exp.Name,
		StartTime:    time.Now(),
		Observations: make(map[string]float64),
	}

	span.AddEvent("validating_steady_state")
	if violations := e.sample(ctx, exp.SteadyState, nil); len(violations) > 0 {
		result.Violations = violations
		return result, ErrSteadyStateInvalid
	}
	result.SteadyStateValid = true

	span.AddEvent("injecting_chaos")
	for _, action := range exp.Method {
		if err := action.Execute(ctx); err != nil {
			result.ErrorEvents = append(result.ErrorEvents, ErrorEvent{
				Timestamp: time.Now(),
				Error:     err.Error(),
				Component: action.Target,
			})
			span.RecordError(err)
		}
	}

	span.AddEvent("observing_system")
	result.Violations = append(result.Violations, e.sample(ctx, exp.SteadyState, result)...)

	span.AddEvent("rolling_back")
	for _, action := range exp.Rollback {
		if err := action.Execute(ctx); err != nil {
			span.RecordError(err)
			e.log.Warn("chaos rollback failed", "experiment", exp.Name, "target", action.Target, "error", err)
		}
	}

	span.AddEvent("validating_assertions")
	result.HypothesisHeld = len(result.ErrorEvents) == 0
	for _, a := range exp.Validation {
		v, ok := result.Observations[a.Probe]
		if !ok || !a.Condition(v) {
			result.HypothesisHeld = false
			result.Failed = append(result.Failed, a.Message)
		}
	}
	result.EndTime = time.Now()
	result.Duration = result.EndTime.Sub(result.StartTime)

	e.mu.Lock()
	e.results = append(e.results, *result)
	e.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("hypothesis_held", result.HypothesisHeld),
		attribute.Int("violations", len(result.Violations)),
	)
	return result, nil
}

// sample queries every probe, records the values in into when given, and
// returns the threshold violations.
func (e *Engine) sample(ctx context.Context, probes []Probe, into *Result) []Violation {
	var violations []Violation
	for _, p := range probes {
		v, err := p.Query(ctx)
		if err != nil {
			if into != nil {
				into.ErrorEvents = append(into.ErrorEvents, ErrorEvent{Timestamp: time.Now(), Error: err.Error(), Component: p.Name})
			}
			violations = append(violations, Violation{Probe: p.Name, Expected: p.Threshold.Value, Actual: -1, Timestamp: time.Now()})
			continue
		}
		if into != nil {
			into.Observations[p.Name] = v
		}
		if !p.Threshold.holds(v) {
			violations = append(violations, Violation{Probe: p.Name, Expected: p.Threshold.Value, Actual: v, Timestamp: time.Now()})
		}
	}
	return violations
}

// GameDay runs every registered experiment, pausing between them. It
// reports whether every hypothesis held.
func (e *Engine) GameDay(ctx context.Context, name string, pause time.Duration) (bool, error) {
	ctx, span := e.tracer.Start(ctx, "chaos.game_day",
		trace.WithAttributes(attribute.String("gameday.name", name)),
	)
	defer span.End()

	e.log.Info("starting game day", "name", name, "experiments", len(e.Experiments()))
	allHeld := true
	for i, exp := range e.Experiments() {
		if i > 0 && pause > 0 {
			select {
			case <-time.After(pause):
			case <-ctx.Done():
				return false, ctx.Err()
			}
		}
		e.log.Info("running experiment", "n", i+1, "name", exp.Name, "hypothesis", exp.Hypothesis)

		result, err := e.Run(ctx, exp)
		if err != nil {
			allHeld = false
			e.log.Error("experiment aborted", "name", exp.Name, "error", err)
			continue
		}
		e.report(result)
		allHeld = allHeld && result.HypothesisHeld
	}
	return allHeld, nil
}

func (e *Engine) report(r *Result) {
	if r.HypothesisHeld {
		e.log.Info("hypothesis held", "experiment", r.Experiment, "observations", r.Observations, "duration", r.Duration)
		return
	}
	e.log.Warn("hypothesis violated",
		"experiment", r.Experiment,
		"observations", r.Observations,
		"violations", len(r.Violations),
		"failed", r.Failed,
		"errors", len(r.ErrorEvents),
	)
}
