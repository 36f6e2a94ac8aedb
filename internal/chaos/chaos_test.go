package chaos

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gymbooking/internal/uow"
	"gymbooking/internal/uow/memstore"
)

func TestThreshold(t *testing.T) {
	tests := []struct {
		op   string
		v    float64
		want bool
	}{
		{">", 2, true}, {">", 1, false},
		{"<", 0, true}, {"<=", 1, true},
		{">=", 1, true}, {"==", 1, true},
		{"!=", 1, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Threshold{Operator: tt.op, Value: 1}.holds(tt.v), "%v %s 1", tt.v, tt.op)
	}
}

func TestEngineRun(t *testing.T) {
	e := NewEngine(nil)
	value := 0.0
	rolledBack := false

	exp := Experiment{
		Name:        "synthetic",
		SteadyState: []Probe{{Name: "errors", Query: func(context.Context) (float64, error) { return value, nil }, Threshold: Threshold{Operator: "<=", Value: 1}}},
		Method:      []Action{{Type: "break", Target: "thing", Execute: func(context.Context) error { value = 5; return nil }}},
		Rollback:    []Action{{Type: "fix", Target: "thing", Execute: func(context.Context) error { rolledBack = true; return nil }}},
		Validation:  []Assertion{{Probe: "errors", Condition: func(v float64) bool { return v <= 1 }, Message: "errors must stay low"}},
	}

	res, err := e.Run(context.Background(), exp)
	require.NoError(t, err)
	assert.True(t, res.SteadyStateValid)
	assert.False(t, res.HypothesisHeld)
	assert.Equal(t, []string{"errors must stay low"}, res.Failed)
	assert.Equal(t, 5.0, res.Observations["errors"])
	require.Len(t, res.Violations, 1)
	assert.True(t, rolledBack)
	assert.Len(t, e.Results(), 1)
}

func TestEngineAbortsOnBadSteadyState(t *testing.T) {
	e := NewEngine(nil)
	ran := false
	exp := Experiment{
		Name:        "already broken",
		SteadyState: []Probe{{Name: "probe", Query: func(context.Context) (float64, error) { return 0, errors.New("down") }, Threshold: Threshold{Operator: "==", Value: 0}}},
		Method:      []Action{{Execute: func(context.Context) error { ran = true; return nil }}},
	}

	_, err := e.Run(context.Background(), exp)
	assert.ErrorIs(t, err, ErrSteadyStateInvalid)
	assert.False(t, ran)

	e.Register(exp)
	held, err := e.GameDay(context.Background(), "test", 0)
	require.NoError(t, err)
	assert.False(t, held)
}

func TestMethodErrorsBreakHypothesis(t *testing.T) {
	e := NewEngine(nil)
	res, err := e.Run(context.Background(), Experiment{
		Name:   "failing method",
		Method: []Action{{Target: "svc", Execute: func(context.Context) error { return errors.New("boom") }}},
	})
	require.NoError(t, err)
	assert.False(t, res.HypothesisHeld)
	require.Len(t, res.ErrorEvents, 1)
	assert.Equal(t, "svc", res.ErrorEvents[0].Component)
}

func TestFaultyStore(t *testing.T) {
	ctx := context.Background()
	f := NewFaultyStore(memstore.New())

	commit := func(ctx context.Context) error {
		tx, err := f.Begin(ctx)
		require.NoError(t, err)
		return tx.Commit(ctx, nil)
	}

	f.FailNext(2)
	assert.ErrorIs(t, commit(ctx), ErrInjectedFault)
	assert.ErrorIs(t, commit(ctx), ErrInjectedFault)
	assert.NoError(t, commit(ctx))
	assert.Equal(t, 2, f.Injected())

	f.SetFailureRate(7)
	assert.ErrorIs(t, commit(ctx), ErrInjectedFault, "rate is clamped to 1")
	f.SetFailureRate(-1)
	assert.NoError(t, commit(ctx))

	f.SetLatency(time.Hour)
	short, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, commit(short), context.DeadlineExceeded)

	f.Reset()
	assert.NoError(t, commit(ctx))

	var _ uow.Store = f
}

func TestBookingExperimentsHold(t *testing.T) {
	if testing.Short() {
		t.Skip("chaos experiments are slow")
	}
	lab := NewLab(nil)
	e := NewEngine(nil)
	lab.RegisterExperiments(e)
	require.Len(t, e.Experiments(), 4)

	held, err := e.GameDay(context.Background(), "test game day", 0)
	require.NoError(t, err)
	for _, r := range e.Results() {
		assert.True(t, r.HypothesisHeld, "%s: failed=%v errors=%v observations=%v", r.Experiment, r.Failed, r.ErrorEvents, r.Observations)
	}
	assert.True(t, held)
	assert.Positive(t, lab.Faults.Injected())
}

// Experiments share one Lab, so confirmations from an earlier run must not
// leak into the steady state of the next one.
func TestExperimentsRunBackToBack(t *testing.T) {
	lab := NewLab(nil)
	e := NewEngine(nil)
	ctx := context.Background()

	race, err := e.Run(ctx, lab.BookingRaceExperiment(6, 2))
	require.NoError(t, err)
	assert.True(t, race.HypothesisHeld, "failed=%v errors=%v", race.Failed, race.ErrorEvents)
	assert.Zero(t, race.Observations["notification_gap"])

	failing, err := e.Run(ctx, lab.CommitFailureExperiment(3))
	require.NoError(t, err, "steady state must hold after an earlier experiment")
	assert.True(t, failing.SteadyStateValid)
	assert.True(t, failing.HypothesisHeld, "failed=%v errors=%v", failing.Failed, failing.ErrorEvents)
	assert.Positive(t, lab.Faults.Injected())
}
