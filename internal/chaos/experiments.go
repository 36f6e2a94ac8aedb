package chaos

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"gymbooking/internal/booking"
	"gymbooking/internal/domain"
	"gymbooking/internal/notify"
	"gymbooking/internal/pkg/logger"
	"gymbooking/internal/uow"
	"gymbooking/internal/uow/memstore"
)

// Lab is an in-memory booking core with a fault-injecting store in front of
// it. Experiments seed their own members and class so they can run in any
// order against one Lab.
type Lab struct {
	Store   *memstore.Store
	Faults  *FaultyStore
	Runner  *uow.Runner
	Booking booking.Service

	notified *notifyCounter
	now      func() time.Time
}

func NewLab(log *logger.Logger) *Lab {
	store := memstore.New()
	faults := NewFaultyStore(store)
	runner := uow.NewRunner(uow.NewManager(faults), log, uow.WithMaxAttempts(10))
	counter := &notifyCounter{}
	now := time.Now
	return &Lab{
		Store:    store,
		Faults:   faults,
		Runner:   runner,
		Booking:  booking.NewService(runner, counter, log, booking.WithClock(now)),
		notified: counter,
		now:      now,
	}
}

// RegisterExperiments registers the booking experiments with e.
func (l *Lab) RegisterExperiments(e *Engine) {
	e.Register(l.BookingRaceExperiment(40, 10))
	e.Register(l.CommitFailureExperiment(5))
	e.Register(l.CommitLatencyExperiment(20, 5, 5*time.Millisecond))
	e.Register(l.FlakyCommitExperiment(30, 10, 0.3))
}

// scenario is the class and members one experiment works on.
type scenario struct {
	classID uuid.UUID
	members []uuid.UUID
}

func (l *Lab) seed(ctx context.Context, members, capacity int) (*scenario, error) {
	sc := &scenario{classID: uuid.New()}
	err := l.Runner.Run(ctx, "chaos.seed", func(ctx context.Context, u uow.UnitOfWork) error {
		sc.members = sc.members[:0]
		now := l.now()
		slot, err := domain.NewTimeSlot(time.Saturday, 9*time.Hour, 10*time.Hour)
		if err != nil {
			return err
		}
		size, err := domain.NewClassCapacity(capacity)
		if err != nil {
			return err
		}
		class, err := domain.NewFitnessClass(sc.classID, "Chaos Spin", size, slot, uuid.New())
		if err != nil {
			return err
		}
		if err := u.Classes().Add(class); err != nil {
			return err
		}
		for i := 0; i < members; i++ {
			id := uuid.New()
			email, err := domain.NewEmailAddress(fmt.Sprintf("chaos-%s@example.com", id))
			if err != nil {
				return err
			}
			m, err := domain.NewMember(id, fmt.Sprintf("Chaos Member %d", i), email, domain.TierBasic, now)
			if err != nil {
				return err
			}
			if err := u.Members().Add(m); err != nil {
				return err
			}
			sc.members = append(sc.members, id)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to seed scenario: %w", err)
	}
	return sc, nil
}

// stampede books every member onto the class at once. Losing the race is
// expected; only errors outside the booking rules are returned.
func (l *Lab) stampede(ctx context.Context, sc *scenario) error {
	var unexpected atomic.Int64
	g, gctx := errgroup.WithContext(ctx)
	for _, memberID := range sc.members {
		g.Go(func() error {
			_, err := l.Booking.BookClass(gctx, memberID, sc.classID)
			switch {
			case err == nil, errors.Is(err, ErrInjectedFault):
			case domain.IsCode(err, domain.CodeClassFull), domain.IsCode(err, domain.CodeConflict):
			default:
				unexpected.Add(1)
			}
			return nil
		})
	}
	_ = g.Wait()
	if n := unexpected.Load(); n > 0 {
		return fmt.Errorf("%d bookings failed outside the booking rules", n)
	}
	return nil
}

// overbooked is 1 when the class holds more members than its capacity.
func (l *Lab) overbooked(sc **scenario) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) {
		if *sc == nil {
			return 0, nil
		}
		st, ok := l.Store.Class((*sc).classID)
		if !ok {
			return 0, fmt.Errorf("class %s missing", (*sc).classID)
		}
		if len(st.BookedMembers) > st.Capacity {
			return 1, nil
		}
		return 0, nil
	}
}

// creditLeak is the distance between credits spent and confirmed seats.
func (l *Lab) creditLeak(sc **scenario) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) {
		if *sc == nil {
			return 0, nil
		}
		spent := 0
		for _, id := range (*sc).members {
			st, ok := l.Store.Member(id)
			if !ok {
				return 0, fmt.Errorf("member %s missing", id)
			}
			if st.Credits < 0 {
				return math.Inf(1), nil
			}
			spent += st.TierCredits - st.Credits
		}
		class, _ := l.Store.Class((*sc).classID)
		return math.Abs(float64(spent - len(class.BookedMembers))), nil
	}
}

// seats is the number of confirmed seats on the class.
func (l *Lab) seats(sc **scenario) func(context.Context) (float64, error) {
	return func(context.Context) (float64, error) {
		if *sc == nil {
			return 0, nil
		}
		class, _ := l.Store.Class((*sc).classID)
		return float64(len(class.BookedMembers)), nil
	}
}

// notificationGap compares confirmations sent during the experiment with
// seats actually committed.
func (l *Lab) notificationGap(sc **scenario, before *int64) func(context.Context) (float64, error) {
	return func(ctx context.Context) (float64, error) {
		if *sc == nil {
			return 0, nil
		}
		seats, err := l.seats(sc)(ctx)
		if err != nil {
			return 0, err
		}
		sent := float64(l.notified.confirmed.Load() - *before)
		return math.Abs(sent - seats), nil
	}
}

func (l *Lab) invariantProbes(sc **scenario, before *int64) []Probe {
	return []Probe{
		{Name: "overbooked_classes", Query: l.overbooked(sc), Threshold: Threshold{Operator: "==", Value: 0}},
		{Name: "credit_leak", Query: l.creditLeak(sc), Threshold: Threshold{Operator: "==", Value: 0}},
		{Name: "notification_gap", Query: l.notificationGap(sc, before), Threshold: Threshold{Operator: "==", Value: 0}},
	}
}

// seedStep creates a fresh class and members for one run.
func (l *Lab) seedStep(members, capacity int, sc **scenario, before *int64) Action {
	return Action{
		Type:   "seed",
		Target: "memstore",
		Execute: func(ctx context.Context) error {
			*before = l.notified.confirmed.Load()
			s, err := l.seed(ctx, members, capacity)
			if err != nil {
				return err
			}
			*sc = s
			return nil
		},
	}
}

func (l *Lab) stampedeStep(sc **scenario) Action {
	return Action{
		Type:   "concurrent-requests",
		Target: "booking-service",
		Execute: func(ctx context.Context) error {
			if *sc == nil {
				return errors.New("scenario not seeded")
			}
			return l.stampede(ctx, *sc)
		},
	}
}

// BookingRaceExperiment books more members than seats at the same moment.
func (l *Lab) BookingRaceExperiment(members, capacity int) Experiment {
	var (
		sc     *scenario
		before int64
	)
	return Experiment{
		Name:        "concurrent-booking-race",
		Hypothesis:  "Concurrent bookings never exceed capacity and every seat costs exactly one credit",
		SteadyState: l.invariantProbes(&sc, &before),
		Method:      []Action{l.seedStep(members, capacity, &sc, &before), l.stampedeStep(&sc)},
		Validation: []Assertion{
			{Probe: "overbooked_classes", Condition: func(v float64) bool { return v == 0 }, Message: "class capacity must never be exceeded"},
			{Probe: "credit_leak", Condition: func(v float64) bool { return v == 0 }, Message: "credits spent must equal seats taken"},
			{Probe: "notification_gap", Condition: func(v float64) bool { return v == 0 }, Message: "one confirmation per committed seat"},
		},
	}
}

// CommitFailureExperiment fails every commit while members book.
func (l *Lab) CommitFailureExperiment(members int) Experiment {
	var (
		sc     *scenario
		before int64
	)
	seats := l.seats(&sc)
	return Experiment{
		Name:        "commit-failure",
		Hypothesis:  "A failed commit leaves no booking, spends no credit and sends no notification",
		SteadyState: l.invariantProbes(&sc, &before),
		Method: []Action{
			l.seedStep(members, members, &sc, &before),
			{
				Type:   "inject-failure",
				Target: "memstore",
				Execute: func(context.Context) error {
					l.Faults.SetFailureRate(1)
					return nil
				},
			},
			l.stampedeStep(&sc),
		},
		Rollback: []Action{
			{Type: "remove-failure", Target: "memstore", Execute: func(context.Context) error { l.Faults.Reset(); return nil }},
		},
		Validation: []Assertion{
			{Probe: "credit_leak", Condition: func(v float64) bool { return v == 0 }, Message: "no credit may be spent by a failed commit"},
			{Probe: "notification_gap", Condition: func(v float64) bool {
				n, _ := seats(context.Background())
				return v == 0 && n == 0
			}, Message: "no booking or confirmation may survive a failed commit"},
		},
	}
}

// CommitLatencyExperiment slows every commit to widen the race window.
func (l *Lab) CommitLatencyExperiment(members, capacity int, latency time.Duration) Experiment {
	var (
		sc     *scenario
		before int64
	)
	return Experiment{
		Name:        "commit-latency",
		Hypothesis:  "Slow commits widen the race window without breaking capacity or credit accounting",
		SteadyState: l.invariantProbes(&sc, &before),
		Method: []Action{
			l.seedStep(members, capacity, &sc, &before),
			{Type: "inject-latency", Target: "memstore", Execute: func(context.Context) error { l.Faults.SetLatency(latency); return nil }},
			l.stampedeStep(&sc),
		},
		Rollback: []Action{
			{Type: "remove-latency", Target: "memstore", Execute: func(context.Context) error { l.Faults.Reset(); return nil }},
		},
		Validation: []Assertion{
			{Probe: "overbooked_classes", Condition: func(v float64) bool { return v == 0 }, Message: "class capacity must never be exceeded"},
			{Probe: "credit_leak", Condition: func(v float64) bool { return v == 0 }, Message: "credits spent must equal seats taken"},
		},
	}
}

// FlakyCommitExperiment fails a share of commits at random during a race.
func (l *Lab) FlakyCommitExperiment(members, capacity int, rate float64) Experiment {
	var (
		sc     *scenario
		before int64
	)
	return Experiment{
		Name:        "flaky-commits",
		Hypothesis:  "Randomly failing commits never leave partial bookings or phantom notifications",
		SteadyState: l.invariantProbes(&sc, &before),
		Method: []Action{
			l.seedStep(members, capacity, &sc, &before),
			{Type: "inject-failure", Target: "memstore", Execute: func(context.Context) error { l.Faults.SetFailureRate(rate); return nil }},
			l.stampedeStep(&sc),
		},
		Rollback: []Action{
			{Type: "remove-failure", Target: "memstore", Execute: func(context.Context) error { l.Faults.Reset(); return nil }},
		},
		Validation: []Assertion{
			{Probe: "overbooked_classes", Condition: func(v float64) bool { return v == 0 }, Message: "class capacity must never be exceeded"},
			{Probe: "credit_leak", Condition: func(v float64) bool { return v == 0 }, Message: "credits spent must equal seats taken"},
			{Probe: "notification_gap", Condition: func(v float64) bool { return v == 0 }, Message: "one confirmation per committed seat"},
		},
	}
}

// notifyCounter counts deliveries per event.
type notifyCounter struct {
	confirmed atomic.Int64
	cancelled atomic.Int64
	waitlist  atomic.Int64
}

func (c *notifyCounter) BookingConfirmed(context.Context, notify.Notice)      { c.confirmed.Add(1) }
func (c *notifyCounter) CancellationConfirmed(context.Context, notify.Notice) { c.cancelled.Add(1) }
func (c *notifyCounter) AddedToWaitlist(context.Context, notify.Notice)       { c.waitlist.Add(1) }
func (c *notifyCounter) PromotedFromWaitlist(context.Context, notify.Notice)  { c.waitlist.Add(1) }
func (c *notifyCounter) SkippedInsufficientCredits(context.Context, notify.Notice) {
	c.waitlist.Add(1)
}
