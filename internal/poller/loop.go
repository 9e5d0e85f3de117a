package poller

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"hwbot/internal/homework"
	logx "hwbot/pkg/logx"
)

const (
	DefaultInterval         = 20 * time.Minute
	DefaultRecoveryInterval = 10 * time.Minute
)

// Fetcher is satisfied by *homework.Fetcher.
type Fetcher interface {
	Fetch(ctx context.Context, cursor int64) (homework.Result, error)
}

// Notifier is satisfied by *notifier.Service.
type Notifier interface {
	Send(ctx context.Context, text string) error
}

type Config struct {
	Interval         time.Duration
	RecoveryInterval time.Duration
	// StartFromZero starts the cursor at 0 instead of the current time, so
	// the first poll reports the latest status ever recorded.
	StartFromZero bool
}

// State is the loop's position within a cycle.
type State int32

const (
	StateIdle State = iota
	StateFetching
	StateInterpreting
	StateNotifying
	StateSleeping
)

func (s State) String() string {
	switch s {
	case StateFetching:
		return "fetching"
	case StateInterpreting:
		return "interpreting"
	case StateNotifying:
		return "notifying"
	case StateSleeping:
		return "sleeping"
	default:
		return "idle"
	}
}

// Outcome describes one finished cycle.
type Outcome struct {
	CycleID      string
	At           time.Time
	CursorBefore int64
	CursorAfter  int64
	Records      int
	// Text is what the cycle tried to send ("" when nothing was due).
	Text        string
	Notified    bool
	FetchErr    error
	DeliveryErr error
	// ConsecutiveFailures counts failed fetches in a row, including this one.
	ConsecutiveFailures int
	Sleep               time.Duration
}

// Loop polls the status endpoint forever and owns the cursor.
//
// Run and RunCycle must not be called concurrently.
type Loop struct {
	cfg      Config
	fetcher  Fetcher
	notifier Notifier
	clock    Clock
	log      logx.Logger
	onCycle  func(Outcome)

	// cursor is written only by the loop goroutine; the atomic lets Cursor()
	// be read from elsewhere for status output.
	cursor   atomic.Int64
	state    atomic.Int32
	failures int
}

type Option func(*Loop)

func WithClock(c Clock) Option {
	return func(l *Loop) {
		if c != nil {
			l.clock = c
		}
	}
}

func WithLogger(log logx.Logger) Option { return func(l *Loop) { l.log = log } }

// WithCycleHook registers fn to observe every finished cycle. fn runs on the
// loop goroutine and must not block.
func WithCycleHook(fn func(Outcome)) Option { return func(l *Loop) { l.onCycle = fn } }

func New(cfg Config, f Fetcher, n Notifier, opts ...Option) (*Loop, error) {
	if f == nil {
		return nil, errors.New("poller: fetcher required")
	}
	if n == nil {
		return nil, errors.New("poller: notifier required")
	}
	if cfg.Interval < 0 || cfg.RecoveryInterval < 0 {
		return nil, errors.New("poller: intervals must be >= 0")
	}
	if cfg.Interval == 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.RecoveryInterval == 0 {
		cfg.RecoveryInterval = DefaultRecoveryInterval
	}

	l := &Loop{cfg: cfg, fetcher: f, notifier: n, clock: RealClock()}
	for _, o := range opts {
		o(l)
	}
	if l.log.IsZero() {
		l.log = logx.Nop()
	}
	if !cfg.StartFromZero {
		l.cursor.Store(l.clock.Now().Unix())
	}
	return l, nil
}

func (l *Loop) Cursor() int64 { return l.cursor.Load() }

func (l *Loop) State() State { return State(l.state.Load()) }

func (l *Loop) setState(s State) { l.state.Store(int32(s)) }

// Run executes cycles until ctx is canceled, sleeping Interval after a
// successful fetch and RecoveryInterval after a failed one. It only returns
// ctx.Err().
func (l *Loop) Run(ctx context.Context) error {
	l.log.Info("poll loop started",
		logx.Int64("cursor", l.Cursor()),
		logx.Duration("interval", l.cfg.Interval),
		logx.Duration("recovery_interval", l.cfg.RecoveryInterval),
	)
	for {
		if err := ctx.Err(); err != nil {
			l.setState(StateIdle)
			return err
		}
		out := l.RunCycle(ctx)

		l.setState(StateSleeping)
		if err := l.clock.Sleep(ctx, out.Sleep); err != nil {
			l.setState(StateIdle)
			l.log.Info("poll loop stopped", logx.Int64("cursor", l.Cursor()))
			return err
		}
		l.setState(StateIdle)
	}
}

// RunCycle performs fetch -> interpret -> notify once and reports how long
// to sleep before the next cycle. It never panics on remote data and never
// returns an error: every failure is folded into the Outcome.
func (l *Loop) RunCycle(ctx context.Context) Outcome {
	out := Outcome{
		CycleID:      uuid.NewString(),
		At:           l.clock.Now(),
		CursorBefore: l.Cursor(),
	}
	log := l.log.With(logx.String("cycle_id", out.CycleID))

	l.setState(StateFetching)
	res, err := l.fetcher.Fetch(ctx, out.CursorBefore)
	if err != nil {
		l.failures++
		out.FetchErr = err
		out.ConsecutiveFailures = l.failures
		out.CursorAfter = out.CursorBefore
		out.Sleep = l.cfg.RecoveryInterval

		if ctx.Err() != nil {
			// Shutting down; the failure is ours, not the endpoint's.
			return l.finish(out)
		}
		log.Error("status fetch failed",
			logx.String("kind", homework.KindName(err)),
			logx.Err(err),
			logx.Int("consecutive_failures", l.failures),
			logx.Duration("retry_in", out.Sleep),
		)
		out.Text = homework.DiagnosticText(err)
		l.deliver(ctx, log, &out)
		return l.finish(out)
	}

	if l.failures > 0 {
		log.Info("status endpoint recovered", logx.Int("failed_cycles", l.failures))
	}
	l.failures = 0
	out.Records = len(res.Records)

	if len(res.Records) > 0 {
		l.setState(StateInterpreting)
		// Only the newest entry is reported; older ones in the same batch are skipped.
		rec := res.Records[0]
		if !rec.Valid {
			log.Warn("malformed status record", logx.String("status", rec.RawStatus))
		}
		if len(res.Records) > 1 {
			log.Debug("older records in batch skipped", logx.Int("skipped", len(res.Records)-1))
		}
		out.Text = homework.Interpret(rec)
		log.Debug("status record interpreted",
			logx.String("homework", rec.Name),
			logx.String("status", rec.Status.String()),
		)
		l.deliver(ctx, log, &out)
	} else {
		log.Debug("no status changes", logx.Int64("cursor", out.CursorBefore))
	}

	if res.HasCursor {
		l.cursor.Store(res.Cursor)
	}
	out.CursorAfter = l.Cursor()
	out.Sleep = l.cfg.Interval
	return l.finish(out)
}

// deliver sends out.Text once. A failure is logged and recorded but never retried.
func (l *Loop) deliver(ctx context.Context, log logx.Logger, out *Outcome) {
	l.setState(StateNotifying)
	if err := l.notifier.Send(ctx, out.Text); err != nil {
		out.DeliveryErr = err
		log.Warn("notification delivery failed", logx.Err(err))
		return
	}
	out.Notified = true
}

func (l *Loop) finish(out Outcome) Outcome {
	l.setState(StateIdle)
	l.log.Debug("cycle finished",
		logx.String("cycle_id", out.CycleID),
		logx.Int64("cursor", out.CursorAfter),
		logx.Int("records", out.Records),
		logx.Bool("notified", out.Notified),
		logx.Duration("sleep", out.Sleep),
	)
	if l.onCycle != nil {
		l.onCycle(out)
	}
	return out
}
