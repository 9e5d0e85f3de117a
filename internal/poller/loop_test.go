package poller

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"hwbot/internal/homework"
	logx "hwbot/pkg/logx"
)

type fakeClock struct {
	mu     sync.Mutex
	now    time.Time
	slept  []time.Duration
	cancel context.CancelFunc
	// stopAfter cancels the loop context once this many sleeps happened.
	stopAfter int
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Sleep(ctx context.Context, d time.Duration) error {
	c.mu.Lock()
	c.slept = append(c.slept, d)
	c.now = c.now.Add(d)
	n := len(c.slept)
	c.mu.Unlock()
	if c.cancel != nil && c.stopAfter > 0 && n >= c.stopAfter {
		c.cancel()
	}
	return ctx.Err()
}

type fetchCall struct {
	res homework.Result
	err error
}

type fakeFetcher struct {
	calls   []fetchCall
	cursors []int64
}

func (f *fakeFetcher) Fetch(ctx context.Context, cursor int64) (homework.Result, error) {
	f.cursors = append(f.cursors, cursor)
	if len(f.calls) == 0 {
		return homework.Result{}, nil
	}
	c := f.calls[0]
	f.calls = f.calls[1:]
	return c.res, c.err
}

type fakeNotifier struct {
	err  error
	sent []string
}

func (n *fakeNotifier) Send(ctx context.Context, text string) error {
	n.sent = append(n.sent, text)
	return n.err
}

func newTestLoop(t *testing.T, cfg Config, f Fetcher, n Notifier, clk Clock) *Loop {
	t.Helper()
	l, err := New(cfg, f, n, WithClock(clk), WithLogger(logx.Nop()))
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func rec(name, status string) homework.Record {
	return homework.Record{Name: name, Status: homework.ParseStatus(status), RawStatus: status, Valid: true}
}

func TestInitialCursor(t *testing.T) {
	clk := &fakeClock{now: time.Unix(1_700_000_000, 0)}

	l := newTestLoop(t, Config{}, &fakeFetcher{}, &fakeNotifier{}, clk)
	if got := l.Cursor(); got != 1_700_000_000 {
		t.Fatalf("cursor = %d, want start time", got)
	}

	l = newTestLoop(t, Config{StartFromZero: true}, &fakeFetcher{}, &fakeNotifier{}, clk)
	if got := l.Cursor(); got != 0 {
		t.Fatalf("cursor = %d, want 0", got)
	}
}

func TestRunCycle(t *testing.T) {
	const start = int64(1_700_000_000)
	httpErr := &homework.FetchError{Kind: homework.ErrHTTPStatus, StatusCode: 503}
	connErr := &homework.FetchError{Kind: homework.ErrConnection, Err: errors.New("refused")}

	tests := []struct {
		name       string
		call       fetchCall
		wantText   string
		wantCursor int64
		wantSleep  time.Duration
	}{
		{
			name: "approved record advances cursor",
			call: fetchCall{res: homework.Result{
				Records: []homework.Record{rec("hw_01", "approved")}, Cursor: start + 60, HasCursor: true,
			}},
			wantText:   "У вас проверили работу \"hw_01\"!\n\n" + homework.VerdictApproved,
			wantCursor: start + 60,
			wantSleep:  time.Hour,
		},
		{
			name:       "empty batch moves cursor silently",
			call:       fetchCall{res: homework.Result{Cursor: start + 5, HasCursor: true}},
			wantCursor: start + 5,
			wantSleep:  time.Hour,
		},
		{
			name:       "server error keeps cursor",
			call:       fetchCall{err: httpErr},
			wantText:   "Ошибка запроса. Код: 503",
			wantCursor: start,
			wantSleep:  time.Minute,
		},
		{
			name:       "connection error keeps cursor",
			call:       fetchCall{err: connErr},
			wantText:   homework.MsgConnection,
			wantCursor: start,
			wantSleep:  time.Minute,
		},
		{
			name: "missing cursor keeps cursor",
			call: fetchCall{res: homework.Result{
				Records: []homework.Record{rec("hw_02", "reviewing")},
			}},
			wantText:   "У вас проверили работу \"hw_02\"!\n\n" + homework.VerdictReviewing,
			wantCursor: start,
			wantSleep:  time.Hour,
		},
		{
			name:       "cursor may go backwards",
			call:       fetchCall{res: homework.Result{Cursor: 10, HasCursor: true}},
			wantCursor: 10,
			wantSleep:  time.Hour,
		},
		{
			name: "malformed record is reported",
			call: fetchCall{res: homework.Result{
				Records: []homework.Record{{RawStatus: "approved"}}, Cursor: start + 1, HasCursor: true,
			}},
			wantText:   homework.MsgInvalidResponse,
			wantCursor: start + 1,
			wantSleep:  time.Hour,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clk := &fakeClock{now: time.Unix(start, 0)}
			f := &fakeFetcher{calls: []fetchCall{tt.call}}
			n := &fakeNotifier{}
			l := newTestLoop(t, Config{Interval: time.Hour, RecoveryInterval: time.Minute}, f, n, clk)

			out := l.RunCycle(context.Background())

			if len(f.cursors) != 1 || f.cursors[0] != start {
				t.Fatalf("fetch cursors = %v, want [%d]", f.cursors, start)
			}
			if tt.wantText == "" {
				if len(n.sent) != 0 {
					t.Fatalf("unexpected notifications %q", n.sent)
				}
			} else if len(n.sent) != 1 || n.sent[0] != tt.wantText {
				t.Fatalf("sent = %q, want %q", n.sent, tt.wantText)
			}
			if got := l.Cursor(); got != tt.wantCursor {
				t.Fatalf("cursor = %d, want %d", got, tt.wantCursor)
			}
			if out.CursorAfter != tt.wantCursor || out.CursorBefore != start {
				t.Fatalf("outcome cursors = %d -> %d", out.CursorBefore, out.CursorAfter)
			}
			if out.Sleep != tt.wantSleep {
				t.Fatalf("sleep = %v, want %v", out.Sleep, tt.wantSleep)
			}
			if out.CycleID == "" {
				t.Fatal("cycle id not set")
			}
		})
	}
}

func TestOnlyNewestRecordIsNotified(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	f := &fakeFetcher{calls: []fetchCall{{res: homework.Result{
		Records:   []homework.Record{rec("newest", "rejected"), rec("older", "approved")},
		Cursor:    200,
		HasCursor: true,
	}}}}
	n := &fakeNotifier{}
	l := newTestLoop(t, Config{}, f, n, clk)

	out := l.RunCycle(context.Background())
	if len(n.sent) != 1 {
		t.Fatalf("notifications = %d, want 1", len(n.sent))
	}
	if want := "У вас проверили работу \"newest\"!\n\n" + homework.VerdictRejected; n.sent[0] != want {
		t.Fatalf("sent %q, want %q", n.sent[0], want)
	}
	if out.Records != 2 || !out.Notified {
		t.Fatalf("outcome = %+v", out)
	}
}

func TestDeliveryFailureStillAdvancesCursor(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	f := &fakeFetcher{calls: []fetchCall{{res: homework.Result{
		Records: []homework.Record{rec("hw", "approved")}, Cursor: 500, HasCursor: true,
	}}}}
	n := &fakeNotifier{err: errors.New("chat not found")}
	l := newTestLoop(t, Config{Interval: time.Hour}, f, n, clk)

	out := l.RunCycle(context.Background())
	if l.Cursor() != 500 {
		t.Fatalf("cursor = %d, want 500", l.Cursor())
	}
	if out.Notified || out.DeliveryErr == nil || out.FetchErr != nil {
		t.Fatalf("outcome = %+v", out)
	}
	if out.Sleep != time.Hour {
		t.Fatalf("delivery failure must not switch to recovery interval, got %v", out.Sleep)
	}
}

func TestConsecutiveFailuresReset(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	timeout := &homework.FetchError{Kind: homework.ErrTimeout, Err: context.DeadlineExceeded}
	f := &fakeFetcher{calls: []fetchCall{
		{err: timeout},
		{err: timeout},
		{res: homework.Result{Cursor: 150, HasCursor: true}},
		{err: timeout},
	}}
	n := &fakeNotifier{}
	l := newTestLoop(t, Config{}, f, n, clk)
	ctx := context.Background()

	var got []int
	for i := 0; i < 4; i++ {
		got = append(got, l.RunCycle(ctx).ConsecutiveFailures)
	}
	want := []int{1, 2, 0, 1}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("consecutive failures = %v, want %v", got, want)
		}
	}
	// The same cursor is retried after each failure.
	if f.cursors[0] != 100 || f.cursors[1] != 100 || f.cursors[2] != 100 || f.cursors[3] != 150 {
		t.Fatalf("fetch cursors = %v", f.cursors)
	}
	if len(n.sent) != 3 || n.sent[0] != homework.MsgTimeout {
		t.Fatalf("diagnostics = %q", n.sent)
	}
}

func TestCanceledFetchSendsNothing(t *testing.T) {
	clk := &fakeClock{now: time.Unix(100, 0)}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	f := &fakeFetcher{calls: []fetchCall{{err: &homework.FetchError{Kind: homework.ErrConnection, Err: context.Canceled}}}}
	n := &fakeNotifier{}
	l := newTestLoop(t, Config{}, f, n, clk)

	out := l.RunCycle(ctx)
	if len(n.sent) != 0 {
		t.Fatalf("no diagnostic expected during shutdown, sent %q", n.sent)
	}
	if out.FetchErr == nil || l.Cursor() != 100 {
		t.Fatalf("outcome = %+v cursor = %d", out, l.Cursor())
	}
}

func TestRunAlternatesIntervalsAndStops(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	clk := &fakeClock{now: time.Unix(100, 0), cancel: cancel, stopAfter: 3}
	f := &fakeFetcher{calls: []fetchCall{
		{res: homework.Result{Cursor: 110, HasCursor: true}},
		{err: &homework.FetchError{Kind: homework.ErrDecode}},
		{res: homework.Result{Cursor: 120, HasCursor: true}},
	}}
	n := &fakeNotifier{}
	var outcomes []Outcome
	l, err := New(Config{Interval: time.Hour, RecoveryInterval: time.Minute}, f, n,
		WithClock(clk),
		WithCycleHook(func(o Outcome) { outcomes = append(outcomes, o) }),
	)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	if err := l.Run(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("Run returned %v, want context.Canceled", err)
	}
	wantSleeps := []time.Duration{time.Hour, time.Minute, time.Hour}
	if len(clk.slept) != len(wantSleeps) {
		t.Fatalf("sleeps = %v", clk.slept)
	}
	for i, d := range wantSleeps {
		if clk.slept[i] != d {
			t.Fatalf("sleeps = %v, want %v", clk.slept, wantSleeps)
		}
	}
	if len(outcomes) != 3 || l.Cursor() != 120 {
		t.Fatalf("outcomes = %d cursor = %d", len(outcomes), l.Cursor())
	}
	if len(n.sent) != 1 || n.sent[0] != homework.MsgDecode {
		t.Fatalf("sent = %q", n.sent)
	}
	if l.State() != StateIdle {
		t.Fatalf("state = %v after stop", l.State())
	}
}

func TestNewValidates(t *testing.T) {
	if _, err := New(Config{}, nil, &fakeNotifier{}); err == nil {
		t.Fatal("nil fetcher accepted")
	}
	if _, err := New(Config{}, &fakeFetcher{}, nil); err == nil {
		t.Fatal("nil notifier accepted")
	}
	if _, err := New(Config{Interval: -time.Second}, &fakeFetcher{}, &fakeNotifier{}); err == nil {
		t.Fatal("negative interval accepted")
	}
	l, err := New(Config{}, &fakeFetcher{}, &fakeNotifier{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if l.cfg.Interval != DefaultInterval || l.cfg.RecoveryInterval != DefaultRecoveryInterval {
		t.Fatalf("defaults = %+v", l.cfg)
	}
}
