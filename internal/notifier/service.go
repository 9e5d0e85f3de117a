package notifier

import (
	"context"
	"fmt"
	"hash/fnv"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"

	kit "hwbot/internal/transport"
	logx "hwbot/pkg/logx"
)

// Service sends notifications to one chat.
//
// It is safe for concurrent use, although the poll loop only ever sends
// from a single goroutine.
type Service struct {
	mu sync.Mutex

	log    logx.Logger
	sender kit.Sender
	now    func() time.Time

	cfg     Config
	limiter *rate.Limiter

	// In-memory dedup cache: key -> suppress until
	dmu   sync.Mutex
	dedup map[string]time.Time

	hmu     sync.Mutex
	history []HistoryItem
}

func New(cfg Config, sender kit.Sender, log logx.Logger) *Service {
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Service{
		sender: sender,
		log:    log,
		now:    time.Now,
		dedup:  map[string]time.Time{},
	}
	s.applyLocked(cfg)
	return s
}

func (s *Service) Apply(cfg Config) {
	s.mu.Lock()
	s.applyLocked(cfg)
	s.mu.Unlock()
}

func (s *Service) applyLocked(cfg Config) {
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = 1
	}
	if cfg.SendTimeout <= 0 {
		cfg.SendTimeout = 10 * time.Second
	}
	if cfg.DedupWindow < 0 {
		cfg.DedupWindow = 0
	}
	if cfg.DedupMaxEntries <= 0 {
		cfg.DedupMaxEntries = 256
	}
	if cfg.HistorySize <= 0 {
		cfg.HistorySize = 50
	}

	s.cfg = cfg
	// Token bucket: burst = rate per sec.
	s.limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSec), cfg.RatePerSec)
}

// Config returns the effective config (defaults applied).
func (s *Service) Config() Config {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cfg
}

// Send delivers text to the configured chat. A suppressed duplicate counts
// as success. Every failure is a *DeliveryError.
func (s *Service) Send(ctx context.Context, text string) error {
	if ctx == nil {
		ctx = context.Background()
	}

	s.mu.Lock()
	cfg := s.cfg
	lim := s.limiter
	sender := s.sender
	log := s.log
	s.mu.Unlock()

	fail := func(err error) error {
		s.appendHistory(HistoryItem{At: s.now(), Text: text, Err: err.Error()}, cfg.HistorySize)
		return &DeliveryError{Target: cfg.Target, Err: err}
	}

	if strings.TrimSpace(text) == "" {
		return fail(ErrEmptyText)
	}
	if sender == nil {
		return fail(fmt.Errorf("no sender configured"))
	}

	key := dedupKey(cfg.Target, text)
	if cfg.DedupWindow > 0 && !s.dedupAllow(key, cfg.DedupWindow, cfg.DedupMaxEntries) {
		log.Debug("notification suppressed (duplicate)", logx.Duration("window", cfg.DedupWindow))
		s.appendHistory(HistoryItem{At: s.now(), Text: text, Suppressed: true}, cfg.HistorySize)
		return nil
	}

	if lim != nil {
		if err := lim.Wait(ctx); err != nil {
			s.forget(key)
			return fail(err)
		}
	}

	n := kit.Notification{Target: cfg.Target, Text: text, Options: &kit.SendOptions{DisablePreview: cfg.DisablePreview}}
	callCtx, cancel := context.WithTimeout(ctx, cfg.SendTimeout)
	ref, err := sender.SendText(callCtx, n.Target, n.Text, n.Options)
	cancel()
	if err != nil {
		// Let the same text through again on the next attempt.
		s.forget(key)
		return fail(err)
	}

	s.appendHistory(HistoryItem{At: s.now(), Text: text}, cfg.HistorySize)
	log.Info("notification sent", logx.Int64("chat_id", cfg.Target.ChatID), logx.Int("message_id", ref.MessageID))
	return nil
}

func (s *Service) Snapshot() []HistoryItem {
	s.hmu.Lock()
	out := append([]HistoryItem(nil), s.history...)
	s.hmu.Unlock()
	return out
}

// LastDelivered returns the most recent successful send still in history.
func (s *Service) LastDelivered() (HistoryItem, bool) {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	for i := len(s.history) - 1; i >= 0; i-- {
		if it := s.history[i]; it.Err == "" && !it.Suppressed {
			return it, true
		}
	}
	return HistoryItem{}, false
}

// Failures returns the failed sends still in history, oldest first.
func (s *Service) Failures() []HistoryItem {
	s.hmu.Lock()
	defer s.hmu.Unlock()
	var out []HistoryItem
	for _, it := range s.history {
		if it.Err != "" {
			out = append(out, it)
		}
	}
	return out
}

func (s *Service) appendHistory(it HistoryItem, limit int) {
	s.hmu.Lock()
	s.history = append(s.history, it)
	if limit > 0 && len(s.history) > limit {
		s.history = s.history[len(s.history)-limit:]
	}
	s.hmu.Unlock()
}

func dedupKey(to kit.ChatTarget, text string) string {
	h := fnv.New64a()
	_, _ = fmt.Fprintf(h, "%d:%d|", to.ChatID, to.ThreadID)
	_, _ = h.Write([]byte(text))
	return fmt.Sprintf("%x", h.Sum64())
}

func (s *Service) dedupAllow(key string, window time.Duration, maxEntries int) bool {
	now := s.now()

	s.dmu.Lock()
	defer s.dmu.Unlock()

	if until, ok := s.dedup[key]; ok && now.Before(until) {
		return false
	}
	s.dedup[key] = now.Add(window)

	for k, until := range s.dedup {
		if !now.Before(until) {
			delete(s.dedup, k)
		}
	}
	// Remove entries with earliest expiry until within cap.
	for len(s.dedup) > maxEntries {
		var (
			minKey string
			minT   time.Time
			set    bool
		)
		for k, t := range s.dedup {
			if !set || t.Before(minT) {
				minKey, minT, set = k, t, true
			}
		}
		delete(s.dedup, minKey)
	}
	return true
}

func (s *Service) forget(key string) {
	s.dmu.Lock()
	delete(s.dedup, key)
	s.dmu.Unlock()
}
