package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/BrickRunner/exchangerate-bot/internal/digest"
	"github.com/BrickRunner/exchangerate-bot/internal/domain"
	"github.com/BrickRunner/exchangerate-bot/internal/rates"
)

// Sender is a minimal interface the scheduler needs to send a text message.
// telegram.Router implements it.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// RateSource fetches current rates; rates.Client implements it.
type RateSource interface {
	FetchSnapshot(ctx context.Context, codes []string) (rates.Snapshot, error)
}

// Store is the part of store.Repo the loop uses.
type Store interface {
	ListAll(ctx context.Context) ([]domain.UserSchedule, error)
	ListThresholds(ctx context.Context, chatID int64) ([]domain.Threshold, error)
	UpdateField(ctx context.Context, chatID int64, upd domain.SettingUpdate) error
}

// Config tunes the loop.
type Config struct {
	Interval     time.Duration // between sweeps
	Backoff      time.Duration // after a failed sweep
	FetchTimeout time.Duration // per rate source call
	Defaults     domain.Defaults
	// MarkSentOnFailure marks the digest as sent for the day even if delivery failed.
	MarkSentOnFailure bool
}

const persistTimeout = 5 * time.Second

// errAbandoned stops a single user's iteration without marking anything.
var errAbandoned = errors.New("user iteration abandoned")

// Scheduler periodically sweeps all users and dispatches due digests and alerts.
type Scheduler struct {
	repo    Store
	rates   RateSource
	sender  Sender
	log     *zap.Logger
	metrics *Metrics
	cfg     Config

	now   func() time.Time
	dedup *minuteDedup
}

// New creates a Scheduler. A nil metrics registers collectors on a private registry.
func New(repo Store, src RateSource, sender Sender, log *zap.Logger, m *Metrics, cfg Config) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = time.Minute
	}
	if cfg.Backoff <= 0 {
		cfg.Backoff = 5 * time.Second
	}
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = rates.DefaultTimeout
	}
	if m == nil {
		m = NewMetrics(prometheus.NewRegistry())
	}
	return &Scheduler{
		repo:    repo,
		rates:   src,
		sender:  sender,
		log:     log.Named("scheduler"),
		metrics: m,
		cfg:     cfg,
		now:     time.Now,
		dedup:   newMinuteDedup(),
	}
}

// Run starts the loop until ctx is canceled. The first sweep runs immediately;
// later sweeps are aligned to multiples of the interval so a one-minute
// interval visits every wall-clock minute once.
func (s *Scheduler) Run(ctx context.Context) {
	s.log.Info("scheduler started",
		zap.Duration("interval", s.cfg.Interval),
		zap.Duration("backoff", s.cfg.Backoff),
	)
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			s.log.Info("scheduler stopping")
			return
		case <-timer.C:
			err := s.tick(ctx)
			wait := s.untilNextSweep(s.now())
			if err != nil && ctx.Err() == nil {
				s.log.Error("sweep failed, backing off", zap.Error(err), zap.Duration("backoff", s.cfg.Backoff))
				wait = s.cfg.Backoff
			}
			timer.Reset(wait)
		}
	}
}

func (s *Scheduler) untilNextSweep(now time.Time) time.Duration {
	next := now.Truncate(s.cfg.Interval).Add(s.cfg.Interval)
	return next.Sub(now)
}

// tick performs one sweep over all users. Only a failure to list users (or a
// panic outside per-user processing) is returned; everything per-user is
// logged and contained.
func (s *Scheduler) tick(ctx context.Context) (err error) {
	started := time.Now()
	log := s.log.With(zap.String("cycle_id", uuid.NewString()))

	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic in sweep: %v", r)
		}
		result := resultOK
		if err != nil {
			result = resultError
		}
		s.metrics.sweeps.WithLabelValues(result).Inc()
		s.metrics.sweepDuration.Observe(time.Since(started).Seconds())
	}()

	now := s.now().UTC()
	s.dedup.observe(now)

	users, err := s.repo.ListAll(ctx)
	if err != nil {
		return fmt.Errorf("list users: %w", err)
	}
	s.metrics.users.Set(float64(len(users)))

	for _, u := range users {
		if ctx.Err() != nil {
			log.Info("sweep interrupted", zap.Error(ctx.Err()))
			return nil
		}
		s.processUser(ctx, log.With(zap.Int64("chat_id", u.ChatID)), u, now)
	}
	return nil
}

// processUser handles one user. A panic is contained here and counts as that
// user's failure; once the user fired, the minute's dedup key is recorded so
// the same panic is not replayed on every poll.
func (s *Scheduler) processUser(ctx context.Context, log *zap.Logger, u domain.UserSchedule, now time.Time) {
	var fired *dedupKey
	defer func() {
		r := recover()
		if r == nil {
			return
		}
		if fired != nil {
			s.dedup.add(*fired)
		}
		s.metrics.digests.WithLabelValues(resultPanic).Inc()
		log.Error("panic while processing user", zap.Any("panic", r), zap.Stack("stack"))
	}()

	p, issues := domain.ResolvePolicy(u, s.cfg.Defaults)
	for _, is := range issues {
		s.metrics.configIssues.WithLabelValues(is.Field).Inc()
		log.Warn("malformed stored setting, using default",
			zap.String("field", is.Field),
			zap.String("value", is.Value),
			zap.Error(is.Err),
		)
	}

	dec := domain.Evaluate(p, now)
	if !dec.Fire {
		return
	}
	key := dedupKey{chatID: p.ChatID, hour: dec.LocalNow.Hour(), minute: dec.LocalNow.Minute()}
	if s.dedup.seen(key) {
		return
	}
	fired = &key

	delivered, err := s.sendDigest(ctx, log, p, dec)
	if err != nil {
		s.metrics.digests.WithLabelValues(resultAbandoned).Inc()
		log.Warn("digest abandoned", zap.Error(err))
		return
	}
	// Undelivered and unmarked: a later poll in the same minute may retry.
	if !delivered && !s.cfg.MarkSentOnFailure {
		return
	}

	s.checkThresholds(ctx, log, p.ChatID)
	s.dedup.add(key)
	s.markSent(ctx, log, p.ChatID, dec.LocalDate)
}

// sendDigest reports whether the digest was delivered. A non-nil error means
// the iteration was abandoned (rate source timeout or cancellation).
func (s *Scheduler) sendDigest(ctx context.Context, log *zap.Logger, p domain.Policy, dec domain.Decision) (bool, error) {
	snap, err := s.fetch(ctx, p.Currencies)
	if err != nil {
		if rates.IsTimeout(err) || ctx.Err() != nil {
			return false, fmt.Errorf("%w: %w", errAbandoned, err)
		}
		log.Warn("rate source error, digest without data", zap.Error(err))
		snap = rates.EmptySnapshot(time.Time{}, p.Currencies)
	}

	text := digest.Rates(snap, p.Currencies, dec.LocalNow, true)
	if err := s.sender.SendMessage(ctx, p.ChatID, text); err != nil {
		s.metrics.digests.WithLabelValues(resultFailed).Inc()
		log.Error("digest delivery failed", zap.Error(err))
		return false, nil
	}
	s.metrics.digests.WithLabelValues(resultSent).Inc()
	log.Info("digest sent", zap.String("local_date", string(dec.LocalDate)))
	return true, nil
}

// checkThresholds sends one alert per threshold whose currency crossed it.
// Crossing relies on the source's own previous value, not on loop memory.
func (s *Scheduler) checkThresholds(ctx context.Context, log *zap.Logger, chatID int64) {
	ths, err := s.repo.ListThresholds(ctx, chatID)
	if err != nil {
		log.Error("list thresholds failed", zap.Error(err))
		return
	}
	if len(ths) == 0 {
		return
	}

	snap, err := s.fetch(ctx, domain.DistinctCurrencies(ths))
	if err != nil {
		log.Warn("rate source error, thresholds skipped", zap.Error(err))
		return
	}

	for _, th := range ths {
		q := snap.Rates[th.Currency]
		if !domain.CheckThreshold(q.Value, q.Previous, th.Value) {
			continue
		}
		if err := s.sender.SendMessage(ctx, chatID, digest.Alert(th, q.Value.Decimal)); err != nil {
			s.metrics.alerts.WithLabelValues(resultFailed).Inc()
			log.Error("alert delivery failed", zap.Int64("threshold_id", th.ID), zap.Error(err))
			continue
		}
		s.metrics.alerts.WithLabelValues(resultSent).Inc()
		log.Info("threshold alert sent",
			zap.Int64("threshold_id", th.ID),
			zap.String("currency", th.Currency),
			zap.String("level", th.Value.String()),
		)
	}
}

func (s *Scheduler) fetch(ctx context.Context, codes []string) (rates.Snapshot, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.FetchTimeout)
	defer cancel()

	snap, err := s.rates.FetchSnapshot(ctx, codes)
	if err != nil {
		s.metrics.sourceErrors.WithLabelValues(sourceErrorKind(err)).Inc()
	}
	return snap, err
}

func sourceErrorKind(err error) string {
	switch {
	case rates.IsTimeout(err):
		return "timeout"
	case errors.Is(err, rates.ErrMalformed):
		return "malformed"
	default:
		return "unavailable"
	}
}

// markSent persists the local date even if ctx was canceled after delivery.
func (s *Scheduler) markSent(ctx context.Context, log *zap.Logger, chatID int64, date domain.LocalDate) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), persistTimeout)
	defer cancel()

	if err := s.repo.UpdateField(ctx, chatID, domain.SetLastSentDate{Date: date}); err != nil {
		log.Error("mark sent failed", zap.Error(err))
	}
}
