package resync

import (
	"context"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/logging"
)

// Resyncer drains the outbox.
type Resyncer interface {
	Resync(ctx context.Context) (Summary, error)
}

// Prober checks connectivity to the submission endpoint.
type Prober interface {
	Ping(ctx context.Context) error
}

// Refresher refetches cached content.
type Refresher interface {
	Refresh(ctx context.Context) (updated, failed int, err error)
}

type Mode string

const (
	ModeOnline  Mode = "online"
	ModeOffline Mode = "offline"
)

// SchedulerConfig holds the trigger intervals.
type SchedulerConfig struct {
	OnlineCheckInterval    time.Duration
	PeriodicUpdateInterval time.Duration
	InitialBackoff         time.Duration
	MaxBackoff             time.Duration
	ProbeTimeout           time.Duration
}

// Scheduler is the platform adapter: it receives sync requests and
// connectivity/periodic signals and decides when the outbox is drained.
// Signals are coalesced, so a burst of requests causes one drain.
type Scheduler struct {
	resyncer  Resyncer
	prober    Prober
	refresher Refresher
	cfg       SchedulerConfig
	logger    logging.Logger

	signals chan struct{}

	mu   sync.Mutex
	mode Mode

	backoff *backoff.ExponentialBackOff
}

// NewScheduler wires a scheduler. prober and refresher may be nil: without a
// prober the endpoint is assumed reachable, without a refresher periodic
// updates only drain the outbox.
func NewScheduler(r Resyncer, p Prober, rf Refresher, cfg SchedulerConfig, l logging.Logger) *Scheduler {
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = 3 * time.Second
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = cfg.InitialBackoff
	b.MaxInterval = cfg.MaxBackoff
	b.Reset()

	return &Scheduler{
		resyncer:  r,
		prober:    p,
		refresher: rf,
		cfg:       cfg,
		logger:    l.With("module", "scheduler"),
		signals:   make(chan struct{}, 1),
		mode:      ModeOnline,
		backoff:   b,
	}
}

// Mode returns the last observed connectivity mode.
func (s *Scheduler) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// setMode records mode and reports whether it changed.
func (s *Scheduler) setMode(mode Mode) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mode == mode {
		return false
	}
	s.mode = mode
	return true
}

func (s *Scheduler) trigger() {
	select {
	case s.signals <- struct{}{}:
	default:
	}
}

// RequestSync registers a background sync. Only the outbox tag is known;
// other tags are ignored and reported as not registered.
func (s *Scheduler) RequestSync(tag string) bool {
	if tag != common.SyncTag {
		return false
	}
	s.trigger()
	return true
}

// ConnectivityRestored marks the endpoint reachable and requests a drain.
func (s *Scheduler) ConnectivityRestored() {
	if s.setMode(ModeOnline) {
		s.logger.Info(context.Background(), "switched to online mode")
	}
	s.trigger()
}

// PeriodicUpdate refreshes cached content and requests a drain.
func (s *Scheduler) PeriodicUpdate(ctx context.Context) (updated, failed int, err error) {
	if s.refresher != nil {
		updated, failed, err = s.refresher.Refresh(ctx)
		if err != nil {
			s.logger.Warn(ctx, "periodic cache refresh failed", "error", err)
		} else {
			s.logger.Info(ctx, "periodic cache refresh finished", "updated", updated, "failed", failed)
		}
	}
	s.trigger()
	return updated, failed, err
}

// Run processes signals until ctx is done. It drains once at start so
// entries left by a previous process are retried.
func (s *Scheduler) Run(ctx context.Context) {
	online := time.NewTicker(s.cfg.OnlineCheckInterval)
	defer online.Stop()

	periodic := time.NewTicker(s.cfg.PeriodicUpdateInterval)
	defer periodic.Stop()

	var retry *time.Timer
	var retryC <-chan time.Time
	stopRetry := func() {
		if retry != nil {
			retry.Stop()
		}
		retry, retryC = nil, nil
	}
	defer stopRetry()

	s.trigger()

	for {
		select {
		case <-ctx.Done():
			return

		case <-s.signals:
			stopRetry()
			if delay, again := s.drain(ctx); again {
				retry = time.NewTimer(delay)
				retryC = retry.C
			}

		case <-retryC:
			retry, retryC = nil, nil
			s.trigger()

		case <-online.C:
			s.checkOnline(ctx)

		case <-periodic.C:
			_, _, _ = s.PeriodicUpdate(ctx)
		}
	}
}

// drain runs one resync when online and returns the backoff delay when
// entries are left behind.
func (s *Scheduler) drain(ctx context.Context) (time.Duration, bool) {
	if s.Mode() == ModeOffline {
		s.logger.Debug(ctx, "offline, postponing resync")
		return 0, false
	}

	summary, err := s.resyncer.Resync(ctx)
	if err != nil {
		s.logger.Error(ctx, "resync error", "error", err)
	}
	if err == nil && summary.Failed == 0 {
		s.backoff.Reset()
		return 0, false
	}
	if ctx.Err() != nil {
		return 0, false
	}

	delay := s.backoff.NextBackOff()
	s.logger.Info(ctx, "entries left in outbox, retrying later", "failed", summary.Failed, "retry_in", delay)
	return delay, true
}

// checkOnline probes the endpoint and requests a drain on offline→online.
func (s *Scheduler) checkOnline(ctx context.Context) {
	if s.prober == nil {
		return
	}

	pctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	err := s.prober.Ping(pctx)
	cancel()

	if err != nil {
		if s.setMode(ModeOffline) {
			s.logger.Info(ctx, "switched to offline mode", "error", err)
		}
		return
	}
	if s.setMode(ModeOnline) {
		s.logger.Info(ctx, "switched to online mode")
		s.trigger()
	}
}
