package resync

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/boda/internal/common"
	"github.com/dmitrijs2005/boda/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeResyncer struct {
	calls atomic.Int32

	mu      sync.Mutex
	results []Summary
}

func (f *fakeResyncer) Resync(context.Context) (Summary, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.results) == 0 {
		return Summary{}, nil
	}
	r := f.results[0]
	f.results = f.results[1:]
	return r, nil
}

type fakeProber struct {
	err atomic.Pointer[error]
}

func (f *fakeProber) set(err error) { f.err.Store(&err) }

func (f *fakeProber) Ping(context.Context) error {
	if p := f.err.Load(); p != nil {
		return *p
	}
	return nil
}

type fakeRefresher struct {
	calls atomic.Int32
}

func (f *fakeRefresher) Refresh(context.Context) (int, int, error) {
	f.calls.Add(1)
	return 3, 0, nil
}

func testSchedulerConfig() SchedulerConfig {
	return SchedulerConfig{
		OnlineCheckInterval:    time.Hour,
		PeriodicUpdateInterval: time.Hour,
		InitialBackoff:         10 * time.Millisecond,
		MaxBackoff:             20 * time.Millisecond,
	}
}

func startScheduler(t *testing.T, s *Scheduler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestRequestSync_UnknownTagIgnored(t *testing.T) {
	s := NewScheduler(&fakeResyncer{}, nil, nil, testSchedulerConfig(), logging.Nop{})
	assert.False(t, s.RequestSync("something-else"))
	assert.True(t, s.RequestSync(common.SyncTag))
}

func TestRun_DrainsAtStartAndOnRequest(t *testing.T) {
	r := &fakeResyncer{}
	s := NewScheduler(r, nil, nil, testSchedulerConfig(), logging.Nop{})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)

	s.RequestSync(common.SyncTag)
	require.Eventually(t, func() bool { return r.calls.Load() == 2 }, time.Second, 5*time.Millisecond)
}

func TestRequestSync_Coalesces(t *testing.T) {
	r := &fakeResyncer{}
	s := NewScheduler(r, nil, nil, testSchedulerConfig(), logging.Nop{})

	for range 5 {
		s.RequestSync(common.SyncTag)
	}
	// one pending signal, plus the one Run issues at start, also coalesced
	startScheduler(t, s)
	require.Eventually(t, func() bool { return r.calls.Load() >= 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, int32(1), r.calls.Load())
}

func TestRun_RetriesWithBackoffAfterFailures(t *testing.T) {
	r := &fakeResyncer{results: []Summary{{Failed: 1}, {Failed: 1}, {Succeeded: 1}}}
	s := NewScheduler(r, nil, nil, testSchedulerConfig(), logging.Nop{})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return r.calls.Load() == 3 }, 2*time.Second, 5*time.Millisecond)

	// clean drain: no further retries
	time.Sleep(80 * time.Millisecond)
	assert.Equal(t, int32(3), r.calls.Load())
}

func TestRun_OfflineToOnlineTriggersDrain(t *testing.T) {
	r := &fakeResyncer{}
	p := &fakeProber{}
	p.set(errors.New("connection refused"))

	cfg := testSchedulerConfig()
	cfg.OnlineCheckInterval = 10 * time.Millisecond
	s := NewScheduler(r, p, nil, cfg, logging.Nop{})
	startScheduler(t, s)

	require.Eventually(t, func() bool { return s.Mode() == ModeOffline }, time.Second, 5*time.Millisecond)
	before := r.calls.Load()

	// requests while offline are postponed
	s.RequestSync(common.SyncTag)
	time.Sleep(30 * time.Millisecond)
	assert.Equal(t, before, r.calls.Load())

	p.set(nil)
	require.Eventually(t, func() bool { return s.Mode() == ModeOnline }, time.Second, 5*time.Millisecond)
	require.Eventually(t, func() bool { return r.calls.Load() > before }, time.Second, 5*time.Millisecond)
}

func TestConnectivityRestored_SwitchesOnline(t *testing.T) {
	r := &fakeResyncer{}
	s := NewScheduler(r, nil, nil, testSchedulerConfig(), logging.Nop{})
	s.setMode(ModeOffline)

	s.ConnectivityRestored()
	assert.Equal(t, ModeOnline, s.Mode())

	startScheduler(t, s)
	require.Eventually(t, func() bool { return r.calls.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestPeriodicUpdate_RefreshesAndDrains(t *testing.T) {
	r := &fakeResyncer{}
	rf := &fakeRefresher{}
	cfg := testSchedulerConfig()
	cfg.PeriodicUpdateInterval = 20 * time.Millisecond
	s := NewScheduler(r, nil, rf, cfg, logging.Nop{})

	updated, failed, err := s.PeriodicUpdate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, updated)
	assert.Equal(t, 0, failed)

	startScheduler(t, s)
	require.Eventually(t, func() bool { return rf.calls.Load() >= 3 && r.calls.Load() >= 2 }, 2*time.Second, 5*time.Millisecond)
}
