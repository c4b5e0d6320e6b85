package notification

import (
	"context"
	"sync"
	"time"

	"github.com/iotstream/notify-core/internal/infrastructure/logging"
)

// Reconnector is the slice of a Subscriber the scheduler drives:
// issuing a fresh token for a tenant and re-establishing its transport.
type Reconnector interface {
	IssueConnectionToken(ctx context.Context, tenant string) (string, error)
	Reconnect(ctx context.Context, tenant, token string) error
}

// Scheduler periodically scans a registry for unhealthy connections and
// drives their recovery. A connection is unhealthy when its transport
// has failed or stopped, or its record is marked DISCONNECTED.
//
// Recovery per tenant: issue a fresh token immediately, hold the new
// session back for the settle delay so the broken one ages out server
// side, then mark RECONNECTING and dial. The settle wait runs on its
// own goroutine; the scan loop never blocks on it, and a tenant already
// waiting out a settle delay is skipped by later ticks.
//
// Thread Safety:
//   - Run is called exactly once, by the lifecycle owner.
//   - The pending set is the only shared state and is lock-guarded.
type Scheduler struct {
	registry    *Registry
	reconnector Reconnector
	logger      *logging.Logger

	initialDelay time.Duration
	period       time.Duration
	settleDelay  time.Duration

	mu      sync.Mutex
	pending map[string]bool
	wg      sync.WaitGroup
}

// SchedulerConfig carries the scan cadence and settle delay.
type SchedulerConfig struct {
	InitialDelay time.Duration
	Period       time.Duration
	SettleDelay  time.Duration
}

func NewScheduler(registry *Registry, reconnector Reconnector, cfg SchedulerConfig, logger *logging.Logger) *Scheduler {
	return &Scheduler{
		registry:     registry,
		reconnector:  reconnector,
		logger:       logger,
		initialDelay: cfg.InitialDelay,
		period:       cfg.Period,
		settleDelay:  cfg.SettleDelay,
		pending:      make(map[string]bool),
	}
}

// Run scans until ctx is cancelled, then waits for in-flight settle
// goroutines to finish. Blocks; callers run it on its own goroutine.
func (s *Scheduler) Run(ctx context.Context) {
	s.logger.Info("reconnect scheduler started",
		"initial_delay", s.initialDelay, "period", s.period, "settle_delay", s.settleDelay)

	select {
	case <-ctx.Done():
		s.wg.Wait()
		return
	case <-time.After(s.initialDelay):
	}

	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	s.tick(ctx)
	for {
		select {
		case <-ctx.Done():
			s.wg.Wait()
			s.logger.Info("reconnect scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick scans every registered connection once. Failures for one tenant
// never stop the scan.
func (s *Scheduler) tick(ctx context.Context) {
	for tenant, conn := range s.registry.Snapshot() {
		if !needsRecovery(conn) {
			continue
		}
		s.recover(ctx, tenant, conn)
	}
}

// needsRecovery reports whether a record should be driven through
// recovery: it is marked DISCONNECTED, which includes records whose
// onboarding failed before a transport was ever dialed, or it holds a
// transport that is no longer healthy. A nil handle on a record in any
// other state is an onboarding still in flight and is left alone.
func needsRecovery(conn *Connection) bool {
	if conn.Status() == StatusDisconnected {
		return true
	}
	handle := conn.Handle()
	return handle != nil && !handle.State().Healthy()
}

// recover starts recovery for one tenant unless one is already pending.
func (s *Scheduler) recover(ctx context.Context, tenant string, conn *Connection) {
	if !s.markPending(tenant) {
		return
	}

	token, err := s.reconnector.IssueConnectionToken(ctx, tenant)
	if err != nil {
		s.logger.Error("token refresh failed, will retry next scan",
			"tenant", tenant, "error", err)
		s.clearPending(tenant)
		return
	}

	s.logger.Info("connection unhealthy, reconnect scheduled",
		"tenant", tenant, "status", conn.Status().String(), "settle_delay", s.settleDelay)

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearPending(tenant)

		select {
		case <-ctx.Done():
			return
		case <-time.After(s.settleDelay):
		}

		conn.SetStatus(StatusReconnecting)
		if err := s.reconnector.Reconnect(ctx, tenant, token); err != nil {
			s.logger.Error("reconnect failed, will retry next scan",
				"tenant", tenant, "error", err)
			conn.SetStatus(StatusDisconnected)
		}
	}()
}

func (s *Scheduler) markPending(tenant string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending[tenant] {
		return false
	}
	s.pending[tenant] = true
	return true
}

func (s *Scheduler) clearPending(tenant string) {
	s.mu.Lock()
	delete(s.pending, tenant)
	s.mu.Unlock()
}
