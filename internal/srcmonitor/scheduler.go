package srcmonitor

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/srcstate"
)

// SnapshotFunc produces the current Snapshot on demand. The scheduler calls
// it once per tick, per monitor, so it must be cheap and side-effect-free.
type SnapshotFunc func() Snapshot

// Scheduler runs each registered Monitor on its own ticker, enforces a
// per-evaluation timeout, records each monitor's latest result, and passes
// every result to the onResult callback as it arrives; results are not
// coalesced before the callback, and MostSevere reports the worst of the
// recorded results on request. Monitors never share a goroutine: a
// slow Infrastructure check cannot delay the Execution monitor's cadence.
//
// Each monitor also ticks on its own interval and has its own evaluation
// timeout: defaultInterval/defaultTimeout are the fallback for any monitor
// without an entry in intervals/timeouts, set via SetInterval/SetTimeout.
type Scheduler struct {
	monitors        []Monitor
	snapshot        SnapshotFunc
	defaultInterval time.Duration
	defaultTimeout  time.Duration
	logger          *zap.Logger

	mu        sync.Mutex
	latest    map[string]MonitorResult
	intervals map[string]time.Duration
	timeouts  map[string]time.Duration

	onResult func(MonitorResult)
}

func NewScheduler(monitors []Monitor, snapshot SnapshotFunc, interval, timeout time.Duration, logger *zap.Logger, onResult func(MonitorResult)) *Scheduler {
	return &Scheduler{
		monitors:        monitors,
		snapshot:        snapshot,
		defaultInterval: interval,
		defaultTimeout:  timeout,
		logger:          logger,
		latest:          make(map[string]MonitorResult),
		intervals:       make(map[string]time.Duration),
		timeouts:        make(map[string]time.Duration),
		onResult:        onResult,
	}
}

// SetInterval overrides the tick interval for one monitor by ID, replacing
// the scheduler's default. It exists because category cadences (e.g.
// Execution ticking faster than Infrastructure) are tuned per deployment,
// typically from configuration loaded after the Scheduler is constructed.
func (s *Scheduler) SetInterval(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.intervals[id] = d
}

// SetTimeout overrides the per-evaluation timeout for one monitor by ID,
// replacing the scheduler's default.
func (s *Scheduler) SetTimeout(id string, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.timeouts[id] = d
}

func (s *Scheduler) intervalFor(id string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.intervals[id]; ok && d > 0 {
		return d
	}
	return s.defaultInterval
}

func (s *Scheduler) timeoutFor(id string) time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if d, ok := s.timeouts[id]; ok && d > 0 {
		return d
	}
	return s.defaultTimeout
}

// Run blocks, ticking every monitor on its independent schedule, until ctx
// is cancelled. Each monitor gets its own ticker goroutine so a stuck
// Evaluate call in one category never starves another.
func (s *Scheduler) Run(ctx context.Context) {
	var wg sync.WaitGroup
	for _, m := range s.monitors {
		wg.Add(1)
		go func(m Monitor) {
			defer wg.Done()
			s.runOne(ctx, m)
		}(m)
	}
	wg.Wait()
}

func (s *Scheduler) runOne(ctx context.Context, m Monitor) {
	ticker := time.NewTicker(s.intervalFor(m.ID()))
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			result := s.evaluateWithTimeout(m)
			s.record(m.ID(), result)
			s.mu.Lock()
			onResult := s.onResult
			s.mu.Unlock()
			if onResult != nil {
				onResult(result)
			}
		}
	}
}

// evaluateWithTimeout runs m.Evaluate on a snapshot, but never lets a
// wedged monitor block the scheduler: past the configured timeout it
// synthesizes a CRITICAL/INTERNAL result, per the monitor
// timeout rule.
func (s *Scheduler) evaluateWithTimeout(m Monitor) MonitorResult {
	s.mu.Lock()
	snapshotFn := s.snapshot
	s.mu.Unlock()

	snap := snapshotFn()
	done := make(chan MonitorResult, 1)

	go func() {
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("monitor panicked", zap.String("monitor", m.ID()), zap.Any("recover", r))
				done <- halt(m.ID(), m.Category(), "MONITOR_PANIC", "monitor evaluation panicked", srcstate.LevelHard, nil)
				return
			}
		}()
		done <- m.Evaluate(snap)
	}()

	timeout := s.timeoutFor(m.ID())
	select {
	case result := <-done:
		return result
	case <-time.After(timeout):
		s.logger.Error("monitor evaluation timed out", zap.String("monitor", m.ID()), zap.Duration("timeout", timeout))
		return halt(m.ID(), srcstate.CategoryInternal, "MONITOR_TIMEOUT", "monitor evaluation exceeded timeout", srcstate.LevelHard, nil)
	}
}

// SetSnapshotFunc replaces the snapshot source. It exists because the real
// snapshot builder (the orchestrator, which reads the tracker, health
// registry, and guard) is typically constructed after the Scheduler in the
// fx dependency graph.
func (s *Scheduler) SetSnapshotFunc(fn SnapshotFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshot = fn
}

// SetOnResult attaches the callback invoked after every monitor tick. It
// exists because the callback (typically the SRC Controller) is often
// constructed after the Scheduler in the fx dependency graph.
func (s *Scheduler) SetOnResult(fn func(MonitorResult)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onResult = fn
}

func (s *Scheduler) record(id string, result MonitorResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.latest[id] = result
}

// Latest returns the most recently recorded result for every monitor.
func (s *Scheduler) Latest() map[string]MonitorResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]MonitorResult, len(s.latest))
	for k, v := range s.latest {
		out[k] = v
	}
	return out
}

// MostSevere returns the single worst currently-recorded result, or a
// healthy placeholder if every monitor is healthy or none have run yet.
func (s *Scheduler) MostSevere() MonitorResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	worst := MonitorResult{Healthy: true}
	worstSeverity := -1
	for _, r := range s.latest {
		if r.severity() > worstSeverity {
			worst = r
			worstSeverity = r.severity()
		}
	}
	return worst
}

// DefaultMonitors builds the full set of five category monitors with
// reasonable bootstrap thresholds; callers (fx wiring, tests) overwrite
// fields post-construction where finer tuning is needed.
func DefaultMonitors(logger *zap.Logger) []Monitor {
	return []Monitor{
		NewDataIntegrityMonitor(),
		NewProcessingMonitor(logger, 0.05),
		NewExecutionMonitor(logger),
		NewControlMonitor(),
		NewInfrastructureMonitor(logger),
	}
}
