package orchestrator

import (
	"context"
	"fmt"
	"sync"

	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"github.com/abdoElHodaky/tradsys-control-plane/internal/collaborators"
)

// ModuleRegistry owns the collaborator modules' start/stop lifecycle. It
// orders them as a dependency DAG, starting leaves first (modules with no
// unstarted dependency) and stopping in the reverse order, running every
// module within one dependency level concurrently on a bounded pool.
type ModuleRegistry struct {
	mu      sync.Mutex
	modules map[string]collaborators.Module
	started []string // in the order they actually started, for reverse stop
	logger  *zap.Logger
	pool    *ants.Pool
}

func NewModuleRegistry(logger *zap.Logger, modules []collaborators.Module, poolSize int) (*ModuleRegistry, error) {
	if poolSize <= 0 {
		poolSize = 8
	}
	pool, err := ants.NewPool(poolSize)
	if err != nil {
		return nil, fmt.Errorf("create module registry pool: %w", err)
	}

	byName := make(map[string]collaborators.Module, len(modules))
	for _, m := range modules {
		byName[m.Name()] = m
	}

	return &ModuleRegistry{
		modules: byName,
		logger:  logger,
		pool:    pool,
	}, nil
}

// levels topologically sorts the registered modules into dependency
// levels: level 0 has no dependencies, level k depends only on modules in
// levels < k. Returns an error on a cycle or a dependency naming an
// unregistered module.
func (r *ModuleRegistry) levels() ([][]string, error) {
	remaining := make(map[string][]string, len(r.modules))
	for name, m := range r.modules {
		for _, dep := range m.Dependencies() {
			if _, ok := r.modules[dep]; !ok {
				return nil, fmt.Errorf("module %q depends on unregistered module %q", name, dep)
			}
		}
		remaining[name] = append([]string(nil), m.Dependencies()...)
	}

	var levels [][]string
	done := make(map[string]bool, len(remaining))

	for len(done) < len(remaining) {
		var level []string
		for name, deps := range remaining {
			if done[name] {
				continue
			}
			ready := true
			for _, dep := range deps {
				if !done[dep] {
					ready = false
					break
				}
			}
			if ready {
				level = append(level, name)
			}
		}
		if len(level) == 0 {
			return nil, fmt.Errorf("module dependency graph has a cycle")
		}
		for _, name := range level {
			done[name] = true
		}
		levels = append(levels, level)
	}
	return levels, nil
}

// StartAll starts every module leaves-first, running each dependency
// level's modules concurrently. If any module in a level fails to start,
// the modules already started (including earlier levels and the rest of
// the failed level that did succeed) are stopped in reverse order before
// the error is returned.
func (r *ModuleRegistry) StartAll(ctx context.Context) error {
	levels, err := r.levels()
	if err != nil {
		return err
	}

	for _, level := range levels {
		var wg sync.WaitGroup
		errs := make([]error, len(level))
		started := make([]bool, len(level))

		for i, name := range level {
			i, name := i, name
			wg.Add(1)
			submitErr := r.pool.Submit(func() {
				defer wg.Done()
				if err := r.modules[name].Start(ctx); err != nil {
					errs[i] = fmt.Errorf("start module %q: %w", name, err)
					return
				}
				started[i] = true
			})
			if submitErr != nil {
				wg.Done()
				errs[i] = fmt.Errorf("submit start for module %q: %w", name, submitErr)
			}
		}
		wg.Wait()

		r.mu.Lock()
		for i, name := range level {
			if started[i] {
				r.started = append(r.started, name)
			}
		}
		r.mu.Unlock()

		for i, err := range errs {
			if err != nil {
				r.logger.Error("module start failed; rolling back", zap.String("module", level[i]), zap.Error(err))
				r.StopAll(ctx)
				return err
			}
		}
	}
	return nil
}

// StopAll stops every started module in the reverse order they started,
// so a module never outlives a dependency it relies on. Stop errors are
// logged, never returned — shutdown always proceeds to completion.
func (r *ModuleRegistry) StopAll(ctx context.Context) {
	r.mu.Lock()
	order := append([]string(nil), r.started...)
	r.started = nil
	r.mu.Unlock()

	for i := len(order) - 1; i >= 0; i-- {
		name := order[i]
		if err := r.modules[name].Stop(ctx); err != nil {
			r.logger.Error("module stop failed", zap.String("module", name), zap.Error(err))
		}
	}
}

// Health returns every registered module's current health.
func (r *ModuleRegistry) Health(ctx context.Context) map[string]collaborators.ModuleHealth {
	out := make(map[string]collaborators.ModuleHealth, len(r.modules))
	for name, m := range r.modules {
		out[name] = m.Health(ctx)
	}
	return out
}

// AdvisoryCanTrade reports whether every registered module's non-binding
// can_trade() opinion currently agrees trading may continue. This is
// consulted, never authoritative: only the System Risk Controller's
// SystemState gates order emission.
func (r *ModuleRegistry) AdvisoryCanTrade() bool {
	for _, m := range r.modules {
		if !m.CanTrade() {
			return false
		}
	}
	return true
}

// Release frees the underlying worker pool. Call once during process
// shutdown, after StopAll.
func (r *ModuleRegistry) Release() {
	r.pool.Release()
}
