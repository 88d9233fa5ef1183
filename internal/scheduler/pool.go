package scheduler

import (
	"context"
	"sync"
	"time"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/pageclient"
	"runwayscraper/pkg/progress"
)

// ProcessFunc does the actual work for one unit using the worker's client.
type ProcessFunc func(ctx context.Context, client pageclient.PageClient, unit Unit) error

// SkipFunc reports whether a unit is already complete in storage and can be
// skipped without a fetch.
type SkipFunc func(ctx context.Context, unit Unit) (bool, error)

// ClientFactory builds one page client per worker.
type ClientFactory interface {
	New() (pageclient.PageClient, error)
}

// Pool dispatches units to a fixed set of workers. Each worker owns its
// client exclusively; a unit that exceeds the timeout gets its worker's
// client recycled, since a wedged browser poisons every later fetch.
type Pool struct {
	numWorkers  int
	factory     ClientFactory
	process     ProcessFunc
	skip        SkipFunc
	unitTimeout time.Duration
	metrics     *progress.Metrics
	log         logger.Logger

	mu     sync.Mutex
	states map[string]UnitState
}

// Config assembles a pool.
type Config struct {
	NumWorkers  int
	Factory     ClientFactory
	Process     ProcessFunc
	Skip        SkipFunc
	UnitTimeout time.Duration
	Metrics     *progress.Metrics
	Logger      logger.Logger
}

// NewPool builds a pool from cfg.
func NewPool(cfg Config) *Pool {
	log := cfg.Logger
	if log == nil {
		log = logger.GetLogger()
	}
	return &Pool{
		numWorkers:  cfg.NumWorkers,
		factory:     cfg.Factory,
		process:     cfg.Process,
		skip:        cfg.Skip,
		unitTimeout: cfg.UnitTimeout,
		metrics:     cfg.Metrics,
		log:         log,
	}
}

// State returns the recorded state for a unit id.
func (p *Pool) State(id string) UnitState {
	p.mu.Lock()
	defer p.mu.Unlock()
	if s, ok := p.states[id]; ok {
		return s
	}
	return StatePending
}

func (p *Pool) setState(id string, state UnitState) {
	p.mu.Lock()
	p.states[id] = state
	p.mu.Unlock()
}

type unitResult struct {
	unit    Unit
	state   UnitState
	err     error
	elapsed time.Duration
}

// Run dispatches units in their given order and blocks until every unit has
// settled or ctx is cancelled. Cancellation abandons undispatched units,
// leaving them pending for the next resume.
func (p *Pool) Run(ctx context.Context, units []Unit) Result {
	p.mu.Lock()
	p.states = make(map[string]UnitState, len(units))
	for _, u := range units {
		p.states[u.ID()] = StatePending
	}
	p.mu.Unlock()

	p.log.InfoWithFields("starting worker pool", map[string]interface{}{
		"num_workers": p.numWorkers,
		"units":       len(units),
	})

	jobQueue := make(chan Unit, p.numWorkers*2)
	resultQueue := make(chan unitResult, p.numWorkers)

	var wg sync.WaitGroup
	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go p.worker(ctx, i, jobQueue, resultQueue, &wg)
	}

	go func() {
		defer close(jobQueue)
		for _, u := range units {
			select {
			case jobQueue <- u:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(resultQueue)
	}()

	var result Result
	for r := range resultQueue {
		result.Processed++
		switch r.state {
		case StateCompleted:
			result.Completed++
		case StateSkipped:
			result.Skipped++
		case StateFailed:
			result.Failed++
			result.Errors = append(result.Errors, UnitError{Unit: r.unit, Err: r.err})
		}
		if p.metrics != nil {
			p.metrics.UnitsProcessed.WithLabelValues(string(r.unit.Type), string(r.state)).Inc()
			if r.state == StateFailed {
				p.metrics.UnitFailures.WithLabelValues(string(errors.TypeOf(r.err))).Inc()
			}
		}
	}

	p.log.InfoWithFields("worker pool finished", map[string]interface{}{
		"processed": result.Processed,
		"completed": result.Completed,
		"skipped":   result.Skipped,
		"failed":    result.Failed,
	})
	return result
}

func (p *Pool) worker(ctx context.Context, id int, jobs <-chan Unit, results chan<- unitResult, wg *sync.WaitGroup) {
	defer wg.Done()

	client, err := p.factory.New()
	if err != nil {
		p.log.ErrorWithFields("worker failed to create client", map[string]interface{}{
			"worker_id": id,
			"error":     err.Error(),
		})
		// Drain the worker's share of units as failures so Run still settles.
		for unit := range jobs {
			p.setState(unit.ID(), StateFailed)
			results <- unitResult{unit: unit, state: StateFailed, err: err}
		}
		return
	}
	defer func() {
		if client != nil {
			client.Close()
		}
	}()

	p.log.DebugWithFields("worker started", map[string]interface{}{
		"worker_id": id,
	})

	for unit := range jobs {
		select {
		case <-ctx.Done():
			return
		default:
		}

		r := p.processUnit(ctx, client, unit, id)

		var recycleErr error
		if r.state == StateFailed && isTimeout(r.err) {
			client, recycleErr = p.recycleClient(client, id)
		}

		select {
		case results <- r:
		case <-ctx.Done():
			return
		}

		if recycleErr != nil {
			// No client left; settle the worker's remaining units as
			// failures instead of dispatching them against a closed client.
			for rest := range jobs {
				p.setState(rest.ID(), StateFailed)
				select {
				case results <- unitResult{unit: rest, state: StateFailed, err: recycleErr}:
				case <-ctx.Done():
					return
				}
			}
			return
		}
	}
}

func (p *Pool) processUnit(ctx context.Context, client pageclient.PageClient, unit Unit, workerID int) unitResult {
	start := time.Now()
	id := unit.ID()
	p.setState(id, StateInProgress)

	if p.skip != nil {
		done, err := p.skip(ctx, unit)
		if err != nil {
			p.log.WarnWithFields("completion check failed", map[string]interface{}{
				"worker_id": workerID,
				"unit":      id,
				"error":     err.Error(),
			})
		} else if done {
			p.setState(id, StateSkipped)
			p.log.DebugWithFields("unit already complete", map[string]interface{}{
				"worker_id": workerID,
				"unit":      id,
			})
			return unitResult{unit: unit, state: StateSkipped, elapsed: time.Since(start)}
		}
	}

	unitCtx := ctx
	var cancel context.CancelFunc
	if p.unitTimeout > 0 {
		unitCtx, cancel = context.WithTimeout(ctx, p.unitTimeout)
		defer cancel()
	}

	if err := p.process(unitCtx, client, unit); err != nil {
		p.setState(id, StateFailed)
		p.log.ErrorWithFields("unit failed", map[string]interface{}{
			"worker_id":  workerID,
			"unit":       id,
			"error":      err.Error(),
			"error_type": string(errors.TypeOf(err)),
			"duration":   time.Since(start).String(),
		})
		return unitResult{unit: unit, state: StateFailed, err: err, elapsed: time.Since(start)}
	}

	p.setState(id, StateCompleted)
	p.log.DebugWithFields("unit completed", map[string]interface{}{
		"worker_id": workerID,
		"unit":      id,
		"duration":  time.Since(start).String(),
	})
	return unitResult{unit: unit, state: StateCompleted, elapsed: time.Since(start)}
}

// recycleClient replaces a worker's client after a timeout. The old client
// is always closed; when no replacement can be built the worker is left
// without a client and must stop taking work.
func (p *Pool) recycleClient(old pageclient.PageClient, workerID int) (pageclient.PageClient, error) {
	old.Close()
	fresh, err := p.factory.New()
	if err != nil {
		p.log.ErrorWithFields("failed to recycle client", map[string]interface{}{
			"worker_id": workerID,
			"error":     err.Error(),
		})
		return nil, err
	}
	p.log.InfoWithFields("client recycled after timeout", map[string]interface{}{
		"worker_id": workerID,
	})
	return fresh, nil
}

func isTimeout(err error) bool {
	return errors.Is(err, context.DeadlineExceeded)
}
