package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"runwayscraper/pkg/errors"
	"runwayscraper/pkg/logger"
	"runwayscraper/pkg/models"
	"runwayscraper/pkg/pageclient"
)

// stubFactory hands out pageclient mocks and counts how many were built.
// When maxBuilds is positive, builds beyond it fail with err.
type stubFactory struct {
	mu        sync.Mutex
	built     int
	clients   []*pageclient.Mock
	err       error
	maxBuilds int
}

func (f *stubFactory) New() (pageclient.PageClient, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil && (f.maxBuilds == 0 || f.built >= f.maxBuilds) {
		return nil, f.err
	}
	f.built++
	client := &pageclient.Mock{}
	f.clients = append(f.clients, client)
	return client, nil
}

func (f *stubFactory) builtCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.built
}

func designerUnit(n int) Unit {
	return Unit{
		Type:        UnitTypeDesigner,
		SeasonKey:   models.SeasonKey{Name: "Fall", Year: "2024"},
		DesignerURL: fmt.Sprintf("https://example.com/designer-%d", n),
	}
}

func designerUnits(n int) []Unit {
	units := make([]Unit, 0, n)
	for i := 0; i < n; i++ {
		units = append(units, designerUnit(i))
	}
	return units
}

func TestPoolProcessesAllUnits(t *testing.T) {
	var processed int32
	pool := NewPool(Config{
		NumWorkers: 3,
		Factory:    &stubFactory{},
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			atomic.AddInt32(&processed, 1)
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(10))

	assert.Equal(t, 10, result.Processed)
	assert.Equal(t, 10, result.Completed)
	assert.Equal(t, 0, result.Failed)
	assert.Equal(t, int32(10), atomic.LoadInt32(&processed))

	for _, u := range designerUnits(10) {
		assert.Equal(t, StateCompleted, pool.State(u.ID()))
	}
}

func TestPoolSkipsCompletedUnits(t *testing.T) {
	var processed int32
	pool := NewPool(Config{
		NumWorkers: 2,
		Factory:    &stubFactory{},
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			atomic.AddInt32(&processed, 1)
			return nil
		},
		Skip: func(ctx context.Context, unit Unit) (bool, error) {
			// Even-numbered designers are already in storage.
			return unit.DesignerURL == designerUnit(0).DesignerURL ||
				unit.DesignerURL == designerUnit(2).DesignerURL, nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(4))

	assert.Equal(t, 4, result.Processed)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 2, result.Skipped)
	assert.Equal(t, int32(2), atomic.LoadInt32(&processed))
	assert.Equal(t, StateSkipped, pool.State(designerUnit(0).ID()))
	assert.Equal(t, StateCompleted, pool.State(designerUnit(1).ID()))
}

func TestPoolSkipErrorFallsThroughToProcess(t *testing.T) {
	var processed int32
	pool := NewPool(Config{
		NumWorkers: 1,
		Factory:    &stubFactory{},
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			atomic.AddInt32(&processed, 1)
			return nil
		},
		Skip: func(ctx context.Context, unit Unit) (bool, error) {
			return false, errors.Storage("store unavailable")
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(2))

	// A failing completion check is advisory; the unit still runs.
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, int32(2), atomic.LoadInt32(&processed))
}

func TestPoolCollectsFailures(t *testing.T) {
	failing := designerUnit(1).DesignerURL
	pool := NewPool(Config{
		NumWorkers: 2,
		Factory:    &stubFactory{},
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			if unit.DesignerURL == failing {
				return errors.Navigation("slideshow did not load")
			}
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(3))

	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 2, result.Completed)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Errors, 1)
	assert.Contains(t, result.Errors[0].Error(), failing)
	assert.Equal(t, StateFailed, pool.State(designerUnit(1).ID()))
}

func TestPoolRecyclesClientAfterTimeout(t *testing.T) {
	factory := &stubFactory{}
	var calls int32
	pool := NewPool(Config{
		NumWorkers:  1,
		Factory:     factory,
		UnitTimeout: 20 * time.Millisecond,
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(2))

	assert.Equal(t, 1, result.Failed)
	assert.Equal(t, 1, result.Completed)

	// The wedged client was closed and replaced for the second unit.
	assert.Equal(t, 2, factory.builtCount())
	assert.True(t, factory.clients[0].Closed())
}

func TestPoolRecycleFailureFailsRemainingUnits(t *testing.T) {
	factory := &stubFactory{err: errors.Navigation("browser launch failed"), maxBuilds: 1}
	var calls int32
	pool := NewPool(Config{
		NumWorkers:  1,
		Factory:     factory,
		UnitTimeout: 20 * time.Millisecond,
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			if atomic.AddInt32(&calls, 1) == 1 {
				<-ctx.Done()
				return ctx.Err()
			}
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(3))

	// The first unit timed out and no replacement client could be built,
	// so the remaining units settle as failures rather than being run
	// against the closed client.
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Failed)
	assert.Equal(t, int32(1), atomic.LoadInt32(&calls))
	assert.Equal(t, 1, factory.builtCount())
	assert.True(t, factory.clients[0].Closed())
}

func TestPoolFactoryFailure(t *testing.T) {
	pool := NewPool(Config{
		NumWorkers: 2,
		Factory:    &stubFactory{err: errors.Validation("unknown page client")},
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(context.Background(), designerUnits(3))

	// Every unit settles as failed rather than hanging the run.
	assert.Equal(t, 3, result.Processed)
	assert.Equal(t, 3, result.Failed)
}

func TestPoolCancellationLeavesUnitsPending(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var started int32
	pool := NewPool(Config{
		NumWorkers: 1,
		Factory:    &stubFactory{},
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			if atomic.AddInt32(&started, 1) == 1 {
				cancel()
			}
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	result := pool.Run(ctx, designerUnits(50))

	// Far fewer than 50 units ran; the rest stay pending for a resume.
	assert.Less(t, result.Processed, 50)
	pending := 0
	for _, u := range designerUnits(50) {
		if pool.State(u.ID()) == StatePending {
			pending++
		}
	}
	assert.Greater(t, pending, 0)
}

func TestWorkersGetExclusiveClients(t *testing.T) {
	factory := &stubFactory{}
	pool := NewPool(Config{
		NumWorkers: 4,
		Factory:    factory,
		Process: func(ctx context.Context, client pageclient.PageClient, unit Unit) error {
			return nil
		},
		Logger: logger.NewNopLogger(),
	})

	pool.Run(context.Background(), designerUnits(12))

	// One client per worker, never shared.
	assert.Equal(t, 4, factory.builtCount())
}

func TestUnitID(t *testing.T) {
	season := Unit{Type: UnitTypeSeason, SeasonKey: models.SeasonKey{Name: "Fall", Year: "2024"}}
	assert.Equal(t, "season/Fall:2024", season.ID())

	designer := Unit{Type: UnitTypeDesigner, DesignerURL: "https://example.com/acme"}
	assert.Equal(t, "designer/https://example.com/acme", designer.ID())

	look := Unit{Type: UnitTypeLook, DesignerURL: "https://example.com/acme", LookNumber: 7}
	assert.Equal(t, "look/https://example.com/acme/7", look.ID())
}
